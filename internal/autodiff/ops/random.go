package ops

import (
	"github.com/born-ml/gradcore/internal/tensor"
)

type distribution int

const (
	bernoulli distribution = iota
	uniform
	normal
	logNormal
)

// RandomOp samples a tensor from the device generator.
//
// Each Forward call draws fresh values, so two calls with the same node
// return different tensors while a fixed device seed reproduces the whole
// sequence.
type RandomOp struct {
	dist  distribution
	shape tensor.Shape
	a, b  float32
	dev   *tensor.Device
}

// NewRandomBernoulliOp samples 1 with probability p and 0 otherwise.
func NewRandomBernoulliOp(shape tensor.Shape, p float32, dev *tensor.Device) *RandomOp {
	return &RandomOp{dist: bernoulli, shape: shape, a: p, dev: dev}
}

// NewRandomUniformOp samples from [lower, upper).
func NewRandomUniformOp(shape tensor.Shape, lower, upper float32, dev *tensor.Device) *RandomOp {
	return &RandomOp{dist: uniform, shape: shape, a: lower, b: upper, dev: dev}
}

// NewRandomNormalOp samples from N(mean, sd²).
func NewRandomNormalOp(shape tensor.Shape, mean, sd float32, dev *tensor.Device) *RandomOp {
	return &RandomOp{dist: normal, shape: shape, a: mean, b: sd, dev: dev}
}

// NewRandomLogNormalOp samples exp(z) with z from N(mean, sd²).
func NewRandomLogNormalOp(shape tensor.Shape, mean, sd float32, dev *tensor.Device) *RandomOp {
	return &RandomOp{dist: logNormal, shape: shape, a: mean, b: sd, dev: dev}
}

// Name returns e.g. "RandomUniform(-2,-1)".
func (op *RandomOp) Name() string {
	switch op.dist {
	case bernoulli:
		return "RandomBernoulli(" + formatFloat(op.a) + ")"
	case uniform:
		return "RandomUniform(" + formatFloat(op.a) + "," + formatFloat(op.b) + ")"
	case normal:
		return "RandomNormal(" + formatFloat(op.a) + "," + formatFloat(op.b) + ")"
	default:
		return "RandomLogNormal(" + formatFloat(op.a) + "," + formatFloat(op.b) + ")"
	}
}

// Device returns the bound device.
func (op *RandomOp) Device() *tensor.Device { return op.dev }

// ForwardShape returns the bound shape.
func (op *RandomOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 0); err != nil {
		return tensor.Shape{}, err
	}
	return op.shape, nil
}

// Forward draws shape.Size() values.
func (op *RandomOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 0); err != nil {
		return nil, err
	}
	dev, err := boundDevice(op.Name(), op.dev)
	if err != nil {
		return nil, err
	}
	switch op.dist {
	case bernoulli:
		return dev.RandomBernoulli(op.shape, op.a)
	case uniform:
		return dev.RandomUniform(op.shape, op.a, op.b)
	case normal:
		return dev.RandomNormal(op.shape, op.a, op.b)
	default:
		return dev.RandomLogNormal(op.shape, op.a, op.b)
	}
}

// Backward does nothing.
func (op *RandomOp) Backward(_, _ *tensor.Tensor, _, _ []*tensor.Tensor) error { return nil }
