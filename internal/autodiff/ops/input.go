package ops

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/born-ml/gradcore/internal/tensor"
)

// InputOp produces a tensor from host values on a bound device.
type InputOp struct {
	shape  tensor.Shape
	values []float32
	dev    *tensor.Device
}

// NewInputOp creates an input node. values is copied and must hold
// shape.Size() elements in dim-0-fastest, batch-outermost order.
func NewInputOp(shape tensor.Shape, values []float32, dev *tensor.Device) *InputOp {
	return &InputOp{shape: shape, values: append([]float32(nil), values...), dev: dev}
}

// Name returns "Input".
func (op *InputOp) Name() string { return "Input" }

// Device returns the bound device.
func (op *InputOp) Device() *tensor.Device { return op.dev }

// ForwardShape returns the bound shape.
func (op *InputOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 0); err != nil {
		return tensor.Shape{}, err
	}
	if len(op.values) != op.shape.Size() {
		return tensor.Shape{}, errors.Wrapf(tensor.ErrShape, "Input: shape %s requires %d values, got %d",
			op.shape, op.shape.Size(), len(op.values))
	}
	return op.shape, nil
}

// Forward uploads the values.
func (op *InputOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 0); err != nil {
		return nil, err
	}
	dev, err := boundDevice(op.Name(), op.dev)
	if err != nil {
		return nil, err
	}
	return dev.NewTensorByVector(op.shape, op.values)
}

// Backward does nothing.
func (op *InputOp) Backward(_, _ *tensor.Tensor, _, _ []*tensor.Tensor) error { return nil }

// Parameter is a trainable value together with its gradient accumulator.
type Parameter interface {
	Value() *tensor.Tensor
	Gradient() *tensor.Tensor
}

// ParameterInputOp exposes a parameter to the graph.
//
// Its value is owned by the parameter, so Forward fails with
// ErrNoForwardValue; use InnerValue instead. Backward adds the output
// gradient into the parameter's gradient.
type ParameterInputOp struct {
	param Parameter
}

// NewParameterInputOp creates a node bound to param.
func NewParameterInputOp(param Parameter) *ParameterInputOp {
	return &ParameterInputOp{param: param}
}

// Name returns "ParameterInput".
func (op *ParameterInputOp) Name() string { return "ParameterInput" }

// Device returns the device of the parameter value.
func (op *ParameterInputOp) Device() *tensor.Device { return op.param.Value().Device() }

// InnerValue returns the parameter value itself, not a copy.
func (op *ParameterInputOp) InnerValue() *tensor.Tensor { return op.param.Value() }

// ForwardShape returns the shape of the parameter value.
func (op *ParameterInputOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 0); err != nil {
		return tensor.Shape{}, err
	}
	return op.param.Value().Shape(), nil
}

// Forward always fails with ErrNoForwardValue.
func (op *ParameterInputOp) Forward([]*tensor.Tensor) (*tensor.Tensor, error) {
	return nil, errors.Wrap(ErrNoForwardValue, "ParameterInput: read InnerValue instead")
}

// Backward accumulates gy into the parameter gradient.
func (op *ParameterInputOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 0); err != nil {
		return err
	}
	g := op.param.Gradient()
	dev := g.Device()
	if dev == nil {
		return errors.Wrap(tensor.ErrInvalidTensor, "ParameterInput: gradient")
	}
	return dev.Accumulate(g, gy)
}

// CopyOp transfers its input to another device.
type CopyOp struct {
	dev *tensor.Device
}

// NewCopyOp creates a node copying its input onto dev.
func NewCopyOp(dev *tensor.Device) *CopyOp {
	return &CopyOp{dev: dev}
}

// Name returns "Copy".
func (op *CopyOp) Name() string { return "Copy" }

// Device returns the target device.
func (op *CopyOp) Device() *tensor.Device { return op.dev }

// ForwardShape returns the input shape.
func (op *CopyOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return tensor.Shape{}, err
	}
	return xs[0], nil
}

// Forward copies x onto the target device.
func (op *CopyOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	dev, err := boundDevice(op.Name(), op.dev)
	if err != nil {
		return nil, err
	}
	return dev.CopyTensor(xs[0])
}

// Backward copies gy back to the input's device and accumulates it.
func (op *CopyOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 1); err != nil {
		return err
	}
	gx := gxs[0]
	if gx == nil {
		return nil
	}
	dev, err := gradDevice(gx)
	if err != nil {
		return err
	}
	g, err := dev.CopyTensor(gy)
	if err != nil {
		return err
	}
	defer g.Release()
	return dev.Accumulate(gx, g)
}

// ConstantOp produces a tensor filled with one value.
type ConstantOp struct {
	shape tensor.Shape
	k     float32
	dev   *tensor.Device
}

// NewConstantOp creates a node producing shape filled with k on dev.
func NewConstantOp(shape tensor.Shape, k float32, dev *tensor.Device) *ConstantOp {
	return &ConstantOp{shape: shape, k: k, dev: dev}
}

// Name returns e.g. "Constant(42)".
func (op *ConstantOp) Name() string { return "Constant(" + formatFloat(op.k) + ")" }

// Device returns the bound device.
func (op *ConstantOp) Device() *tensor.Device { return op.dev }

// ForwardShape returns the bound shape.
func (op *ConstantOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 0); err != nil {
		return tensor.Shape{}, err
	}
	return op.shape, nil
}

// Forward allocates the filled tensor.
func (op *ConstantOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 0); err != nil {
		return nil, err
	}
	dev, err := boundDevice(op.Name(), op.dev)
	if err != nil {
		return nil, err
	}
	return dev.NewTensorFill(op.shape, op.k)
}

// Backward does nothing.
func (op *ConstantOp) Backward(_, _ *tensor.Tensor, _, _ []*tensor.Tensor) error { return nil }

// IdentityMatrixOp produces a size×size identity matrix.
type IdentityMatrixOp struct {
	size int
	dev  *tensor.Device
}

// NewIdentityMatrixOp creates an identity node on dev.
func NewIdentityMatrixOp(size int, dev *tensor.Device) *IdentityMatrixOp {
	return &IdentityMatrixOp{size: size, dev: dev}
}

// Name returns e.g. "IdentityMatrix(3)".
func (op *IdentityMatrixOp) Name() string { return "IdentityMatrix(" + strconv.Itoa(op.size) + ")" }

// Device returns the bound device.
func (op *IdentityMatrixOp) Device() *tensor.Device { return op.dev }

// ForwardShape returns [size,size].
func (op *IdentityMatrixOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 0); err != nil {
		return tensor.Shape{}, err
	}
	if op.size <= 0 {
		return tensor.Shape{}, errors.Wrapf(tensor.ErrInvalidArgument, "%s: size must be > 0", op.Name())
	}
	return tensor.NewShape([]int{op.size, op.size}, 1)
}

// Forward allocates the identity matrix.
func (op *IdentityMatrixOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 0); err != nil {
		return nil, err
	}
	dev, err := boundDevice(op.Name(), op.dev)
	if err != nil {
		return nil, err
	}
	return dev.Identity(op.size)
}

// Backward does nothing.
func (op *IdentityMatrixOp) Backward(_, _ *tensor.Tensor, _, _ []*tensor.Tensor) error { return nil }
