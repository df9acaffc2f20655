// Package ops defines the differentiable operation nodes.
//
// A node holds only its static configuration (axis, constant, ids, target
// shape or device). It never retains inputs or outputs: callers pass values
// to Forward and, later, the same values together with the output gradient
// to Backward.
//
// Backward accumulates. For every input i with gxs[i] != nil it adds the
// local gradient contribution scaled by gy into gxs[i]; it never overwrites.
// Leaf nodes (Input, Constant, IdentityMatrix, random generators) have an
// empty Backward.
//
// Supported operations:
//   - Leaves: Input, ParameterInput, Copy, Constant, IdentityMatrix,
//     RandomBernoulli, RandomUniform, RandomNormal, RandomLogNormal
//   - Shape: Pick, Slice, Concat, Reshape, Flatten, Broadcast, Transpose
//   - Arithmetic: Positive, Negative, *Const, *Scalar, Add, Subtract,
//     Multiply, Divide, MatrixMultiply
//   - Math: Sqrt, Exp, Log, Tanh, Sin, Cos, Tan, Sigmoid, Softplus,
//     ReLU, LReLU, PReLU, ELU
//   - Reductions and losses: Sum, LogSumExp, BatchSum,
//     SoftmaxCrossEntropy, SparseSoftmaxCrossEntropy
package ops

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/born-ml/gradcore/internal/tensor"
)

// ErrNoForwardValue is returned by nodes that cannot produce a value from
// Forward, such as ParameterInput, whose value lives in the bound parameter.
var ErrNoForwardValue = errors.New("operation has no forward value")

// Operation is a differentiable node.
type Operation interface {
	// Name returns a stable identity including the configuration,
	// e.g. "AddConst(3)" or "Slice(0,0:1)".
	Name() string

	// Device returns the device owning the output. Nil means the output
	// lives on the device of the first input.
	Device() *tensor.Device

	// ForwardShape infers the output shape without touching any memory.
	ForwardShape(xs []tensor.Shape) (tensor.Shape, error)

	// Forward computes the output value.
	Forward(xs []*tensor.Tensor) (*tensor.Tensor, error)

	// Backward accumulates into gxs the gradients of the inputs, given the
	// forward output y and its gradient gy. A nil gxs[i] skips input i.
	Backward(y, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error
}

// checkArity fails with ErrShape unless exactly n inputs are given.
func checkArity(name string, got, n int) error {
	if got != n {
		return errors.Wrapf(tensor.ErrShape, "%s: expected %d inputs, got %d", name, n, got)
	}
	return nil
}

// checkBackward validates the argument lists of Backward.
func checkBackward(name string, xs, gxs []*tensor.Tensor, n int) error {
	if err := checkArity(name, len(xs), n); err != nil {
		return err
	}
	return checkArity(name, len(gxs), n)
}

// inputDevice returns the device of the first input.
func inputDevice(name string, xs []*tensor.Tensor) (*tensor.Device, error) {
	if len(xs) == 0 {
		return nil, errors.Wrapf(tensor.ErrShape, "%s: no inputs", name)
	}
	dev := xs[0].Device()
	if dev == nil {
		return nil, errors.Wrapf(tensor.ErrInvalidTensor, "%s: input 0", name)
	}
	return dev, nil
}

// boundDevice returns the device a leaf node was created for.
func boundDevice(name string, dev *tensor.Device) (*tensor.Device, error) {
	if dev == nil {
		return nil, errors.Wrapf(tensor.ErrInvalidArgument, "%s: no device", name)
	}
	return dev, nil
}

// gradDevice returns the device of a gradient accumulator.
func gradDevice(g *tensor.Tensor) (*tensor.Device, error) {
	dev := g.Device()
	if dev == nil {
		return nil, errors.Wrap(tensor.ErrInvalidTensor, "gradient accumulator")
	}
	return dev, nil
}

// checkGradients fails with ErrShape unless every non-nil gradient has the
// shape of its input. Multi-step backward passes call it before the first
// write.
func checkGradients(name string, xs, gxs []*tensor.Tensor) error {
	for i, g := range gxs {
		if g != nil && !g.Shape().Equal(xs[i].Shape()) {
			return errors.Wrapf(tensor.ErrShape, "%s: gradient %d has shape %s, input has %s",
				name, i, g.Shape(), xs[i].Shape())
		}
	}
	return nil
}

// checkOutputGradient fails with ErrShape unless gy has the forward shape.
func checkOutputGradient(name string, gy *tensor.Tensor, want tensor.Shape) error {
	if !gy.Valid() {
		return errors.Wrapf(tensor.ErrInvalidTensor, "%s: output gradient", name)
	}
	if !gy.Shape().Equal(want) {
		return errors.Wrapf(tensor.ErrShape, "%s: output gradient has shape %s, want %s", name, gy.Shape(), want)
	}
	return nil
}

// checkDevice fails unless every non-nil tensor lives on dev.
func checkDevice(name string, dev *tensor.Device, ts ...*tensor.Tensor) error {
	for i, t := range ts {
		if t == nil {
			continue
		}
		d := t.Device()
		if d == nil {
			return errors.Wrapf(tensor.ErrInvalidTensor, "%s: argument %d", name, i)
		}
		if d != dev {
			return errors.Wrapf(tensor.ErrDeviceMismatch, "%s: argument %d lives on %s, want %s", name, i, d, dev)
		}
	}
	return nil
}

// formatFloat renders a constant in its shortest float32 form.
func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// release drops temporaries; nil entries are ignored.
func release(ts ...*tensor.Tensor) {
	for _, t := range ts {
		if t != nil {
			t.Release()
		}
	}
}
