package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/gradcore/internal/tensor"
)

// PositiveOp is the identity: y = x.
type PositiveOp struct{}

// NewPositiveOp creates y = x.
func NewPositiveOp() *PositiveOp { return &PositiveOp{} }

// Name returns "Positive".
func (op *PositiveOp) Name() string { return "Positive" }

// Device returns nil: the output lives on the input's device.
func (op *PositiveOp) Device() *tensor.Device { return nil }

// ForwardShape returns the input shape.
func (op *PositiveOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return tensor.Shape{}, err
	}
	return xs[0], nil
}

// Forward returns a clone of x sharing its storage.
func (op *PositiveOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	if _, err := inputDevice(op.Name(), xs); err != nil {
		return nil, err
	}
	return xs[0].Clone(), nil
}

// Backward accumulates gy into gx.
func (op *PositiveOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 1); err != nil {
		return err
	}
	return accumulate(gxs[0], gy)
}

// ArithmeticOp combines two tensors elementwise with broadcasting along
// every axis and the batch: y = a (op) b.
//
//	Add      (1, 1)
//	Subtract (1, -1)
//	Multiply (b, a)
//	Divide   (1/b, -a/b²)
//
// Gradients along broadcast axes are summed.
type ArithmeticOp struct {
	kernel tensor.BinaryOp
}

// NewAddOp creates y = a + b.
func NewAddOp() *ArithmeticOp { return &ArithmeticOp{kernel: tensor.OpAdd} }

// NewSubtractOp creates y = a - b.
func NewSubtractOp() *ArithmeticOp { return &ArithmeticOp{kernel: tensor.OpSubtract} }

// NewMultiplyOp creates y = ab.
func NewMultiplyOp() *ArithmeticOp { return &ArithmeticOp{kernel: tensor.OpMultiply} }

// NewDivideOp creates y = a / b.
func NewDivideOp() *ArithmeticOp { return &ArithmeticOp{kernel: tensor.OpDivide} }

// Name returns the kernel name, e.g. "Add".
func (op *ArithmeticOp) Name() string { return op.kernel.String() }

// Device returns nil: the output lives on the first input's device.
func (op *ArithmeticOp) Device() *tensor.Device { return nil }

// ForwardShape broadcasts the two input shapes.
func (op *ArithmeticOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 2); err != nil {
		return tensor.Shape{}, err
	}
	return tensor.Broadcast(xs[0], xs[1])
}

// Forward applies the kernel.
func (op *ArithmeticOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 2); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	return dev.Binary(op.kernel, xs[0], xs[1])
}

// Backward accumulates the gradients of both operands.
func (op *ArithmeticOp) Backward(y, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 2); err != nil {
		return err
	}
	return binaryBackward(op.kernel, xs[0], xs[1], y, gy, gxs[0], gxs[1])
}

func binaryBackward(kernel tensor.BinaryOp, a, b, y, gy, ga, gb *tensor.Tensor) error {
	if ga == nil && gb == nil {
		return nil
	}
	g := ga
	if g == nil {
		g = gb
	}
	dev, err := gradDevice(g)
	if err != nil {
		return err
	}
	return dev.BinaryBackward(kernel, a, b, y, gy, ga, gb)
}

// ScalarOp combines a tensor x with a per-item scalar k.
//
// k must have the scalar shape; its batch broadcasts against x's. The L
// variants put k on the left (k - x, k / x), the R variants on the right.
// The gradient of k is summed over the volume of x.
type ScalarOp struct {
	kernel tensor.BinaryOp
	left   bool
}

// NewAddScalarOp creates y = x + k.
func NewAddScalarOp() *ScalarOp { return &ScalarOp{kernel: tensor.OpAdd} }

// NewSubtractScalarLOp creates y = k - x.
func NewSubtractScalarLOp() *ScalarOp { return &ScalarOp{kernel: tensor.OpSubtract, left: true} }

// NewSubtractScalarROp creates y = x - k.
func NewSubtractScalarROp() *ScalarOp { return &ScalarOp{kernel: tensor.OpSubtract} }

// NewMultiplyScalarOp creates y = kx.
func NewMultiplyScalarOp() *ScalarOp { return &ScalarOp{kernel: tensor.OpMultiply} }

// NewDivideScalarLOp creates y = k / x.
func NewDivideScalarLOp() *ScalarOp { return &ScalarOp{kernel: tensor.OpDivide, left: true} }

// NewDivideScalarROp creates y = x / k.
func NewDivideScalarROp() *ScalarOp { return &ScalarOp{kernel: tensor.OpDivide} }

// Name returns e.g. "AddScalar" or "SubtractScalarL".
func (op *ScalarOp) Name() string {
	name := op.kernel.String() + "Scalar"
	switch {
	case op.kernel == tensor.OpAdd || op.kernel == tensor.OpMultiply:
		return name
	case op.left:
		return name + "L"
	default:
		return name + "R"
	}
}

// Device returns nil: the output lives on x's device.
func (op *ScalarOp) Device() *tensor.Device { return nil }

// operands orders (x, k) the way the kernel consumes them.
func (op *ScalarOp) operands(x, k *tensor.Tensor) (a, b *tensor.Tensor) {
	if op.left {
		return k, x
	}
	return x, k
}

// ForwardShape checks that k is a scalar and broadcasts the batches.
func (op *ScalarOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 2); err != nil {
		return tensor.Shape{}, err
	}
	if !xs[1].IsScalar() {
		return tensor.Shape{}, errors.Wrapf(tensor.ErrShape, "%s: %s is not a scalar", op.Name(), xs[1])
	}
	return tensor.Broadcast(xs[0], xs[1])
}

// Forward applies the kernel to x and k.
func (op *ScalarOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 2); err != nil {
		return nil, err
	}
	if _, err := op.ForwardShape([]tensor.Shape{xs[0].Shape(), xs[1].Shape()}); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	a, b := op.operands(xs[0], xs[1])
	return dev.Binary(op.kernel, a, b)
}

// Backward accumulates the gradients of x and k.
func (op *ScalarOp) Backward(y, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 2); err != nil {
		return err
	}
	a, b := op.operands(xs[0], xs[1])
	ga, gb := op.operands(gxs[0], gxs[1])
	return binaryBackward(op.kernel, a, b, y, gy, ga, gb)
}
