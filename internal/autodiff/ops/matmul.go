package ops

import "github.com/born-ml/gradcore/internal/tensor"

// MatrixMultiplyOp computes y = a·b per minibatch item. A batch-1 operand
// is shared by every item.
//
// Backward pass:
//   - ga += gy·bᵀ
//   - gb += aᵀ·gy
//
// Gradients of a shared operand are summed over the items.
type MatrixMultiplyOp struct{}

// NewMatrixMultiplyOp creates a matrix product node.
func NewMatrixMultiplyOp() *MatrixMultiplyOp { return &MatrixMultiplyOp{} }

// Name returns "MatrixMultiply".
func (op *MatrixMultiplyOp) Name() string { return "MatrixMultiply" }

// Device returns nil: the output lives on the first input's device.
func (op *MatrixMultiplyOp) Device() *tensor.Device { return nil }

// ForwardShape returns [rows(a), cols(b)].
func (op *MatrixMultiplyOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 2); err != nil {
		return tensor.Shape{}, err
	}
	return tensor.MatMulShape(xs[0], xs[1])
}

// Forward multiplies the inputs.
func (op *MatrixMultiplyOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 2); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	return dev.MatMul(xs[0], xs[1])
}

// Backward accumulates the gradients of both operands.
func (op *MatrixMultiplyOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 2); err != nil {
		return err
	}
	ga, gb := gxs[0], gxs[1]
	if ga == nil && gb == nil {
		return nil
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return err
	}
	return dev.MatMulBackward(xs[0], xs[1], gy, ga, gb)
}
