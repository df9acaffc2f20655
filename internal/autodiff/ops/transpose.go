package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/gradcore/internal/tensor"
)

// TransposeOp swaps the two dimensions of a matrix: y = xᵀ.
//
// Backward accumulates gyᵀ into gx.
type TransposeOp struct{}

// NewTransposeOp creates a transpose node.
func NewTransposeOp() *TransposeOp { return &TransposeOp{} }

// Name returns "Transpose".
func (op *TransposeOp) Name() string { return "Transpose" }

// Device returns nil: the output lives on the input's device.
func (op *TransposeOp) Device() *tensor.Device { return nil }

// ForwardShape swaps dimensions 0 and 1.
func (op *TransposeOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return tensor.Shape{}, err
	}
	x := xs[0]
	if !x.IsMatrix() {
		return tensor.Shape{}, errors.Wrapf(tensor.ErrShape, "Transpose: %s is not a matrix", x)
	}
	return tensor.NewShape([]int{x.Dim(1), x.Dim(0)}, x.Batch())
}

// Forward transposes every minibatch item.
func (op *TransposeOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	return dev.Transpose(xs[0])
}

// Backward accumulates the transpose of gy into gx.
func (op *TransposeOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
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
	return dev.TransposeBackward(gx, gy)
}
