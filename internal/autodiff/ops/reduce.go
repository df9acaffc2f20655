package ops

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/born-ml/gradcore/internal/tensor"
)

// SumOp adds the elements along one dimension.
//
// Backward broadcasts gy along dim into gx.
type SumOp struct {
	dim int
}

// NewSumOp creates a sum node.
func NewSumOp(dim int) *SumOp { return &SumOp{dim: dim} }

// Name returns e.g. "Sum(0)".
func (op *SumOp) Name() string { return "Sum(" + strconv.Itoa(op.dim) + ")" }

// Device returns nil: the output lives on the input's device.
func (op *SumOp) Device() *tensor.Device { return nil }

// ForwardShape sets dimension dim to 1.
func (op *SumOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	return reducedShape(op.Name(), xs, op.dim)
}

// Forward reduces x.
func (op *SumOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	return dev.Sum(xs[0], op.dim)
}

// Backward accumulates gy, tiled along dim, into gx.
func (op *SumOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 1); err != nil {
		return err
	}
	if gxs[0] == nil {
		return nil
	}
	if err := checkReducedGradient(op, gy, xs, gxs); err != nil {
		return err
	}
	return accumulate(gxs[0], gy)
}

// checkReducedGradient validates the accumulator and the output gradient
// of a single-input reduction.
func checkReducedGradient(op Operation, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkGradients(op.Name(), xs, gxs); err != nil {
		return err
	}
	want, err := op.ForwardShape([]tensor.Shape{xs[0].Shape()})
	if err != nil {
		return err
	}
	return checkOutputGradient(op.Name(), gy, want)
}

func reducedShape(name string, xs []tensor.Shape, dim int) (tensor.Shape, error) {
	if err := checkArity(name, len(xs), 1); err != nil {
		return tensor.Shape{}, err
	}
	if dim < 0 {
		return tensor.Shape{}, errors.Wrapf(tensor.ErrShape, "%s: negative dimension", name)
	}
	return xs[0].ResizeDim(dim, 1)
}

// LogSumExpOp computes log(sum(exp(x))) along one dimension.
//
// Backward accumulates softmax(x) * gy, where softmax(x) = exp(x - y).
type LogSumExpOp struct {
	dim int
}

// NewLogSumExpOp creates a log-sum-exp node.
func NewLogSumExpOp(dim int) *LogSumExpOp { return &LogSumExpOp{dim: dim} }

// Name returns e.g. "LogSumExp(0)".
func (op *LogSumExpOp) Name() string { return "LogSumExp(" + strconv.Itoa(op.dim) + ")" }

// Device returns nil: the output lives on the input's device.
func (op *LogSumExpOp) Device() *tensor.Device { return nil }

// ForwardShape sets dimension dim to 1.
func (op *LogSumExpOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	return reducedShape(op.Name(), xs, op.dim)
}

// Forward reduces x.
func (op *LogSumExpOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	return dev.LogSumExp(xs[0], op.dim)
}

// Backward accumulates exp(x - y) * gy into gx.
func (op *LogSumExpOp) Backward(y, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 1); err != nil {
		return err
	}
	gx := gxs[0]
	if gx == nil {
		return nil
	}
	if err := checkReducedGradient(op, gy, xs, gxs); err != nil {
		return err
	}
	if !y.Valid() || !y.Shape().Equal(gy.Shape()) {
		return errors.Wrapf(tensor.ErrShape, "%s: output has shape %s, want %s", op.Name(), y.Shape(), gy.Shape())
	}
	dev, err := gradDevice(gx)
	if err != nil {
		return err
	}
	diff, err := dev.Binary(tensor.OpSubtract, xs[0], y)
	if err != nil {
		return err
	}
	defer diff.Release()
	softmax, err := dev.Unary(tensor.OpExp, 0, diff)
	if err != nil {
		return err
	}
	defer softmax.Release()
	g, err := dev.Binary(tensor.OpMultiply, softmax, gy)
	if err != nil {
		return err
	}
	defer g.Release()
	return dev.Accumulate(gx, g)
}

// BatchSumOp adds the minibatch items.
//
// Backward adds gy into every item of gx.
type BatchSumOp struct{}

// NewBatchSumOp creates a batch sum node.
func NewBatchSumOp() *BatchSumOp { return &BatchSumOp{} }

// Name returns "BatchSum".
func (op *BatchSumOp) Name() string { return "BatchSum" }

// Device returns nil: the output lives on the input's device.
func (op *BatchSumOp) Device() *tensor.Device { return nil }

// ForwardShape sets the batch to 1.
func (op *BatchSumOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return tensor.Shape{}, err
	}
	return xs[0].ResizeBatch(1)
}

// Forward reduces the batch.
func (op *BatchSumOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	return dev.BatchSum(xs[0])
}

// Backward accumulates gy into every item of gx.
func (op *BatchSumOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 1); err != nil {
		return err
	}
	if gxs[0] == nil {
		return nil
	}
	if err := checkReducedGradient(op, gy, xs, gxs); err != nil {
		return err
	}
	return accumulate(gxs[0], gy)
}
