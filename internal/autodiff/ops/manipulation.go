package ops

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/born-ml/gradcore/internal/tensor"
)

// PickOp gathers one slice of a dimension per minibatch item.
//
// With a single id every item uses it; otherwise ids has one entry per item.
// Backward scatters gy back to the picked positions.
type PickOp struct {
	ids []int
	dim int
}

// NewPickOp creates a pick node. ids is copied.
func NewPickOp(ids []int, dim int) *PickOp {
	return &PickOp{ids: append([]int(nil), ids...), dim: dim}
}

// Name returns e.g. "Pick(0)".
func (op *PickOp) Name() string { return "Pick(" + strconv.Itoa(op.dim) + ")" }

// Device returns nil: the output lives on the input's device.
func (op *PickOp) Device() *tensor.Device { return nil }

// ForwardShape sets dimension dim to 1 and the batch to the number of ids
// when larger.
func (op *PickOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return tensor.Shape{}, err
	}
	return tensor.PickShape(xs[0], op.ids, op.dim)
}

// Forward gathers the picked slices.
func (op *PickOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	return dev.Pick(xs[0], op.ids, op.dim)
}

// Backward scatters gy into gx.
func (op *PickOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 1); err != nil {
		return err
	}
	if gxs[0] == nil {
		return nil
	}
	dev, err := gradDevice(gxs[0])
	if err != nil {
		return err
	}
	return dev.PickBackward(gxs[0], gy, op.ids, op.dim)
}

// SliceOp extracts the window [lower, upper) of one dimension.
type SliceOp struct {
	dim, lower, upper int
}

// NewSliceOp creates a slice node.
func NewSliceOp(dim, lower, upper int) *SliceOp {
	return &SliceOp{dim: dim, lower: lower, upper: upper}
}

// Name returns e.g. "Slice(0,0:1)".
func (op *SliceOp) Name() string {
	return "Slice(" + strconv.Itoa(op.dim) + "," + strconv.Itoa(op.lower) + ":" + strconv.Itoa(op.upper) + ")"
}

// Device returns nil: the output lives on the input's device.
func (op *SliceOp) Device() *tensor.Device { return nil }

// ForwardShape resizes dimension dim to the window length.
func (op *SliceOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return tensor.Shape{}, err
	}
	x := xs[0]
	if op.dim < 0 || op.lower < 0 || op.lower >= op.upper || op.upper > x.Dim(op.dim) {
		return tensor.Shape{}, errors.Wrapf(tensor.ErrShape, "%s: invalid window for %s", op.Name(), x)
	}
	return x.ResizeDim(op.dim, op.upper-op.lower)
}

// Forward copies the window.
func (op *SliceOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	return dev.Slice(xs[0], op.dim, op.lower, op.upper)
}

// Backward adds gy into the window of gx.
func (op *SliceOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 1); err != nil {
		return err
	}
	if gxs[0] == nil {
		return nil
	}
	dev, err := gradDevice(gxs[0])
	if err != nil {
		return err
	}
	return dev.SliceBackward(gxs[0], gy, op.dim, op.lower)
}

// ConcatOp joins any number of inputs along one dimension.
type ConcatOp struct {
	dim int
}

// NewConcatOp creates a concat node.
func NewConcatOp(dim int) *ConcatOp {
	return &ConcatOp{dim: dim}
}

// Name returns e.g. "Concat(0)".
func (op *ConcatOp) Name() string { return "Concat(" + strconv.Itoa(op.dim) + ")" }

// Device returns nil: the output lives on the first input's device.
func (op *ConcatOp) Device() *tensor.Device { return nil }

// ForwardShape sums the sizes of dimension dim.
func (op *ConcatOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	return tensor.ConcatShape(xs, op.dim)
}

// Forward joins the inputs.
func (op *ConcatOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	return dev.Concat(xs, op.dim)
}

// Backward splits gy along dim and accumulates every part into the
// matching input gradient. Batch-1 inputs receive the sum over items.
func (op *ConcatOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if len(xs) == 0 {
		return errors.Wrapf(tensor.ErrShape, "%s: no inputs", op.Name())
	}
	if err := checkBackward(op.Name(), xs, gxs, len(xs)); err != nil {
		return err
	}
	if err := checkGradients(op.Name(), xs, gxs); err != nil {
		return err
	}
	shapes := make([]tensor.Shape, len(xs))
	for i, x := range xs {
		shapes[i] = x.Shape()
	}
	want, err := op.ForwardShape(shapes)
	if err != nil {
		return err
	}
	if err := checkOutputGradient(op.Name(), gy, want); err != nil {
		return err
	}
	dev := gy.Device()
	if err := checkDevice(op.Name(), dev, gxs...); err != nil {
		return err
	}

	// Slice every part first so that a failure leaves gxs untouched.
	parts := make([]*tensor.Tensor, len(xs))
	defer func() {
		for _, part := range parts {
			part.Release()
		}
	}()
	offset := 0
	for i, x := range xs {
		n := x.Shape().Dim(op.dim)
		if gxs[i] != nil {
			if parts[i], err = dev.Slice(gy, op.dim, offset, offset+n); err != nil {
				return err
			}
		}
		offset += n
	}
	for i, part := range parts {
		if part == nil {
			continue
		}
		if err := dev.Accumulate(gxs[i], part); err != nil {
			return errors.Wrapf(err, "%s: input %d", op.Name(), i)
		}
	}
	return nil
}

// ReshapeOp changes the dimensions without changing the values.
//
// The target batch must be 1 (keep the input's batch) or equal the input's.
type ReshapeOp struct {
	target tensor.Shape
}

// NewReshapeOp creates a reshape node.
func NewReshapeOp(target tensor.Shape) *ReshapeOp {
	return &ReshapeOp{target: target}
}

// Name returns e.g. "Reshape([4]x3)".
func (op *ReshapeOp) Name() string { return "Reshape(" + op.target.String() + ")" }

// Device returns nil: the output lives on the input's device.
func (op *ReshapeOp) Device() *tensor.Device { return nil }

// ForwardShape returns the target with the input's batch.
func (op *ReshapeOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return tensor.Shape{}, err
	}
	return tensor.ReshapeShape(xs[0], op.target)
}

// Forward copies x with the new shape.
func (op *ReshapeOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	return dev.Reshape(xs[0], op.target)
}

// Backward reshapes gy back and accumulates it.
func (op *ReshapeOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 1); err != nil {
		return err
	}
	return reshapeBackward(gxs[0], gy)
}

func reshapeBackward(gx, gy *tensor.Tensor) error {
	if gx == nil {
		return nil
	}
	dev, err := gradDevice(gx)
	if err != nil {
		return err
	}
	g, err := dev.Reshape(gy, gx.Shape())
	if err != nil {
		return err
	}
	defer g.Release()
	return dev.Accumulate(gx, g)
}

// FlattenOp reshapes its input into a column vector.
type FlattenOp struct{}

// NewFlattenOp creates a flatten node.
func NewFlattenOp() *FlattenOp { return &FlattenOp{} }

// Name returns "Flatten".
func (op *FlattenOp) Name() string { return "Flatten" }

// Device returns nil: the output lives on the input's device.
func (op *FlattenOp) Device() *tensor.Device { return nil }

// ForwardShape returns [volume] with the input's batch.
func (op *FlattenOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return tensor.Shape{}, err
	}
	return tensor.NewShape([]int{xs[0].Volume()}, xs[0].Batch())
}

// Forward copies x as a column vector.
func (op *FlattenOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	shape, err := op.ForwardShape([]tensor.Shape{xs[0].Shape()})
	if err != nil {
		return nil, err
	}
	return dev.Reshape(xs[0], shape)
}

// Backward reshapes gy back and accumulates it.
func (op *FlattenOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 1); err != nil {
		return err
	}
	return reshapeBackward(gxs[0], gy)
}

// BroadcastOp tiles a size-1 dimension.
type BroadcastOp struct {
	dim, size int
}

// NewBroadcastOp creates a broadcast node.
func NewBroadcastOp(dim, size int) *BroadcastOp {
	return &BroadcastOp{dim: dim, size: size}
}

// Name returns e.g. "Broadcast(2,3)".
func (op *BroadcastOp) Name() string {
	return "Broadcast(" + strconv.Itoa(op.dim) + "," + strconv.Itoa(op.size) + ")"
}

// Device returns nil: the output lives on the input's device.
func (op *BroadcastOp) Device() *tensor.Device { return nil }

// ForwardShape resizes dimension dim, which must be 1, to size.
func (op *BroadcastOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return tensor.Shape{}, err
	}
	if op.dim < 0 || op.size <= 0 || xs[0].Dim(op.dim) != 1 {
		return tensor.Shape{}, errors.Wrapf(tensor.ErrShape, "%s: cannot broadcast %s", op.Name(), xs[0])
	}
	return xs[0].ResizeDim(op.dim, op.size)
}

// Forward tiles x.
func (op *BroadcastOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	return dev.Broadcast(xs[0], op.dim, op.size)
}

// Backward sums gy along dim into gx.
func (op *BroadcastOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 1); err != nil {
		return err
	}
	return accumulate(gxs[0], gy)
}

// accumulate adds gy into gx, reducing or tiling as their shapes require.
func accumulate(gx, gy *tensor.Tensor) error {
	if gx == nil {
		return nil
	}
	dev, err := gradDevice(gx)
	if err != nil {
		return err
	}
	return dev.Accumulate(gx, gy)
}
