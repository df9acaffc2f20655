package ops

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/born-ml/gradcore/internal/tensor"
)

// logSoftmax computes x - logsumexp(x, dim).
func logSoftmax(dev *tensor.Device, x *tensor.Tensor, dim int) (*tensor.Tensor, error) {
	lse, err := dev.LogSumExp(x, dim)
	if err != nil {
		return nil, err
	}
	defer lse.Release()
	return dev.Binary(tensor.OpSubtract, x, lse)
}

// SoftmaxCrossEntropyOp computes y = -Σ t·log softmax(x) along one
// dimension, for logits x and a dense target distribution t.
//
// Backward pass:
//   - gx += (softmax(x) - t) * gy
//   - gt += -log softmax(x) * gy
type SoftmaxCrossEntropyOp struct {
	dim int
}

// NewSoftmaxCrossEntropyOp creates a dense cross-entropy node.
func NewSoftmaxCrossEntropyOp(dim int) *SoftmaxCrossEntropyOp {
	return &SoftmaxCrossEntropyOp{dim: dim}
}

// Name returns e.g. "SoftmaxCrossEntropy(0)".
func (op *SoftmaxCrossEntropyOp) Name() string {
	return "SoftmaxCrossEntropy(" + strconv.Itoa(op.dim) + ")"
}

// Device returns nil: the output lives on x's device.
func (op *SoftmaxCrossEntropyOp) Device() *tensor.Device { return nil }

// ForwardShape requires x and t to have the same dimensions and sets dim
// to 1.
func (op *SoftmaxCrossEntropyOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 2); err != nil {
		return tensor.Shape{}, err
	}
	if op.dim < 0 {
		return tensor.Shape{}, errors.Wrapf(tensor.ErrShape, "%s: negative dimension", op.Name())
	}
	x, t := xs[0], xs[1]
	if !x.HasSameDims(t) {
		return tensor.Shape{}, errors.Wrapf(tensor.ErrShape, "%s: logits %s and target %s differ", op.Name(), x, t)
	}
	r, err := tensor.Broadcast(x, t)
	if err != nil {
		return tensor.Shape{}, err
	}
	return r.ResizeDim(op.dim, 1)
}

// Forward computes the loss.
func (op *SoftmaxCrossEntropyOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
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
	logsm, err := logSoftmax(dev, xs[0], op.dim)
	if err != nil {
		return nil, err
	}
	defer logsm.Release()
	prod, err := dev.Binary(tensor.OpMultiply, xs[1], logsm)
	if err != nil {
		return nil, err
	}
	defer prod.Release()
	sum, err := dev.Sum(prod, op.dim)
	if err != nil {
		return nil, err
	}
	defer sum.Release()
	return dev.Unary(tensor.OpNegate, 0, sum)
}

// Backward accumulates the gradients of x and t. Both are computed before
// either accumulator is written.
func (op *SoftmaxCrossEntropyOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 2); err != nil {
		return err
	}
	gx, gt := gxs[0], gxs[1]
	if gx == nil && gt == nil {
		return nil
	}
	if err := checkGradients(op.Name(), xs, gxs); err != nil {
		return err
	}
	want, err := op.ForwardShape([]tensor.Shape{xs[0].Shape(), xs[1].Shape()})
	if err != nil {
		return err
	}
	if err := checkOutputGradient(op.Name(), gy, want); err != nil {
		return err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return err
	}
	if err := checkDevice(op.Name(), dev, xs[1], gy, gx, gt); err != nil {
		return err
	}
	logsm, err := logSoftmax(dev, xs[0], op.dim)
	if err != nil {
		return err
	}
	defer logsm.Release()

	var dx, dt *tensor.Tensor
	defer func() {
		dx.Release()
		dt.Release()
	}()
	if gx != nil {
		softmax, err := dev.Unary(tensor.OpExp, 0, logsm)
		if err != nil {
			return err
		}
		diff, err := dev.Binary(tensor.OpSubtract, softmax, xs[1])
		softmax.Release()
		if err != nil {
			return err
		}
		dx, err = dev.Binary(tensor.OpMultiply, diff, gy)
		diff.Release()
		if err != nil {
			return err
		}
	}
	if gt != nil {
		neg, err := dev.Unary(tensor.OpNegate, 0, logsm)
		if err != nil {
			return err
		}
		dt, err = dev.Binary(tensor.OpMultiply, neg, gy)
		neg.Release()
		if err != nil {
			return err
		}
	}

	if dx != nil {
		if err := dev.Accumulate(gx, dx); err != nil {
			return err
		}
	}
	if dt != nil {
		return dev.Accumulate(gt, dt)
	}
	return nil
}

// SparseSoftmaxCrossEntropyOp computes y = -log softmax(x)[id] along one
// dimension, with one target id per minibatch item (or one id shared by
// every item).
//
// Backward accumulates (softmax(x) - onehot(id)) * gy into gx.
type SparseSoftmaxCrossEntropyOp struct {
	ids []int
	dim int
}

// NewSparseSoftmaxCrossEntropyOp creates a sparse cross-entropy node.
// ids is copied.
func NewSparseSoftmaxCrossEntropyOp(ids []int, dim int) *SparseSoftmaxCrossEntropyOp {
	return &SparseSoftmaxCrossEntropyOp{ids: append([]int(nil), ids...), dim: dim}
}

// Name returns e.g. "SparseSoftmaxCrossEntropy(0)".
func (op *SparseSoftmaxCrossEntropyOp) Name() string {
	return "SparseSoftmaxCrossEntropy(" + strconv.Itoa(op.dim) + ")"
}

// Device returns nil: the output lives on x's device.
func (op *SparseSoftmaxCrossEntropyOp) Device() *tensor.Device { return nil }

// ForwardShape sets dim to 1 and the batch to the number of ids when
// larger.
func (op *SparseSoftmaxCrossEntropyOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return tensor.Shape{}, err
	}
	return tensor.PickShape(xs[0], op.ids, op.dim)
}

// Forward computes the loss.
func (op *SparseSoftmaxCrossEntropyOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	logsm, err := logSoftmax(dev, xs[0], op.dim)
	if err != nil {
		return nil, err
	}
	defer logsm.Release()
	picked, err := dev.Pick(logsm, op.ids, op.dim)
	if err != nil {
		return nil, err
	}
	defer picked.Release()
	return dev.Unary(tensor.OpNegate, 0, picked)
}

// Backward accumulates softmax(x) * gy into gx, then subtracts gy at the
// picked positions.
func (op *SparseSoftmaxCrossEntropyOp) Backward(_, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
	if err := checkBackward(op.Name(), xs, gxs, 1); err != nil {
		return err
	}
	gx := gxs[0]
	if gx == nil {
		return nil
	}
	if err := checkGradients(op.Name(), xs, gxs); err != nil {
		return err
	}
	want, err := tensor.PickShape(gx.Shape(), op.ids, op.dim)
	if err != nil {
		return err
	}
	if err := checkOutputGradient(op.Name(), gy, want); err != nil {
		return err
	}
	dev, err := gradDevice(gx)
	if err != nil {
		return err
	}
	if err := checkDevice(op.Name(), dev, xs[0], gy); err != nil {
		return err
	}
	logsm, err := logSoftmax(dev, xs[0], op.dim)
	if err != nil {
		return err
	}
	defer logsm.Release()
	softmax, err := dev.Unary(tensor.OpExp, 0, logsm)
	if err != nil {
		return err
	}
	defer softmax.Release()
	g, err := dev.Binary(tensor.OpMultiply, softmax, gy)
	if err != nil {
		return err
	}
	defer g.Release()
	neg, err := dev.Unary(tensor.OpNegate, 0, gy)
	if err != nil {
		return err
	}
	defer neg.Release()

	if err := dev.Accumulate(gx, g); err != nil {
		return err
	}
	return dev.PickBackward(gx, neg, op.ids, op.dim)
}
