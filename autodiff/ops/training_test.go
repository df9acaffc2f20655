package ops_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradcore/autodiff/ops"
	"github.com/born-ml/gradcore/backend"
	"github.com/born-ml/gradcore/tensor"
)

// A linear softmax classifier on synthetic clusters, chained by hand: every
// node runs Forward in order, then Backward in reverse order with freshly
// zeroed gradient accumulators.

const (
	features = 2
	classes  = 3
)

// centers of the synthetic clusters, one row per class.
var centers = [classes][features]float32{{-2, 0}, {2, 0}, {0, 3}}

// param is a weight and its gradient accumulator.
type param struct {
	value, grad *tensor.Tensor
}

func (p *param) Value() *tensor.Tensor    { return p.value }
func (p *param) Gradient() *tensor.Tensor { return p.grad }

func newParam(dev *tensor.Device, dims ...int) (*param, error) {
	shape, err := tensor.NewShape(dims, 1)
	if err != nil {
		return nil, err
	}
	value, err := dev.RandomNormal(shape, 0, 0.1)
	if err != nil {
		return nil, err
	}
	grad, err := dev.NewTensorFill(shape, 0)
	if err != nil {
		return nil, err
	}
	return &param{value: value, grad: grad}, nil
}

// step applies p -= lr * grad and clears the gradient.
func (p *param) step(lr float32) error {
	dev := p.value.Device()
	delta, err := dev.Unary(tensor.OpMultiplyConst, -lr, p.grad)
	if err != nil {
		return err
	}
	defer delta.Release()
	if err := dev.Accumulate(p.value, delta); err != nil {
		return err
	}
	return p.grad.Reset(0)
}

// dataset samples n points per class around centers.
func dataset(dev *tensor.Device, n int) (*tensor.Tensor, []int, error) {
	shape, err := tensor.NewShape([]int{features}, n*classes)
	if err != nil {
		return nil, nil, err
	}
	noise, err := dev.RandomNormal(shape, 0, 0.7)
	if err != nil {
		return nil, nil, err
	}
	defer noise.Release()
	values, err := noise.ToVector()
	if err != nil {
		return nil, nil, err
	}
	ids := make([]int, n*classes)
	for i := range ids {
		ids[i] = i % classes
		for f := range features {
			values[i*features+f] += centers[ids[i]][f]
		}
	}
	x, err := dev.NewTensorByVector(shape, values)
	return x, ids, err
}

// model holds the nodes of logits = W·x + b and the summed loss.
type model struct {
	w, b     *param
	wIn, bIn *ops.ParameterInputOp
	matmul   ops.Operation
	add      ops.Operation
	loss     ops.Operation
	batchSum ops.Operation
}

func newModel(dev *tensor.Device, ids []int) (*model, error) {
	w, err := newParam(dev, classes, features)
	if err != nil {
		return nil, err
	}
	b, err := newParam(dev, classes)
	if err != nil {
		return nil, err
	}
	return &model{
		w: w, b: b,
		wIn:      ops.NewParameterInputOp(w),
		bIn:      ops.NewParameterInputOp(b),
		matmul:   ops.NewMatrixMultiplyOp(),
		add:      ops.NewAddOp(),
		loss:     ops.NewSparseSoftmaxCrossEntropyOp(ids, 0),
		batchSum: ops.NewBatchSumOp(),
	}, nil
}

// trainStep runs one forward and backward pass over x and updates the
// parameters. It returns the mean loss and the accuracy.
func (m *model) trainStep(x *tensor.Tensor, ids []int, lr float32) (float32, float64, error) {
	dev := x.Device()
	var owned []*tensor.Tensor
	defer func() {
		for _, t := range owned {
			t.Release()
		}
	}()
	run := func(op ops.Operation, xs ...*tensor.Tensor) (*tensor.Tensor, error) {
		y, err := op.Forward(xs)
		if err == nil {
			owned = append(owned, y)
		}
		return y, err
	}
	zeros := func(like *tensor.Tensor) (*tensor.Tensor, error) {
		g, err := dev.NewTensorFill(like.Shape(), 0)
		if err == nil {
			owned = append(owned, g)
		}
		return g, err
	}

	w, b := m.wIn.InnerValue(), m.bIn.InnerValue()
	wx, err := run(m.matmul, w, x)
	if err != nil {
		return 0, 0, err
	}
	logits, err := run(m.add, wx, b)
	if err != nil {
		return 0, 0, err
	}
	losses, err := run(m.loss, logits)
	if err != nil {
		return 0, 0, err
	}
	total, err := run(m.batchSum, losses)
	if err != nil {
		return 0, 0, err
	}

	gTotal, err := dev.NewTensorFill(total.Shape(), 1)
	if err != nil {
		return 0, 0, err
	}
	owned = append(owned, gTotal)
	gLosses, err := zeros(losses)
	if err != nil {
		return 0, 0, err
	}
	gLogits, err := zeros(logits)
	if err != nil {
		return 0, 0, err
	}
	gWx, err := zeros(wx)
	if err != nil {
		return 0, 0, err
	}
	gW, err := zeros(w)
	if err != nil {
		return 0, 0, err
	}
	gB, err := zeros(b)
	if err != nil {
		return 0, 0, err
	}

	steps := []struct {
		op      ops.Operation
		y, gy   *tensor.Tensor
		xs, gxs []*tensor.Tensor
	}{
		{m.batchSum, total, gTotal, []*tensor.Tensor{losses}, []*tensor.Tensor{gLosses}},
		{m.loss, losses, gLosses, []*tensor.Tensor{logits}, []*tensor.Tensor{gLogits}},
		{m.add, logits, gLogits, []*tensor.Tensor{wx, b}, []*tensor.Tensor{gWx, gB}},
		{m.matmul, wx, gWx, []*tensor.Tensor{w, x}, []*tensor.Tensor{gW, nil}},
		{m.wIn, w, gW, nil, nil},
		{m.bIn, b, gB, nil, nil},
	}
	for _, s := range steps {
		if err := s.op.Backward(s.y, s.gy, s.xs, s.gxs); err != nil {
			return 0, 0, err
		}
	}

	batch := float32(len(ids))
	if err := m.w.step(lr / batch); err != nil {
		return 0, 0, err
	}
	if err := m.b.step(lr / batch); err != nil {
		return 0, 0, err
	}

	loss, err := total.ToFloat()
	if err != nil {
		return 0, 0, err
	}
	scores, err := logits.ToVector()
	if err != nil {
		return 0, 0, err
	}
	return loss / batch, accuracy(scores, ids), nil
}

func accuracy(scores []float32, ids []int) float64 {
	correct := 0
	for i, id := range ids {
		row := scores[i*classes : (i+1)*classes]
		best := 0
		for c := range row {
			if row[c] > row[best] {
				best = c
			}
		}
		if best == id {
			correct++
		}
	}
	return float64(correct) / float64(len(ids))
}

func TestSoftmaxRegressionConverges(t *testing.T) {
	for _, desc := range []string{"naive:seed=2024", "cpu:workers=2,seed=2024"} {
		t.Run(desc, func(t *testing.T) {
			dev, err := backend.New(desc)
			require.NoError(t, err)
			defer dev.Close()
			trainAndCheck(t, dev)
		})
	}
}

func trainAndCheck(t *testing.T, dev *tensor.Device) {
	x, ids, err := dataset(dev, 50)
	require.NoError(t, err)
	m, err := newModel(dev, ids)
	require.NoError(t, err)

	first, _, err := m.trainStep(x, ids, 0.5)
	require.NoError(t, err)
	var loss float32
	var acc float64
	for range 100 {
		loss, acc, err = m.trainStep(x, ids, 0.5)
		require.NoError(t, err)
	}
	assert.Less(t, loss, first)
	assert.Greater(t, acc, 0.85)
}

func TestClassifierAccuracy(t *testing.T) {
	scores := []float32{
		1, 0, 0,
		0, 2, 1,
		0, 0, 3,
		5, 0, 0,
	}
	assert.InDelta(t, 0.75, accuracy(scores, []int{0, 1, 2, 1}), 1e-9)
}
