package ops

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradcore/internal/backend/naive"
	"github.com/born-ml/gradcore/internal/tensor"
)

var (
	argValues        = []float32{1, 2, 3, 4, 0, 0, 0, 0, -1, -2, -3, -4}
	argNonNegative   = []float32{1, 2, 3, 4, .01, .01, .01, .01, 1, 4, 9, 16}
	argNonZero       = []float32{1, 2, 3, 4, 1, -1, 1, -1, -1, -2, -3, -4}
	argSecondValues  = []float32{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3}
	argScalarValues  = []float32{1, 2, 3}
	argOneHotTargets = []float32{1, 0, 0, 1, 1, 0, 0, 1, 1, 0, 0, 1}
)

// shapeOf builds a shape, failing the test on error.
func shapeOf(tb testing.TB, batch int, dims ...int) tensor.Shape {
	tb.Helper()
	s, err := tensor.NewShape(dims, batch)
	require.NoError(tb, err)
	return s
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// fixture holds node inputs and zero-initialized gradient accumulators on a
// seeded naive device.
type fixture struct {
	t   *testing.T
	dev *tensor.Device
	xs  []*tensor.Tensor
	gxs []*tensor.Tensor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := naive.NewDevice(tensor.WithSeed(12345))
	t.Cleanup(func() { _ = dev.Close() })
	return &fixture{t: t, dev: dev}
}

// arg adds an input and its gradient accumulator.
func (f *fixture) arg(shape tensor.Shape, values []float32) *fixture {
	f.t.Helper()
	f.xs = append(f.xs, must.M1(f.dev.NewTensorByVector(shape, values)))
	f.gxs = append(f.gxs, must.M1(f.dev.NewTensor(shape)))
	return f
}

// setup1 adds one [2,2]x3 input.
func (f *fixture) setup1(values []float32) *fixture {
	return f.arg(shapeOf(f.t, 3, 2, 2), values)
}

// setup2 adds two [2,2]x3 inputs.
func (f *fixture) setup2(a, b []float32) *fixture {
	return f.setup1(a).setup1(b)
}

// setupScalar adds a [2,2]x3 input and a []x3 scalar.
func (f *fixture) setupScalar(values []float32) *fixture {
	return f.setup1(values).arg(shapeOf(f.t, 3), argScalarValues)
}

func (f *fixture) shapes() []tensor.Shape {
	out := make([]tensor.Shape, len(f.xs))
	for i, x := range f.xs {
		out[i] = x.Shape()
	}
	return out
}

func (f *fixture) resetGradients() {
	f.t.Helper()
	for _, g := range f.gxs {
		require.NoError(f.t, g.Reset(0))
	}
}

// run checks shape inference, then runs forward and backward with gy.
func (f *fixture) run(op Operation, gy *tensor.Tensor) (tensor.Shape, *tensor.Tensor) {
	f.t.Helper()
	shape, err := op.ForwardShape(f.shapes())
	require.NoError(f.t, err, op.Name())
	y, err := op.Forward(f.xs)
	require.NoError(f.t, err, op.Name())
	require.NoError(f.t, op.Backward(y, gy, f.xs, f.gxs), op.Name())
	return shape, y
}

// runOnes runs op with a unit output gradient of the inferred shape.
func (f *fixture) runOnes(op Operation) (tensor.Shape, *tensor.Tensor) {
	f.t.Helper()
	shape := must.M1(op.ForwardShape(f.shapes()))
	return f.run(op, must.M1(f.dev.NewTensorFill(shape, 1)))
}

func (f *fixture) grad(i int) []float32 {
	f.t.Helper()
	return must.M1(f.gxs[i].ToVector())
}

// assertNear compares with a tolerance relative to the expected magnitude.
func assertNear(t *testing.T, want, got []float32, tol float64, msgAndArgs ...any) {
	t.Helper()
	if !assert.Len(t, got, len(want), msgAndArgs...) {
		return
	}
	for i := range want {
		w, g := float64(want[i]), float64(got[i])
		if math.Abs(w-g) > tol*math.Max(1, math.Abs(w)) {
			assert.Failf(t, "values differ",
				"index %d: want %v, got %v (%v)", i, want[i], got[i], msgAndArgs)
			return
		}
	}
}

func values(t *testing.T, x *tensor.Tensor) []float32 {
	t.Helper()
	return must.M1(x.ToVector())
}

func TestInput(t *testing.T) {
	f := newFixture(t)
	shape := shapeOf(t, 3, 2, 2)
	op := NewInputOp(shape, argValues, f.dev)

	got, y := f.run(op, must.M1(f.dev.NewTensorFill(shape, 1)))
	assert.Equal(t, "Input", op.Name())
	assert.True(t, shape.Equal(got))
	assert.Same(t, f.dev, op.Device())
	assert.Equal(t, argValues, values(t, y))

	bad := NewInputOp(shape, argValues[:5], f.dev)
	_, err := bad.ForwardShape(nil)
	assert.True(t, errors.Is(err, tensor.ErrShape))
	_, err = bad.Forward(nil)
	assert.True(t, errors.Is(err, tensor.ErrShape))
}

type testParameter struct {
	value, grad *tensor.Tensor
}

func (p *testParameter) Value() *tensor.Tensor    { return p.value }
func (p *testParameter) Gradient() *tensor.Tensor { return p.grad }

func TestParameterInput(t *testing.T) {
	f := newFixture(t)
	shape := shapeOf(t, 1, 2, 2)
	param := &testParameter{
		value: must.M1(f.dev.NewTensorFill(shape, 42)),
		grad:  must.M1(f.dev.NewTensor(shape)),
	}
	op := NewParameterInputOp(param)

	got := must.M1(op.ForwardShape(nil))
	assert.True(t, shape.Equal(got))

	_, err := op.Forward(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoForwardValue))

	value := op.InnerValue()
	assert.Same(t, param.value, value)
	require.NoError(t, op.Backward(value, must.M1(f.dev.NewTensorFill(shape, 1)), nil, nil))

	assert.Equal(t, "ParameterInput", op.Name())
	assert.Same(t, f.dev, op.Device())
	assert.Equal(t, filled(4, 42), values(t, param.value))
	assert.Equal(t, filled(4, 1), values(t, param.grad))
}

func TestCopy(t *testing.T) {
	f := newFixture(t).setup1(argValues)
	dev2 := naive.NewDevice()
	defer dev2.Close()
	shape := shapeOf(t, 3, 2, 2)
	op := NewCopyOp(dev2)

	gy := must.M1(dev2.NewTensorByVector(shape, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}))
	got, y := f.run(op, gy)

	assert.Equal(t, "Copy", op.Name())
	assert.True(t, shape.Equal(got))
	assert.Same(t, dev2, op.Device())
	assert.Same(t, dev2, y.Device())
	assert.Equal(t, argValues, values(t, y))
	assert.Equal(t, values(t, gy), f.grad(0))
}

func TestConstant(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		shape tensor.Shape
		k     float32
		name  string
	}{
		{shapeOf(t, 1), 0, "Constant(0)"},
		{shapeOf(t, 2, 2), 1, "Constant(1)"},
		{shapeOf(t, 3, 2, 3), -1, "Constant(-1)"},
		{shapeOf(t, 4, 2, 3, 5), 42, "Constant(42)"},
		{shapeOf(t, 5, 2, 3, 5, 7), -123, "Constant(-123)"},
		{shapeOf(t, 1, 2), 0.5, "Constant(0.5)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewConstantOp(tt.shape, tt.k, f.dev)
			got, y := f.run(op, must.M1(f.dev.NewTensorFill(tt.shape, 1)))
			assert.Equal(t, tt.name, op.Name())
			assert.True(t, tt.shape.Equal(got))
			assert.Same(t, f.dev, op.Device())
			assert.Equal(t, filled(tt.shape.Size(), tt.k), values(t, y))
		})
	}
}

func TestIdentityMatrix(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		size  int
		shape tensor.Shape
		data  []float32
	}{
		{1, shapeOf(t, 1), []float32{1}},
		{2, shapeOf(t, 1, 2, 2), []float32{1, 0, 0, 1}},
		{3, shapeOf(t, 1, 3, 3), []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}},
		{4, shapeOf(t, 1, 4, 4), []float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}},
	}
	for _, tt := range tests {
		op := NewIdentityMatrixOp(tt.size, f.dev)
		got, y := f.run(op, must.M1(f.dev.NewTensorFill(tt.shape, 1)))
		assert.Equal(t, "IdentityMatrix("+strconv.Itoa(tt.size)+")", op.Name())
		assert.True(t, tt.shape.Equal(got))
		assert.Equal(t, tt.data, values(t, y))
	}

	_, err := NewIdentityMatrixOp(0, f.dev).ForwardShape(nil)
	assert.True(t, errors.Is(err, tensor.ErrInvalidArgument))
}

func TestLeafWithoutDevice(t *testing.T) {
	_, err := NewConstantOp(tensor.Shape{}, 1, nil).Forward(nil)
	assert.True(t, errors.Is(err, tensor.ErrInvalidArgument))
}

func TestPick(t *testing.T) {
	tests := []struct {
		dim   int
		ids   []int
		shape tensor.Shape
		y     []float32
		grad  []float32
	}{
		{0, []int{0}, shapeOf(t, 3, 1, 2),
			[]float32{1, 3, 0, 0, -1, -3},
			[]float32{1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0}},
		{0, []int{0, 0, 0}, shapeOf(t, 3, 1, 2),
			[]float32{1, 3, 0, 0, -1, -3},
			[]float32{1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0}},
		{0, []int{1, 1, 1}, shapeOf(t, 3, 1, 2),
			[]float32{2, 4, 0, 0, -2, -4},
			[]float32{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1}},
		{1, []int{0, 0, 1}, shapeOf(t, 3, 2),
			[]float32{1, 2, 0, 0, -3, -4},
			[]float32{1, 1, 0, 0, 1, 1, 0, 0, 0, 0, 1, 1}},
		{2, []int{0}, shapeOf(t, 3, 2, 2),
			argValues,
			filled(12, 1)},
	}
	f := newFixture(t).setup1(argValues)
	for _, tt := range tests {
		op := NewPickOp(tt.ids, tt.dim)
		f.resetGradients()
		got, y := f.runOnes(op)
		assert.Equal(t, "Pick("+strconv.Itoa(tt.dim)+")", op.Name())
		assert.True(t, tt.shape.Equal(got), "got %s", got)
		assert.Nil(t, op.Device())
		assert.Equal(t, tt.y, values(t, y))
		assert.Equal(t, tt.grad, f.grad(0))
	}
}

func TestPickInvalid(t *testing.T) {
	f := newFixture(t).setup1(argValues)
	for _, op := range []*PickOp{
		NewPickOp(nil, 0),
		NewPickOp([]int{2}, 0),
		NewPickOp([]int{0, 1}, 0),
		NewPickOp([]int{-1}, 1),
	} {
		_, err := op.ForwardShape(f.shapes())
		assert.True(t, errors.Is(err, tensor.ErrShape), "%v", op.ids)
		_, err = op.Forward(f.xs)
		assert.True(t, errors.Is(err, tensor.ErrShape), "%v", op.ids)
	}
}

func TestSlice(t *testing.T) {
	tests := []struct {
		dim, lower, upper int
		name              string
		shape             tensor.Shape
		y                 []float32
		grad              []float32
	}{
		{0, 0, 1, "Slice(0,0:1)", shapeOf(t, 3, 1, 2),
			[]float32{1, 3, 0, 0, -1, -3},
			[]float32{1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0}},
		{0, 1, 2, "Slice(0,1:2)", shapeOf(t, 3, 1, 2),
			[]float32{2, 4, 0, 0, -2, -4},
			[]float32{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1}},
		{0, 0, 2, "Slice(0,0:2)", shapeOf(t, 3, 2, 2), argValues, filled(12, 1)},
		{1, 0, 1, "Slice(1,0:1)", shapeOf(t, 3, 2, 1),
			[]float32{1, 2, 0, 0, -1, -2},
			[]float32{1, 1, 0, 0, 1, 1, 0, 0, 1, 1, 0, 0}},
		{1, 1, 2, "Slice(1,1:2)", shapeOf(t, 3, 2, 1),
			[]float32{3, 4, 0, 0, -3, -4},
			[]float32{0, 0, 1, 1, 0, 0, 1, 1, 0, 0, 1, 1}},
		{1, 0, 2, "Slice(1,0:2)", shapeOf(t, 3, 2, 2), argValues, filled(12, 1)},
		{2, 0, 1, "Slice(2,0:1)", shapeOf(t, 3, 2, 2), argValues, filled(12, 1)},
		{3, 0, 1, "Slice(3,0:1)", shapeOf(t, 3, 2, 2), argValues, filled(12, 1)},
	}
	f := newFixture(t).setup1(argValues)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewSliceOp(tt.dim, tt.lower, tt.upper)
			f.resetGradients()
			got, y := f.runOnes(op)
			assert.Equal(t, tt.name, op.Name())
			assert.True(t, tt.shape.Equal(got), "got %s", got)
			assert.Nil(t, op.Device())
			assert.Equal(t, tt.y, values(t, y))
			assert.Equal(t, tt.grad, f.grad(0))
		})
	}

	for _, op := range []*SliceOp{NewSliceOp(0, 1, 1), NewSliceOp(0, 0, 3), NewSliceOp(2, 0, 2), NewSliceOp(-1, 0, 1)} {
		_, err := op.ForwardShape(f.shapes())
		assert.True(t, errors.Is(err, tensor.ErrShape), op.Name())
	}
}

func TestConcat(t *testing.T) {
	tests := []struct {
		dim   int
		shape tensor.Shape
		y     []float32
		gy    []float32
	}{
		{0, shapeOf(t, 3, 4, 2),
			[]float32{1, 2, 1, 1, 3, 4, 1, 1, 0, 0, 2, 2, 0, 0, 2, 2, -1, -2, 3, 3, -3, -4, 3, 3},
			[]float32{1, 1, 2, 2, 1, 1, 2, 2, 1, 1, 2, 2, 1, 1, 2, 2, 1, 1, 2, 2, 1, 1, 2, 2}},
		{1, shapeOf(t, 3, 2, 4),
			[]float32{1, 2, 3, 4, 1, 1, 1, 1, 0, 0, 0, 0, 2, 2, 2, 2, -1, -2, -3, -4, 3, 3, 3, 3},
			[]float32{1, 1, 1, 1, 2, 2, 2, 2, 1, 1, 1, 1, 2, 2, 2, 2, 1, 1, 1, 1, 2, 2, 2, 2}},
		{2, shapeOf(t, 3, 2, 2, 2),
			[]float32{1, 2, 3, 4, 1, 1, 1, 1, 0, 0, 0, 0, 2, 2, 2, 2, -1, -2, -3, -4, 3, 3, 3, 3},
			[]float32{1, 1, 1, 1, 2, 2, 2, 2, 1, 1, 1, 1, 2, 2, 2, 2, 1, 1, 1, 1, 2, 2, 2, 2}},
		{3, shapeOf(t, 3, 2, 2, 1, 2),
			[]float32{1, 2, 3, 4, 1, 1, 1, 1, 0, 0, 0, 0, 2, 2, 2, 2, -1, -2, -3, -4, 3, 3, 3, 3},
			[]float32{1, 1, 1, 1, 2, 2, 2, 2, 1, 1, 1, 1, 2, 2, 2, 2, 1, 1, 1, 1, 2, 2, 2, 2}},
	}
	f := newFixture(t).setup2(argValues, argSecondValues)
	for _, tt := range tests {
		op := NewConcatOp(tt.dim)
		f.resetGradients()
		got, y := f.run(op, must.M1(f.dev.NewTensorByVector(tt.shape, tt.gy)))
		assert.Equal(t, "Concat("+strconv.Itoa(tt.dim)+")", op.Name())
		assert.True(t, tt.shape.Equal(got), "got %s", got)
		assert.Nil(t, op.Device())
		assert.Equal(t, tt.y, values(t, y))
		assert.Equal(t, filled(12, 1), f.grad(0))
		assert.Equal(t, filled(12, 2), f.grad(1))
	}
}

func TestConcatBroadcastsBatchOne(t *testing.T) {
	f := newFixture(t)
	f.arg(shapeOf(t, 3, 2), []float32{1, 2, 3, 4, 5, 6})
	f.arg(shapeOf(t, 1, 1), []float32{9})
	op := NewConcatOp(0)

	got, y := f.runOnes(op)
	assert.True(t, shapeOf(t, 3, 3).Equal(got))
	assert.Equal(t, []float32{1, 2, 9, 3, 4, 9, 5, 6, 9}, values(t, y))
	assert.Equal(t, filled(6, 1), f.grad(0))
	// the shared input collects the gradient of every item
	assert.Equal(t, []float32{3}, f.grad(1))
}

func TestConcatThenSliceIsIdentity(t *testing.T) {
	f := newFixture(t).setup2(argValues, argSecondValues)
	joined := must.M1(NewConcatOp(0).Forward(f.xs))
	for i, window := range [][2]int{{0, 2}, {2, 4}} {
		part := must.M1(NewSliceOp(0, window[0], window[1]).Forward([]*tensor.Tensor{joined}))
		assert.True(t, f.xs[i].Shape().Equal(part.Shape()))
		assert.Equal(t, values(t, f.xs[i]), values(t, part))
	}
}

func TestReshape(t *testing.T) {
	targets := []tensor.Shape{
		shapeOf(t, 1, 4), shapeOf(t, 1, 1, 4), shapeOf(t, 1, 1, 1, 4),
		shapeOf(t, 1, 2, 2), shapeOf(t, 1, 2, 1, 2), shapeOf(t, 1, 1, 2, 2),
		shapeOf(t, 3, 4), shapeOf(t, 3, 1, 4), shapeOf(t, 3, 1, 1, 4),
		shapeOf(t, 3, 2, 2), shapeOf(t, 3, 2, 1, 2), shapeOf(t, 3, 1, 2, 2),
	}
	f := newFixture(t).setup1(argValues)
	for _, target := range targets {
		op := NewReshapeOp(target)
		f.resetGradients()
		got, y := f.runOnes(op)
		want := must.M1(target.ResizeBatch(3))
		assert.Equal(t, "Reshape("+target.String()+")", op.Name())
		assert.True(t, want.Equal(got), "got %s", got)
		assert.Nil(t, op.Device())
		assert.Equal(t, argValues, values(t, y))
		assert.Equal(t, filled(12, 1), f.grad(0))
	}

	for _, target := range []tensor.Shape{shapeOf(t, 1, 3), shapeOf(t, 2, 4)} {
		_, err := NewReshapeOp(target).ForwardShape(f.shapes())
		assert.True(t, errors.Is(err, tensor.ErrShape), target.String())
	}
}

func TestFlatten(t *testing.T) {
	f := newFixture(t).setup1(argValues)
	op := NewFlattenOp()
	got, y := f.runOnes(op)
	assert.Equal(t, "Flatten", op.Name())
	assert.True(t, shapeOf(t, 3, 4).Equal(got))
	assert.Equal(t, argValues, values(t, y))
	assert.Equal(t, filled(12, 1), f.grad(0))
}

func TestArityMismatch(t *testing.T) {
	f := newFixture(t).setup1(argValues)
	ops := []Operation{
		NewAddOp(), NewMatrixMultiplyOp(), NewAddScalarOp(), NewSoftmaxCrossEntropyOp(0),
	}
	for _, op := range ops {
		_, err := op.ForwardShape(f.shapes())
		assert.True(t, errors.Is(err, tensor.ErrShape), op.Name())
		_, err = op.Forward(f.xs)
		assert.True(t, errors.Is(err, tensor.ErrShape), op.Name())
		err = op.Backward(f.xs[0], f.xs[0], f.xs, f.gxs)
		assert.True(t, errors.Is(err, tensor.ErrShape), op.Name())
	}
	_, err := NewConcatOp(0).Forward(nil)
	assert.True(t, errors.Is(err, tensor.ErrShape))
	_, err = NewConstantOp(tensor.Shape{}, 1, f.dev).ForwardShape(f.shapes())
	assert.True(t, errors.Is(err, tensor.ErrShape))
}

func TestBackwardSkipsNilGradients(t *testing.T) {
	f := newFixture(t).setup2(argValues, argSecondValues)
	op := NewMultiplyOp()
	y := must.M1(op.Forward(f.xs))
	gy := must.M1(f.dev.NewTensorFill(y.Shape(), 1))

	require.NoError(t, op.Backward(y, gy, f.xs, []*tensor.Tensor{nil, f.gxs[1]}))
	assert.Equal(t, filled(12, 0), f.grad(0))
	assert.Equal(t, argValues, f.grad(1))

	require.NoError(t, op.Backward(y, gy, f.xs, []*tensor.Tensor{nil, nil}))
}

func TestBackwardAccumulates(t *testing.T) {
	nodes := []Operation{
		NewSliceOp(1, 0, 1), NewPickOp([]int{1}, 0), NewSumOp(0), NewLogSumExpOp(1),
		NewBroadcastOp(2, 3), NewTanhOp(), NewMultiplyConstOp(3), NewTransposeOp(),
		NewSparseSoftmaxCrossEntropyOp([]int{0}, 0), NewBatchSumOp(), NewReshapeOp(shapeOf(t, 1, 4)),
	}
	for _, op := range nodes {
		t.Run(op.Name(), func(t *testing.T) {
			f := newFixture(t).setup1(argValues)
			f.runOnes(op)
			once := f.grad(0)

			f.resetGradients()
			_, y := f.runOnes(op)
			gy := must.M1(f.dev.NewTensorFill(y.Shape(), 1))
			require.NoError(t, op.Backward(y, gy, f.xs, f.gxs))

			twice := f.grad(0)
			for i := range once {
				assert.InDelta(t, 2*once[i], twice[i], 1e-5, "index %d", i)
			}
		})
	}
}

func TestGradientOnAnotherDevice(t *testing.T) {
	f := newFixture(t).setup1(argValues)
	other := naive.NewDevice()
	defer other.Close()
	op := NewExpOp()
	y := must.M1(op.Forward(f.xs))
	gy := must.M1(other.NewTensorFill(y.Shape(), 1))

	err := op.Backward(y, gy, f.xs, f.gxs)
	assert.True(t, errors.Is(err, tensor.ErrDeviceMismatch))
	assert.Equal(t, filled(12, 0), f.grad(0))
}
