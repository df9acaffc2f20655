package ops

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradcore/internal/backend/naive"
	"github.com/born-ml/gradcore/internal/tensor"
)

const (
	epsilonGrad = 1e-2
	tolerance   = 1e-2 // relative error tolerance for numerical gradients
)

var (
	gradPositive = []float32{0.5, 1.5, 0.8, 1.1, 0.3, 0.9, 1.3, 0.6, 0.7, 1.8, 0.4, 1.0}
	gradMixed    = []float32{0.5, -1.5, 0.8, -1.1, 0.3, -0.9, 1.3, -0.6, 0.7, -1.8, 0.4, -1.0}
)

func mapValues(xs []float32, f func(float64) float64) []float32 {
	out := make([]float32, len(xs))
	for i, x := range xs {
		out[i] = float32(f(float64(x)))
	}
	return out
}

func cloneInputs(inputs [][]float32) [][]float32 {
	out := make([][]float32, len(inputs))
	for i, v := range inputs {
		out[i] = append([]float32(nil), v...)
	}
	return out
}

func buildInputs(dev *tensor.Device, shapes []tensor.Shape, inputs [][]float32) []*tensor.Tensor {
	xs := make([]*tensor.Tensor, len(inputs))
	for i := range inputs {
		xs[i] = must.M1(dev.NewTensorByVector(shapes[i], inputs[i]))
	}
	return xs
}

// numericalGradients differentiates sum(op(xs)) by central differences.
func numericalGradients(dev *tensor.Device, op Operation, shapes []tensor.Shape, inputs [][]float32) [][]float32 {
	loss := func(vals [][]float32) float64 {
		xs := buildInputs(dev, shapes, vals)
		defer release(xs...)
		y := must.M1(op.Forward(xs))
		defer y.Release()
		var sum float64
		for _, v := range must.M1(y.ToVector()) {
			sum += float64(v)
		}
		return sum
	}

	grads := make([][]float32, len(inputs))
	for i := range inputs {
		grads[i] = make([]float32, len(inputs[i]))
		for j := range inputs[i] {
			vals := cloneInputs(inputs)
			original := vals[i][j]
			vals[i][j] = original + epsilonGrad
			step := float64(vals[i][j])
			fPlus := loss(vals)
			vals[i][j] = original - epsilonGrad
			step -= float64(vals[i][j])
			fMinus := loss(vals)
			grads[i][j] = float32((fPlus - fMinus) / step)
		}
	}
	return grads
}

// analyticalGradients runs Backward with a unit output gradient.
func analyticalGradients(dev *tensor.Device, op Operation, shapes []tensor.Shape, inputs [][]float32) [][]float32 {
	xs := buildInputs(dev, shapes, inputs)
	defer release(xs...)
	gxs := make([]*tensor.Tensor, len(xs))
	for i := range xs {
		gxs[i] = must.M1(dev.NewTensor(shapes[i]))
	}
	defer release(gxs...)

	y := must.M1(op.Forward(xs))
	defer y.Release()
	gy := must.M1(dev.NewTensorFill(y.Shape(), 1))
	defer gy.Release()
	must.M(op.Backward(y, gy, xs, gxs))

	grads := make([][]float32, len(gxs))
	for i, g := range gxs {
		grads[i] = must.M1(g.ToVector())
	}
	return grads
}

// checkGradient compares the backward pass of op with finite differences.
func checkGradient(t *testing.T, op Operation, shapes []tensor.Shape, inputs ...[]float32) {
	t.Helper()
	dev := naive.NewDevice()
	defer dev.Close()
	analytical := analyticalGradients(dev, op, shapes, inputs)
	numerical := numericalGradients(dev, op, shapes, inputs)
	for i := range inputs {
		assertNear(t, numerical[i], analytical[i], tolerance, "%s: input %d", op.Name(), i)
	}
}

func TestElementwise(t *testing.T) {
	third := float32(1) / 3
	tests := []struct {
		op    *ElementwiseOp
		name  string
		input []float32
		y     []float32
		grad  []float32
	}{
		{NewNegativeOp(), "Negative", argValues,
			mapValues(argValues, func(x float64) float64 { return -x }),
			filled(12, -1)},
		{NewAddConstOp(3), "AddConst(3)", argValues,
			[]float32{4, 5, 6, 7, 3, 3, 3, 3, 2, 1, 0, -1},
			filled(12, 1)},
		{NewSubtractConstROp(3), "SubtractConstR(3)", argValues,
			[]float32{-2, -1, 0, 1, -3, -3, -3, -3, -4, -5, -6, -7},
			filled(12, 1)},
		{NewSubtractConstLOp(3), "SubtractConstL(3)", argValues,
			[]float32{2, 1, 0, -1, 3, 3, 3, 3, 4, 5, 6, 7},
			filled(12, -1)},
		{NewMultiplyConstOp(3), "MultiplyConst(3)", argValues,
			[]float32{3, 6, 9, 12, 0, 0, 0, 0, -3, -6, -9, -12},
			filled(12, 3)},
		{NewDivideConstROp(3), "DivideConstR(3)", argValues,
			mapValues(argValues, func(x float64) float64 { return x / 3 }),
			filled(12, third)},
		{NewDivideConstLOp(3), "DivideConstL(3)", argNonZero,
			[]float32{3, 1.5, 1, .75, 3, -3, 3, -3, -3, -1.5, -1, -.75},
			[]float32{-3, -.75, -third, -.1875, -3, -3, -3, -3, -3, -.75, -third, -.1875}},
		{NewSqrtOp(), "Sqrt", argNonNegative,
			[]float32{1, 1.41421356, 1.73205041, 2, .1, .1, .1, .1, 1, 2, 3, 4},
			[]float32{.5, .5 / 1.41421356, .5 / 1.73205041, .25, 5, 5, 5, 5, .5, .25, .5 / 3, .125}},
		{NewExpOp(), "Exp", argValues,
			[]float32{2.7182818, 7.3890561, 20.085537, 54.598150, 1, 1, 1, 1,
				.36787944, .13533528, .049787068, .018315639},
			[]float32{2.7182818, 7.3890561, 20.085537, 54.598150, 1, 1, 1, 1,
				.36787944, .13533528, .049787068, .018315639}},
		{NewLogOp(), "Log", argNonNegative,
			[]float32{0, .69314718, 1.0986123, 1.3862944, -4.6051702, -4.6051702, -4.6051702, -4.6051702,
				0, 1.3862944, 2.1972246, 2.7725887},
			[]float32{1, .5, third, .25, 100, 100, 100, 100, 1, .25, 1.0 / 9, .0625}},
		{NewTanhOp(), "Tanh", argValues,
			[]float32{.76159416, .96402758, .99505475, .99932930, 0, 0, 0, 0,
				-.76159416, -.96402758, -.99505475, -.99932930},
			[]float32{.41997434, .070650825, .0098660372, .0013409507, 1, 1, 1, 1,
				.41997434, .070650825, .0098660372, .0013409507}},
		{NewSinOp(), "Sin", argValues,
			[]float32{.84147098, .90929743, .14112001, -.75680250, 0, 0, 0, 0,
				-.84147098, -.90929743, -.14112001, .75680250},
			[]float32{.54030231, -.41614684, -.98999250, -.65364362, 1, 1, 1, 1,
				.54030231, -.41614684, -.98999250, -.65364362}},
		{NewCosOp(), "Cos", argValues,
			[]float32{.54030231, -.41614684, -.98999250, -.65364362, 1, 1, 1, 1,
				.54030231, -.41614684, -.98999250, -.65364362},
			[]float32{-.84147098, -.90929743, -.14112001, .75680250, 0, 0, 0, 0,
				.84147098, .90929743, .14112001, -.75680250}},
		{NewTanOp(), "Tan", argValues,
			[]float32{1.5574077, -2.1850399, -.14254654, 1.1578213, 0, 0, 0, 0,
				-1.5574077, 2.1850399, .14254654, -1.1578213},
			[]float32{3.4255188, 5.7743992, 1.0203195, 2.3405501, 1, 1, 1, 1,
				3.4255188, 5.7743992, 1.0203195, 2.3405501}},
		{NewSigmoidOp(), "Sigmoid", argValues,
			[]float32{.73105858, .88079708, .95257413, .98201379, .5, .5, .5, .5,
				.26894142, .11920292, .047425873, .017986210},
			[]float32{.19661193, .10499359, .045176660, .017662706, .25, .25, .25, .25,
				.19661193, .10499359, .045176660, .017662706}},
		{NewSoftplusOp(), "Softplus", argValues,
			[]float32{1.3132617, 2.1269280, 3.0485874, 4.0181499, .69314718, .69314718, .69314718, .69314718,
				.31326169, .12692801, .048587352, .018149928},
			[]float32{.73105858, .88079708, .95257413, .98201379, .5, .5, .5, .5,
				.26894142, .11920292, .047425873, .017986210}},
		{NewReLUOp(), "ReLU", argValues,
			[]float32{1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0},
			[]float32{1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0}},
		{NewLReLUOp(), "LReLU", argValues,
			[]float32{1, 2, 3, 4, 0, 0, 0, 0, -.01, -.02, -.03, -.04},
			[]float32{1, 1, 1, 1, .01, .01, .01, .01, .01, .01, .01, .01}},
		{NewPReLUOp(.1), "PReLU(0.1)", argValues,
			[]float32{1, 2, 3, 4, 0, 0, 0, 0, -.1, -.2, -.3, -.4},
			[]float32{1, 1, 1, 1, .1, .1, .1, .1, .1, .1, .1, .1}},
		{NewELUOp(1), "ELU(1)", argValues,
			[]float32{1, 2, 3, 4, 0, 0, 0, 0, -.63212056, -.86466472, -.95021293, -.98168436},
			[]float32{1, 1, 1, 1, 1, 1, 1, 1, .36787944, .13533528, .049787068, .018315639}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t).setup1(tt.input)
			got, y := f.runOnes(tt.op)
			assert.Equal(t, tt.name, tt.op.Name())
			assert.True(t, shapeOf(t, 3, 2, 2).Equal(got))
			assert.Nil(t, tt.op.Device())
			assertNear(t, tt.y, values(t, y), 1e-5, "forward")
			assertNear(t, tt.grad, f.grad(0), 1e-5, "backward")
		})
	}
}

func TestPositive(t *testing.T) {
	f := newFixture(t).setup1(argValues)
	op := NewPositiveOp()
	got, y := f.runOnes(op)
	assert.Equal(t, "Positive", op.Name())
	assert.True(t, shapeOf(t, 3, 2, 2).Equal(got))
	assert.Equal(t, argValues, values(t, y))
	assert.Equal(t, filled(12, 1), f.grad(0))

	// the result is independent of the input
	require.NoError(t, y.Reset(7))
	assert.Equal(t, argValues, values(t, f.xs[0]))
}

func TestScalar(t *testing.T) {
	third := float32(1) / 3
	tests := []struct {
		op     *ScalarOp
		name   string
		input  []float32
		y      []float32
		gx, gk []float32
	}{
		{NewAddScalarOp(), "AddScalar", argValues,
			[]float32{2, 3, 4, 5, 2, 2, 2, 2, 2, 1, 0, -1},
			filled(12, 1), []float32{4, 4, 4}},
		{NewSubtractScalarROp(), "SubtractScalarR", argValues,
			[]float32{0, 1, 2, 3, -2, -2, -2, -2, -4, -5, -6, -7},
			filled(12, 1), []float32{-4, -4, -4}},
		{NewSubtractScalarLOp(), "SubtractScalarL", argValues,
			[]float32{0, -1, -2, -3, 2, 2, 2, 2, 4, 5, 6, 7},
			filled(12, -1), []float32{4, 4, 4}},
		{NewMultiplyScalarOp(), "MultiplyScalar", argValues,
			[]float32{1, 2, 3, 4, 0, 0, 0, 0, -3, -6, -9, -12},
			[]float32{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3}, []float32{10, 0, -10}},
		{NewDivideScalarROp(), "DivideScalarR", argValues,
			[]float32{1, 2, 3, 4, 0, 0, 0, 0, -third, -2 * third, -1, -4 * third},
			[]float32{1, 1, 1, 1, .5, .5, .5, .5, third, third, third, third},
			[]float32{-10, 0, 10.0 / 9}},
		{NewDivideScalarLOp(), "DivideScalarL", argNonZero,
			[]float32{1, .5, third, .25, 2, -2, 2, -2, -3, -1.5, -1, -.75},
			[]float32{-1, -.25, -1.0 / 9, -.0625, -2, -2, -2, -2, -3, -.75, -third, -.1875},
			[]float32{1.75 + third, 0, -1.75 - third}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t).setupScalar(tt.input)
			got, y := f.runOnes(tt.op)
			assert.Equal(t, tt.name, tt.op.Name())
			assert.True(t, shapeOf(t, 3, 2, 2).Equal(got))
			assert.Nil(t, tt.op.Device())
			assertNear(t, tt.y, values(t, y), 1e-5, "forward")
			assertNear(t, tt.gx, f.grad(0), 1e-5, "gx")
			assertNear(t, tt.gk, f.grad(1), 1e-5, "gk")
		})
	}
}

func TestScalarRejectsNonScalar(t *testing.T) {
	f := newFixture(t).setup2(argValues, argSecondValues)
	op := NewMultiplyScalarOp()
	_, err := op.ForwardShape(f.shapes())
	assert.ErrorIs(t, err, tensor.ErrShape)
	_, err = op.Forward(f.xs)
	assert.ErrorIs(t, err, tensor.ErrShape)
}

func TestArithmetic(t *testing.T) {
	third := float32(1) / 3
	tests := []struct {
		op     *ArithmeticOp
		name   string
		y      []float32
		ga, gb []float32
	}{
		{NewAddOp(), "Add",
			[]float32{2, 3, 4, 5, 2, 2, 2, 2, 2, 1, 0, -1},
			filled(12, 1), filled(12, 1)},
		{NewSubtractOp(), "Subtract",
			[]float32{0, 1, 2, 3, -2, -2, -2, -2, -4, -5, -6, -7},
			filled(12, 1), filled(12, -1)},
		{NewMultiplyOp(), "Multiply",
			[]float32{1, 2, 3, 4, 0, 0, 0, 0, -3, -6, -9, -12},
			argSecondValues, argValues},
		{NewDivideOp(), "Divide",
			[]float32{1, 2, 3, 4, 0, 0, 0, 0, -third, -2 * third, -1, -4 * third},
			[]float32{1, 1, 1, 1, .5, .5, .5, .5, third, third, third, third},
			[]float32{-1, -2, -3, -4, 0, 0, 0, 0, 1.0 / 9, 2.0 / 9, third, 4.0 / 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t).setup2(argValues, argSecondValues)
			got, y := f.runOnes(tt.op)
			assert.Equal(t, tt.name, tt.op.Name())
			assert.True(t, shapeOf(t, 3, 2, 2).Equal(got))
			assert.Nil(t, tt.op.Device())
			assertNear(t, tt.y, values(t, y), 1e-5, "forward")
			assertNear(t, tt.ga, f.grad(0), 1e-5, "ga")
			assertNear(t, tt.gb, f.grad(1), 1e-5, "gb")
		})
	}
}

func TestArithmeticBroadcastsBatch(t *testing.T) {
	f := newFixture(t).setup1(argValues)
	f.arg(shapeOf(t, 1, 2, 2), []float32{1, 2, 3, 4})

	op := NewMultiplyOp()
	got, y := f.runOnes(op)
	assert.True(t, shapeOf(t, 3, 2, 2).Equal(got))
	assert.Equal(t, []float32{1, 4, 9, 16, 0, 0, 0, 0, -1, -4, -9, -16}, values(t, y))
	assert.Equal(t, []float32{1, 2, 3, 4, 1, 2, 3, 4, 1, 2, 3, 4}, f.grad(0))
	// summed over the batch
	assert.Equal(t, []float32{0, 0, 0, 0}, f.grad(1))

	_, err := op.ForwardShape([]tensor.Shape{shapeOf(t, 3, 2, 2), shapeOf(t, 2, 2, 2)})
	assert.ErrorIs(t, err, tensor.ErrShape)
}

func TestElementwiseGradient(t *testing.T) {
	shapes := []tensor.Shape{shapeOf(t, 3, 2, 2)}
	small := mapValues(gradMixed, func(x float64) float64 { return x / 2 })
	tests := []struct {
		op    Operation
		input []float32
	}{
		{NewNegativeOp(), gradMixed},
		{NewAddConstOp(2.5), gradMixed},
		{NewSubtractConstLOp(2.5), gradMixed},
		{NewMultiplyConstOp(-1.5), gradMixed},
		{NewDivideConstLOp(2), gradPositive},
		{NewDivideConstROp(2), gradMixed},
		{NewSqrtOp(), gradPositive},
		{NewExpOp(), gradMixed},
		{NewLogOp(), gradPositive},
		{NewTanhOp(), gradMixed},
		{NewSinOp(), gradMixed},
		{NewCosOp(), gradMixed},
		{NewTanOp(), small},
		{NewSigmoidOp(), gradMixed},
		{NewSoftplusOp(), gradMixed},
		{NewReLUOp(), gradMixed},
		{NewLReLUOp(), gradMixed},
		{NewPReLUOp(.2), gradMixed},
		{NewELUOp(1.5), gradMixed},
		{NewPositiveOp(), gradMixed},
	}
	for _, tt := range tests {
		t.Run(tt.op.Name(), func(t *testing.T) {
			checkGradient(t, tt.op, shapes, tt.input)
		})
	}
}

func TestArithmeticGradient(t *testing.T) {
	b := []float32{1.5, -0.8}
	shapes := []tensor.Shape{shapeOf(t, 3, 2, 2), shapeOf(t, 1, 2)}
	for _, op := range []Operation{NewAddOp(), NewSubtractOp(), NewMultiplyOp(), NewDivideOp()} {
		t.Run(op.Name(), func(t *testing.T) {
			checkGradient(t, op, shapes, gradMixed, b)
		})
	}

	k := []float32{1.5, -0.7, 2}
	scalarShapes := []tensor.Shape{shapeOf(t, 3, 2, 2), shapeOf(t, 3)}
	for _, op := range []Operation{
		NewAddScalarOp(), NewSubtractScalarLOp(), NewSubtractScalarROp(),
		NewMultiplyScalarOp(), NewDivideScalarROp(),
	} {
		t.Run(op.Name(), func(t *testing.T) {
			checkGradient(t, op, scalarShapes, gradMixed, k)
		})
	}
	t.Run("DivideScalarL", func(t *testing.T) {
		checkGradient(t, NewDivideScalarLOp(), scalarShapes, gradPositive, k)
	})
}

func TestElementwiseKernelAccessor(t *testing.T) {
	assert.Equal(t, tensor.OpExp, NewExpOp().Kernel())
	assert.Equal(t, tensor.OpELU, NewELUOp(1).Kernel())
	assert.Equal(t, float32(2), NewELUOp(2).k)
}
