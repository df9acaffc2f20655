package host

import (
	"math"

	"github.com/born-ml/gradcore/internal/tensor"
)

// unaryKernel holds the forward value and the local derivative of one
// elementwise function. The derivative may use the input x, the forward
// output y or the constant k, whichever is cheapest.
type unaryKernel struct {
	fw func(x, k float32) float32
	bw func(x, y, k float32) float32
}

func f32(f func(float64) float64, x float32) float32 {
	return float32(f(float64(x)))
}

func sigmoid(x float32) float32 {
	// 0.5 + 0.5*tanh(x/2) stays finite for large |x|.
	return 0.5 + 0.5*f32(math.Tanh, 0.5*x)
}

func softplus(x float32) float32 {
	// max(x, 0) + log(1 + exp(-|x|))
	if x > 0 {
		return x + f32(math.Log1p, f32(math.Exp, -x))
	}
	return f32(math.Log1p, f32(math.Exp, x))
}

var unaryKernels = [...]unaryKernel{
	tensor.OpNegate: {
		fw: func(x, _ float32) float32 { return -x },
		bw: func(_, _, _ float32) float32 { return -1 },
	},
	tensor.OpSqrt: {
		fw: func(x, _ float32) float32 { return f32(math.Sqrt, x) },
		bw: func(_, y, _ float32) float32 { return 0.5 / y },
	},
	tensor.OpExp: {
		fw: func(x, _ float32) float32 { return f32(math.Exp, x) },
		bw: func(_, y, _ float32) float32 { return y },
	},
	tensor.OpLog: {
		fw: func(x, _ float32) float32 { return f32(math.Log, x) },
		bw: func(x, _, _ float32) float32 { return 1 / x },
	},
	tensor.OpTanh: {
		fw: func(x, _ float32) float32 { return f32(math.Tanh, x) },
		bw: func(_, y, _ float32) float32 { return 1 - y*y },
	},
	tensor.OpSigmoid: {
		fw: func(x, _ float32) float32 { return sigmoid(x) },
		bw: func(_, y, _ float32) float32 { return y * (1 - y) },
	},
	tensor.OpSoftplus: {
		fw: func(x, _ float32) float32 { return softplus(x) },
		bw: func(x, _, _ float32) float32 { return sigmoid(x) },
	},
	tensor.OpSin: {
		fw: func(x, _ float32) float32 { return f32(math.Sin, x) },
		bw: func(x, _, _ float32) float32 { return f32(math.Cos, x) },
	},
	tensor.OpCos: {
		fw: func(x, _ float32) float32 { return f32(math.Cos, x) },
		bw: func(x, _, _ float32) float32 { return -f32(math.Sin, x) },
	},
	tensor.OpTan: {
		fw: func(x, _ float32) float32 { return f32(math.Tan, x) },
		bw: func(_, y, _ float32) float32 { return 1 + y*y },
	},
	tensor.OpReLU: {
		fw: func(x, _ float32) float32 { return max(x, 0) },
		bw: func(x, _, _ float32) float32 { return step(x, 0) },
	},
	tensor.OpLReLU: {
		fw: func(x, _ float32) float32 { return leaky(x, 0.01) },
		bw: func(x, _, _ float32) float32 { return step(x, 0.01) },
	},
	tensor.OpPReLU: {
		fw: func(x, k float32) float32 { return leaky(x, k) },
		bw: func(x, _, k float32) float32 { return step(x, k) },
	},
	tensor.OpELU: {
		fw: func(x, k float32) float32 {
			if x > 0 {
				return x
			}
			return k * f32(math.Expm1, x)
		},
		bw: func(x, y, k float32) float32 {
			if x > 0 {
				return 1
			}
			return y + k
		},
	},
	tensor.OpAddConst: {
		fw: func(x, k float32) float32 { return x + k },
		bw: func(_, _, _ float32) float32 { return 1 },
	},
	tensor.OpSubtractConstL: {
		fw: func(x, k float32) float32 { return k - x },
		bw: func(_, _, _ float32) float32 { return -1 },
	},
	tensor.OpSubtractConstR: {
		fw: func(x, k float32) float32 { return x - k },
		bw: func(_, _, _ float32) float32 { return 1 },
	},
	tensor.OpMultiplyConst: {
		fw: func(x, k float32) float32 { return k * x },
		bw: func(_, _, k float32) float32 { return k },
	},
	tensor.OpDivideConstL: {
		fw: func(x, k float32) float32 { return k / x },
		bw: func(x, y, _ float32) float32 { return -y / x },
	},
	tensor.OpDivideConstR: {
		fw: func(x, k float32) float32 { return x / k },
		bw: func(_, _, k float32) float32 { return 1 / k },
	},
}

func leaky(x, a float32) float32 {
	if x > 0 {
		return x
	}
	return a * x
}

func step(x, a float32) float32 {
	if x > 0 {
		return 1
	}
	return a
}

// UnaryRange computes y[i] = f(x[i]; k) for i in [lo, hi).
func UnaryRange(op tensor.UnaryOp, k float32, y, x []float32, lo, hi int) {
	fw := unaryKernels[op].fw
	for i := lo; i < hi; i++ {
		y[i] = fw(x[i], k)
	}
}

// UnaryBackwardRange computes gx[i] += f'(x[i]; k) * gy[i] for i in [lo, hi).
func UnaryBackwardRange(op tensor.UnaryOp, k float32, gx, x, y, gy []float32, lo, hi int) {
	bw := unaryKernels[op].bw
	for i := lo; i < hi; i++ {
		gx[i] += bw(x[i], y[i], k) * gy[i]
	}
}

// AxpyRange computes y[i] += alpha * x[i] for i in [lo, hi).
func AxpyRange(alpha float32, x, y []float32, lo, hi int) {
	for i := lo; i < hi; i++ {
		y[i] += alpha * x[i]
	}
}
