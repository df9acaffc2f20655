package ops

import "github.com/born-ml/gradcore/internal/tensor"

// ElementwiseOp applies one unary kernel to every element: y = f(x; k).
//
// Backward accumulates f'(x; k) * gy through the kernel's derivative:
//
//	Negative -1            Sqrt     1/(2y)
//	Exp      y             Log      1/x
//	Tanh     1-y²          Sigmoid  y(1-y)
//	Sin      cos(x)        Cos      -sin(x)
//	Tan      1+y²          Softplus sigmoid(x)
//	ReLU     x>0 ? 1 : 0   LReLU    x>0 ? 1 : 0.01
//	PReLU(k) x>0 ? 1 : k   ELU(k)   x>0 ? 1 : y+k
//
// The constant variants (AddConst, SubtractConstL/R, MultiplyConst,
// DivideConstL/R) use the same kernels with k as the constant operand.
type ElementwiseOp struct {
	kernel tensor.UnaryOp
	k      float32
	hasK   bool
}

func elementwise(kernel tensor.UnaryOp) *ElementwiseOp {
	return &ElementwiseOp{kernel: kernel}
}

func elementwiseK(kernel tensor.UnaryOp, k float32) *ElementwiseOp {
	return &ElementwiseOp{kernel: kernel, k: k, hasK: true}
}

// NewNegativeOp creates y = -x.
func NewNegativeOp() *ElementwiseOp { return elementwise(tensor.OpNegate) }

// NewAddConstOp creates y = x + k.
func NewAddConstOp(k float32) *ElementwiseOp { return elementwiseK(tensor.OpAddConst, k) }

// NewSubtractConstLOp creates y = k - x.
func NewSubtractConstLOp(k float32) *ElementwiseOp { return elementwiseK(tensor.OpSubtractConstL, k) }

// NewSubtractConstROp creates y = x - k.
func NewSubtractConstROp(k float32) *ElementwiseOp { return elementwiseK(tensor.OpSubtractConstR, k) }

// NewMultiplyConstOp creates y = kx.
func NewMultiplyConstOp(k float32) *ElementwiseOp { return elementwiseK(tensor.OpMultiplyConst, k) }

// NewDivideConstLOp creates y = k / x.
func NewDivideConstLOp(k float32) *ElementwiseOp { return elementwiseK(tensor.OpDivideConstL, k) }

// NewDivideConstROp creates y = x / k.
func NewDivideConstROp(k float32) *ElementwiseOp { return elementwiseK(tensor.OpDivideConstR, k) }

// NewSqrtOp creates y = sqrt(x).
func NewSqrtOp() *ElementwiseOp { return elementwise(tensor.OpSqrt) }

// NewExpOp creates y = exp(x).
func NewExpOp() *ElementwiseOp { return elementwise(tensor.OpExp) }

// NewLogOp creates y = ln(x).
func NewLogOp() *ElementwiseOp { return elementwise(tensor.OpLog) }

// NewTanhOp creates y = tanh(x).
func NewTanhOp() *ElementwiseOp { return elementwise(tensor.OpTanh) }

// NewSinOp creates y = sin(x).
func NewSinOp() *ElementwiseOp { return elementwise(tensor.OpSin) }

// NewCosOp creates y = cos(x).
func NewCosOp() *ElementwiseOp { return elementwise(tensor.OpCos) }

// NewTanOp creates y = tan(x).
func NewTanOp() *ElementwiseOp { return elementwise(tensor.OpTan) }

// NewSigmoidOp creates y = 1/(1+exp(-x)).
func NewSigmoidOp() *ElementwiseOp { return elementwise(tensor.OpSigmoid) }

// NewSoftplusOp creates y = ln(1+exp(x)).
func NewSoftplusOp() *ElementwiseOp { return elementwise(tensor.OpSoftplus) }

// NewReLUOp creates y = max(x, 0).
func NewReLUOp() *ElementwiseOp { return elementwise(tensor.OpReLU) }

// NewLReLUOp creates the leaky ReLU with slope 0.01.
func NewLReLUOp() *ElementwiseOp { return elementwise(tensor.OpLReLU) }

// NewPReLUOp creates the parametric ReLU with negative slope a.
func NewPReLUOp(a float32) *ElementwiseOp { return elementwiseK(tensor.OpPReLU, a) }

// NewELUOp creates the exponential linear unit with scale a.
func NewELUOp(a float32) *ElementwiseOp { return elementwiseK(tensor.OpELU, a) }

// Kernel returns the unary kernel.
func (op *ElementwiseOp) Kernel() tensor.UnaryOp { return op.kernel }

// Name returns the kernel name, with the constant when there is one,
// e.g. "Sqrt" or "AddConst(3)".
func (op *ElementwiseOp) Name() string {
	if op.hasK {
		return op.kernel.String() + "(" + formatFloat(op.k) + ")"
	}
	return op.kernel.String()
}

// Device returns nil: the output lives on the input's device.
func (op *ElementwiseOp) Device() *tensor.Device { return nil }

// ForwardShape returns the input shape.
func (op *ElementwiseOp) ForwardShape(xs []tensor.Shape) (tensor.Shape, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return tensor.Shape{}, err
	}
	return xs[0], nil
}

// Forward applies the kernel.
func (op *ElementwiseOp) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkArity(op.Name(), len(xs), 1); err != nil {
		return nil, err
	}
	dev, err := inputDevice(op.Name(), xs)
	if err != nil {
		return nil, err
	}
	return dev.Unary(op.kernel, op.k, xs[0])
}

// Backward accumulates f'(x; k) * gy into gx.
func (op *ElementwiseOp) Backward(y, gy *tensor.Tensor, xs, gxs []*tensor.Tensor) error {
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
	return dev.UnaryBackward(op.kernel, op.k, xs[0], y, gy, gx)
}
