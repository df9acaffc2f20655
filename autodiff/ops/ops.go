// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ops provides the differentiable operation nodes.
//
// A node holds only its configuration. Forward computes a value from input
// tensors; Backward later receives the same inputs, the output and its
// gradient, and adds the input gradients into caller-owned accumulators.
// Composing nodes into a graph is left to the caller.
//
// Example:
//
//	dev := naive.NewDevice()
//	defer dev.Close()
//
//	op := ops.NewMultiplyOp()
//	y, _ := op.Forward([]*tensor.Tensor{a, b})
//	gy, _ := dev.NewTensorFill(y.Shape(), 1)
//	_ = op.Backward(y, gy, []*tensor.Tensor{a, b}, []*tensor.Tensor{ga, gb})
package ops

import (
	"github.com/born-ml/gradcore/internal/autodiff/ops"
	"github.com/born-ml/gradcore/tensor"
)

// Operation is a differentiable node.
type Operation = ops.Operation

// Parameter is the value and gradient pair bound to a ParameterInputOp.
type Parameter = ops.Parameter

// ErrNoForwardValue is returned by nodes whose value lives elsewhere.
var ErrNoForwardValue = ops.ErrNoForwardValue

// Node types.
type (
	InputOp                     = ops.InputOp
	ParameterInputOp            = ops.ParameterInputOp
	CopyOp                      = ops.CopyOp
	ConstantOp                  = ops.ConstantOp
	IdentityMatrixOp            = ops.IdentityMatrixOp
	RandomOp                    = ops.RandomOp
	PickOp                      = ops.PickOp
	SliceOp                     = ops.SliceOp
	ConcatOp                    = ops.ConcatOp
	ReshapeOp                   = ops.ReshapeOp
	FlattenOp                   = ops.FlattenOp
	BroadcastOp                 = ops.BroadcastOp
	TransposeOp                 = ops.TransposeOp
	MatrixMultiplyOp            = ops.MatrixMultiplyOp
	PositiveOp                  = ops.PositiveOp
	ElementwiseOp               = ops.ElementwiseOp
	ArithmeticOp                = ops.ArithmeticOp
	ScalarOp                    = ops.ScalarOp
	SumOp                       = ops.SumOp
	LogSumExpOp                 = ops.LogSumExpOp
	BatchSumOp                  = ops.BatchSumOp
	SoftmaxCrossEntropyOp       = ops.SoftmaxCrossEntropyOp
	SparseSoftmaxCrossEntropyOp = ops.SparseSoftmaxCrossEntropyOp
)

// Leaves

// NewInputOp creates a node producing a tensor from host values.
func NewInputOp(shape tensor.Shape, values []float32, dev *tensor.Device) *InputOp {
	return ops.NewInputOp(shape, values, dev)
}

// NewParameterInputOp creates a node exposing a parameter's value.
func NewParameterInputOp(param Parameter) *ParameterInputOp { return ops.NewParameterInputOp(param) }

// NewCopyOp creates a node copying its input to dev.
func NewCopyOp(dev *tensor.Device) *CopyOp { return ops.NewCopyOp(dev) }

// NewConstantOp creates a node filled with k.
func NewConstantOp(shape tensor.Shape, k float32, dev *tensor.Device) *ConstantOp {
	return ops.NewConstantOp(shape, k, dev)
}

// NewIdentityMatrixOp creates the size×size identity matrix.
func NewIdentityMatrixOp(size int, dev *tensor.Device) *IdentityMatrixOp {
	return ops.NewIdentityMatrixOp(size, dev)
}

// NewRandomBernoulliOp samples 1 with probability p and 0 otherwise.
func NewRandomBernoulliOp(shape tensor.Shape, p float32, dev *tensor.Device) *RandomOp {
	return ops.NewRandomBernoulliOp(shape, p, dev)
}

// NewRandomUniformOp samples from [lower, upper).
func NewRandomUniformOp(shape tensor.Shape, lower, upper float32, dev *tensor.Device) *RandomOp {
	return ops.NewRandomUniformOp(shape, lower, upper, dev)
}

// NewRandomNormalOp samples from N(mean, sd²).
func NewRandomNormalOp(shape tensor.Shape, mean, sd float32, dev *tensor.Device) *RandomOp {
	return ops.NewRandomNormalOp(shape, mean, sd, dev)
}

// NewRandomLogNormalOp samples exp(z) with z from N(mean, sd²).
func NewRandomLogNormalOp(shape tensor.Shape, mean, sd float32, dev *tensor.Device) *RandomOp {
	return ops.NewRandomLogNormalOp(shape, mean, sd, dev)
}

// Shape manipulation

// NewPickOp gathers ids along dim.
func NewPickOp(ids []int, dim int) *PickOp { return ops.NewPickOp(ids, dim) }

// NewSliceOp extracts [lower, upper) of dim.
func NewSliceOp(dim, lower, upper int) *SliceOp { return ops.NewSliceOp(dim, lower, upper) }

// NewConcatOp joins its inputs along dim.
func NewConcatOp(dim int) *ConcatOp { return ops.NewConcatOp(dim) }

// NewReshapeOp changes the dimensions to target.
func NewReshapeOp(target tensor.Shape) *ReshapeOp { return ops.NewReshapeOp(target) }

// NewFlattenOp reshapes into a column vector.
func NewFlattenOp() *FlattenOp { return ops.NewFlattenOp() }

// NewBroadcastOp tiles the size-1 dimension dim to size.
func NewBroadcastOp(dim, size int) *BroadcastOp { return ops.NewBroadcastOp(dim, size) }

// NewTransposeOp swaps the dimensions of a matrix.
func NewTransposeOp() *TransposeOp { return ops.NewTransposeOp() }

// Arithmetic

// NewPositiveOp creates y = x.
func NewPositiveOp() *PositiveOp { return ops.NewPositiveOp() }

// NewNegativeOp creates y = -x.
func NewNegativeOp() *ElementwiseOp { return ops.NewNegativeOp() }

// NewAddConstOp creates y = x + k.
func NewAddConstOp(k float32) *ElementwiseOp { return ops.NewAddConstOp(k) }

// NewSubtractConstLOp creates y = k - x.
func NewSubtractConstLOp(k float32) *ElementwiseOp { return ops.NewSubtractConstLOp(k) }

// NewSubtractConstROp creates y = x - k.
func NewSubtractConstROp(k float32) *ElementwiseOp { return ops.NewSubtractConstROp(k) }

// NewMultiplyConstOp creates y = kx.
func NewMultiplyConstOp(k float32) *ElementwiseOp { return ops.NewMultiplyConstOp(k) }

// NewDivideConstLOp creates y = k / x.
func NewDivideConstLOp(k float32) *ElementwiseOp { return ops.NewDivideConstLOp(k) }

// NewDivideConstROp creates y = x / k.
func NewDivideConstROp(k float32) *ElementwiseOp { return ops.NewDivideConstROp(k) }

// NewAddScalarOp creates y = x + k for a per-item scalar k.
func NewAddScalarOp() *ScalarOp { return ops.NewAddScalarOp() }

// NewSubtractScalarLOp creates y = k - x.
func NewSubtractScalarLOp() *ScalarOp { return ops.NewSubtractScalarLOp() }

// NewSubtractScalarROp creates y = x - k.
func NewSubtractScalarROp() *ScalarOp { return ops.NewSubtractScalarROp() }

// NewMultiplyScalarOp creates y = kx.
func NewMultiplyScalarOp() *ScalarOp { return ops.NewMultiplyScalarOp() }

// NewDivideScalarLOp creates y = k / x.
func NewDivideScalarLOp() *ScalarOp { return ops.NewDivideScalarLOp() }

// NewDivideScalarROp creates y = x / k.
func NewDivideScalarROp() *ScalarOp { return ops.NewDivideScalarROp() }

// NewAddOp creates y = a + b.
func NewAddOp() *ArithmeticOp { return ops.NewAddOp() }

// NewSubtractOp creates y = a - b.
func NewSubtractOp() *ArithmeticOp { return ops.NewSubtractOp() }

// NewMultiplyOp creates y = ab.
func NewMultiplyOp() *ArithmeticOp { return ops.NewMultiplyOp() }

// NewDivideOp creates y = a / b.
func NewDivideOp() *ArithmeticOp { return ops.NewDivideOp() }

// NewMatrixMultiplyOp creates y = a·b.
func NewMatrixMultiplyOp() *MatrixMultiplyOp { return ops.NewMatrixMultiplyOp() }

// Math functions

// NewSqrtOp creates y = sqrt(x).
func NewSqrtOp() *ElementwiseOp { return ops.NewSqrtOp() }

// NewExpOp creates y = exp(x).
func NewExpOp() *ElementwiseOp { return ops.NewExpOp() }

// NewLogOp creates y = ln(x).
func NewLogOp() *ElementwiseOp { return ops.NewLogOp() }

// NewTanhOp creates y = tanh(x).
func NewTanhOp() *ElementwiseOp { return ops.NewTanhOp() }

// NewSinOp creates y = sin(x).
func NewSinOp() *ElementwiseOp { return ops.NewSinOp() }

// NewCosOp creates y = cos(x).
func NewCosOp() *ElementwiseOp { return ops.NewCosOp() }

// NewTanOp creates y = tan(x).
func NewTanOp() *ElementwiseOp { return ops.NewTanOp() }

// NewSigmoidOp creates the logistic sigmoid.
func NewSigmoidOp() *ElementwiseOp { return ops.NewSigmoidOp() }

// NewSoftplusOp creates y = ln(1+exp(x)).
func NewSoftplusOp() *ElementwiseOp { return ops.NewSoftplusOp() }

// NewReLUOp creates y = max(x, 0).
func NewReLUOp() *ElementwiseOp { return ops.NewReLUOp() }

// NewLReLUOp creates the leaky ReLU with slope 0.01.
func NewLReLUOp() *ElementwiseOp { return ops.NewLReLUOp() }

// NewPReLUOp creates the parametric ReLU with negative slope a.
func NewPReLUOp(a float32) *ElementwiseOp { return ops.NewPReLUOp(a) }

// NewELUOp creates the exponential linear unit with scale a.
func NewELUOp(a float32) *ElementwiseOp { return ops.NewELUOp(a) }

// Reductions and losses

// NewSumOp sums along dim.
func NewSumOp(dim int) *SumOp { return ops.NewSumOp(dim) }

// NewLogSumExpOp computes log(sum(exp(x))) along dim.
func NewLogSumExpOp(dim int) *LogSumExpOp { return ops.NewLogSumExpOp(dim) }

// NewBatchSumOp sums the minibatch items.
func NewBatchSumOp() *BatchSumOp { return ops.NewBatchSumOp() }

// NewSoftmaxCrossEntropyOp creates the cross-entropy of softmax(x) against
// dense targets along dim.
func NewSoftmaxCrossEntropyOp(dim int) *SoftmaxCrossEntropyOp {
	return ops.NewSoftmaxCrossEntropyOp(dim)
}

// NewSparseSoftmaxCrossEntropyOp creates the cross-entropy of softmax(x)
// against target ids along dim.
func NewSparseSoftmaxCrossEntropyOp(ids []int, dim int) *SparseSoftmaxCrossEntropyOp {
	return ops.NewSparseSoftmaxCrossEntropyOp(ids, dim)
}
