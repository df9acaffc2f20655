// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/gradcore/internal/tensor"
)

// Backend is the kernel catalogue a Device dispatches to.
//
// Implement it to plug a new memory domain into gradcore; the Device performs
// all validation, so a backend only moves and computes values.
type Backend = tensor.Backend

// Buffer is backend-owned storage.
type Buffer = tensor.Buffer

// Kernel plans passed to a Backend.
type (
	BroadcastPlan = tensor.BroadcastPlan
	BlockCopy     = tensor.BlockCopy
	Reduction     = tensor.Reduction
	Gemm          = tensor.Gemm
)

// UnaryOp selects an elementwise unary kernel.
type UnaryOp = tensor.UnaryOp

// Unary kernels.
const (
	OpNegate         UnaryOp = tensor.OpNegate
	OpSqrt           UnaryOp = tensor.OpSqrt
	OpExp            UnaryOp = tensor.OpExp
	OpLog            UnaryOp = tensor.OpLog
	OpTanh           UnaryOp = tensor.OpTanh
	OpSigmoid        UnaryOp = tensor.OpSigmoid
	OpSoftplus       UnaryOp = tensor.OpSoftplus
	OpSin            UnaryOp = tensor.OpSin
	OpCos            UnaryOp = tensor.OpCos
	OpTan            UnaryOp = tensor.OpTan
	OpReLU           UnaryOp = tensor.OpReLU
	OpLReLU          UnaryOp = tensor.OpLReLU
	OpPReLU          UnaryOp = tensor.OpPReLU
	OpELU            UnaryOp = tensor.OpELU
	OpAddConst       UnaryOp = tensor.OpAddConst
	OpSubtractConstL UnaryOp = tensor.OpSubtractConstL
	OpSubtractConstR UnaryOp = tensor.OpSubtractConstR
	OpMultiplyConst  UnaryOp = tensor.OpMultiplyConst
	OpDivideConstL   UnaryOp = tensor.OpDivideConstL
	OpDivideConstR   UnaryOp = tensor.OpDivideConstR
)

// BinaryOp selects an elementwise binary kernel.
type BinaryOp = tensor.BinaryOp

// Binary kernels.
const (
	OpAdd      BinaryOp = tensor.OpAdd
	OpSubtract BinaryOp = tensor.OpSubtract
	OpMultiply BinaryOp = tensor.OpMultiply
	OpDivide   BinaryOp = tensor.OpDivide
)

// ReduceOp selects a reduction kernel.
type ReduceOp = tensor.ReduceOp

// Reduction kernels.
const (
	ReduceSum       ReduceOp = tensor.ReduceSum
	ReduceLogSumExp ReduceOp = tensor.ReduceLogSumExp
)
