// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides shapes, devices and tensors for gradcore.
//
// # Overview
//
// A Device owns every tensor it creates together with one seeded random
// generator. All kernels are methods of the Device, which validates shapes,
// ownership and arguments before any memory is touched:
//   - Shapes with an explicit minibatch size and broadcasting
//   - Ref-counted tensors with copy-on-write semantics
//   - Elementwise, reduction, layout and matrix kernels with their backward helpers
//   - Bernoulli, uniform, normal and log-normal random tensors
//
// Memory order is dim 0 fastest with the batch outermost, which is also the
// order of ToVector.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/gradcore/backend/naive"
//	    "github.com/born-ml/gradcore/tensor"
//	)
//
//	func main() {
//	    dev := naive.NewDevice(tensor.WithSeed(42))
//	    defer dev.Close()
//
//	    shape, _ := tensor.NewShape([]int{2, 2}, 3)
//	    x, _ := dev.NewTensorFill(shape, 1)
//	    y, _ := dev.Unary(tensor.OpExp, 0, x)
//	    values, _ := y.ToVector()
//	}
//
// # Errors
//
// Every error wraps exactly one of the Err* sentinels; match them with
// errors.Is. Numeric domain problems are not errors: NaN and Inf propagate.
package tensor
