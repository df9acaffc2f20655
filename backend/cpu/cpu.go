// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the vectorized CPU device.
//
// # Overview
//
// Kernels run the same host loops as the naive device, split into chunks
// across goroutines, and matrix products go through gonum BLAS:
//   - Pure Go implementation (no CGO)
//   - Worker count and chunk size set through options
//   - Results match the naive device
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/gradcore/backend/cpu"
//	)
//
//	func main() {
//	    dev := cpu.NewDevice(cpu.WithWorkers(4), cpu.WithSeed(7))
//	    defer dev.Close()
//	}
package cpu

import (
	internalcpu "github.com/born-ml/gradcore/internal/backend/cpu"
	"github.com/born-ml/gradcore/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.Backend

// Option configures a CPU backend.
type Option = internalcpu.Option

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// WithWorkers sets the maximum number of goroutines per kernel.
// A value of 1 or less disables parallel execution.
func WithWorkers(n int) Option {
	return internalcpu.WithWorkers(n)
}

// WithMinChunk sets the minimum number of elements handed to one goroutine.
func WithMinChunk(n int) Option {
	return internalcpu.WithMinChunk(n)
}

// WithSeed fixes the seed of the device random generator.
func WithSeed(seed uint64) Option {
	return internalcpu.WithSeed(seed)
}

// New creates a new CPU backend.
func New(opts ...Option) *Backend {
	return internalcpu.New(opts...)
}

// NewDevice creates a device backed by a new CPU backend.
func NewDevice(opts ...Option) *tensor.Device {
	return internalcpu.NewDevice(opts...)
}
