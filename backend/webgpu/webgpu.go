// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the accelerator device.
//
// Tensor storage lives in WebGPU buffers; kernels stage their operands through
// host memory, so results match the naive device. GPU storage is built for
// windows. On other platforms New fails with tensor.ErrAllocation.
//
// Example:
//
//	dev, err := webgpu.NewDevice(webgpu.WithAdapter(0))
//	if err != nil {
//	    dev = cpu.NewDevice()
//	}
//	defer dev.Close()
package webgpu

import (
	internalwebgpu "github.com/born-ml/gradcore/internal/backend/webgpu"
	"github.com/born-ml/gradcore/tensor"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Option configures a WebGPU backend.
type Option = internalwebgpu.Option

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// WithAdapter selects the adapter by index.
func WithAdapter(index int) Option {
	return internalwebgpu.WithAdapter(index)
}

// WithSeed fixes the seed of the device random generator.
func WithSeed(seed uint64) Option {
	return internalwebgpu.WithSeed(seed)
}

// New opens a WebGPU backend. Call Close when done to free GPU resources.
func New(opts ...Option) (*Backend, error) {
	return internalwebgpu.New(opts...)
}

// NewDevice opens a WebGPU backend and wraps it into a device.
func NewDevice(opts ...Option) (*tensor.Device, error) {
	return internalwebgpu.NewDevice(opts...)
}

// IsAvailable reports whether the default adapter can be opened.
//
// It is useful for graceful fallback to the CPU device.
func IsAvailable() bool {
	b, err := internalwebgpu.New()
	if err != nil {
		return false
	}
	_ = b.Close()
	return true
}
