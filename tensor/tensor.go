// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/gradcore/internal/tensor"
)

// Type aliases for public API

// Shape describes the dimensions of a tensor plus its minibatch size.
// Example: NewShape([]int{2, 3}, 4) is a batch of four 2×3 matrices.
type Shape = tensor.Shape

// Device owns tensor storage on one backend and a seeded random generator.
type Device = tensor.Device

// Tensor is a shaped handle to device-owned storage.
type Tensor = tensor.Tensor

// Context holds a caller-owned default device.
type Context = tensor.Context

// Option configures a Device.
type Option = tensor.Option

// MemoryStats summarizes the storage owned by a device.
type MemoryStats = tensor.MemoryStats

// DeviceType tags the kind of backend behind a Device.
type DeviceType = tensor.DeviceType

// Device types.
const (
	Naive  DeviceType = tensor.Naive
	CPU    DeviceType = tensor.CPU
	WebGPU DeviceType = tensor.WebGPU
)

// MaxDepth is the maximum number of significant (non-batch) dimensions.
const MaxDepth = tensor.MaxDepth

// Error kinds. Match them with errors.Is.
var (
	ErrShape           = tensor.ErrShape
	ErrAllocation      = tensor.ErrAllocation
	ErrInvalidTensor   = tensor.ErrInvalidTensor
	ErrDeviceClosed    = tensor.ErrDeviceClosed
	ErrDeviceMismatch  = tensor.ErrDeviceMismatch
	ErrInvalidArgument = tensor.ErrInvalidArgument
	ErrNoDefault       = tensor.ErrNoDefault
)

// NewShape creates a shape from its dimensions and batch size.
func NewShape(dims []int, batch int) (Shape, error) {
	return tensor.NewShape(dims, batch)
}

// Broadcast resolves the shape of an elementwise combination of a and b.
func Broadcast(a, b Shape) (Shape, error) {
	return tensor.Broadcast(a, b)
}

// WithSeed fixes the seed of the device random generator.
func WithSeed(seed uint64) Option {
	return tensor.WithSeed(seed)
}

// NewDevice wraps a custom backend into a Device.
func NewDevice(backend Backend, opts ...Option) *Device {
	return tensor.NewDevice(backend, opts...)
}
