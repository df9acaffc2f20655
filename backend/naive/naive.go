// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package naive provides the reference device: serial loops over host memory.
//
// Every other device is checked against this one. Use it for tests and small
// workloads.
//
// Example:
//
//	dev := naive.NewDevice(tensor.WithSeed(1))
//	defer dev.Close()
package naive

import (
	internalnaive "github.com/born-ml/gradcore/internal/backend/naive"
	"github.com/born-ml/gradcore/tensor"
)

// Backend is the naive kernel implementation.
type Backend = internalnaive.Backend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a naive backend.
func New() *Backend {
	return internalnaive.New()
}

// NewDevice creates a device backed by a new naive backend.
func NewDevice(opts ...tensor.Option) *tensor.Device {
	return internalnaive.NewDevice(opts...)
}
