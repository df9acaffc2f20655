// Package naive implements the reference device: serial loops over host
// memory.
//
// Every other device is checked against this one in tests.
package naive

import (
	"github.com/born-ml/gradcore/internal/backend/host"
	"github.com/born-ml/gradcore/internal/tensor"
)

// Backend runs every kernel serially on the calling goroutine.
type Backend struct {
	*host.Backend
}

// New creates a naive backend.
func New() *Backend {
	return &Backend{Backend: host.NewBackend("Naive", tensor.Naive)}
}

// NewDevice creates a device backed by a new naive backend.
func NewDevice(opts ...tensor.Option) *tensor.Device {
	return tensor.NewDevice(New(), opts...)
}

var _ tensor.Backend = (*Backend)(nil)
