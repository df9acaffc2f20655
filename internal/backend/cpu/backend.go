// Package cpu implements the vectorized CPU device: host memory, kernels
// split across goroutines and gonum BLAS for matrix products.
package cpu

import (
	"fmt"

	"github.com/born-ml/gradcore/internal/backend/host"
	"github.com/born-ml/gradcore/internal/parallel"
	"github.com/born-ml/gradcore/internal/tensor"
)

// Backend runs the host kernels in parallel chunks and matrix products
// through gonum's blas32.
//
// Kernels whose writes may collide (accumulating broadcast gradients,
// overlapping block copies, batch-summed matrix products) run serially.
type Backend struct {
	*host.Backend
	cfg parallel.Config
}

// Option configures a CPU backend.
type Option func(*options)

type options struct {
	cfg    parallel.Config
	device []tensor.Option
}

// WithWorkers sets the maximum number of goroutines per kernel.
// A value of 1 or less disables parallel execution.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.cfg.NumWorkers = n
		o.cfg.Enabled = n > 1
	}
}

// WithMinChunk sets the minimum number of elements handed to one goroutine.
func WithMinChunk(n int) Option {
	return func(o *options) {
		o.cfg.MinChunkSize = max(n, 1)
	}
}

// WithSeed fixes the seed of the device random generator.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.device = append(o.device, tensor.WithSeed(seed))
	}
}

func newOptions(opts []Option) options {
	o := options{cfg: parallel.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates a CPU backend.
func New(opts ...Option) *Backend {
	return newBackend(newOptions(opts).cfg)
}

func newBackend(cfg parallel.Config) *Backend {
	return &Backend{
		Backend: host.NewBackend("CPU", tensor.CPU),
		cfg:     cfg,
	}
}

// NewDevice creates a device backed by a new CPU backend.
func NewDevice(opts ...Option) *tensor.Device {
	o := newOptions(opts)
	return tensor.NewDevice(newBackend(o.cfg), o.device...)
}

// Config returns the parallel execution settings.
func (cpu *Backend) Config() parallel.Config {
	return cpu.cfg
}

// String describes the backend and its worker settings.
func (cpu *Backend) String() string {
	return fmt.Sprintf("CPU(workers=%d, chunk=%d)", cpu.cfg.NumWorkers, cpu.cfg.MinChunkSize)
}

var _ tensor.Backend = (*Backend)(nil)
