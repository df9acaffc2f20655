// Package webgpu implements the accelerator device: tensor storage lives in
// WebGPU buffers (github.com/go-webgpu/webgpu) and kernels stage their
// operands through host memory.
//
// GPU storage is available on windows builds; elsewhere New fails with
// tensor.ErrAllocation.
package webgpu

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradcore/internal/backend/host"
	"github.com/born-ml/gradcore/internal/tensor"
)

// memory is device storage with host transfers. Every call completes
// before it returns.
type memory interface {
	allocate(n int) (tensor.Buffer, error)
	free(buf tensor.Buffer)
	upload(dst tensor.Buffer, src []float32)
	download(dst []float32, src tensor.Buffer)
	copy(dst, src tensor.Buffer)
	describe() string
	close() error
}

// Backend implements tensor.Backend over accelerator memory.
//
// Kernels download their operands, run the host kernel bodies and upload
// the result, so every call is synchronous.
type Backend struct {
	mem     memory
	adapter int
}

// Option configures a WebGPU backend.
type Option func(*options)

type options struct {
	adapter int
	device  []tensor.Option
}

// WithAdapter selects the adapter by index. Index 0 is the adapter the
// platform prefers for high-performance work.
func WithAdapter(index int) Option {
	return func(o *options) {
		o.adapter = index
	}
}

// WithSeed fixes the seed of the device random generator.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.device = append(o.device, tensor.WithSeed(seed))
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New opens a WebGPU backend. It fails with tensor.ErrAllocation when the
// adapter does not exist or WebGPU is unavailable.
func New(opts ...Option) (*Backend, error) {
	o := newOptions(opts)
	if o.adapter < 0 {
		return nil, errors.Wrapf(tensor.ErrAllocation, "webgpu: invalid adapter index %d", o.adapter)
	}
	mem, err := openMemory(o.adapter)
	if err != nil {
		return nil, errors.Wrapf(tensor.ErrAllocation, "webgpu: adapter %d: %v", o.adapter, err)
	}
	klog.V(1).Infof("webgpu: opened adapter %d (%s)", o.adapter, mem.describe())
	return &Backend{mem: mem, adapter: o.adapter}, nil
}

// NewDevice opens a WebGPU backend and wraps it into a device.
func NewDevice(opts ...Option) (*tensor.Device, error) {
	b, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return tensor.NewDevice(b, newOptions(opts).device...), nil
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "WebGPU"
}

// Type returns the device type tag.
func (b *Backend) Type() tensor.DeviceType {
	return tensor.WebGPU
}

// Adapter returns the adapter index.
func (b *Backend) Adapter() int {
	return b.adapter
}

// Allocate reserves device storage for size values.
func (b *Backend) Allocate(size int) (tensor.Buffer, error) {
	return b.mem.allocate(size)
}

// Free returns device storage.
func (b *Backend) Free(buf tensor.Buffer) {
	b.mem.free(buf)
}

// Upload copies host values into device storage.
func (b *Backend) Upload(dst tensor.Buffer, src []float32) {
	b.mem.upload(dst, src)
}

// Download copies device storage into host values.
func (b *Backend) Download(dst []float32, src tensor.Buffer) {
	b.mem.download(dst, src)
}

// Fill sets every value of dst.
func (b *Backend) Fill(dst tensor.Buffer, value float32) {
	v := make([]float32, dst.Len())
	if value != 0 {
		for i := range v {
			v[i] = value
		}
	}
	b.mem.upload(dst, v)
}

// Copy copies src into dst on the device.
func (b *Backend) Copy(dst, src tensor.Buffer) {
	b.mem.copy(dst, src)
}

// stage downloads buffers to host memory; nil buffers stay nil.
func (b *Backend) stage(bufs ...tensor.Buffer) [][]float32 {
	out := make([][]float32, len(bufs))
	for i, buf := range bufs {
		if buf == nil {
			continue
		}
		out[i] = make([]float32, buf.Len())
		b.mem.download(out[i], buf)
	}
	return out
}

// Unary runs f over every value.
func (b *Backend) Unary(op tensor.UnaryOp, k float32, y, x tensor.Buffer) {
	s := b.stage(x)
	ys := make([]float32, y.Len())
	host.UnaryRange(op, k, ys, s[0], 0, len(ys))
	b.mem.upload(y, ys)
}

// UnaryBackward accumulates f'(x) * gy into gx.
func (b *Backend) UnaryBackward(op tensor.UnaryOp, k float32, gx, x, y, gy tensor.Buffer) {
	s := b.stage(gx, x, y, gy)
	host.UnaryBackwardRange(op, k, s[0], s[1], s[2], s[3], 0, gx.Len())
	b.mem.upload(gx, s[0])
}

// Binary runs a broadcast binary kernel.
func (b *Backend) Binary(op tensor.BinaryOp, y, a, bb tensor.Buffer, p *tensor.BroadcastPlan) {
	s := b.stage(a, bb)
	ys := make([]float32, y.Len())
	host.BinaryRange(op, ys, s[0], s[1], p, 0, p.Size())
	b.mem.upload(y, ys)
}

// BinaryBackward accumulates broadcast binary gradients.
func (b *Backend) BinaryBackward(op tensor.BinaryOp, ga, gb, a, bb, y, gy tensor.Buffer, p *tensor.BroadcastPlan) {
	s := b.stage(ga, gb, a, bb, y, gy)
	host.BinaryBackwardRange(op, s[0], s[1], s[2], s[3], s[4], s[5], p, 0, p.Size())
	if ga != nil {
		b.mem.upload(ga, s[0])
	}
	if gb != nil {
		b.mem.upload(gb, s[1])
	}
}

// Axpy computes y += alpha * x.
func (b *Backend) Axpy(alpha float32, x, y tensor.Buffer) {
	s := b.stage(x, y)
	host.AxpyRange(alpha, s[0], s[1], 0, y.Len())
	b.mem.upload(y, s[1])
}

// Blocks runs a strided block copy.
func (b *Backend) Blocks(dst, src tensor.Buffer, p tensor.BlockCopy) {
	s := b.stage(dst, src)
	host.BlocksRange(s[0], s[1], p, 0, p.Count)
	b.mem.upload(dst, s[0])
}

// Reduce runs a reduction.
func (b *Backend) Reduce(op tensor.ReduceOp, y, x tensor.Buffer, p tensor.Reduction) {
	s := b.stage(x)
	ys := make([]float32, y.Len())
	host.ReduceRange(op, ys, s[0], p, 0, p.Base*p.Repeat)
	b.mem.upload(y, ys)
}

// Transpose transposes every minibatch item.
func (b *Backend) Transpose(y, x tensor.Buffer, rows, cols, batch int, accumulate bool) {
	s := b.stage(y, x)
	host.TransposeRange(s[0], s[1], rows, cols, accumulate, 0, batch)
	b.mem.upload(y, s[0])
}

// MatMul runs a batched matrix product.
func (b *Backend) MatMul(c, a, bb tensor.Buffer, p tensor.Gemm) {
	s := b.stage(c, a, bb)
	host.MatMulRange(s[0], s[1], s[2], p, 0, p.Batches())
	b.mem.upload(c, s[0])
}

// Synchronize is a no-op; every transfer waits for the queue.
func (b *Backend) Synchronize() {}

// Close releases the adapter, device and pooled buffers.
func (b *Backend) Close() error {
	return b.mem.close()
}

var _ tensor.Backend = (*Backend)(nil)
