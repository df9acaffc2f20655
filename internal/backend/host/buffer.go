// Package host implements reference kernel bodies over host memory.
//
// The kernels work on index ranges so that callers can either run them over
// the whole buffer (naive device) or split them across goroutines
// (vectorized device). Backend is the serial implementation of
// tensor.Backend that both devices build on.
package host

import (
	"fmt"

	"github.com/born-ml/gradcore/internal/tensor"
)

// Buffer is host memory holding float32 values.
type Buffer []float32

// Len returns the number of values.
func (b Buffer) Len() int {
	return len(b)
}

// Data returns the values behind a buffer allocated by a host backend.
// A nil buffer yields nil.
func Data(b tensor.Buffer) []float32 {
	if b == nil {
		return nil
	}
	hb, ok := b.(Buffer)
	if !ok {
		panic(fmt.Sprintf("host: foreign buffer type %T", b))
	}
	return hb
}

// Backend is the serial host implementation of tensor.Backend.
// Device-specific backends embed it and override what they accelerate.
type Backend struct {
	name string
	typ  tensor.DeviceType
}

// NewBackend creates a serial host backend reporting the given identity.
func NewBackend(name string, typ tensor.DeviceType) *Backend {
	return &Backend{name: name, typ: typ}
}

// Name returns the backend name.
func (h *Backend) Name() string {
	return h.name
}

// Type returns the device type tag.
func (h *Backend) Type() tensor.DeviceType {
	return h.typ
}

// Allocate returns a zeroed buffer of size values.
func (h *Backend) Allocate(size int) (tensor.Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative size %d", size)
	}
	return make(Buffer, size), nil
}

// Free is a no-op; host buffers are reclaimed by the garbage collector.
func (h *Backend) Free(tensor.Buffer) {}

// Upload copies host values into dst.
func (h *Backend) Upload(dst tensor.Buffer, src []float32) {
	copy(Data(dst), src)
}

// Download copies src into host values.
func (h *Backend) Download(dst []float32, src tensor.Buffer) {
	copy(dst, Data(src))
}

// Fill sets every value of dst.
func (h *Backend) Fill(dst tensor.Buffer, value float32) {
	d := Data(dst)
	for i := range d {
		d[i] = value
	}
}

// Copy copies src into dst; both hold the same number of values.
func (h *Backend) Copy(dst, src tensor.Buffer) {
	copy(Data(dst), Data(src))
}

// Unary runs f over every value.
func (h *Backend) Unary(op tensor.UnaryOp, k float32, y, x tensor.Buffer) {
	UnaryRange(op, k, Data(y), Data(x), 0, y.Len())
}

// UnaryBackward accumulates f'(x) * gy into gx.
func (h *Backend) UnaryBackward(op tensor.UnaryOp, k float32, gx, x, y, gy tensor.Buffer) {
	UnaryBackwardRange(op, k, Data(gx), Data(x), Data(y), Data(gy), 0, gx.Len())
}

// Binary runs a broadcast binary kernel.
func (h *Backend) Binary(op tensor.BinaryOp, y, a, b tensor.Buffer, p *tensor.BroadcastPlan) {
	BinaryRange(op, Data(y), Data(a), Data(b), p, 0, p.Size())
}

// BinaryBackward accumulates broadcast binary gradients.
func (h *Backend) BinaryBackward(op tensor.BinaryOp, ga, gb, a, b, y, gy tensor.Buffer, p *tensor.BroadcastPlan) {
	BinaryBackwardRange(op, Data(ga), Data(gb), Data(a), Data(b), Data(y), Data(gy), p, 0, p.Size())
}

// Axpy computes y += alpha * x.
func (h *Backend) Axpy(alpha float32, x, y tensor.Buffer) {
	AxpyRange(alpha, Data(x), Data(y), 0, y.Len())
}

// Blocks runs a strided block copy.
func (h *Backend) Blocks(dst, src tensor.Buffer, p tensor.BlockCopy) {
	BlocksRange(Data(dst), Data(src), p, 0, p.Count)
}

// Reduce runs a reduction.
func (h *Backend) Reduce(op tensor.ReduceOp, y, x tensor.Buffer, p tensor.Reduction) {
	ReduceRange(op, Data(y), Data(x), p, 0, p.Base*p.Repeat)
}

// Transpose transposes every minibatch item.
func (h *Backend) Transpose(y, x tensor.Buffer, rows, cols, batch int, accumulate bool) {
	TransposeRange(Data(y), Data(x), rows, cols, accumulate, 0, batch)
}

// MatMul runs a batched matrix product.
func (h *Backend) MatMul(c, a, b tensor.Buffer, p tensor.Gemm) {
	MatMulRange(Data(c), Data(a), Data(b), p, 0, p.Batches())
}

// Synchronize is a no-op; host kernels complete before returning.
func (h *Backend) Synchronize() {}

// Close is a no-op.
func (h *Backend) Close() error {
	return nil
}
