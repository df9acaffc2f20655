//go:build windows

package webgpu

import (
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/born-ml/gradcore/internal/tensor"
)

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// gpuBuffer is a storage buffer holding n float32 values. Its capacity may
// be larger when it was reused from the pool.
type gpuBuffer struct {
	buffer   *wgpu.Buffer
	n        int
	capacity uint64
}

// Len returns the number of values.
func (g *gpuBuffer) Len() int {
	return g.n
}

// gpuMemory owns one WebGPU device and its queue.
type gpuMemory struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	pool     *bufferPool[*wgpu.Buffer]
}

// openMemory requests the default adapter and a device on it.
// Only adapter 0 can be selected: WebGPU exposes a single preferred adapter.
func openMemory(adapter int) (mem memory, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			mem = nil
			err = fmt.Errorf("native library not available: %v", r)
		}
	}()

	if adapter != 0 {
		return nil, fmt.Errorf("adapter %d not available (only 0 can be requested)", adapter)
	}

	instance := wgpu.CreateInstance(nil)
	a, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, errors.Wrap(err, "request adapter")
	}
	device, err := a.RequestDevice(nil)
	if err != nil {
		a.Release()
		instance.Release()
		return nil, errors.Wrap(err, "request device")
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		a.Release()
		instance.Release()
		return nil, errors.New("failed to get queue")
	}

	m := &gpuMemory{
		instance: instance,
		adapter:  a,
		device:   device,
		queue:    queue,
	}
	m.pool = newBufferPool(
		func(size uint64) (*wgpu.Buffer, error) {
			buf := device.CreateBuffer(&wgpu.BufferDescriptor{Usage: storageUsage, Size: size})
			if buf == nil {
				return nil, fmt.Errorf("failed to create buffer of %d bytes", size)
			}
			return buf, nil
		},
		func(buf *wgpu.Buffer) { buf.Release() },
	)
	return m, nil
}

func (m *gpuMemory) describe() string {
	s := m.pool.stats()
	return fmt.Sprintf("high-performance adapter, %d pooled buffers", s.pooledCount)
}

func bytesOf(n int) uint64 {
	// copies must be 4-byte aligned, which float32 storage always is
	return uint64(n) * 4 //nolint:gosec // G115: n is a non-negative element count
}

func (m *gpuMemory) allocate(n int) (tensor.Buffer, error) {
	buf, capacity, err := m.pool.acquire(bytesOf(max(n, 1)))
	if err != nil {
		return nil, err
	}
	return &gpuBuffer{buffer: buf, n: n, capacity: capacity}, nil
}

func (m *gpuMemory) free(buf tensor.Buffer) {
	g := buf.(*gpuBuffer)
	m.pool.release(g.buffer, g.capacity)
}

// upload writes src through a staging buffer mapped at creation.
func (m *gpuMemory) upload(dst tensor.Buffer, src []float32) {
	if len(src) == 0 {
		return
	}
	size := bytesOf(len(src))
	staging := m.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	defer staging.Release()

	mapped := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*float32)(mapped), len(src)), src)
	staging.Unmap()

	m.copyBuffers(dst.(*gpuBuffer).buffer, staging, size)
}

// download reads src through a staging buffer, since storage buffers can't
// be mapped directly.
func (m *gpuMemory) download(dst []float32, src tensor.Buffer) {
	if len(dst) == 0 {
		return
	}
	size := bytesOf(len(dst))
	staging := m.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	m.copyBuffers(staging, src.(*gpuBuffer).buffer, size)
	if err := staging.MapAsync(m.device, wgpu.MapModeRead, 0, size); err != nil {
		panic(fmt.Sprintf("webgpu: failed to map staging buffer: %v", err))
	}
	mapped := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(dst, unsafe.Slice((*float32)(mapped), len(dst)))
	staging.Unmap()
}

func (m *gpuMemory) copy(dst, src tensor.Buffer) {
	m.copyBuffers(dst.(*gpuBuffer).buffer, src.(*gpuBuffer).buffer, bytesOf(src.Len()))
}

func (m *gpuMemory) copyBuffers(dst, src *wgpu.Buffer, size uint64) {
	encoder := m.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, dst, 0, size)
	cmd := encoder.Finish(nil)
	m.queue.Submit(cmd)
}

func (m *gpuMemory) close() error {
	m.pool.clear()
	m.queue.Release()
	m.device.Release()
	m.adapter.Release()
	m.instance.Release()
	return nil
}
