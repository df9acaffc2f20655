package tensor

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Device owns tensor storage on one backend together with one seeded
// pseudo-random generator.
//
// The Device validates every request (ownership, shapes, sizes, arguments)
// before dispatching to its Backend, so a failing call never leaves a
// partially written tensor behind. Two tensors are on the same device only
// if their Device pointers are equal.
//
// A Device is not safe for concurrent kernel calls; Release of tensors from
// other goroutines is safe.
type Device struct {
	id      uuid.UUID
	backend Backend
	seed    uint64
	src     *rand.PCG

	mu        sync.Mutex
	live      map[*storage]struct{}
	closed    bool
	liveBytes int64
	peakBytes int64
}

// Option configures a Device.
type Option func(*deviceOptions)

type deviceOptions struct {
	seed    uint64
	hasSeed bool
}

// WithSeed fixes the seed of the device random generator.
// Without it the seed is drawn from the clock.
func WithSeed(seed uint64) Option {
	return func(o *deviceOptions) {
		o.seed = seed
		o.hasSeed = true
	}
}

// NewDevice wraps a backend into a Device.
// Backend packages call this from their constructors.
func NewDevice(backend Backend, opts ...Option) *Device {
	var o deviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.hasSeed {
		o.seed = uint64(time.Now().UnixNano()) //nolint:gosec // G115: clock bits only seed the generator
	}
	d := &Device{
		id:      uuid.New(),
		backend: backend,
		seed:    o.seed,
		src:     rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15),
		live:    make(map[*storage]struct{}),
	}
	klog.V(1).Infof("%s: created (seed=%d)", d, d.seed)
	return d
}

// ID returns the unique identifier of the device.
func (d *Device) ID() string {
	return d.id.String()
}

// Type returns the backend type tag.
func (d *Device) Type() DeviceType {
	return d.backend.Type()
}

// Name returns the backend name.
func (d *Device) Name() string {
	return d.backend.Name()
}

// Seed returns the seed of the random generator.
func (d *Device) Seed() uint64 {
	return d.seed
}

// String returns a short description such as "Naive(1b4e28ba)".
func (d *Device) String() string {
	return fmt.Sprintf("%s(%s)", d.backend.Name(), d.id.String()[:8])
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Synchronize blocks until every queued kernel has completed.
func (d *Device) Synchronize() {
	d.backend.Synchronize()
}

// MemoryStats summarizes the storage currently owned by a device.
type MemoryStats struct {
	LiveStorages int
	LiveBytes    int64
	PeakBytes    int64
}

// String renders the stats with human-readable sizes.
func (m MemoryStats) String() string {
	return fmt.Sprintf("%d storages, %s live, %s peak", m.LiveStorages,
		humanize.Bytes(uint64(m.LiveBytes)), humanize.Bytes(uint64(m.PeakBytes))) //nolint:gosec // G115: sizes are non-negative
}

// MemoryStats returns the current storage statistics.
func (d *Device) MemoryStats() MemoryStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return MemoryStats{LiveStorages: len(d.live), LiveBytes: d.liveBytes, PeakBytes: d.peakBytes}
}

// Close frees every storage of the device and releases the backend.
//
// Tensors still referencing the device stay safe to Release, but every other
// use returns ErrDeviceClosed. Closing twice is a no-op.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	leaked := len(d.live)
	bytes := d.liveBytes
	for st := range d.live {
		d.backend.Free(st.buf)
	}
	d.live = nil
	d.liveBytes = 0
	d.closed = true
	d.mu.Unlock()

	if leaked > 0 {
		klog.Warningf("%s: closed with %d live storages (%s); their tensors are now invalid",
			d, leaked, humanize.Bytes(uint64(bytes))) //nolint:gosec // G115: sizes are non-negative
	}
	klog.V(1).Infof("%s: closed", d)
	return d.backend.Close()
}

// checkOpen fails with ErrDeviceClosed after Close.
func (d *Device) checkOpen(op string) error {
	if d.Closed() {
		return errors.Wrapf(ErrDeviceClosed, "%s: %s", d, op)
	}
	return nil
}

// own verifies that every tensor is valid and lives on this open device.
func (d *Device) own(op string, ts ...*Tensor) error {
	if err := d.checkOpen(op); err != nil {
		return err
	}
	for i, t := range ts {
		if !t.Valid() {
			return errors.Wrapf(ErrInvalidTensor, "%s: %s: argument %d", d, op, i)
		}
		if t.st.dev != d {
			if t.st.dev.Closed() {
				return errors.Wrapf(ErrDeviceClosed, "%s: %s: argument %d lives on %s", d, op, i, t.st.dev)
			}
			return errors.Wrapf(ErrDeviceMismatch, "%s: %s: argument %d lives on %s", d, op, i, t.st.dev)
		}
	}
	return nil
}

// newTensor allocates an uninitialized tensor.
func (d *Device) newTensor(shape Shape) (*Tensor, error) {
	st, err := d.allocate(shape.Size())
	if err != nil {
		return nil, err
	}
	return &Tensor{shape: shape, st: st}, nil
}

// NewTensor allocates a zero-filled tensor.
func (d *Device) NewTensor(shape Shape) (*Tensor, error) {
	return d.NewTensorFill(shape, 0)
}

// NewTensorFill allocates a tensor with every element set to value.
func (d *Device) NewTensorFill(shape Shape, value float32) (*Tensor, error) {
	t, err := d.newTensor(shape)
	if err != nil {
		return nil, err
	}
	d.backend.Fill(t.st.buf, value)
	return t, nil
}

// NewTensorByVector allocates a tensor holding values, which must contain
// exactly shape.Size() elements in dim-0-fastest, batch-outermost order.
func (d *Device) NewTensorByVector(shape Shape, values []float32) (*Tensor, error) {
	if len(values) != shape.Size() {
		return nil, shapeErrorf("%s: shape %s requires %d values, got %d", d, shape, shape.Size(), len(values))
	}
	return d.NewTensorByArray(shape, values)
}

// NewTensorByArray allocates a tensor from the first shape.Size() elements
// of values. Extra elements are ignored; fewer fail with ErrShape.
func (d *Device) NewTensorByArray(shape Shape, values []float32) (*Tensor, error) {
	if len(values) < shape.Size() {
		return nil, shapeErrorf("%s: shape %s requires %d values, array has %d", d, shape, shape.Size(), len(values))
	}
	t, err := d.newTensor(shape)
	if err != nil {
		return nil, err
	}
	d.backend.Upload(t.st.buf, values[:shape.Size()])
	return t, nil
}

// Identity returns the size×size identity matrix.
func (d *Device) Identity(size int) (*Tensor, error) {
	if size <= 0 {
		return nil, argumentErrorf("%s: identity size %d (must be > 0)", d, size)
	}
	shape, err := NewShape([]int{size, size}, 1)
	if err != nil {
		return nil, err
	}
	values := make([]float32, size*size)
	for i := 0; i < size; i++ {
		values[i*size+i] = 1
	}
	return d.NewTensorByVector(shape, values)
}

// ResetTensor overwrites every element of t with value, in place.
func (d *Device) ResetTensor(t *Tensor, value float32) error {
	if err := d.own("reset", t); err != nil {
		return err
	}
	if err := d.makeUnique(t); err != nil {
		return err
	}
	d.backend.Fill(t.st.buf, value)
	return nil
}

// ResetTensorByVector overwrites t with values, which must contain exactly
// t.Shape().Size() elements.
func (d *Device) ResetTensorByVector(t *Tensor, values []float32) error {
	if err := d.own("reset", t); err != nil {
		return err
	}
	if len(values) != t.shape.Size() {
		return shapeErrorf("%s: reset of %s requires %d values, got %d", d, t.shape, t.shape.Size(), len(values))
	}
	return d.ResetTensorByArray(t, values)
}

// ResetTensorByArray overwrites t with the first t.Shape().Size() elements
// of values.
func (d *Device) ResetTensorByArray(t *Tensor, values []float32) error {
	if err := d.own("reset", t); err != nil {
		return err
	}
	if len(values) < t.shape.Size() {
		return shapeErrorf("%s: reset of %s requires %d values, array has %d", d, t.shape, t.shape.Size(), len(values))
	}
	if err := d.makeUnique(t); err != nil {
		return err
	}
	d.backend.Upload(t.st.buf, values[:t.shape.Size()])
	return nil
}

// CopyTensor copies x, which may live on another device, onto this device.
func (d *Device) CopyTensor(x *Tensor) (*Tensor, error) {
	if !x.Valid() {
		return nil, errors.Wrapf(ErrInvalidTensor, "%s: copy", d)
	}
	if err := x.st.dev.checkOpen("copy"); err != nil {
		return nil, err
	}
	if err := d.checkOpen("copy"); err != nil {
		return nil, err
	}
	y, err := d.newTensor(x.shape)
	if err != nil {
		return nil, err
	}
	if x.st.dev == d {
		d.backend.Copy(y.st.buf, x.st.buf)
		return y, nil
	}
	host := make([]float32, x.shape.Size())
	x.st.dev.backend.Download(host, x.st.buf)
	d.backend.Upload(y.st.buf, host)
	return y, nil
}
