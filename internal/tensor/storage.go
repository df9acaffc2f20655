package tensor

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// storage is a reference-counted, device-owned buffer.
// Tensors share a storage after Clone; writers make it unique first
// (copy-on-write), so clones never observe each other's mutations.
type storage struct {
	dev  *Device
	buf  Buffer
	refs atomic.Int32
}

// addRef increments the reference count.
func (s *storage) addRef() {
	s.refs.Add(1)
}

// release decrements the reference count and returns the buffer to the
// device when it reaches 0.
func (s *storage) release() {
	if s.refs.Add(-1) == 0 {
		s.dev.free(s)
	}
}

// isUnique reports whether exactly one tensor references the storage.
func (s *storage) isUnique() bool {
	return s.refs.Load() == 1
}

// allocate reserves a new storage of size elements in the device arena.
func (d *Device) allocate(size int) (*storage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.Wrapf(ErrDeviceClosed, "%s: allocate", d)
	}
	buf, err := d.backend.Allocate(size)
	if err != nil {
		return nil, errors.Wrapf(ErrAllocation, "%s: allocating %d values: %v", d, size, err)
	}
	st := &storage{dev: d, buf: buf}
	st.refs.Store(1)
	d.live[st] = struct{}{}
	d.liveBytes += int64(size) * 4
	d.peakBytes = max(d.peakBytes, d.liveBytes)
	if klog.V(2).Enabled() {
		klog.Infof("%s: allocated %d values (%d live storages)", d, size, len(d.live))
	}
	return st, nil
}

// free returns a storage to the backend. Storages of a closed device were
// already freed by Close.
func (d *Device) free(st *storage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if _, ok := d.live[st]; !ok {
		return
	}
	delete(d.live, st)
	d.liveBytes -= int64(st.buf.Len()) * 4
	d.backend.Free(st.buf)
}

// makeUnique gives t its own storage if it currently shares one.
func (d *Device) makeUnique(t *Tensor) error {
	if t.st.isUnique() {
		return nil
	}
	st, err := d.allocate(t.shape.Size())
	if err != nil {
		return err
	}
	d.backend.Copy(st.buf, t.st.buf)
	t.st.release()
	t.st = st
	return nil
}
