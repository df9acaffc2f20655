package tensor

import (
	"fmt"

	"github.com/pkg/errors"
)

// Tensor is a shaped handle to device-owned storage.
//
// The zero value is an invalid tensor: it has no shape or storage and every
// accessor except Valid, Shape and Release fails with ErrInvalidTensor.
// Clone is cheap (shared storage); mutating calls copy shared storage first,
// so a clone and its source always behave as independent values.
type Tensor struct {
	shape Shape
	st    *storage
}

// Valid reports whether the tensor references storage.
func (t *Tensor) Valid() bool {
	return t != nil && t.st != nil
}

// Shape returns the tensor's shape (the scalar shape for invalid tensors).
func (t *Tensor) Shape() Shape {
	if t == nil {
		return Shape{}
	}
	return t.shape
}

// Device returns the owning device, or nil for invalid tensors.
func (t *Tensor) Device() *Device {
	if !t.Valid() {
		return nil
	}
	return t.st.dev
}

// Clone returns a tensor sharing this tensor's storage.
// Cloning an invalid tensor returns another invalid tensor.
func (t *Tensor) Clone() *Tensor {
	if !t.Valid() {
		return &Tensor{}
	}
	t.st.addRef()
	return &Tensor{shape: t.shape, st: t.st}
}

// Release drops this tensor's reference to its storage and invalidates it.
// It is always safe, including after the device was closed, and idempotent.
func (t *Tensor) Release() {
	if !t.Valid() {
		return
	}
	st := t.st
	t.st = nil
	st.release()
}

// ToVector copies every element to host memory, dim 0 fastest and batch
// outermost.
func (t *Tensor) ToVector() ([]float32, error) {
	if !t.Valid() {
		return nil, errors.Wrap(ErrInvalidTensor, "to vector")
	}
	dev := t.st.dev
	if err := dev.checkOpen("to vector"); err != nil {
		return nil, err
	}
	out := make([]float32, t.shape.Size())
	dev.backend.Download(out, t.st.buf)
	return out, nil
}

// ToFloat returns the only element of a single-element tensor.
func (t *Tensor) ToFloat() (float32, error) {
	if t.Valid() && t.shape.Size() != 1 {
		return 0, shapeErrorf("to float: tensor %s has %d elements", t.shape, t.shape.Size())
	}
	v, err := t.ToVector()
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// Reset overwrites every element with value.
func (t *Tensor) Reset(value float32) error {
	if !t.Valid() {
		return errors.Wrap(ErrInvalidTensor, "reset")
	}
	return t.st.dev.ResetTensor(t, value)
}

// ResetByVector overwrites the elements with values.
func (t *Tensor) ResetByVector(values []float32) error {
	if !t.Valid() {
		return errors.Wrap(ErrInvalidTensor, "reset")
	}
	return t.st.dev.ResetTensorByVector(t, values)
}

// ResetByArray overwrites the elements with the first Shape().Size()
// entries of values.
func (t *Tensor) ResetByArray(values []float32) error {
	if !t.Valid() {
		return errors.Wrap(ErrInvalidTensor, "reset")
	}
	return t.st.dev.ResetTensorByArray(t, values)
}

// String returns a human-readable description of the tensor.
func (t *Tensor) String() string {
	if !t.Valid() {
		return "Tensor(invalid)"
	}
	return fmt.Sprintf("Tensor%s on %s", t.shape, t.st.dev)
}
