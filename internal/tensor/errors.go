package tensor

import "github.com/pkg/errors"

// Error kinds returned by shapes, devices and tensors.
//
// Every error produced by this package wraps exactly one of these sentinels,
// so callers match them with errors.Is regardless of the context attached.
var (
	// ErrShape reports incompatible or invalid dimensions, batch sizes or
	// element counts.
	ErrShape = errors.New("shape error")

	// ErrAllocation reports that a backend could not provide the requested
	// storage or could not be initialized.
	ErrAllocation = errors.New("allocation error")

	// ErrInvalidTensor reports use of a zero-value or released tensor.
	ErrInvalidTensor = errors.New("invalid tensor")

	// ErrDeviceClosed reports use of a tensor whose device has been closed.
	ErrDeviceClosed = errors.New("device closed")

	// ErrDeviceMismatch reports tensors of one call living on different devices.
	ErrDeviceMismatch = errors.New("device mismatch")

	// ErrInvalidArgument reports malformed scalar arguments such as a
	// probability outside [0, 1].
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoDefault reports that a Context has no usable default device.
	ErrNoDefault = errors.New("no default device")
)

func shapeErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrShape, format, args...)
}

func argumentErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}
