package tensor

import (
	"sync"

	"github.com/pkg/errors"
)

// Context holds the caller's current default device.
//
// It is an ordinary value owned by the caller and passed where needed;
// nothing in this module consults a process-wide default. The zero value
// has no default.
type Context struct {
	mu  sync.Mutex
	dev *Device
}

// SetDefault makes dev the default device. Passing nil clears it.
func (c *Context) SetDefault(dev *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dev = dev
}

// Default returns the default device.
// It fails with ErrNoDefault when none is set or the device has been closed.
func (c *Context) Default() (*Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return nil, errors.Wrap(ErrNoDefault, "default device is not set")
	}
	if c.dev.Closed() {
		return nil, errors.Wrapf(ErrNoDefault, "default device %s has been closed", c.dev)
	}
	return c.dev, nil
}
