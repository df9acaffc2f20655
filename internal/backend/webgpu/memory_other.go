//go:build !windows

package webgpu

import (
	"fmt"
	"runtime"
)

// openMemory fails: GPU storage is only built for windows.
func openMemory(int) (memory, error) {
	return nil, fmt.Errorf("not available on %s", runtime.GOOS)
}
