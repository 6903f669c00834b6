//go:build !linux && !windows

package process

import (
	"fmt"
	"runtime"
)

func openExternal(pid int) (nativeProcess, error) {
	return nil, fmt.Errorf("attach to process %d on %s: %w", pid, runtime.GOOS, ErrPlatformUnsupported)
}
