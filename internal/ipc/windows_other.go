//go:build !windows

package ipc

import (
	"fmt"
	"runtime"

	"github.com/hyprpal/scenepal/internal/state"
)

func newWindowsObserver() (state.Observer, error) {
	return nil, fmt.Errorf("windows backend is not available on %s", runtime.GOOS)
}
