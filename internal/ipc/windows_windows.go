//go:build windows

package ipc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/hyprpal/scenepal/internal/state"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
)

// WindowsObserver reads the foreground window. The owning executable's base
// name without extension is reported as the window class.
type WindowsObserver struct{}

func newWindowsObserver() (state.Observer, error) {
	if err := procGetWindowTextW.Find(); err != nil {
		return nil, fmt.Errorf("load GetWindowTextW: %w", err)
	}
	return &WindowsObserver{}, nil
}

// Observe implements state.Observer.
func (o *WindowsObserver) Observe(ctx context.Context) (*state.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return nil, state.ErrNoFocus
	}
	title := windowText(hwnd)
	var classes []string
	if exe, err := processImage(hwnd); err == nil {
		classes = append(classes, strings.TrimSuffix(exe, filepath.Ext(exe)))
	}
	return state.NewObservation(classes, title, ""), nil
}

func windowText(hwnd windows.HWND) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	copied, _, _ := procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf[:copied])
}

func processImage(hwnd windows.HWND) (string, error) {
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil {
		return "", fmt.Errorf("window process id: %w", err)
	}
	proc, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(proc)
	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(proc, 0, &buf[0], &size); err != nil {
		return "", fmt.Errorf("query process image: %w", err)
	}
	return filepath.Base(windows.UTF16ToString(buf[:size])), nil
}
