package ipc

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/hyprpal/scenepal/internal/state"
	"github.com/hyprpal/scenepal/internal/util"
)

// Backend names a focus observer implementation.
type Backend string

const (
	BackendAuto     Backend = "auto"
	BackendHyprland Backend = "hyprland"
	BackendX11      Backend = "x11"
	BackendXprop    Backend = "xprop"
	BackendWindows  Backend = "windows"
	BackendDarwin   Backend = "darwin"
)

var backends = []Backend{BackendAuto, BackendHyprland, BackendX11, BackendXprop, BackendWindows, BackendDarwin}

// ParseBackend validates a backend name.
func ParseBackend(name string) (Backend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return BackendAuto, nil
	}
	for _, b := range backends {
		if string(b) == name {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q", name)
}

// DetectBackend picks the observer for the running platform and session.
func DetectBackend() Backend {
	return detectBackend(runtime.GOOS, os.Getenv)
}

func detectBackend(goos string, getenv func(string) string) Backend {
	switch goos {
	case "windows":
		return BackendWindows
	case "darwin":
		return BackendDarwin
	}
	if getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" {
		return BackendHyprland
	}
	return BackendX11
}

// NewObserver builds the observer for backend, resolving BackendAuto first.
// query only applies to the Hyprland backend.
func NewObserver(logger *util.Logger, backend Backend, query QueryStrategy) (state.Observer, Backend, error) {
	if backend == BackendAuto || backend == "" {
		backend = DetectBackend()
		if logger != nil {
			logger.Debugf("detected %s focus backend", backend)
		}
	}
	switch backend {
	case BackendHyprland:
		obs, _, err := NewHyprlandObserver(logger, query)
		if err != nil {
			return nil, "", err
		}
		return obs, backend, nil
	case BackendX11:
		return NewX11Observer(), backend, nil
	case BackendXprop:
		return NewXpropObserver(), backend, nil
	case BackendDarwin:
		return NewDarwinObserver(), backend, nil
	case BackendWindows:
		obs, err := newWindowsObserver()
		if err != nil {
			return nil, "", err
		}
		return obs, backend, nil
	default:
		return nil, "", fmt.Errorf("unknown backend %q", backend)
	}
}
