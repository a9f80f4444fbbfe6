package ipc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"

	"github.com/hyprpal/scenepal/internal/state"
)

// X11Observer reads EWMH and ICCCM properties over a persistent X connection.
type X11Observer struct {
	mu sync.Mutex
	xu *xgbutil.XUtil
}

// NewX11Observer returns an observer that connects lazily to $DISPLAY.
func NewX11Observer() *X11Observer {
	return &X11Observer{}
}

func (o *X11Observer) conn() (*xgbutil.XUtil, error) {
	if o.xu != nil {
		return o.xu, nil
	}
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect to X server: %w", err)
	}
	o.xu = xu
	return xu, nil
}

// Observe implements state.Observer. The X calls do not take a context; ctx is
// only checked before querying.
func (o *X11Observer) Observe(ctx context.Context) (*state.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	xu, err := o.conn()
	if err != nil {
		return nil, err
	}
	win, err := ewmh.ActiveWindowGet(xu)
	if err != nil {
		o.reset()
		return nil, fmt.Errorf("read _NET_ACTIVE_WINDOW: %w", err)
	}
	if win == 0 {
		return nil, state.ErrNoFocus
	}

	var classes []string
	if class, err := icccm.WmClassGet(xu, win); err == nil && class != nil {
		classes = []string{class.Instance, class.Class}
	}
	return state.NewObservation(classes, windowTitle(xu, win), currentDesktop(xu)), nil
}

// Close releases the X connection.
func (o *X11Observer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reset()
}

func (o *X11Observer) reset() {
	if o.xu != nil {
		o.xu.Conn().Close()
		o.xu = nil
	}
}

func windowTitle(xu *xgbutil.XUtil, win xproto.Window) string {
	if title, err := ewmh.WmNameGet(xu, win); err == nil && strings.TrimSpace(title) != "" {
		return title
	}
	if title, err := icccm.WmNameGet(xu, win); err == nil {
		return title
	}
	return ""
}

func currentDesktop(xu *xgbutil.XUtil) string {
	idx, err := ewmh.CurrentDesktopGet(xu)
	if err != nil {
		return ""
	}
	names, err := ewmh.DesktopNamesGet(xu)
	if err != nil || int(idx) >= len(names) {
		return ""
	}
	return names[idx]
}

var _ state.Observer = (*X11Observer)(nil)
