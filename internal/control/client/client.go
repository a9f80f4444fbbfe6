package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hyprpal/scenepal/internal/control"
)

const (
	// defaultTimeout is used when the caller does not provide a context deadline.
	defaultTimeout = 3 * time.Second
)

// Client talks to the running scenepal daemon over its control socket.
type Client struct {
	socketPath string
}

type (
	// SceneStatus describes the daemon's scene state.
	SceneStatus = control.SceneStatus
	// Transition mirrors a logged scene transition.
	Transition = control.Transition
	// HistoryResult lists recent transitions.
	HistoryResult = control.HistoryResult
	// ResolveResult is the outcome of resolving the focused window on demand.
	ResolveResult = control.ResolveResult
	// MetricsSnapshot mirrors the daemon's counters.
	MetricsSnapshot = control.MetricsSnapshot
)

// New creates a client that connects to the provided socket path. When path is
// empty, the default runtime path is used.
func New(path string) (*Client, error) {
	if path == "" {
		var err error
		path, err = control.DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}
	return &Client{socketPath: path}, nil
}

// Status retrieves the daemon's current scene and last observation.
func (c *Client) Status(ctx context.Context) (SceneStatus, error) {
	var status SceneStatus
	if err := c.do(ctx, control.Request{Action: control.ActionStatus}, &status); err != nil {
		return SceneStatus{}, err
	}
	return status, nil
}

// Reload asks the daemon to re-read its configuration now.
func (c *Client) Reload(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionReload}, nil)
}

// History retrieves the recent scene transitions.
func (c *Client) History(ctx context.Context) (HistoryResult, error) {
	var result HistoryResult
	if err := c.do(ctx, control.Request{Action: control.ActionHistory}, &result); err != nil {
		return HistoryResult{}, err
	}
	return result, nil
}

// Resolve asks the daemon to resolve the focused window without changing
// scene, optionally with the individual comparisons.
func (c *Client) Resolve(ctx context.Context, explain bool) (ResolveResult, error) {
	params := map[string]any{"explain": explain}
	var result ResolveResult
	if err := c.do(ctx, control.Request{Action: control.ActionResolve, Params: params}, &result); err != nil {
		return ResolveResult{}, err
	}
	return result, nil
}

// Metrics retrieves the daemon's counters.
func (c *Client) Metrics(ctx context.Context) (MetricsSnapshot, error) {
	var snap MetricsSnapshot
	if err := c.do(ctx, control.Request{Action: control.ActionMetrics}, &snap); err != nil {
		return MetricsSnapshot{}, err
	}
	return snap, nil
}

func (c *Client) do(ctx context.Context, req control.Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	var resp control.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != control.StatusOK {
		if resp.Error == "" {
			resp.Error = "unknown control error"
		}
		return errors.New(resp.Error)
	}
	if out == nil || resp.Data == nil {
		return nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
