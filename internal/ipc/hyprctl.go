package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hyprpal/scenepal/internal/state"
	"github.com/hyprpal/scenepal/internal/util"
)

// Client wraps hyprctl shell-outs.
type Client struct {
	Binary string
}

// NewClient returns a hyprctl client using the binary on PATH.
func NewClient() *Client {
	return &Client{Binary: "hyprctl"}
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("hyprctl %s: %v: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (c *Client) queryJSON(ctx context.Context, topic string) ([]byte, error) {
	return c.run(ctx, "-j", topic)
}

// ActiveWindow returns the focused client.
func (c *Client) ActiveWindow(ctx context.Context) (*state.Observation, error) {
	data, err := c.queryJSON(ctx, "activewindow")
	if err != nil {
		return nil, err
	}
	return parseActiveWindow(data)
}

// parseActiveWindow decodes the activewindow reply. Hyprland answers with an
// empty object when nothing is focused.
func parseActiveWindow(data []byte) (*state.Observation, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, state.ErrNoFocus
	}
	var payload struct {
		Address      string `json:"address"`
		Class        string `json:"class"`
		InitialClass string `json:"initialClass"`
		Title        string `json:"title"`
		Workspace    struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"workspace"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode activewindow: %w", err)
	}
	if payload.Address == "" && payload.Class == "" && payload.Title == "" {
		return nil, state.ErrNoFocus
	}
	workspace := payload.Workspace.Name
	if workspace == "" && payload.Workspace.ID != 0 {
		workspace = fmt.Sprintf("%d", payload.Workspace.ID)
	}
	classes := []string{payload.Class}
	if payload.InitialClass != "" {
		classes = append(classes, payload.InitialClass)
	}
	return state.NewObservation(classes, payload.Title, workspace), nil
}

// QueryStrategy describes how focus queries reach Hyprland.
type QueryStrategy string

const (
	// QueryStrategySocket talks to the Hyprland request socket directly.
	QueryStrategySocket QueryStrategy = "socket"
	// QueryStrategyHyprctl shells out to the hyprctl binary.
	QueryStrategyHyprctl QueryStrategy = "hyprctl"
)

// HyprlandObserver reports the focused Hyprland client.
type HyprlandObserver struct {
	*Client
	socket *socketQuerier
}

// Observe implements state.Observer.
func (o *HyprlandObserver) Observe(ctx context.Context) (*state.Observation, error) {
	if o.socket == nil {
		return o.ActiveWindow(ctx)
	}
	data, err := o.socket.Query(ctx, "j/activewindow")
	if err != nil {
		return nil, err
	}
	return parseActiveWindow(data)
}

// NewHyprlandObserver returns an observer using the requested strategy when
// possible.
func NewHyprlandObserver(logger *util.Logger, requested QueryStrategy) (*HyprlandObserver, QueryStrategy, error) {
	base := NewClient()
	switch requested {
	case QueryStrategySocket:
		querier, err := newSocketQuerier()
		if err != nil {
			if logger != nil {
				logger.Warnf("falling back to hyprctl queries: %v", err)
			}
			return &HyprlandObserver{Client: base}, QueryStrategyHyprctl, nil
		}
		if logger != nil {
			logger.Debugf("using socket queries at %s", querier.SocketPath())
		}
		return &HyprlandObserver{Client: base, socket: querier}, QueryStrategySocket, nil
	case QueryStrategyHyprctl:
		return &HyprlandObserver{Client: base}, QueryStrategyHyprctl, nil
	default:
		return nil, "", fmt.Errorf("unknown query strategy %q", requested)
	}
}

var _ state.Observer = (*HyprlandObserver)(nil)
