package ipc

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
)

type socketQuerier struct {
	path string
}

func newSocketQuerier() (*socketQuerier, error) {
	path, err := requestSocketPath()
	if err != nil {
		return nil, err
	}
	return &socketQuerier{path: path}, nil
}

// Query sends a single request and returns the full reply. Hyprland closes the
// connection after answering.
func (q *socketQuerier) Query(ctx context.Context, request string) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", q.path)
	if err != nil {
		return nil, fmt.Errorf("connect request socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set request deadline: %w", err)
		}
	}
	if _, err := conn.Write([]byte(request)); err != nil {
		return nil, fmt.Errorf("write request %q: %w", request, err)
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("read reply to %q: %w", request, err)
	}
	return data, nil
}

func (q *socketQuerier) SocketPath() string {
	return q.path
}

func requestSocketPath() (string, error) {
	return hyprSocketPath(".socket.sock")
}

func hyprSocketPath(name string) (string, error) {
	sig := os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if sig == "" {
		return "", fmt.Errorf("HYPRLAND_INSTANCE_SIGNATURE not set")
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR not set")
	}
	return filepath.Join(runtimeDir, "hypr", sig, name), nil
}
