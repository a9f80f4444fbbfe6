package control

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyprpal/scenepal/internal/config"
	"github.com/hyprpal/scenepal/internal/engine"
	"github.com/hyprpal/scenepal/internal/metrics"
	"github.com/hyprpal/scenepal/internal/state"
	"github.com/hyprpal/scenepal/internal/util"
)

const testConfig = `{
	"start_scene": "Coding",
	"unknown_app_scene": "Privacy",
	"delay_time": 300,
	"window_class": {"google-chrome": {"strict_match": true, "scene": "Research"}},
	"window_name": {},
	"desktop_name": {}
}`

type staticSource struct {
	cfg *config.Config
}

func (s staticSource) Current(context.Context) (*config.Config, error) { return s.cfg, nil }
func (s staticSource) Invalidate()                                     {}

type discardWriter struct{}

func (discardWriter) WriteScene(string) error { return nil }

func newTestServer(t *testing.T, reload func(string) error) (*Server, *engine.Engine) {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	observer := state.ObserverFunc(func(context.Context) (*state.Observation, error) {
		return state.NewObservation([]string{"google-chrome"}, "Docs", ""), nil
	})
	logger := util.NewLoggerWithWriter(util.LevelError, io.Discard)
	collector := metrics.NewCollector(true)
	eng := engine.New(observer, staticSource{cfg: cfg}, discardWriter{}, logger, engine.Options{Metrics: collector})
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Setenv("SCENEPAL_CONTROL_SOCKET", filepath.Join(t.TempDir(), "control.sock"))
	srv, err := NewServer(eng, logger, reload, collector, Info{ConfigPath: "/tmp/screens.json", Backend: "x11"})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return srv, eng
}

func roundTrip(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	var (
		wg   sync.WaitGroup
		resp Response
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := json.NewEncoder(clientConn).Encode(req); err != nil {
			t.Errorf("encode request: %v", err)
			return
		}
		if err := json.NewDecoder(clientConn).Decode(&resp); err != nil {
			t.Errorf("decode response: %v", err)
		}
	}()
	srv.handle(context.Background(), serverConn)
	wg.Wait()
	return resp
}

func decodeData(t *testing.T, resp Response, out any) {
	t.Helper()
	if resp.Status != StatusOK {
		t.Fatalf("expected ok status, got %s (error=%s)", resp.Status, resp.Error)
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}

func TestHandleStatusAndHistory(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	if _, err := eng.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}

	var status SceneStatus
	decodeData(t, roundTrip(t, srv, Request{Action: ActionStatus}), &status)
	if status.Scene != "Research" || status.ActiveIdentifier != "google-chrome" || status.Backend != "x11" || status.ConfigPath == "" {
		t.Fatalf("unexpected status %#v", status)
	}

	var history HistoryResult
	decodeData(t, roundTrip(t, srv, Request{Action: ActionHistory}), &history)
	if len(history.Transitions) != 1 || history.Transitions[0].Outcome != "switch" || !history.Transitions[0].Persisted {
		t.Fatalf("unexpected history %#v", history)
	}

	var snap MetricsSnapshot
	decodeData(t, roundTrip(t, srv, Request{Action: ActionMetrics}), &snap)
	if snap.Cycles != 1 {
		t.Fatalf("unexpected metrics %#v", snap)
	}
}

func TestHandleResolveExplain(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	var result ResolveResult
	decodeData(t, roundTrip(t, srv, Request{Action: ActionResolve, Params: map[string]any{"explain": true}}), &result)
	if !result.Matched || result.Scene == nil || *result.Scene != "Research" || len(result.Steps) != 1 {
		t.Fatalf("unexpected resolve result %#v", result)
	}
	if eng.Status().Scene != "Coding" {
		t.Fatalf("resolve must not change the scene")
	}
}

func TestHandleReload(t *testing.T) {
	var reasons []string
	srv, _ := newTestServer(t, func(reason string) error {
		reasons = append(reasons, reason)
		return nil
	})
	if resp := roundTrip(t, srv, Request{Action: ActionReload}); resp.Status != StatusOK {
		t.Fatalf("unexpected reload response %#v", resp)
	}
	if len(reasons) != 1 {
		t.Fatalf("expected reload callback, got %v", reasons)
	}

	srv, _ = newTestServer(t, nil)
	if resp := roundTrip(t, srv, Request{Action: ActionReload}); resp.Status != StatusError {
		t.Fatalf("expected error without reload hook, got %#v", resp)
	}
}

func TestHandleUnknownAction(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp := roundTrip(t, srv, Request{Action: "mode.set"})
	if resp.Status != StatusError || resp.Error == "" {
		t.Fatalf("expected error response, got %#v", resp)
	}
}

func TestServeOverSocket(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		var err error
		conn, err = net.Dial("unix", srv.SocketPath())
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial control socket: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := json.NewEncoder(conn).Encode(Request{Action: ActionStatus}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	conn.Close()
	if resp.Status != StatusOK {
		t.Fatalf("unexpected response %#v", resp)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
