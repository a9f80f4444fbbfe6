package control

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/hyprpal/scenepal/internal/metrics"
	"github.com/hyprpal/scenepal/internal/rules"
	"github.com/hyprpal/scenepal/internal/state"
)

const (
	// SocketFileName is the filename of the control socket within the runtime dir.
	SocketFileName = "control.sock"

	// Action names supported by the control protocol.
	ActionStatus  = "status"
	ActionReload  = "reload"
	ActionHistory = "history"
	ActionResolve = "resolve"
	ActionMetrics = "metrics"

	// Response statuses.
	StatusOK    = "ok"
	StatusError = "error"
)

// Request represents a control API request.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Response represents a control API response.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// SceneStatus describes the daemon's scene state and where it reads and
// writes.
type SceneStatus struct {
	Scene            string             `json:"scene"`
	ActiveIdentifier string             `json:"activeIdentifier,omitempty"`
	Stage            string             `json:"stage,omitempty"`
	Rule             string             `json:"rule,omitempty"`
	Observation      *state.Observation `json:"observation,omitempty"`
	LastCycle        time.Time          `json:"lastCycle,omitempty"`
	Delay            string             `json:"delay"`
	DryRun           bool               `json:"dryRun"`
	ConfigPath       string             `json:"configPath,omitempty"`
	OutputPath       string             `json:"outputPath,omitempty"`
	Backend          string             `json:"backend,omitempty"`
}

// Transition mirrors a logged scene transition.
type Transition struct {
	Timestamp  time.Time `json:"timestamp"`
	Outcome    string    `json:"outcome"`
	Previous   string    `json:"previous"`
	Scene      string    `json:"scene"`
	Identifier string    `json:"identifier,omitempty"`
	Rule       string    `json:"rule,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Persisted  bool      `json:"persisted"`
	Error      string    `json:"error,omitempty"`
}

// HistoryResult lists recent transitions, oldest first.
type HistoryResult struct {
	Transitions []Transition `json:"transitions"`
}

// ResolveResult is the outcome of resolving the focused window on demand.
type ResolveResult struct {
	Observation *state.Observation `json:"observation,omitempty"`
	Matched     bool               `json:"matched"`
	Scene       *string            `json:"scene,omitempty"`
	Identifier  string             `json:"identifier,omitempty"`
	Rule        string             `json:"rule,omitempty"`
	Stage       string             `json:"stage,omitempty"`
	Steps       []rules.Step       `json:"steps,omitempty"`
}

// MetricsSnapshot mirrors the daemon's counters.
type MetricsSnapshot = metrics.Snapshot

// DefaultSocketPath returns the expected location of the scenepal control socket.
func DefaultSocketPath() (string, error) {
	if env := os.Getenv("SCENEPAL_CONTROL_SOCKET"); env != "" {
		return env, nil
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	base := runtimeDir
	if base == "" {
		base = os.TempDir()
		if base == "" {
			return "", errors.New("no runtime directory available")
		}
	}
	return filepath.Join(base, "scenepal", SocketFileName), nil
}
