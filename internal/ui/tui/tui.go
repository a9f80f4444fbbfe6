package tui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyprpal/scenepal/internal/control/client"
)

const (
	defaultRefresh = 500 * time.Millisecond
	titleWidth     = 48
	historyRows    = 10
)

// Daemon is the part of the control client the dashboard needs.
type Daemon interface {
	Status(ctx context.Context) (client.SceneStatus, error)
	History(ctx context.Context) (client.HistoryResult, error)
}

// Renderer periodically polls the daemon and renders a textual dashboard.
type Renderer struct {
	Client  Daemon
	Writer  io.Writer
	Refresh time.Duration
}

// New returns a renderer configured with sensible defaults.
func New(cli Daemon, w io.Writer) *Renderer {
	return &Renderer{Client: cli, Writer: w, Refresh: defaultRefresh}
}

// Run starts the render loop until the context is cancelled.
func (r *Renderer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Writer == nil {
		r.Writer = os.Stdout
	}
	if r.Client == nil {
		return fmt.Errorf("tui renderer requires a control client")
	}

	refresh := r.Refresh
	if refresh <= 0 {
		refresh = defaultRefresh
	}

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	fmt.Fprint(r.Writer, "\033[?25l")
	defer fmt.Fprint(r.Writer, "\033[?25h")

	r.render(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.render(ctx)
		}
	}
}

func (r *Renderer) render(ctx context.Context) {
	var buf bytes.Buffer
	buf.WriteString("\033[H\033[2J")
	buf.WriteString("scenepal watch, Ctrl+C to exit\n")
	buf.WriteString(time.Now().Format(time.RFC1123))
	buf.WriteString("\n\n")

	status, err := r.Client.Status(ctx)
	if err != nil {
		buf.WriteString(fmt.Sprintf("error: %v\n", err))
		fmt.Fprint(r.Writer, buf.String())
		return
	}
	buf.WriteString(renderStatus(status))
	history, err := r.Client.History(ctx)
	if err != nil {
		buf.WriteString(fmt.Sprintf("history unavailable: %v\n", err))
	} else {
		buf.WriteString(renderHistory(history.Transitions))
	}
	fmt.Fprint(r.Writer, buf.String())
}

func renderStatus(status client.SceneStatus) string {
	var b strings.Builder
	scene := status.Scene
	if scene == "" {
		scene = "(none)"
	}
	b.WriteString(fmt.Sprintf("Scene: %s", scene))
	if status.DryRun {
		b.WriteString(" (dry-run)")
	}
	b.WriteByte('\n')
	if status.ActiveIdentifier != "" {
		b.WriteString(fmt.Sprintf("Matched: %s via %s rule %q\n", status.ActiveIdentifier, status.Stage, status.Rule))
	}
	b.WriteString(fmt.Sprintf("Poll: every %s", status.Delay))
	if !status.LastCycle.IsZero() {
		b.WriteString(fmt.Sprintf(", last at %s", status.LastCycle.Format(time.TimeOnly)))
	}
	b.WriteByte('\n')
	if status.Backend != "" {
		b.WriteString(fmt.Sprintf("Backend: %s\n", status.Backend))
	}
	b.WriteByte('\n')

	b.WriteString("Focused window:\n")
	obs := status.Observation
	if obs == nil {
		b.WriteString("  (none)\n\n")
		return b.String()
	}
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	classes := strings.Join(obs.Classes, ", ")
	if classes == "" {
		classes = "(unknown)"
	}
	title := obs.Title
	if title == "" {
		title = "(untitled)"
	}
	workspace := obs.Workspace
	if workspace == "" {
		workspace = "-"
	}
	fmt.Fprintf(tw, "  Class\t%s\n", classes)
	fmt.Fprintf(tw, "  Title\t%s\n", truncate(title, titleWidth))
	fmt.Fprintf(tw, "  Desktop\t%s\n", workspace)
	tw.Flush()
	b.WriteByte('\n')
	return b.String()
}

func renderHistory(transitions []client.Transition) string {
	var b strings.Builder
	b.WriteString("Recent transitions:\n")
	if len(transitions) == 0 {
		b.WriteString("  (none)\n")
		return b.String()
	}
	if len(transitions) > historyRows {
		transitions = transitions[len(transitions)-historyRows:]
	}
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Time\tOutcome\tScene\tIdentifier\tStage\tState")
	for i := len(transitions) - 1; i >= 0; i-- {
		tr := transitions[i]
		scene := tr.Scene
		if tr.Previous != tr.Scene {
			scene = fmt.Sprintf("%s -> %s", tr.Previous, tr.Scene)
		}
		identifier := tr.Identifier
		if identifier == "" {
			identifier = "-"
		}
		stage := tr.Stage
		if stage == "" {
			stage = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tr.Timestamp.Format(time.TimeOnly), tr.Outcome, scene, truncate(identifier, titleWidth), stage, transitionState(tr))
	}
	tw.Flush()
	return b.String()
}

func transitionState(tr client.Transition) string {
	switch {
	case tr.Error != "":
		return "error: " + tr.Error
	case tr.Persisted:
		return "written"
	default:
		return "-"
	}
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
