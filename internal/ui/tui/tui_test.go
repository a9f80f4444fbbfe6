package tui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyprpal/scenepal/internal/control/client"
	"github.com/hyprpal/scenepal/internal/state"
)

type fakeDaemon struct {
	status     client.SceneStatus
	history    client.HistoryResult
	statusErr  error
	historyErr error
}

func (f fakeDaemon) Status(context.Context) (client.SceneStatus, error) {
	return f.status, f.statusErr
}

func (f fakeDaemon) History(context.Context) (client.HistoryResult, error) {
	return f.history, f.historyErr
}

func TestRenderShowsSceneAndHistory(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	daemon := fakeDaemon{
		status: client.SceneStatus{
			Scene:            "Research",
			ActiveIdentifier: "google-chrome",
			Stage:            "window_class.strict",
			Rule:             "google-chrome",
			Delay:            "300ms",
			Observation:      &state.Observation{Classes: []string{"google-chrome"}, Title: strings.Repeat("x", 80)},
		},
		history: client.HistoryResult{Transitions: []client.Transition{
			{Timestamp: now, Outcome: "switch", Previous: "Coding", Scene: "Research", Identifier: "google-chrome", Stage: "window_class.strict", Persisted: true},
			{Timestamp: now.Add(time.Second), Outcome: "same", Previous: "Research", Scene: "Research", Identifier: "chromium", Stage: "window_class.relative"},
		}},
	}
	var out bytes.Buffer
	r := New(daemon, &out)
	r.render(context.Background())

	got := out.String()
	for _, want := range []string{
		"Scene: Research",
		`Matched: google-chrome via window_class.strict rule "google-chrome"`,
		"Coding -> Research",
		"written",
		"…",
		"Desktop  -",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output:\n%s", want, got)
		}
	}
	if strings.Index(got, "chromium") > strings.Index(got, "Coding -> Research") {
		t.Fatalf("expected newest transition first:\n%s", got)
	}
}

func TestRenderReportsErrors(t *testing.T) {
	var out bytes.Buffer
	New(fakeDaemon{statusErr: errors.New("dial control socket: no such file")}, &out).render(context.Background())
	if !strings.Contains(out.String(), "error: dial control socket") {
		t.Fatalf("expected error in output:\n%s", out.String())
	}

	out.Reset()
	New(fakeDaemon{status: client.SceneStatus{Scene: "Coding"}, historyErr: errors.New("boom")}, &out).render(context.Background())
	if !strings.Contains(out.String(), "history unavailable: boom") || !strings.Contains(out.String(), "(none)") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("unexpected truncate result %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("unexpected truncate result %q", got)
	}
}
