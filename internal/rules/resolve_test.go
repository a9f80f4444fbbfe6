package rules

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hyprpal/scenepal/internal/config"
	"github.com/hyprpal/scenepal/internal/state"
)

func scene(name string) *string { return &name }

func strict(id string, sc *string) Rule   { return Rule{Identifier: id, Strict: true, Scene: sc} }
func relative(id string, sc *string) Rule { return Rule{Identifier: id, Scene: sc} }

func observe(title, workspace string, classes ...string) *state.Observation {
	return &state.Observation{Classes: classes, Title: title, Workspace: workspace}
}

func TestResolvePrecedence(t *testing.T) {
	rs := RuleSet{
		Desktop: RuleList{
			Strict:   []Rule{strict("Streaming", scene("Desk"))},
			Relative: []Rule{relative("stream", scene("DeskRel"))},
		},
		WindowName: RuleList{
			Strict:   []Rule{strict("Inbox", scene("Title"))},
			Relative: []Rule{relative("inb", scene("TitleRel"))},
		},
		WindowClass: RuleList{
			Strict:   []Rule{strict("thunderbird", scene("Class"))},
			Relative: []Rule{relative("thunder", scene("ClassRel"))},
		},
	}

	tests := []struct {
		name      string
		obs       *state.Observation
		wantScene string
		wantStage Stage
		wantID    string
	}{
		{"desktop strict beats all", observe("Inbox", "Streaming", "thunderbird"), "Desk", StageDesktopStrict, "Streaming"},
		{"desktop relative beats window rules", observe("Inbox", "my streaming desk", "thunderbird"), "DeskRel", StageDesktopRelative, "my streaming desk"},
		{"title strict beats class", observe("Inbox", "2", "thunderbird"), "Title", StageWindowNameStrict, "Inbox"},
		{"title relative beats class", observe("Old INBOX items", "2", "thunderbird"), "TitleRel", StageWindowNameRelative, "Old INBOX items"},
		{"class strict beats class relative", observe("Compose", "2", "thunderbird"), "Class", StageWindowClassStrict, "thunderbird"},
		{"class relative last", observe("Compose", "2", "Mozilla-Thunderbird"), "ClassRel", StageWindowClassRelative, "Mozilla-Thunderbird"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Resolve(tc.obs, rs)
			if res == nil {
				t.Fatalf("expected a match")
			}
			if res.SceneName() != tc.wantScene || res.Stage != tc.wantStage || res.Identifier != tc.wantID {
				t.Fatalf("got scene %q stage %s id %q, want %q %s %q", res.SceneName(), res.Stage, res.Identifier, tc.wantScene, tc.wantStage, tc.wantID)
			}
		})
	}
}

func TestResolveRelativeIsCaseInsensitiveBothWays(t *testing.T) {
	upperRule := RuleSet{WindowClass: RuleList{Relative: []Rule{relative("Chrome", scene("Research"))}}}
	if res := Resolve(observe("", "", "google-chrome"), upperRule); res == nil || res.SceneName() != "Research" {
		t.Fatalf("expected Chrome to match google-chrome, got %#v", res)
	}
	lowerRule := RuleSet{WindowClass: RuleList{Relative: []Rule{relative("chrome", scene("Research"))}}}
	if res := Resolve(observe("", "", "Google-Chrome"), lowerRule); res == nil || res.SceneName() != "Research" {
		t.Fatalf("expected chrome to match Google-Chrome, got %#v", res)
	}
}

func TestResolveStrictIsCaseSensitive(t *testing.T) {
	rs := RuleSet{
		WindowName:  RuleList{Strict: []Rule{strict("Chrome", scene("Research"))}},
		WindowClass: RuleList{Strict: []Rule{strict("Chrome", scene("Research"))}},
		Desktop:     RuleList{Strict: []Rule{strict("Chrome", scene("Research"))}},
	}
	if res := Resolve(observe("chrome", "chrome", "chrome"), rs); res != nil {
		t.Fatalf("strict matching must be case-sensitive, got %#v", res)
	}
	if res := Resolve(observe("Chrome tab", "", ""), rs); res != nil {
		t.Fatalf("strict matching must be exact, got %#v", res)
	}
}

func TestResolveStrictUsesClassesAsObserved(t *testing.T) {
	rs := RuleSet{WindowClass: RuleList{Strict: []Rule{
		strict("kitty", scene("Coding")),
		strict("", scene("Blank")),
	}}}
	if res := Resolve(state.NewObservation([]string{" kitty"}, "", ""), rs); res != nil {
		t.Fatalf("padded class must not strict-match, got %#v", res)
	}
	res := Resolve(state.NewObservation([]string{""}, "", ""), rs)
	if res == nil || res.SceneName() != "Blank" {
		t.Fatalf("expected empty class to strict-match the empty identifier, got %#v", res)
	}
}

func TestResolveClassIterationOrder(t *testing.T) {
	rs := RuleSet{WindowClass: RuleList{Strict: []Rule{
		strict("Navigator", scene("Second")),
		strict("firefox", scene("First")),
	}}}
	// Classes are the outer loop: the first class with any hit wins even if
	// a later class matches an earlier rule.
	res := Resolve(observe("", "", "firefox", "Navigator"), rs)
	if res == nil || res.SceneName() != "First" || res.Identifier != "firefox" {
		t.Fatalf("expected firefox to win, got %#v", res)
	}
}

func TestResolveRelativeUsesConfigOrder(t *testing.T) {
	rs := RuleSet{WindowName: RuleList{Relative: []Rule{
		relative("code", scene("Coding")),
		relative("visual studio code", scene("IDE")),
	}}}
	res := Resolve(observe("main.go - Visual Studio Code", "", ""), rs)
	if res == nil || res.SceneName() != "Coding" || res.Rule != "code" {
		t.Fatalf("expected first configured rule to win, got %#v", res)
	}
}

func TestResolveNullSceneIsStillAMatch(t *testing.T) {
	rs := RuleSet{WindowClass: RuleList{Strict: []Rule{strict("obs", nil)}}}
	res := Resolve(observe("OBS 30", "", "obs"), rs)
	if res == nil {
		t.Fatalf("expected recognized window to produce a resolution")
	}
	if res.Scene != nil || res.Identifier != "obs" {
		t.Fatalf("expected nil scene with identifier, got %#v", res)
	}
}

func TestResolveNoMatch(t *testing.T) {
	rs := RuleSet{WindowClass: RuleList{Strict: []Rule{strict("kitty", scene("Coding"))}}}
	if res := Resolve(observe("Steam", "", "steam"), rs); res != nil {
		t.Fatalf("expected no match, got %#v", res)
	}
	if res := Resolve(nil, rs); res != nil {
		t.Fatalf("expected nil observation to resolve to nothing")
	}
}

func TestResolveEmptyRelativeIdentifierMatchesEverything(t *testing.T) {
	rs := RuleSet{WindowName: RuleList{Relative: []Rule{relative("", scene("Any"))}}}
	res := Resolve(observe("", "", "whatever"), rs)
	if res == nil || res.SceneName() != "Any" {
		t.Fatalf("expected empty identifier to match, got %#v", res)
	}
}

func TestDeriveSplitsAndKeepsOrder(t *testing.T) {
	yes, no := true, false
	cfg := &config.Config{
		WindowClass: config.Section{Entries: []config.Entry{
			{Identifier: "b", StrictMatch: &no, Scene: scene("B")},
			{Identifier: "a", StrictMatch: &yes, Scene: scene("A")},
			{Identifier: "skip", StrictMatch: nil, Scene: scene("S")},
			{Identifier: "c", StrictMatch: &no},
		}},
		DesktopName: config.Section{Entries: []config.Entry{
			{Identifier: "dev", StrictMatch: &yes, Scene: scene("Dev")},
		}},
	}
	rs := Derive(cfg)
	want := RuleSet{
		Desktop: RuleList{Strict: []Rule{strict("dev", scene("Dev"))}},
		WindowClass: RuleList{
			Strict:   []Rule{strict("a", scene("A"))},
			Relative: []Rule{relative("b", scene("B")), relative("c", nil)},
		},
	}
	if diff := cmp.Diff(want, rs); diff != "" {
		t.Fatalf("unexpected rule set (-want +got):\n%s", diff)
	}
	if rs.Len() != 4 {
		t.Fatalf("unexpected Len %d", rs.Len())
	}
	if got := Derive(nil); got.Len() != 0 {
		t.Fatalf("expected empty rule set for nil config")
	}
}

func TestExplainRecordsComparisons(t *testing.T) {
	rs := RuleSet{
		WindowName:  RuleList{Strict: []Rule{strict("Inbox", scene("Mail"))}},
		WindowClass: RuleList{Relative: []Rule{relative("slack", scene("Chat"))}},
	}
	res, steps := Explain(observe("General", "", "Slack"), rs)
	if res == nil || res.SceneName() != "Chat" {
		t.Fatalf("unexpected resolution %#v", res)
	}
	want := []Step{
		{Stage: "window_name.strict", Rule: "Inbox", Candidate: "General", Matched: false, Scene: scene("Mail")},
		{Stage: "window_class.relative", Rule: "slack", Candidate: "Slack", Matched: true, Scene: scene("Chat")},
	}
	if diff := cmp.Diff(want, steps); diff != "" {
		t.Fatalf("unexpected steps (-want +got):\n%s", diff)
	}
}

func TestStageMetadata(t *testing.T) {
	if StageDesktopRelative.Category() != CategoryDesktop || StageDesktopRelative.Strict() {
		t.Fatalf("unexpected desktop relative metadata")
	}
	if StageWindowClassStrict.Category() != CategoryWindowClass || !StageWindowClassStrict.Strict() {
		t.Fatalf("unexpected window class strict metadata")
	}
	if Stage(42).String() != "unknown" {
		t.Fatalf("unexpected name for invalid stage")
	}
}
