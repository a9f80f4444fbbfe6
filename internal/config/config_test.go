package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func identifiers(section Section) []string {
	ids := make([]string, 0, len(section.Entries))
	for _, e := range section.Entries {
		ids = append(ids, e.Identifier)
	}
	return ids
}

func hasWarning(warnings []Warning, path, fragment string) bool {
	for _, w := range warnings {
		if w.Path == path && strings.Contains(w.Message, fragment) {
			return true
		}
	}
	return false
}

func TestParseTemplate(t *testing.T) {
	cfg, err := Parse([]byte(Template))
	if err != nil {
		t.Fatalf("parse template: %v", err)
	}
	if len(cfg.Warnings) != 0 {
		t.Fatalf("template should not produce warnings, got %v", cfg.Warnings)
	}
	if cfg.StartScene != "Coding" {
		t.Fatalf("unexpected start scene %q", cfg.StartScene)
	}
	if cfg.UnknownAppScene == nil || *cfg.UnknownAppScene != "Privacy" {
		t.Fatalf("unexpected unknown app scene %v", cfg.UnknownAppScene)
	}
	if cfg.DelayMs != 300 {
		t.Fatalf("unexpected delay %d", cfg.DelayMs)
	}
	if diff := cmp.Diff([]string{"google-chrome", "jetbrains"}, identifiers(cfg.WindowClass)); diff != "" {
		t.Fatalf("unexpected window_class order (-want +got):\n%s", diff)
	}
	chrome := cfg.WindowClass.Entries[0]
	if chrome.StrictMatch == nil || !*chrome.StrictMatch || chrome.Scene == nil || *chrome.Scene != "Research" {
		t.Fatalf("unexpected chrome entry: %#v", chrome)
	}
	if len(cfg.DesktopName.Entries) != 0 {
		t.Fatalf("expected empty desktop_name section")
	}
}

func TestParsePreservesInsertionOrder(t *testing.T) {
	data := []byte(`{
		"start_scene": "A",
		"delay_time": 100,
		"window_class": {},
		"desktop_name": {},
		"window_name": {
			"zeta": {"strict_match": false, "scene": "Z"},
			"alpha": {"strict_match": false, "scene": "A"},
			"mid": {"strict_match": true, "scene": "M"}
		}
	}`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, identifiers(cfg.WindowName)); diff != "" {
		t.Fatalf("order not preserved (-want +got):\n%s", diff)
	}
	if cfg.Delay().Milliseconds() != 100 {
		t.Fatalf("unexpected delay %v", cfg.Delay())
	}
}

func TestParseDuplicateIdentifierLastWins(t *testing.T) {
	data := []byte(`{
		"start_scene": "A", "delay_time": 100, "window_name": {}, "desktop_name": {},
		"window_class": {
			"slack": {"strict_match": true, "scene": "Chat"},
			"kitty": {"strict_match": true, "scene": "Coding"},
			"slack": {"strict_match": false, "scene": "Privacy"}
		}
	}`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]string{"slack", "kitty"}, identifiers(cfg.WindowClass)); diff != "" {
		t.Fatalf("unexpected identifiers (-want +got):\n%s", diff)
	}
	slack := cfg.WindowClass.Entries[0]
	if *slack.StrictMatch || *slack.Scene != "Privacy" {
		t.Fatalf("expected last definition to win, got %#v", slack)
	}
	if !hasWarning(cfg.Warnings, "window_class.slack", "duplicate") {
		t.Fatalf("expected duplicate warning, got %v", cfg.Warnings)
	}
}

func TestParseStructuralErrors(t *testing.T) {
	tests := map[string]string{
		"window_class list":   `{"start_scene": "A", "delay_time": 1, "window_class": [], "window_name": {}, "desktop_name": {}}`,
		"window_name string":  `{"start_scene": "A", "delay_time": 1, "window_class": {}, "window_name": "x", "desktop_name": {}}`,
		"desktop_name number": `{"start_scene": "A", "delay_time": 1, "window_class": {}, "window_name": {}, "desktop_name": 4}`,
		"root list":           `["start_scene"]`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			if err == nil {
				t.Fatalf("expected structural error")
			}
			var structural *StructuralError
			if !errors.As(err, &structural) {
				t.Fatalf("expected StructuralError, got %T: %v", err, err)
			}
		})
	}
}

func TestParseDecodeErrorIsNotStructural(t *testing.T) {
	for _, doc := range []string{`{"start_scene": `, ``, "   \n"} {
		_, err := Parse([]byte(doc))
		if err == nil {
			t.Fatalf("expected decode error for %q", doc)
		}
		if IsStructural(err) {
			t.Fatalf("decode error should not be structural: %v", err)
		}
	}
}

func TestParseContentWarnings(t *testing.T) {
	data := []byte(`{
		"start_scene": 5,
		"unknown_app_scene": true,
		"delay_time": "fast",
		"theme": "dark",
		"window_class": {
			"kitty": {"strict_match": "yes", "scene": "Coding", "color": "red"},
			"slack": {"scene": 3},
			"broken": "nope"
		},
		"window_name": {
			"zoom": {"strict_match": false}
		}
	}`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	checks := []struct{ path, fragment string }{
		{"start_scene", "needs to be a string"},
		{"unknown_app_scene", "string or null"},
		{"delay_time", "needs to be a number"},
		{"theme", "unknown root key"},
		{"desktop_name", "missing root key"},
		{"window_class.kitty.strict_match", "true or false"},
		{"window_class.kitty.color", "unknown sub key"},
		{"window_class.slack", "missing sub key strict_match"},
		{"window_class.slack.scene", "string or null"},
		{"window_class.broken", "not an object"},
		{"window_name.zoom", "missing sub key scene"},
	}
	for _, c := range checks {
		if !hasWarning(cfg.Warnings, c.path, c.fragment) {
			t.Errorf("missing warning %s (%s) in %v", c.path, c.fragment, cfg.Warnings)
		}
	}
	if cfg.StartScene != "" || cfg.UnknownAppScene != nil {
		t.Fatalf("wrong-typed scalars should be ignored: %#v", cfg)
	}
	if cfg.DelayMs != DefaultDelayMs {
		t.Fatalf("expected default delay, got %d", cfg.DelayMs)
	}
	kitty := cfg.WindowClass.Entries[0]
	if kitty.StrictMatch != nil {
		t.Fatalf("expected wrong-typed strict_match to be dropped: %#v", kitty)
	}
	if len(cfg.WindowClass.Entries) != 2 {
		t.Fatalf("expected non-object entry to be skipped, got %d entries", len(cfg.WindowClass.Entries))
	}
	if cfg.WindowClass.Entries[1].Scene != nil {
		t.Fatalf("expected wrong-typed scene to read as null")
	}
}

func TestParseNullScenesAndUnknownApp(t *testing.T) {
	data := []byte(`{
		"start_scene": "Coding",
		"unknown_app_scene": null,
		"delay_time": 250,
		"window_class": {"obs": {"strict_match": true, "scene": null}},
		"window_name": {},
		"desktop_name": {}
	}`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.UnknownAppScene != nil {
		t.Fatalf("expected null unknown_app_scene")
	}
	if cfg.WindowClass.Entries[0].Scene != nil {
		t.Fatalf("expected null scene")
	}
	if len(cfg.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", cfg.Warnings)
	}
}

func TestParseEmptyRelativeIdentifierWarns(t *testing.T) {
	data := []byte(`{"start_scene": "A", "delay_time": 1, "window_class": {}, "desktop_name": {},
		"window_name": {"": {"strict_match": false, "scene": "B"}}}`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.WindowName.Entries) != 1 {
		t.Fatalf("empty identifier should be kept")
	}
	if !hasWarning(cfg.Warnings, "window_name.", "matches every window") {
		t.Fatalf("expected empty identifier warning, got %v", cfg.Warnings)
	}
}

func TestParseNonPositiveDelay(t *testing.T) {
	cfg, err := Parse([]byte(`{"start_scene": "A", "delay_time": -5, "window_class": {}, "window_name": {}, "desktop_name": {}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.DelayMs != DefaultDelayMs || !hasWarning(cfg.Warnings, "delay_time", "positive") {
		t.Fatalf("expected default delay with warning, got %d %v", cfg.DelayMs, cfg.Warnings)
	}
}

func TestGenerateWritesTemplateOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "screens.json")
	if err := Generate(path); err != nil {
		t.Fatalf("generate: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read generated: %v", err)
	}
	if string(data) != Template {
		t.Fatalf("unexpected template contents:\n%s", data)
	}
	if err := Generate(path); err == nil {
		t.Fatalf("expected second Generate to refuse overwriting")
	}
}

func TestLintFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screens.json")
	if err := os.WriteFile(path, []byte(`{"start_scene": "A", "window_class": {}, "window_name": {}, "desktop_name": {}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	warnings, err := LintFile(path)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if !hasWarning(warnings, "delay_time", "missing root key") {
		t.Fatalf("expected missing delay_time warning, got %v", warnings)
	}
	if _, err := LintFile(filepath.Join(t.TempDir(), "missing.json")); !IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestParseHonoursJSONEscapes(t *testing.T) {
	data := []byte(`{
		"start_scene": "A\/B",
		"delay_time": 300,
		"window_class": {},
		"desktop_name": {},
		"window_name": {"https:\/\/mail é": {"strict_match": false, "scene": "Mail\tbox"}}
	}`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.StartScene != "A/B" {
		t.Fatalf("unexpected start scene %q", cfg.StartScene)
	}
	entry := cfg.WindowName.Entries[0]
	if entry.Identifier != "https://mail é" || *entry.Scene != "Mail\tbox" {
		t.Fatalf("unexpected entry %#v", entry)
	}
}

func TestParseRejectsNonJSONDocuments(t *testing.T) {
	docs := map[string]string{
		"yaml block":     "start_scene: Coding\ndelay_time: 300\nwindow_class: {}\nwindow_name: {}\ndesktop_name: {}\n",
		"single quotes":  `{'start_scene': 'Coding'}`,
		"trailing comma": `{"start_scene": "Coding",}`,
		"two documents":  `{"start_scene": "A"} {"start_scene": "B"}`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			if err == nil {
				t.Fatalf("expected decode error")
			}
			if IsStructural(err) {
				t.Fatalf("non-JSON input should be a decode error, got %v", err)
			}
		})
	}
}

func TestParseAcceptsBOMAndRejectsFractionalDelay(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"start_scene": "A", "delay_time": 250.5, "window_class": {}, "window_name": {}, "desktop_name": {}}`)...)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.StartScene != "A" {
		t.Fatalf("unexpected start scene %q", cfg.StartScene)
	}
	if cfg.DelayMs != DefaultDelayMs || !hasWarning(cfg.Warnings, "delay_time", "needs to be a number") {
		t.Fatalf("expected fractional delay to fall back, got %d %v", cfg.DelayMs, cfg.Warnings)
	}
}
