package ipc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyprpal/scenepal/internal/state"
)

// XpropObserver reads EWMH properties by shelling out to xprop.
type XpropObserver struct {
	Binary string
	run    func(ctx context.Context, binary string, args ...string) ([]byte, error)
}

// NewXpropObserver returns an observer using the xprop binary on PATH.
func NewXpropObserver() *XpropObserver {
	return &XpropObserver{Binary: "xprop", run: runCommand}
}

func runCommand(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %v: %s", binary, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Observe implements state.Observer.
func (o *XpropObserver) Observe(ctx context.Context) (*state.Observation, error) {
	root, err := o.run(ctx, o.Binary, "-root", "_NET_ACTIVE_WINDOW", "_NET_CURRENT_DESKTOP", "_NET_DESKTOP_NAMES")
	if err != nil {
		return nil, err
	}
	windowID, desktop := parseRootProperties(root)
	if windowID == "" {
		return nil, state.ErrNoFocus
	}
	props, err := o.run(ctx, o.Binary, "-id", windowID, "WM_CLASS", "_NET_WM_NAME", "WM_NAME")
	if err != nil {
		return nil, err
	}
	classes, title := parseWindowProperties(props)
	return state.NewObservation(classes, title, desktop), nil
}

var propertyLine = regexp.MustCompile(`^([A-Za-z0-9_]+)\(([A-Za-z0-9_]+)\)(?::| =) ?(.*)$`)

// parseProperties maps property names to their raw values. Properties that
// xprop reports as "not found" are left out.
func parseProperties(out []byte) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(string(out), "\n") {
		m := propertyLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		props[m[1]] = m[3]
	}
	return props
}

// parseRootProperties returns the active window id and the current desktop
// name. The id is empty when no window is active.
func parseRootProperties(out []byte) (string, string) {
	props := parseProperties(out)
	var windowID string
	if raw, ok := props["_NET_ACTIVE_WINDOW"]; ok {
		if idx := strings.LastIndex(raw, "# "); idx >= 0 {
			raw = raw[idx+2:]
		}
		raw = strings.TrimSpace(strings.SplitN(raw, ",", 2)[0])
		if id, err := strconv.ParseUint(raw, 0, 32); err == nil && id != 0 {
			windowID = raw
		}
	}
	var desktop string
	if raw, ok := props["_NET_CURRENT_DESKTOP"]; ok {
		idx, err := strconv.Atoi(strings.TrimSpace(raw))
		names := splitQuoted(props["_NET_DESKTOP_NAMES"])
		if err == nil && idx >= 0 && idx < len(names) {
			desktop = names[idx]
		}
	}
	return windowID, desktop
}

// parseWindowProperties returns the WM_CLASS entries and the window title,
// preferring the UTF-8 _NET_WM_NAME over WM_NAME.
func parseWindowProperties(out []byte) ([]string, string) {
	props := parseProperties(out)
	classes := splitQuoted(props["WM_CLASS"])
	var title string
	for _, key := range []string{"_NET_WM_NAME", "WM_NAME"} {
		if raw, ok := props[key]; ok {
			if values := splitQuoted(raw); len(values) > 0 {
				title = values[0]
				break
			}
		}
	}
	return classes, title
}

// splitQuoted parses a comma separated list of double quoted strings as
// printed by xprop, honouring backslash escapes.
func splitQuoted(raw string) []string {
	var (
		out     []string
		b       strings.Builder
		inQuote bool
		escaped bool
	)
	for _, r := range raw {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			if inQuote {
				out = append(out, b.String())
				b.Reset()
			}
			inQuote = !inQuote
		case inQuote:
			b.WriteRune(r)
		}
	}
	return out
}

var _ state.Observer = (*XpropObserver)(nil)
