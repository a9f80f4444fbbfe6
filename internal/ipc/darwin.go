package ipc

import (
	"context"
	"strings"

	"github.com/hyprpal/scenepal/internal/state"
)

const frontmostScript = `tell application "System Events"
	set frontApp to first application process whose frontmost is true
	set appName to name of frontApp
	set winTitle to ""
	try
		set winTitle to name of front window of frontApp
	end try
end tell
return appName & linefeed & winTitle`

// DarwinObserver asks System Events for the frontmost application through
// osascript. The application name is reported as the window class.
type DarwinObserver struct {
	Binary string
	run    func(ctx context.Context, binary string, args ...string) ([]byte, error)
}

// NewDarwinObserver returns an observer using osascript on PATH.
func NewDarwinObserver() *DarwinObserver {
	return &DarwinObserver{Binary: "osascript", run: runCommand}
}

// Observe implements state.Observer.
func (o *DarwinObserver) Observe(ctx context.Context) (*state.Observation, error) {
	out, err := o.run(ctx, o.Binary, "-e", frontmostScript)
	if err != nil {
		return nil, err
	}
	return parseFrontmost(out)
}

func parseFrontmost(out []byte) (*state.Observation, error) {
	text := strings.TrimRight(string(out), "\r\n")
	app, title, _ := strings.Cut(text, "\n")
	app = strings.TrimSpace(app)
	if app == "" {
		return nil, state.ErrNoFocus
	}
	return state.NewObservation([]string{app}, strings.TrimRight(title, "\r"), ""), nil
}

var _ state.Observer = (*DarwinObserver)(nil)
