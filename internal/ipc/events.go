package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/hyprpal/scenepal/internal/util"
)

// Event represents a Hyprland event stream payload.
type Event struct {
	Kind    string
	Payload string
}

var focusEvents = map[string]struct{}{
	"activewindow":    {},
	"activewindowv2":  {},
	"workspace":       {},
	"workspacev2":     {},
	"focusedmon":      {},
	"renameworkspace": {},
	"closewindow":     {},
}

// IsFocusEvent reports whether an event of kind can change the observation.
func IsFocusEvent(kind string) bool {
	_, ok := focusEvents[kind]
	return ok
}

// Subscribe connects to the Hyprland event socket and streams events until context cancellation.
func Subscribe(ctx context.Context, logger *util.Logger) (<-chan Event, error) {
	socket, err := eventSocketPath()
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connect event socket: %w", err)
	}
	events := make(chan Event)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(events)
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			select {
			case events <- parseEvent(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logger.Warnf("event stream error: %v", err)
		}
	}()
	return events, nil
}

// WatchFocus calls wake for every focus related event until ctx is done or
// the stream ends.
func WatchFocus(ctx context.Context, logger *util.Logger, wake func(reason string)) error {
	events, err := Subscribe(ctx, logger)
	if err != nil {
		return err
	}
	return forwardFocus(ctx, events, wake)
}

func forwardFocus(ctx context.Context, events <-chan Event, wake func(reason string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("event stream closed")
			}
			if IsFocusEvent(ev.Kind) {
				wake(ev.Kind)
			}
		}
	}
}

func parseEvent(line string) Event {
	parts := strings.SplitN(line, ">>", 2)
	ev := Event{Kind: parts[0]}
	if len(parts) == 2 {
		ev.Payload = parts[1]
	}
	return ev
}

func eventSocketPath() (string, error) {
	return hyprSocketPath(".socket2.sock")
}
