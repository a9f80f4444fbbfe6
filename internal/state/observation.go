package state

import (
	"context"
	"errors"
)

// Observation describes the focused window at the moment it was queried.
type Observation struct {
	Classes   []string `json:"classes"`
	Title     string   `json:"title"`
	Workspace string   `json:"workspace,omitempty"`
}

// Observer queries the window system for the focused window. Implementations
// return a nil observation together with an error when focus information is
// unavailable.
type Observer interface {
	Observe(ctx context.Context) (*Observation, error)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context) (*Observation, error)

// Observe calls f(ctx).
func (f ObserverFunc) Observe(ctx context.Context) (*Observation, error) {
	return f(ctx)
}

// NewObservation builds an observation. Class entries keep the values and
// order the window system reported; only exact repeats are dropped.
func NewObservation(classes []string, title, workspace string) *Observation {
	kept := make([]string, 0, len(classes))
	seen := make(map[string]struct{}, len(classes))
	for _, class := range classes {
		if _, dup := seen[class]; dup {
			continue
		}
		seen[class] = struct{}{}
		kept = append(kept, class)
	}
	return &Observation{
		Classes:   kept,
		Title:     title,
		Workspace: workspace,
	}
}

// Clone returns a deep copy of the observation.
func (o *Observation) Clone() *Observation {
	if o == nil {
		return nil
	}
	clone := *o
	if len(o.Classes) > 0 {
		clone.Classes = append([]string(nil), o.Classes...)
	}
	return &clone
}

// Redacted returns a copy with the title replaced.
func (o *Observation) Redacted() *Observation {
	clone := o.Clone()
	if clone != nil && clone.Title != "" {
		clone.Title = "[redacted]"
	}
	return clone
}

// ErrNoFocus is returned by observers when no window has focus.
var ErrNoFocus = errors.New("no focused window")
