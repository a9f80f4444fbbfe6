package engine

import (
	"github.com/hyprpal/scenepal/internal/rules"
)

// Outcome classifies what a poll cycle did to the daemon state.
type Outcome string

const (
	// OutcomeIdle: nothing matched and no unknown-app scene is configured.
	OutcomeIdle Outcome = "idle"
	// OutcomeUnknown: nothing matched and the unknown-app scene was forced.
	OutcomeUnknown Outcome = "unknown"
	// OutcomeStay: a rule without a scene matched a new identifier.
	OutcomeStay Outcome = "stay"
	// OutcomeSame: a rule for the current scene matched a new identifier.
	OutcomeSame Outcome = "same"
	// OutcomeRepeat: the same identifier matched again with nothing to report.
	OutcomeRepeat Outcome = "repeat"
	// OutcomeSwitch: the scene changed.
	OutcomeSwitch Outcome = "switch"
)

// State is the daemon's scene state carried across poll cycles.
type State struct {
	Scene string
	// ActiveIdentifier is the identifier of the last match, valid when
	// HasActive is set. It suppresses repeated "same scene" and "stay" logs.
	ActiveIdentifier string
	HasActive        bool
}

// NewState returns the initial state for a start scene.
func NewState(startScene string) State {
	return State{Scene: startScene}
}

// Decision describes the side effects a transition asks for.
type Decision struct {
	Outcome    Outcome
	Previous   string
	Scene      string
	Identifier string
	Rule       string
	Stage      rules.Stage
	// Persist is set when the scene must be written out.
	Persist bool
	// Notify is set when the transition is worth a log line.
	Notify bool
}

// Apply runs one transition. res is nil when no window was observed or no
// rule matched; both fall through to the unknown-app branch, which only
// touches Scene.
func (s *State) Apply(res *rules.Resolution, unknownScene *string) Decision {
	d := Decision{Previous: s.Scene}
	if res == nil {
		if unknownScene == nil {
			d.Outcome = OutcomeIdle
			d.Scene = s.Scene
			return d
		}
		s.Scene = *unknownScene
		d.Outcome = OutcomeUnknown
		d.Scene = s.Scene
		d.Persist = true
		d.Notify = d.Previous != d.Scene
		return d
	}

	d.Identifier = res.Identifier
	d.Rule = res.Rule
	d.Stage = res.Stage
	changedID := !s.HasActive || s.ActiveIdentifier != res.Identifier
	s.ActiveIdentifier, s.HasActive = res.Identifier, true

	switch {
	case res.Scene == nil || *res.Scene == s.Scene:
		d.Scene = s.Scene
		if !changedID {
			d.Outcome = OutcomeRepeat
			return d
		}
		d.Outcome = OutcomeSame
		if res.Scene == nil {
			d.Outcome = OutcomeStay
		}
		d.Notify = true
		return d
	default:
		s.Scene = *res.Scene
		d.Outcome = OutcomeSwitch
		d.Scene = s.Scene
		d.Persist = true
		d.Notify = true
		return d
	}
}
