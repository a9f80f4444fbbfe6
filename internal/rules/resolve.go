package rules

import (
	"strings"

	"github.com/hyprpal/scenepal/internal/state"
)

// Stage identifies one step of the resolution order.
type Stage int

const (
	StageNone Stage = iota
	StageDesktopStrict
	StageDesktopRelative
	StageWindowNameStrict
	StageWindowNameRelative
	StageWindowClassStrict
	StageWindowClassRelative
)

var stageNames = map[Stage]string{
	StageNone:                "none",
	StageDesktopStrict:       "desktop.strict",
	StageDesktopRelative:     "desktop.relative",
	StageWindowNameStrict:    "window_name.strict",
	StageWindowNameRelative:  "window_name.relative",
	StageWindowClassStrict:   "window_class.strict",
	StageWindowClassRelative: "window_class.relative",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Category returns the axis the stage matches against.
func (s Stage) Category() Category {
	switch s {
	case StageDesktopStrict, StageDesktopRelative:
		return CategoryDesktop
	case StageWindowNameStrict, StageWindowNameRelative:
		return CategoryWindowName
	case StageWindowClassStrict, StageWindowClassRelative:
		return CategoryWindowClass
	}
	return ""
}

// Strict reports whether the stage uses exact matching.
func (s Stage) Strict() bool {
	return s == StageDesktopStrict || s == StageWindowNameStrict || s == StageWindowClassStrict
}

// Resolution is the outcome of a successful match.
type Resolution struct {
	// Scene is nil when the matched rule has no scene opinion.
	Scene *string
	// Identifier is the observed value that matched: the workspace name, the
	// window title or one of the window classes.
	Identifier string
	// Rule is the configured identifier that matched.
	Rule  string
	Stage Stage
}

// SceneName returns the scene or an empty string.
func (r *Resolution) SceneName() string {
	if r == nil || r.Scene == nil {
		return ""
	}
	return *r.Scene
}

// Resolve maps an observation to a scene decision. It returns nil when the
// observation is nil or no rule matches. Stages are tried in order and the
// first hit wins: workspace before title before class, exact before substring.
func Resolve(obs *state.Observation, rs RuleSet) *Resolution {
	return resolve(obs, rs, nil)
}

type visitFunc func(stage Stage, rule Rule, candidate string, matched bool)

func resolve(obs *state.Observation, rs RuleSet, visit visitFunc) *Resolution {
	if obs == nil {
		return nil
	}
	check := func(stage Stage, rule Rule, candidate string) *Resolution {
		var matched bool
		if stage.Strict() {
			matched = candidate == rule.Identifier
		} else {
			matched = containsFold(candidate, rule.Identifier)
		}
		if visit != nil {
			visit(stage, rule, candidate, matched)
		}
		if !matched {
			return nil
		}
		return &Resolution{
			Scene:      rule.Scene,
			Identifier: candidate,
			Rule:       rule.Identifier,
			Stage:      stage,
		}
	}
	single := func(stage Stage, rules []Rule, candidate string) *Resolution {
		for _, rule := range rules {
			if res := check(stage, rule, candidate); res != nil {
				return res
			}
		}
		return nil
	}
	multi := func(stage Stage, rules []Rule, candidates []string) *Resolution {
		for _, candidate := range candidates {
			for _, rule := range rules {
				if res := check(stage, rule, candidate); res != nil {
					return res
				}
			}
		}
		return nil
	}

	if res := single(StageDesktopStrict, rs.Desktop.Strict, obs.Workspace); res != nil {
		return res
	}
	if res := single(StageDesktopRelative, rs.Desktop.Relative, obs.Workspace); res != nil {
		return res
	}
	if res := single(StageWindowNameStrict, rs.WindowName.Strict, obs.Title); res != nil {
		return res
	}
	if res := single(StageWindowNameRelative, rs.WindowName.Relative, obs.Title); res != nil {
		return res
	}
	if res := multi(StageWindowClassStrict, rs.WindowClass.Strict, obs.Classes); res != nil {
		return res
	}
	return multi(StageWindowClassRelative, rs.WindowClass.Relative, obs.Classes)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
