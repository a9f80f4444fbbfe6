package rules

import (
	"github.com/hyprpal/scenepal/internal/state"
)

// Step records a single comparison made while resolving.
type Step struct {
	Stage     string  `json:"stage"`
	Rule      string  `json:"rule"`
	Candidate string  `json:"candidate"`
	Matched   bool    `json:"matched"`
	Scene     *string `json:"scene,omitempty"`
}

// Explain resolves like Resolve and additionally returns every comparison in
// the order it was made. The last step is the match, if any.
func Explain(obs *state.Observation, rs RuleSet) (*Resolution, []Step) {
	var steps []Step
	res := resolve(obs, rs, func(stage Stage, rule Rule, candidate string, matched bool) {
		steps = append(steps, Step{
			Stage:     stage.String(),
			Rule:      rule.Identifier,
			Candidate: candidate,
			Matched:   matched,
			Scene:     rule.Scene,
		})
	})
	return res, steps
}
