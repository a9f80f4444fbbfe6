package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyprpal/scenepal/internal/config"
	"github.com/hyprpal/scenepal/internal/metrics"
	"github.com/hyprpal/scenepal/internal/rules"
	"github.com/hyprpal/scenepal/internal/state"
	"github.com/hyprpal/scenepal/internal/util"
)

// SceneWriter persists the current scene.
type SceneWriter interface {
	WriteScene(scene string) error
}

// ConfigSource yields the configuration snapshot for each poll cycle.
type ConfigSource interface {
	Current(ctx context.Context) (*config.Config, error)
	Invalidate()
}

// DefaultObserveTimeout bounds a single focus query.
const DefaultObserveTimeout = 2 * time.Second

// Options tunes an Engine.
type Options struct {
	DryRun         bool
	RedactTitles   bool
	ObserveTimeout time.Duration
	Metrics        *metrics.Collector
}

// Engine runs the poll loop: observe the focused window, resolve it against
// the current rules and apply the result to the scene state.
type Engine struct {
	observer       state.Observer
	source         ConfigSource
	writer         SceneWriter
	logger         *util.Logger
	metrics        *metrics.Collector
	dryRun         bool
	redactTitles   bool
	observeTimeout time.Duration
	wake           chan string

	mu             sync.Mutex
	started        bool
	st             State
	delay          time.Duration
	lastObs        *state.Observation
	lastRes        *rules.Resolution
	lastCycle      time.Time
	lastObserveErr string
	history        *transitionLog
}

// Status is a point-in-time view of the engine.
type Status struct {
	Scene            string             `json:"scene"`
	ActiveIdentifier string             `json:"activeIdentifier,omitempty"`
	DryRun           bool               `json:"dryRun"`
	Delay            string             `json:"delay"`
	LastCycle        time.Time          `json:"lastCycle,omitempty"`
	Observation      *state.Observation `json:"observation,omitempty"`
	Stage            string             `json:"stage,omitempty"`
	Rule             string             `json:"rule,omitempty"`
}

// Preview is the result of resolving the current window without touching the
// scene state.
type Preview struct {
	Observation *state.Observation `json:"observation,omitempty"`
	Matched     bool               `json:"matched"`
	Scene       *string            `json:"scene,omitempty"`
	Identifier  string             `json:"identifier,omitempty"`
	Rule        string             `json:"rule,omitempty"`
	Stage       string             `json:"stage,omitempty"`
	Steps       []rules.Step       `json:"steps,omitempty"`
}

// New creates an engine. The scene state is initialised by Start.
func New(observer state.Observer, source ConfigSource, writer SceneWriter, logger *util.Logger, opts Options) *Engine {
	if logger == nil {
		logger = util.Discard()
	}
	timeout := opts.ObserveTimeout
	if timeout <= 0 {
		timeout = DefaultObserveTimeout
	}
	return &Engine{
		observer:       observer,
		source:         source,
		writer:         writer,
		logger:         logger,
		metrics:        opts.Metrics,
		dryRun:         opts.DryRun,
		redactTitles:   opts.RedactTitles,
		observeTimeout: timeout,
		wake:           make(chan string, 1),
		delay:          config.DefaultDelayMs * time.Millisecond,
		history:        newTransitionLog(0),
	}
}

// Start loads the configuration, sets the start scene and persists it.
func (e *Engine) Start(ctx context.Context) error {
	cfg, err := e.source.Current(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.st = NewState(cfg.StartScene)
	e.delay = cfg.Delay()
	e.started = true
	e.mu.Unlock()

	if cfg.StartScene == "" {
		e.logger.Warnf("no start scene configured, nothing persisted until a rule matches")
	} else {
		e.persist(cfg.StartScene)
		e.logger.Infof("start scene is %q", cfg.StartScene)
	}
	e.logger.Infof("setup is done, starting daemon")
	return nil
}

// Run polls until ctx is done. It returns ctx.Err() on cancellation and the
// error on a structurally invalid configuration.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		if err := e.Start(ctx); err != nil {
			return err
		}
	}
	for {
		if err := e.wait(ctx); err != nil {
			return err
		}
		if _, err := e.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// Wake ends the current delay early.
func (e *Engine) Wake(reason string) {
	select {
	case e.wake <- reason:
	default:
	}
}

// Reload forces the configuration to be re-read on the next cycle and wakes
// the loop.
func (e *Engine) Reload() {
	e.source.Invalidate()
	e.Wake("reload")
}

func (e *Engine) wait(ctx context.Context) error {
	e.mu.Lock()
	delay := e.delay
	e.mu.Unlock()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	case reason := <-e.wake:
		e.logger.Tracef("poll woken early: %s", reason)
	}
	return nil
}

// Step runs a single poll cycle and returns the resulting decision.
func (e *Engine) Step(ctx context.Context) (Decision, error) {
	obs := e.observe(ctx)
	cfg, err := e.source.Current(ctx)
	if err != nil {
		return Decision{}, err
	}
	var res *rules.Resolution
	if obs != nil {
		res = rules.Resolve(obs, rules.Derive(cfg))
	}

	e.mu.Lock()
	if !e.started {
		e.st = NewState(cfg.StartScene)
		e.started = true
	}
	d := e.st.Apply(res, cfg.UnknownAppScene)
	e.delay = cfg.Delay()
	e.lastObs = obs
	e.lastRes = res
	e.lastCycle = time.Now()
	e.mu.Unlock()

	e.act(d)
	return d, nil
}

func (e *Engine) observe(ctx context.Context) *state.Observation {
	qctx, cancel := context.WithTimeout(ctx, e.observeTimeout)
	defer cancel()
	obs, err := e.observer.Observe(qctx)
	if err == nil && obs != nil {
		e.mu.Lock()
		e.lastObserveErr = ""
		e.mu.Unlock()
		return obs
	}
	e.metrics.RecordObservationMiss()
	if err == nil {
		return nil
	}
	if errors.Is(err, state.ErrNoFocus) {
		e.logger.Tracef("no focused window")
		return nil
	}
	e.mu.Lock()
	repeated := e.lastObserveErr == err.Error()
	e.lastObserveErr = err.Error()
	e.mu.Unlock()
	if repeated {
		e.logger.Debugf("focus query failed: %v", err)
	} else {
		e.logger.Warnf("focus query failed: %v", err)
	}
	return nil
}

func (e *Engine) act(d Decision) {
	e.metrics.RecordCycle()
	e.metrics.RecordOutcome(string(d.Outcome))
	if d.Stage != rules.StageNone {
		e.metrics.RecordMatch(d.Stage.String())
	}

	switch d.Outcome {
	case OutcomeSwitch:
		e.logger.Infof("%q matched %s rule %q, switching scene %q -> %q", e.identifier(d), d.Stage, d.Rule, d.Previous, d.Scene)
	case OutcomeSame:
		e.logger.Infof("%q matched %s rule %q, same scene %q, no change", e.identifier(d), d.Stage, d.Rule, d.Scene)
	case OutcomeStay:
		e.logger.Infof("%q matched %s rule %q, requested to stay on scene %q", e.identifier(d), d.Stage, d.Rule, d.Scene)
	case OutcomeUnknown:
		if d.Notify {
			e.logger.Infof("unknown app, switching scene %q -> %q", d.Previous, d.Scene)
		}
	}

	var persistErr error
	if d.Persist {
		persistErr = e.persist(d.Scene)
	}
	if d.Previous != d.Scene {
		e.metrics.RecordSceneEntered(d.Scene)
	}
	if d.Notify {
		entry := Transition{
			Timestamp:  time.Now(),
			Outcome:    d.Outcome,
			Previous:   d.Previous,
			Scene:      d.Scene,
			Identifier: e.identifier(d),
			Rule:       d.Rule,
			Persisted:  d.Persist && persistErr == nil && !e.dryRun,
		}
		if d.Stage != rules.StageNone {
			entry.Stage = d.Stage.String()
		}
		if persistErr != nil {
			entry.Error = persistErr.Error()
		}
		e.history.record(entry)
	}
}

func (e *Engine) persist(scene string) error {
	if e.dryRun {
		e.logger.Debugf("dry-run: would write scene %q", scene)
		return nil
	}
	if err := e.writer.WriteScene(scene); err != nil {
		e.metrics.RecordPersistError()
		e.logger.Errorf("write scene %q: %v", scene, err)
		return err
	}
	return nil
}

// identifier returns the matched identifier, hiding window titles when
// redaction is enabled.
func (e *Engine) identifier(d Decision) string {
	if e.redactTitles && d.Stage.Category() == rules.CategoryWindowName {
		return redactedTitle
	}
	return d.Identifier
}

const redactedTitle = "[redacted]"

// Status returns the current scene state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		Scene:     e.st.Scene,
		DryRun:    e.dryRun,
		Delay:     e.delay.String(),
		LastCycle: e.lastCycle,
	}
	if e.st.HasActive {
		st.ActiveIdentifier = e.st.ActiveIdentifier
		if e.redactTitles && e.lastRes != nil && e.lastRes.Stage.Category() == rules.CategoryWindowName {
			st.ActiveIdentifier = redactedTitle
		}
	}
	if e.lastRes != nil {
		st.Stage = e.lastRes.Stage.String()
		st.Rule = e.lastRes.Rule
	}
	st.Observation = e.snapshotObservation(e.lastObs)
	return st
}

// History returns the recent scene transitions, oldest first.
func (e *Engine) History() []Transition {
	return e.history.snapshot()
}

// Preview observes the focused window and resolves it against the current
// configuration without changing state or persisting anything. With explain
// set the individual comparisons are included.
func (e *Engine) Preview(ctx context.Context, explain bool) (*Preview, error) {
	qctx, cancel := context.WithTimeout(ctx, e.observeTimeout)
	obs, err := e.observer.Observe(qctx)
	cancel()
	if err != nil && !errors.Is(err, state.ErrNoFocus) {
		return nil, fmt.Errorf("observe focused window: %w", err)
	}
	cfg, err := e.source.Current(ctx)
	if err != nil {
		return nil, err
	}
	rs := rules.Derive(cfg)
	var (
		res   *rules.Resolution
		steps []rules.Step
	)
	if explain {
		res, steps = rules.Explain(obs, rs)
	} else {
		res = rules.Resolve(obs, rs)
	}
	p := &Preview{Observation: e.snapshotObservation(obs), Steps: steps}
	if res != nil {
		p.Matched = true
		p.Scene = res.Scene
		p.Identifier = res.Identifier
		p.Rule = res.Rule
		p.Stage = res.Stage.String()
		if e.redactTitles && res.Stage.Category() == rules.CategoryWindowName {
			p.Identifier = redactedTitle
		}
	}
	if e.redactTitles {
		for i := range p.Steps {
			if p.Steps[i].Stage == rules.StageWindowNameStrict.String() || p.Steps[i].Stage == rules.StageWindowNameRelative.String() {
				p.Steps[i].Candidate = redactedTitle
			}
		}
	}
	return p, nil
}

func (e *Engine) snapshotObservation(obs *state.Observation) *state.Observation {
	if e.redactTitles {
		return obs.Redacted()
	}
	return obs.Clone()
}
