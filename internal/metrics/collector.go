package metrics

import (
	"sort"
	"sync"
	"time"
)

// Collector aggregates counters for the scene daemon. A nil Collector is a
// valid no-op.
type Collector struct {
	mu            sync.RWMutex
	enabled       bool
	started       time.Time
	cycles        uint64
	misses        uint64
	persistErrors uint64
	matches       map[string]uint64
	outcomes      map[string]uint64
	scenes        map[string]*SceneMetrics
}

// SceneMetrics captures how often a scene was entered.
type SceneMetrics struct {
	Scene       string    `json:"scene"`
	Entered     uint64    `json:"entered"`
	LastEntered time.Time `json:"lastEntered,omitempty"`
}

// Snapshot is the serializable view of the current metrics state.
type Snapshot struct {
	Enabled           bool              `json:"enabled"`
	Started           time.Time         `json:"started,omitempty"`
	Cycles            uint64            `json:"cycles"`
	ObservationMisses uint64            `json:"observationMisses"`
	PersistErrors     uint64            `json:"persistErrors"`
	Matches           map[string]uint64 `json:"matches,omitempty"`
	Outcomes          map[string]uint64 `json:"outcomes,omitempty"`
	Scenes            []SceneMetrics    `json:"scenes,omitempty"`
}

// NewCollector returns a collector with the provided enabled state.
func NewCollector(enabled bool) *Collector {
	c := &Collector{}
	c.SetEnabled(enabled)
	return c
}

// Enabled reports whether collection is currently active.
func (c *Collector) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles collection, resetting counters when enabling.
func (c *Collector) SetEnabled(enabled bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	c.cycles, c.misses, c.persistErrors = 0, 0, 0
	if !enabled {
		c.matches = nil
		c.outcomes = nil
		c.scenes = nil
		c.started = time.Time{}
		return
	}
	c.started = time.Now()
	c.matches = make(map[string]uint64)
	c.outcomes = make(map[string]uint64)
	c.scenes = make(map[string]*SceneMetrics)
}

// RecordCycle counts a completed poll cycle.
func (c *Collector) RecordCycle() {
	c.update(func(now time.Time) { c.cycles++ })
}

// RecordObservationMiss counts a cycle without focus information.
func (c *Collector) RecordObservationMiss() {
	c.update(func(now time.Time) { c.misses++ })
}

// RecordPersistError counts a failed scene write.
func (c *Collector) RecordPersistError() {
	c.update(func(now time.Time) { c.persistErrors++ })
}

// RecordMatch counts a rule match for the resolution stage that produced it.
func (c *Collector) RecordMatch(stage string) {
	c.update(func(now time.Time) { c.matches[stage]++ })
}

// RecordOutcome counts a state machine outcome.
func (c *Collector) RecordOutcome(outcome string) {
	c.update(func(now time.Time) { c.outcomes[outcome]++ })
}

// RecordSceneEntered counts a change to scene.
func (c *Collector) RecordSceneEntered(scene string) {
	c.update(func(now time.Time) {
		m, ok := c.scenes[scene]
		if !ok {
			m = &SceneMetrics{Scene: scene}
			c.scenes[scene] = m
		}
		m.Entered++
		m.LastEntered = now
	})
}

func (c *Collector) update(mutate func(time.Time)) {
	if c == nil || mutate == nil {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	mutate(now)
}

// Snapshot returns the current counters for serialization or display.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{Enabled: c.enabled}
	if !c.enabled {
		return snap
	}
	snap.Started = c.started
	snap.Cycles = c.cycles
	snap.ObservationMisses = c.misses
	snap.PersistErrors = c.persistErrors
	snap.Matches = cloneCounts(c.matches)
	snap.Outcomes = cloneCounts(c.outcomes)
	if len(c.scenes) > 0 {
		snap.Scenes = make([]SceneMetrics, 0, len(c.scenes))
		for _, m := range c.scenes {
			snap.Scenes = append(snap.Scenes, *m)
		}
		sort.Slice(snap.Scenes, func(i, j int) bool {
			return snap.Scenes[i].Scene < snap.Scenes[j].Scene
		})
	}
	return snap
}

func cloneCounts(src map[string]uint64) map[string]uint64 {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
