package engine

import (
	"sync"
	"time"
)

const transitionHistoryLimit = 128

// Transition is a logged state machine transition.
type Transition struct {
	Timestamp  time.Time `json:"timestamp"`
	Outcome    Outcome   `json:"outcome"`
	Previous   string    `json:"previous"`
	Scene      string    `json:"scene"`
	Identifier string    `json:"identifier,omitempty"`
	Rule       string    `json:"rule,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Persisted  bool      `json:"persisted"`
	Error      string    `json:"error,omitempty"`
}

type transitionLog struct {
	mu      sync.Mutex
	entries []Transition
	limit   int
}

func newTransitionLog(limit int) *transitionLog {
	if limit <= 0 {
		limit = transitionHistoryLimit
	}
	return &transitionLog{limit: limit}
}

func (l *transitionLog) record(entry Transition) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == l.limit {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.limit-1]
	}
	l.entries = append(l.entries, entry)
}

func (l *transitionLog) snapshot() []Transition {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	return append([]Transition(nil), l.entries...)
}
