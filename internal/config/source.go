package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hyprpal/scenepal/internal/util"
)

// DefaultRetryDelay is how long a Source waits before re-reading a file that
// failed to parse.
const DefaultRetryDelay = 5 * time.Second

// Source re-reads the configuration file on demand so that edits take effect
// without a restart. It owns the "already checked" state: content warnings are
// logged once per distinct file content.
type Source struct {
	path       string
	logger     *util.Logger
	retryDelay time.Duration
	now        func() time.Time

	mu          sync.Mutex
	last        *Config
	lastRaw     []byte
	checkedRaw  []byte
	rejectedRaw []byte
	rejectedMsg string
	retryAt     time.Time
	forced      bool
}

// NewSource creates a Source for the file at path.
func NewSource(path string, logger *util.Logger) *Source {
	return &Source{
		path:       path,
		logger:     logger,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
	}
}

// SetRetryDelay overrides DefaultRetryDelay.
func (s *Source) SetRetryDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryDelay = d
}

// Path returns the file the source reads.
func (s *Source) Path() string {
	return s.path
}

// Last returns the most recent successfully parsed snapshot, or nil.
func (s *Source) Last() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Invalidate makes the next Current call re-read the file even while a retry
// delay is pending.
func (s *Source) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced = true
}

// Current re-reads and parses the file. When the file cannot be read or
// decoded, the last good snapshot is returned and the file is retried after
// the retry delay. Without a last good snapshot Current blocks, retrying until
// the file parses or ctx is done. Structural errors are always returned.
func (s *Source) Current(ctx context.Context) (*Config, error) {
	for {
		cfg, err := s.current()
		if err == nil {
			return cfg, nil
		}
		if IsStructural(err) {
			return nil, err
		}
		if last := s.Last(); last != nil {
			return last, nil
		}
		s.logger.Errorf("cannot read config file: %v; trying again in %s", err, s.retryDelay)
		if err := sleep(ctx, s.retryDelay); err != nil {
			return nil, err
		}
	}
}

func (s *Source) current() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.last != nil && !s.forced && now.Before(s.retryAt) {
		return s.last, nil
	}
	s.forced = false

	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.reject(nil, fmt.Errorf("read config: %w", err), now)
		return nil, err
	}
	if s.last != nil && bytes.Equal(raw, s.lastRaw) {
		return s.last, nil
	}
	cfg, err := Parse(raw)
	if err != nil {
		if IsStructural(err) {
			s.logger.Errorf("config is structurally invalid: %v", err)
			s.logDiff(raw)
			return nil, err
		}
		s.reject(raw, err, now)
		return nil, err
	}
	if !bytes.Equal(raw, s.checkedRaw) {
		s.logWarnings(cfg.Warnings)
		s.checkedRaw = raw
	}
	if s.last != nil {
		s.logger.Infof("config file updated, %d window class, %d window name and %d desktop rules loaded",
			len(cfg.WindowClass.Entries), len(cfg.WindowName.Entries), len(cfg.DesktopName.Entries))
	}
	s.last = cfg
	s.lastRaw = raw
	s.rejectedRaw = nil
	s.rejectedMsg = ""
	s.retryAt = time.Time{}
	return cfg, nil
}

func (s *Source) reject(raw []byte, err error, now time.Time) {
	s.retryAt = now.Add(s.retryDelay)
	if s.last == nil {
		return
	}
	if err.Error() == s.rejectedMsg && bytes.Equal(raw, s.rejectedRaw) {
		s.logger.Debugf("config still unreadable: %v", err)
		return
	}
	s.rejectedRaw = raw
	s.rejectedMsg = err.Error()
	s.logger.Warnf("cannot read config file: %v; keeping last good config, trying again in %s", err, s.retryDelay)
	if raw != nil {
		s.logDiff(raw)
	}
}

func (s *Source) logDiff(current []byte) {
	if s.lastRaw == nil {
		return
	}
	diff := DiffSerialized(s.lastRaw, current)
	if diff == "" {
		s.logger.Warnf("config change rejected; unable to compute diff vs last valid config")
		return
	}
	s.logger.Warnf("config change rejected; diff vs last valid config:\n%s", diff)
}

func (s *Source) logWarnings(warnings []Warning) {
	if len(warnings) == 0 {
		return
	}
	s.logger.Warnf("config check found %d issue(s):", len(warnings))
	for _, w := range warnings {
		s.logger.Warnf(" - %s", w.Error())
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsNotExist reports whether err was caused by a missing configuration file.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
