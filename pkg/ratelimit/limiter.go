package ratelimit

import (
	"sync"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/config"
)

// CheckResult is the outcome of one admission check.
type CheckResult struct {
	Allowed bool `json:"allowed"`

	// Remaining is the minimum headroom across both windows.
	Remaining int `json:"remaining"`

	// ResetAt is the earliest instant the binding window frees a slot.
	ResetAt time.Time `json:"reset_at"`

	Reason string `json:"reason,omitempty"`
}

// tracker holds one agent's recent execution timestamps. Appended on every
// recorded execution, pruned lazily to the hour window on each check.
type tracker struct {
	timestamps []time.Time
}

// Limiter admits executions against two overlapping sliding windows
// (per-minute and per-hour) per agent. Check and Record are distinct so a
// caller can probe limits without committing. All state is behind one mutex;
// concurrent checks for the same agent cannot double-admit past the cap.
type Limiter struct {
	mu        sync.Mutex
	enabled   bool
	perMinute int
	perHour   int
	trackers  map[string]*tracker
	now       func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter from config.
func New(cfg *config.RateLimitConfig, opts ...Option) *Limiter {
	l := &Limiter{
		enabled:   cfg.IsEnabled(),
		perMinute: cfg.PerMinute,
		perHour:   cfg.PerHour,
		trackers:  make(map[string]*tracker),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check reports whether the agent may execute now, without recording usage.
func (l *Limiter) Check(agentID string) *CheckResult {
	if !l.enabled {
		return &CheckResult{Allowed: true, Remaining: l.perMinute}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tr := l.prune(agentID, now)

	minuteCutoff := now.Add(-time.Minute)
	minuteCount := 0
	var oldestInMinute, oldestInHour time.Time
	for _, ts := range tr.timestamps {
		if oldestInHour.IsZero() {
			oldestInHour = ts
		}
		if ts.After(minuteCutoff) {
			if oldestInMinute.IsZero() {
				oldestInMinute = ts
			}
			minuteCount++
		}
	}
	hourCount := len(tr.timestamps)

	minuteHeadroom := l.perMinute - minuteCount
	hourHeadroom := l.perHour - hourCount
	remaining := minuteHeadroom
	if hourHeadroom < remaining {
		remaining = hourHeadroom
	}
	if remaining < 0 {
		remaining = 0
	}

	result := &CheckResult{
		Allowed:   minuteHeadroom > 0 && hourHeadroom > 0,
		Remaining: remaining,
		ResetAt:   now,
	}

	if minuteHeadroom <= 0 && !oldestInMinute.IsZero() {
		result.ResetAt = oldestInMinute.Add(time.Minute)
		result.Reason = "per-minute execution limit reached"
	}
	if hourHeadroom <= 0 && !oldestInHour.IsZero() {
		hourReset := oldestInHour.Add(time.Hour)
		if hourReset.After(result.ResetAt) {
			result.ResetAt = hourReset
			result.Reason = "per-hour execution limit reached"
		}
	}

	return result
}

// Record stamps one execution against the agent. Callers invoke it only on
// actual dispatch, after a successful Check.
func (l *Limiter) Record(agentID string) {
	if !l.enabled {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tr := l.prune(agentID, now)
	tr.timestamps = append(tr.timestamps, now)
}

// Usage returns the agent's execution counts inside each window.
func (l *Limiter) Usage(agentID string) (minuteCount, hourCount int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tr := l.prune(agentID, now)

	minuteCutoff := now.Add(-time.Minute)
	for _, ts := range tr.timestamps {
		if ts.After(minuteCutoff) {
			minuteCount++
		}
	}
	return minuteCount, len(tr.timestamps)
}

// Reset drops all recorded usage for an agent.
func (l *Limiter) Reset(agentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.trackers, agentID)
}

// prune drops timestamps older than the hour window and returns the tracker.
// Caller must hold the lock.
func (l *Limiter) prune(agentID string, now time.Time) *tracker {
	tr, ok := l.trackers[agentID]
	if !ok {
		tr = &tracker{}
		l.trackers[agentID] = tr
	}

	hourCutoff := now.Add(-time.Hour)
	kept := tr.timestamps[:0]
	for _, ts := range tr.timestamps {
		if ts.After(hourCutoff) {
			kept = append(kept, ts)
		}
	}
	tr.timestamps = kept
	return tr
}
