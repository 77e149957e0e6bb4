package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpilot-io/flowpilot/pkg/config"
)

func newTestLimiter(perMinute, perHour int, now *time.Time) *Limiter {
	cfg := &config.RateLimitConfig{
		Enabled:   config.BoolPtr(true),
		PerMinute: perMinute,
		PerHour:   perHour,
	}
	return New(cfg, WithClock(func() time.Time { return *now }))
}

func TestLimiter_MinuteCap(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(10, 100, &now)

	for i := 0; i < 10; i++ {
		result := limiter.Check("agent-1")
		require.True(t, result.Allowed, "expected call %d to be allowed", i+1)
		limiter.Record("agent-1")
		now = now.Add(time.Second)
	}

	// 11th within the same minute is denied
	result := limiter.Check("agent-1")
	assert.False(t, result.Allowed, "expected 11th call to be denied")
	assert.Equal(t, 0, result.Remaining)
	assert.True(t, result.ResetAt.After(now), "expected reset in the future, got %v (now %v)", result.ResetAt, now)
}

func TestLimiter_WindowSlides(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(10, 100, &now)

	for i := 0; i < 10; i++ {
		limiter.Record("agent-1")
	}
	require.False(t, limiter.Check("agent-1").Allowed, "expected denial at cap")

	// Slide past the minute window; admission resumes.
	now = now.Add(61 * time.Second)
	result := limiter.Check("agent-1")
	assert.True(t, result.Allowed, "expected admission after window slid past 60s")
	assert.Equal(t, 10, result.Remaining, "expected full minute headroom")
}

func TestLimiter_HourCapBindsAcrossMinutes(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(10, 20, &now)

	// Spread 20 executions across minutes, 5 per minute.
	for i := 0; i < 20; i++ {
		require.True(t, limiter.Check("agent-1").Allowed, "expected execution %d to be allowed", i+1)
		limiter.Record("agent-1")
		if (i+1)%5 == 0 {
			now = now.Add(2 * time.Minute)
		}
	}

	result := limiter.Check("agent-1")
	assert.False(t, result.Allowed, "expected hour cap to deny the 21st execution")
	assert.NotEmpty(t, result.Reason, "expected a denial reason")
}

func TestLimiter_RemainingIsMinimumHeadroom(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(10, 12, &now)

	// 8 executions spread outside the minute window, inside the hour.
	for i := 0; i < 8; i++ {
		limiter.Record("agent-1")
		now = now.Add(2 * time.Minute)
	}

	result := limiter.Check("agent-1")
	require.True(t, result.Allowed, "expected admission")
	// minute headroom 10, hour headroom 4 -> remaining 4
	assert.Equal(t, 4, result.Remaining)
}

func TestLimiter_CheckDoesNotCommit(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(3, 100, &now)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Check("agent-1").Allowed, "check %d unexpectedly denied", i+1)
	}

	minuteCount, hourCount := limiter.Usage("agent-1")
	assert.Equal(t, 0, minuteCount)
	assert.Equal(t, 0, hourCount)
}

func TestLimiter_AgentsIsolated(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(1, 100, &now)

	limiter.Record("agent-1")
	assert.False(t, limiter.Check("agent-1").Allowed, "expected agent-1 to be at cap")
	assert.True(t, limiter.Check("agent-2").Allowed, "expected agent-2 to be unaffected")
}

func TestLimiter_Disabled(t *testing.T) {
	cfg := &config.RateLimitConfig{Enabled: config.BoolPtr(false), PerMinute: 1, PerHour: 1}
	limiter := New(cfg)

	for i := 0; i < 5; i++ {
		limiter.Record("agent-1")
		require.True(t, limiter.Check("agent-1").Allowed, "disabled limiter must always admit")
	}
}

func TestLimiter_ConcurrentSameAgent(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	cfg := &config.RateLimitConfig{Enabled: config.BoolPtr(true), PerMinute: 50, PerHour: 100}
	limiter := New(cfg, WithClock(clock))

	var wg sync.WaitGroup
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check("agent-1").Allowed {
				limiter.Record("agent-1")
			}
		}()
	}
	wg.Wait()

	_, hourCount := limiter.Usage("agent-1")
	assert.LessOrEqual(t, hourCount, 80, "recorded more executions than attempts")
}

func TestRateLimitError(t *testing.T) {
	resetAt := time.Date(2026, 8, 31, 13, 0, 0, 0, time.UTC)
	err := NewRateLimitError("agent-1", &CheckResult{ResetAt: resetAt, Reason: "per-minute execution limit reached"})

	require.True(t, IsRateLimitError(err))
	assert.True(t, err.ResetAt.Equal(resetAt))
}
