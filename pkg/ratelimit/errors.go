package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimitExceeded is the sentinel all limiter rejections unwrap to.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimitError carries the reset time so callers can retry without polling.
type RateLimitError struct {
	AgentID string
	ResetAt time.Time
	Reason  string
}

func (e *RateLimitError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("agent '%s': %s (resets at %s)", e.AgentID, e.Reason, e.ResetAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("agent '%s': rate limit exceeded (resets at %s)", e.AgentID, e.ResetAt.Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitExceeded
}

// NewRateLimitError creates a RateLimitError from a denied check.
func NewRateLimitError(agentID string, result *CheckResult) *RateLimitError {
	e := &RateLimitError{AgentID: agentID}
	if result != nil {
		e.ResetAt = result.ResetAt
		e.Reason = result.Reason
	}
	return e
}

// IsRateLimitError checks if an error is a limiter rejection.
func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}
