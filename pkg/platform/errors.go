package platform

import (
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// ERROR KINDS - callers branch on these, so each is a distinct type
// ============================================================================

// ValidationError reports a request that must never reach the network:
// missing required parameter, malformed webhook URL, reserved-name collision.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ConnectionError reports that the platform could not be reached at all.
type ConnectionError struct {
	Platform string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach platform '%s': %v", e.Platform, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a workflow or execution unknown to the platform.
type NotFoundError struct {
	Resource string // "workflow" or "execution"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found on platform", e.Resource, e.ID)
}

// TimeoutError reports a deadline exceeded while waiting on the platform.
// Distinct from a generic execution failure: the remote side may still
// complete.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %v", e.After)
}

// RateLimitError reports a platform-side 429, with the reset time so the
// caller can retry later without polling.
type RateLimitError struct {
	Platform string
	ResetAt  time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("platform '%s' rate limited, resets at %s", e.Platform, e.ResetAt.Format(time.RFC3339))
}

// ============================================================================
// PREDICATES
// ============================================================================

func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsConnectionError(err error) bool {
	var e *ConnectionError
	return errors.As(err, &e)
}

func IsNotFoundError(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsTimeoutError(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}

func IsRateLimitError(err error) bool {
	var e *RateLimitError
	return errors.As(err, &e)
}
