package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitInfo is rate limit state reported by a platform in its response
// headers.
type RateLimitInfo struct {
	RetryAfter        time.Duration
	ResetTime         int64 // unix seconds
	RequestsRemaining int
}

// RateLimitHeaderParser extracts rate limit information from headers.
type RateLimitHeaderParser func(http.Header) RateLimitInfo

// ParseStandardRateLimitHeaders handles the header conventions automation
// platforms commonly use: Retry-After (seconds or HTTP-date) and the
// X-RateLimit-Reset / X-RateLimit-Remaining pair.
func ParseStandardRateLimitHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{RequestsRemaining: -1}

	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		} else if t, err := http.ParseTime(retryAfter); err == nil {
			if d := time.Until(t); d > 0 {
				info.RetryAfter = d
			}
		}
	}

	if resetStr := headers.Get("X-RateLimit-Reset"); resetStr != "" {
		if reset, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
			info.ResetTime = reset
		}
	}

	if remaining := headers.Get("X-RateLimit-Remaining"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.RequestsRemaining = n
		}
	}

	return info
}

// ResetAt resolves the reset instant from whichever field the platform sent,
// falling back to now when neither was present.
func (i RateLimitInfo) ResetAt(now time.Time) time.Time {
	if i.ResetTime > 0 {
		return time.Unix(i.ResetTime, 0)
	}
	if i.RetryAfter > 0 {
		return now.Add(i.RetryAfter)
	}
	return now
}
