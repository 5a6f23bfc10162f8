package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// HeaderStyle selects which header families WriteHeaders emits.
type HeaderStyle struct {
	Standard bool // RateLimit-*
	Legacy   bool // X-RateLimit-*
}

// WriteHeaders sets rate limit headers for a decision. Retry-After is always
// set on a denial.
func WriteHeaders(h http.Header, d Decision, style HeaderStyle, now time.Time) {
	if d.Limit <= 0 {
		return
	}
	limit := strconv.FormatInt(d.Limit, 10)
	left := strconv.FormatInt(d.Remaining, 10)
	resetSeconds := int64(0)
	if !d.ResetAt.IsZero() {
		resetSeconds = int64(d.ResetAt.Sub(now).Round(time.Second) / time.Second)
		if resetSeconds < 0 {
			resetSeconds = 0
		}
	}
	if style.Standard {
		h.Set("RateLimit-Limit", limit)
		h.Set("RateLimit-Remaining", left)
		h.Set("RateLimit-Reset", strconv.FormatInt(resetSeconds, 10))
	}
	if style.Legacy {
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", left)
		if !d.ResetAt.IsZero() {
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		}
	}
	if !d.Allowed {
		retry := resetSeconds
		if retry < 1 {
			retry = 1
		}
		h.Set("Retry-After", strconv.FormatInt(retry, 10))
	}
}
