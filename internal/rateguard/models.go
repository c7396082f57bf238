// Package rateguard provides store-backed rate limiting and daily quotas.
//
// Unlike the edge limiters in the API middleware (which are per-process),
// rateguard counters live in the database so that every instance of the
// service shares the same view of consumption. The increment is a single
// atomic read-modify-write; callers that exceed the limit get an immediate
// rejection, never a wait.
package rateguard

import (
	"errors"
	"time"
)

// Limiter errors.
var (
	// ErrRateLimited is returned when a key has exhausted its window or
	// daily allowance.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Record is one counter for a (subject, action) key.
type Record struct {
	// Key identifies the counter, e.g. "progress:usr_123" or
	// "push:ip:10.0.0.1".
	Key string

	// Count is the number of consumptions in the current window.
	// Never decremented; reset to 1 when a new window starts.
	Count int

	// WindowStart is when the current window began.
	WindowStart time.Time

	// ExpiresAt is a garbage-collection hint. Correctness never depends
	// on expired rows having been purged.
	ExpiresAt time.Time
}

// DayKey returns the daily-quota record key for a scope on a given day.
// The day is baked into the key, so a new calendar day starts a fresh
// counter without any expiry check.
func DayKey(scope string, day time.Time) string {
	return scope + "_" + day.UTC().Format("20060102")
}
