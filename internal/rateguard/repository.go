package rateguard

import (
	"context"
	"time"
)

// Repository defines the storage contract for limiter counters.
//
// Consume must be atomic with respect to concurrent callers sharing the
// same key: two racing calls may not both observe count == max-1 and both
// succeed. Implementations serialize on the key (row lock, mutex).
type Repository interface {
	// Consume performs the check-and-increment for key.
	//
	// If no record exists, or the stored window started more than window
	// ago, the record is reset with count 1 and Consume succeeds. If the
	// stored count is already >= max within the live window, Consume
	// returns ErrRateLimited without modifying the record. Otherwise the
	// count is incremented.
	Consume(ctx context.Context, key string, window time.Duration, max int) error

	// PurgeExpired deletes records whose ExpiresAt is before now.
	// Maintenance only; limits are enforced regardless.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
