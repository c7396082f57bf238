package rateguard

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository for
// testing and local development. A single mutex stands in for the row lock
// the Postgres implementation takes.
type InMemoryRepository struct {
	mu      sync.Mutex
	records map[string]*Record

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// NewInMemoryRepository creates a new in-memory rateguard repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*Record),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the time source. Test use only.
func (r *InMemoryRepository) SetNowFunc(f func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowFunc = f
}

// Consume performs the atomic check-and-increment for key.
func (r *InMemoryRepository) Consume(_ context.Context, key string, window time.Duration, max int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()

	rec, ok := r.records[key]
	if !ok || now.Sub(rec.WindowStart) >= window {
		r.records[key] = &Record{
			Key:         key,
			Count:       1,
			WindowStart: now,
			ExpiresAt:   now.Add(2 * window),
		}
		return nil
	}

	if rec.Count >= max {
		return ErrRateLimited
	}

	rec.Count++
	rec.ExpiresAt = now.Add(2 * window)
	return nil
}

// PurgeExpired deletes records past their expiry hint.
func (r *InMemoryRepository) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for key, rec := range r.records {
		if rec.ExpiresAt.Before(now) {
			delete(r.records, key)
			purged++
		}
	}
	return purged, nil
}

// Count returns the stored count for a key. Test use only.
func (r *InMemoryRepository) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[key]; ok {
		return rec.Count
	}
	return 0
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
