package notification

import (
	"context"
	"sync"
	"time"
)

type historyEntry struct {
	templateID string
	sentAt     time.Time
}

// InMemoryRepository is an in-memory implementation of Repository for
// testing and local development.
type InMemoryRepository struct {
	mu      sync.RWMutex
	history map[string][]historyEntry // newest first
}

// NewInMemoryRepository creates a new in-memory history repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{history: make(map[string][]historyEntry)}
}

func (r *InMemoryRepository) Recent(_ context.Context, userID string, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.history[userID]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.templateID)
	}
	return ids, nil
}

func (r *InMemoryRepository) Record(_ context.Context, userID, templateID string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := append([]historyEntry{{templateID: templateID, sentAt: sentAt}}, r.history[userID]...)
	if len(entries) > RecentTemplateLimit {
		entries = entries[:RecentTemplateLimit]
	}
	r.history[userID] = entries
	return nil
}

func (r *InMemoryRepository) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.history, userID)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
