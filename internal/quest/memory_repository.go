package quest

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository for
// development and testing.
type InMemoryRepository struct {
	mu        sync.RWMutex
	instances map[string]*Instance // keyed by instance ID
}

// NewInMemoryRepository creates a new in-memory quest repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{instances: make(map[string]*Instance)}
}

func (r *InMemoryRepository) Get(_ context.Context, userID, questID string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.instances[questID]
	if !ok || i.UserID != userID {
		return nil, ErrQuestNotFound
	}
	clone := *i
	return &clone, nil
}

func (r *InMemoryRepository) ListForDay(_ context.Context, userID string, day time.Time) ([]*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var instances []*Instance
	for _, i := range r.instances {
		if i.UserID == userID && i.AssignedDay.Equal(day) {
			clone := *i
			instances = append(instances, &clone)
		}
	}
	sortByCreated(instances)
	return instances, nil
}

func (r *InMemoryRepository) ReplaceForDay(_ context.Context, userID string, day time.Time, instances []*Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, i := range r.instances {
		if i.UserID == userID && i.AssignedDay.Equal(day) {
			delete(r.instances, id)
		}
	}
	for _, i := range instances {
		clone := *i
		r.instances[i.ID] = &clone
	}
	return nil
}

func (r *InMemoryRepository) ApplyProgress(_ context.Context, userID string, day time.Time, category string, amount int) ([]*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var updated []*Instance
	for _, i := range r.instances {
		if i.UserID != userID || !i.AssignedDay.Equal(day) || i.Category != category {
			continue
		}
		if i.Completed || i.RewardClaimed {
			continue
		}
		i.Progress += amount
		if i.Progress >= i.Goal {
			i.Progress = i.Goal
			i.Completed = true
		}
		i.UpdatedAt = now
		clone := *i
		updated = append(updated, &clone)
	}
	sortByCreated(updated)
	return updated, nil
}

func (r *InMemoryRepository) Complete(_ context.Context, userID, questID string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.instances[questID]
	if !ok || i.UserID != userID {
		return nil, ErrQuestNotFound
	}
	if i.Progress < i.Goal {
		return nil, ErrNotCompleted
	}
	i.Completed = true
	i.UpdatedAt = time.Now()
	clone := *i
	return &clone, nil
}

func (r *InMemoryRepository) Claim(_ context.Context, userID, questID string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.instances[questID]
	if !ok || i.UserID != userID {
		return nil, ErrQuestNotFound
	}
	if i.RewardClaimed {
		return nil, ErrAlreadyClaimed
	}
	if !i.Completed && i.Progress < i.Goal {
		return nil, ErrNotCompleted
	}
	i.Completed = true
	i.RewardClaimed = true
	i.UpdatedAt = time.Now()
	clone := *i
	return &clone, nil
}

func (r *InMemoryRepository) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, i := range r.instances {
		if i.UserID == userID {
			delete(r.instances, id)
		}
	}
	return nil
}

func sortByCreated(instances []*Instance) {
	sort.Slice(instances, func(a, b int) bool {
		return instances[a].CreatedAt.Before(instances[b].CreatedAt)
	})
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
