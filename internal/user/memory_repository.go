package user

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository for
// testing and local development.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
	stats map[string]*Stats
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users: make(map[string]*User),
		stats: make(map[string]*Stats),
	}
}

// Get retrieves a user by ID.
func (r *InMemoryRepository) Get(_ context.Context, userID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

// GetMany retrieves users by ID, skipping unknown IDs.
func (r *InMemoryRepository) GetMany(_ context.Context, ids []string) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []*User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			copied := *u
			users = append(users, &copied)
		}
	}
	return users, nil
}

// Upsert creates or replaces a user profile.
func (r *InMemoryRepository) Upsert(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *u
	r.users[u.ID] = &copied
	return nil
}

// TouchLastActive advances LastActiveAt for a user.
func (r *InMemoryRepository) TouchLastActive(_ context.Context, userID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[userID]; ok {
		u.LastActiveAt = now
		u.UpdatedAt = now
	}
	return nil
}

func (r *InMemoryRepository) matches(u *User, filter ListFilter) bool {
	if filter.OnlyNonPremium && u.Premium {
		return false
	}
	if len(filter.ExamTypes) > 0 {
		found := false
		for _, e := range filter.ExamTypes {
			if u.ExamType == e {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ListIDs returns one page of user IDs matching the filter.
func (r *InMemoryRepository) ListIDs(_ context.Context, filter ListFilter, cursor string, limit int) (*Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 500
	}

	var ids []string
	for id, u := range r.users {
		if id > cursor && r.matches(u, filter) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := &Page{}
	if len(ids) > limit {
		page.IDs = ids[:limit]
		page.NextCursor = ids[limit-1]
	} else {
		page.IDs = ids
	}
	return page, nil
}

// CountIDs returns the number of users matching the filter.
func (r *InMemoryRepository) CountIDs(_ context.Context, filter ListFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, u := range r.users {
		if r.matches(u, filter) {
			count++
		}
	}
	return count, nil
}

// GetStats retrieves study stats for a user.
func (r *InMemoryRepository) GetStats(_ context.Context, userID string) (*Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stats[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *s
	return &copied, nil
}

// UpsertStats creates or replaces a user's stats.
func (r *InMemoryRepository) UpsertStats(_ context.Context, s *Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *s
	r.stats[s.UserID] = &copied
	return nil
}

// Delete removes the user and owned stats rows.
func (r *InMemoryRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, userID)
	delete(r.stats, userID)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
