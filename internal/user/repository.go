package user

import (
	"context"
	"time"
)

// Repository defines the interface for user persistence.
type Repository interface {
	// Get retrieves a user by ID.
	Get(ctx context.Context, userID string) (*User, error)

	// GetMany retrieves the users whose IDs are in ids, skipping unknown
	// IDs. Callers chunk large inputs; implementations may assume len(ids)
	// is bounded.
	GetMany(ctx context.Context, ids []string) ([]*User, error)

	// Upsert creates or replaces a user profile.
	Upsert(ctx context.Context, u *User) error

	// TouchLastActive advances LastActiveAt to now. Best-effort from the
	// caller's perspective; failures must not block the primary operation.
	TouchLastActive(ctx context.Context, userID string, now time.Time) error

	// ListIDs returns one page of user IDs matching the filter, ordered by
	// ID ascending starting after cursor (exclusive). A stable order makes
	// pages resumable and repeatable.
	ListIDs(ctx context.Context, filter ListFilter, cursor string, limit int) (*Page, error)

	// CountIDs returns the number of users matching the filter.
	CountIDs(ctx context.Context, filter ListFilter) (int, error)

	// GetStats retrieves study stats for a user. Returns ErrUserNotFound
	// when no stats row exists yet.
	GetStats(ctx context.Context, userID string) (*Stats, error)

	// UpsertStats creates or replaces a user's stats.
	UpsertStats(ctx context.Context, s *Stats) error

	// Delete removes the user and owned rows (stats). Device and quest
	// cleanup is owned by their packages.
	Delete(ctx context.Context, userID string) error
}
