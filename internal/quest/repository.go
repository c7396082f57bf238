package quest

import (
	"context"
	"time"
)

// Repository defines the interface for quest instance persistence.
//
// ApplyProgress and Claim run their read-then-conditional-write inside a
// transaction: two concurrent progress reports for the same user must not
// lose updates.
type Repository interface {
	// Get retrieves one instance by user and instance ID.
	Get(ctx context.Context, userID, questID string) (*Instance, error)

	// ListForDay retrieves the user's instances assigned to day.
	ListForDay(ctx context.Context, userID string, day time.Time) ([]*Instance, error)

	// ReplaceForDay deletes the user's instances for day and inserts the
	// given batch atomically (the full-replace refresh cycle).
	ReplaceForDay(ctx context.Context, userID string, day time.Time, instances []*Instance) error

	// ApplyProgress adds amount to every non-terminal instance of the
	// user in category on day, clamping at the goal and marking completed
	// instances. Returns the updated instances.
	ApplyProgress(ctx context.Context, userID string, day time.Time, category string, amount int) ([]*Instance, error)

	// Complete marks an instance completed if its progress has reached
	// the goal. Returns ErrNotCompleted otherwise.
	Complete(ctx context.Context, userID, questID string) (*Instance, error)

	// Claim marks the reward claimed. Returns ErrNotCompleted when the
	// instance is not completed and ErrAlreadyClaimed on a repeat claim.
	Claim(ctx context.Context, userID, questID string) (*Instance, error)

	// DeleteByUser removes all instances for a user.
	DeleteByUser(ctx context.Context, userID string) error
}
