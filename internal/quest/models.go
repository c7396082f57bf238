// Package quest manages per-user daily quest instances.
package quest

import (
	"errors"
	"time"
)

// Quest errors.
var (
	ErrQuestNotFound = errors.New("quest not found")

	// ErrNotCompleted is returned when a reward is claimed before the
	// quest reached its goal.
	ErrNotCompleted = errors.New("quest is not completed")

	// ErrAlreadyClaimed is returned on a duplicate claim. Claiming is the
	// terminal transition; the instance never changes afterwards.
	ErrAlreadyClaimed = errors.New("quest reward already claimed")

	// ErrInvalidAmount is returned when a progress report carries a
	// non-positive amount.
	ErrInvalidAmount = errors.New("progress amount must be positive")
)

// DailyQuestCount is how many quests a refresh assigns per user.
const DailyQuestCount = 4

// Instance is a per-user materialization of a quest template with mutable
// progress.
type Instance struct {
	// ID is unique per instance (format: qst_XXXX).
	ID string

	UserID     string
	TemplateID string
	Category   string

	// Title, Body and Route carry the personalized template text frozen
	// at assignment time.
	Title string
	Body  string
	Route string

	// Progress counts toward Goal; clamped at Goal.
	Progress int
	Goal     int

	// Reward is the point value granted on claim.
	Reward int

	Completed     bool
	RewardClaimed bool

	// AssignedDay is the UTC calendar day (truncated) this instance
	// belongs to. Refresh replaces all instances sharing a day.
	AssignedDay time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
