// Package user provides user profile and study-stats storage.
package user

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrUserNotFound = errors.New("user not found")
)

// Exam type constants. These mirror the exam categories the mobile app
// supports; audience filters match against them.
const (
	ExamTYT  = "tyt"
	ExamAYT  = "ayt"
	ExamYDS  = "yds"
	ExamKPSS = "kpss"
)

// User represents a user's profile as seen by the engagement engine.
type User struct {
	// ID is the unique user identifier (format: usr_XXXX).
	ID string

	// DisplayName is shown in personalized message text. May be empty.
	DisplayName string

	// ExamType is the exam category the user is preparing for.
	ExamType string

	// ExamDate is the user's target exam date, if set.
	ExamDate *time.Time

	// Premium indicates an active paid subscription.
	Premium bool

	// Locale is the user's preferred language (BCP 47).
	Locale string

	// LastActiveAt is the last time the user opened the app or reported
	// progress. Drives inactivity-based targeting.
	LastActiveAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats holds aggregated study statistics for one user. Written by the
// progress pipeline, read by the selection engine's context builder.
type Stats struct {
	UserID string

	// StreakDays is the current consecutive-day study streak.
	StreakDays int

	// QuestionsSolved is the lifetime solved-question count.
	QuestionsSolved int

	// WeakSubject and StrongSubject are the user's lowest and highest
	// accuracy subjects, when enough data exists to resolve them.
	WeakSubject   *string
	StrongSubject *string

	// PracticedCategories are the distinct practice categories touched in
	// the trailing week, most recent first.
	PracticedCategories []string

	// PlanProgress is the completion ratio of the active study plan in
	// [0, 1]. Nil when the user has no active plan.
	PlanProgress *float64

	// FeaturesUsed are app feature keys the user has touched at least once.
	FeaturesUsed []string

	UpdatedAt time.Time
}

// ListFilter selects users for audience resolution.
type ListFilter struct {
	// ExamTypes restricts to users preparing for one of these exams.
	// Empty means all exams.
	ExamTypes []string

	// OnlyNonPremium excludes users with an active subscription.
	OnlyNonPremium bool
}

// Page is one page of a keyset-paginated user-ID listing.
type Page struct {
	IDs []string

	// NextCursor is the cursor for the following page; empty on the last
	// page. Page content is a pure function of (filter, cursor), so a
	// retried page returns identical IDs.
	NextCursor string
}
