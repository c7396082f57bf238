package notification

import (
	"context"
	"time"
)

// Repository defines the interface for sent-notification history.
type Repository interface {
	// Recent returns up to limit template IDs sent to the user, most
	// recent first.
	Recent(ctx context.Context, userID string, limit int) ([]string, error)

	// Record appends a sent template to the user's history, trimming
	// entries beyond RecentTemplateLimit.
	Record(ctx context.Context, userID, templateID string, sentAt time.Time) error

	// DeleteByUser removes the user's history.
	DeleteByUser(ctx context.Context, userID string) error
}
