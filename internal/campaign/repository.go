package campaign

import (
	"context"
	"time"
)

// Repository defines the interface for campaign persistence.
type Repository interface {
	// Create inserts a campaign in its initial status.
	Create(ctx context.Context, c *Campaign) error

	// Get retrieves a campaign by ID.
	Get(ctx context.Context, id string) (*Campaign, error)

	// ListDue returns scheduled campaigns whose ScheduledAt is at or
	// before now, oldest first, up to limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Campaign, error)

	// Claim atomically moves a campaign from scheduled to sending.
	// Returns false when another worker already claimed it or the status
	// moved on.
	Claim(ctx context.Context, id string, startedAt time.Time) (bool, error)

	// Finish records the terminal status and aggregate counters. Only a
	// sending campaign can finish; finishing anything else is a no-op so
	// a duplicate processor cannot regress a terminal status.
	Finish(ctx context.Context, id string, status Status, targeted, success, failure int, errMsg string, completedAt time.Time) error

	// AppendDeliveryLog records one recipient-batch outcome.
	AppendDeliveryLog(ctx context.Context, log *DeliveryLog) error

	// DeliveryLogs returns a campaign's batch records, oldest first.
	DeliveryLogs(ctx context.Context, campaignID string) ([]*DeliveryLog, error)

	// InsertInApp materializes inbox messages for a batch of recipients.
	InsertInApp(ctx context.Context, msgs []*InAppMessage) error
}
