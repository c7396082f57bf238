// Package campaign orchestrates targeted push campaigns through their
// status machine.
package campaign

import (
	"errors"
	"time"

	"github.com/prepquest/prepquest/internal/audience"
)

// Campaign errors.
var (
	ErrCampaignNotFound = errors.New("campaign not found")
)

// Status is the campaign lifecycle state. Transitions are monotonic:
// scheduled → sending → completed | failed.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// SendType selects the delivery channels.
type SendType string

const (
	SendPush  SendType = "push"
	SendInApp SendType = "inapp"
	SendBoth  SendType = "both"
)

// Valid reports whether s is a known send type.
func (s SendType) Valid() bool {
	switch s {
	case SendPush, SendInApp, SendBoth:
		return true
	}
	return false
}

// Push reports whether the campaign delivers over push.
func (s SendType) Push() bool { return s == SendPush || s == SendBoth }

// InApp reports whether the campaign writes in-app inbox messages.
func (s SendType) InApp() bool { return s == SendInApp || s == SendBoth }

// Campaign is one targeted send through its lifecycle.
type Campaign struct {
	// ID is the unique campaign identifier (format: cmp_XXXX).
	ID string

	Title    string
	Body     string
	ImageURL string
	Route    string

	Audience audience.Spec
	SendType SendType

	// ScheduledAt is when a scheduled campaign becomes due. Nil means the
	// campaign was dispatched inline at creation.
	ScheduledAt *time.Time

	Status Status

	// TargetCount is the number of users the audience resolved to.
	TargetCount int

	// SuccessCount and FailureCount aggregate per-token outcomes.
	SuccessCount int
	FailureCount int

	// Error captures the failure cause for StatusFailed.
	Error string

	// CreatedBy is the admin subject that created the campaign.
	CreatedBy string

	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DeliveryLog is one recipient-batch record written while processing a
// scheduled campaign. Per-token outcomes live on the campaign's aggregate
// counters; the log tracks batch sizes for auditing.
type DeliveryLog struct {
	CampaignID string

	// Users is the number of audience members in the batch.
	Users int

	// Tokens is the number of new device tokens the batch contributed
	// after global dedupe.
	Tokens int

	SentAt time.Time
}

// InAppMessage is one inbox entry materialized for a recipient.
type InAppMessage struct {
	ID         string
	UserID     string
	CampaignID string
	Title      string
	Body       string
	ImageURL   string
	Route      string
	CreatedAt  time.Time
}
