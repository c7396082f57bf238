package models

import "github.com/prepquest/prepquest/internal/audience"

// EstimateAudienceRequest is the request body for POST /v1/admin/audience:estimate.
type EstimateAudienceRequest struct {
	Audience audience.Spec `json:"audience" validate:"required"`
}

// EstimateAudienceResponse reports how many users an audience spec matches.
type EstimateAudienceResponse struct {
	Matched int `json:"matched"`
}

// SendPushRequest is the request body for POST /v1/admin/push.
type SendPushRequest struct {
	Title    string `json:"title" validate:"required"`
	Body     string `json:"body" validate:"required"`
	ImageURL string `json:"imageUrl,omitempty"`
	Route    string `json:"route,omitempty"`

	Audience audience.Spec `json:"audience" validate:"required"`
	SendType string        `json:"sendType" validate:"required,oneof=push inapp both"`

	// ScheduledAt defers the send; absent or past means send now.
	ScheduledAt *Timestamp `json:"scheduledAt,omitempty"`
}

// CampaignResponse represents a campaign and its delivery counters.
type CampaignResponse struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Body        string        `json:"body"`
	ImageURL    string        `json:"imageUrl,omitempty"`
	Route       string        `json:"route,omitempty"`
	Audience    audience.Spec `json:"audience"`
	SendType    string        `json:"sendType"`
	Status      string        `json:"status"`
	ScheduledAt *Timestamp    `json:"scheduledAt,omitempty"`

	TargetCount  int    `json:"targetCount"`
	SuccessCount int    `json:"successCount"`
	FailureCount int    `json:"failureCount"`
	Error        string `json:"error,omitempty"`

	CreatedBy   string     `json:"createdBy,omitempty"`
	StartedAt   *Timestamp `json:"startedAt,omitempty"`
	CompletedAt *Timestamp `json:"completedAt,omitempty"`
	CreatedAt   Timestamp  `json:"createdAt"`
	UpdatedAt   Timestamp  `json:"updatedAt"`
}
