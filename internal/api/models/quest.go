package models

// QuestResponse represents one assigned quest instance.
type QuestResponse struct {
	ID            string    `json:"id"`
	Category      string    `json:"category"`
	Title         string    `json:"title"`
	Body          string    `json:"body,omitempty"`
	Route         string    `json:"route,omitempty"`
	Progress      int       `json:"progress"`
	Goal          int       `json:"goal"`
	Reward        int       `json:"reward"`
	Completed     bool      `json:"completed"`
	RewardClaimed bool      `json:"rewardClaimed"`
	AssignedDay   string    `json:"assignedDay"`
	UpdatedAt     Timestamp `json:"updatedAt"`
}

// QuestListResponse is the response body for GET /v1/me/quests.
type QuestListResponse struct {
	Quests []QuestResponse `json:"quests"`
}

// ProgressRequest is the request body for POST /v1/me/progress.
// RouteKey and Tags are advisory client context; progress is keyed by
// category alone.
type ProgressRequest struct {
	Category string   `json:"category" validate:"required"`
	Amount   int      `json:"amount" validate:"required,gt=0"`
	RouteKey string   `json:"routeKey,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}
