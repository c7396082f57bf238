package campaign

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository for
// testing and local development.
type InMemoryRepository struct {
	mu        sync.Mutex
	campaigns map[string]*Campaign
	logs      map[string][]*DeliveryLog
	inapp     []*InAppMessage
}

// NewInMemoryRepository creates a new in-memory campaign repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		campaigns: make(map[string]*Campaign),
		logs:      make(map[string][]*DeliveryLog),
	}
}

func (r *InMemoryRepository) Create(_ context.Context, c *Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *c
	r.campaigns[c.ID] = &copied
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *InMemoryRepository) ListDue(_ context.Context, now time.Time, limit int) ([]*Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*Campaign
	for _, c := range r.campaigns {
		if c.Status == StatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			copied := *c
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(*due[j].ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *InMemoryRepository) Claim(_ context.Context, id string, startedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[id]
	if !ok || c.Status != StatusScheduled {
		return false, nil
	}
	c.Status = StatusSending
	c.StartedAt = &startedAt
	c.UpdatedAt = startedAt
	return true, nil
}

func (r *InMemoryRepository) Finish(_ context.Context, id string, status Status, targeted, success, failure int, errMsg string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[id]
	if !ok || c.Status != StatusSending {
		return nil
	}
	c.Status = status
	c.TargetCount = targeted
	c.SuccessCount = success
	c.FailureCount = failure
	c.Error = errMsg
	c.CompletedAt = &completedAt
	c.UpdatedAt = completedAt
	return nil
}

func (r *InMemoryRepository) AppendDeliveryLog(_ context.Context, log *DeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *log
	r.logs[log.CampaignID] = append(r.logs[log.CampaignID], &copied)
	return nil
}

func (r *InMemoryRepository) DeliveryLogs(_ context.Context, campaignID string) ([]*DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logs := r.logs[campaignID]
	out := make([]*DeliveryLog, 0, len(logs))
	for _, l := range logs {
		copied := *l
		out = append(out, &copied)
	}
	return out, nil
}

func (r *InMemoryRepository) InsertInApp(_ context.Context, msgs []*InAppMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range msgs {
		copied := *m
		r.inapp = append(r.inapp, &copied)
	}
	return nil
}

// InAppMessages returns all inbox rows. Test use only.
func (r *InMemoryRepository) InAppMessages() []*InAppMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*InAppMessage, 0, len(r.inapp))
	for _, m := range r.inapp {
		copied := *m
		out = append(out, &copied)
	}
	return out
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
