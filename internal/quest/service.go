package quest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepquest/prepquest/internal/selection"
	"github.com/prepquest/prepquest/internal/user"
)

// Service assigns and tracks daily quests. Assignment is lazy: the first
// read of a new calendar day triggers a full-replace refresh through the
// selection engine.
type Service struct {
	repo   Repository
	users  *user.Service
	engine *selection.Engine
	logger zerolog.Logger

	nowFunc func() time.Time
}

// NewService creates a new quest service. The engine must be built for the
// quest domain.
func NewService(repo Repository, users *user.Service, engine *selection.Engine, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		engine:  engine,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *Service) SetNowFunc(f func() time.Time) {
	s.nowFunc = f
}

// CheckAndRefreshDaily returns the user's quests for the current day,
// assigning a fresh set when none exist yet. Returns an empty slice when
// no template is eligible.
func (s *Service) CheckAndRefreshDaily(ctx context.Context, userID string) ([]*Instance, error) {
	now := s.nowFunc()
	day := Day(now)

	existing, err := s.repo.ListForDay(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	c, err := s.users.SelectionContext(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	templates := s.engine.Select(c, DailyQuestCount)
	instances := make([]*Instance, 0, len(templates))
	for _, t := range templates {
		goal := t.Goal
		if goal <= 0 {
			goal = 1
		}
		instances = append(instances, &Instance{
			ID:          "qst_" + uuid.New().String()[:22],
			UserID:      userID,
			TemplateID:  t.ID,
			Category:    t.Category,
			Title:       t.Title,
			Body:        t.Body,
			Route:       t.Route,
			Goal:        goal,
			Reward:      t.Reward,
			AssignedDay: day,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := s.repo.ReplaceForDay(ctx, userID, day, instances); err != nil {
		return nil, fmt.Errorf("assign quests: %w", err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("assigned", len(instances)).
		Time("day", day).
		Msg("daily quests assigned")

	return instances, nil
}

// ReportProgress applies a progress delta to the user's non-terminal
// quests in category for the current day and touches activity tracking.
func (s *Service) ReportProgress(ctx context.Context, userID, category string, amount int) ([]*Instance, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	day := Day(s.nowFunc())
	updated, err := s.repo.ApplyProgress(ctx, userID, day, category, amount)
	if err != nil {
		return nil, fmt.Errorf("apply progress: %w", err)
	}

	s.users.TouchLastActive(ctx, userID)
	return updated, nil
}

// Get retrieves one quest instance.
func (s *Service) Get(ctx context.Context, userID, questID string) (*Instance, error) {
	return s.repo.Get(ctx, userID, questID)
}

// Complete marks a quest completed once its goal is reached.
func (s *Service) Complete(ctx context.Context, userID, questID string) (*Instance, error) {
	return s.repo.Complete(ctx, userID, questID)
}

// ClaimReward claims a completed quest's reward exactly once.
func (s *Service) ClaimReward(ctx context.Context, userID, questID string) (*Instance, error) {
	i, err := s.repo.Claim(ctx, userID, questID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("quest_id", questID).
		Int("reward", i.Reward).
		Msg("quest reward claimed")

	return i, nil
}

// ListForDay returns the user's instances for the given day without
// triggering a refresh.
func (s *Service) ListForDay(ctx context.Context, userID string, day time.Time) ([]*Instance, error) {
	return s.repo.ListForDay(ctx, userID, day)
}

// DeleteByUser removes all quest data for a user.
func (s *Service) DeleteByUser(ctx context.Context, userID string) error {
	return s.repo.DeleteByUser(ctx, userID)
}
