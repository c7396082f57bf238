package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepquest/prepquest/internal/device"
	"github.com/prepquest/prepquest/internal/dispatch"
	"github.com/prepquest/prepquest/internal/quest"
	"github.com/prepquest/prepquest/internal/rateguard"
	"github.com/prepquest/prepquest/internal/selection"
	"github.com/prepquest/prepquest/internal/user"
)

// Outcome reports what a contextual send attempt did for one user.
type Outcome struct {
	Sent bool

	// SkipReason is set when Sent is false.
	SkipReason string

	TemplateID string
	Delivered  int
}

// Service picks and sends one contextual notification per user per sweep
// slot, subject to the per-user frequency guards.
type Service struct {
	repo    Repository
	users   *user.Service
	devices *device.Registry
	quests  *quest.Service
	guard   *rateguard.Guard
	gateway dispatch.Gateway
	engine  *selection.Engine
	logger  zerolog.Logger

	nowFunc func() time.Time
}

// NewService creates a new contextual notification service. The engine
// must be built for the notification domain.
func NewService(
	repo Repository,
	users *user.Service,
	devices *device.Registry,
	quests *quest.Service,
	guard *rateguard.Guard,
	gateway dispatch.Gateway,
	engine *selection.Engine,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		devices: devices,
		quests:  quests,
		guard:   guard,
		gateway: gateway,
		engine:  engine,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *Service) SetNowFunc(f func() time.Time) {
	s.nowFunc = f
}

// SendContextual evaluates the user's context and sends at most one
// notification. The frequency guards are consumed only after a template
// has been picked, so an ineligible user never burns quota.
func (s *Service) SendContextual(ctx context.Context, userID string) (*Outcome, error) {
	now := s.nowFunc()

	tokens, err := s.devices.ActiveTokens(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve tokens: %w", err)
	}
	if len(tokens) == 0 {
		return &Outcome{SkipReason: SkipNoDevices}, nil
	}

	c, err := s.buildContext(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	picked := s.engine.Select(c, 1)
	if len(picked) == 0 {
		return &Outcome{SkipReason: SkipNoEligible}, nil
	}
	tmpl := picked[0]

	if err := s.consumeGuards(ctx, userID); err != nil {
		if errors.Is(err, rateguard.ErrRateLimited) {
			return &Outcome{SkipReason: SkipRateLimit}, nil
		}
		return nil, err
	}

	result, err := s.gateway.Send(ctx, &dispatch.Message{
		Title:       tmpl.Title,
		Body:        tmpl.Body,
		Route:       tmpl.Route,
		CollapseKey: "ctx_" + tmpl.Category,
		Tokens:      tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("send notification: %w", err)
	}

	if err := s.repo.Record(ctx, userID, tmpl.ID, now); err != nil {
		// The push already left. Log and report the send rather than
		// failing the sweep over bookkeeping.
		s.logger.Error().Err(err).
			Str("user_id", userID).
			Str("template_id", tmpl.ID).
			Msg("failed to record notification history")
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("template_id", tmpl.ID).
		Int("delivered", result.SuccessCount).
		Msg("contextual notification sent")

	return &Outcome{Sent: true, TemplateID: tmpl.ID, Delivered: result.SuccessCount}, nil
}

// DeleteByUser removes the user's notification history.
func (s *Service) DeleteByUser(ctx context.Context, userID string) error {
	return s.repo.DeleteByUser(ctx, userID)
}

// consumeGuards enforces the minimum gap and the daily cap atomically
// against the shared limiter store.
func (s *Service) consumeGuards(ctx context.Context, userID string) error {
	if err := s.guard.CheckAndConsume(ctx, "notif_gap_"+userID, MinGap, 1); err != nil {
		return err
	}
	return s.guard.CheckAndConsumeDaily(ctx, "notif_day_"+userID, MaxPerDay)
}

func (s *Service) buildContext(ctx context.Context, userID string, now time.Time) (*selection.Context, error) {
	c, err := s.users.SelectionContext(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	recent, err := s.repo.Recent(ctx, userID, RecentTemplateLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	c.RecentNotificationIDs = recent

	instances, err := s.quests.ListForDay(ctx, userID, quest.Day(now))
	if err != nil {
		return nil, fmt.Errorf("load active quests: %w", err)
	}
	for _, i := range instances {
		if !i.RewardClaimed {
			c.ActiveQuestIDs = append(c.ActiveQuestIDs, i.TemplateID)
		}
	}

	return c, nil
}
