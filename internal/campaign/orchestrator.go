package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/prepquest/prepquest/internal/audience"
	"github.com/prepquest/prepquest/internal/device"
	"github.com/prepquest/prepquest/internal/dispatch"
)

// ErrInvalidCampaign is returned when a create request fails validation.
var ErrInvalidCampaign = errors.New("invalid campaign")

const (
	// sweepBatchSize bounds how many due campaigns one sweep picks up.
	sweepBatchSize = 20

	// tokenResolveConcurrency bounds parallel per-user token lookups
	// within one audience page.
	tokenResolveConcurrency = 8
)

// CreateInput carries an admin push request.
type CreateInput struct {
	Title    string
	Body     string
	ImageURL string
	Route    string

	Audience audience.Spec
	SendType SendType

	// ScheduledAt defers the send. Nil or past dispatches inline.
	ScheduledAt *time.Time

	CreatedBy string
}

// Orchestrator drives campaigns through their status machine.
type Orchestrator struct {
	repo     Repository
	resolver *audience.Resolver
	devices  *device.Registry
	gateway  dispatch.Gateway
	logger   zerolog.Logger

	nowFunc func() time.Time
}

// NewOrchestrator creates a campaign orchestrator.
func NewOrchestrator(
	repo Repository,
	resolver *audience.Resolver,
	devices *device.Registry,
	gateway dispatch.Gateway,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		resolver: resolver,
		devices:  devices,
		gateway:  gateway,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (o *Orchestrator) SetNowFunc(f func() time.Time) {
	o.nowFunc = f
}

// Create validates and persists a campaign. A campaign scheduled for the
// future lands in StatusScheduled for the sweep; anything else is written
// as sending and processed inline before returning.
func (o *Orchestrator) Create(ctx context.Context, in *CreateInput) (*Campaign, error) {
	if err := o.validate(in); err != nil {
		return nil, err
	}

	now := o.nowFunc()
	c := &Campaign{
		ID:        "cmp_" + uuid.New().String()[:22],
		Title:     in.Title,
		Body:      in.Body,
		ImageURL:  in.ImageURL,
		Route:     in.Route,
		Audience:  in.Audience,
		SendType:  in.SendType,
		CreatedBy: in.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	scheduled := in.ScheduledAt != nil && in.ScheduledAt.After(now)
	if scheduled {
		c.Status = StatusScheduled
		c.ScheduledAt = in.ScheduledAt
	} else {
		c.Status = StatusSending
		c.StartedAt = &now
	}

	if err := o.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	o.logger.Info().
		Str("campaign_id", c.ID).
		Str("status", string(c.Status)).
		Str("send_type", string(c.SendType)).
		Str("created_by", c.CreatedBy).
		Msg("campaign created")

	if scheduled {
		return c, nil
	}

	// Immediate sends skip the per-batch delivery log.
	o.process(ctx, c, false)
	return o.repo.Get(ctx, c.ID)
}

// Get retrieves a campaign with its delivery logs attached by the caller
// when needed.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Campaign, error) {
	return o.repo.Get(ctx, id)
}

// DeliveryLogs returns a campaign's batch records.
func (o *Orchestrator) DeliveryLogs(ctx context.Context, id string) ([]*DeliveryLog, error) {
	return o.repo.DeliveryLogs(ctx, id)
}

// Estimate sizes an audience for the admin preview endpoint.
func (o *Orchestrator) Estimate(ctx context.Context, spec *audience.Spec) (int, error) {
	return o.resolver.Estimate(ctx, spec)
}

// Sweep claims and processes due scheduled campaigns. A failing campaign
// is marked failed and the sweep moves on; the returned count is how many
// campaigns this sweep claimed.
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	now := o.nowFunc()
	due, err := o.repo.ListDue(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due campaigns: %w", err)
	}

	claimed := 0
	for _, c := range due {
		ok, err := o.repo.Claim(ctx, c.ID, o.nowFunc())
		if err != nil {
			o.logger.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to claim campaign")
			continue
		}
		if !ok {
			// Another worker won the claim.
			continue
		}
		claimed++
		o.process(ctx, c, true)
	}
	return claimed, nil
}

func (o *Orchestrator) validate(in *CreateInput) error {
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidCampaign)
	}
	if in.Body == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidCampaign)
	}
	if !in.SendType.Valid() {
		return fmt.Errorf("%w: unknown send type %q", ErrInvalidCampaign, in.SendType)
	}
	if err := in.Audience.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCampaign, err)
	}
	return nil
}

// process resolves the audience, fans out delivery, and writes the
// terminal status. The campaign must already be in StatusSending.
func (o *Orchestrator) process(ctx context.Context, c *Campaign, recordLogs bool) {
	filter := c.Audience.TokenFilter()

	var (
		targeted int
		inserted int
		tokens   []string
		seen     = make(map[string]bool)
	)

	err := o.resolver.Resolve(ctx, &c.Audience, func(ctx context.Context, userIDs []string) error {
		targeted += len(userIDs)

		if c.SendType.InApp() {
			n, err := o.insertInApp(ctx, c, userIDs)
			if err != nil {
				return err
			}
			inserted += n
		}

		batchTokens := 0
		if c.SendType.Push() {
			fresh, err := o.resolveTokens(ctx, userIDs, filter, seen)
			if err != nil {
				return err
			}
			tokens = append(tokens, fresh...)
			batchTokens = len(fresh)
		}

		if recordLogs {
			// Log rows are observability, not delivery state; a failed
			// append must not fail the batch.
			if err := o.repo.AppendDeliveryLog(ctx, &DeliveryLog{
				CampaignID: c.ID,
				Users:      len(userIDs),
				Tokens:     batchTokens,
				SentAt:     o.nowFunc(),
			}); err != nil {
				o.logger.Warn().Err(err).
					Str("campaign_id", c.ID).
					Msg("failed to append delivery log")
			}
		}
		return nil
	})
	if err != nil {
		o.finish(ctx, c, StatusFailed, targeted, 0, 0, err)
		return
	}

	success, failure := inserted, 0
	if c.SendType.Push() && len(tokens) > 0 {
		result, err := o.gateway.Send(ctx, &dispatch.Message{
			Title:       c.Title,
			Body:        c.Body,
			ImageURL:    c.ImageURL,
			Route:       c.Route,
			CollapseKey: c.ID,
			Tokens:      tokens,
		})
		if err != nil {
			o.finish(ctx, c, StatusFailed, targeted, success, 0, err)
			return
		}
		success += result.SuccessCount
		failure += result.FailureCount
	}

	o.finish(ctx, c, StatusCompleted, targeted, success, failure, nil)
}

// resolveTokens looks up active tokens for a page of users in parallel and
// returns the ones not seen in earlier pages. seen is only touched under
// the local mutex.
func (o *Orchestrator) resolveTokens(ctx context.Context, userIDs []string, filter device.TokenFilter, seen map[string]bool) ([]string, error) {
	var (
		mu    sync.Mutex
		fresh []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tokenResolveConcurrency)
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			userTokens, err := o.devices.ActiveTokensFiltered(gctx, userID, filter)
			if err != nil {
				return fmt.Errorf("tokens for %s: %w", userID, err)
			}

			mu.Lock()
			for _, tok := range userTokens {
				if !seen[tok] {
					seen[tok] = true
					fresh = append(fresh, tok)
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (o *Orchestrator) insertInApp(ctx context.Context, c *Campaign, userIDs []string) (int, error) {
	now := o.nowFunc()
	msgs := make([]*InAppMessage, 0, len(userIDs))
	for _, userID := range userIDs {
		msgs = append(msgs, &InAppMessage{
			ID:         "iam_" + uuid.New().String()[:22],
			UserID:     userID,
			CampaignID: c.ID,
			Title:      c.Title,
			Body:       c.Body,
			ImageURL:   c.ImageURL,
			Route:      c.Route,
			CreatedAt:  now,
		})
	}
	if err := o.repo.InsertInApp(ctx, msgs); err != nil {
		return 0, fmt.Errorf("insert inapp batch: %w", err)
	}
	return len(msgs), nil
}

// finish writes the terminal status and logs the outcome. Failures to
// persist the terminal state are logged; the sweep will not retry a
// sending campaign, which keeps delivery at-least-once rather than
// duplicating whole sends.
func (o *Orchestrator) finish(ctx context.Context, c *Campaign, status Status, targeted, success, failure int, cause error) {
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}

	if err := o.repo.Finish(ctx, c.ID, status, targeted, success, failure, errMsg, o.nowFunc()); err != nil {
		o.logger.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to finish campaign")
		return
	}

	evt := o.logger.Info()
	if status == StatusFailed {
		evt = o.logger.Error().Err(cause)
	}
	evt.
		Str("campaign_id", c.ID).
		Str("status", string(status)).
		Int("targeted", targeted).
		Int("success", success).
		Int("failure", failure).
		Msg("campaign finished")
}
