package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler drives the jobs from local tickers when no Pub/Sub
// subscription is configured. The sweep and GC run on fixed intervals;
// contextual notifications fire at the configured daily slots.
type Scheduler struct {
	jobs   *Jobs
	slots  []Slot
	sweep  time.Duration
	rateGC time.Duration
	logger zerolog.Logger

	nowFunc func() time.Time
}

// NewScheduler creates a local scheduler. slots may be empty to disable
// contextual notification runs.
func NewScheduler(jobs *Jobs, cfg *Config, logger zerolog.Logger) (*Scheduler, error) {
	slots, err := cfg.Slots()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		jobs:    jobs,
		slots:   slots,
		sweep:   cfg.SweepInterval,
		rateGC:  cfg.RateGCInterval,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Run blocks until ctx is cancelled, firing jobs on their schedules.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().
		Dur("sweep_interval", s.sweep).
		Dur("rate_gc_interval", s.rateGC).
		Int("notification_slots", len(s.slots)).
		Msg("local scheduler started")

	sweepTicker := time.NewTicker(s.sweep)
	defer sweepTicker.Stop()
	gcTicker := time.NewTicker(s.rateGC)
	defer gcTicker.Stop()

	for _, slot := range s.slots {
		go s.runSlot(ctx, slot)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("local scheduler stopped")
			return
		case <-sweepTicker.C:
			if _, err := s.jobs.RunCampaignSweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduled campaign sweep failed")
			}
		case <-gcTicker.C:
			if _, err := s.jobs.RunRateGC(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduled rate gc failed")
			}
		}
	}
}

// runSlot fires the contextual notification job once per day at the slot
// time until ctx is cancelled.
func (s *Scheduler) runSlot(ctx context.Context, slot Slot) {
	for {
		now := s.nowFunc()
		timer := time.NewTimer(slot.Next(now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.logger.Info().Str("slot", slot.String()).Msg("notification slot due")
			if _, err := s.jobs.RunContextualNotifications(ctx); err != nil {
				s.logger.Error().Err(err).Str("slot", slot.String()).Msg("slot run failed")
			}
		}
	}
}
