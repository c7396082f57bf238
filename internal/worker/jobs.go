package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepquest/prepquest/internal/audience"
	"github.com/prepquest/prepquest/internal/campaign"
	"github.com/prepquest/prepquest/internal/notification"
	"github.com/prepquest/prepquest/internal/rateguard"
	"github.com/prepquest/prepquest/internal/user"
)

// Jobs bundles the background jobs the worker can run, either from a
// Pub/Sub trigger or a local ticker.
type Jobs struct {
	orchestrator *campaign.Orchestrator
	notifier     *notification.Service
	resolver     *audience.Resolver
	guard        *rateguard.Guard

	// inactiveHours is the candidate threshold for contextual sends.
	inactiveHours int

	logger  zerolog.Logger
	metrics *JobMetrics
}

// JobsConfig holds configuration for creating Jobs.
type JobsConfig struct {
	Orchestrator  *campaign.Orchestrator
	Notifier      *notification.Service
	Resolver      *audience.Resolver
	Guard         *rateguard.Guard
	InactiveHours int
	Logger        zerolog.Logger
}

// NewJobs creates the worker job set.
func NewJobs(cfg JobsConfig) *Jobs {
	hours := cfg.InactiveHours
	if hours <= 0 {
		hours = 24
	}
	return &Jobs{
		orchestrator:  cfg.Orchestrator,
		notifier:      cfg.Notifier,
		resolver:      cfg.Resolver,
		guard:         cfg.Guard,
		inactiveHours: hours,
		logger:        cfg.Logger,
		metrics:       &JobMetrics{},
	}
}

// JobMetrics tracks job statistics across runs.
type JobMetrics struct {
	mu sync.RWMutex

	SweepRuns        int64
	CampaignsClaimed int64

	NotificationRuns   int64
	NotifyCandidates   int64
	NotificationsSent  int64
	NotificationsSkip  int64
	NotificationErrors int64

	RateGCRuns int64
	RowsPurged int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// RunCampaignSweep claims and processes due scheduled campaigns. Returns
// the number of campaigns claimed this run.
func (j *Jobs) RunCampaignSweep(ctx context.Context) (int, error) {
	start := time.Now()

	claimed, err := j.orchestrator.Sweep(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("campaign sweep failed")
		return claimed, err
	}

	j.metrics.mu.Lock()
	j.metrics.SweepRuns++
	j.metrics.CampaignsClaimed += int64(claimed)
	j.metrics.LastRunAt = time.Now()
	j.metrics.LastRunDuration = time.Since(start)
	j.metrics.mu.Unlock()

	j.logger.Info().
		Int("claimed", claimed).
		Dur("duration", time.Since(start)).
		Msg("campaign sweep completed")
	return claimed, nil
}

// NotifyResult summarizes one contextual notification run.
type NotifyResult struct {
	Candidates int
	Sent       int
	Skipped    int
	Failed     int

	// SkippedByReason counts skips per reason (no_devices, no_eligible,
	// rate_limited).
	SkippedByReason map[string]int
}

// RunContextualNotifications walks users inactive past the threshold and
// offers each one contextual notification. Per-user failures are counted
// and skipped; only audience resolution aborts the run.
func (j *Jobs) RunContextualNotifications(ctx context.Context) (*NotifyResult, error) {
	start := time.Now()
	result := &NotifyResult{SkippedByReason: make(map[string]int)}

	spec := &audience.Spec{
		Type:  audience.TypeInactive,
		Hours: j.inactiveHours,
	}

	err := j.resolver.Resolve(ctx, spec, func(ctx context.Context, userIDs []string) error {
		for _, userID := range userIDs {
			result.Candidates++

			outcome, err := j.notifier.SendContextual(ctx, userID)
			if err != nil {
				if errors.Is(err, user.ErrUserNotFound) {
					// Device rows can outlive their profile.
					result.Skipped++
					continue
				}
				j.logger.Warn().Err(err).Str("user_id", userID).Msg("contextual send failed")
				result.Failed++
				continue
			}
			if outcome.Sent {
				result.Sent++
			} else {
				result.Skipped++
				result.SkippedByReason[outcome.SkipReason]++
			}
		}
		return nil
	})
	if err != nil {
		j.logger.Error().Err(err).Msg("contextual notification run aborted")
		return result, err
	}

	j.metrics.mu.Lock()
	j.metrics.NotificationRuns++
	j.metrics.NotifyCandidates += int64(result.Candidates)
	j.metrics.NotificationsSent += int64(result.Sent)
	j.metrics.NotificationsSkip += int64(result.Skipped)
	j.metrics.NotificationErrors += int64(result.Failed)
	j.metrics.LastRunAt = time.Now()
	j.metrics.LastRunDuration = time.Since(start)
	j.metrics.mu.Unlock()

	j.logger.Info().
		Int("candidates", result.Candidates).
		Int("sent", result.Sent).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Dur("duration", time.Since(start)).
		Msg("contextual notification run completed")
	return result, nil
}

// RunRateGC purges expired limiter rows.
func (j *Jobs) RunRateGC(ctx context.Context) (int64, error) {
	start := time.Now()

	purged, err := j.guard.PurgeExpired(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("rate gc failed")
		return 0, err
	}

	j.metrics.mu.Lock()
	j.metrics.RateGCRuns++
	j.metrics.RowsPurged += purged
	j.metrics.LastRunAt = time.Now()
	j.metrics.LastRunDuration = time.Since(start)
	j.metrics.mu.Unlock()

	j.logger.Info().
		Int64("purged", purged).
		Dur("duration", time.Since(start)).
		Msg("rate gc completed")
	return purged, nil
}

// GetMetrics returns a copy of the current metrics.
func (j *Jobs) GetMetrics() JobMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return JobMetrics{
		SweepRuns:          j.metrics.SweepRuns,
		CampaignsClaimed:   j.metrics.CampaignsClaimed,
		NotificationRuns:   j.metrics.NotificationRuns,
		NotifyCandidates:   j.metrics.NotifyCandidates,
		NotificationsSent:  j.metrics.NotificationsSent,
		NotificationsSkip:  j.metrics.NotificationsSkip,
		NotificationErrors: j.metrics.NotificationErrors,
		RateGCRuns:         j.metrics.RateGCRuns,
		RowsPurged:         j.metrics.RowsPurged,
		LastRunAt:          j.metrics.LastRunAt,
		LastRunDuration:    j.metrics.LastRunDuration,
	}
}

// MetricsSnapshot returns the current metrics as a map.
func (j *Jobs) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"sweep_runs":          m.SweepRuns,
		"campaigns_claimed":   m.CampaignsClaimed,
		"notification_runs":   m.NotificationRuns,
		"notify_candidates":   m.NotifyCandidates,
		"notifications_sent":  m.NotificationsSent,
		"notifications_skip":  m.NotificationsSkip,
		"notification_errors": m.NotificationErrors,
		"rate_gc_runs":        m.RateGCRuns,
		"rows_purged":         m.RowsPurged,
		"last_run_at":         m.LastRunAt,
		"last_run_duration":   m.LastRunDuration.String(),
	}
}
