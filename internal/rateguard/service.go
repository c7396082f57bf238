package rateguard

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Guard provides rate limit and daily quota checks backed by a Repository.
type Guard struct {
	repo   Repository
	logger zerolog.Logger

	nowFunc func() time.Time
}

// NewGuard creates a new Guard.
func NewGuard(repo Repository, logger zerolog.Logger) *Guard {
	return &Guard{repo: repo, logger: logger, nowFunc: time.Now}
}

// SetNowFunc overrides the clock, for tests.
func (g *Guard) SetNowFunc(f func() time.Time) {
	g.nowFunc = f
}

// CheckAndConsume consumes one unit from the sliding window for key.
// Returns ErrRateLimited when the window allowance is exhausted.
func (g *Guard) CheckAndConsume(ctx context.Context, key string, window time.Duration, max int) error {
	err := g.repo.Consume(ctx, key, window, max)
	if err == ErrRateLimited {
		g.logger.Debug().
			Str("key", key).
			Dur("window", window).
			Int("max", max).
			Msg("rate limit hit")
	}
	return err
}

// CheckAndConsumeDaily consumes one unit from a per-calendar-day quota.
// The day is encoded into the record key, so the counter resets at the UTC
// day boundary by identity rather than by expiry.
func (g *Guard) CheckAndConsumeDaily(ctx context.Context, scope string, limitPerDay int) error {
	key := DayKey(scope, g.nowFunc())
	// A 48h window comfortably outlives the day key; the key itself is
	// what scopes the count to one day.
	err := g.repo.Consume(ctx, key, 48*time.Hour, limitPerDay)
	if err == ErrRateLimited {
		g.logger.Debug().
			Str("key", key).
			Int("limit_per_day", limitPerDay).
			Msg("daily quota hit")
	}
	return err
}

// PurgeExpired removes counters past their expiry hint. Called by the
// worker's maintenance job.
func (g *Guard) PurgeExpired(ctx context.Context) (int64, error) {
	purged, err := g.repo.PurgeExpired(ctx, g.nowFunc())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		g.logger.Info().Int64("purged", purged).Msg("purged expired rate limit records")
	}
	return purged, nil
}
