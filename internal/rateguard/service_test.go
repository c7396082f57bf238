package rateguard_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepquest/prepquest/internal/rateguard"
)

func newGuard(repo rateguard.Repository) *rateguard.Guard {
	return rateguard.NewGuard(repo, zerolog.Nop())
}

func TestGuard_CheckAndConsume_AllowsUpToMax(t *testing.T) {
	repo := rateguard.NewInMemoryRepository()
	guard := newGuard(repo)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := guard.CheckAndConsume(ctx, "action:usr_1", time.Minute, 5)
		require.NoError(t, err, "call %d should be allowed", i+1)
	}

	err := guard.CheckAndConsume(ctx, "action:usr_1", time.Minute, 5)
	assert.ErrorIs(t, err, rateguard.ErrRateLimited)

	// Rejected calls must not consume.
	assert.Equal(t, 5, repo.Count("action:usr_1"))
}

func TestGuard_CheckAndConsume_ResetsAfterWindow(t *testing.T) {
	repo := rateguard.NewInMemoryRepository()
	guard := newGuard(repo)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.SetNowFunc(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		require.NoError(t, guard.CheckAndConsume(ctx, "k", time.Minute, 3))
	}
	require.ErrorIs(t, guard.CheckAndConsume(ctx, "k", time.Minute, 3), rateguard.ErrRateLimited)

	// Just after the window elapses the next call succeeds with a fresh count.
	now = now.Add(time.Minute + time.Second)
	require.NoError(t, guard.CheckAndConsume(ctx, "k", time.Minute, 3))
	assert.Equal(t, 1, repo.Count("k"))
}

func TestGuard_CheckAndConsume_IndependentKeys(t *testing.T) {
	repo := rateguard.NewInMemoryRepository()
	guard := newGuard(repo)
	ctx := context.Background()

	require.NoError(t, guard.CheckAndConsume(ctx, "a", time.Minute, 1))
	require.ErrorIs(t, guard.CheckAndConsume(ctx, "a", time.Minute, 1), rateguard.ErrRateLimited)

	// A different key is unaffected.
	assert.NoError(t, guard.CheckAndConsume(ctx, "b", time.Minute, 1))
}

func TestGuard_CheckAndConsume_Concurrent(t *testing.T) {
	repo := rateguard.NewInMemoryRepository()
	guard := newGuard(repo)
	ctx := context.Background()

	const callers = 50
	const max = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := guard.CheckAndConsume(ctx, "shared", time.Minute, max); err == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// No lost updates, no double consumption.
	assert.Equal(t, max, allowed)
	assert.Equal(t, max, repo.Count("shared"))
}

func TestGuard_CheckAndConsumeDaily(t *testing.T) {
	repo := rateguard.NewInMemoryRepository()
	guard := newGuard(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, guard.CheckAndConsumeDaily(ctx, "push:usr_1", 3))
	}

	err := guard.CheckAndConsumeDaily(ctx, "push:usr_1", 3)
	assert.ErrorIs(t, err, rateguard.ErrRateLimited)

	key := rateguard.DayKey("push:usr_1", time.Now())
	assert.Equal(t, 3, repo.Count(key))
}

func TestGuard_CheckAndConsumeDaily_ResetsAtDayBoundary(t *testing.T) {
	repo := rateguard.NewInMemoryRepository()
	guard := newGuard(repo)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	guard.SetNowFunc(func() time.Time { return now })

	// Exhaust the quota just before midnight.
	for i := 0; i < 3; i++ {
		require.NoError(t, guard.CheckAndConsumeDaily(ctx, "push:usr_1", 3))
	}
	assert.ErrorIs(t, guard.CheckAndConsumeDaily(ctx, "push:usr_1", 3), rateguard.ErrRateLimited)

	// Two minutes later the calendar day has flipped and the full quota
	// is available again, regardless of yesterday's volume.
	now = now.Add(2 * time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, guard.CheckAndConsumeDaily(ctx, "push:usr_1", 3),
			"call %d after the day boundary should be allowed", i+1)
	}
	assert.ErrorIs(t, guard.CheckAndConsumeDaily(ctx, "push:usr_1", 3), rateguard.ErrRateLimited)

	assert.Equal(t, 3, repo.Count(rateguard.DayKey("push:usr_1", now)))
	assert.Equal(t, 3, repo.Count(rateguard.DayKey("push:usr_1", now.Add(-2*time.Minute))))
}

func TestDayKey_EncodesCalendarDay(t *testing.T) {
	d1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, "quests:usr_1_20260301", rateguard.DayKey("quests:usr_1", d1))
	assert.Equal(t, "quests:usr_1_20260302", rateguard.DayKey("quests:usr_1", d2))
	assert.NotEqual(t, rateguard.DayKey("s", d1), rateguard.DayKey("s", d2))
}

func TestGuard_PurgeExpired(t *testing.T) {
	repo := rateguard.NewInMemoryRepository()
	guard := newGuard(repo)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.SetNowFunc(func() time.Time { return now })

	require.NoError(t, guard.CheckAndConsume(ctx, "old", time.Minute, 5))

	// Well past the expiry hint.
	repo.SetNowFunc(func() time.Time { return now.Add(3 * time.Minute) })
	purged, err := repo.PurgeExpired(ctx, now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Equal(t, 0, repo.Count("old"))
}

func TestGuard_RejectionIsImmediate(t *testing.T) {
	repo := rateguard.NewInMemoryRepository()
	guard := newGuard(repo)
	ctx := context.Background()

	require.NoError(t, guard.CheckAndConsume(ctx, "k", time.Hour, 1))

	start := time.Now()
	err := guard.CheckAndConsume(ctx, "k", time.Hour, 1)
	elapsed := time.Since(start)

	require.True(t, errors.Is(err, rateguard.ErrRateLimited))
	assert.Less(t, elapsed, 100*time.Millisecond, "rejection must not wait for the window")
}
