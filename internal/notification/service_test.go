package notification_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepquest/prepquest/internal/device"
	"github.com/prepquest/prepquest/internal/dispatch"
	"github.com/prepquest/prepquest/internal/notification"
	"github.com/prepquest/prepquest/internal/quest"
	"github.com/prepquest/prepquest/internal/rateguard"
	"github.com/prepquest/prepquest/internal/selection"
	"github.com/prepquest/prepquest/internal/user"
)

type testEnv struct {
	svc       *notification.Service
	users     *user.Service
	devices   *device.Registry
	gateway   *dispatch.Recorder
	history   *notification.InMemoryRepository
	rateStore *rateguard.InMemoryRepository
}

func notifTemplate(id, category string) selection.Template {
	return selection.Template{
		ID:       id,
		Domain:   selection.DomainNotification,
		Category: category,
		Reward:   10,
		Title:    "Hey {name}",
		Body:     "Time to study",
		Route:    "/home",
	}
}

func newTestEnv(t *testing.T, templates []selection.Template) *testEnv {
	t.Helper()

	users := user.NewService(user.NewInMemoryRepository(), zerolog.Nop())
	devices := device.NewRegistry(device.NewInMemoryRepository(), zerolog.Nop())
	rateStore := rateguard.NewInMemoryRepository()
	guard := rateguard.NewGuard(rateStore, zerolog.Nop())
	gateway := dispatch.NewRecorder()
	history := notification.NewInMemoryRepository()

	questEngine := selection.NewEngine(selection.Config{
		Domain: selection.DomainQuest,
		Logger: zerolog.Nop(),
	})
	quests := quest.NewService(quest.NewInMemoryRepository(), users, questEngine, zerolog.Nop())

	engine := selection.NewEngine(selection.Config{
		Domain:    selection.DomainNotification,
		Templates: templates,
		Logger:    zerolog.Nop(),
		Rand:      rand.New(rand.NewSource(7)),
	})

	svc := notification.NewService(history, users, devices, quests, guard, gateway, engine, zerolog.Nop())
	return &testEnv{
		svc:       svc,
		users:     users,
		devices:   devices,
		gateway:   gateway,
		history:   history,
		rateStore: rateStore,
	}
}

func (e *testEnv) seedUser(t *testing.T, id string, withDevice bool) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.users.Upsert(ctx, &user.User{
		ID:          id,
		DisplayName: "Deniz",
		ExamType:    user.ExamTYT,
	}))
	if withDevice {
		_, err := e.devices.Register(ctx, id, "token-"+id, device.PlatformAndroid, nil, "tr")
		require.NoError(t, err)
	}
}

// advanceRateClock moves the limiter's clock forward so the send-gap
// window expires between sends.
func (e *testEnv) advanceRateClock(d time.Duration) {
	base := time.Now().Add(d)
	e.rateStore.SetNowFunc(func() time.Time { return base })
}

func TestSendContextual(t *testing.T) {
	ctx := context.Background()

	t.Run("sends and records history", func(t *testing.T) {
		env := newTestEnv(t, []selection.Template{notifTemplate("n_comeback", "reengage")})
		env.seedUser(t, "usr_1", true)

		outcome, err := env.svc.SendContextual(ctx, "usr_1")
		require.NoError(t, err)
		assert.True(t, outcome.Sent)
		assert.Equal(t, "n_comeback", outcome.TemplateID)
		assert.Equal(t, 1, outcome.Delivered)

		sent := env.gateway.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, []string{"token-usr_1"}, sent[0].Tokens)
		assert.Equal(t, "ctx_reengage", sent[0].CollapseKey)
		assert.Equal(t, "Hey Deniz", sent[0].Title)

		recent, err := env.history.Recent(ctx, "usr_1", notification.RecentTemplateLimit)
		require.NoError(t, err)
		assert.Equal(t, []string{"n_comeback"}, recent)
	})

	t.Run("skips users without devices", func(t *testing.T) {
		env := newTestEnv(t, []selection.Template{notifTemplate("n_comeback", "reengage")})
		env.seedUser(t, "usr_1", false)

		outcome, err := env.svc.SendContextual(ctx, "usr_1")
		require.NoError(t, err)
		assert.False(t, outcome.Sent)
		assert.Equal(t, notification.SkipNoDevices, outcome.SkipReason)
		assert.Empty(t, env.gateway.Sent())
	})

	t.Run("skips when nothing is eligible without burning quota", func(t *testing.T) {
		tmpl := notifTemplate("n_gated", "reengage")
		tmpl.Trigger = map[string]interface{}{"min_streak": float64(100)}
		env := newTestEnv(t, []selection.Template{tmpl})
		env.seedUser(t, "usr_1", true)

		outcome, err := env.svc.SendContextual(ctx, "usr_1")
		require.NoError(t, err)
		assert.Equal(t, notification.SkipNoEligible, outcome.SkipReason)
		assert.Equal(t, 0, env.rateStore.Count("notif_gap_usr_1"))
	})

	t.Run("anti-repeat excludes recently sent templates", func(t *testing.T) {
		env := newTestEnv(t, []selection.Template{notifTemplate("n_only", "reengage")})
		env.seedUser(t, "usr_1", true)

		outcome, err := env.svc.SendContextual(ctx, "usr_1")
		require.NoError(t, err)
		require.True(t, outcome.Sent)

		env.advanceRateClock(7 * time.Hour)

		outcome, err = env.svc.SendContextual(ctx, "usr_1")
		require.NoError(t, err)
		assert.Equal(t, notification.SkipNoEligible, outcome.SkipReason)
	})

	t.Run("enforces the minimum send gap", func(t *testing.T) {
		env := newTestEnv(t, []selection.Template{
			notifTemplate("n_a", "reengage"),
			notifTemplate("n_b", "streak"),
		})
		env.seedUser(t, "usr_1", true)

		outcome, err := env.svc.SendContextual(ctx, "usr_1")
		require.NoError(t, err)
		require.True(t, outcome.Sent)

		outcome, err = env.svc.SendContextual(ctx, "usr_1")
		require.NoError(t, err)
		assert.Equal(t, notification.SkipRateLimit, outcome.SkipReason)
		assert.Len(t, env.gateway.Sent(), 1)
	})

	t.Run("enforces the daily cap", func(t *testing.T) {
		env := newTestEnv(t, []selection.Template{
			notifTemplate("n_a", "reengage"),
			notifTemplate("n_b", "streak"),
			notifTemplate("n_c", "exam"),
		})
		env.seedUser(t, "usr_1", true)

		outcome, err := env.svc.SendContextual(ctx, "usr_1")
		require.NoError(t, err)
		require.True(t, outcome.Sent)

		env.advanceRateClock(7 * time.Hour)
		outcome, err = env.svc.SendContextual(ctx, "usr_1")
		require.NoError(t, err)
		require.True(t, outcome.Sent)

		env.advanceRateClock(14 * time.Hour)
		outcome, err = env.svc.SendContextual(ctx, "usr_1")
		require.NoError(t, err)
		assert.Equal(t, notification.SkipRateLimit, outcome.SkipReason)
		assert.Len(t, env.gateway.Sent(), 2)
	})

	t.Run("gateway failure surfaces and leaves no history", func(t *testing.T) {
		env := newTestEnv(t, []selection.Template{notifTemplate("n_a", "reengage")})
		env.seedUser(t, "usr_1", true)
		env.gateway.Err = errors.New("provider down")

		_, err := env.svc.SendContextual(ctx, "usr_1")
		require.Error(t, err)

		recent, err := env.history.Recent(ctx, "usr_1", notification.RecentTemplateLimit)
		require.NoError(t, err)
		assert.Empty(t, recent)
	})

	t.Run("device without a profile fails", func(t *testing.T) {
		env := newTestEnv(t, []selection.Template{notifTemplate("n_a", "reengage")})
		_, err := env.devices.Register(ctx, "usr_ghost", "token-ghost", device.PlatformAndroid, nil, "tr")
		require.NoError(t, err)

		_, err = env.svc.SendContextual(ctx, "usr_ghost")
		require.Error(t, err)
		assert.ErrorIs(t, err, user.ErrUserNotFound)
	})
}
