package quest_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepquest/prepquest/internal/quest"
	"github.com/prepquest/prepquest/internal/selection"
	"github.com/prepquest/prepquest/internal/user"
)

func questTemplate(id, category string, reward, goal int) selection.Template {
	return selection.Template{
		ID:       id,
		Domain:   selection.DomainQuest,
		Category: category,
		Reward:   reward,
		Goal:     goal,
		Title:    "Quest " + id,
		Body:     "Do the thing",
		Route:    "/practice",
	}
}

func newTestService(t *testing.T, templates []selection.Template) (*quest.Service, *user.Service) {
	t.Helper()

	users := user.NewService(user.NewInMemoryRepository(), zerolog.Nop())
	engine := selection.NewEngine(selection.Config{
		Domain:    selection.DomainQuest,
		Templates: templates,
		Logger:    zerolog.Nop(),
		Rand:      rand.New(rand.NewSource(1)),
	})
	svc := quest.NewService(quest.NewInMemoryRepository(), users, engine, zerolog.Nop())
	return svc, users
}

func seedUser(t *testing.T, users *user.Service, id string) {
	t.Helper()
	require.NoError(t, users.Upsert(context.Background(), &user.User{
		ID:          id,
		DisplayName: "Elif",
		ExamType:    user.ExamTYT,
	}))
}

func defaultTemplates() []selection.Template {
	return []selection.Template{
		questTemplate("q_solve", "practice", 50, 20),
		questTemplate("q_review", "review", 40, 5),
		questTemplate("q_flashcards", "flashcards", 30, 15),
		questTemplate("q_mock", "mock_exam", 80, 1),
		questTemplate("q_notes", "notes", 20, 3),
		questTemplate("q_video", "video", 25, 2),
	}
}

func TestCheckAndRefreshDaily(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns a fresh set on first read", func(t *testing.T) {
		svc, users := newTestService(t, defaultTemplates())
		seedUser(t, users, "usr_1")

		instances, err := svc.CheckAndRefreshDaily(ctx, "usr_1")
		require.NoError(t, err)
		require.Len(t, instances, quest.DailyQuestCount)

		for _, i := range instances {
			assert.Equal(t, "usr_1", i.UserID)
			assert.Equal(t, 0, i.Progress)
			assert.False(t, i.Completed)
			assert.False(t, i.RewardClaimed)
			assert.NotEmpty(t, i.Title)
			assert.Greater(t, i.Goal, 0)
		}
	})

	t.Run("second read same day returns the same set", func(t *testing.T) {
		svc, users := newTestService(t, defaultTemplates())
		seedUser(t, users, "usr_1")

		first, err := svc.CheckAndRefreshDaily(ctx, "usr_1")
		require.NoError(t, err)
		second, err := svc.CheckAndRefreshDaily(ctx, "usr_1")
		require.NoError(t, err)

		require.Len(t, second, len(first))
		firstIDs := make(map[string]bool)
		for _, i := range first {
			firstIDs[i.ID] = true
		}
		for _, i := range second {
			assert.True(t, firstIDs[i.ID], "instance %s not in first set", i.ID)
		}
	})

	t.Run("new day replaces the set", func(t *testing.T) {
		svc, users := newTestService(t, defaultTemplates())
		seedUser(t, users, "usr_1")

		now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
		svc.SetNowFunc(func() time.Time { return now })

		first, err := svc.CheckAndRefreshDaily(ctx, "usr_1")
		require.NoError(t, err)
		require.NotEmpty(t, first)

		now = now.Add(24 * time.Hour)
		second, err := svc.CheckAndRefreshDaily(ctx, "usr_1")
		require.NoError(t, err)
		require.NotEmpty(t, second)

		firstIDs := make(map[string]bool)
		for _, i := range first {
			firstIDs[i.ID] = true
		}
		for _, i := range second {
			assert.False(t, firstIDs[i.ID], "instance %s carried over from previous day", i.ID)
		}
	})

	t.Run("no eligible templates yields empty set", func(t *testing.T) {
		tmpl := questTemplate("q_gated", "practice", 50, 10)
		tmpl.Trigger = map[string]interface{}{"min_streak": float64(100)}
		svc, users := newTestService(t, []selection.Template{tmpl})
		seedUser(t, users, "usr_1")

		instances, err := svc.CheckAndRefreshDaily(ctx, "usr_1")
		require.NoError(t, err)
		assert.Empty(t, instances)
	})

	t.Run("unknown user fails", func(t *testing.T) {
		svc, _ := newTestService(t, defaultTemplates())

		_, err := svc.CheckAndRefreshDaily(ctx, "usr_ghost")
		assert.ErrorIs(t, err, user.ErrUserNotFound)
	})

	t.Run("freezes personalized text at assignment", func(t *testing.T) {
		tmpl := questTemplate("q_weak", "practice", 50, 10)
		tmpl.Title = "Strengthen {weak_subject}"
		svc, users := newTestService(t, []selection.Template{tmpl})
		seedUser(t, users, "usr_1")

		weak := "geometry"
		require.NoError(t, users.UpsertStats(ctx, &user.Stats{UserID: "usr_1", WeakSubject: &weak}))

		instances, err := svc.CheckAndRefreshDaily(ctx, "usr_1")
		require.NoError(t, err)
		require.Len(t, instances, 1)
		assert.Equal(t, "Strengthen geometry", instances[0].Title)
	})
}

func TestReportProgress(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*quest.Service, *quest.Instance) {
		svc, users := newTestService(t, []selection.Template{
			questTemplate("q_solve", "practice", 50, 10),
		})
		seedUser(t, users, "usr_1")
		instances, err := svc.CheckAndRefreshDaily(ctx, "usr_1")
		require.NoError(t, err)
		require.Len(t, instances, 1)
		return svc, instances[0]
	}

	t.Run("accumulates toward the goal", func(t *testing.T) {
		svc, _ := setup(t)

		updated, err := svc.ReportProgress(ctx, "usr_1", "practice", 4)
		require.NoError(t, err)
		require.Len(t, updated, 1)
		assert.Equal(t, 4, updated[0].Progress)
		assert.False(t, updated[0].Completed)
	})

	t.Run("clamps at the goal and completes", func(t *testing.T) {
		svc, _ := setup(t)

		updated, err := svc.ReportProgress(ctx, "usr_1", "practice", 25)
		require.NoError(t, err)
		require.Len(t, updated, 1)
		assert.Equal(t, 10, updated[0].Progress)
		assert.True(t, updated[0].Completed)
	})

	t.Run("ignores other categories", func(t *testing.T) {
		svc, _ := setup(t)

		updated, err := svc.ReportProgress(ctx, "usr_1", "review", 5)
		require.NoError(t, err)
		assert.Empty(t, updated)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		svc, _ := setup(t)

		_, err := svc.ReportProgress(ctx, "usr_1", "practice", 0)
		assert.ErrorIs(t, err, quest.ErrInvalidAmount)
		_, err = svc.ReportProgress(ctx, "usr_1", "practice", -3)
		assert.ErrorIs(t, err, quest.ErrInvalidAmount)
	})

	t.Run("skips completed quests", func(t *testing.T) {
		svc, inst := setup(t)

		_, err := svc.ReportProgress(ctx, "usr_1", "practice", 10)
		require.NoError(t, err)

		updated, err := svc.ReportProgress(ctx, "usr_1", "practice", 5)
		require.NoError(t, err)
		assert.Empty(t, updated)

		got, err := svc.Get(ctx, "usr_1", inst.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, got.Progress)
	})
}

func TestClaimReward(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*quest.Service, *quest.Instance) {
		svc, users := newTestService(t, []selection.Template{
			questTemplate("q_solve", "practice", 50, 10),
		})
		seedUser(t, users, "usr_1")
		instances, err := svc.CheckAndRefreshDaily(ctx, "usr_1")
		require.NoError(t, err)
		require.Len(t, instances, 1)
		return svc, instances[0]
	}

	t.Run("rejects claim before completion", func(t *testing.T) {
		svc, inst := setup(t)

		_, err := svc.ClaimReward(ctx, "usr_1", inst.ID)
		assert.ErrorIs(t, err, quest.ErrNotCompleted)
	})

	t.Run("claims a completed quest once", func(t *testing.T) {
		svc, inst := setup(t)

		_, err := svc.ReportProgress(ctx, "usr_1", "practice", 10)
		require.NoError(t, err)

		claimed, err := svc.ClaimReward(ctx, "usr_1", inst.ID)
		require.NoError(t, err)
		assert.True(t, claimed.RewardClaimed)
		assert.Equal(t, 50, claimed.Reward)

		_, err = svc.ClaimReward(ctx, "usr_1", inst.ID)
		assert.ErrorIs(t, err, quest.ErrAlreadyClaimed)
	})

	t.Run("unknown quest", func(t *testing.T) {
		svc, _ := setup(t)

		_, err := svc.ClaimReward(ctx, "usr_1", "qst_missing")
		assert.ErrorIs(t, err, quest.ErrQuestNotFound)
	})

	t.Run("other user's quest is not visible", func(t *testing.T) {
		svc, inst := setup(t)

		_, err := svc.ClaimReward(ctx, "usr_2", inst.ID)
		assert.ErrorIs(t, err, quest.ErrQuestNotFound)
	})
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService(t, []selection.Template{
		questTemplate("q_solve", "practice", 50, 10),
	})
	seedUser(t, users, "usr_1")

	instances, err := svc.CheckAndRefreshDaily(ctx, "usr_1")
	require.NoError(t, err)
	inst := instances[0]

	_, err = svc.Complete(ctx, "usr_1", inst.ID)
	assert.ErrorIs(t, err, quest.ErrNotCompleted)

	_, err = svc.ReportProgress(ctx, "usr_1", "practice", 10)
	require.NoError(t, err)

	completed, err := svc.Complete(ctx, "usr_1", inst.ID)
	require.NoError(t, err)
	assert.True(t, completed.Completed)
}

func TestDeleteByUser(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService(t, defaultTemplates())
	seedUser(t, users, "usr_1")

	instances, err := svc.CheckAndRefreshDaily(ctx, "usr_1")
	require.NoError(t, err)
	require.NotEmpty(t, instances)

	require.NoError(t, svc.DeleteByUser(ctx, "usr_1"))

	_, err = svc.Get(ctx, "usr_1", instances[0].ID)
	assert.ErrorIs(t, err, quest.ErrQuestNotFound)
}
