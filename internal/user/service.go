package user

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/prepquest/prepquest/internal/selection"
)

// statsCacheSize bounds the advisory in-process stats cache. The cache is
// an optimization for sweep workloads that read thousands of stats rows;
// it is never the system of record and entries expire quickly.
const statsCacheSize = 4096

// statsCacheTTL is how long a cached stats row stays fresh.
const statsCacheTTL = 5 * time.Minute

type cachedStats struct {
	stats    *Stats
	cachedAt time.Time
}

// Service provides user profile and stats operations.
type Service struct {
	repo   Repository
	logger zerolog.Logger

	statsCache *lru.Cache[string, cachedStats]
}

// NewService creates a new user service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	cache, _ := lru.New[string, cachedStats](statsCacheSize)
	return &Service{repo: repo, logger: logger, statsCache: cache}
}

// Get retrieves a user by ID.
func (s *Service) Get(ctx context.Context, userID string) (*User, error) {
	return s.repo.Get(ctx, userID)
}

// GetMany retrieves users by ID, skipping unknown IDs.
func (s *Service) GetMany(ctx context.Context, ids []string) ([]*User, error) {
	return s.repo.GetMany(ctx, ids)
}

// Upsert creates or replaces a user profile.
func (s *Service) Upsert(ctx context.Context, u *User) error {
	return s.repo.Upsert(ctx, u)
}

// TouchLastActive records activity for a user. Failures are logged and
// swallowed: activity tracking must never block the primary operation.
func (s *Service) TouchLastActive(ctx context.Context, userID string) {
	if err := s.repo.TouchLastActive(ctx, userID, time.Now()); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to touch last active")
	}
}

// GetStats retrieves study stats for a user, serving recent reads from the
// advisory cache.
func (s *Service) GetStats(ctx context.Context, userID string) (*Stats, error) {
	if entry, ok := s.statsCache.Get(userID); ok {
		if time.Since(entry.cachedAt) < statsCacheTTL {
			copied := *entry.stats
			return &copied, nil
		}
		s.statsCache.Remove(userID)
	}

	stats, err := s.repo.GetStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.statsCache.Add(userID, cachedStats{stats: stats, cachedAt: time.Now()})
	copied := *stats
	return &copied, nil
}

// UpsertStats replaces a user's stats and invalidates the cache entry.
func (s *Service) UpsertStats(ctx context.Context, stats *Stats) error {
	if err := s.repo.UpsertStats(ctx, stats); err != nil {
		return err
	}
	s.statsCache.Remove(stats.UserID)
	return nil
}

// ListIDs returns one page of user IDs matching the filter.
func (s *Service) ListIDs(ctx context.Context, filter ListFilter, cursor string, limit int) (*Page, error) {
	return s.repo.ListIDs(ctx, filter, cursor, limit)
}

// CountIDs returns the number of users matching the filter.
func (s *Service) CountIDs(ctx context.Context, filter ListFilter) (int, error) {
	return s.repo.CountIDs(ctx, filter)
}

// SelectionContext assembles the per-user snapshot the selection engine
// evaluates against. A missing stats row degrades to zero values rather
// than failing the evaluation.
func (s *Service) SelectionContext(ctx context.Context, userID string, now time.Time) (*selection.Context, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats, err := s.GetStats(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		stats = &Stats{UserID: userID}
	}

	c := &selection.Context{
		UserID:              userID,
		Now:                 now,
		DisplayName:         u.DisplayName,
		ExamType:            u.ExamType,
		StreakDays:          stats.StreakDays,
		QuestionsSolved:     stats.QuestionsSolved,
		PlanProgress:        stats.PlanProgress,
		FeaturesUsed:        stats.FeaturesUsed,
		PracticedCategories: stats.PracticedCategories,
	}
	if stats.WeakSubject != nil {
		c.WeakSubject = *stats.WeakSubject
	}
	if stats.StrongSubject != nil {
		c.StrongSubject = *stats.StrongSubject
	}
	if u.ExamDate != nil {
		days := int(u.ExamDate.Sub(now).Hours() / 24)
		if days >= 0 {
			c.DaysUntilExam = &days
		}
	}
	if !u.LastActiveAt.IsZero() {
		c.InactiveHours = now.Sub(u.LastActiveAt).Hours()
	}
	return c, nil
}

// Delete removes the user and owned rows.
func (s *Service) Delete(ctx context.Context, userID string) error {
	s.statsCache.Remove(userID)
	return s.repo.Delete(ctx, userID)
}
