package audience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/prepquest/prepquest/internal/user"
)

const (
	// pageSize is how many user IDs a resolved page carries.
	pageSize = 500

	// uidChunkSize bounds explicit-list pages so downstream token lookups
	// stay small.
	uidChunkSize = 100

	// inactiveScanCap bounds the per-user scan behind TypeInactive.
	// Candidates past the cap are silently skipped.
	inactiveScanCap = 20000

	// defaultPagesPerSecond paces store reads during resolution.
	defaultPagesPerSecond = 10
)

// PageFunc receives one page of resolved user IDs. Returning an error
// aborts the resolution.
type PageFunc func(ctx context.Context, userIDs []string) error

// ResolverConfig holds tuning knobs for a Resolver.
type ResolverConfig struct {
	// PagesPerSecond overrides the page pacing. Zero keeps the default.
	PagesPerSecond float64

	// ScanCap overrides the inactive-scan bound. Zero keeps the default.
	ScanCap int
}

// Resolver streams user ID pages for a targeting spec. Page content is a
// pure function of the spec and the store state, so an aborted resolution
// can be retried from the top.
type Resolver struct {
	users   *user.Service
	limiter *rate.Limiter
	scanCap int
	logger  zerolog.Logger
}

// NewResolver creates an audience resolver with default pacing.
func NewResolver(users *user.Service, logger zerolog.Logger) *Resolver {
	return NewResolverWithConfig(users, ResolverConfig{}, logger)
}

// NewResolverWithConfig creates an audience resolver with explicit tuning.
func NewResolverWithConfig(users *user.Service, cfg ResolverConfig, logger zerolog.Logger) *Resolver {
	pps := cfg.PagesPerSecond
	if pps <= 0 {
		pps = defaultPagesPerSecond
	}
	scanCap := cfg.ScanCap
	if scanCap <= 0 {
		scanCap = inactiveScanCap
	}
	return &Resolver{
		users:   users,
		limiter: rate.NewLimiter(rate.Limit(pps), 1),
		scanCap: scanCap,
		logger:  logger,
	}
}

// Resolve validates the spec and invokes fn for each page of matching
// user IDs until the audience is exhausted or fn returns an error.
func (r *Resolver) Resolve(ctx context.Context, spec *Spec, fn PageFunc) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	switch spec.Type {
	case TypeAll, TypeExams:
		return r.resolveFiltered(ctx, spec, fn)
	case TypeUIDs:
		return r.resolveUIDs(ctx, spec, fn)
	case TypeInactive:
		return r.resolveInactive(ctx, spec, fn)
	}
	return fmt.Errorf("%w: unknown type %q", ErrInvalidSpec, spec.Type)
}

// Estimate returns the approximate audience size without streaming it.
// For TypeInactive the estimate runs the same capped scan as Resolve.
func (r *Resolver) Estimate(ctx context.Context, spec *Spec) (int, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}

	switch spec.Type {
	case TypeAll, TypeExams:
		return r.users.CountIDs(ctx, spec.listFilter())
	case TypeUIDs:
		count := 0
		err := r.resolveUIDs(ctx, spec, func(_ context.Context, ids []string) error {
			count += len(ids)
			return nil
		})
		return count, err
	case TypeInactive:
		count := 0
		err := r.resolveInactive(ctx, spec, func(_ context.Context, ids []string) error {
			count += len(ids)
			return nil
		})
		return count, err
	}
	return 0, fmt.Errorf("%w: unknown type %q", ErrInvalidSpec, spec.Type)
}

func (s *Spec) listFilter() user.ListFilter {
	filter := user.ListFilter{OnlyNonPremium: s.OnlyNonPremium}
	if s.Type == TypeExams {
		filter.ExamTypes = s.Exams
	}
	return filter
}

func (r *Resolver) resolveFiltered(ctx context.Context, spec *Spec, fn PageFunc) error {
	filter := spec.listFilter()
	cursor := ""
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}

		page, err := r.users.ListIDs(ctx, filter, cursor, pageSize)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		if len(page.IDs) > 0 {
			if err := fn(ctx, page.IDs); err != nil {
				return err
			}
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

// resolveUIDs emits the explicit list in chunks, dropping IDs with no
// profile and, when requested, premium users.
func (r *Resolver) resolveUIDs(ctx context.Context, spec *Spec, fn PageFunc) error {
	for start := 0; start < len(spec.UIDs); start += uidChunkSize {
		end := start + uidChunkSize
		if end > len(spec.UIDs) {
			end = len(spec.UIDs)
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}

		users, err := r.users.GetMany(ctx, spec.UIDs[start:end])
		if err != nil {
			return fmt.Errorf("load users: %w", err)
		}

		var ids []string
		for _, u := range users {
			if spec.OnlyNonPremium && u.Premium {
				continue
			}
			ids = append(ids, u.ID)
		}
		if len(ids) > 0 {
			if err := fn(ctx, ids); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveInactive scans candidates page by page and keeps those whose last
// activity predates the threshold. The scan stops at the cap regardless of
// how many matched.
func (r *Resolver) resolveInactive(ctx context.Context, spec *Spec, fn PageFunc) error {
	threshold := time.Now().Add(-time.Duration(spec.Hours) * time.Hour)
	filter := spec.listFilter()

	scanned := 0
	cursor := ""
	var pending []string

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		ids := pending
		pending = nil
		return fn(ctx, ids)
	}

	for scanned < r.scanCap {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}

		page, err := r.users.ListIDs(ctx, filter, cursor, pageSize)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		candidates := page.IDs
		if remaining := r.scanCap - scanned; len(candidates) > remaining {
			candidates = candidates[:remaining]
		}
		scanned += len(candidates)

		matched, err := r.users.GetMany(ctx, candidates)
		if err != nil {
			return fmt.Errorf("load users: %w", err)
		}
		for _, u := range matched {
			if u.LastActiveAt.IsZero() || u.LastActiveAt.After(threshold) {
				continue
			}
			pending = append(pending, u.ID)
			if len(pending) >= pageSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if scanned >= r.scanCap {
		r.logger.Warn().
			Int("scanned", scanned).
			Int("cap", r.scanCap).
			Msg("inactive audience scan hit the candidate cap")
	}

	return flush()
}
