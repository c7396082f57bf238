package device

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Registry errors (service level).
var (
	ErrInvalidToken = errors.New("token must contain alphanumeric characters")
)

// Registry provides device registration and active-token lookup.
type Registry struct {
	repo   Repository
	logger zerolog.Logger
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository, logger zerolog.Logger) *Registry {
	return &Registry{repo: repo, logger: logger}
}

// Register performs an idempotent upsert of a push token. Registering a
// token the user already holds updates the row in place; registering a new
// token beyond the active-device cap fails with ErrDeviceLimitReached.
func (r *Registry) Register(ctx context.Context, userID, token string, platform Platform, appBuild *int, language string) (*Device, error) {
	id := DeriveID(token)
	if id == "" {
		return nil, ErrInvalidToken
	}

	// The cap only blocks genuinely new registrations; a re-register of
	// an existing row must stay idempotent even at the cap.
	existing, err := r.repo.Get(ctx, userID, id)
	if err != nil && !errors.Is(err, ErrDeviceNotFound) {
		return nil, err
	}
	if existing == nil || existing.Disabled {
		count, err := r.repo.CountActive(ctx, userID)
		if err != nil {
			return nil, err
		}
		if count >= MaxActiveDevices {
			return nil, ErrDeviceLimitReached
		}
	}

	now := time.Now()
	d := &Device{
		ID:        id,
		UserID:    userID,
		Platform:  platform,
		Token:     token,
		AppBuild:  appBuild,
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		d.CreatedAt = existing.CreatedAt
	}

	if err := r.repo.Upsert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Unregister disables every device row carrying token. Matching on the
// token string rather than the derived ID guarantees duplicates produced by
// ID-derivation collisions are all disabled.
func (r *Registry) Unregister(ctx context.Context, userID, token string) error {
	disabled, err := r.repo.DisableByToken(ctx, userID, token)
	if err != nil {
		return err
	}
	if disabled == 0 {
		return ErrDeviceNotFound
	}
	if disabled > 1 {
		r.logger.Info().
			Str("user_id", userID).
			Int64("rows", disabled).
			Msg("unregister disabled duplicate device rows")
	}
	return nil
}

// ActiveTokens returns deduplicated non-disabled tokens for a user.
func (r *Registry) ActiveTokens(ctx context.Context, userID string) ([]string, error) {
	devices, err := r.repo.ListActive(ctx, userID, ActiveTokensPageSize)
	if err != nil {
		return nil, err
	}
	return dedupeTokens(devices), nil
}

// ActiveTokensFiltered returns non-disabled tokens matching the filter.
// The platform allow-list is pushed to the store when small enough; build
// bounds are always evaluated in memory. If the filtered query fails, the
// lookup falls back to the unfiltered query plus full in-memory filtering,
// trading read cost for resilience.
func (r *Registry) ActiveTokensFiltered(ctx context.Context, userID string, filter TokenFilter) ([]string, error) {
	var devices []*Device
	var err error

	if len(filter.Platforms) > 0 && len(filter.Platforms) <= maxPlatformFilters {
		devices, err = r.repo.ListActiveFiltered(ctx, userID, filter.Platforms, ActiveTokensPageSize)
		if err != nil {
			r.logger.Warn().Err(err).
				Str("user_id", userID).
				Msg("filtered token query failed, falling back to unfiltered")
			devices = nil
		}
	}

	if devices == nil {
		devices, err = r.repo.ListActive(ctx, userID, ActiveTokensPageSize)
		if err != nil {
			return nil, err
		}
		filtered := devices[:0]
		for _, d := range devices {
			if filter.matchesPlatform(d) {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	matched := devices[:0]
	for _, d := range devices {
		if filter.matchesBuild(d) {
			matched = append(matched, d)
		}
	}
	return dedupeTokens(matched), nil
}

// DeleteByUser hard-deletes all device rows when the owning user is
// deleted.
func (r *Registry) DeleteByUser(ctx context.Context, userID string) error {
	return r.repo.DeleteByUser(ctx, userID)
}

// dedupeTokens extracts token strings preserving order, dropping repeats.
func dedupeTokens(devices []*Device) []string {
	seen := make(map[string]struct{}, len(devices))
	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		if _, ok := seen[d.Token]; ok {
			continue
		}
		seen[d.Token] = struct{}{}
		tokens = append(tokens, d.Token)
	}
	return tokens
}
