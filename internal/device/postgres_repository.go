package device

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL device repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const deviceColumns = `id, user_id, platform, token, app_build, language, disabled, created_at, updated_at`

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Platform,
		&d.Token,
		&d.AppBuild,
		&d.Language,
		&d.Disabled,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return &d, nil
}

// Get retrieves a device by user ID and device ID.
func (r *PostgresRepository) Get(ctx context.Context, userID, deviceID string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1 AND user_id = $2`
	return scanDevice(r.pool.QueryRow(ctx, query, deviceID, userID))
}

func (r *PostgresRepository) queryDevices(ctx context.Context, query string, args ...interface{}) ([]*Device, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// ListActive retrieves non-disabled devices for a user.
func (r *PostgresRepository) ListActive(ctx context.Context, userID string, limit int) ([]*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE user_id = $1 AND disabled = FALSE
		ORDER BY updated_at DESC
		LIMIT $2
	`
	return r.queryDevices(ctx, query, userID, limit)
}

// ListActiveFiltered retrieves non-disabled devices with a platform
// allow-list applied store-side.
func (r *PostgresRepository) ListActiveFiltered(ctx context.Context, userID string, platforms []Platform, limit int) ([]*Device, error) {
	values := make([]string, len(platforms))
	for i, p := range platforms {
		values[i] = string(p)
	}

	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE user_id = $1 AND disabled = FALSE AND platform = ANY($2)
		ORDER BY updated_at DESC
		LIMIT $3
	`
	return r.queryDevices(ctx, query, userID, values, limit)
}

// CountActive returns the number of non-disabled devices for a user.
func (r *PostgresRepository) CountActive(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM devices WHERE user_id = $1 AND disabled = FALSE`,
		userID,
	).Scan(&count)
	return count, err
}

// Upsert creates or replaces a device row keyed by its derived ID.
// Re-registering a previously disabled token reactivates it.
func (r *PostgresRepository) Upsert(ctx context.Context, device *Device) error {
	query := `
		INSERT INTO devices (id, user_id, platform, token, app_build, language, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)
		ON CONFLICT (id, user_id) DO UPDATE SET
			platform = EXCLUDED.platform,
			token = EXCLUDED.token,
			app_build = EXCLUDED.app_build,
			language = EXCLUDED.language,
			disabled = FALSE,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		device.ID, device.UserID, device.Platform, device.Token,
		device.AppBuild, device.Language, device.CreatedAt, device.UpdatedAt,
	)
	return err
}

// DisableByToken sets disabled on every row carrying token.
func (r *PostgresRepository) DisableByToken(ctx context.Context, userID, token string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE devices SET disabled = TRUE, updated_at = NOW() WHERE user_id = $1 AND token = $2`,
		userID, token,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteByUser hard-deletes all devices for a user.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE user_id = $1`, userID)
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
