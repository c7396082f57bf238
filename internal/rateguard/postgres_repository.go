package rateguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
//
// The check-and-increment runs inside one transaction with the counter row
// locked, so concurrent consumers of the same key serialize on the row.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL rateguard repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Consume performs the atomic check-and-increment for key.
func (r *PostgresRepository) Consume(ctx context.Context, key string, window time.Duration, max int) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin rate limit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()

	var count int
	var windowStart time.Time
	err = tx.QueryRow(ctx, `
		SELECT count, window_start
		FROM rate_limits
		WHERE key = $1
		FOR UPDATE
	`, key).Scan(&count, &windowStart)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
			INSERT INTO rate_limits (key, count, window_start, expires_at)
			VALUES ($1, 1, $2, $3)
		`, key, now, now.Add(2*window))
		if err != nil {
			return fmt.Errorf("insert rate limit record: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read rate limit record: %w", err)
	case now.Sub(windowStart) >= window:
		// Window elapsed: reset, count this call.
		_, err = tx.Exec(ctx, `
			UPDATE rate_limits
			SET count = 1, window_start = $2, expires_at = $3
			WHERE key = $1
		`, key, now, now.Add(2*window))
		if err != nil {
			return fmt.Errorf("reset rate limit record: %w", err)
		}
	case count >= max:
		// Commit so the row lock is released promptly; the record is
		// unchanged either way.
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit rate limit tx: %w", err)
		}
		return ErrRateLimited
	default:
		_, err = tx.Exec(ctx, `
			UPDATE rate_limits
			SET count = count + 1, expires_at = $2
			WHERE key = $1
		`, key, now.Add(2*window))
		if err != nil {
			return fmt.Errorf("increment rate limit record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rate limit tx: %w", err)
	}
	return nil
}

// PurgeExpired deletes counter rows past their expiry hint.
func (r *PostgresRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rate_limits WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge rate limit records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
