package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL notification history
// repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Recent returns up to limit template IDs sent to the user, most recent
// first.
func (r *PostgresRepository) Recent(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT template_id
		FROM notification_history
		WHERE user_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Record appends a history entry and trims the user's history to
// RecentTemplateLimit rows.
func (r *PostgresRepository) Record(ctx context.Context, userID, templateID string, sentAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO notification_history (user_id, template_id, sent_at)
		VALUES ($1, $2, $3)
	`, userID, templateID, sentAt); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM notification_history
		WHERE ctid IN (
			SELECT ctid FROM notification_history
			WHERE user_id = $1
			ORDER BY sent_at DESC
			OFFSET $2
		)
	`, userID, RecentTemplateLimit); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	return tx.Commit(ctx)
}

// DeleteByUser removes the user's history.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM notification_history WHERE user_id = $1`, userID)
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
