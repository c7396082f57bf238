package quest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL quest repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const instanceColumns = `id, user_id, template_id, category, title, body, route,
	progress, goal, reward, completed, reward_claimed, assigned_day, created_at, updated_at`

func scanInstance(row pgx.Row) (*Instance, error) {
	var i Instance
	err := row.Scan(
		&i.ID, &i.UserID, &i.TemplateID, &i.Category, &i.Title, &i.Body, &i.Route,
		&i.Progress, &i.Goal, &i.Reward, &i.Completed, &i.RewardClaimed,
		&i.AssignedDay, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestNotFound
		}
		return nil, err
	}
	return &i, nil
}

// Get retrieves one instance by user and instance ID.
func (r *PostgresRepository) Get(ctx context.Context, userID, questID string) (*Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM quest_instances WHERE id = $1 AND user_id = $2`
	return scanInstance(r.pool.QueryRow(ctx, query, questID, userID))
}

// ListForDay retrieves the user's instances assigned to day.
func (r *PostgresRepository) ListForDay(ctx context.Context, userID string, day time.Time) ([]*Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM quest_instances
		WHERE user_id = $1 AND assigned_day = $2
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, userID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*Instance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, i)
	}
	return instances, rows.Err()
}

// ReplaceForDay deletes and re-creates the user's instances for day in one
// transaction.
func (r *PostgresRepository) ReplaceForDay(ctx context.Context, userID string, day time.Time, instances []*Instance) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin quest refresh tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM quest_instances WHERE user_id = $1 AND assigned_day = $2`,
		userID, day,
	); err != nil {
		return fmt.Errorf("delete day instances: %w", err)
	}

	for _, i := range instances {
		_, err := tx.Exec(ctx, `
			INSERT INTO quest_instances (id, user_id, template_id, category, title, body, route,
				progress, goal, reward, completed, reward_claimed, assigned_day, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`,
			i.ID, i.UserID, i.TemplateID, i.Category, i.Title, i.Body, i.Route,
			i.Progress, i.Goal, i.Reward, i.Completed, i.RewardClaimed,
			i.AssignedDay, i.CreatedAt, i.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert instance %s: %w", i.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// ApplyProgress adds amount to matching instances inside one transaction.
func (r *PostgresRepository) ApplyProgress(ctx context.Context, userID string, day time.Time, category string, amount int) ([]*Instance, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin progress tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the candidate rows so concurrent reports serialize.
	rows, err := tx.Query(ctx, `
		SELECT `+instanceColumns+`
		FROM quest_instances
		WHERE user_id = $1 AND assigned_day = $2 AND category = $3
		  AND reward_claimed = FALSE AND completed = FALSE
		FOR UPDATE
	`, userID, day, category)
	if err != nil {
		return nil, fmt.Errorf("lock instances: %w", err)
	}

	var instances []*Instance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		instances = append(instances, i)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	for _, i := range instances {
		i.Progress += amount
		if i.Progress >= i.Goal {
			i.Progress = i.Goal
			i.Completed = true
		}
		i.UpdatedAt = now

		if _, err := tx.Exec(ctx, `
			UPDATE quest_instances
			SET progress = $2, completed = $3, updated_at = $4
			WHERE id = $1
		`, i.ID, i.Progress, i.Completed, i.UpdatedAt); err != nil {
			return nil, fmt.Errorf("update instance %s: %w", i.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit progress tx: %w", err)
	}
	return instances, nil
}

// Complete marks an instance completed if its progress reached the goal.
func (r *PostgresRepository) Complete(ctx context.Context, userID, questID string) (*Instance, error) {
	return r.transition(ctx, userID, questID, func(i *Instance) error {
		if i.Progress < i.Goal {
			return ErrNotCompleted
		}
		i.Completed = true
		return nil
	})
}

// Claim marks the reward claimed, the terminal transition.
func (r *PostgresRepository) Claim(ctx context.Context, userID, questID string) (*Instance, error) {
	return r.transition(ctx, userID, questID, func(i *Instance) error {
		if i.RewardClaimed {
			return ErrAlreadyClaimed
		}
		if !i.Completed && i.Progress < i.Goal {
			return ErrNotCompleted
		}
		i.Completed = true
		i.RewardClaimed = true
		return nil
	})
}

// transition applies a state change to one locked instance row.
func (r *PostgresRepository) transition(ctx context.Context, userID, questID string, apply func(*Instance) error) (*Instance, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin quest tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + instanceColumns + ` FROM quest_instances WHERE id = $1 AND user_id = $2 FOR UPDATE`
	i, err := scanInstance(tx.QueryRow(ctx, query, questID, userID))
	if err != nil {
		return nil, err
	}

	if err := apply(i); err != nil {
		return nil, err
	}
	i.UpdatedAt = time.Now()

	if _, err := tx.Exec(ctx, `
		UPDATE quest_instances
		SET progress = $2, completed = $3, reward_claimed = $4, updated_at = $5
		WHERE id = $1
	`, i.ID, i.Progress, i.Completed, i.RewardClaimed, i.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update instance %s: %w", i.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit quest tx: %w", err)
	}
	return i, nil
}

// DeleteByUser removes all instances for a user.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM quest_instances WHERE user_id = $1`, userID)
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
