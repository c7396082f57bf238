package user

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

// NewPostgresRepository creates a new PostgreSQL user repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const userColumns = `id, display_name, exam_type, exam_date, premium, locale, last_active_at, created_at, updated_at`

// Get retrieves a user by ID.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var u User
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&u.ID,
		&u.DisplayName,
		&u.ExamType,
		&u.ExamDate,
		&u.Premium,
		&u.Locale,
		&u.LastActiveAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetMany retrieves users by ID, skipping unknown IDs.
func (r *PostgresRepository) GetMany(ctx context.Context, ids []string) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		err := rows.Scan(
			&u.ID,
			&u.DisplayName,
			&u.ExamType,
			&u.ExamDate,
			&u.Premium,
			&u.Locale,
			&u.LastActiveAt,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// Upsert creates or replaces a user profile.
func (r *PostgresRepository) Upsert(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, display_name, exam_type, exam_date, premium, locale, last_active_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			exam_type = EXCLUDED.exam_type,
			exam_date = EXCLUDED.exam_date,
			premium = EXCLUDED.premium,
			locale = EXCLUDED.locale,
			last_active_at = EXCLUDED.last_active_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		u.ID, u.DisplayName, u.ExamType, u.ExamDate, u.Premium, u.Locale,
		u.LastActiveAt, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

// TouchLastActive advances LastActiveAt for a user.
func (r *PostgresRepository) TouchLastActive(ctx context.Context, userID string, now time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET last_active_at = $2, updated_at = $2 WHERE id = $1`,
		userID, now,
	)
	return err
}

// ListIDs returns one page of user IDs matching the filter.
func (r *PostgresRepository) ListIDs(ctx context.Context, filter ListFilter, cursor string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 500
	}
	fetchLimit := limit + 1

	query := `SELECT id FROM users WHERE id > $1`
	args := []interface{}{cursor}

	if len(filter.ExamTypes) > 0 {
		args = append(args, filter.ExamTypes)
		query += fmt.Sprintf(" AND exam_type = ANY($%d)", len(args))
	}
	if filter.OnlyNonPremium {
		query += " AND premium = FALSE"
	}

	args = append(args, fetchLimit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &Page{IDs: ids}
	if len(ids) > limit {
		page.IDs = ids[:limit]
		page.NextCursor = ids[limit-1]
	}
	return page, nil
}

// CountIDs returns the number of users matching the filter.
func (r *PostgresRepository) CountIDs(ctx context.Context, filter ListFilter) (int, error) {
	query := `SELECT COUNT(*) FROM users WHERE TRUE`
	var args []interface{}

	if len(filter.ExamTypes) > 0 {
		args = append(args, filter.ExamTypes)
		query += fmt.Sprintf(" AND exam_type = ANY($%d)", len(args))
	}
	if filter.OnlyNonPremium {
		query += " AND premium = FALSE"
	}

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetStats retrieves study stats for a user.
func (r *PostgresRepository) GetStats(ctx context.Context, userID string) (*Stats, error) {
	query := `
		SELECT user_id, streak_days, questions_solved, weak_subject, strong_subject,
		       practiced_categories, plan_progress, features_used, updated_at
		FROM user_stats
		WHERE user_id = $1
	`

	var s Stats
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID,
		&s.StreakDays,
		&s.QuestionsSolved,
		&s.WeakSubject,
		&s.StrongSubject,
		&s.PracticedCategories,
		&s.PlanProgress,
		&s.FeaturesUsed,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &s, nil
}

// UpsertStats creates or replaces a user's stats.
func (r *PostgresRepository) UpsertStats(ctx context.Context, s *Stats) error {
	query := `
		INSERT INTO user_stats (user_id, streak_days, questions_solved, weak_subject, strong_subject,
		                        practiced_categories, plan_progress, features_used, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			streak_days = EXCLUDED.streak_days,
			questions_solved = EXCLUDED.questions_solved,
			weak_subject = EXCLUDED.weak_subject,
			strong_subject = EXCLUDED.strong_subject,
			practiced_categories = EXCLUDED.practiced_categories,
			plan_progress = EXCLUDED.plan_progress,
			features_used = EXCLUDED.features_used,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		s.UserID, s.StreakDays, s.QuestionsSolved, s.WeakSubject, s.StrongSubject,
		s.PracticedCategories, s.PlanProgress, s.FeaturesUsed, s.UpdatedAt,
	)
	return err
}

// Delete removes the user and owned stats rows.
func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM user_stats WHERE user_id = $1`, userID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return tx.Commit(ctx)
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
