package campaign

import (
	"context"
	"encoding/json"
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

// NewPostgresRepository creates a new PostgreSQL campaign repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const campaignColumns = `id, title, body, image_url, route, audience, send_type,
	scheduled_at, status, target_count, success_count, failure_count, error,
	created_by, started_at, completed_at, created_at, updated_at`

func scanCampaign(row pgx.Row) (*Campaign, error) {
	var c Campaign
	var audienceJSON []byte
	err := row.Scan(
		&c.ID, &c.Title, &c.Body, &c.ImageURL, &c.Route, &audienceJSON, &c.SendType,
		&c.ScheduledAt, &c.Status, &c.TargetCount, &c.SuccessCount, &c.FailureCount, &c.Error,
		&c.CreatedBy, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(audienceJSON, &c.Audience); err != nil {
		return nil, fmt.Errorf("decode audience spec: %w", err)
	}
	return &c, nil
}

// Create inserts a campaign in its initial status.
func (r *PostgresRepository) Create(ctx context.Context, c *Campaign) error {
	audienceJSON, err := json.Marshal(c.Audience)
	if err != nil {
		return fmt.Errorf("encode audience spec: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO campaigns (id, title, body, image_url, route, audience, send_type,
			scheduled_at, status, target_count, success_count, failure_count, error,
			created_by, started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		c.ID, c.Title, c.Body, c.ImageURL, c.Route, audienceJSON, c.SendType,
		c.ScheduledAt, c.Status, c.TargetCount, c.SuccessCount, c.FailureCount, c.Error,
		c.CreatedBy, c.StartedAt, c.CompletedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// Get retrieves a campaign by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	return scanCampaign(r.pool.QueryRow(ctx, query, id))
}

// ListDue returns due scheduled campaigns, oldest first.
func (r *PostgresRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, StatusScheduled, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// Claim moves a campaign from scheduled to sending. The WHERE clause on
// the old status is what makes concurrent sweeps claim at most once.
func (r *PostgresRepository) Claim(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns
		SET status = $2, started_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4
	`, id, StatusSending, startedAt, StatusScheduled)
	if err != nil {
		return false, fmt.Errorf("claim campaign: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Finish records the terminal status. Guarded on StatusSending so a late
// duplicate cannot regress a terminal campaign.
func (r *PostgresRepository) Finish(ctx context.Context, id string, status Status, targeted, success, failure int, errMsg string, completedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE campaigns
		SET status = $2, target_count = $3, success_count = $4, failure_count = $5,
			error = $6, completed_at = $7, updated_at = $7
		WHERE id = $1 AND status = $8
	`, id, status, targeted, success, failure, errMsg, completedAt, StatusSending)
	if err != nil {
		return fmt.Errorf("finish campaign: %w", err)
	}
	return nil
}

// AppendDeliveryLog records one recipient-batch outcome.
func (r *PostgresRepository) AppendDeliveryLog(ctx context.Context, log *DeliveryLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO campaign_delivery_logs (campaign_id, users, tokens, sent_at)
		VALUES ($1, $2, $3, $4)
	`, log.CampaignID, log.Users, log.Tokens, log.SentAt)
	if err != nil {
		return fmt.Errorf("append delivery log: %w", err)
	}
	return nil
}

// DeliveryLogs returns a campaign's batch records, oldest first.
func (r *PostgresRepository) DeliveryLogs(ctx context.Context, campaignID string) ([]*DeliveryLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT campaign_id, users, tokens, sent_at
		FROM campaign_delivery_logs
		WHERE campaign_id = $1
		ORDER BY sent_at
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*DeliveryLog
	for rows.Next() {
		var l DeliveryLog
		if err := rows.Scan(&l.CampaignID, &l.Users, &l.Tokens, &l.SentAt); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// InsertInApp materializes inbox rows for a recipient batch.
func (r *PostgresRepository) InsertInApp(ctx context.Context, msgs []*InAppMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(`
			INSERT INTO inapp_messages (id, user_id, campaign_id, title, body, image_url, route, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, m.ID, m.UserID, m.CampaignID, m.Title, m.Body, m.ImageURL, m.Route, m.CreatedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range msgs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert inapp message: %w", err)
		}
	}
	return nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
