package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/lib/pq"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

var _ campaign.Repository = (*CampaignRepo)(nil)

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, name, subject, COALESCE(html_body,''), COALESCE(text_body,''),
	COALESCE(from_name,''), COALESCE(from_email,''), campaign_type, status, target_audience,
	scheduled_at, sent_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(s scanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := s.Scan(
		&c.ID, &c.Name, &c.Subject, &c.HTMLBody, &c.TextBody,
		&c.FromName, &c.FromEmail, &c.Type, &c.Status, &c.TargetAudience,
		&c.ScheduledAt, &c.SentAt, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := " WHERE 1=1"
	args := []interface{}{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Type != "" {
		where += fmt.Sprintf(" AND campaign_type = $%d", idx)
		args = append(args, f.Type)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	out, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	return out, total, nil
}

func (r *CampaignRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, name, subject, html_body, text_body, from_name, from_email,
			 campaign_type, status, target_audience, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, c.ID, c.Name, c.Subject, c.HTMLBody, c.TextBody, c.FromName, c.FromEmail,
		c.Type, c.Status, c.TargetAudience, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// Update edits a draft. A row that exists but is no longer a draft yields
// ErrInvalidState.
func (r *CampaignRepo) Update(ctx context.Context, id string, u campaign.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Subject != nil {
		add("subject", *u.Subject)
	}
	if u.HTMLBody != nil {
		add("html_body", *u.HTMLBody)
	}
	if u.TextBody != nil {
		add("text_body", *u.TextBody)
	}
	if u.FromName != nil {
		add("from_name", *u.FromName)
	}
	if u.FromEmail != nil {
		add("from_email", *u.FromEmail)
	}
	if u.Type != nil {
		add("campaign_type", *u.Type)
	}
	if u.TargetAudience != nil {
		add("target_audience", *u.TargetAudience)
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = NOW()")
	q := fmt.Sprintf("UPDATE campaigns SET %s WHERE id = $%d AND status = $%d",
		joinComma(sets), idx, idx+1)
	args = append(args, id, domain.CampaignDraft)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return r.missed(ctx, res, id)
}

func (r *CampaignRepo) Delete(ctx context.Context, id string, allowed []domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM campaigns WHERE id = $1 AND status = ANY($2)`,
		id, pq.Array(statusStrings(allowed)))
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return r.missed(ctx, res, id)
}

// Transition is a compare-and-set on status: it only succeeds while the
// row is in one of the from states.
func (r *CampaignRepo) Transition(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus, f campaign.TransitionFields) error {
	var scheduledAt, sentAt interface{}
	if f.ScheduledAt != nil {
		scheduledAt = *f.ScheduledAt
	}
	if f.SentAt != nil {
		sentAt = *f.SentAt
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET
			status = $1,
			scheduled_at = CASE WHEN $2 THEN NULL ELSE COALESCE($3::timestamptz, scheduled_at) END,
			sent_at = COALESCE(sent_at, $4::timestamptz),
			updated_at = NOW()
		WHERE id = $5 AND status = ANY($6)
	`, to, f.ClearSchedule, scheduledAt, sentAt, id, pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("transition campaign: %w", err)
	}
	return r.missed(ctx, res, id)
}

// missed maps a zero-row write to ErrNotFound or ErrInvalidState.
func (r *CampaignRepo) missed(ctx context.Context, res sql.Result, id string) error {
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return campaign.ErrInvalidState
}

func (r *CampaignRepo) Due(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	if limit <= 0 {
		limit = campaign.DefaultDueBatch
	}
	out, err := r.query(ctx, `SELECT `+campaignColumns+` FROM campaigns
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at, id LIMIT $3`, domain.CampaignScheduled, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due campaigns: %w", err)
	}
	return out, nil
}

func (r *CampaignRepo) ListByStatus(ctx context.Context, status domain.CampaignStatus) ([]domain.Campaign, error) {
	out, err := r.query(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE status = $1 ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("list campaigns by status: %w", err)
	}
	return out, nil
}

func statusStrings(in []domain.CampaignStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
