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

// RecipientRepo implements campaign.RecipientRepository and the engagement
// counters against PostgreSQL.
type RecipientRepo struct{ db *sql.DB }

var _ campaign.RecipientRepository = (*RecipientRepo)(nil)

func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

const recipientColumns = `campaign_id, contact_id, email, status, COALESCE(message_id,''),
	COALESCE(failure_reason,''), sent_at, opened_at, open_count, clicked_at, click_count, created_at`

// Snapshot inserts all rows in one statement. Existing rows are left as
// they are, so a resumed pass never resets an outcome.
func (r *RecipientRepo) Snapshot(ctx context.Context, campaignID string, contacts []domain.Contact) (int, error) {
	ids := make([]string, len(contacts))
	emails := make([]string, len(contacts))
	for i, c := range contacts {
		ids[i] = c.ID
		emails[i] = c.Email
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_recipients (campaign_id, contact_id, email, status, created_at)
		SELECT $1, t.contact_id, t.email, 'pending', NOW()
		FROM unnest($2::text[], $3::text[]) AS t(contact_id, email)
		ON CONFLICT (campaign_id, contact_id) DO NOTHING
	`, campaignID, pq.Array(ids), pq.Array(emails))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return 0, campaign.ErrNotFound
		}
		return 0, fmt.Errorf("snapshot recipients: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *RecipientRepo) Count(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id = $1`, campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return n, nil
}

func (r *RecipientRepo) Pending(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error) {
	out, err := r.query(ctx, `SELECT `+recipientColumns+` FROM campaign_recipients
		WHERE campaign_id = $1 AND status = 'pending' ORDER BY contact_id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("pending recipients: %w", err)
	}
	return out, nil
}

// MarkSent and MarkFailed only move PENDING rows. A row that already has
// an outcome is left untouched.
func (r *RecipientRepo) MarkSent(ctx context.Context, campaignID, contactID, messageID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients SET status = 'sent', message_id = $3, sent_at = $4
		WHERE campaign_id = $1 AND contact_id = $2 AND status = 'pending'
	`, campaignID, contactID, messageID, at)
	if err != nil {
		return fmt.Errorf("mark recipient sent: %w", err)
	}
	return r.checkRow(ctx, res, campaignID, contactID)
}

func (r *RecipientRepo) MarkFailed(ctx context.Context, campaignID, contactID, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients SET status = 'failed', failure_reason = $3
		WHERE campaign_id = $1 AND contact_id = $2 AND status = 'pending'
	`, campaignID, contactID, reason)
	if err != nil {
		return fmt.Errorf("mark recipient failed: %w", err)
	}
	return r.checkRow(ctx, res, campaignID, contactID)
}

func (r *RecipientRepo) checkRow(ctx context.Context, res sql.Result, campaignID, contactID string) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM campaign_recipients WHERE campaign_id = $1 AND contact_id = $2)`,
		campaignID, contactID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check recipient: %w", err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return nil
}

// RecordOpen increments the counter and sets opened_at on the first open,
// in a single conditional UPDATE.
func (r *RecipientRepo) RecordOpen(ctx context.Context, campaignID, contactID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET open_count = open_count + 1, opened_at = COALESCE(opened_at, $3)
		WHERE campaign_id = $1 AND contact_id = $2
	`, campaignID, contactID, at)
	if err != nil {
		return false, fmt.Errorf("record open: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *RecipientRepo) RecordClick(ctx context.Context, campaignID, contactID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET click_count = click_count + 1, clicked_at = COALESCE(clicked_at, $3)
		WHERE campaign_id = $1 AND contact_id = $2
	`, campaignID, contactID, at)
	if err != nil {
		return false, fmt.Errorf("record click: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *RecipientRepo) List(ctx context.Context, campaignID string, f campaign.RecipientFilter) ([]domain.CampaignRecipient, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	where := " WHERE campaign_id = $1"
	args := []interface{}{campaignID}
	if f.Status != "" {
		where += " AND status = $2"
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaign_recipients`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recipients: %w", err)
	}

	q := `SELECT ` + recipientColumns + ` FROM campaign_recipients` + where +
		fmt.Sprintf(" ORDER BY contact_id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)
	out, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recipients: %w", err)
	}
	return out, total, nil
}

func (r *RecipientRepo) Stats(ctx context.Context, campaignID string) (*domain.RecipientStats, error) {
	st := &domain.RecipientStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'bounced'),
		       COUNT(opened_at),
		       COUNT(clicked_at),
		       COALESCE(SUM(open_count), 0),
		       COALESCE(SUM(click_count), 0)
		FROM campaign_recipients WHERE campaign_id = $1
	`, campaignID).Scan(
		&st.Total, &st.Pending, &st.Sent, &st.Failed, &st.Bounced,
		&st.Opened, &st.Clicked, &st.Opens, &st.Clicks,
	)
	if err != nil {
		return nil, fmt.Errorf("recipient stats: %w", err)
	}
	return st, nil
}

func (r *RecipientRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.CampaignRecipient, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CampaignRecipient
	for rows.Next() {
		var rc domain.CampaignRecipient
		if err := rows.Scan(
			&rc.CampaignID, &rc.ContactID, &rc.Email, &rc.Status, &rc.MessageID,
			&rc.FailureReason, &rc.SentAt, &rc.OpenedAt, &rc.OpenCount, &rc.ClickedAt, &rc.ClickCount, &rc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}
