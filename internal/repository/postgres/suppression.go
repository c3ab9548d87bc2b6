package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

var _ suppression.Repository = (*SuppressionRepo)(nil)

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, contactID string, ch domain.Channel) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppressions WHERE contact_id = $1 AND channel = $2)`,
		contactID, ch,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check suppression: %w", err)
	}
	return exists, nil
}

// Suppress is idempotent: the first reason and source are kept.
func (r *SuppressionRepo) Suppress(ctx context.Context, s *domain.Suppression) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (contact_id, channel, reason, source, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (contact_id, channel) DO NOTHING
	`, s.ContactID, s.Channel, s.Reason, s.Source)
	if err != nil {
		return fmt.Errorf("suppress: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, contactID string, ch domain.Channel) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppressions WHERE contact_id = $1 AND channel = $2`,
		contactID, ch,
	)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if f.Channel != "" {
		args = append(args, f.Channel)
		where += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		where += fmt.Sprintf(" AND source = $%d", len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suppressions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	q := `SELECT contact_id, channel, COALESCE(reason,''), source, created_at FROM suppressions` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, contact_id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suppression
	for rows.Next() {
		var s domain.Suppression
		if err := rows.Scan(&s.ContactID, &s.Channel, &s.Reason, &s.Source, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// TokenRepo implements suppression.TokenRepository against PostgreSQL.
type TokenRepo struct{ db *sql.DB }

var _ suppression.TokenRepository = (*TokenRepo)(nil)

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

// GetOrCreate inserts t unless the (contact, scope) pair already has a
// token, and returns whichever token is stored.
func (r *TokenRepo) GetOrCreate(ctx context.Context, t *domain.UnsubscribeToken) (*domain.UnsubscribeToken, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO unsubscribe_tokens (token, contact_id, scope, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (contact_id, scope) DO NOTHING
	`, t.Token, t.ContactID, t.Scope, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create unsubscribe token: %w", err)
	}
	out, err := r.scan(r.db.QueryRowContext(ctx,
		`SELECT token, contact_id, scope, created_at, last_used_at FROM unsubscribe_tokens
		 WHERE contact_id = $1 AND scope = $2`, t.ContactID, t.Scope))
	if err != nil {
		return nil, fmt.Errorf("load unsubscribe token: %w", err)
	}
	return out, nil
}

func (r *TokenRepo) Lookup(ctx context.Context, token string) (*domain.UnsubscribeToken, error) {
	out, err := r.scan(r.db.QueryRowContext(ctx,
		`SELECT token, contact_id, scope, created_at, last_used_at FROM unsubscribe_tokens
		 WHERE token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, suppression.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup unsubscribe token: %w", err)
	}
	return out, nil
}

func (r *TokenRepo) Touch(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE unsubscribe_tokens SET last_used_at = $2 WHERE token = $1`, token, at)
	if err != nil {
		return fmt.Errorf("touch unsubscribe token: %w", err)
	}
	return nil
}

func (r *TokenRepo) scan(row *sql.Row) (*domain.UnsubscribeToken, error) {
	t := &domain.UnsubscribeToken{}
	if err := row.Scan(&t.Token, &t.ContactID, &t.Scope, &t.CreatedAt, &t.LastUsedAt); err != nil {
		return nil, err
	}
	return t, nil
}
