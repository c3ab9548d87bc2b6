package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/audience"
	"github.com/lib/pq"
)

// ContactRepo reads contacts and evaluates audiences in SQL.
type ContactRepo struct{ db *sql.DB }

var _ audience.Repository = (*ContactRepo)(nil)

func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

const contactColumns = `c.id, c.email, COALESCE(c.first_name,''), COALESCE(c.last_name,''),
	COALESCE(c.gender,''), COALESCE(c.city,''), c.birth_date, c.last_visit_at, COALESCE(c.tags, '{}'), c.created_at`

func scanContact(s scanner) (*domain.Contact, error) {
	ct := &domain.Contact{}
	var tags pq.StringArray
	err := s.Scan(&ct.ID, &ct.Email, &ct.FirstName, &ct.LastName, &ct.Gender, &ct.City,
		&ct.BirthDate, &ct.LastVisitAt, &tags, &ct.CreatedAt)
	if err != nil {
		return nil, err
	}
	ct.Tags = []string(tags)
	return ct, nil
}

func (r *ContactRepo) Get(ctx context.Context, id string) (*domain.Contact, error) {
	ct, err := scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts c WHERE c.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return ct, nil
}

// Find returns matching, unsuppressed contacts ordered by id.
func (r *ContactRepo) Find(ctx context.Context, q audience.Query) ([]domain.Contact, error) {
	aq := &audienceQuery{now: q.Now}
	where, err := aq.where(q.Root, q.Channel)
	if err != nil {
		return nil, err
	}
	sqlText := `SELECT ` + contactColumns + ` FROM contacts c WHERE ` + where + ` ORDER BY c.id`
	if q.Limit > 0 {
		sqlText += " LIMIT " + aq.nextArg(q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sqlText, aq.args...)
	if err != nil {
		return nil, fmt.Errorf("find contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		ct, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *ct)
	}
	return out, rows.Err()
}

func (r *ContactRepo) Count(ctx context.Context, q audience.Query) (int, error) {
	aq := &audienceQuery{now: q.Now}
	where, err := aq.where(q.Root, q.Channel)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts c WHERE `+where, aq.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}
