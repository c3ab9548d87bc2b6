package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/scheduler"
)

// JobRepo persists scheduler state in the scheduled_jobs table.
type JobRepo struct{ db *sql.DB }

var _ scheduler.Store = (*JobRepo)(nil)

func NewJobRepo(db *sql.DB) *JobRepo { return &JobRepo{db: db} }

// Seed inserts jobs that are not stored yet. Stored rows keep their
// schedule and enabled flag.
func (r *JobRepo) Seed(ctx context.Context, jobs []domain.ScheduledJob) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed jobs: %w", err)
	}
	defer tx.Rollback()

	for _, j := range jobs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scheduled_jobs (name, cron_schedule, enabled)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO NOTHING
		`, j.Name, j.CronSchedule, j.Enabled); err != nil {
			return fmt.Errorf("seed job %s: %w", j.Name, err)
		}
	}
	return tx.Commit()
}

func (r *JobRepo) List(ctx context.Context) ([]domain.ScheduledJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, cron_schedule, enabled, last_run_at, COALESCE(last_result,''), COALESCE(last_error,'')
		FROM scheduled_jobs ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.ScheduledJob
	for rows.Next() {
		var j domain.ScheduledJob
		if err := rows.Scan(&j.Name, &j.CronSchedule, &j.Enabled, &j.LastRunAt, &j.LastResult, &j.LastError); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *JobRepo) UpdateSchedule(ctx context.Context, name, expr string) error {
	return r.exec(ctx, `UPDATE scheduled_jobs SET cron_schedule = $2 WHERE name = $1`, name, expr)
}

func (r *JobRepo) SetEnabled(ctx context.Context, name string, enabled bool) error {
	return r.exec(ctx, `UPDATE scheduled_jobs SET enabled = $2 WHERE name = $1`, name, enabled)
}

func (r *JobRepo) RecordRun(ctx context.Context, name string, at time.Time, result domain.JobResult, errMsg string) error {
	return r.exec(ctx, `
		UPDATE scheduled_jobs SET last_run_at = $2, last_result = $3, last_error = NULLIF($4, '')
		WHERE name = $1
	`, name, at, result, errMsg)
}

func (r *JobRepo) exec(ctx context.Context, q string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUnknownJob
	}
	return nil
}
