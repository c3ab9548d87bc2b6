package scheduler

import (
	"context"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Store persists job configuration and the outcome of the last run.
type Store interface {
	// Seed inserts jobs whose name is not stored yet. Existing rows keep
	// their schedule and enabled flag.
	Seed(ctx context.Context, jobs []domain.ScheduledJob) error

	// List returns every stored job.
	List(ctx context.Context) ([]domain.ScheduledJob, error)

	// UpdateSchedule stores a validated cron expression.
	UpdateSchedule(ctx context.Context, name, expr string) error

	// SetEnabled stores the enabled flag.
	SetEnabled(ctx context.Context, name string, enabled bool) error

	// RecordRun stores the outcome of a run.
	RecordRun(ctx context.Context, name string, at time.Time, result domain.JobResult, errMsg string) error
}
