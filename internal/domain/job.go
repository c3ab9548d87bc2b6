package domain

import "time"

// JobResult is the outcome recorded after a scheduled job run.
type JobResult string

const (
	JobSuccess JobResult = "success"
	JobFailure JobResult = "failure"
	JobSkipped JobResult = "skipped"
)

// ScheduledJob is the persisted state of one named periodic job.
// NextRunAt is derived from CronSchedule and never stored.
type ScheduledJob struct {
	Name         string     `json:"name" db:"name"`
	Description  string     `json:"description,omitempty" db:"-"`
	CronSchedule string     `json:"cronSchedule" db:"cron_schedule"`
	Enabled      bool       `json:"enabled" db:"enabled"`
	Running      bool       `json:"running" db:"-"`
	LastRunAt    *time.Time `json:"lastRunAt" db:"last_run_at"`
	LastResult   JobResult  `json:"lastResult,omitempty" db:"last_result"`
	LastError    string     `json:"lastError,omitempty" db:"last_error"`
	NextRunAt    *time.Time `json:"nextRunAt" db:"-"`
}

// JobRun describes one completed execution of a job.
type JobRun struct {
	ID         string        `json:"id"`
	Job        string        `json:"job"`
	Manual     bool          `json:"manual"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Duration   time.Duration `json:"duration"`
	Result     JobResult     `json:"result"`
	Error      string        `json:"error,omitempty"`
	Summary    string        `json:"summary,omitempty"`
}
