package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/metrics"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/robfig/cron/v3"
)

// =============================================================================
// JOB SCHEDULER
// =============================================================================
// A fixed registry of named periodic jobs. Each job has a cron schedule and an
// enabled flag persisted in the job store, so runtime edits survive restarts.
//
// - One ticker drives every job; a due job runs on its own goroutine.
// - A job still running when it comes due again is skipped, never queued.
// - Manual triggers ignore schedule and enabled state but not overlap.

// DefaultTickInterval is how often due jobs are evaluated.
const DefaultTickInterval = time.Second

var (
	ErrUnknownJob        = domain.ErrUnknownJob
	ErrInvalidCron       = domain.ErrInvalidCron
	ErrAlreadyInProgress = domain.ErrAlreadyInProgress
)

// Handler is the work behind a job. The summary is recorded with the run.
type Handler func(ctx context.Context) (summary string, err error)

// Job registers a handler under a fixed name with its default schedule.
type Job struct {
	Name        string
	Description string
	Schedule    string
	Enabled     bool
	Handler     Handler
}

type entry struct {
	job      Job
	expr     string
	schedule cron.Schedule
	enabled  bool
	next     time.Time

	lastRunAt  *time.Time
	lastResult domain.JobResult
	lastError  string

	busy atomic.Bool
}

// Registry owns the job table and the tick loop.
type Registry struct {
	store        Store
	tickInterval time.Duration
	now          func() time.Time

	mu    sync.RWMutex
	jobs  map[string]*entry
	order []string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRegistry creates an empty registry backed by store.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store:        store,
		tickInterval: DefaultTickInterval,
		now:          time.Now,
		jobs:         make(map[string]*entry),
	}
}

// SetTickInterval changes how often due jobs are evaluated.
func (r *Registry) SetTickInterval(d time.Duration) {
	if d > 0 {
		r.tickInterval = d
	}
}

// SetClock replaces the time source.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// ParseCron validates a standard 5-field expression or descriptor
// (@hourly, @every 10m).
func ParseCron(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidCron)
	}
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidCron, expr, err)
	}
	return s, nil
}

// Init registers jobs, seeds the store with rows missing from it and loads
// the persisted schedule and enabled flag of each registered job.
func (r *Registry) Init(ctx context.Context, jobs []Job) error {
	entries := make(map[string]*entry, len(jobs))
	order := make([]string, 0, len(jobs))
	seed := make([]domain.ScheduledJob, 0, len(jobs))
	for _, j := range jobs {
		if j.Name == "" || j.Handler == nil {
			return fmt.Errorf("job %q: name and handler are required", j.Name)
		}
		if _, dup := entries[j.Name]; dup {
			return fmt.Errorf("job %q registered twice", j.Name)
		}
		sched, err := ParseCron(j.Schedule)
		if err != nil {
			return fmt.Errorf("job %q: %w", j.Name, err)
		}
		entries[j.Name] = &entry{job: j, expr: j.Schedule, schedule: sched, enabled: j.Enabled}
		order = append(order, j.Name)
		seed = append(seed, domain.ScheduledJob{Name: j.Name, CronSchedule: j.Schedule, Enabled: j.Enabled})
	}

	if err := r.store.Seed(ctx, seed); err != nil {
		return fmt.Errorf("seed jobs: %w", err)
	}
	rows, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	for _, row := range rows {
		e, ok := entries[row.Name]
		if !ok {
			continue
		}
		if sched, err := ParseCron(row.CronSchedule); err == nil {
			e.expr, e.schedule = row.CronSchedule, sched
		} else {
			logger.Warn("persisted cron invalid, keeping default", "job", row.Name, "cron", row.CronSchedule)
		}
		e.enabled = row.Enabled
		e.lastRunAt = row.LastRunAt
		e.lastResult = row.LastResult
		e.lastError = row.LastError
	}

	now := r.now()
	for _, e := range entries {
		e.next = e.schedule.Next(now)
	}

	r.mu.Lock()
	r.jobs = entries
	r.order = order
	r.mu.Unlock()
	logger.Info("scheduler initialised", "jobs", len(order))
	return nil
}

// Start begins the tick loop.
func (r *Registry) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.mu.Unlock()

	logger.Info("scheduler starting", "tick", r.tickInterval.String())
	r.wg.Add(1)
	go r.loop()
	return nil
}

// Stop halts the tick loop and waits for in-flight scheduled runs.
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	logger.Info("scheduler stopped")
}

func (r *Registry) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.tick(r.ctx, r.now())
		}
	}
}

// tick launches every enabled job whose next fire time has passed. Its
// next fire time advances whether or not it actually runs.
func (r *Registry) tick(ctx context.Context, now time.Time) {
	var due []*entry
	r.mu.Lock()
	for _, name := range r.order {
		e := r.jobs[name]
		if !e.enabled || e.next.After(now) {
			continue
		}
		e.next = e.schedule.Next(now)
		due = append(due, e)
	}
	r.mu.Unlock()

	for _, e := range due {
		if !e.busy.CompareAndSwap(false, true) {
			logger.Warn("job still running, skipping tick", "job", e.job.Name)
			metrics.JobRuns.WithLabelValues(e.job.Name, string(domain.JobSkipped)).Inc()
			continue
		}
		r.wg.Add(1)
		go func(e *entry) {
			defer r.wg.Done()
			r.run(ctx, e, false)
		}(e)
	}
}

// ListJobs returns every registered job in registration order.
func (r *Registry) ListJobs(_ context.Context) []domain.ScheduledJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ScheduledJob, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.snapshot(r.jobs[name]))
	}
	return out
}

// Job returns one registered job.
func (r *Registry) Job(_ context.Context, name string) (domain.ScheduledJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[name]
	if !ok {
		return domain.ScheduledJob{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return r.snapshot(e), nil
}

// snapshot must be called with r.mu held.
func (r *Registry) snapshot(e *entry) domain.ScheduledJob {
	j := domain.ScheduledJob{
		Name:         e.job.Name,
		Description:  e.job.Description,
		CronSchedule: e.expr,
		Enabled:      e.enabled,
		Running:      e.busy.Load(),
		LastRunAt:    e.lastRunAt,
		LastResult:   e.lastResult,
		LastError:    e.lastError,
	}
	if e.enabled {
		next := e.next
		j.NextRunAt = &next
	}
	return j
}

// Trigger runs a job now, regardless of its schedule or enabled flag, and
// returns when it finishes. The run is detached from ctx cancellation so a
// dropped HTTP client does not abort a dispatch half way.
func (r *Registry) Trigger(ctx context.Context, name string) (*domain.JobRun, error) {
	r.mu.RLock()
	e, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("job %s: %w", name, ErrAlreadyInProgress)
	}
	run := r.run(context.WithoutCancel(ctx), e, true)
	return &run, nil
}

// UpdateSchedule validates and persists a new cron expression.
func (r *Registry) UpdateSchedule(ctx context.Context, name, expr string) (domain.ScheduledJob, error) {
	r.mu.RLock()
	e, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		return domain.ScheduledJob{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	sched, err := ParseCron(expr)
	if err != nil {
		return domain.ScheduledJob{}, err
	}
	if err := r.store.UpdateSchedule(ctx, name, expr); err != nil {
		return domain.ScheduledJob{}, fmt.Errorf("persist schedule: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e.expr = expr
	e.schedule = sched
	e.next = sched.Next(r.now())
	logger.Info("job schedule updated", "job", name, "cron", expr)
	return r.snapshot(e), nil
}

// Toggle enables or disables a job.
func (r *Registry) Toggle(ctx context.Context, name string, enabled bool) (domain.ScheduledJob, error) {
	r.mu.RLock()
	e, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		return domain.ScheduledJob{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if err := r.store.SetEnabled(ctx, name, enabled); err != nil {
		return domain.ScheduledJob{}, fmt.Errorf("persist enabled: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if enabled && !e.enabled {
		e.next = e.schedule.Next(r.now())
	}
	e.enabled = enabled
	logger.Info("job toggled", "job", name, "enabled", enabled)
	return r.snapshot(e), nil
}

// run executes the handler. The caller must have set e.busy.
func (r *Registry) run(ctx context.Context, e *entry, manual bool) domain.JobRun {
	defer e.busy.Store(false)

	run := domain.JobRun{
		ID:        uuid.New().String(),
		Job:       e.job.Name,
		Manual:    manual,
		StartedAt: r.now().UTC(),
	}
	logger.Info("job started", "job", run.Job, "run_id", run.ID, "manual", manual)

	summary, err := safeCall(ctx, e.job.Handler)
	run.FinishedAt = r.now().UTC()
	run.Duration = run.FinishedAt.Sub(run.StartedAt)
	run.Summary = summary
	run.Result = domain.JobSuccess
	if err != nil {
		run.Result = domain.JobFailure
		run.Error = err.Error()
		logger.Error("job failed", "job", run.Job, "run_id", run.ID, "error", err)
	} else {
		logger.Info("job finished", "job", run.Job, "run_id", run.ID, "duration_ms", run.Duration.Milliseconds(), "summary", summary)
	}
	metrics.JobRuns.WithLabelValues(run.Job, string(run.Result)).Inc()
	metrics.JobDuration.WithLabelValues(run.Job).Observe(run.Duration.Seconds())

	r.mu.Lock()
	at := run.StartedAt
	e.lastRunAt = &at
	e.lastResult = run.Result
	e.lastError = run.Error
	r.mu.Unlock()

	// Recording must not depend on the run's context, which may be cancelled
	// by Stop.
	recCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.RecordRun(recCtx, run.Job, run.StartedAt, run.Result, run.Error); err != nil {
		logger.Error("record job run failed", "job", run.Job, "error", err)
	}
	return run
}

func safeCall(ctx context.Context, h Handler) (summary string, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("job panicked", "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			err = errors.New(fmt.Sprint("panic: ", p))
		}
	}()
	return h(ctx)
}
