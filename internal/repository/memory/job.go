package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/scheduler"
)

// JobRepo implements scheduler.Store in memory.
type JobRepo struct{ s *Store }

var _ scheduler.Store = (*JobRepo)(nil)

func (r *JobRepo) Seed(_ context.Context, jobs []domain.ScheduledJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range jobs {
		if _, exists := r.s.jobs[j.Name]; exists {
			continue
		}
		cp := j
		r.s.jobs[j.Name] = &cp
	}
	return nil
}

func (r *JobRepo) List(_ context.Context) ([]domain.ScheduledJob, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.ScheduledJob, 0, len(r.s.jobs))
	for _, j := range r.s.jobs {
		cp := *j
		cp.LastRunAt = copyTime(j.LastRunAt)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *JobRepo) UpdateSchedule(_ context.Context, name, expr string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[name]
	if !ok {
		return domain.ErrNotFound
	}
	j.CronSchedule = expr
	return nil
}

func (r *JobRepo) SetEnabled(_ context.Context, name string, enabled bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[name]
	if !ok {
		return domain.ErrNotFound
	}
	j.Enabled = enabled
	return nil
}

func (r *JobRepo) RecordRun(_ context.Context, name string, at time.Time, result domain.JobResult, errMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[name]
	if !ok {
		return domain.ErrNotFound
	}
	j.LastRunAt = copyTime(&at)
	j.LastResult = result
	j.LastError = errMsg
	return nil
}
