package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]*domain.ScheduledJob
	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*domain.ScheduledJob)}
}

func (f *fakeStore) Seed(_ context.Context, jobs []domain.ScheduledJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range jobs {
		if _, ok := f.rows[j.Name]; !ok {
			cp := j
			f.rows[j.Name] = &cp
		}
	}
	return nil
}

func (f *fakeStore) List(_ context.Context) ([]domain.ScheduledJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ScheduledJob
	for _, j := range f.rows {
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeStore) UpdateSchedule(_ context.Context, name, expr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[name].CronSchedule = expr
	f.updates++
	return nil
}

func (f *fakeStore) SetEnabled(_ context.Context, name string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[name].Enabled = enabled
	f.updates++
	return nil
}

func (f *fakeStore) RecordRun(_ context.Context, name string, at time.Time, result domain.JobResult, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[name].LastRunAt = &at
	f.rows[name].LastResult = result
	f.rows[name].LastError = errMsg
	return nil
}

func (f *fakeStore) row(name string) domain.ScheduledJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[name]
}

var base = time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC)

func newTestRegistry(t *testing.T, store *fakeStore, jobs ...Job) *Registry {
	t.Helper()
	r := NewRegistry(store)
	r.SetClock(func() time.Time { return base })
	require.NoError(t, r.Init(context.Background(), jobs))
	return r
}

func countingJob(name, schedule string, enabled bool, calls *int32) Job {
	return Job{
		Name:     name,
		Schedule: schedule,
		Enabled:  enabled,
		Handler: func(context.Context) (string, error) {
			atomic.AddInt32(calls, 1)
			return "ok", nil
		},
	}
}

func TestInit_SeedsOnceAndKeepsRuntimeEdits(t *testing.T) {
	store := newFakeStore()
	var calls int32
	r := newTestRegistry(t, store, countingJob("reminders", "0 8 * * *", true, &calls))

	_, err := r.UpdateSchedule(context.Background(), "reminders", "30 7 * * *")
	require.NoError(t, err)
	_, err = r.Toggle(context.Background(), "reminders", false)
	require.NoError(t, err)

	// Restart with the same defaults.
	r2 := newTestRegistry(t, store, countingJob("reminders", "0 8 * * *", true, &calls))
	j, err := r2.Job(context.Background(), "reminders")
	require.NoError(t, err)
	assert.Equal(t, "30 7 * * *", j.CronSchedule)
	assert.False(t, j.Enabled)
	assert.Nil(t, j.NextRunAt)
}

func TestInit_RejectsBadRegistrations(t *testing.T) {
	var calls int32
	r := NewRegistry(newFakeStore())

	err := r.Init(context.Background(), []Job{countingJob("a", "nonsense", true, &calls)})
	assert.ErrorIs(t, err, ErrInvalidCron)

	err = r.Init(context.Background(), []Job{
		countingJob("a", "* * * * *", true, &calls),
		countingJob("a", "* * * * *", true, &calls),
	})
	assert.Error(t, err)
}

func TestListJobs_NextRunAt(t *testing.T) {
	var calls int32
	r := newTestRegistry(t, newFakeStore(),
		countingJob("every_minute", "* * * * *", true, &calls),
		countingJob("off", "@hourly", false, &calls),
	)

	jobs := r.ListJobs(context.Background())
	require.Len(t, jobs, 2)
	assert.Equal(t, "every_minute", jobs[0].Name)
	require.NotNil(t, jobs[0].NextRunAt)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 1, 0, 0, time.UTC), *jobs[0].NextRunAt)
	assert.Nil(t, jobs[1].NextRunAt)
}

func TestTick_RunsDueEnabledJobs(t *testing.T) {
	store := newFakeStore()
	var on, off int32
	r := newTestRegistry(t, store,
		countingJob("on", "* * * * *", true, &on),
		countingJob("off", "* * * * *", false, &off),
	)

	r.tick(context.Background(), base.Add(10*time.Second)) // not due yet
	r.wg.Wait()
	assert.EqualValues(t, 0, atomic.LoadInt32(&on))

	r.tick(context.Background(), base.Add(31*time.Second))
	r.wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&on))
	assert.EqualValues(t, 0, atomic.LoadInt32(&off))

	// Same minute again: next fire time already advanced.
	r.tick(context.Background(), base.Add(40*time.Second))
	r.wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&on))

	row := store.row("on")
	require.NotNil(t, row.LastRunAt)
	assert.Equal(t, domain.JobSuccess, row.LastResult)
}

func TestTick_SkipsOverlappingRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var calls int32
	slow := Job{
		Name:     "slow",
		Schedule: "* * * * *",
		Enabled:  true,
		Handler: func(context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			started <- struct{}{}
			<-release
			return "", nil
		},
	}
	r := newTestRegistry(t, newFakeStore(), slow)

	r.tick(context.Background(), base.Add(time.Minute))
	<-started
	r.tick(context.Background(), base.Add(2*time.Minute))

	_, err := r.Trigger(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrAlreadyInProgress)

	close(release)
	r.wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestTrigger_RunsDisabledJobAndRecordsFailure(t *testing.T) {
	store := newFakeStore()
	boom := Job{
		Name:     "boom",
		Schedule: "@daily",
		Enabled:  false,
		Handler: func(context.Context) (string, error) {
			return "", errors.New("smtp down")
		},
	}
	r := newTestRegistry(t, store, boom)

	run, err := r.Trigger(context.Background(), "boom")
	require.NoError(t, err)
	assert.True(t, run.Manual)
	assert.Equal(t, domain.JobFailure, run.Result)
	assert.Equal(t, "smtp down", run.Error)
	assert.Equal(t, domain.JobFailure, store.row("boom").LastResult)
	assert.Equal(t, "smtp down", store.row("boom").LastError)
}

func TestTrigger_RecoversPanics(t *testing.T) {
	r := newTestRegistry(t, newFakeStore(), Job{
		Name:     "panicky",
		Schedule: "@daily",
		Handler:  func(context.Context) (string, error) { panic("nil map") },
	})

	run, err := r.Trigger(context.Background(), "panicky")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailure, run.Result)
	assert.Contains(t, run.Error, "nil map")

	// The busy flag is released after a panic.
	_, err = r.Trigger(context.Background(), "panicky")
	assert.NoError(t, err)
}

func TestUnknownJob_NoMutation(t *testing.T) {
	store := newFakeStore()
	var calls int32
	r := newTestRegistry(t, store, countingJob("known", "* * * * *", true, &calls))

	_, err := r.Trigger(context.Background(), "unknownJob")
	assert.ErrorIs(t, err, ErrUnknownJob)
	_, err = r.UpdateSchedule(context.Background(), "unknownJob", "* * * * *")
	assert.ErrorIs(t, err, ErrUnknownJob)
	_, err = r.Toggle(context.Background(), "unknownJob", true)
	assert.ErrorIs(t, err, ErrUnknownJob)

	assert.Equal(t, 0, store.updates)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
	assert.Nil(t, store.row("known").LastRunAt)
}

func TestUpdateSchedule_InvalidCronNotPersisted(t *testing.T) {
	store := newFakeStore()
	var calls int32
	r := newTestRegistry(t, store, countingJob("known", "* * * * *", true, &calls))

	for _, expr := range []string{"not-a-cron", "", "61 * * * *", "* * * *"} {
		_, err := r.UpdateSchedule(context.Background(), "known", expr)
		assert.ErrorIs(t, err, ErrInvalidCron, expr)
	}
	assert.Equal(t, 0, store.updates)
	assert.Equal(t, "* * * * *", store.row("known").CronSchedule)

	j, err := r.UpdateSchedule(context.Background(), "known", "@every 5m")
	require.NoError(t, err)
	assert.Equal(t, "@every 5m", j.CronSchedule)
	assert.Equal(t, "@every 5m", store.row("known").CronSchedule)
}

func TestStartStop(t *testing.T) {
	var calls int32
	r := newTestRegistry(t, newFakeStore(), countingJob("x", "* * * * *", true, &calls))
	r.SetTickInterval(10 * time.Millisecond)

	require.NoError(t, r.Start())
	assert.Error(t, r.Start(), "double start")
	r.Stop()
	r.Stop()
}
