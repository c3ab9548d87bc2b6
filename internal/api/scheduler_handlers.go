package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
)

type updateScheduleRequest struct {
	CronSchedule string `json:"cronSchedule" validate:"required"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// schedulerAvailable answers 404 for every job when the scheduler is off.
func (h *Handlers) schedulerAvailable(w http.ResponseWriter) bool {
	if h.jobs == nil {
		httputil.ErrorCode(w, http.StatusNotFound, "unknown_job", "scheduler is disabled")
		return false
	}
	return true
}

// ListJobs handles GET /scheduler/jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		httputil.OK(w, map[string]interface{}{"jobs": []domain.ScheduledJob{}})
		return
	}
	httputil.OK(w, map[string]interface{}{"jobs": h.jobs.ListJobs(r.Context())})
}

// TriggerJob handles POST /scheduler/jobs/{name}/trigger. It waits for the
// run to finish and returns it.
func (h *Handlers) TriggerJob(w http.ResponseWriter, r *http.Request) {
	if !h.schedulerAvailable(w) {
		return
	}
	run, err := h.jobs.Trigger(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, run)
}

// UpdateJobSchedule handles PUT /scheduler/jobs/{name}
func (h *Handlers) UpdateJobSchedule(w http.ResponseWriter, r *http.Request) {
	if !h.schedulerAvailable(w) {
		return
	}
	var req updateScheduleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	job, err := h.jobs.UpdateSchedule(r.Context(), chi.URLParam(r, "name"), req.CronSchedule)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, job)
}

// ToggleJob handles PATCH /scheduler/jobs/{name}/toggle
func (h *Handlers) ToggleJob(w http.ResponseWriter, r *http.Request) {
	if !h.schedulerAvailable(w) {
		return
	}
	var req toggleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	job, err := h.jobs.Toggle(r.Context(), chi.URLParam(r, "name"), *req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, job)
}
