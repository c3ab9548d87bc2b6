package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var errRouteNotFound = fmt.Errorf("route %w", domain.ErrNotFound)

// Tracking registers the public tracking and unsubscribe routes under
// /campaigns.
type Tracking interface {
	Register(r chi.Router)
}

// RouteOptions configures SetupRoutes.
type RouteOptions struct {
	AllowedOrigins []string
	Tracking       Tracking
	Health         *HealthChecker
}

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(metrics.Middleware)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	health := opts.Health
	if health == nil {
		health = NewHealthChecker(nil, nil, h.jobs)
	}
	r.Get("/health", health.HandleHealth)
	r.Get("/health/live", health.HandleLiveness)
	r.Get("/health/ready", health.HandleReadiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/campaigns", func(r chi.Router) {
		if opts.Tracking != nil {
			opts.Tracking.Register(r)
		}

		r.Get("/", h.ListCampaigns)
		r.Post("/", h.CreateCampaign)
		r.Post("/preview-audience", h.PreviewAudience)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetCampaign)
			r.Put("/", h.UpdateCampaign)
			r.Delete("/", h.DeleteCampaign)
			r.Post("/send", h.SendCampaign)
			r.Post("/schedule", h.ScheduleCampaign)
			r.Post("/cancel", h.CancelCampaign)
			r.Post("/preview-audience", h.PreviewCampaignAudience)
			r.Get("/recipients", h.ListRecipients)
			r.Get("/stats", h.CampaignStats)
		})
	})

	r.Route("/scheduler/jobs", func(r chi.Router) {
		r.Get("/", h.ListJobs)
		r.Post("/{name}/trigger", h.TriggerJob)
		r.Put("/{name}", h.UpdateJobSchedule)
		r.Patch("/{name}/toggle", h.ToggleJob)
	})

	r.Route("/suppressions", func(r chi.Router) {
		r.Get("/", h.ListSuppressions)
		r.Post("/", h.CreateSuppression)
		r.Delete("/{contactId}", h.DeleteSuppression)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errRouteNotFound)
	})

	return r
}
