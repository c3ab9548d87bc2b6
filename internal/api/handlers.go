// Package api exposes the campaign engine over HTTP: campaign management,
// dispatch, scheduler administration and suppressions.
package api

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ignite/campaign-engine/internal/service/audience"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/dispatch"
	"github.com/ignite/campaign-engine/internal/service/suppression"
	"github.com/ignite/campaign-engine/internal/scheduler"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	campaigns    *campaign.Service
	audience     *audience.Service
	dispatcher   *dispatch.Dispatcher
	jobs         *scheduler.Registry
	suppressions *suppression.Service
	validate     *validator.Validate
}

// NewHandlers creates the API handlers. jobs may be nil when the scheduler
// is disabled; the scheduler routes then answer 404.
func NewHandlers(
	campaigns *campaign.Service,
	aud *audience.Service,
	dispatcher *dispatch.Dispatcher,
	jobs *scheduler.Registry,
	suppressions *suppression.Service,
) *Handlers {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handlers{
		campaigns:    campaigns,
		audience:     aud,
		dispatcher:   dispatcher,
		jobs:         jobs,
		suppressions: suppressions,
		validate:     v,
	}
}
