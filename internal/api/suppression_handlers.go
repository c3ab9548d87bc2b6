package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

type suppressRequest struct {
	ContactID string `json:"contact_id" validate:"required,max=255"`
	Channel   string `json:"channel" validate:"omitempty,oneof=email"`
	Reason    string `json:"reason" validate:"max=500"`
}

// ListSuppressions handles GET /suppressions
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	p := parseWindow(r, 100, 1000)
	items, total, err := h.suppressions.List(r.Context(), suppression.ListFilter{
		Channel: r.URL.Query().Get("channel"),
		Source:  r.URL.Query().Get("source"),
		Limit:   p.Limit,
		Offset:  p.Offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []domain.Suppression{}
	}
	httputil.OK(w, newListPage(items, p, total))
}

// CreateSuppression handles POST /suppressions. Suppressing an already
// suppressed contact is not an error.
func (h *Handlers) CreateSuppression(w http.ResponseWriter, r *http.Request) {
	var req suppressRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	err := h.suppressions.Suppress(r.Context(), req.ContactID, domain.Channel(req.Channel), req.Reason, domain.SourceAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, map[string]string{"contact_id": req.ContactID, "status": "suppressed"})
}

// DeleteSuppression handles DELETE /suppressions/{contactId}?channel=email
func (h *Handlers) DeleteSuppression(w http.ResponseWriter, r *http.Request) {
	err := h.suppressions.Remove(r.Context(), chi.URLParam(r, "contactId"), domain.Channel(r.URL.Query().Get("channel")))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}
