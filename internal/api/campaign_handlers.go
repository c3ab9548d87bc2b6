package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/service/audience"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

type createCampaignRequest struct {
	Name           string              `json:"name" validate:"required,max=255"`
	Subject        string              `json:"subject" validate:"required,max=998"`
	HTMLBody       string              `json:"html_body" validate:"required_without=TextBody"`
	TextBody       string              `json:"text_body"`
	FromName       string              `json:"from_name" validate:"max=255"`
	FromEmail      string              `json:"from_email" validate:"omitempty,email"`
	Type           domain.CampaignType `json:"campaign_type" validate:"omitempty,oneof=newsletter promotional educational reminder"`
	TargetAudience domain.Criteria     `json:"target_audience"`
}

type updateCampaignRequest struct {
	Name           *string              `json:"name" validate:"omitempty,min=1,max=255"`
	Subject        *string              `json:"subject" validate:"omitempty,min=1,max=998"`
	HTMLBody       *string              `json:"html_body"`
	TextBody       *string              `json:"text_body"`
	FromName       *string              `json:"from_name" validate:"omitempty,max=255"`
	FromEmail      *string              `json:"from_email" validate:"omitempty,email"`
	Type           *domain.CampaignType `json:"campaign_type" validate:"omitempty,oneof=newsletter promotional educational reminder"`
	TargetAudience *domain.Criteria     `json:"target_audience"`
}

type scheduleRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at" validate:"required"`
}

type previewRequest struct {
	Criteria   domain.Criteria `json:"criteria"`
	SampleSize int             `json:"sample_size" validate:"omitempty,min=1,max=100"`
}

type sendResponse struct {
	Campaign *domain.Campaign       `json:"campaign"`
	Dispatch *domain.DispatchResult `json:"dispatch"`
}

// ListCampaigns handles GET /campaigns
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	p := parseWindow(r, 50, 200)
	q := r.URL.Query()
	items, total, err := h.campaigns.List(r.Context(), campaign.ListFilter{
		Status: q.Get("status"),
		Type:   q.Get("type"),
		Search: q.Get("search"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []domain.Campaign{}
	}
	httputil.OK(w, newListPage(items, p, total))
}

// GetCampaign handles GET /campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, c)
}

// CreateCampaign handles POST /campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), campaign.CreateInput{
		Name:           req.Name,
		Subject:        req.Subject,
		HTMLBody:       req.HTMLBody,
		TextBody:       req.TextBody,
		FromName:       req.FromName,
		FromEmail:      req.FromEmail,
		Type:           req.Type,
		TargetAudience: req.TargetAudience,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, c)
}

// UpdateCampaign handles PUT /campaigns/{id}
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req updateCampaignRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	c, err := h.campaigns.Update(r.Context(), chi.URLParam(r, "id"), campaign.UpdateFields{
		Name:           req.Name,
		Subject:        req.Subject,
		HTMLBody:       req.HTMLBody,
		TextBody:       req.TextBody,
		FromName:       req.FromName,
		FromEmail:      req.FromEmail,
		Type:           req.Type,
		TargetAudience: req.TargetAudience,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, c)
}

// DeleteCampaign handles DELETE /campaigns/{id}
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

// SendCampaign handles POST /campaigns/{id}/send. The pass runs in the
// request; the response carries its tallies.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.dispatcher.Dispatch(r.Context(), id, domain.TriggerManual)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, sendResponse{Campaign: c, Dispatch: res})
}

// ScheduleCampaign handles POST /campaigns/{id}/schedule
func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	c, err := h.campaigns.Schedule(r.Context(), chi.URLParam(r, "id"), *req.ScheduledAt)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, c)
}

// CancelCampaign handles POST /campaigns/{id}/cancel
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, c)
}

// PreviewAudience handles POST /campaigns/preview-audience
func (h *Handlers) PreviewAudience(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	h.preview(w, r, req.Criteria, req.SampleSize)
}

// PreviewCampaignAudience handles POST /campaigns/{id}/preview-audience
// using the stored criteria of the campaign.
func (h *Handlers) PreviewCampaignAudience(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.preview(w, r, c.TargetAudience, audience.DefaultSampleSize)
}

func (h *Handlers) preview(w http.ResponseWriter, r *http.Request, c domain.Criteria, sample int) {
	p, err := h.audience.Preview(r.Context(), c, sample)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, p)
}

// ListRecipients handles GET /campaigns/{id}/recipients
func (h *Handlers) ListRecipients(w http.ResponseWriter, r *http.Request) {
	p := parseWindow(r, 100, 1000)
	items, total, err := h.campaigns.Recipients(r.Context(), chi.URLParam(r, "id"), campaign.RecipientFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []domain.CampaignRecipient{}
	}
	httputil.OK(w, newListPage(items, p, total))
}

// CampaignStats handles GET /campaigns/{id}/stats
func (h *Handlers) CampaignStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.campaigns.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, st)
}
