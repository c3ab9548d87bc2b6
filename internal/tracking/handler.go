// Package tracking serves the endpoints embedded in sent emails: the open
// pixel, click redirects and unsubscribe pages. Optionally it moves
// open and click events through an SQS queue.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/service/engagement"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Recorder accepts engagement events, either directly (engagement.Service)
// or through the queue (Publisher).
type Recorder interface {
	RecordOpen(ctx context.Context, campaignID, contactID string) error
	RecordClick(ctx context.Context, campaignID, contactID, url string) error
}

// Unsubscriber resolves unsubscribe tokens.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, token string) (*domain.Contact, error)
}

type Handler struct {
	recorder Recorder
	unsub    Unsubscriber
	tracker  *engagement.Tracker
	pub      *Publisher
}

// NewHandler creates the tracking handler. pub may be nil; when set,
// unsubscribes are also published as events.
func NewHandler(recorder Recorder, unsub Unsubscriber, tracker *engagement.Tracker, pub *Publisher) *Handler {
	return &Handler{recorder: recorder, unsub: unsub, tracker: tracker, pub: pub}
}

// Register adds the tracking routes to a router mounted at /campaigns.
func (h *Handler) Register(r chi.Router) {
	r.Get("/track/open/{campaignId}/{contactId}", h.HandleOpen)
	r.Get("/track/click/{campaignId}/{contactId}", h.HandleClick)
	r.Get("/unsubscribe/{token}", h.HandleUnsubscribe)
	r.Post("/unsubscribe/{token}", h.HandleUnsubscribe)
}

// HandleOpen always answers with the pixel, whatever happens to the event.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignId")
	contactID := chi.URLParam(r, "contactId")

	h.tracker.Go("open", func(ctx context.Context) error {
		return h.recorder.RecordOpen(ctx, campaignID, contactID)
	})
	h.servePixel(w)
}

// HandleClick redirects to the url query parameter whether or not the
// campaign and contact exist. Beyond a missing url it also answers 400 for
// relative and non-http(s) targets, so the endpoint is not an open redirect
// to javascript: or data: URLs. Links written by the renderer are always
// absolute http(s).
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignId")
	contactID := chi.URLParam(r, "contactId")

	target, err := redirectTarget(r.URL.Query().Get("url"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.tracker.Go("click", func(ctx context.Context) error {
		return h.recorder.RecordClick(ctx, campaignID, contactID, target)
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// redirectTarget accepts absolute http(s) URLs only.
func redirectTarget(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("missing url")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", errors.New("invalid url")
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return "", errors.New("invalid url")
	}
	return u.String(), nil
}

// HandleUnsubscribe serves both the link in the footer (GET) and RFC 8058
// one-click requests from mail clients (POST).
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	contact, err := h.unsub.Unsubscribe(r.Context(), token)
	switch {
	case errors.Is(err, domain.ErrInvalidToken):
		httputil.HTML(w, http.StatusNotFound, invalidTokenPage)
		return
	case err != nil:
		logger.Error("unsubscribe failed", "error", err)
		httputil.HTML(w, http.StatusInternalServerError, errorPage)
		return
	}

	logger.Info("contact unsubscribed", "contact_id", contact.ID, "method", r.Method)
	if h.pub != nil {
		evt := Event{
			EventType: EventUnsubscribe,
			ContactID: contact.ID,
			IPAddress: realIP(r),
			UserAgent: r.UserAgent(),
			Timestamp: time.Now().UTC(),
		}
		h.tracker.Go("unsubscribe", func(ctx context.Context) error {
			return h.pub.Publish(ctx, evt)
		})
	}
	httputil.HTML(w, http.StatusOK, confirmationPage(contact.Email))
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

const pageStyle = `font-family:Arial,sans-serif;text-align:center;padding:50px;`

func confirmationPage(email string) string {
	who := "You"
	if email != "" {
		who = html.EscapeString(email)
	}
	return fmt.Sprintf(`<!DOCTYPE html><html><body style="%s">
		<h1>You have been unsubscribed</h1>
		<p>%s will no longer receive campaign emails from us.</p>
	</body></html>`, pageStyle, who)
}

var invalidTokenPage = `<!DOCTYPE html><html><body style="` + pageStyle + `">
		<h1>Link not recognised</h1>
		<p>This unsubscribe link is invalid. Please use the link from a recent email.</p>
	</body></html>`

var errorPage = `<!DOCTYPE html><html><body style="` + pageStyle + `">
		<h1>Something went wrong</h1>
		<p>We could not process your request. Please try again later.</p>
	</body></html>`
