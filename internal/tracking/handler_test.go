package tracking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/repository/memory"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/engagement"
	"github.com/ignite/campaign-engine/internal/service/suppression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store    *memory.Store
	tracker  *engagement.Tracker
	suppress *suppression.Service
	router   chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	store.Contacts().Put(domain.Contact{ID: "c-1", Email: "ana@example.com"})
	require.NoError(t, store.Campaigns().Create(context.Background(), &domain.Campaign{
		ID: "camp-1", Name: "n", Subject: "s", Status: domain.CampaignSending,
	}))
	_, err := store.Recipients().Snapshot(context.Background(), "camp-1", []domain.Contact{{ID: "c-1", Email: "ana@example.com"}})
	require.NoError(t, err)

	env := &testEnv{store: store, tracker: engagement.NewTracker(time.Second, 0)}
	env.suppress = suppression.NewService(store.Suppressions(), store.Tokens(), store.Contacts())
	h := NewHandler(engagement.NewService(store.Recipients()), env.suppress, env.tracker, nil)

	r := chi.NewRouter()
	r.Route("/campaigns", h.Register)
	env.router = r
	return env
}

func (e *testEnv) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	e.tracker.Wait()
	return rec
}

func (e *testEnv) recipient(t *testing.T) domain.CampaignRecipient {
	t.Helper()
	rows, _, err := e.store.Recipients().List(context.Background(), "camp-1", campaign.RecipientFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func TestOpen_ServesPixelAndCounts(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodGet, "/campaigns/track/open/camp-1/c-1")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
		assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
		assert.Equal(t, pixelGIF, rec.Body.Bytes())
	}

	r := env.recipient(t)
	assert.Equal(t, 2, r.OpenCount)
	assert.NotNil(t, r.OpenedAt)
}

func TestOpen_UnknownIDsStillServePixel(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/campaigns/track/open/nope/nobody")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
}

func TestClick_RedirectsAndCounts(t *testing.T) {
	env := newTestEnv(t)
	dest := "https://shop.example.com/a?x=1&y=2"

	rec := env.do(http.MethodGet, "/campaigns/track/click/camp-1/c-1?url="+url.QueryEscape(dest))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, dest, rec.Header().Get("Location"))

	r := env.recipient(t)
	assert.Equal(t, 1, r.ClickCount)
	assert.NotNil(t, r.ClickedAt)
}

func TestClick_UnknownIDsStillRedirect(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/campaigns/track/click/nope/nobody?url="+url.QueryEscape("https://example.com/"))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/", rec.Header().Get("Location"))
	assert.Equal(t, 0, env.recipient(t).ClickCount)
}

func TestClick_RejectsMissingOrUnsafeURL(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{"", "?url=", "?url=" + url.QueryEscape("javascript:alert(1)"), "?url=%2Frelative"} {
		rec := env.do(http.MethodGet, "/campaigns/track/click/camp-1/c-1"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	assert.Equal(t, 0, env.recipient(t).ClickCount)
}

func TestUnsubscribe_ConfirmsAndSuppresses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token, err := env.suppress.IssueToken(ctx, "c-1", domain.ChannelEmail)
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/campaigns/unsubscribe/"+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "You have been unsubscribed")
	assert.Contains(t, rec.Body.String(), "ana@example.com")

	ok, err := env.suppress.IsSuppressed(ctx, "c-1", domain.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, ok)

	// One-click POST with the same token is idempotent.
	rec = env.do(http.MethodPost, "/campaigns/unsubscribe/"+token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnsubscribe_InvalidTokenPage(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/campaigns/unsubscribe/not-a-token")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, rec.Body.String(), "Link not recognised")
}

func TestRedirectTarget(t *testing.T) {
	got, err := redirectTarget("HTTPS://Example.com/p")
	require.NoError(t, err)
	assert.Equal(t, "https://Example.com/p", got)

	_, err = redirectTarget("ftp://example.com")
	assert.Error(t, err)
}

// blockingRecorder holds every call until release is closed, then fails.
type blockingRecorder struct {
	release chan struct{}
	calls   chan string
}

func (b *blockingRecorder) RecordOpen(ctx context.Context, campaignID, contactID string) error {
	b.calls <- "open"
	<-b.release
	return errors.New("db: connection reset")
}

func (b *blockingRecorder) RecordClick(ctx context.Context, campaignID, contactID, url string) error {
	b.calls <- "click"
	<-b.release
	return errors.New("db: connection reset")
}

func TestResponsesDoNotWaitForRecorder(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{}), calls: make(chan string, 2)}
	tracker := engagement.NewTracker(10*time.Second, 0)
	h := NewHandler(rec, nil, tracker, nil)
	r := chi.NewRouter()
	r.Route("/campaigns", h.Register)

	open := httptest.NewRecorder()
	r.ServeHTTP(open, httptest.NewRequest(http.MethodGet, "/campaigns/track/open/camp-1/c-1", nil))
	click := httptest.NewRecorder()
	r.ServeHTTP(click, httptest.NewRequest(http.MethodGet,
		"/campaigns/track/click/camp-1/c-1?url="+url.QueryEscape("https://example.com"), nil))

	// Both responses are complete while the recorder is still blocked.
	assert.Equal(t, http.StatusOK, open.Code)
	assert.Equal(t, "image/gif", open.Header().Get("Content-Type"))
	assert.Equal(t, pixelGIF, open.Body.Bytes())
	assert.Equal(t, http.StatusFound, click.Code)
	assert.Equal(t, "https://example.com", click.Header().Get("Location"))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case kind := <-rec.calls:
			got[kind] = true
		case <-time.After(2 * time.Second):
			t.Fatal("recorder was never called")
		}
	}
	assert.Equal(t, map[string]bool{"open": true, "click": true}, got)

	close(rec.release)
	tracker.Wait()
}
