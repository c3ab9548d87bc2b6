package suppression

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu    sync.RWMutex
	store map[string]*domain.Suppression // keyed by "contactID:channel"
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]*domain.Suppression)}
}

func (m *mockRepo) key(contactID string, ch domain.Channel) string {
	return contactID + ":" + string(ch)
}

func (m *mockRepo) IsSuppressed(_ context.Context, contactID string, ch domain.Channel) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.store[m.key(contactID, ch)]
	return ok, nil
}

func (m *mockRepo) Suppress(_ context.Context, s *domain.Suppression) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(s.ContactID, s.Channel)
	if _, exists := m.store[k]; exists {
		return nil
	}
	m.store[k] = s
	return nil
}

func (m *mockRepo) Remove(_ context.Context, contactID string, ch domain.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(contactID, ch)
	if _, ok := m.store[k]; !ok {
		return ErrNotFound
	}
	delete(m.store, k)
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]domain.Suppression, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Suppression
	for _, s := range m.store {
		if f.Source != "" && string(s.Source) != f.Source {
			continue
		}
		result = append(result, *s)
	}
	return result, len(result), nil
}

type mockTokens struct {
	mu      sync.Mutex
	byToken map[string]*domain.UnsubscribeToken
	touched int
}

func newMockTokens() *mockTokens {
	return &mockTokens{byToken: make(map[string]*domain.UnsubscribeToken)}
}

func (m *mockTokens) GetOrCreate(_ context.Context, t *domain.UnsubscribeToken) (*domain.UnsubscribeToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byToken {
		if existing.ContactID == t.ContactID && existing.Scope == t.Scope {
			return existing, nil
		}
	}
	cp := *t
	m.byToken[t.Token] = &cp
	return &cp, nil
}

func (m *mockTokens) Lookup(_ context.Context, token string) (*domain.UnsubscribeToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTokens) Touch(_ context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.byToken[token]; ok {
		t.LastUsedAt = &at
		m.touched++
	}
	return nil
}

type mockContacts map[string]*domain.Contact

func (m mockContacts) Get(_ context.Context, id string) (*domain.Contact, error) {
	c, ok := m[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func newTestService() (*Service, *mockRepo, *mockTokens) {
	repo := newMockRepo()
	tokens := newMockTokens()
	contacts := mockContacts{
		"c-1": {ID: "c-1", Email: "ana@example.com", FirstName: "Ana"},
	}
	return NewService(repo, tokens, contacts), repo, tokens
}

func TestSuppress_AddsContactToList(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if err := svc.Suppress(ctx, "c-1", domain.ChannelEmail, "requested", domain.SourceAdmin); err != nil {
		t.Fatalf("Suppress: %v", err)
	}

	ok, err := svc.IsSuppressed(ctx, "c-1", domain.ChannelEmail)
	if err != nil {
		t.Fatalf("IsSuppressed: %v", err)
	}
	if !ok {
		t.Error("expected contact to be suppressed after Suppress()")
	}
}

func TestSuppress_Idempotent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Suppress(ctx, "c-1", "", "dup", domain.SourceBounce); err != nil {
			t.Fatalf("Suppress #%d: %v", i, err)
		}
	}

	_, total, _ := svc.List(ctx, ListFilter{})
	if total != 1 {
		t.Errorf("expected 1 suppression, got %d", total)
	}
}

func TestSuppress_EmptyContact_Fails(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.Suppress(context.Background(), " ", domain.ChannelEmail, "", domain.SourceAdmin)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestRemove_NotFound_ReturnsError(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.Remove(context.Background(), "ghost", domain.ChannelEmail)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIssueToken_OnePerContactAndScope(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.IssueToken(ctx, "c-1", domain.ChannelEmail)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}

	second, err := svc.IssueToken(ctx, "c-1", domain.ChannelEmail)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if first != second {
		t.Error("expected the same token on repeated issue")
	}

	other, _ := svc.IssueToken(ctx, "c-2", domain.ChannelEmail)
	if other == first {
		t.Error("expected distinct tokens for distinct contacts")
	}
}

func TestUnsubscribe_SuppressesAndStaysValid(t *testing.T) {
	svc, _, tokens := newTestService()
	ctx := context.Background()

	tok, _ := svc.IssueToken(ctx, "c-1", domain.ChannelEmail)

	for i := 0; i < 2; i++ {
		c, err := svc.Unsubscribe(ctx, tok)
		if err != nil {
			t.Fatalf("Unsubscribe #%d: %v", i, err)
		}
		if c.ID != "c-1" || c.FirstName != "Ana" {
			t.Errorf("unexpected contact: %+v", c)
		}
	}

	ok, _ := svc.IsSuppressed(ctx, "c-1", domain.ChannelEmail)
	if !ok {
		t.Error("expected contact to be suppressed")
	}
	_, total, _ := svc.List(ctx, ListFilter{})
	if total != 1 {
		t.Errorf("expected one suppression after repeated unsubscribe, got %d", total)
	}
	if tokens.touched != 2 {
		t.Errorf("expected token touched twice, got %d", tokens.touched)
	}
}

func TestUnsubscribe_InvalidToken(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	tok, _ := svc.IssueToken(ctx, "c-1", domain.ChannelEmail)

	cases := []string{"", "nope", tok[:len(tok)-1], tok + "0"}
	for _, tc := range cases {
		if _, err := svc.Unsubscribe(ctx, tc); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", tc, err)
		}
	}

	ok, _ := svc.IsSuppressed(ctx, "c-1", domain.ChannelEmail)
	if ok {
		t.Error("invalid tokens must not suppress anyone")
	}
}

func TestUnsubscribe_UnknownContactStillSuppresses(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	tok, _ := svc.IssueToken(ctx, "c-gone", domain.ChannelEmail)
	c, err := svc.Unsubscribe(ctx, tok)
	if err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if c.ID != "c-gone" {
		t.Errorf("expected contact id c-gone, got %q", c.ID)
	}
}
