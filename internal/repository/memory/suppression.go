package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository in memory.
type SuppressionRepo struct{ s *Store }

var _ suppression.Repository = (*SuppressionRepo)(nil)

func (r *SuppressionRepo) IsSuppressed(_ context.Context, contactID string, ch domain.Channel) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.suppressions[suppressionKey(contactID, ch)]
	return ok, nil
}

func (r *SuppressionRepo) Suppress(_ context.Context, sup *domain.Suppression) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := suppressionKey(sup.ContactID, sup.Channel)
	if _, exists := r.s.suppressions[k]; exists {
		return nil
	}
	cp := *sup
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.s.suppressions[k] = &cp
	return nil
}

func (r *SuppressionRepo) Remove(_ context.Context, contactID string, ch domain.Channel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := suppressionKey(contactID, ch)
	if _, ok := r.s.suppressions[k]; !ok {
		return suppression.ErrNotFound
	}
	delete(r.s.suppressions, k)
	return nil
}

func (r *SuppressionRepo) List(_ context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Suppression
	for _, sup := range r.s.suppressions {
		if f.Channel != "" && string(sup.Channel) != f.Channel {
			continue
		}
		if f.Source != "" && string(sup.Source) != f.Source {
			continue
		}
		out = append(out, *sup)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ContactID < out[j].ContactID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	from, to := page(len(out), f.Limit, f.Offset)
	return out[from:to], len(out), nil
}

// TokenRepo implements suppression.TokenRepository in memory.
type TokenRepo struct{ s *Store }

var _ suppression.TokenRepository = (*TokenRepo)(nil)

func (r *TokenRepo) GetOrCreate(_ context.Context, t *domain.UnsubscribeToken) (*domain.UnsubscribeToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.tokens {
		if existing.ContactID == t.ContactID && existing.Scope == t.Scope {
			cp := *existing
			return &cp, nil
		}
	}
	cp := *t
	r.s.tokens[t.Token] = &cp
	out := cp
	return &out, nil
}

func (r *TokenRepo) Lookup(_ context.Context, token string) (*domain.UnsubscribeToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tokens[token]
	if !ok {
		return nil, suppression.ErrNotFound
	}
	cp := *t
	cp.LastUsedAt = copyTime(t.LastUsedAt)
	return &cp, nil
}

func (r *TokenRepo) Touch(_ context.Context, token string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tokens[token]; ok {
		t.LastUsedAt = copyTime(&at)
	}
	return nil
}
