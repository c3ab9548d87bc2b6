package memory

import (
	"context"
	"sort"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/audience"
)

// ContactRepo serves contacts and evaluates audiences in memory.
type ContactRepo struct{ s *Store }

var _ audience.Repository = (*ContactRepo)(nil)

// Put inserts or replaces contacts.
func (r *ContactRepo) Put(contacts ...domain.Contact) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range contacts {
		cp := c
		cp.Tags = append([]string(nil), c.Tags...)
		r.s.contacts[c.ID] = &cp
	}
}

// Remove deletes a contact.
func (r *ContactRepo) Remove(id string) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.contacts, id)
}

func (r *ContactRepo) Get(_ context.Context, id string) (*domain.Contact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.contacts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *ContactRepo) Find(_ context.Context, q audience.Query) ([]domain.Contact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := r.match(q)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *ContactRepo) Count(_ context.Context, q audience.Query) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.match(q)), nil
}

// match must be called with the read lock held.
func (r *ContactRepo) match(q audience.Query) []domain.Contact {
	var out []domain.Contact
	for _, c := range r.s.contacts {
		if c.Email == "" {
			continue
		}
		if _, suppressed := r.s.suppressions[suppressionKey(c.ID, q.Channel)]; suppressed {
			continue
		}
		if !q.Root.Matches(c, q.Now) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
