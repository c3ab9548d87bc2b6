package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// RecipientRepo implements campaign.RecipientRepository in memory.
type RecipientRepo struct{ s *Store }

var _ campaign.RecipientRepository = (*RecipientRepo)(nil)

func cloneRecipient(r *domain.CampaignRecipient) domain.CampaignRecipient {
	cp := *r
	cp.SentAt = copyTime(r.SentAt)
	cp.OpenedAt = copyTime(r.OpenedAt)
	cp.ClickedAt = copyTime(r.ClickedAt)
	return cp
}

func (r *RecipientRepo) Snapshot(_ context.Context, campaignID string, contacts []domain.Contact) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.campaigns[campaignID]; !ok {
		return 0, campaign.ErrNotFound
	}
	rows := r.s.recipients[campaignID]
	if rows == nil {
		rows = make(map[string]*domain.CampaignRecipient, len(contacts))
		r.s.recipients[campaignID] = rows
	}
	now := time.Now().UTC()
	inserted := 0
	for _, c := range contacts {
		if _, exists := rows[c.ID]; exists {
			continue
		}
		rows[c.ID] = &domain.CampaignRecipient{
			CampaignID: campaignID,
			ContactID:  c.ID,
			Email:      c.Email,
			Status:     domain.RecipientPending,
			CreatedAt:  now,
		}
		inserted++
	}
	return inserted, nil
}

func (r *RecipientRepo) Count(_ context.Context, campaignID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.recipients[campaignID]), nil
}

func (r *RecipientRepo) Pending(_ context.Context, campaignID string) ([]domain.CampaignRecipient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.CampaignRecipient
	for _, row := range r.s.recipients[campaignID] {
		if row.Status == domain.RecipientPending {
			out = append(out, cloneRecipient(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContactID < out[j].ContactID })
	return out, nil
}

func (r *RecipientRepo) MarkSent(_ context.Context, campaignID, contactID, messageID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.recipients[campaignID][contactID]
	if !ok {
		return campaign.ErrNotFound
	}
	if row.Status != domain.RecipientPending {
		return nil
	}
	row.Status = domain.RecipientSent
	row.MessageID = messageID
	row.SentAt = copyTime(&at)
	return nil
}

func (r *RecipientRepo) MarkFailed(_ context.Context, campaignID, contactID, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.recipients[campaignID][contactID]
	if !ok {
		return campaign.ErrNotFound
	}
	if row.Status != domain.RecipientPending {
		return nil
	}
	row.Status = domain.RecipientFailed
	row.FailureReason = reason
	return nil
}

func (r *RecipientRepo) RecordOpen(_ context.Context, campaignID, contactID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.recipients[campaignID][contactID]
	if !ok {
		return false, nil
	}
	row.OpenCount++
	if row.OpenedAt == nil {
		row.OpenedAt = copyTime(&at)
	}
	return true, nil
}

func (r *RecipientRepo) RecordClick(_ context.Context, campaignID, contactID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.recipients[campaignID][contactID]
	if !ok {
		return false, nil
	}
	row.ClickCount++
	if row.ClickedAt == nil {
		row.ClickedAt = copyTime(&at)
	}
	return true, nil
}

func (r *RecipientRepo) List(_ context.Context, campaignID string, f campaign.RecipientFilter) ([]domain.CampaignRecipient, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.CampaignRecipient
	for _, row := range r.s.recipients[campaignID] {
		if f.Status != "" && string(row.Status) != f.Status {
			continue
		}
		out = append(out, cloneRecipient(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContactID < out[j].ContactID })

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	from, to := page(len(out), limit, f.Offset)
	return out[from:to], len(out), nil
}

func (r *RecipientRepo) Stats(_ context.Context, campaignID string) (*domain.RecipientStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st := &domain.RecipientStats{}
	for _, row := range r.s.recipients[campaignID] {
		st.Total++
		switch row.Status {
		case domain.RecipientPending:
			st.Pending++
		case domain.RecipientSent:
			st.Sent++
		case domain.RecipientFailed:
			st.Failed++
		case domain.RecipientBounced:
			st.Bounced++
		}
		if row.OpenedAt != nil {
			st.Opened++
		}
		if row.ClickedAt != nil {
			st.Clicked++
		}
		st.Opens += row.OpenCount
		st.Clicks += row.ClickCount
	}
	return st, nil
}
