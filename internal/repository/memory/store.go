// Package memory provides in-process implementations of every repository
// contract. They back the engine when no database is configured and give
// service tests a real store to run against.
package memory

import (
	"sync"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Store holds all state behind one lock so that cross-entity rules
// (recipient rows die with their campaign, suppressions filter audiences)
// see a consistent view.
type Store struct {
	mu           sync.RWMutex
	campaigns    map[string]*domain.Campaign
	recipients   map[string]map[string]*domain.CampaignRecipient // campaign id -> contact id
	contacts     map[string]*domain.Contact
	suppressions map[string]*domain.Suppression // contact id + ":" + channel
	tokens       map[string]*domain.UnsubscribeToken
	jobs         map[string]*domain.ScheduledJob
}

// New creates an empty store.
func New() *Store {
	return &Store{
		campaigns:    make(map[string]*domain.Campaign),
		recipients:   make(map[string]map[string]*domain.CampaignRecipient),
		contacts:     make(map[string]*domain.Contact),
		suppressions: make(map[string]*domain.Suppression),
		tokens:       make(map[string]*domain.UnsubscribeToken),
		jobs:         make(map[string]*domain.ScheduledJob),
	}
}

// Campaigns returns the campaign repository view.
func (s *Store) Campaigns() *CampaignRepo { return &CampaignRepo{s: s} }

// Recipients returns the recipient repository view.
func (s *Store) Recipients() *RecipientRepo { return &RecipientRepo{s: s} }

// Contacts returns the contact and audience repository view.
func (s *Store) Contacts() *ContactRepo { return &ContactRepo{s: s} }

// Suppressions returns the suppression repository view.
func (s *Store) Suppressions() *SuppressionRepo { return &SuppressionRepo{s: s} }

// Tokens returns the unsubscribe token repository view.
func (s *Store) Tokens() *TokenRepo { return &TokenRepo{s: s} }

// Jobs returns the scheduled job store view.
func (s *Store) Jobs() *JobRepo { return &JobRepo{s: s} }

func suppressionKey(contactID string, ch domain.Channel) string {
	return contactID + ":" + string(ch)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func page(total, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return offset, end
}
