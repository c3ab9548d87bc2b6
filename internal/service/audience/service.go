package audience

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

const (
	DefaultSampleSize = 10
	MaxSampleSize     = 100
)

// Preview is the cheap view of an audience: a count and a few contacts.
type Preview struct {
	Count  int              `json:"count"`
	Sample []domain.Contact `json:"sample"`
}

// Service resolves criteria into contacts. It never writes.
type Service struct {
	repo    Repository
	channel domain.Channel
	now     func() time.Time
}

// NewService creates an audience service for the email channel.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, channel: domain.ChannelEmail, now: time.Now}
}

// SetClock replaces the reference time used for age and date predicates.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Validate checks criteria against the field schema.
func (s *Service) Validate(c domain.Criteria) error {
	return Validate(c)
}

// Count returns the number of eligible contacts.
func (s *Service) Count(ctx context.Context, c domain.Criteria) (int, error) {
	root, err := Parse(c)
	if err != nil {
		return 0, err
	}
	return s.repo.Count(ctx, s.query(root, 0))
}

// Preview returns the eligible count and up to sampleSize contacts. It does
// not materialize recipient rows.
func (s *Service) Preview(ctx context.Context, c domain.Criteria, sampleSize int) (*Preview, error) {
	root, err := Parse(c)
	if err != nil {
		return nil, err
	}
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	if sampleSize > MaxSampleSize {
		sampleSize = MaxSampleSize
	}

	q := s.query(root, 0)
	n, err := s.repo.Count(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count audience: %w", err)
	}
	q.Limit = sampleSize
	sample, err := s.repo.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sample audience: %w", err)
	}
	if sample == nil {
		sample = []domain.Contact{}
	}
	return &Preview{Count: n, Sample: sample}, nil
}

// ResolveFull runs a fresh query for dispatch. The result is ordered by
// contact id and free of duplicates.
func (s *Service) ResolveFull(ctx context.Context, c domain.Criteria) ([]domain.Contact, error) {
	root, err := Parse(c)
	if err != nil {
		return nil, err
	}
	contacts, err := s.repo.Find(ctx, s.query(root, 0))
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}
	return dedupe(contacts), nil
}

func (s *Service) query(root *Node, limit int) Query {
	return Query{Root: root, Channel: s.channel, Now: s.now().UTC(), Limit: limit}
}

func dedupe(contacts []domain.Contact) []domain.Contact {
	sort.SliceStable(contacts, func(i, j int) bool { return contacts[i].ID < contacts[j].ID })
	out := make([]domain.Contact, 0, len(contacts))
	for _, c := range contacts {
		if len(out) > 0 && out[len(out)-1].ID == c.ID {
			continue
		}
		out = append(out, c)
	}
	return out
}
