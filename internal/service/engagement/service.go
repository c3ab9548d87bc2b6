// Package engagement records opens and clicks against recipient rows and
// runs that work off the request path.
package engagement

import (
	"context"
	"time"

	"github.com/ignite/campaign-engine/internal/metrics"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Repository applies engagement counters. Both methods report false when
// no recipient row exists for the pair.
type Repository interface {
	RecordOpen(ctx context.Context, campaignID, contactID string, at time.Time) (bool, error)
	RecordClick(ctx context.Context, campaignID, contactID string, at time.Time) (bool, error)
}

// Service records engagement events. Unknown (campaign, contact) pairs are
// ignored rather than reported as errors.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SetClock replaces the time source for event timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// RecordOpen bumps the open counter and sets the first-open time once.
func (s *Service) RecordOpen(ctx context.Context, campaignID, contactID string) error {
	ok, err := s.repo.RecordOpen(ctx, campaignID, contactID, s.now().UTC())
	return s.result("open", campaignID, contactID, ok, err)
}

// RecordClick bumps the click counter and sets the first-click time once.
// The destination is only logged.
func (s *Service) RecordClick(ctx context.Context, campaignID, contactID, url string) error {
	ok, err := s.repo.RecordClick(ctx, campaignID, contactID, s.now().UTC())
	if err == nil && ok {
		logger.Debug("click recorded", "campaign_id", campaignID, "contact_id", contactID, "url", url)
	}
	return s.result("click", campaignID, contactID, ok, err)
}

func (s *Service) result(kind, campaignID, contactID string, ok bool, err error) error {
	switch {
	case err != nil:
		metrics.TrackingEvents.WithLabelValues(kind, "error").Inc()
		return err
	case !ok:
		metrics.TrackingEvents.WithLabelValues(kind, "ignored").Inc()
		logger.Debug("tracking event for unknown recipient", "kind", kind, "campaign_id", campaignID, "contact_id", contactID)
	default:
		metrics.TrackingEvents.WithLabelValues(kind, "recorded").Inc()
	}
	return nil
}
