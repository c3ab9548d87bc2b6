package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Resume continues a pass that was interrupted while the campaign was
// SENDING. Rows already SENT or FAILED are never sent again.
func (d *Dispatcher) Resume(ctx context.Context, campaignID string) (*domain.DispatchResult, error) {
	return d.Dispatch(ctx, campaignID, domain.TriggerRecovery)
}

// RecoverInterrupted resumes every campaign left in SENDING. Campaigns whose
// lock is held are being sent by a live pass and are skipped.
func (d *Dispatcher) RecoverInterrupted(ctx context.Context) (string, error) {
	campaigns, err := d.campaigns.Interrupted(ctx)
	if err != nil {
		return "", fmt.Errorf("list interrupted campaigns: %w", err)
	}

	var resumed, skipped int
	var errs []error
	for _, c := range campaigns {
		res, err := d.Resume(ctx, c.ID)
		switch {
		case errors.Is(err, ErrAlreadyInProgress), errors.Is(err, ErrInvalidState):
			skipped++
		case err != nil:
			logger.Error("resume dispatch", "campaign_id", c.ID, "error", err)
			errs = append(errs, err)
		default:
			resumed++
			logger.Info("dispatch resumed", "campaign_id", c.ID, "sent", res.Sent, "failed", res.Failed)
		}
	}
	return fmt.Sprintf("resumed %d, skipped %d, failed %d", resumed, skipped, len(errs)), errors.Join(errs...)
}

// DispatchDue sends every scheduled campaign whose time has arrived. It is
// the handler of the dispatch_due_campaigns job.
func (d *Dispatcher) DispatchDue(ctx context.Context) (string, error) {
	due, err := d.campaigns.Due(ctx)
	if err != nil {
		return "", fmt.Errorf("list due campaigns: %w", err)
	}

	var sent, empty, skipped int
	var errs []error
	for _, c := range due {
		_, err := d.Dispatch(ctx, c.ID, domain.TriggerScheduled)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrNoRecipients):
			// Stays SCHEDULED; picked up again once the audience is non-empty.
			empty++
			logger.Warn("due campaign has no recipients", "campaign_id", c.ID)
		case errors.Is(err, ErrAlreadyInProgress), errors.Is(err, ErrInvalidState):
			skipped++
		default:
			logger.Error("scheduled dispatch", "campaign_id", c.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return fmt.Sprintf("due %d, dispatched %d, empty %d, skipped %d, failed %d",
		len(due), sent, empty, skipped, len(errs)), errors.Join(errs...)
}
