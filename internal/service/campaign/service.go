package campaign

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// DefaultDueBatch caps how many due campaigns one scheduler tick picks up.
const DefaultDueBatch = 100

// Service implements campaign business logic. It coordinates between the
// repositories and the audience resolver. All public methods are safe for
// concurrent use if the underlying repositories are concurrency-safe.
type Service struct {
	repo       Repository
	recipients RecipientRepository
	audience   Audience
	now        func() time.Time
}

// NewService creates a campaign service backed by the given repositories.
func NewService(repo Repository, recipients RecipientRepository, audience Audience) *Service {
	return &Service{
		repo:       repo,
		recipients: recipients,
		audience:   audience,
		now:        time.Now,
	}
}

// SetClock replaces the time source used for schedule validation.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name           string              `json:"name"`
	Subject        string              `json:"subject"`
	HTMLBody       string              `json:"html_body"`
	TextBody       string              `json:"text_body"`
	FromName       string              `json:"from_name"`
	FromEmail      string              `json:"from_email"`
	Type           domain.CampaignType `json:"campaign_type"`
	TargetAudience domain.Criteria     `json:"target_audience"`
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	if f.Status != "" && !domain.CampaignStatus(f.Status).Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	return s.repo.List(ctx, f)
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(input.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if input.Type == "" {
		input.Type = domain.TypeNewsletter
	}
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown campaign type %q", ErrValidation, input.Type)
	}
	if err := validateFromEmail(input.FromEmail); err != nil {
		return nil, err
	}
	if err := s.audience.Validate(input.TargetAudience); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &domain.Campaign{
		ID:             uuid.New().String(),
		Name:           strings.TrimSpace(input.Name),
		Subject:        input.Subject,
		HTMLBody:       input.HTMLBody,
		TextBody:       input.TextBody,
		FromName:       input.FromName,
		FromEmail:      input.FromEmail,
		Type:           input.Type,
		Status:         domain.CampaignDraft,
		TargetAudience: input.TargetAudience,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update modifies mutable campaign fields. Only draft campaigns can be edited.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Editable() {
		return nil, fmt.Errorf("campaign %s cannot be edited in status %s: %w", id, c.Status, ErrInvalidState)
	}

	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}
	if u.Subject != nil && strings.TrimSpace(*u.Subject) == "" {
		return nil, fmt.Errorf("%w: subject cannot be empty", ErrValidation)
	}
	if u.Type != nil && !u.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown campaign type %q", ErrValidation, *u.Type)
	}
	if u.FromEmail != nil {
		if err := validateFromEmail(*u.FromEmail); err != nil {
			return nil, err
		}
	}
	if u.TargetAudience != nil {
		if err := s.audience.Validate(*u.TargetAudience); err != nil {
			return nil, err
		}
	}

	if !u.Empty() {
		if err := s.repo.Update(ctx, id, u); err != nil {
			return nil, err
		}
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a draft or cancelled campaign and its recipient rows.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignCancelled {
		return fmt.Errorf("campaign %s cannot be deleted in status %s: %w", id, c.Status, ErrInvalidState)
	}
	return s.repo.Delete(ctx, id, []domain.CampaignStatus{domain.CampaignDraft, domain.CampaignCancelled})
}

// Schedule sets a future send time. The audience is evaluated now only to
// reject empty campaigns; the real snapshot is taken at dispatch.
func (s *Service) Schedule(ctx context.Context, id string, at time.Time) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return nil, fmt.Errorf("campaign %s cannot be scheduled in status %s: %w", id, c.Status, ErrInvalidState)
	}
	if at.IsZero() {
		return nil, fmt.Errorf("%w: scheduled_at is required", ErrValidation)
	}
	if !at.After(s.now()) {
		return nil, fmt.Errorf("%w: scheduled_at must be in the future", ErrValidation)
	}

	n, err := s.audience.Count(ctx, c.TargetAudience)
	if err != nil {
		return nil, fmt.Errorf("count audience: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("campaign %s: %w", id, ErrNoRecipients)
	}

	at = at.UTC()
	err = s.repo.Transition(ctx, id,
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled},
		domain.CampaignScheduled,
		TransitionFields{ScheduledAt: &at},
	)
	if err != nil {
		return nil, err
	}
	logger.Info("campaign scheduled", "campaign_id", id, "scheduled_at", at.Format(time.RFC3339), "eligible", n)
	return s.repo.Get(ctx, id)
}

// Cancel stops a scheduled campaign, or flags a sending one so that its
// pass does not mark it SENT. Recipients already sent stay sent.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Campaign, error) {
	err := s.repo.Transition(ctx, id,
		[]domain.CampaignStatus{domain.CampaignScheduled, domain.CampaignSending},
		domain.CampaignCancelled,
		TransitionFields{},
	)
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			return nil, fmt.Errorf("campaign %s cannot be cancelled: %w", id, err)
		}
		return nil, err
	}
	logger.Info("campaign cancelled", "campaign_id", id)
	return s.repo.Get(ctx, id)
}

// MarkSending moves a campaign from the given status to SENDING. It fails
// with ErrInvalidState if the status changed since the caller read it.
func (s *Service) MarkSending(ctx context.Context, id string, from domain.CampaignStatus) error {
	return s.repo.Transition(ctx, id, []domain.CampaignStatus{from}, domain.CampaignSending, TransitionFields{})
}

// MarkSent completes a dispatch. sent_at is written exactly once, here.
func (s *Service) MarkSent(ctx context.Context, id string) (time.Time, error) {
	at := s.now().UTC()
	err := s.repo.Transition(ctx, id,
		[]domain.CampaignStatus{domain.CampaignSending},
		domain.CampaignSent,
		TransitionFields{SentAt: &at},
	)
	return at, err
}

// Revert puts a SENDING campaign back to the status it had before dispatch.
func (s *Service) Revert(ctx context.Context, id string, to domain.CampaignStatus) error {
	if to != domain.CampaignDraft && to != domain.CampaignScheduled {
		return fmt.Errorf("%w: cannot revert to %s", ErrInvalidState, to)
	}
	return s.repo.Transition(ctx, id, []domain.CampaignStatus{domain.CampaignSending}, to, TransitionFields{})
}

// Due returns scheduled campaigns whose send time has arrived.
func (s *Service) Due(ctx context.Context) ([]domain.Campaign, error) {
	return s.repo.Due(ctx, s.now(), DefaultDueBatch)
}

// Interrupted returns campaigns left in SENDING, typically by a crash.
func (s *Service) Interrupted(ctx context.Context) ([]domain.Campaign, error) {
	return s.repo.ListByStatus(ctx, domain.CampaignSending)
}

// Snapshot creates the PENDING recipient rows for a dispatch.
func (s *Service) Snapshot(ctx context.Context, id string, contacts []domain.Contact) (int, error) {
	return s.recipients.Snapshot(ctx, id, contacts)
}

// RecipientCount returns how many recipient rows a campaign has.
func (s *Service) RecipientCount(ctx context.Context, id string) (int, error) {
	return s.recipients.Count(ctx, id)
}

// Pending returns the recipients still awaiting an outcome.
func (s *Service) Pending(ctx context.Context, id string) ([]domain.CampaignRecipient, error) {
	return s.recipients.Pending(ctx, id)
}

// MarkDelivered records a transport success.
func (s *Service) MarkDelivered(ctx context.Context, id, contactID, messageID string) error {
	return s.recipients.MarkSent(ctx, id, contactID, messageID, s.now().UTC())
}

// MarkFailed records a transport failure.
func (s *Service) MarkFailed(ctx context.Context, id, contactID, reason string) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return s.recipients.MarkFailed(ctx, id, contactID, reason)
}

// Recipients lists the delivery records of a campaign.
func (s *Service) Recipients(ctx context.Context, id string, f RecipientFilter) ([]domain.CampaignRecipient, int, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.recipients.List(ctx, id, f)
}

// Stats aggregates the delivery records of a campaign.
func (s *Service) Stats(ctx context.Context, id string) (*domain.RecipientStats, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.recipients.Stats(ctx, id)
}

func validateFromEmail(addr string) error {
	if addr == "" {
		return nil
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return fmt.Errorf("%w: from_email %q is not a valid address", ErrValidation, addr)
	}
	return nil
}
