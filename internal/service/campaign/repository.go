package campaign

import (
	"context"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update modifies a draft campaign. Only non-nil fields are applied.
	// Returns ErrInvalidState if the campaign left DRAFT concurrently.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a campaign whose status is one of allowed, together
	// with its recipient rows.
	Delete(ctx context.Context, id string, allowed []domain.CampaignStatus) error

	// Transition atomically moves a campaign from one of the from statuses
	// to the to status. Returns ErrNotFound if the campaign is absent and
	// ErrInvalidState if its current status is not in from.
	Transition(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus, f TransitionFields) error

	// Due returns SCHEDULED campaigns whose scheduled_at is at or before now,
	// oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)

	// ListByStatus returns every campaign in the given status.
	ListByStatus(ctx context.Context, status domain.CampaignStatus) ([]domain.Campaign, error)
}

// RecipientRepository stores the per-contact delivery records of a campaign.
type RecipientRepository interface {
	// Snapshot inserts one PENDING row per contact in a single batch. Rows
	// that already exist are left untouched. Returns the number inserted.
	Snapshot(ctx context.Context, campaignID string, contacts []domain.Contact) (int, error)

	// Count returns the number of recipient rows for a campaign.
	Count(ctx context.Context, campaignID string) (int, error)

	// Pending returns rows still awaiting a send outcome.
	Pending(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error)

	// MarkSent records a transport success for a PENDING row.
	MarkSent(ctx context.Context, campaignID, contactID, messageID string, at time.Time) error

	// MarkFailed records a transport failure for a PENDING row.
	MarkFailed(ctx context.Context, campaignID, contactID, reason string) error

	// RecordOpen increments open_count and sets opened_at on the first open.
	// Returns false if no such recipient exists.
	RecordOpen(ctx context.Context, campaignID, contactID string, at time.Time) (bool, error)

	// RecordClick increments click_count and sets clicked_at on the first click.
	// Returns false if no such recipient exists.
	RecordClick(ctx context.Context, campaignID, contactID string, at time.Time) (bool, error)

	// List returns recipient rows for a campaign ordered by contact id.
	List(ctx context.Context, campaignID string, filter RecipientFilter) ([]domain.CampaignRecipient, int, error)

	// Stats aggregates recipient rows for a campaign.
	Stats(ctx context.Context, campaignID string) (*domain.RecipientStats, error)
}

// Audience is the part of the audience resolver the store needs: criteria
// validation on edit and an eligibility count on schedule.
type Audience interface {
	Validate(c domain.Criteria) error
	Count(ctx context.Context, c domain.Criteria) (int, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Type   string
	Search string
	Limit  int
	Offset int
}

// RecipientFilter controls pagination and filtering for recipient lists.
type RecipientFilter struct {
	Status string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name           *string
	Subject        *string
	HTMLBody       *string
	TextBody       *string
	FromName       *string
	FromEmail      *string
	Type           *domain.CampaignType
	TargetAudience *domain.Criteria
}

// Empty reports whether the update changes nothing.
func (u UpdateFields) Empty() bool {
	return u.Name == nil && u.Subject == nil && u.HTMLBody == nil && u.TextBody == nil &&
		u.FromName == nil && u.FromEmail == nil && u.Type == nil && u.TargetAudience == nil
}

// TransitionFields are written together with a status change.
type TransitionFields struct {
	ScheduledAt   *time.Time
	ClearSchedule bool
	SentAt        *time.Time
}
