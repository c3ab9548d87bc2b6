package domain

import "time"

// RecipientStatus enumerates the delivery state of one contact for one campaign.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
	RecipientBounced RecipientStatus = "bounced"
)

// CampaignRecipient is one contact's delivery record for one campaign.
// Exactly one row exists per (CampaignID, ContactID); rows are created in a
// single batch when dispatch begins.
type CampaignRecipient struct {
	CampaignID    string          `json:"campaign_id" db:"campaign_id"`
	ContactID     string          `json:"contact_id" db:"contact_id"`
	Email         string          `json:"email" db:"email"`
	Status        RecipientStatus `json:"status" db:"status"`
	MessageID     string          `json:"message_id,omitempty" db:"message_id"`
	FailureReason string          `json:"failure_reason,omitempty" db:"failure_reason"`
	SentAt        *time.Time      `json:"sent_at" db:"sent_at"`
	OpenedAt      *time.Time      `json:"opened_at" db:"opened_at"`
	OpenCount     int             `json:"open_count" db:"open_count"`
	ClickedAt     *time.Time      `json:"clicked_at" db:"clicked_at"`
	ClickCount    int             `json:"click_count" db:"click_count"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// RecipientStats aggregates recipient rows for a campaign.
type RecipientStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Bounced int `json:"bounced"`
	Opened  int `json:"opened"`
	Clicked int `json:"clicked"`
	Opens   int `json:"opens"`
	Clicks  int `json:"clicks"`
}
