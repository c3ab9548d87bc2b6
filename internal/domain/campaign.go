package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignSending, CampaignSent, CampaignCancelled:
		return true
	}
	return false
}

// CampaignType classifies the content of a campaign.
type CampaignType string

const (
	TypeNewsletter  CampaignType = "newsletter"
	TypePromotional CampaignType = "promotional"
	TypeEducational CampaignType = "educational"
	TypeReminder    CampaignType = "reminder"
)

// Valid reports whether t is a known campaign type.
func (t CampaignType) Valid() bool {
	switch t {
	case TypeNewsletter, TypePromotional, TypeEducational, TypeReminder:
		return true
	}
	return false
}

// Campaign represents a bulk email send definition with its lifecycle state.
type Campaign struct {
	ID             string         `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	Subject        string         `json:"subject" db:"subject"`
	HTMLBody       string         `json:"html_body" db:"html_body"`
	TextBody       string         `json:"text_body" db:"text_body"`
	FromName       string         `json:"from_name" db:"from_name"`
	FromEmail      string         `json:"from_email" db:"from_email"`
	Type           CampaignType   `json:"campaign_type" db:"campaign_type"`
	Status         CampaignStatus `json:"status" db:"status"`
	TargetAudience Criteria       `json:"target_audience" db:"target_audience"`
	ScheduledAt    *time.Time     `json:"scheduled_at" db:"scheduled_at"`
	SentAt         *time.Time     `json:"sent_at" db:"sent_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignCancelled
}

// Editable returns true while body, subject, type and audience may change.
func (c *Campaign) Editable() bool {
	return c.Status == CampaignDraft
}

// Cancellable returns true if cancel is a legal transition from the current state.
func (c *Campaign) Cancellable() bool {
	return c.Status == CampaignScheduled || c.Status == CampaignSending
}

// IsDue returns true if a scheduled campaign's send time has arrived.
func (c *Campaign) IsDue(now time.Time) bool {
	return c.Status == CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now)
}

// DispatchTrigger identifies what started a dispatch pass.
type DispatchTrigger string

const (
	TriggerManual    DispatchTrigger = "manual"
	TriggerScheduled DispatchTrigger = "scheduled"
	TriggerRecovery  DispatchTrigger = "recovery"
)

// DispatchResult summarizes one dispatch pass over a campaign's audience.
type DispatchResult struct {
	CampaignID string          `json:"campaign_id"`
	Trigger    DispatchTrigger `json:"trigger"`
	Recipients int             `json:"recipients"`
	Sent       int             `json:"sent"`
	Failed     int             `json:"failed"`
	Status     CampaignStatus  `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}
