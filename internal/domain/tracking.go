package domain

import "time"

// TrackingEventType enumerates the engagement events the engine records.
type TrackingEventType string

const (
	EventOpen        TrackingEventType = "open"
	EventClick       TrackingEventType = "click"
	EventUnsubscribe TrackingEventType = "unsubscribe"
)

// TrackingEvent is a single engagement signal from a recipient.
type TrackingEvent struct {
	EventType  TrackingEventType `json:"event_type"`
	CampaignID string            `json:"campaign_id"`
	ContactID  string            `json:"contact_id"`
	URL        string            `json:"url,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
