package domain

import "time"

// EmailMessage is the fully-resolved message ready for a transport.
// By the time a message reaches this struct, all template substitution,
// tracking injection, and header generation is complete.
type EmailMessage struct {
	CampaignID  string            `json:"campaign_id"`
	ContactID   string            `json:"contact_id"`
	Email       string            `json:"email"`
	FromName    string            `json:"from_name"`
	FromEmail   string            `json:"from_email"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"html_content"`
	TextContent string            `json:"text_content"`
	Headers     map[string]string `json:"headers,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// SendResult is returned by a transport after it accepted a message.
type SendResult struct {
	MessageID string    `json:"message_id"`
	Transport string    `json:"transport"`
	SentAt    time.Time `json:"sent_at"`
}
