package domain

import "time"

// Channel identifies the delivery channel a suppression applies to.
type Channel string

const (
	ChannelEmail Channel = "email"
)

// SuppressionSource indicates where the suppression signal originated.
type SuppressionSource string

const (
	SourceUnsubscribe SuppressionSource = "unsubscribe"
	SourceAdmin       SuppressionSource = "admin"
	SourceBounce      SuppressionSource = "bounce"
)

// Suppression excludes one contact from future audience resolution on a channel.
// A row's presence means the suppression is active.
type Suppression struct {
	ContactID string            `json:"contact_id" db:"contact_id"`
	Channel   Channel           `json:"channel" db:"channel"`
	Reason    string            `json:"reason" db:"reason"`
	Source    SuppressionSource `json:"source" db:"source"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// UnsubscribeToken is an opaque capability bound to one (contact, scope)
// pair. It is matched exactly and never parsed for meaning.
type UnsubscribeToken struct {
	Token      string     `json:"-" db:"token"`
	ContactID  string     `json:"contact_id" db:"contact_id"`
	Scope      Channel    `json:"scope" db:"scope"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}
