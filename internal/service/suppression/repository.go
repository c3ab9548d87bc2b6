package suppression

import (
	"context"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Repository defines the data access contract for the suppression list.
type Repository interface {
	// IsSuppressed returns true if the contact is suppressed on the channel.
	IsSuppressed(ctx context.Context, contactID string, channel domain.Channel) (bool, error)

	// Suppress adds a contact to the suppression list. If it already exists,
	// the existing record is preserved (idempotent).
	Suppress(ctx context.Context, s *domain.Suppression) error

	// Remove deletes a suppression entry. Returns ErrNotFound if it doesn't exist.
	Remove(ctx context.Context, contactID string, channel domain.Channel) error

	// List returns suppression entries matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error)
}

// TokenRepository stores unsubscribe tokens.
type TokenRepository interface {
	// GetOrCreate stores t unless a token already exists for the same
	// contact and scope, in which case the stored token is returned.
	GetOrCreate(ctx context.Context, t *domain.UnsubscribeToken) (*domain.UnsubscribeToken, error)

	// Lookup finds a token by exact value. Returns ErrNotFound if absent.
	Lookup(ctx context.Context, token string) (*domain.UnsubscribeToken, error)

	// Touch records a use of the token.
	Touch(ctx context.Context, token string, at time.Time) error
}

// ContactReader resolves the contact behind a token.
type ContactReader interface {
	Get(ctx context.Context, id string) (*domain.Contact, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Channel string
	Source  string
	Limit   int
	Offset  int
}
