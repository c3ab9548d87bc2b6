package audience

import (
	"context"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Repository runs parsed criteria against the contact store.
type Repository interface {
	// Find returns matching contacts ordered by id. Contacts suppressed on
	// q.Channel or without an email address are excluded.
	Find(ctx context.Context, q Query) ([]domain.Contact, error)

	// Count returns how many contacts Find would return without a limit.
	Count(ctx context.Context, q Query) (int, error)
}

// Query is one audience lookup.
type Query struct {
	Root    *Node // nil selects every eligible contact
	Channel domain.Channel
	Now     time.Time // reference time for age and relative date predicates
	Limit   int       // 0 means no limit
}
