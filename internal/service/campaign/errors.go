package campaign

import "github.com/ignite/campaign-engine/internal/domain"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidState = domain.ErrInvalidState
	ErrValidation   = domain.ErrValidation
	ErrNoRecipients = domain.ErrNoRecipients
)
