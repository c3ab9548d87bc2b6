package suppression

import "github.com/ignite/campaign-engine/internal/domain"

// Sentinel errors for the suppression service layer.
var (
	ErrNotFound     = domain.ErrNotFound
	ErrValidation   = domain.ErrValidation
	ErrInvalidToken = domain.ErrInvalidToken
)
