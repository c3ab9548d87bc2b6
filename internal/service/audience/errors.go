package audience

import "github.com/ignite/campaign-engine/internal/domain"

// Sentinel errors for the audience service layer.
var (
	ErrValidation = domain.ErrValidation
)
