package domain

import "errors"

// Error taxonomy shared by every layer. Services wrap these with context
// (fmt.Errorf("...: %w", err)) and the HTTP layer maps them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrValidation        = errors.New("validation failed")
	ErrNoRecipients      = errors.New("no recipients")
	ErrAlreadyInProgress = errors.New("already in progress")
	ErrUnknownJob        = errors.New("unknown job")
	ErrInvalidCron       = errors.New("invalid cron expression")
	ErrInvalidToken      = errors.New("invalid unsubscribe token")
)
