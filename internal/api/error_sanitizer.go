package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// =============================================================================
// ERROR SANITIZER
// Internal errors (database details, file paths, driver messages) are never
// returned to API consumers. 5xx responses carry a generic message and the
// full error is logged server-side.
// =============================================================================

// writeError maps a service error onto an HTTP response. Known taxonomy
// errors carry their message; everything else becomes a sanitized 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		httputil.ErrorCode(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrUnknownJob):
		httputil.ErrorCode(w, http.StatusNotFound, "unknown_job", err.Error())
	case errors.Is(err, domain.ErrAlreadyInProgress):
		httputil.ErrorCode(w, http.StatusConflict, "already_in_progress", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		httputil.ErrorCode(w, http.StatusBadRequest, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrNoRecipients):
		httputil.ErrorCode(w, http.StatusBadRequest, "no_recipients", err.Error())
	case errors.Is(err, domain.ErrInvalidCron):
		httputil.ErrorCode(w, http.StatusBadRequest, "invalid_cron", err.Error())
	case errors.Is(err, domain.ErrValidation):
		httputil.ErrorCode(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
	}
}

// respondSafeError logs the internal error and sends a sanitized JSON error
// response to the client.
func respondSafeError(w http.ResponseWriter, code int, internalErr error, publicMsg string) {
	if internalErr != nil {
		logger.Error("request failed", "status", code, "public", publicMsg, "error", internalErr)
	}
	httputil.Error(w, code, publicMsg)
}

// safeErrorMessage maps common internal error patterns to public-safe messages.
// For 400-level errors, the original message is typically fine (user input issues).
// For 500-level errors, this returns a generic safe message.
func safeErrorMessage(code int, internalErr error) string {
	if code < 500 {
		if internalErr != nil {
			return internalErr.Error()
		}
		return "Bad request"
	}

	if internalErr == nil {
		return "An internal error occurred"
	}

	errStr := strings.ToLower(internalErr.Error())

	switch {
	case strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp"):
		return "Service temporarily unavailable"

	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled"):
		return "Request timed out"

	case strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "pq:") ||
		strings.Contains(errStr, "redis") ||
		strings.Contains(errStr, "scan") ||
		strings.Contains(errStr, "transaction") ||
		strings.Contains(errStr, "database"):
		return "A database error occurred"

	case strings.Contains(errStr, "ses send") ||
		strings.Contains(errStr, "sqs"):
		return "The email provider is unavailable"

	default:
		return "An internal error occurred"
	}
}
