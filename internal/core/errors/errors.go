package errors

import (
	"errors"
	"fmt"
)

// Sentinel failures for external collaborators. The engine itself never
// retries: callers branch on these to decide between give-up, backoff and
// halt-and-surface.
var (
	// ErrNotFound: the requested ledger or bucket does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransient: the collaborator failed in a way worth retrying upstream.
	ErrTransient = errors.New("transient failure")

	// ErrIntegrity: declared and recomputed hashes disagree. Ingestion of the
	// affected ledger must halt; it may never produce aggregates.
	ErrIntegrity = errors.New("integrity violation")
)

// NotFound wraps ErrNotFound with context.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Transient wraps ErrTransient with context.
func Transient(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrTransient)...)
}

// Integrity wraps ErrIntegrity with context.
func Integrity(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrIntegrity)...)
}

const (
	HttpInternalError    = "internal_error"
	HttpInvalidJsonError = "invalid_json"
	HttpNotFoundError    = "not_found"
	HttpBadRequestError  = "bad_request"
	HttpIntegrityError   = "integrity_violation"
)

// ErrorResponse is the error response body for API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
