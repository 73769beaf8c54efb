// Package errors defines the error taxonomy shared by the resolution
// engine. Every failure surfaced to a caller belongs to exactly one of
// four classes: validation, authorization, pagination, or persistence.
package errors

import (
	"errors"
	"fmt"
)

// ErrOperationNotExposed is returned when an operation is invoked
// against a resource that does not declare it.
var ErrOperationNotExposed = errors.New("operation not exposed for resource")

// ValidationError reports a bad or unknown argument. The offending
// argument is always named so the caller can fix the query.
type ValidationError struct {
	Argument string
	Message  string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Argument == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid argument %q: %s", e.Argument, e.Message)
}

// Extensions exposes a machine-readable error code to GraphQL clients.
func (e *ValidationError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": "VALIDATION_ERROR"}
	if e.Argument != "" {
		ext["argument"] = e.Argument
	}
	return ext
}

// NewValidation creates a ValidationError for the named argument.
func NewValidation(argument, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Argument: argument, Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError reports a denial by the access-control evaluator.
// Message carries the configured denial message, or a generic one.
// The error intentionally does not distinguish collection-level denial
// from item-level not-found.
type AuthorizationError struct {
	Message string
}

// Error implements the error interface
func (e *AuthorizationError) Error() string {
	if e.Message == "" {
		return "access denied"
	}
	return e.Message
}

// Extensions exposes a machine-readable error code to GraphQL clients.
func (e *AuthorizationError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": "UNAUTHORIZED"}
}

// NewAuthorization creates an AuthorizationError with the given message.
// An empty message falls back to a generic denial.
func NewAuthorization(message string) *AuthorizationError {
	return &AuthorizationError{Message: message}
}

// PaginationError reports an undecodable or stale cursor. It is
// distinct from ValidationError so clients can tell "retry with a
// fresh cursor" from "fix your query". Stale is true when the cursor
// decoded cleanly but no longer matches the active filter/ordering.
type PaginationError struct {
	Message string
	Stale   bool
}

// Error implements the error interface
func (e *PaginationError) Error() string {
	return e.Message
}

// Extensions exposes a machine-readable error code to GraphQL clients.
func (e *PaginationError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": "PAGINATION_ERROR", "stale": e.Stale}
}

// PersistenceError wraps a failure from the persistence collaborator.
// The underlying cause is retained for logging but surfaced to callers
// as an opaque operation failure.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s", e.Op)
}

// Unwrap returns the underlying collaborator error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Extensions exposes a machine-readable error code to GraphQL clients.
func (e *PersistenceError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": "PERSISTENCE_ERROR"}
}

// WrapPersistence wraps err as a PersistenceError for the named
// persistence operation. Context cancellation passes through unwrapped
// so callers can still detect it with errors.Is.
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation returns true if the error is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAuthorization returns true if the error is an AuthorizationError
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// IsPagination returns true if the error is a PaginationError
func IsPagination(err error) bool {
	var pe *PaginationError
	return errors.As(err, &pe)
}

// IsPersistence returns true if the error is a PersistenceError
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
