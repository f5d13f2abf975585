package models

import "fmt"

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeCallInFlight     = "CALL_IN_FLIGHT"
	ErrCodeProviderFailed   = "PROVIDER_FAILED"
	ErrCodeBadProviderJSON  = "BAD_PROVIDER_JSON"
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
)

// ValidationError reports empty or malformed user input. It is caught at the
// gateway boundary and never reaches the session state machine.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NetworkError reports an unreachable or failing generation collaborator.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: provider unreachable: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError reports a provider response that contains no parsable JSON
// object. It is never retried automatically and never defaulted.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "unparsable provider response: " + e.Reason
}

// SchemaError reports well-formed JSON missing required fields for the
// expected response variant. Distinct from ParseError.
type SchemaError struct {
	Variant string
	Missing string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("provider response does not match %s schema: missing %s", e.Variant, e.Missing)
}

// PersistenceError reports a failed save/load/delete. The in-memory session
// state is left untouched so the user can retry without regenerating.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
