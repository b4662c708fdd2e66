package ekamcp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the core can hand to a caller.
type ErrorKind string

const (
	// ErrAuth covers credential acquisition and validity failures: the issuer
	// rejected the credentials, was unreachable, or returned a malformed grant.
	ErrAuth ErrorKind = "auth"

	// ErrUpstream covers non-2xx responses from the target API.
	ErrUpstream ErrorKind = "upstream"

	// ErrNetwork covers transport-level failures talking to the target API.
	ErrNetwork ErrorKind = "network"

	// ErrValidation covers 2xx responses whose body failed to parse.
	ErrValidation ErrorKind = "validation"
)

// APIError is the single structured error type returned to callers. It is
// produced at exactly one layer and propagated unchanged; nothing above the
// core re-wraps it without preserving Kind and StatusCode.
type APIError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int    // 0 when no HTTP status applies
	ErrorCode  string // upstream/issuer error code, when the body carried one
	RawBody    string // raw response body kept for debugging
	Cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// AsAPIError extracts an *APIError from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func newAuthError(message string, cause error) *APIError {
	return &APIError{Kind: ErrAuth, Message: message, Cause: cause}
}

func newNetworkError(message string, cause error) *APIError {
	return &APIError{Kind: ErrNetwork, Message: message, Cause: cause}
}

func newValidationError(message, rawBody string, cause error) *APIError {
	return &APIError{Kind: ErrValidation, Message: message, RawBody: rawBody, Cause: cause}
}
