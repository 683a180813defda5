package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// ProviderError represents a failed request against a metadata provider:
// transport failure, non-2xx status or an undecodable payload.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int // 0 when no response was received
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError with a message derived from the
// HTTP status code.
func NewProviderError(provider, op string, statusCode int, err error) *ProviderError {
	var message string
	switch {
	case statusCode == 0:
		message = "request failed"
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		message = "access denied - check API key"
	case statusCode == http.StatusNotFound:
		message = "not found"
	case statusCode >= 500:
		message = "server error"
	default:
		message = "unexpected status"
	}

	return &ProviderError{
		Provider:   provider,
		Op:         op,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// NewDecodeError creates a ProviderError for a payload that could not be parsed.
func NewDecodeError(provider, op string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Op:       op,
		Message:  "malformed response",
		Err:      err,
	}
}

// IsProviderError checks if error is a ProviderError
func IsProviderError(err error) bool {
	var providerErr *ProviderError
	return stdErrors.As(err, &providerErr)
}
