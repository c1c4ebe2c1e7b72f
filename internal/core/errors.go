package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Provider error kinds surfaced by message sources
var (
	ErrAuthExpired         = errors.New("mail provider access token expired")
	ErrPermissionDenied    = errors.New("mail provider access denied")
	ErrRateLimited         = errors.New("mail provider rate limit exceeded")
	ErrProviderUnavailable = errors.New("mail provider unavailable")
	ErrMessageNotFound     = errors.New("message not found")
	ErrProviderRequest     = errors.New("mail provider request failed")
)

// ProviderError wraps a failure of the upstream mail provider with its classification
type ProviderError struct {
	Op         string
	StatusCode int
	Kind       error
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is and errors.As
func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether repeating the request may succeed
func (e *ProviderError) Retryable() bool {
	return e.Kind == ErrRateLimited || e.Kind == ErrProviderUnavailable
}

// ClassifyStatus maps an HTTP status from the provider to a ProviderError.
// A zero status is treated as a transport failure.
func ClassifyStatus(op string, status int, err error) error {
	var kind error
	switch {
	case status == 0:
		kind = ErrProviderUnavailable
	case status == http.StatusUnauthorized:
		kind = ErrAuthExpired
	case status == http.StatusForbidden:
		kind = ErrPermissionDenied
	case status == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case status == http.StatusNotFound:
		kind = ErrMessageNotFound
	case status >= http.StatusInternalServerError:
		kind = ErrProviderUnavailable
	default:
		kind = ErrProviderRequest
	}
	return &ProviderError{Op: op, StatusCode: status, Kind: kind, Err: err}
}

// IsRetryable reports whether err carries a retryable provider classification
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}
