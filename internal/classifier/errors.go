package classifier

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors. Every error returned by a Client should match one of them
// with errors.Is, so workers know whether a retry can help.
var (
	// ErrTransient marks failures worth retrying (network, timeouts, 429, 5xx).
	ErrTransient = errors.New("classifier: transient failure")

	// ErrPermanent marks failures a retry cannot fix (malformed reply, 4xx).
	ErrPermanent = errors.New("classifier: permanent failure")
)

// Error describes a failed classification call.
type Error struct {
	Kind       string // snapshot kind being classified
	Provider   string
	StatusCode int // HTTP status, 0 when no response was received
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("classifier [%s/%s]: API error %d: %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("classifier [%s/%s]: API error %d", e.Provider, e.Kind, e.StatusCode)
	default:
		return fmt.Sprintf("classifier [%s/%s]: %v", e.Provider, e.Kind, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the ErrTransient/ErrPermanent sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Transient()
	case ErrPermanent:
		return !e.Transient()
	}
	return false
}

// IsRateLimited returns true for HTTP 429.
func (e *Error) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true for HTTP 5xx.
func (e *Error) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// Transient reports whether the call may succeed when retried.
func (e *Error) Transient() bool {
	if e.StatusCode != 0 {
		return e.IsRateLimited() || e.IsServerError()
	}
	if errors.Is(e.Err, ErrPermanent) {
		return false
	}
	return isNetworkError(e.Err)
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsTransient reports whether err should be retried. Unclassified errors are
// transient only when they come from the network or a deadline.
func IsTransient(err error) bool {
	if errors.Is(err, ErrTransient) {
		return true
	}
	var ce *Error
	if errors.As(err, &ce) {
		return false
	}
	return isNetworkError(err)
}
