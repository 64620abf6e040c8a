package provider

import (
	"errors"
	"fmt"
)

// ErrConfiguration is returned when the API key is absent. Callers must fall
// back to a default immediately; retrying cannot help.
var ErrConfiguration = errors.New("spot price api key not configured")

// AuthError is returned when both header and query credentials were rejected.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("spot price api rejected credentials: status %d", e.StatusCode)
}

// StatusError is any other non-success HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Body)
}

// TransportError wraps network level failures (dial, TLS, timeout).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "performing request: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is returned when the response body matches none of the known
// layouts, or lacks a requested metal.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing spot price response: %s: %v", e.Reason, e.Err)
	}
	return "parsing spot price response: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }
