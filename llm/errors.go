package llm

import (
	"errors"
	"fmt"
	"time"

	"github.com/Mirascope/mirascope-sub001/format"
)

// FormatParseError is the terminal error returned when a structured output
// payload cannot be decoded, after the engine's single corrective turn has
// been spent.
type FormatParseError = format.ParseError

// TransportError wraps a failure to reach or be served by a backend.
// Retryable marks failures worth repeating against the same model, such as
// overload or transient network errors.
type TransportError struct {
	Provider  string
	Status    int
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s transport error (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RateLimitError reports that the backend throttled the request. It is always
// retryable; RetryAfter is the backend's suggested wait when it sent one.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

// RefusalError is raised by adapters whose backend rejects a request outright
// instead of completing the turn. A refusal that still yields a turn is
// reported as FinishReasonRefusal on the reply, not as an error.
type RefusalError struct {
	Provider string
	Reason   string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("%s refused the request: %s", e.Provider, e.Reason)
}

// PairingError reports a tool output submitted on resume that does not match
// any tool call from the prior assistant turn. The prior response is left
// untouched when this is raised.
type PairingError struct {
	ToolCallId string
}

func (e *PairingError) Error() string {
	return fmt.Sprintf("tool output %q does not pair with any tool call from the prior turn", e.ToolCallId)
}

// IsRetryable reports whether the error is worth retrying against the same
// model.
func IsRetryable(err error) bool {
	var transport *TransportError
	if errors.As(err, &transport) {
		return transport.Retryable
	}
	var rateLimit *RateLimitError
	return errors.As(err, &rateLimit)
}
