package gemini

import (
	"errors"
	"fmt"
	"time"
)

// ErrAuthentication indicates the API rejected our credentials. This is fatal
// for the whole run: every subsequent chat would fail the same way.
var ErrAuthentication = errors.New("gemini: authentication failed")

// RateLimitedError indicates the API returned 429. RetryAfter carries the
// server's hint when one was provided, zero otherwise.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("gemini: rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("gemini: rate limited: %v", e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// TransientError indicates a network failure or 5xx response. Retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("gemini: transient failure: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// MalformedResponseError indicates the API call succeeded but the payload
// could not be parsed into a valid AnalysisResult. This is a data-quality
// failure, not a transport failure: it is never retried here and is reported
// upward as a per-chat failure.
type MalformedResponseError struct {
	Reason string
	Raw    string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("gemini: malformed analysis response: %s", e.Reason)
}
