// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by the store when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrRateLimited signals an HTTP 429 from the source API. The ingestion layer
// treats it differently from other transient failures: it waits the full
// pacing delay instead of growing an exponential backoff.
type ErrRateLimited struct {
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by source API, retry after %s", e.RetryAfter)
	}
	return "rate limited by source API"
}

// ErrHTTPStatus is returned for non-retryable API responses.
type ErrHTTPStatus struct {
	StatusCode int
	URL        string
}

func (e *ErrHTTPStatus) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// IsRateLimited reports whether err wraps a rate-limit response.
func IsRateLimited(err error) bool {
	var rl *ErrRateLimited
	return errors.As(err, &rl)
}
