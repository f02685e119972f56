package academicapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	ErrExternalFetch = errors.New("external fetch failed")
	// ErrMalformedPayload means the API answered but the body is not a subject object.
	ErrMalformedPayload = errors.New("malformed payload")
)

// ExternalFetchError reports a payload that could not be obtained after the
// allowed attempts.
type ExternalFetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *ExternalFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s (status %d, %d attempts): %v", e.URL, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("failed to fetch %s (%d attempts): %v", e.URL, e.Attempts, e.Err)
}

func (e *ExternalFetchError) Unwrap() error { return e.Err }

func (e *ExternalFetchError) Is(target error) bool {
	return target == ErrExternalFetch
}

// statusError is a non-2xx answer from the API.
type statusError struct {
	code       int
	retryAfter time.Duration
}

func newStatusError(resp *http.Response) *statusError {
	e := &statusError{code: resp.StatusCode}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.retryAfter = time.Duration(secs) * time.Second
	}
	return e
}

func (e *statusError) Error() string {
	return fmt.Sprintf("api returned status %d", e.code)
}

func (e *statusError) RetryAfter() time.Duration { return e.retryAfter }

// transient reports whether the status is worth retrying.
func (e *statusError) transient() bool {
	return e.code == http.StatusTooManyRequests || e.code == http.StatusRequestTimeout || e.code >= 500
}
