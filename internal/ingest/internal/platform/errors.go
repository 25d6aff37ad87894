package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrInterrupted marks a resource whose paging stopped early because the process is shutting down.
var ErrInterrupted = errors.New("fetch interrupted by shutdown")

// RateLimitError is a throttled response. RetryAfter is zero when the platform gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// TransientError is a failure worth retrying: 5xx, connection reset and the like.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// HTTPStatusError classifies a non-2xx platform response.
func HTTPStatusError(status int, retryAfter string, err error) error {
	if err == nil {
		err = fmt.Errorf("status %d", status)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfterSeconds(retryAfter), Err: err}
	case status >= 500:
		return &TransientError{Err: err}
	}
	return err
}

func retryable(err error) (bool, time.Duration) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true, rl.RetryAfter
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true, 0
	}
	var ne net.Error
	if errors.As(err, &ne) && !errors.Is(err, context.DeadlineExceeded) {
		return true, 0
	}
	return false, 0
}
