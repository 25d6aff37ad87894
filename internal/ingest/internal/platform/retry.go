package platform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
)

// Retry runs op until it succeeds, fails with a non-retryable error, or the retry budget is spent.
func (o Options) Retry(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil || connectiondomain.IsAuthError(err) {
			return err
		}
		ok, hint := retryable(err)
		if !ok {
			return err
		}
		if attempt >= o.MaxRetries {
			return fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}
		if waitErr := sleepContext(ctx, o.retryDelay(attempt+1, hint)); waitErr != nil {
			return fmt.Errorf("%w (last error: %v)", waitErr, err)
		}
	}
}

func (o Options) retryDelay(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return min(hint, o.MaxDelay)
	}
	delay := o.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= o.MaxDelay {
			return o.MaxDelay
		}
	}
	return min(delay, o.MaxDelay)
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
