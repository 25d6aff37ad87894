package platform

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOptions = Options{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}.WithDefaults()

func fetchRequest() FetchRequest {
	return FetchRequest{Connection: &connectiondomain.PlatformConnection{ID: "conn-1"}}
}

func TestFanOutIsolatesResourceFailures(t *testing.T) {
	resources := []connectiondomain.Resource{{ID: "a"}, {ID: "b", Name: "Bee"}}
	result, err := FanOut(context.Background(), connectiondomain.PlatformSlack, fetchRequest(), resources, testOptions,
		func(call *Call, res connectiondomain.Resource, cursor *domain.Cursor) (*ResourceResult, error) {
			if res.ID == "a" {
				return nil, errors.New("channel archived")
			}
			return &ResourceResult{
				Items:  []domain.NormalizedItem{{ItemID: "1"}},
				Cursor: &domain.Cursor{Token: "t", Position: 5},
			}, nil
		})
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "a", result.Errors[0].ResourceID)
	assert.True(t, result.Failed("a"))
	assert.False(t, result.Failed("b"))
	require.Len(t, result.Items, 1)
	assert.Equal(t, "b", result.Items[0].ResourceID)
	assert.Equal(t, "Bee", result.Items[0].ResourceName)
	assert.Equal(t, map[string]domain.Cursor{"b": {Token: "t", Position: 5}}, result.Cursors)
}

func TestFanOutAbortsOnAuthError(t *testing.T) {
	resources := []connectiondomain.Resource{{ID: "a"}, {ID: "b"}}
	_, err := FanOut(context.Background(), connectiondomain.PlatformGmail, fetchRequest(), resources, testOptions,
		func(call *Call, res connectiondomain.Resource, cursor *domain.Cursor) (*ResourceResult, error) {
			return nil, connectiondomain.NewAuthError(connectiondomain.PlatformGmail, "conn-1", "revoked", nil)
		})
	require.Error(t, err)
	assert.True(t, connectiondomain.IsAuthError(err))
}

func TestFanOutPassesStoredCursor(t *testing.T) {
	req := fetchRequest()
	req.Entries = map[string]*domain.RegistryEntry{"a": {ResourceID: "a", Cursor: "c1", CursorPosition: 9}}

	var seen *domain.Cursor
	_, err := FanOut(context.Background(), connectiondomain.PlatformNotion, req, []connectiondomain.Resource{{ID: "a"}}, testOptions,
		func(call *Call, res connectiondomain.Resource, cursor *domain.Cursor) (*ResourceResult, error) {
			seen = cursor
			return &ResourceResult{}, nil
		})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, int64(9), seen.Position)
}

func TestCallTimeoutIsResourceError(t *testing.T) {
	opts := testOptions
	opts.CallTimeout = 10 * time.Millisecond
	result, err := FanOut(context.Background(), connectiondomain.PlatformSlack, fetchRequest(), []connectiondomain.Resource{{ID: "slow"}}, opts,
		func(call *Call, res connectiondomain.Resource, cursor *domain.Cursor) (*ResourceResult, error) {
			<-call.Ctx.Done()
			return nil, call.Ctx.Err()
		})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], context.DeadlineExceeded)
}

func TestShutdownFinishesPageButKeepsCursor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	result, err := FanOut(ctx, connectiondomain.PlatformSlack, fetchRequest(), []connectiondomain.Resource{{ID: "a"}}, testOptions,
		func(call *Call, res connectiondomain.Resource, cursor *domain.Cursor) (*ResourceResult, error) {
			cancel()
			// The in-flight page still completes on the detached call context.
			require.NoError(t, call.Ctx.Err())
			page := &ResourceResult{Items: []domain.NormalizedItem{{ItemID: "p1"}}}
			if err := call.NextPage(); err != nil {
				return page, err
			}
			page.Cursor = &domain.Cursor{Position: 1}
			return page, nil
		})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], ErrInterrupted)
	assert.Len(t, result.Items, 1)
	assert.Empty(t, result.Cursors)
}

func TestRetryBacksOffOnRetryableErrors(t *testing.T) {
	var attempts atomic.Int32
	err := testOptions.Retry(context.Background(), func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return HTTPStatusError(http.StatusServiceUnavailable, "", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())

	attempts.Store(0)
	err = testOptions.Retry(context.Background(), func(ctx context.Context) error {
		attempts.Add(1)
		return HTTPStatusError(http.StatusTooManyRequests, "0", nil)
	})
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, int32(3), attempts.Load())

	attempts.Store(0)
	err = testOptions.Retry(context.Background(), func(ctx context.Context) error {
		attempts.Add(1)
		return HTTPStatusError(http.StatusNotFound, "", nil)
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRetryDelay(t *testing.T) {
	opts := Options{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, opts.retryDelay(1, 0))
	assert.Equal(t, 400*time.Millisecond, opts.retryDelay(3, 0))
	assert.Equal(t, time.Second, opts.retryDelay(10, 0))
	assert.Equal(t, time.Second, opts.retryDelay(1, 30*time.Second))
	assert.Equal(t, 2*time.Second, parseRetryAfterSeconds(" 2 "))
	assert.Zero(t, parseRetryAfterSeconds("Wed, 21 Oct 2015 07:28:00 GMT"))
}
