package fcm

import (
	"context"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMulticaster struct {
	batches [][]string
	last    *messaging.MulticastMessage
	fail    map[string]error
	err     error
}

func (f *fakeMulticaster) SendEachForMulticast(_ context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, msg.Tokens)
	f.last = msg
	resp := &messaging.BatchResponse{}
	for _, tok := range msg.Tokens {
		if err, ok := f.fail[tok]; ok {
			resp.Responses = append(resp.Responses, &messaging.SendResponse{Error: err})
			resp.FailureCount++
			continue
		}
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true, MessageID: "m-" + tok})
		resp.SuccessCount++
	}
	return resp, nil
}

func TestSendAlertBatchesTokens(t *testing.T) {
	fake := &fakeMulticaster{}
	client := &Client{messaging: fake}

	tokens := make([]string, 1200)
	for i := range tokens {
		tokens[i] = "tok"
	}
	result, err := client.SendAlert(context.Background(), tokens, Alert{Title: "t", Body: "b", TTL: time.Hour})
	require.NoError(t, err)

	require.Len(t, fake.batches, 3)
	assert.Len(t, fake.batches[0], 500)
	assert.Len(t, fake.batches[2], 200)
	assert.Equal(t, 1200, result.Delivered)
	require.NotNil(t, fake.last.Android.TTL)
	assert.Equal(t, time.Hour, *fake.last.Android.TTL)
}

func TestSendAlertSeparatesTransientFailures(t *testing.T) {
	fake := &fakeMulticaster{fail: map[string]error{"flaky": errors.New("unavailable")}}
	client := &Client{messaging: fake}

	result, err := client.SendAlert(context.Background(), []string{"ok", "flaky"}, Alert{Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 1, result.Failed)
	// Only FCM-classified token errors count as stale.
	assert.Empty(t, result.Stale)
}

func TestSendAlertTransportError(t *testing.T) {
	client := &Client{messaging: &fakeMulticaster{err: errors.New("dial tcp: refused")}}
	_, err := client.SendAlert(context.Background(), []string{"a"}, Alert{})
	assert.Error(t, err)
}

func TestSendAlertNoTokens(t *testing.T) {
	fake := &fakeMulticaster{}
	result, err := (&Client{messaging: fake}).SendAlert(context.Background(), nil, Alert{})
	require.NoError(t, err)
	assert.Empty(t, fake.batches)
	assert.Zero(t, result.Delivered)
}
