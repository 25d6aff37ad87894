package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	contentdomain "pulse-backend/internal/content/domain"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/internal/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
)

type fakeGmail struct {
	t        *testing.T
	messages map[string]map[string]any
	queries  []string
	status   int
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "Bearer ya29", r.Header.Get("Authorization"))
	if f.status != 0 {
		w.WriteHeader(f.status)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": f.status, "message": "nope"}})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	const prefix = "/gmail/v1/users/me/messages"
	switch {
	case r.URL.Path == prefix:
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		var refs []map[string]string
		for id := range f.messages {
			refs = append(refs, map[string]string{"id": id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": refs})
	case strings.HasPrefix(r.URL.Path, prefix+"/"):
		id := strings.TrimPrefix(r.URL.Path, prefix+"/")
		_ = json.NewEncoder(w).Encode(f.messages[id])
	default:
		http.NotFound(w, r)
	}
}

func message(id string, internalDate int64, subject, body string) map[string]any {
	return map[string]any{
		"id":           id,
		"threadId":     "t-" + id,
		"internalDate": strconv.FormatInt(internalDate, 10),
		"labelIds":     []string{"INBOX"},
		"payload": map[string]any{
			"mimeType": "multipart/alternative",
			"headers": []map[string]string{
				{"name": "Subject", "value": subject},
				{"name": "From", "value": "Ann <ann@example.com>"},
			},
			"parts": []map[string]any{
				{"mimeType": "text/html", "body": map[string]string{"data": base64.URLEncoding.EncodeToString([]byte("<p>" + body + "</p>"))}},
				{"mimeType": "text/plain", "body": map[string]string{"data": base64.URLEncoding.EncodeToString([]byte(body))}},
			},
		},
	}
}

func newRequest(entries map[string]*domain.RegistryEntry) platform.FetchRequest {
	return platform.FetchRequest{
		Connection:  &connectiondomain.PlatformConnection{ID: "conn-1", UserID: "u1", Platform: connectiondomain.PlatformGmail},
		Entries:     entries,
		Credentials: platform.StaticCredentials{Creds: &connectiondomain.Credentials{AccessToken: "ya29"}},
	}
}

func TestFetchBootstrapsInbox(t *testing.T) {
	fake := &fakeGmail{t: t, messages: map[string]map[string]any{
		"m1": message("m1", 1_700_000_000_000, "Invoice", "please pay"),
		"m2": message("m2", 1_700_000_500_000, "Standup", "moved to 10"),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	now := time.UnixMilli(1_700_001_000_000)
	adapter := New(platform.Options{BaseURL: srv.URL, BootstrapDays: 7, Now: func() time.Time { return now }})
	result, err := adapter.Fetch(context.Background(), newRequest(nil))
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	assert.Equal(t, []string{"newer_than:7d"}, fake.queries)
	require.Len(t, result.Items, 2)
	for _, item := range result.Items {
		assert.Equal(t, contentdomain.ContentTypeEmail, item.ContentType)
		assert.Equal(t, "INBOX", item.ResourceID)
		assert.Equal(t, "Ann <ann@example.com>", item.Author)
	}
	assert.Equal(t, int64(1_700_000_500_000), result.Cursors["INBOX"].Position)
}

func TestFetchSkipsMessagesAtOrBeforeCursor(t *testing.T) {
	fake := &fakeGmail{t: t, messages: map[string]map[string]any{
		"old": message("old", 1_700_000_000_000, "Old", "seen"),
		"new": message("new", 1_700_000_000_900, "New", "unseen"),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	entries := map[string]*domain.RegistryEntry{
		"INBOX": {ResourceID: "INBOX", Cursor: "1700000000000", CursorPosition: 1_700_000_000_000},
	}
	result, err := New(platform.Options{BaseURL: srv.URL}).Fetch(context.Background(), newRequest(entries))
	require.NoError(t, err)

	assert.Equal(t, []string{"after:1700000000"}, fake.queries)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "new", result.Items[0].ItemID)
	assert.Equal(t, "unseen", result.Items[0].Text)
	assert.Equal(t, int64(1_700_000_000_900), result.Cursors["INBOX"].Position)
}

func TestFetchUnauthorizedIsAuthError(t *testing.T) {
	srv := httptest.NewServer(&fakeGmail{t: t, status: http.StatusUnauthorized})
	defer srv.Close()

	_, err := New(platform.Options{BaseURL: srv.URL}).Fetch(context.Background(), newRequest(nil))
	require.Error(t, err)
	assert.True(t, connectiondomain.IsAuthError(err))
}

func TestFetchServerErrorIsResourceError(t *testing.T) {
	srv := httptest.NewServer(&fakeGmail{t: t, status: http.StatusBadGateway})
	defer srv.Close()

	adapter := New(platform.Options{BaseURL: srv.URL, MaxRetries: 1, BaseDelay: time.Millisecond})
	result, err := adapter.Fetch(context.Background(), newRequest(nil))
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "INBOX", result.Errors[0].ResourceID)
	assert.Empty(t, result.Cursors)
}

func TestMessageTextPrefersPlain(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/html",
		Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("<div>Hello&nbsp;<b>team</b></div><style>p{}</style>"))},
	}
	assert.Equal(t, "Hello team", messageText(payload))
}
