// Package slack syncs channel history and thread replies.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	contentdomain "pulse-backend/internal/content/domain"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/internal/platform"

	"github.com/slack-go/slack"
)

const pageSize = 200

// Slack error codes that mean the token itself is no good.
var authErrorCodes = map[string]bool{
	"invalid_auth":     true,
	"not_authed":       true,
	"token_revoked":    true,
	"token_expired":    true,
	"account_inactive": true,
}

type Adapter struct {
	opts platform.Options
}

func New(opts platform.Options) *Adapter {
	return &Adapter{opts: opts.WithDefaults()}
}

func (a *Adapter) Platform() connectiondomain.Platform {
	return connectiondomain.PlatformSlack
}

// Fetch reads every selected channel. Slack has no sensible default channel, so
// a connection with nothing selected syncs nothing.
func (a *Adapter) Fetch(ctx context.Context, req platform.FetchRequest) (*platform.FetchResult, error) {
	creds, err := req.Credentials.GetValidToken(ctx, req.Connection.ID)
	if err != nil {
		return nil, err
	}

	options := []slack.Option{slack.OptionHTTPClient(a.opts.HTTPClient)}
	if a.opts.BaseURL != "" {
		options = append(options, slack.OptionAPIURL(strings.TrimRight(a.opts.BaseURL, "/")+"/"))
	}
	client := slack.New(creds.AccessToken, options...)

	bootstrap := req.Bootstrap(a.opts.Now(), a.opts.BootstrapDays)
	resources := platform.Resources(req.Connection)

	return platform.FanOut(ctx, a.Platform(), req, resources, a.opts,
		func(call *platform.Call, res connectiondomain.Resource, cursor *domain.Cursor) (*platform.ResourceResult, error) {
			return a.fetchChannel(call, client, req.Connection, res, cursor, bootstrap)
		})
}

func (a *Adapter) fetchChannel(call *platform.Call, client *slack.Client, conn *connectiondomain.PlatformConnection, res connectiondomain.Resource, cursor *domain.Cursor, bootstrap time.Time) (*platform.ResourceResult, error) {
	oldest := formatTS(bootstrap)
	next := domain.Cursor{Token: oldest, Position: tsPosition(oldest)}
	if cursor != nil {
		oldest = cursor.Token
		next = *cursor
	}

	result := &platform.ResourceResult{}
	err := a.pageHistory(call, client, conn, &slack.GetConversationHistoryParameters{
		ChannelID: res.ID,
		Oldest:    oldest,
	}, func(msg *slack.Message) error {
		if skipMessage(msg) {
			return nil
		}
		result.Items = append(result.Items, normalize(msg, res, contentdomain.ContentTypeMessage))
		if pos := tsPosition(msg.Timestamp); pos > next.Position {
			next = domain.Cursor{Token: msg.Timestamp, Position: pos}
		}
		if msg.ReplyCount == 0 {
			return nil
		}
		replies, err := a.fetchReplies(call, client, conn, res, msg.Timestamp, oldest)
		result.Items = append(result.Items, replies...)
		return err
	})
	if err != nil {
		return result, err
	}

	if cursor != nil {
		replies, err := a.fetchActiveThreads(call, client, conn, res, cursor, bootstrap)
		result.Items = append(result.Items, replies...)
		if err != nil {
			return result, err
		}
	}

	result.Cursor = &next
	return result, nil
}

// fetchActiveThreads picks up new replies to threads whose parent is at or
// before the cursor. History after the cursor never returns those parents, so
// parents inside the bootstrap window are rescanned for a latest_reply past the cursor.
func (a *Adapter) fetchActiveThreads(call *platform.Call, client *slack.Client, conn *connectiondomain.PlatformConnection, res connectiondomain.Resource, cursor *domain.Cursor, bootstrap time.Time) ([]domain.NormalizedItem, error) {
	windowStart := formatTS(bootstrap)
	if tsPosition(windowStart) >= cursor.Position {
		return nil, nil
	}

	var items []domain.NormalizedItem
	err := a.pageHistory(call, client, conn, &slack.GetConversationHistoryParameters{
		ChannelID: res.ID,
		Oldest:    windowStart,
		Latest:    cursor.Token,
		Inclusive: true,
	}, func(msg *slack.Message) error {
		if msg.ReplyCount == 0 || tsPosition(msg.LatestReply) <= cursor.Position {
			return nil
		}
		replies, err := a.fetchReplies(call, client, conn, res, msg.Timestamp, cursor.Token)
		items = append(items, replies...)
		return err
	})
	return items, err
}

// pageHistory walks conversations.history page by page and hands every message to visit.
func (a *Adapter) pageHistory(call *platform.Call, client *slack.Client, conn *connectiondomain.PlatformConnection, params *slack.GetConversationHistoryParameters, visit func(msg *slack.Message) error) error {
	params.Limit = pageSize
	for {
		var page *slack.GetConversationHistoryResponse
		err := call.Do(func(ctx context.Context) error {
			var err error
			page, err = client.GetConversationHistoryContext(ctx, params)
			return a.classify(conn, err)
		})
		if err != nil {
			return err
		}

		for i := range page.Messages {
			if err := visit(&page.Messages[i]); err != nil {
				return err
			}
		}

		params.Cursor = page.ResponseMetaData.NextCursor
		if !page.HasMore || params.Cursor == "" {
			return nil
		}
		if err := call.NextPage(); err != nil {
			return err
		}
	}
}

func (a *Adapter) fetchReplies(call *platform.Call, client *slack.Client, conn *connectiondomain.PlatformConnection, res connectiondomain.Resource, threadTS, oldest string) ([]domain.NormalizedItem, error) {
	var items []domain.NormalizedItem
	pageCursor := ""
	for {
		var (
			msgs    []slack.Message
			hasMore bool
			next    string
		)
		err := call.Do(func(ctx context.Context) error {
			var err error
			msgs, hasMore, next, err = client.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
				ChannelID: res.ID,
				Timestamp: threadTS,
				Oldest:    oldest,
				Cursor:    pageCursor,
				Limit:     pageSize,
			})
			return a.classify(conn, err)
		})
		if err != nil {
			return items, fmt.Errorf("thread %s: %w", threadTS, err)
		}

		for _, msg := range msgs {
			// The parent is returned as the first element of every page.
			if msg.Timestamp == threadTS || skipMessage(&msg) {
				continue
			}
			items = append(items, normalize(&msg, res, contentdomain.ContentTypeThreadReply))
		}

		if !hasMore || next == "" {
			return items, nil
		}
		pageCursor = next
	}
}

func (a *Adapter) classify(conn *connectiondomain.PlatformConnection, err error) error {
	if err == nil {
		return nil
	}

	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return &platform.RateLimitError{RetryAfter: rateLimited.RetryAfter, Err: err}
	}

	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) && authErrorCodes[slackErr.Err] {
		return connectiondomain.NewAuthError(connectiondomain.PlatformSlack, conn.ID, "slack rejected the token", err)
	}

	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		if statusErr.Code == http.StatusUnauthorized {
			return connectiondomain.NewAuthError(connectiondomain.PlatformSlack, conn.ID, "slack rejected the token", err)
		}
		return platform.HTTPStatusError(statusErr.Code, "", err)
	}
	return err
}

// skipMessage drops channel membership noise that carries no work content.
func skipMessage(msg *slack.Message) bool {
	switch msg.SubType {
	case "channel_join", "channel_leave", "channel_topic", "channel_purpose", "channel_name":
		return true
	}
	return strings.TrimSpace(msg.Text) == "" && len(msg.Files) == 0
}

func normalize(msg *slack.Message, res connectiondomain.Resource, contentType contentdomain.ContentType) domain.NormalizedItem {
	author := msg.User
	if author == "" {
		author = msg.Username
	}
	if author == "" {
		author = msg.BotID
	}

	metadata := map[string]any{"channel": res.ID}
	if msg.ThreadTimestamp != "" {
		metadata["thread_ts"] = msg.ThreadTimestamp
	}
	if msg.ReplyCount > 0 {
		metadata["reply_count"] = msg.ReplyCount
	}
	if len(msg.Files) > 0 {
		names := make([]string, 0, len(msg.Files))
		for _, f := range msg.Files {
			names = append(names, f.Name)
		}
		metadata["files"] = names
	}

	return domain.NormalizedItem{
		ItemID:       msg.Timestamp,
		ResourceID:   res.ID,
		ResourceName: res.Name,
		ContentType:  contentType,
		Author:       author,
		Text:         msg.Text,
		Timestamp:    tsTime(msg.Timestamp),
		Metadata:     metadata,
	}
}

// tsPosition turns "1700000000.000100" into microseconds since the epoch.
func tsPosition(ts string) int64 {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return 0
	}
	frac = (frac + "000000")[:6]
	us, _ := strconv.ParseInt(frac, 10, 64)
	return s*1_000_000 + us
}

func tsTime(ts string) time.Time {
	return time.UnixMicro(tsPosition(ts)).UTC()
}

func formatTS(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}
