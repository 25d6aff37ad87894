// Package gmail syncs labels of a Gmail mailbox through the Gmail API.
package gmail

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	contentdomain "pulse-backend/internal/content/domain"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/internal/platform"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user     = "me"
	pageSize = 100
)

type Adapter struct {
	opts platform.Options
}

func New(opts platform.Options) *Adapter {
	return &Adapter{opts: opts.WithDefaults()}
}

func (a *Adapter) Platform() connectiondomain.Platform {
	return connectiondomain.PlatformGmail
}

func (a *Adapter) Fetch(ctx context.Context, req platform.FetchRequest) (*platform.FetchResult, error) {
	creds, err := req.Credentials.GetValidToken(ctx, req.Connection.ID)
	if err != nil {
		return nil, err
	}

	options := []option.ClientOption{option.WithHTTPClient(platform.GoogleHTTPClient(a.opts.HTTPClient, creds.AccessToken))}
	if a.opts.BaseURL != "" {
		options = append(options, option.WithEndpoint(strings.TrimRight(a.opts.BaseURL, "/")+"/"))
	}
	srv, err := gmail.NewService(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	bootstrap := req.Bootstrap(a.opts.Now(), a.opts.BootstrapDays)
	resources := platform.Resources(req.Connection, connectiondomain.Resource{ID: "INBOX", Name: "Inbox"})

	return platform.FanOut(ctx, a.Platform(), req, resources, a.opts,
		func(call *platform.Call, res connectiondomain.Resource, cursor *domain.Cursor) (*platform.ResourceResult, error) {
			return a.fetchLabel(call, srv, req.Connection.ID, res, cursor, bootstrap)
		})
}

// fetchLabel lists messages newer than the cursor. The cursor is the newest
// internalDate seen, in milliseconds.
func (a *Adapter) fetchLabel(call *platform.Call, srv *gmail.Service, connectionID string, res connectiondomain.Resource, cursor *domain.Cursor, bootstrap time.Time) (*platform.ResourceResult, error) {
	var (
		query string
		next  domain.Cursor
	)
	if cursor != nil {
		// after: has second granularity; the millisecond compare below drops the overlap.
		query = fmt.Sprintf("after:%d", cursor.Position/1000)
		next = *cursor
	} else {
		days := int(a.opts.Now().Sub(bootstrap).Hours()/24 + 0.5)
		query = fmt.Sprintf("newer_than:%dd", max(days, 1))
		next = domain.Cursor{Token: strconv.FormatInt(bootstrap.UnixMilli(), 10), Position: bootstrap.UnixMilli()}
	}
	floor := next.Position

	result := &platform.ResourceResult{}
	pageToken := ""
	for {
		var page *gmail.ListMessagesResponse
		err := call.Do(func(ctx context.Context) error {
			list := srv.Users.Messages.List(user).LabelIds(res.ID).Q(query).MaxResults(pageSize).Context(ctx)
			if pageToken != "" {
				list = list.PageToken(pageToken)
			}
			var err error
			page, err = list.Do()
			return platform.ClassifyGoogleError(connectiondomain.PlatformGmail, connectionID, err)
		})
		if err != nil {
			return result, err
		}

		for _, ref := range page.Messages {
			var msg *gmail.Message
			err := call.Do(func(ctx context.Context) error {
				var err error
				msg, err = srv.Users.Messages.Get(user, ref.Id).Format("full").Context(ctx).Do()
				return platform.ClassifyGoogleError(connectiondomain.PlatformGmail, connectionID, err)
			})
			if err != nil {
				return result, fmt.Errorf("message %s: %w", ref.Id, err)
			}
			if cursor != nil && msg.InternalDate <= floor {
				continue
			}

			result.Items = append(result.Items, normalize(msg, res))
			if msg.InternalDate > next.Position {
				next = domain.Cursor{Token: strconv.FormatInt(msg.InternalDate, 10), Position: msg.InternalDate}
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
		if err := call.NextPage(); err != nil {
			return result, err
		}
	}

	result.Cursor = &next
	return result, nil
}

func normalize(msg *gmail.Message, res connectiondomain.Resource) domain.NormalizedItem {
	var headers []*gmail.MessagePartHeader
	body := ""
	if msg.Payload != nil {
		headers = msg.Payload.Headers
		body = messageText(msg.Payload)
	}
	if body == "" {
		body = msg.Snippet
	}

	metadata := map[string]any{
		"thread_id": msg.ThreadId,
		"labels":    msg.LabelIds,
	}
	for _, name := range []string{"To", "Cc", "Message-ID"} {
		if v := header(headers, name); v != "" {
			metadata[strings.ToLower(name)] = v
		}
	}

	return domain.NormalizedItem{
		ItemID:       msg.Id,
		ResourceID:   res.ID,
		ResourceName: res.Name,
		ContentType:  contentdomain.ContentTypeEmail,
		Author:       header(headers, "From"),
		Title:        header(headers, "Subject"),
		Text:         body,
		Timestamp:    time.UnixMilli(msg.InternalDate).UTC(),
		Metadata:     metadata,
	}
}
