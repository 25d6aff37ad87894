// Package gcalendar syncs Google Calendar events with incremental sync tokens.
package gcalendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	contentdomain "pulse-backend/internal/content/domain"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/internal/platform"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const pageSize = 250

// errSyncTokenExpired is Google's 410: the stored sync token is no longer accepted.
var errSyncTokenExpired = errors.New("sync token expired")

type Adapter struct {
	opts platform.Options
}

func New(opts platform.Options) *Adapter {
	return &Adapter{opts: opts.WithDefaults()}
}

func (a *Adapter) Platform() connectiondomain.Platform {
	return connectiondomain.PlatformGoogleCalendar
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
	srv, err := calendar.NewService(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}

	bootstrap := req.Bootstrap(a.opts.Now(), a.opts.BootstrapDays)
	resources := platform.Resources(req.Connection, connectiondomain.Resource{ID: "primary", Name: "Primary"})

	return platform.FanOut(ctx, a.Platform(), req, resources, a.opts,
		func(call *platform.Call, res connectiondomain.Resource, cursor *domain.Cursor) (*platform.ResourceResult, error) {
			syncToken := ""
			if cursor != nil {
				syncToken = cursor.Token
			}
			result, err := a.fetchCalendar(call, srv, req.Connection.ID, res, syncToken, bootstrap)
			if errors.Is(err, errSyncTokenExpired) {
				log.WithFields(log.Fields{"connection_id": req.Connection.ID, "calendar": res.ID}).
					Warn("[Calendar] Sync token expired, restarting from bootstrap window")
				result, err = a.fetchCalendar(call, srv, req.Connection.ID, res, "", bootstrap)
			}
			return result, err
		})
}

func (a *Adapter) fetchCalendar(call *platform.Call, srv *calendar.Service, connectionID string, res connectiondomain.Resource, syncToken string, bootstrap time.Time) (*platform.ResourceResult, error) {
	fetchedAt := a.opts.Now()
	result := &platform.ResourceResult{}
	pageToken := ""

	for {
		var page *calendar.Events
		err := call.Do(func(ctx context.Context) error {
			list := srv.Events.List(res.ID).SingleEvents(true).MaxResults(pageSize).Context(ctx)
			if syncToken != "" {
				list = list.SyncToken(syncToken)
			} else {
				list = list.TimeMin(bootstrap.Format(time.RFC3339))
			}
			if pageToken != "" {
				list = list.PageToken(pageToken)
			}
			var err error
			page, err = list.Do()
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusGone {
				return errSyncTokenExpired
			}
			return platform.ClassifyGoogleError(connectiondomain.PlatformGoogleCalendar, connectionID, err)
		})
		if err != nil {
			return result, err
		}

		for _, event := range page.Items {
			if event.Status == "cancelled" {
				continue
			}
			result.Items = append(result.Items, normalize(event, res))
		}

		if page.NextPageToken == "" {
			if page.NextSyncToken == "" {
				return result, fmt.Errorf("calendar %s: last page carried no sync token", res.ID)
			}
			result.Cursor = &domain.Cursor{Token: page.NextSyncToken, Position: fetchedAt.UnixMilli()}
			return result, nil
		}
		pageToken = page.NextPageToken
		if err := call.NextPage(); err != nil {
			return result, err
		}
	}
}

func normalize(event *calendar.Event, res connectiondomain.Resource) domain.NormalizedItem {
	start := eventTime(event.Start)
	author := ""
	switch {
	case event.Organizer != nil && event.Organizer.Email != "":
		author = event.Organizer.Email
	case event.Creator != nil:
		author = event.Creator.Email
	}

	metadata := map[string]any{
		"start":     start.Format(time.RFC3339),
		"end":       eventTime(event.End).Format(time.RFC3339),
		"html_link": event.HtmlLink,
		"updated":   event.Updated,
	}
	if event.Location != "" {
		metadata["location"] = event.Location
	}
	if event.RecurringEventId != "" {
		metadata["recurring_event_id"] = event.RecurringEventId
	}
	if len(event.Attendees) > 0 {
		attendees := make([]string, 0, len(event.Attendees))
		for _, attendee := range event.Attendees {
			attendees = append(attendees, attendee.Email)
		}
		metadata["attendees"] = attendees
	}

	text := event.Description
	if event.Location != "" {
		text = strings.TrimSpace(text + "\nLocation: " + event.Location)
	}

	return domain.NormalizedItem{
		ItemID:       event.Id,
		ResourceID:   res.ID,
		ResourceName: res.Name,
		ContentType:  contentdomain.ContentTypeEvent,
		Author:       author,
		Title:        event.Summary,
		Text:         text,
		Timestamp:    start,
		Metadata:     metadata,
	}
}

// eventTime handles both timed events and all-day events.
func eventTime(t *calendar.EventDateTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed.UTC()
		}
	}
	if t.Date != "" {
		if parsed, err := time.Parse(time.DateOnly, t.Date); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
