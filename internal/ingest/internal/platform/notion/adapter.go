// Package notion syncs workspace pages and database rows over the Notion REST API.
package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	contentdomain "pulse-backend/internal/content/domain"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/internal/platform"
)

const (
	// WorkspaceResource syncs every page shared with the integration.
	WorkspaceResource = "workspace"

	pageSize = 100
	// Long documents are cut after this many blocks.
	maxBlocks = 1000
)

type Adapter struct {
	opts platform.Options
}

func New(opts platform.Options) *Adapter {
	return &Adapter{opts: opts.WithDefaults()}
}

func (a *Adapter) Platform() connectiondomain.Platform {
	return connectiondomain.PlatformNotion
}

func (a *Adapter) Fetch(ctx context.Context, req platform.FetchRequest) (*platform.FetchResult, error) {
	creds, err := req.Credentials.GetValidToken(ctx, req.Connection.ID)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(strings.TrimSpace(a.opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &client{
		baseURL:      baseURL,
		token:        creds.AccessToken,
		connectionID: req.Connection.ID,
		httpClient:   a.opts.HTTPClient,
	}

	bootstrap := req.Bootstrap(a.opts.Now(), a.opts.BootstrapDays)
	resources := platform.Resources(req.Connection, connectiondomain.Resource{ID: WorkspaceResource, Name: "Workspace"})

	return platform.FanOut(ctx, a.Platform(), req, resources, a.opts,
		func(call *platform.Call, res connectiondomain.Resource, cursor *domain.Cursor) (*platform.ResourceResult, error) {
			return a.fetchResource(call, c, res, cursor, bootstrap)
		})
}

// fetchResource walks pages newest-edit first and stops at the cursor. Notion
// rounds last_edited_time to the minute, so the boundary minute is re-read and
// unchanged pages dedup on their content hash.
func (a *Adapter) fetchResource(call *platform.Call, c *client, res connectiondomain.Resource, cursor *domain.Cursor, bootstrap time.Time) (*platform.ResourceResult, error) {
	since := bootstrap
	next := domain.Cursor{Token: bootstrap.UTC().Format(time.RFC3339), Position: bootstrap.UnixMilli()}
	if cursor != nil {
		since = time.UnixMilli(cursor.Position)
		next = *cursor
	}

	result := &platform.ResourceResult{}
	startCursor := ""
	for {
		var list listResponse
		err := call.Do(func(ctx context.Context) error {
			if res.ID == WorkspaceResource {
				return c.do(ctx, http.MethodPost, "/v1/search", searchRequest(startCursor), &list)
			}
			return c.do(ctx, http.MethodPost, "/v1/databases/"+url.PathEscape(res.ID)+"/query", databaseQuery(since, startCursor), &list)
		})
		if err != nil {
			return result, err
		}

		reachedCursor := false
		for _, raw := range list.Results {
			var p page
			if err := json.Unmarshal(raw, &p); err != nil {
				return result, fmt.Errorf("decode page: %w", err)
			}
			if p.Object != "" && p.Object != "page" {
				continue
			}
			if p.LastEditedTime.Before(since) {
				reachedCursor = true
				break
			}
			if p.Archived {
				continue
			}

			text, err := a.pageText(call, c, p.ID)
			if err != nil {
				return result, fmt.Errorf("page %s: %w", p.ID, err)
			}
			result.Items = append(result.Items, normalize(&p, text, res))

			if edited := p.LastEditedTime.UnixMilli(); edited > next.Position {
				next = domain.Cursor{Token: p.LastEditedTime.UTC().Format(time.RFC3339), Position: edited}
			}
		}

		if reachedCursor || !list.HasMore || list.NextCursor == "" {
			break
		}
		startCursor = list.NextCursor
		if err := call.NextPage(); err != nil {
			return result, err
		}
	}

	result.Cursor = &next
	return result, nil
}

func (a *Adapter) pageText(call *platform.Call, c *client, pageID string) (string, error) {
	var (
		lines       []string
		startCursor string
		seen        int
	)
	for seen < maxBlocks {
		path := "/v1/blocks/" + url.PathEscape(pageID) + "/children?page_size=" + strconv.Itoa(pageSize)
		if startCursor != "" {
			path += "&start_cursor=" + url.QueryEscape(startCursor)
		}

		var list listResponse
		err := call.Do(func(ctx context.Context) error {
			return c.do(ctx, http.MethodGet, path, nil, &list)
		})
		if err != nil {
			return "", err
		}

		for _, raw := range list.Results {
			seen++
			var b block
			if err := json.Unmarshal(raw, &b); err != nil {
				continue
			}
			if text := strings.TrimSpace(b.text()); text != "" {
				lines = append(lines, text)
			}
		}

		if !list.HasMore || list.NextCursor == "" {
			break
		}
		startCursor = list.NextCursor
	}
	return strings.Join(lines, "\n"), nil
}

func searchRequest(startCursor string) map[string]any {
	body := map[string]any{
		"filter":    map[string]string{"property": "object", "value": "page"},
		"sort":      map[string]string{"direction": "descending", "timestamp": "last_edited_time"},
		"page_size": pageSize,
	}
	if startCursor != "" {
		body["start_cursor"] = startCursor
	}
	return body
}

func databaseQuery(since time.Time, startCursor string) map[string]any {
	body := map[string]any{
		"filter": map[string]any{
			"timestamp":        "last_edited_time",
			"last_edited_time": map[string]string{"on_or_after": since.UTC().Format(time.RFC3339)},
		},
		"sorts":     []map[string]string{{"timestamp": "last_edited_time", "direction": "descending"}},
		"page_size": pageSize,
	}
	if startCursor != "" {
		body["start_cursor"] = startCursor
	}
	return body
}

func normalize(p *page, text string, res connectiondomain.Resource) domain.NormalizedItem {
	return domain.NormalizedItem{
		ItemID:       p.ID,
		ResourceID:   res.ID,
		ResourceName: res.Name,
		ContentType:  contentdomain.ContentTypePage,
		Author:       p.LastEditedBy.ID,
		Title:        p.title(),
		Text:         text,
		Timestamp:    p.LastEditedTime.UTC(),
		Metadata: map[string]any{
			"url":          p.URL,
			"created_time": p.CreatedTime.UTC().Format(time.RFC3339),
		},
	}
}
