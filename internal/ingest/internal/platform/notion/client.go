package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/internal/platform"
)

const (
	defaultBaseURL = "https://api.notion.com"
	apiVersion     = "2022-06-28"
)

type client struct {
	baseURL      string
	token        string
	connectionID string
	httpClient   *http.Client
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion request failed: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("notion request failed: status=%d message=%s", e.Status, e.Message)
}

// do sends one request and decodes a 2xx body into out. Retrying is the caller's concern.
func (c *client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return &platform.TransientError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &platform.TransientError{Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil {
			return nil
		}
		return json.Unmarshal(respBody, out)
	}

	apiErr := &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(respBody, &parsed) == nil {
		apiErr.Code = parsed.Code
		if strings.TrimSpace(parsed.Message) != "" {
			apiErr.Message = parsed.Message
		}
	}

	if resp.StatusCode == http.StatusUnauthorized || apiErr.Code == "unauthorized" {
		return connectiondomain.NewAuthError(connectiondomain.PlatformNotion, c.connectionID, "notion rejected the token", apiErr)
	}
	return platform.HTTPStatusError(resp.StatusCode, resp.Header.Get("Retry-After"), apiErr)
}
