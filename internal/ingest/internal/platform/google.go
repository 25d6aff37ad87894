package platform

import (
	"errors"
	"net/http"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// GoogleHTTPClient authorizes requests with a bearer token on top of the adapter's transport.
func GoogleHTTPClient(base *http.Client, accessToken string) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   base.Transport,
		},
		Timeout: base.Timeout,
	}
}

// ClassifyGoogleError maps a googleapi error onto the adapter taxonomy.
func ClassifyGoogleError(platform connectiondomain.Platform, connectionID string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized:
		return connectiondomain.NewAuthError(platform, connectionID, "google rejected the token", err)
	case apiErr.Code == http.StatusTooManyRequests,
		apiErr.Code == http.StatusForbidden && googleRateLimited(apiErr):
		return &RateLimitError{RetryAfter: retryAfter(apiErr.Header), Err: err}
	}
	return HTTPStatusError(apiErr.Code, "", err)
}

func googleRateLimited(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}

func retryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	return parseRetryAfterSeconds(header.Get("Retry-After"))
}
