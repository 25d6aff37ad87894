package usecase

import (
	"pulse-backend/internal/connection/domain"
	"pulse-backend/pkg/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Slack token rotation refreshes through the v2 access endpoint.
var slackEndpoint = oauth2.Endpoint{
	AuthURL:   "https://slack.com/oauth/v2/authorize",
	TokenURL:  "https://slack.com/api/oauth.v2.access",
	AuthStyle: oauth2.AuthStyleInParams,
}

var notionEndpoint = oauth2.Endpoint{
	AuthURL:   "https://api.notion.com/v1/oauth/authorize",
	TokenURL:  "https://api.notion.com/v1/oauth/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// OAuthConfigs returns the refresh clients per platform. Platforms without a configured client
// (and IMAP, which uses a password) are absent.
func OAuthConfigs(cfg *config.Config) map[domain.Platform]*oauth2.Config {
	configs := make(map[domain.Platform]*oauth2.Config)

	if cfg.GoogleClientID != "" {
		googleConfig := &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
		}
		configs[domain.PlatformGmail] = googleConfig
		configs[domain.PlatformGoogleCalendar] = googleConfig
	}
	if cfg.SlackClientID != "" {
		configs[domain.PlatformSlack] = &oauth2.Config{
			ClientID:     cfg.SlackClientID,
			ClientSecret: cfg.SlackClientSecret,
			Endpoint:     slackEndpoint,
		}
	}
	if cfg.NotionClientID != "" {
		configs[domain.PlatformNotion] = &oauth2.Config{
			ClientID:     cfg.NotionClientID,
			ClientSecret: cfg.NotionClientSecret,
			Endpoint:     notionEndpoint,
		}
	}
	return configs
}
