package usecase

import (
	"strings"

	"pulse-backend/internal/ingest/internal/platform"
	"pulse-backend/internal/ingest/internal/platform/gcalendar"
	"pulse-backend/internal/ingest/internal/platform/gmail"
	"pulse-backend/internal/ingest/internal/platform/imap"
	"pulse-backend/internal/ingest/internal/platform/notion"
	"pulse-backend/internal/ingest/internal/platform/slack"
	"pulse-backend/pkg/config"
)

func AdapterOptions(cfg *config.Config) platform.Options {
	return platform.Options{
		CallTimeout:       cfg.AdapterCallTimeout,
		MaxRetries:        cfg.AdapterMaxRetries,
		BaseDelay:         cfg.AdapterBaseDelay,
		MaxDelay:          cfg.AdapterMaxDelay,
		BootstrapDays:     cfg.AdapterBootstrapDays,
		Concurrency:       cfg.AdapterResourceConcurrency,
		RequestsPerSecond: cfg.AdapterRequestsPerSecond,
	}.WithDefaults()
}

// DefaultAdapters builds one adapter per supported platform. Endpoint
// overrides from cfg point them at proxies or local fakes.
func DefaultAdapters(cfg *config.Config) platform.Registry {
	opts := AdapterOptions(cfg)

	gmailOpts, calendarOpts := opts, opts
	if endpoint := strings.TrimRight(cfg.GoogleAPIEndpoint, "/"); endpoint != "" {
		gmailOpts.BaseURL = endpoint
		calendarOpts.BaseURL = endpoint + "/calendar/v3"
	}
	slackOpts := opts
	slackOpts.BaseURL = cfg.SlackAPIURL
	notionOpts := opts
	notionOpts.BaseURL = cfg.NotionAPIURL

	return platform.NewRegistry(
		slack.New(slackOpts),
		gmail.New(gmailOpts),
		imap.New(opts),
		gcalendar.New(calendarOpts),
		notion.New(notionOpts),
	)
}
