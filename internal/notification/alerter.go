package notification

import (
	"context"
	"fmt"
	"time"

	authrepo "pulse-backend/internal/auth/repository"
	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/pkg/fcm"

	log "github.com/sirupsen/logrus"
)

type PushSender interface {
	SendAlert(ctx context.Context, tokens []string, alert fcm.Alert) (fcm.Result, error)
}

// Reconnect prompts lose their value after a day.
const alertTTL = 24 * time.Hour

// DeviceAlerter pushes an auth-failure alert to every device of the connection owner.
type DeviceAlerter struct {
	sender PushSender
	tokens authrepo.DeviceTokenRepository
}

func NewDeviceAlerter(sender PushSender, tokens authrepo.DeviceTokenRepository) *DeviceAlerter {
	return &DeviceAlerter{sender: sender, tokens: tokens}
}

func (a *DeviceAlerter) NotifyAuthFailure(ctx context.Context, conn *connectiondomain.PlatformConnection, reason string) {
	entry := log.WithFields(log.Fields{"user_id": conn.UserID, "platform": conn.Platform})

	tokens, err := a.tokens.GetTokensByUserID(conn.UserID)
	if err != nil {
		entry.WithError(err).Error("[FCM] Error getting device tokens")
		return
	}
	if len(tokens) == 0 {
		entry.Debug("[FCM] No device tokens, skipping auth alert")
		return
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	result, err := a.sender.SendAlert(ctx, tokenStrings, fcm.Alert{
		Title: fmt.Sprintf("Reconnect %s", displayName(conn.Platform)),
		Body:  fmt.Sprintf("Syncing stopped: %s", reason),
		Data: map[string]string{
			"type":          "connection_auth_failure",
			"connection_id": conn.ID,
			"platform":      string(conn.Platform),
			"click_action":  "/connections",
		},
		TTL: alertTTL,
	})
	if err != nil {
		entry.WithError(err).Error("[FCM] Error sending auth alert")
		return
	}

	for _, token := range result.Stale {
		if err := a.tokens.DeleteToken(token); err != nil {
			entry.WithError(err).Warn("[FCM] Failed to delete stale device token")
		}
	}
}

func displayName(platform connectiondomain.Platform) string {
	switch platform {
	case connectiondomain.PlatformSlack:
		return "Slack"
	case connectiondomain.PlatformGmail:
		return "Gmail"
	case connectiondomain.PlatformIMAP:
		return "your mailbox"
	case connectiondomain.PlatformGoogleCalendar:
		return "Google Calendar"
	case connectiondomain.PlatformNotion:
		return "Notion"
	}
	return string(platform)
}
