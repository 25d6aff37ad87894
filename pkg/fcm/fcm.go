package fcm

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// maxMulticastTokens is the FCM limit for one multicast request.
const maxMulticastTokens = 500

type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Client sends alerts through Firebase Cloud Messaging.
type Client struct {
	messaging multicaster
}

func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	log.Info("[FCM] Client initialized")
	return &Client{messaging: messagingClient}, nil
}

// Alert is a user-facing notification with a small data payload.
type Alert struct {
	Title string
	Body  string
	Data  map[string]string
	// TTL bounds how long FCM keeps the alert for an offline device. Zero uses the FCM default.
	TTL time.Duration
}

// Result summarizes one alert fan-out. Stale lists tokens FCM reported as
// unregistered or malformed; callers should forget them.
type Result struct {
	Delivered int
	Failed    int
	Stale     []string
}

// SendAlert delivers alert to every token, batching to the multicast limit.
// A transport error aborts the remaining batches.
func (c *Client) SendAlert(ctx context.Context, tokens []string, alert Alert) (Result, error) {
	var result Result
	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := min(start+maxMulticastTokens, len(tokens))
		batch := tokens[start:end]

		resp, err := c.messaging.SendEachForMulticast(ctx, multicastFor(batch, alert))
		if err != nil {
			return result, fmt.Errorf("failed to send FCM multicast: %w", err)
		}
		for i, r := range resp.Responses {
			if r.Success {
				result.Delivered++
				continue
			}
			result.Failed++
			if staleToken(r.Error) {
				result.Stale = append(result.Stale, batch[i])
				continue
			}
			log.WithError(r.Error).Warn("[FCM] Delivery failed")
		}
	}

	log.WithFields(log.Fields{
		"delivered": result.Delivered,
		"failed":    result.Failed,
		"stale":     len(result.Stale),
	}).Info("[FCM] Alert sent")
	return result, nil
}

func multicastFor(tokens []string, alert Alert) *messaging.MulticastMessage {
	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: alert.Title,
			Body:  alert.Body,
		},
		Data:    alert.Data,
		Android: &messaging.AndroidConfig{Priority: "high"},
	}
	if alert.TTL > 0 {
		ttl := alert.TTL
		msg.Android.TTL = &ttl
	}
	return msg
}

func staleToken(err error) bool {
	return err != nil && (messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err))
}
