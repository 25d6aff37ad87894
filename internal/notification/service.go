package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	connectiondomain "pulse-backend/internal/connection/domain"
	"pulse-backend/internal/ingest/domain"
	"pulse-backend/internal/ingest/usecase"

	"cloud.google.com/go/pubsub"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes for a users.watch registration.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

type ConnectionFinder interface {
	FindByAccountEmail(ctx context.Context, platform connectiondomain.Platform, email string) (*connectiondomain.PlatformConnection, error)
}

// PushListener turns Gmail push notifications into early push-triggered syncs.
// It goes through the dispatcher, so the usual lock and drop rules apply.
type PushListener struct {
	pubsubClient *pubsub.Client
	connections  ConnectionFinder
	enqueuer     usecase.Enqueuer
	topicName    string
	subName      string

	mu sync.Mutex
	// Last historyId handled per connection.
	lastHistoryID map[string]uint64
}

func NewPushListener(ctx context.Context, projectID, topicName, credentialsFile string, connections ConnectionFinder, enqueuer usecase.Enqueuer) (*PushListener, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	listener := newListener(connections, enqueuer)
	listener.pubsubClient = client
	listener.topicName = topicName
	listener.subName = topicName + "-sub"
	return listener, nil
}

func newListener(connections ConnectionFinder, enqueuer usecase.Enqueuer) *PushListener {
	return &PushListener{
		connections:   connections,
		enqueuer:      enqueuer,
		lastHistoryID: make(map[string]uint64),
	}
}

// Start receives messages until ctx is done.
func (l *PushListener) Start(ctx context.Context) {
	log.Infof("[PubSub] Starting push listener with topic: %s, subscription: %s", l.topicName, l.subName)

	sub, err := l.ensureSubscription(ctx)
	if err != nil {
		log.WithError(err).Error("[PubSub] Push listener disabled")
		return
	}

	log.Infof("[PubSub] Listening for messages on subscription: %s", l.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		l.HandleNotification(ctx, msg.Data)
		msg.Ack()
	})
	if err != nil {
		log.WithError(err).Error("[PubSub] Error receiving messages")
	}
}

func (l *PushListener) Close() error {
	if l.pubsubClient == nil {
		return nil
	}
	return l.pubsubClient.Close()
}

func (l *PushListener) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := l.pubsubClient.Subscription(l.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription %s: %w", l.subName, err)
	}
	if exists {
		return sub, nil
	}

	topic := l.pubsubClient.Topic(l.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %s: %w", l.topicName, err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist", l.topicName)
	}

	sub, err = l.pubsubClient.CreateSubscription(ctx, l.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription %s: %w", l.subName, err)
	}
	log.Infof("[PubSub] Created subscription: %s", l.subName)
	return sub, nil
}

// HandleNotification reports whether the message led to an enqueued sync.
// Malformed and unknown messages are dropped; redelivering them cannot help.
func (l *PushListener) HandleNotification(ctx context.Context, data []byte) bool {
	var notification GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		log.WithError(err).Warn("[PubSub] Failed to unmarshal notification")
		return false
	}
	entry := log.WithFields(log.Fields{"email": notification.EmailAddress, "history_id": notification.HistoryID})

	conn, err := l.connections.FindByAccountEmail(ctx, connectiondomain.PlatformGmail, notification.EmailAddress)
	if err != nil {
		entry.WithError(err).Error("[PubSub] Connection lookup failed")
		return false
	}
	if conn == nil || !conn.Syncable() {
		entry.Debug("[PubSub] No syncable connection for address")
		return false
	}

	if !l.advanceHistory(conn.ID, notification.HistoryID) {
		entry.Debug("[PubSub] Skipping already seen historyId")
		return false
	}

	pair := domain.Pair{UserID: conn.UserID, Platform: conn.Platform}
	if !l.enqueuer.Enqueue(pair, domain.TriggerPush) {
		entry.WithField("pair", pair.Key()).Debug("[PubSub] Push sync dropped, pair already pending")
		return false
	}
	entry.WithField("pair", pair.Key()).Info("[PubSub] Enqueued push sync")
	return true
}

func (l *PushListener) advanceHistory(connectionID string, historyID uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastHistoryID[connectionID]; ok && historyID <= last {
		return false
	}
	l.lastHistoryID[connectionID] = historyID
	return true
}
