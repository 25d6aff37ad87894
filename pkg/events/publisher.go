package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

const RoutingKeySyncCompleted = "sync.completed"

type Publisher struct {
	client   *Client
	exchange string
}

func NewPublisher(client *Client, exchange string) *Publisher {
	return &Publisher{
		client:   client,
		exchange: exchange,
	}
}

// Publish sends message as persistent JSON on the publisher's exchange.
func (p *Publisher) Publish(ctx context.Context, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	err = p.client.Channel().PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to exchange '%s' with routing key '%s': %w", p.exchange, routingKey, err)
	}

	log.WithFields(log.Fields{
		"exchange":   p.exchange,
		"routingKey": routingKey,
	}).Debug("[Events] Message published")
	return nil
}
