package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	conn     *Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// Declare exchange
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// AcceptedEvent is published after a submitted capture has been recorded.
type AcceptedEvent struct {
	ReadingID       string `json:"reading_id"`
	MeterIdentifier string `json:"meter_identifier"`
	AgentID         string `json:"agent_id"`
	NewIndex        int    `json:"new_index"`
	Consumption     int    `json:"consumption"`
	Date            string `json:"date"`
	Flagged         bool   `json:"flagged"`
	FlagReason      string `json:"flag_reason,omitempty"`
}

// PublishAcceptedEvent publishes a recorded reading event
func (p *Publisher) PublishAcceptedEvent(ctx context.Context, event AcceptedEvent, routingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published accepted reading event",
		zap.String("routing_key", routingKey),
		zap.String("reading_id", event.ReadingID),
		zap.String("meter_identifier", event.MeterIdentifier),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
