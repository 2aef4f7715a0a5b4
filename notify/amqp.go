package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher sends one message to an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp091.Publishing) error
}

// AMQPPublisher owns a RabbitMQ connection and channel.
type AMQPPublisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewAMQPPublisher dials the broker and declares exchange as a durable topic exchange.
func NewAMQPPublisher(amqpURL, exchange string) (*AMQPPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.Dial(cleanURL)
	if err != nil {
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, channel: channel}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp091.Publishing) error {
	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// FallbackPublisher drops messages when the broker was unavailable at startup.
type FallbackPublisher struct {
	Logger zerolog.Logger
}

func (p *FallbackPublisher) Publish(_ context.Context, exchange, routingKey string, _ amqp091.Publishing) error {
	p.Logger.Warn().Str("exchange", exchange).Str("routing_key", routingKey).Msg("Publish skipped, broker unavailable")
	return nil
}

// AMQPSink publishes each request as a JSON message routed by
// "notification.<kind>".
type AMQPSink struct {
	publisher Publisher
	exchange  string
	now       func() time.Time
}

func NewAMQPSink(publisher Publisher, exchange string) *AMQPSink {
	return &AMQPSink{publisher: publisher, exchange: exchange, now: time.Now}
}

func (s *AMQPSink) Send(ctx context.Context, reqs []Request) error {
	for _, r := range reqs {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding notification: %w", err)
		}
		msg := amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    s.now(),
			Type:         string(r.Kind),
			Body:         body,
		}
		if err := s.publisher.Publish(ctx, s.exchange, "notification."+string(r.Kind), msg); err != nil {
			return fmt.Errorf("publishing notification: %w", err)
		}
	}
	return nil
}
