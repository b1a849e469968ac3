// Package mailer implements the engine's Sender interface over RabbitMQ.
// Messages are published to a durable direct exchange and picked up by a
// separate delivery worker; the engine never talks SMTP itself.
package mailer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	authengine "github.com/sessionlab/authengine"
)

const appID = "authengine"

// Config locates the exchange emails are published to.
type Config struct {
	// URL is the amqp:// connection string.
	URL string
	// Exchange defaults to "email". Declared durable and direct.
	Exchange string
	// RoutingKey defaults to "email.send".
	RoutingKey string
}

// AMQP publishes emails to RabbitMQ. Safe for concurrent use; the channel
// is guarded because amqp channels are not.
type AMQP struct {
	conn *amqp.Connection

	mu  sync.Mutex
	chn *amqp.Channel

	exchange   string
	routingKey string
}

var _ authengine.Sender = (*AMQP)(nil)

// New dials the broker and declares the exchange.
func New(cfg Config) (*AMQP, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = "email"
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "email.send"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("mailer: dial broker: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mailer: open channel: %w", err)
	}

	if err := chn.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = chn.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("mailer: declare exchange: %w", err)
	}

	return &AMQP{
		conn:       conn,
		chn:        chn,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

// Send publishes one email as a persistent message. The body travels as the
// message payload; addressing and metadata ride in headers so the delivery
// worker does not need to parse the body.
func (m *AMQP) Send(ctx context.Context, email authengine.Email) error {
	contentType := email.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}

	pub := amqp.Publishing{
		MessageId:    uuid.NewString(),
		AppId:        appID,
		Timestamp:    time.Now(),
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		Priority:     email.Priority,
		Headers: amqp.Table{
			"to":      email.To,
			"subject": email.Subject,
		},
		Body: []byte(email.Body),
	}
	if email.TTL > 0 {
		// per-message expiration is a string of milliseconds
		pub.Expiration = strconv.FormatInt(email.TTL.Milliseconds(), 10)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.chn.PublishWithContext(ctx, m.exchange, m.routingKey, false, false, pub); err != nil {
		return fmt.Errorf("mailer: publish: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (m *AMQP) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.chn.Close(); err != nil {
		_ = m.conn.Close()
		return err
	}
	return m.conn.Close()
}
