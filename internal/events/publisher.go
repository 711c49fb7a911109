// Package events publishes committed reservation changes to RabbitMQ so other
// systems (notifications, billing) can follow the booking calendar.
// Publishing is best effort: the booking is already committed when an event
// is sent, and failures are reported to the caller to log, never retried.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pkordes/carshare/backend/internal/domain"
)

// DefaultExchange is the topic exchange reservation events are published to.
// The routing key is the event type, e.g. "reservation.created".
const DefaultExchange = "carshare.reservations"

// Publisher sends reservation events over a single AMQP channel.
// It satisfies service.EventPublisher.
type Publisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex // amqp channels are not safe for concurrent publishing
	ch *amqp.Channel
}

// Dial connects to the broker and declares the durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events.Dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events.Dial: channel open: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events.Dial: exchange declare: %w", err)
	}
	return &Publisher{conn: conn, exchange: exchange, ch: ch}, nil
}

// Publish sends ev as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev domain.ReservationEvent) error {
	msg, err := newPublishing(ev)
	if err != nil {
		return fmt.Errorf("events.Publisher.Publish: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx,
		p.exchange,      // exchange
		string(ev.Type), // routing key
		false,           // mandatory
		false,           // immediate
		msg,
	); err != nil {
		return fmt.Errorf("events.Publisher.Publish: %w", err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ch.Close()
	return p.conn.Close()
}

func newPublishing(ev domain.ReservationEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	ts := ev.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ts,
		Type:         string(ev.Type),
		Body:         body,
	}, nil
}
