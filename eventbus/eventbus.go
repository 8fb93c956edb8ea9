// Package eventbus carries internal status-change events published by the
// Health Monitor; no component in this module subscribes to them. It is
// grounded on the teacher stack's AMQP broker (same exchange/queue/publish
// shape) but repurposed: this is an in-process signal, not a cross-host
// worker protocol, so when no AMQP URI is configured it falls back to a
// buffered Go channel instead of failing startup.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"
)

const statusChangeExchange = "dbaas_status_change"

// StatusChangeEvent is published by the Health Monitor when an instance
// crosses K consecutive samples in the same direction.
type StatusChangeEvent struct {
	InstanceID string    `json:"instance_id"`
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	Streak     int       `json:"streak"`
	At         time.Time `json:"at"`
}

// Bus publishes and subscribes to StatusChangeEvents.
type Bus interface {
	PublishStatusChange(ctx context.Context, ev StatusChangeEvent) error
	SubscribeStatusChange(ctx context.Context) (<-chan StatusChangeEvent, error)
	Close() error
}

// memoryBus is the zero-config fallback: a single buffered channel shared
// by every subscriber, adequate for a single-process control plane.
type memoryBus struct {
	ch chan StatusChangeEvent
}

// NewMemoryBus returns an in-process event bus requiring no external broker.
func NewMemoryBus() Bus {
	return &memoryBus{ch: make(chan StatusChangeEvent, 256)}
}

func (m *memoryBus) PublishStatusChange(ctx context.Context, ev StatusChangeEvent) error {
	select {
	case m.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("eventbus: memory bus is full, dropping status change event")
	}
}

func (m *memoryBus) SubscribeStatusChange(ctx context.Context) (<-chan StatusChangeEvent, error) {
	return m.ch, nil
}

func (m *memoryBus) Close() error { return nil }

// amqpBus publishes status-change events onto a durable direct exchange,
// for deployments that already run RabbitMQ alongside the control plane.
type amqpBus struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPBus dials uri and declares the status-change exchange.
func NewAMQPBus(uri string) (Bus, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, errors.Wrap(err, "dialing event bus broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "opening event bus channel")
	}
	if err := ch.ExchangeDeclare(statusChangeExchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrap(err, "declaring status change exchange")
	}
	return &amqpBus{conn: conn, ch: ch}, nil
}

func (a *amqpBus) PublishStatusChange(ctx context.Context, ev StatusChangeEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encoding status change event")
	}
	return a.ch.Publish(statusChangeExchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
}

func (a *amqpBus) SubscribeStatusChange(ctx context.Context) (<-chan StatusChangeEvent, error) {
	q, err := a.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, errors.Wrap(err, "declaring subscriber queue")
	}
	if err := a.ch.QueueBind(q.Name, "", statusChangeExchange, false, nil); err != nil {
		return nil, errors.Wrap(err, "binding subscriber queue")
	}
	deliveries, err := a.ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, errors.Wrap(err, "consuming subscriber queue")
	}

	out := make(chan StatusChangeEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var ev StatusChangeEvent
				if err := json.Unmarshal(d.Body, &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (a *amqpBus) Close() error {
	a.ch.Close()
	return a.conn.Close()
}
