/**
 * @description
 * Generic transactional-outbox relay. Services enqueue messages into their
 * event_outbox table inside the same database transaction as the aggregate
 * mutation; this dispatcher polls the table, claims a batch of pending rows,
 * publishes them to RabbitMQ, and marks them published or schedules a retry
 * with exponential backoff. At-least-once delivery: a crash between publish
 * and mark leads to a redelivery, which the consumer-side inbox absorbs.
 *
 * @dependencies
 * - pkg/rabbitmq: Publisher used to emit claimed messages.
 */

package outbox

import (
	"context"
	"log"
	"time"
)

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 1200 * time.Millisecond
	defaultStaleProcessing = 2 * time.Minute
)

// Message is one claimed outbox row.
type Message struct {
	ID         int64
	Exchange   string
	RoutingKey string
	MessageID  string
	Payload    []byte
	Attempts   int
}

// Store is the slice of a service's repository the dispatcher needs. Both
// services implement it over their own event_outbox table.
type Store interface {
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]Message, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}

// Publisher is satisfied by rabbitmq.EventProducer.
type Publisher interface {
	PublishRaw(ctx context.Context, exchange, routingKey, messageID string, body []byte) error
}

type Dispatcher struct {
	store               Store
	publisher           Publisher
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
}

func NewDispatcher(store Store, publisher Publisher) *Dispatcher {
	return &Dispatcher{
		store:               store,
		publisher:           publisher,
		batchSize:           defaultBatchSize,
		pollInterval:        defaultPollInterval,
		staleProcessingTime: defaultStaleProcessing,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.FlushOnce(ctx); err != nil {
				log.Printf("level=error component=outbox_dispatcher msg=\"flush failed\" err=%v", err)
			}
		}
	}
}

// FlushOnce claims one batch and publishes it. Exported so tests and shutdown
// paths can drain synchronously.
func (d *Dispatcher) FlushOnce(ctx context.Context) error {
	staleAfterSeconds := int(d.staleProcessingTime.Seconds())
	messages, err := d.store.ClaimOutboxMessages(ctx, d.batchSize, staleAfterSeconds)
	if err != nil {
		return err
	}

	for _, message := range messages {
		if err := d.publisher.PublishRaw(ctx, message.Exchange, message.RoutingKey, message.MessageID, message.Payload); err != nil {
			retryAfter := retryDelaySeconds(message.Attempts)
			if markErr := d.store.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error()); markErr != nil {
				log.Printf("level=error component=outbox_dispatcher msg=\"mark failed errored\" outbox_id=%d err=%v", message.ID, markErr)
			}
			continue
		}
		if err := d.store.MarkOutboxPublished(ctx, message.ID); err != nil {
			log.Printf("level=error component=outbox_dispatcher msg=\"mark published errored\" outbox_id=%d err=%v", message.ID, err)
		}
	}
	return nil
}

func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	delay := 1 << min(attempt, 9)
	if delay > 300 {
		return 300
	}
	return delay
}
