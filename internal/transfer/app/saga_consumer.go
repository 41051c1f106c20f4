/**
 * @description
 * This file implements the saga orchestrator consumer: it decodes each ledger
 * event by routing key, hands it to the repository's transactional saga
 * application, and translates the outcome into an ack or a redelivery.
 * Version conflicts nack so the broker replays the event against the fresh
 * saga state; out-of-order events are dropped once recorded in the inbox.
 *
 * @dependencies
 * - internal/transfer/store: Transactional saga event application.
 * - pkg/messaging: Wire contracts.
 * - pkg/rabbitmq: Delivery and handler types.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/mahmetunal/TransferHub/internal/transfer/store"
	"github.com/mahmetunal/TransferHub/pkg/messaging"
	"github.com/mahmetunal/TransferHub/pkg/rabbitmq"
)

const eventTimeout = 15 * time.Second

type SagaEventConsumer struct {
	repo store.Repository
}

func NewSagaEventConsumer(repo store.Repository) *SagaEventConsumer {
	return &SagaEventConsumer{repo: repo}
}

// Bindings maps every saga-relevant event routing key to the shared handler.
func (c *SagaEventConsumer) Bindings() map[string]rabbitmq.Handler {
	routes := []string{
		messaging.RouteTransferInitiated,
		messaging.RouteBalanceReserved,
		messaging.RouteBalanceReservationFailed,
		messaging.RouteDestinationCredited,
		messaging.RouteCreditFailed,
		messaging.RouteTransferCompleted,
		messaging.RouteTransferCancelled,
	}
	bindings := make(map[string]rabbitmq.Handler, len(routes))
	for _, route := range routes {
		bindings[route] = c.handleEvent
	}
	return bindings
}

func (c *SagaEventConsumer) handleEvent(d rabbitmq.Delivery) bool {
	event, err := decodeEvent(d.RoutingKey, d.Body)
	if err != nil {
		log.Printf("level=error component=saga msg=\"malformed event; dropping\" routing_key=%s message_id=%s err=%v", d.RoutingKey, d.MessageID, err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	result, err := c.repo.ProcessSagaEvent(ctx, d.MessageID, event)
	if err != nil {
		if errors.Is(err, store.ErrSagaConflict) {
			log.Printf("level=warn component=saga msg=\"version conflict; re-queuing\" routing_key=%s message_id=%s", d.RoutingKey, d.MessageID)
			return false
		}
		log.Printf("level=error component=saga msg=\"event processing failed; re-queuing\" routing_key=%s message_id=%s err=%v", d.RoutingKey, d.MessageID, err)
		return false
	}

	switch {
	case result.Duplicate:
		log.Printf("level=info component=saga msg=\"duplicate event skipped\" routing_key=%s message_id=%s", d.RoutingKey, d.MessageID)
	case result.Ignored:
		log.Printf("level=warn component=saga msg=\"unexpected event dropped\" routing_key=%s message_id=%s", d.RoutingKey, d.MessageID)
	default:
		log.Printf("level=info component=saga msg=\"event applied\" routing_key=%s message_id=%s", d.RoutingKey, d.MessageID)
	}
	return true
}

// decodeEvent unmarshals the payload into the concrete contract for its
// routing key so the saga machine can type-switch on it.
func decodeEvent(routingKey string, body []byte) (messaging.Message, error) {
	switch routingKey {
	case messaging.RouteTransferInitiated:
		var ev messaging.TransferInitiated
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case messaging.RouteBalanceReserved:
		var ev messaging.BalanceReserved
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case messaging.RouteBalanceReservationFailed:
		var ev messaging.BalanceReservationFailed
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case messaging.RouteDestinationCredited:
		var ev messaging.DestinationCredited
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case messaging.RouteCreditFailed:
		var ev messaging.CreditFailed
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case messaging.RouteTransferCompleted:
		var ev messaging.TransferCompleted
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case messaging.RouteTransferCancelled:
		var ev messaging.TransferCancelled
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, errors.New("no contract bound to routing key " + routingKey)
	}
}
