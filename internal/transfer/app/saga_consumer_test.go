package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahmetunal/TransferHub/internal/transfer/store"
	"github.com/mahmetunal/TransferHub/pkg/messaging"
	"github.com/mahmetunal/TransferHub/pkg/rabbitmq"
)

type sagaStubRepo struct {
	store.Repository

	result *store.SagaResult
	err    error
	events []messaging.Message
}

func (s *sagaStubRepo) ProcessSagaEvent(_ context.Context, _ string, event messaging.Message) (*store.SagaResult, error) {
	s.events = append(s.events, event)
	return s.result, s.err
}

func eventDelivery(t *testing.T, msg messaging.Message) rabbitmq.Delivery {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return rabbitmq.Delivery{MessageID: msg.DeduplicationKey(), RoutingKey: msg.RoutingKey(), Body: body}
}

func TestHandleEvent_DecodesByRoutingKeyAndAcks(t *testing.T) {
	repo := &sagaStubRepo{result: &store.SagaResult{}}
	consumer := NewSagaEventConsumer(repo)

	reservationID := uuid.New()
	ev := messaging.BalanceReserved{TransferID: uuid.New(), ReservationID: reservationID}
	acked := consumer.handleEvent(eventDelivery(t, ev))

	assert.True(t, acked)
	require.Len(t, repo.events, 1)
	decoded, ok := repo.events[0].(messaging.BalanceReserved)
	require.True(t, ok, "payload must decode into the contract bound to the routing key")
	assert.Equal(t, reservationID, decoded.ReservationID)
}

func TestHandleEvent_VersionConflictRequeues(t *testing.T) {
	repo := &sagaStubRepo{err: store.ErrSagaConflict}
	consumer := NewSagaEventConsumer(repo)

	acked := consumer.handleEvent(eventDelivery(t, messaging.TransferCompleted{TransferID: uuid.New()}))
	assert.False(t, acked)
}

func TestHandleEvent_InfrastructureErrorRequeues(t *testing.T) {
	repo := &sagaStubRepo{err: errors.New("db down")}
	consumer := NewSagaEventConsumer(repo)

	acked := consumer.handleEvent(eventDelivery(t, messaging.CreditFailed{TransferID: uuid.New()}))
	assert.False(t, acked)
}

func TestHandleEvent_DuplicateAndIgnoredAck(t *testing.T) {
	for _, result := range []*store.SagaResult{{Duplicate: true}, {Ignored: true}} {
		repo := &sagaStubRepo{result: result}
		consumer := NewSagaEventConsumer(repo)
		assert.True(t, consumer.handleEvent(eventDelivery(t, messaging.DestinationCredited{TransferID: uuid.New()})))
	}
}

func TestHandleEvent_MalformedPayloadDropped(t *testing.T) {
	repo := &sagaStubRepo{}
	consumer := NewSagaEventConsumer(repo)

	acked := consumer.handleEvent(rabbitmq.Delivery{
		RoutingKey: messaging.RouteBalanceReserved,
		Body:       []byte("{"),
	})
	assert.True(t, acked)
	assert.Empty(t, repo.events)
}

func TestBindings_CoverEverySagaEvent(t *testing.T) {
	consumer := NewSagaEventConsumer(&sagaStubRepo{})
	bindings := consumer.Bindings()

	for _, route := range []string{
		messaging.RouteTransferInitiated,
		messaging.RouteBalanceReserved,
		messaging.RouteBalanceReservationFailed,
		messaging.RouteDestinationCredited,
		messaging.RouteCreditFailed,
		messaging.RouteTransferCompleted,
		messaging.RouteTransferCancelled,
	} {
		assert.Contains(t, bindings, route)
	}
}
