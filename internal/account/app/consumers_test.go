package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahmetunal/TransferHub/internal/account/store"
	"github.com/mahmetunal/TransferHub/pkg/messaging"
	"github.com/mahmetunal/TransferHub/pkg/rabbitmq"
)

// stubRepository embeds the interface so tests only override what they use.
type stubRepository struct {
	store.Repository

	reserveResult *store.CommandResult
	reserveErr    error
	reserveCalls  []messaging.ReserveBalance

	commitResult *store.CommandResult
	commitErr    error

	creditResult *store.CommandResult
	creditErr    error

	releaseResult *store.CommandResult
	releaseErr    error
}

func (s *stubRepository) ReserveBalance(_ context.Context, _ string, cmd messaging.ReserveBalance) (*store.CommandResult, error) {
	s.reserveCalls = append(s.reserveCalls, cmd)
	return s.reserveResult, s.reserveErr
}

func (s *stubRepository) CreditAccount(_ context.Context, _ string, _ messaging.CreditAccount) (*store.CommandResult, error) {
	return s.creditResult, s.creditErr
}

func (s *stubRepository) CommitReservation(_ context.Context, _ string, _ messaging.CommitReservation) (*store.CommandResult, error) {
	return s.commitResult, s.commitErr
}

func (s *stubRepository) ReleaseReservation(_ context.Context, _ string, _ messaging.ReleaseReservation) (*store.CommandResult, error) {
	return s.releaseResult, s.releaseErr
}

func delivery(t *testing.T, msg messaging.Message) rabbitmq.Delivery {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return rabbitmq.Delivery{
		MessageID:  msg.DeduplicationKey(),
		RoutingKey: msg.RoutingKey(),
		Body:       body,
	}
}

func TestHandleReserveBalance_AcksAndPassesCommand(t *testing.T) {
	repo := &stubRepository{reserveResult: &store.CommandResult{ReservationID: uuid.New()}}
	consumer := NewSagaCommandConsumer(repo)

	cmd := messaging.ReserveBalance{
		TransferID:  uuid.New(),
		AccountIBAN: "TR330006100519786457841326",
		Amount:      decimal.RequireFromString("75.50"),
		Currency:    "TRY",
	}
	acked := consumer.handleReserveBalance(delivery(t, cmd))

	assert.True(t, acked)
	require.Len(t, repo.reserveCalls, 1)
	assert.Equal(t, cmd.TransferID, repo.reserveCalls[0].TransferID)
	assert.True(t, repo.reserveCalls[0].Amount.Equal(cmd.Amount))
}

func TestHandleReserveBalance_BusinessFailureStillAcks(t *testing.T) {
	repo := &stubRepository{reserveResult: &store.CommandResult{FailureReason: "insufficient balance"}}
	consumer := NewSagaCommandConsumer(repo)

	acked := consumer.handleReserveBalance(delivery(t, messaging.ReserveBalance{TransferID: uuid.New()}))
	assert.True(t, acked, "business failures are final; the failure event is already in the outbox")
}

func TestHandleReserveBalance_InfrastructureErrorNacks(t *testing.T) {
	repo := &stubRepository{reserveErr: errors.New("connection refused")}
	consumer := NewSagaCommandConsumer(repo)

	acked := consumer.handleReserveBalance(delivery(t, messaging.ReserveBalance{TransferID: uuid.New()}))
	assert.False(t, acked)
}

func TestHandleReserveBalance_MalformedPayloadDropped(t *testing.T) {
	repo := &stubRepository{}
	consumer := NewSagaCommandConsumer(repo)

	acked := consumer.handleReserveBalance(rabbitmq.Delivery{Body: []byte("not-json")})
	assert.True(t, acked)
	assert.Empty(t, repo.reserveCalls)
}

func TestHandleCommitReservation_ProtocolViolationDropped(t *testing.T) {
	repo := &stubRepository{commitErr: store.ErrReservationNotFound}
	consumer := NewSagaCommandConsumer(repo)

	cmd := messaging.CommitReservation{TransferID: uuid.New(), ReservationID: uuid.New()}
	acked := consumer.handleCommitReservation(delivery(t, cmd))
	assert.True(t, acked, "a commit that cannot be applied has no compensation; drop it")
}

func TestHandleCommitReservation_InfrastructureErrorNacks(t *testing.T) {
	repo := &stubRepository{commitErr: errors.New("db down")}
	consumer := NewSagaCommandConsumer(repo)

	cmd := messaging.CommitReservation{TransferID: uuid.New(), ReservationID: uuid.New()}
	assert.False(t, consumer.handleCommitReservation(delivery(t, cmd)))
}

func TestHandleReleaseReservation_DuplicateAcks(t *testing.T) {
	repo := &stubRepository{releaseResult: &store.CommandResult{Duplicate: true}}
	consumer := NewSagaCommandConsumer(repo)

	cmd := messaging.ReleaseReservation{TransferID: uuid.New(), ReservationID: uuid.New()}
	assert.True(t, consumer.handleReleaseReservation(delivery(t, cmd)))
}

func TestHandleCreditAccount_BusinessFailureStillAcks(t *testing.T) {
	repo := &stubRepository{creditResult: &store.CommandResult{FailureReason: "destination account not found"}}
	consumer := NewSagaCommandConsumer(repo)

	cmd := messaging.CreditAccount{TransferID: uuid.New(), AccountIBAN: "DE89370400440532013000"}
	assert.True(t, consumer.handleCreditAccount(delivery(t, cmd)))
}

func TestBindings_CoverAllCommandRoutes(t *testing.T) {
	consumer := NewSagaCommandConsumer(&stubRepository{})
	bindings := consumer.Bindings()

	for _, route := range []string{
		messaging.RouteReserveBalance,
		messaging.RouteCreditAccount,
		messaging.RouteCommitReservation,
		messaging.RouteReleaseReservation,
	} {
		assert.Contains(t, bindings, route)
	}
	// cancel_transfer intentionally has no consumer anywhere.
	assert.NotContains(t, bindings, messaging.RouteCancelTransfer)
}
