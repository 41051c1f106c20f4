package saga

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahmetunal/TransferHub/pkg/messaging"
)

func initiated() messaging.TransferInitiated {
	return messaging.TransferInitiated{
		TransferID:         uuid.New(),
		SourceAccount:      "TR330006100519786457841326",
		DestinationAccount: "DE89370400440532013000",
		Amount:             decimal.RequireFromString("250.00"),
		Currency:           "EUR",
		InitiatedBy:        "user-7",
	}
}

func TestStart_EmitsReserveBalanceWithTransferParameters(t *testing.T) {
	ev := initiated()
	state, commands := Start(ev)

	assert.Equal(t, StateReservingBalance, state.CurrentState)
	assert.Equal(t, 1, state.Version)
	assert.False(t, state.Finalized)

	require.Len(t, commands, 1)
	reserve, ok := commands[0].(messaging.ReserveBalance)
	require.True(t, ok)
	assert.Equal(t, ev.TransferID, reserve.TransferID)
	assert.Equal(t, ev.SourceAccount, reserve.AccountIBAN)
	assert.True(t, reserve.Amount.Equal(ev.Amount))
	assert.Equal(t, "reserve-balance-"+ev.TransferID.String(), reserve.DeduplicationKey())
}

func TestHappyPath_ReserveCreditCommitComplete(t *testing.T) {
	ev := initiated()
	state, _ := Start(ev)
	reservationID := uuid.New()

	commands, err := Transition(state, messaging.BalanceReserved{TransferID: ev.TransferID, ReservationID: reservationID})
	require.NoError(t, err)
	assert.Equal(t, StateCreditingDestination, state.CurrentState)
	require.Len(t, commands, 1)
	credit := commands[0].(messaging.CreditAccount)
	assert.Equal(t, ev.DestinationAccount, credit.AccountIBAN)

	commands, err = Transition(state, messaging.DestinationCredited{TransferID: ev.TransferID})
	require.NoError(t, err)
	assert.Equal(t, StateCompletingTransfer, state.CurrentState)
	require.Len(t, commands, 1)
	commit := commands[0].(messaging.CommitReservation)
	assert.Equal(t, reservationID, commit.ReservationID)

	commands, err = Transition(state, messaging.TransferCompleted{TransferID: ev.TransferID})
	require.NoError(t, err)
	assert.Empty(t, commands)
	assert.Equal(t, StateCompleted, state.CurrentState)
	assert.True(t, state.Finalized)
	assert.NotNil(t, state.CompletedAt)
}

func TestReservationFailure_EntersFailedWithoutFinalize(t *testing.T) {
	ev := initiated()
	state, _ := Start(ev)

	longReason := strings.Repeat("r", 600)
	commands, err := Transition(state, messaging.BalanceReservationFailed{TransferID: ev.TransferID, Reason: longReason})
	require.NoError(t, err)

	assert.Equal(t, StateFailed, state.CurrentState)
	assert.False(t, state.Finalized, "failed sagas are never retired")
	require.NotNil(t, state.FailureReason)
	assert.Len(t, *state.FailureReason, 500)

	require.Len(t, commands, 1)
	cancel := commands[0].(messaging.CancelTransfer)
	assert.Equal(t, ev.TransferID, cancel.TransferID)
}

func TestCreditFailure_RollsBackThenCancels(t *testing.T) {
	ev := initiated()
	state, _ := Start(ev)
	reservationID := uuid.New()

	_, err := Transition(state, messaging.BalanceReserved{TransferID: ev.TransferID, ReservationID: reservationID})
	require.NoError(t, err)

	commands, err := Transition(state, messaging.CreditFailed{TransferID: ev.TransferID, Reason: "destination account not found"})
	require.NoError(t, err)
	assert.Equal(t, StateRollingBack, state.CurrentState)
	require.Len(t, commands, 1)
	release := commands[0].(messaging.ReleaseReservation)
	assert.Equal(t, reservationID, release.ReservationID)

	commands, err = Transition(state, messaging.TransferCancelled{TransferID: ev.TransferID})
	require.NoError(t, err)
	assert.Empty(t, commands)
	assert.Equal(t, StateCancelled, state.CurrentState)
	assert.True(t, state.Finalized)
}

func TestTransition_OutOfOrderEventRejected(t *testing.T) {
	ev := initiated()
	state, _ := Start(ev)

	_, err := Transition(state, messaging.DestinationCredited{TransferID: ev.TransferID})
	assert.ErrorIs(t, err, ErrUnexpectedEvent)
	assert.Equal(t, StateReservingBalance, state.CurrentState, "state must not change on a rejected event")
}

func TestTransition_EventAfterFinalizeRejected(t *testing.T) {
	ev := initiated()
	state, _ := Start(ev)
	reservationID := uuid.New()

	_, err := Transition(state, messaging.BalanceReserved{TransferID: ev.TransferID, ReservationID: reservationID})
	require.NoError(t, err)
	_, err = Transition(state, messaging.DestinationCredited{TransferID: ev.TransferID})
	require.NoError(t, err)
	_, err = Transition(state, messaging.TransferCompleted{TransferID: ev.TransferID})
	require.NoError(t, err)

	_, err = Transition(state, messaging.TransferCompleted{TransferID: ev.TransferID})
	assert.ErrorIs(t, err, ErrUnexpectedEvent)
}

func TestCommandDeduplicationKeysAreStablePerStep(t *testing.T) {
	ev := initiated()
	stateA, commandsA := Start(ev)
	_, commandsB := Start(ev)
	assert.Equal(t, commandsA[0].DeduplicationKey(), commandsB[0].DeduplicationKey(),
		"replaying the same initiating event must not mint a new command identity")

	reservationID := uuid.New()
	_, err := Transition(stateA, messaging.BalanceReserved{TransferID: ev.TransferID, ReservationID: reservationID})
	require.NoError(t, err)

	commands, err := Transition(stateA, messaging.DestinationCredited{TransferID: ev.TransferID})
	require.NoError(t, err)
	assert.Equal(t,
		"commit-reservation-"+ev.TransferID.String()+"-"+reservationID.String(),
		commands[0].DeduplicationKey())
}
