package saga

import (
	"errors"
	"fmt"
	"time"

	"github.com/mahmetunal/TransferHub/internal/transfer/domain"
	"github.com/mahmetunal/TransferHub/pkg/messaging"
)

// ErrUnexpectedEvent marks an event that has no transition from the saga's
// current state. The consumer drops these: redelivering cannot change the
// outcome, and the inbox already filtered true duplicates.
var ErrUnexpectedEvent = errors.New("event not valid in current saga state")

// Start creates a new saga instance from TransferInitiated and returns the
// first command to emit.
func Start(ev messaging.TransferInitiated) (*State, []messaging.Message) {
	state := &State{
		TransferID:         ev.TransferID,
		CurrentState:       StateReservingBalance,
		SourceAccount:      ev.SourceAccount,
		DestinationAccount: ev.DestinationAccount,
		Amount:             ev.Amount,
		Currency:           ev.Currency,
		InitiatedBy:        ev.InitiatedBy,
		Version:            1,
		CreatedAt:          time.Now().UTC(),
	}
	commands := []messaging.Message{
		messaging.ReserveBalance{
			TransferID:  ev.TransferID,
			AccountIBAN: ev.SourceAccount,
			Amount:      ev.Amount,
			Currency:    ev.Currency,
			InitiatedBy: ev.InitiatedBy,
		},
	}
	return state, commands
}

// Transition applies one event to an existing saga instance, mutating the
// state in memory and returning the commands to emit. The caller persists the
// new state and the commands atomically.
func Transition(state *State, event messaging.Message) ([]messaging.Message, error) {
	switch ev := event.(type) {
	case messaging.BalanceReserved:
		return onBalanceReserved(state, ev)
	case messaging.BalanceReservationFailed:
		return onBalanceReservationFailed(state, ev)
	case messaging.DestinationCredited:
		return onDestinationCredited(state, ev)
	case messaging.CreditFailed:
		return onCreditFailed(state, ev)
	case messaging.TransferCompleted:
		return onTransferCompleted(state, ev)
	case messaging.TransferCancelled:
		return onTransferCancelled(state, ev)
	default:
		return nil, fmt.Errorf("%w: %T in state %s", ErrUnexpectedEvent, event, state.CurrentState)
	}
}

func onBalanceReserved(state *State, ev messaging.BalanceReserved) ([]messaging.Message, error) {
	if state.CurrentState != StateReservingBalance {
		return nil, unexpected(state, "BalanceReserved")
	}
	reservationID := ev.ReservationID
	state.ReservationID = &reservationID
	state.CurrentState = StateCreditingDestination

	return []messaging.Message{
		messaging.CreditAccount{
			TransferID:  state.TransferID,
			AccountIBAN: state.DestinationAccount,
			Amount:      state.Amount,
			Currency:    state.Currency,
		},
	}, nil
}

func onBalanceReservationFailed(state *State, ev messaging.BalanceReservationFailed) ([]messaging.Message, error) {
	if state.CurrentState != StateReservingBalance {
		return nil, unexpected(state, "BalanceReservationFailed")
	}
	reason := domain.TruncateReason(ev.Reason)
	state.FailureReason = &reason
	state.CurrentState = StateFailed
	// No finalize: the Failed instance stays in the active set. CancelTransfer
	// is emitted but nothing consumes it.
	return []messaging.Message{
		messaging.CancelTransfer{TransferID: state.TransferID, Reason: reason},
	}, nil
}

func onDestinationCredited(state *State, _ messaging.DestinationCredited) ([]messaging.Message, error) {
	if state.CurrentState != StateCreditingDestination {
		return nil, unexpected(state, "DestinationCredited")
	}
	if state.ReservationID == nil {
		return nil, fmt.Errorf("%w: DestinationCredited without a reservation id", ErrUnexpectedEvent)
	}
	state.CurrentState = StateCompletingTransfer

	return []messaging.Message{
		messaging.CommitReservation{TransferID: state.TransferID, ReservationID: *state.ReservationID},
	}, nil
}

func onCreditFailed(state *State, ev messaging.CreditFailed) ([]messaging.Message, error) {
	if state.CurrentState != StateCreditingDestination {
		return nil, unexpected(state, "CreditFailed")
	}
	if state.ReservationID == nil {
		return nil, fmt.Errorf("%w: CreditFailed without a reservation id", ErrUnexpectedEvent)
	}
	reason := domain.TruncateReason(ev.Reason)
	state.FailureReason = &reason
	state.CurrentState = StateRollingBack

	return []messaging.Message{
		messaging.ReleaseReservation{TransferID: state.TransferID, ReservationID: *state.ReservationID},
	}, nil
}

func onTransferCompleted(state *State, _ messaging.TransferCompleted) ([]messaging.Message, error) {
	if state.CurrentState != StateCompletingTransfer {
		return nil, unexpected(state, "TransferCompleted")
	}
	now := time.Now().UTC()
	state.CurrentState = StateCompleted
	state.CompletedAt = &now
	state.Finalized = true
	return nil, nil
}

func onTransferCancelled(state *State, _ messaging.TransferCancelled) ([]messaging.Message, error) {
	if state.CurrentState != StateRollingBack {
		return nil, unexpected(state, "TransferCancelled")
	}
	state.CurrentState = StateCancelled
	state.Finalized = true
	return nil, nil
}

func unexpected(state *State, eventName string) error {
	return fmt.Errorf("%w: %s in state %s for transfer %s",
		ErrUnexpectedEvent, eventName, state.CurrentState, state.TransferID)
}
