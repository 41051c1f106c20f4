package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reservation lifecycle states. A reservation is created active, and exactly
// one of Commit or Release moves it to its terminal state.
const (
	ReservationActive    = "active"
	ReservationCommitted = "committed"
	ReservationReleased  = "released"
)

var (
	ErrReservationCommitted = errors.New("reservation is already committed")
	ErrReservationReleased  = errors.New("reservation is already released")
)

// BalanceReservation holds funds debited from an account until the transfer
// outcome is known. Maps to the `balance_reservations` table, which carries a
// unique constraint on transfer_id so a redelivered reserve command cannot
// debit twice.
type BalanceReservation struct {
	ID         uuid.UUID       `json:"id"`
	AccountID  uuid.UUID       `json:"account_id"`
	TransferID uuid.UUID       `json:"transfer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func NewBalanceReservation(accountID, transferID uuid.UUID, amount decimal.Decimal, currency string) *BalanceReservation {
	now := time.Now().UTC()
	return &BalanceReservation{
		ID:         uuid.New(),
		AccountID:  accountID,
		TransferID: transferID,
		Amount:     amount,
		Currency:   currency,
		Status:     ReservationActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Commit finalizes the reservation: the held funds leave the ledger for good.
// Committing an already-committed reservation is a no-op so redeliveries are
// harmless; committing a released one is a protocol violation.
func (r *BalanceReservation) Commit() error {
	switch r.Status {
	case ReservationCommitted:
		return nil
	case ReservationReleased:
		return ErrReservationReleased
	}
	r.Status = ReservationCommitted
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Release marks the held funds as returned to the account. Releasing twice is
// a no-op; releasing a committed reservation is a protocol violation.
func (r *BalanceReservation) Release() error {
	switch r.Status {
	case ReservationReleased:
		return nil
	case ReservationCommitted:
		return ErrReservationCommitted
	}
	r.Status = ReservationReleased
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// IsActive reports whether the reservation still holds funds.
func (r *BalanceReservation) IsActive() bool {
	return r.Status == ReservationActive
}
