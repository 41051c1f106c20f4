/**
 * @description
 * This package implements the transfer saga orchestrator: one state machine
 * instance per transfer, correlated by transfer id, driven by the ledger
 * events and emitting the next command at each step. The machine itself is
 * pure; the store applies its output under an optimistic version check so
 * concurrent deliveries for the same transfer serialize instead of merging.
 *
 * @dependencies
 * - pkg/messaging: The events consumed and commands emitted.
 * - internal/transfer/domain: Failure reason truncation.
 */

package saga

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Saga states. Failed is terminal in practice but is never finalized: no
// event retires the instance, so a failed saga stays in the active set.
const (
	StateReservingBalance     = "reserving_balance"
	StateCreditingDestination = "crediting_destination"
	StateCompletingTransfer   = "completing_transfer"
	StateRollingBack          = "rolling_back"
	StateCompleted            = "completed"
	StateCancelled            = "cancelled"
	StateFailed               = "failed"
)

// State is the saga's projection of one transfer's progress. Maps to the
// `transfer_saga_state` table, keyed by transfer_id with a version column
// used as the optimistic-concurrency token.
type State struct {
	TransferID         uuid.UUID
	CurrentState       string
	SourceAccount      string
	DestinationAccount string
	Amount             decimal.Decimal
	Currency           string
	InitiatedBy        string
	ReservationID      *uuid.UUID
	FailureReason      *string
	Finalized          bool
	Version            int
	CreatedAt          time.Time
	CompletedAt        *time.Time
}
