/**
 * @description
 * This package defines the wire contracts exchanged between transfer-service
 * and account-service over RabbitMQ: the saga commands consumed by the ledger
 * side and the events consumed by the saga and the transfer status consumers.
 *
 * Every contract carries a deterministic deduplication key derived from the
 * transfer id (plus the reservation id where one exists). The publisher stamps
 * it on the message as both the AMQP MessageId and the x-deduplication-header,
 * so the broker-level dedup plugin and the consumer-side inbox can both use it.
 *
 * @dependencies
 * - github.com/google/uuid: Transfer and reservation identifiers.
 * - github.com/shopspring/decimal: Exact decimal amounts on the wire.
 */

package messaging

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Exchange is the single durable topic exchange both services bind to.
const Exchange = "transfer.saga"

// Routing keys. Commands flow to account-service, events to transfer-service.
const (
	RouteReserveBalance     = "command.reserve_balance"
	RouteCreditAccount      = "command.credit_account"
	RouteCommitReservation  = "command.commit_reservation"
	RouteReleaseReservation = "command.release_reservation"
	RouteCancelTransfer     = "command.cancel_transfer"

	RouteTransferInitiated        = "event.transfer_initiated"
	RouteBalanceReserved          = "event.balance_reserved"
	RouteBalanceReservationFailed = "event.balance_reservation_failed"
	RouteDestinationCredited      = "event.destination_credited"
	RouteCreditFailed             = "event.credit_failed"
	RouteTransferCompleted        = "event.transfer_completed"
	RouteTransferCancelled        = "event.transfer_cancelled"
)

// Message is implemented by every command and event so the producer and the
// outbox can route and deduplicate without knowing concrete types.
type Message interface {
	RoutingKey() string
	DeduplicationKey() string
}

// ---- Commands ----

type ReserveBalance struct {
	TransferID  uuid.UUID       `json:"transfer_id"`
	AccountIBAN string          `json:"account_iban"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	InitiatedBy string          `json:"initiated_by"`
}

func (ReserveBalance) RoutingKey() string { return RouteReserveBalance }
func (c ReserveBalance) DeduplicationKey() string {
	return "reserve-balance-" + c.TransferID.String()
}

type CreditAccount struct {
	TransferID  uuid.UUID       `json:"transfer_id"`
	AccountIBAN string          `json:"account_iban"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

func (CreditAccount) RoutingKey() string { return RouteCreditAccount }
func (c CreditAccount) DeduplicationKey() string {
	return "credit-account-" + c.TransferID.String()
}

type CommitReservation struct {
	TransferID    uuid.UUID `json:"transfer_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
}

func (CommitReservation) RoutingKey() string { return RouteCommitReservation }
func (c CommitReservation) DeduplicationKey() string {
	return "commit-reservation-" + c.TransferID.String() + "-" + c.ReservationID.String()
}

type ReleaseReservation struct {
	TransferID    uuid.UUID `json:"transfer_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
}

func (ReleaseReservation) RoutingKey() string { return RouteReleaseReservation }
func (c ReleaseReservation) DeduplicationKey() string {
	return "release-reservation-" + c.TransferID.String() + "-" + c.ReservationID.String()
}

type CancelTransfer struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Reason     string    `json:"reason,omitempty"`
}

func (CancelTransfer) RoutingKey() string { return RouteCancelTransfer }
func (c CancelTransfer) DeduplicationKey() string {
	return "cancel-transfer-" + c.TransferID.String()
}

// ---- Events ----

type TransferInitiated struct {
	TransferID         uuid.UUID       `json:"transfer_id"`
	SourceAccount      string          `json:"source_account"`
	DestinationAccount string          `json:"destination_account"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Reference          *string         `json:"reference,omitempty"`
	InitiatedBy        string          `json:"initiated_by"`
}

func (TransferInitiated) RoutingKey() string { return RouteTransferInitiated }
func (e TransferInitiated) DeduplicationKey() string {
	return "transfer-initiated-" + e.TransferID.String()
}

type BalanceReserved struct {
	TransferID    uuid.UUID `json:"transfer_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
}

func (BalanceReserved) RoutingKey() string { return RouteBalanceReserved }
func (e BalanceReserved) DeduplicationKey() string {
	return "balance-reserved-" + e.TransferID.String() + "-" + e.ReservationID.String()
}

type BalanceReservationFailed struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Reason     string    `json:"reason"`
}

func (BalanceReservationFailed) RoutingKey() string { return RouteBalanceReservationFailed }
func (e BalanceReservationFailed) DeduplicationKey() string {
	return "balance-reservation-failed-" + e.TransferID.String()
}

type DestinationCredited struct {
	TransferID uuid.UUID `json:"transfer_id"`
}

func (DestinationCredited) RoutingKey() string { return RouteDestinationCredited }
func (e DestinationCredited) DeduplicationKey() string {
	return "destination-credited-" + e.TransferID.String()
}

type CreditFailed struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Reason     string    `json:"reason"`
}

func (CreditFailed) RoutingKey() string { return RouteCreditFailed }
func (e CreditFailed) DeduplicationKey() string {
	return "credit-failed-" + e.TransferID.String()
}

type TransferCompleted struct {
	TransferID uuid.UUID `json:"transfer_id"`
}

func (TransferCompleted) RoutingKey() string { return RouteTransferCompleted }
func (e TransferCompleted) DeduplicationKey() string {
	return "transfer-completed-" + e.TransferID.String()
}

type TransferCancelled struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Reason     string    `json:"reason,omitempty"`
}

func (TransferCancelled) RoutingKey() string { return RouteTransferCancelled }
func (e TransferCancelled) DeduplicationKey() string {
	return "transfer-cancelled-" + e.TransferID.String()
}
