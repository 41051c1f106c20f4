/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the account-service. The saga
 * command methods are transactional units: each one records the incoming
 * message in the inbox, applies the ledger mutation, and enqueues the outcome
 * event into the outbox, all inside a single database transaction.
 *
 * @dependencies
 * - github.com/google/uuid: Identifier handling.
 * - github.com/shopspring/decimal: Exact amounts.
 * - internal/account/domain: The service's domain models.
 * - pkg/messaging: Saga command payloads.
 * - pkg/outbox: Outbox message shape shared with the dispatcher.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mahmetunal/TransferHub/internal/account/domain"
	"github.com/mahmetunal/TransferHub/pkg/messaging"
	"github.com/mahmetunal/TransferHub/pkg/outbox"
)

// InboxConsumer identifies this service in the inbox_messages table.
const InboxConsumer = "account_service"

// CommandResult reports how a saga command landed.
//
// Duplicate means the inbox (or a uniqueness backstop) has already seen this
// message and nothing was changed. A non-empty FailureReason means the command
// failed a business rule; the corresponding failure event was enqueued in the
// same transaction. Infrastructure errors surface as a separate error return
// so the consumer can nack and retry.
type CommandResult struct {
	Duplicate     bool
	ReservationID uuid.UUID
	FailureReason string
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account lifecycle
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccountByIBAN(ctx context.Context, iban string) (*domain.Account, error)
	ListAccounts(ctx context.Context, limit, offset int) ([]domain.Account, error)
	TopUpAccount(ctx context.Context, iban string, amount decimal.Decimal, currency string) (*domain.Account, error)
	ActivateAccount(ctx context.Context, iban string) error
	DeactivateAccount(ctx context.Context, iban string) error

	// Saga commands. messageID is the broker message id used for inbox dedup.
	ReserveBalance(ctx context.Context, messageID string, cmd messaging.ReserveBalance) (*CommandResult, error)
	CreditAccount(ctx context.Context, messageID string, cmd messaging.CreditAccount) (*CommandResult, error)
	CommitReservation(ctx context.Context, messageID string, cmd messaging.CommitReservation) (*CommandResult, error)
	ReleaseReservation(ctx context.Context, messageID string, cmd messaging.ReleaseReservation) (*CommandResult, error)

	// Outbox relay
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]outbox.Message, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}
