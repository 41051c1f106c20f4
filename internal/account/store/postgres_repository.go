/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. The saga command methods follow a fixed transactional shape:
 *
 *   1. Insert the broker message id into inbox_messages; a conflict means the
 *      message was already processed, so the transaction ends as a duplicate.
 *   2. Load the affected rows with FOR UPDATE.
 *   3. Apply the domain mutation in memory and persist the result.
 *   4. Enqueue the outcome event into event_outbox.
 *   5. Commit. Business-rule failures also commit, carrying a failure event;
 *      only infrastructure errors roll back.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/account/domain: Domain models and mutation rules.
 * - pkg/messaging: Saga contracts enqueued into the outbox.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mahmetunal/TransferHub/internal/account/domain"
	"github.com/mahmetunal/TransferHub/pkg/messaging"
	"github.com/mahmetunal/TransferHub/pkg/outbox"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrIBANAlreadyExists   = errors.New("an account with this IBAN already exists")
	ErrReservationNotFound = errors.New("reservation not found")
)

const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount inserts a new account row.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, iban, owner_name, balance, currency, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		account.ID, account.IBAN, account.OwnerName, account.Balance,
		account.Currency, account.IsActive, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrIBANAlreadyExists
		}
		return err
	}
	return nil
}

// GetAccountByIBAN retrieves an account by its IBAN.
func (r *PostgresRepository) GetAccountByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	var account domain.Account
	query := `
		SELECT id, iban, owner_name, balance, currency, is_active, created_at, updated_at
		FROM accounts
		WHERE iban = $1
	`
	err := r.db.QueryRow(ctx, query, iban).Scan(
		&account.ID, &account.IBAN, &account.OwnerName, &account.Balance,
		&account.Currency, &account.IsActive, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ListAccounts returns accounts ordered by creation time, newest first.
func (r *PostgresRepository) ListAccounts(ctx context.Context, limit, offset int) ([]domain.Account, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, iban, owner_name, balance, currency, is_active, created_at, updated_at
		FROM accounts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0, limit)
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(
			&account.ID, &account.IBAN, &account.OwnerName, &account.Balance,
			&account.Currency, &account.IsActive, &account.CreatedAt, &account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// TopUpAccount credits an account outside the saga flow (seeding balances).
func (r *PostgresRepository) TopUpAccount(ctx context.Context, iban string, amount decimal.Decimal, currency string) (*domain.Account, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	account, err := lockAccountByIBANTx(ctx, tx, iban)
	if err != nil {
		return nil, err
	}
	if err := account.Credit(amount, currency); err != nil {
		return nil, err
	}
	if err := saveAccountBalanceTx(ctx, tx, account); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return account, nil
}

// ActivateAccount re-enables a previously deactivated account.
func (r *PostgresRepository) ActivateAccount(ctx context.Context, iban string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET is_active = TRUE, updated_at = NOW() WHERE iban = $1
	`, iban)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeactivateAccount disables an account so it can no longer send or receive.
func (r *PostgresRepository) DeactivateAccount(ctx context.Context, iban string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET is_active = FALSE, updated_at = NOW() WHERE iban = $1
	`, iban)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ReserveBalance debits the source account and holds the funds in a
// reservation. A failed business rule enqueues BalanceReservationFailed and
// still commits.
func (r *PostgresRepository) ReserveBalance(ctx context.Context, messageID string, cmd messaging.ReserveBalance) (*CommandResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	inserted, err := insertInboxTx(ctx, tx, InboxConsumer, messageID)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return &CommandResult{Duplicate: true}, tx.Commit(ctx)
	}

	account, err := lockAccountByIBANTx(ctx, tx, cmd.AccountIBAN)
	if errors.Is(err, ErrAccountNotFound) {
		return r.failReservation(ctx, tx, cmd.TransferID, "source account not found")
	}
	if err != nil {
		return nil, err
	}

	reservation, err := account.Reserve(cmd.TransferID, cmd.Amount, cmd.Currency)
	if err != nil {
		if isBusinessRuleViolation(err) {
			return r.failReservation(ctx, tx, cmd.TransferID, err.Error())
		}
		return nil, err
	}

	if err := insertReservationTx(ctx, tx, reservation); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// The unique transfer_id constraint is the backstop behind the
			// inbox: a concurrent redelivery already holds this reservation.
			return &CommandResult{Duplicate: true}, nil
		}
		return nil, err
	}
	if err := saveAccountBalanceTx(ctx, tx, account); err != nil {
		return nil, err
	}

	event := messaging.BalanceReserved{TransferID: cmd.TransferID, ReservationID: reservation.ID}
	if err := enqueueMessageTx(ctx, tx, messaging.Exchange, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &CommandResult{ReservationID: reservation.ID}, nil
}

func (r *PostgresRepository) failReservation(ctx context.Context, tx pgx.Tx, transferID uuid.UUID, reason string) (*CommandResult, error) {
	event := messaging.BalanceReservationFailed{TransferID: transferID, Reason: reason}
	if err := enqueueMessageTx(ctx, tx, messaging.Exchange, event); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &CommandResult{FailureReason: reason}, nil
}

// CreditAccount adds funds to the destination account. A failed business rule
// enqueues CreditFailed and still commits, which triggers the saga rollback.
func (r *PostgresRepository) CreditAccount(ctx context.Context, messageID string, cmd messaging.CreditAccount) (*CommandResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	inserted, err := insertInboxTx(ctx, tx, InboxConsumer, messageID)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return &CommandResult{Duplicate: true}, tx.Commit(ctx)
	}

	account, err := lockAccountByIBANTx(ctx, tx, cmd.AccountIBAN)
	if errors.Is(err, ErrAccountNotFound) {
		return r.failCredit(ctx, tx, cmd.TransferID, "destination account not found")
	}
	if err != nil {
		return nil, err
	}

	if err := account.Credit(cmd.Amount, cmd.Currency); err != nil {
		if isBusinessRuleViolation(err) {
			return r.failCredit(ctx, tx, cmd.TransferID, err.Error())
		}
		return nil, err
	}
	if err := saveAccountBalanceTx(ctx, tx, account); err != nil {
		return nil, err
	}

	event := messaging.DestinationCredited{TransferID: cmd.TransferID}
	if err := enqueueMessageTx(ctx, tx, messaging.Exchange, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &CommandResult{}, nil
}

func (r *PostgresRepository) failCredit(ctx context.Context, tx pgx.Tx, transferID uuid.UUID, reason string) (*CommandResult, error) {
	event := messaging.CreditFailed{TransferID: transferID, Reason: reason}
	if err := enqueueMessageTx(ctx, tx, messaging.Exchange, event); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &CommandResult{FailureReason: reason}, nil
}

// CommitReservation finalizes a held debit and announces the transfer as
// completed. A missing or already-released reservation is a protocol
// violation surfaced as an error; no compensating event exists for it.
func (r *PostgresRepository) CommitReservation(ctx context.Context, messageID string, cmd messaging.CommitReservation) (*CommandResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	inserted, err := insertInboxTx(ctx, tx, InboxConsumer, messageID)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return &CommandResult{Duplicate: true}, tx.Commit(ctx)
	}

	reservation, err := lockReservationTx(ctx, tx, cmd.ReservationID)
	if err != nil {
		return nil, err
	}
	if err := reservation.Commit(); err != nil {
		return nil, err
	}
	if err := saveReservationStatusTx(ctx, tx, reservation); err != nil {
		return nil, err
	}

	event := messaging.TransferCompleted{TransferID: cmd.TransferID}
	if err := enqueueMessageTx(ctx, tx, messaging.Exchange, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &CommandResult{ReservationID: reservation.ID}, nil
}

// ReleaseReservation returns held funds to the source account and announces
// the transfer as cancelled.
func (r *PostgresRepository) ReleaseReservation(ctx context.Context, messageID string, cmd messaging.ReleaseReservation) (*CommandResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	inserted, err := insertInboxTx(ctx, tx, InboxConsumer, messageID)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return &CommandResult{Duplicate: true}, tx.Commit(ctx)
	}

	reservation, err := lockReservationTx(ctx, tx, cmd.ReservationID)
	if err != nil {
		return nil, err
	}
	wasActive := reservation.IsActive()
	if err := reservation.Release(); err != nil {
		return nil, err
	}

	if wasActive {
		account, err := lockAccountByIDTx(ctx, tx, reservation.AccountID)
		if err != nil {
			return nil, err
		}
		account.Refund(reservation.Amount)
		if err := saveAccountBalanceTx(ctx, tx, account); err != nil {
			return nil, err
		}
	}
	if err := saveReservationStatusTx(ctx, tx, reservation); err != nil {
		return nil, err
	}

	event := messaging.TransferCancelled{TransferID: cmd.TransferID}
	if err := enqueueMessageTx(ctx, tx, messaging.Exchange, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &CommandResult{ReservationID: reservation.ID}, nil
}

// ---- transaction helpers ----

func lockAccountByIBANTx(ctx context.Context, tx pgx.Tx, iban string) (*domain.Account, error) {
	var account domain.Account
	query := `
		SELECT id, iban, owner_name, balance, currency, is_active, created_at, updated_at
		FROM accounts
		WHERE iban = $1
		FOR UPDATE
	`
	err := tx.QueryRow(ctx, query, iban).Scan(
		&account.ID, &account.IBAN, &account.OwnerName, &account.Balance,
		&account.Currency, &account.IsActive, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func lockAccountByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `
		SELECT id, iban, owner_name, balance, currency, is_active, created_at, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`
	err := tx.QueryRow(ctx, query, id).Scan(
		&account.ID, &account.IBAN, &account.OwnerName, &account.Balance,
		&account.Currency, &account.IsActive, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func lockReservationTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.BalanceReservation, error) {
	var reservation domain.BalanceReservation
	query := `
		SELECT id, account_id, transfer_id, amount, currency, status, created_at, updated_at
		FROM balance_reservations
		WHERE id = $1
		FOR UPDATE
	`
	err := tx.QueryRow(ctx, query, id).Scan(
		&reservation.ID, &reservation.AccountID, &reservation.TransferID, &reservation.Amount,
		&reservation.Currency, &reservation.Status, &reservation.CreatedAt, &reservation.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &reservation, nil
}

func insertReservationTx(ctx context.Context, tx pgx.Tx, reservation *domain.BalanceReservation) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO balance_reservations (id, account_id, transfer_id, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, reservation.ID, reservation.AccountID, reservation.TransferID, reservation.Amount,
		reservation.Currency, reservation.Status, reservation.CreatedAt, reservation.UpdatedAt)
	return err
}

func saveReservationStatusTx(ctx context.Context, tx pgx.Tx, reservation *domain.BalanceReservation) error {
	_, err := tx.Exec(ctx, `
		UPDATE balance_reservations SET status = $2, updated_at = NOW() WHERE id = $1
	`, reservation.ID, reservation.Status)
	return err
}

func saveAccountBalanceTx(ctx context.Context, tx pgx.Tx, account *domain.Account) error {
	_, err := tx.Exec(ctx, `
		UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1
	`, account.ID, account.Balance)
	return err
}

// insertInboxTx records the broker message id for this consumer. Returns
// false when the message was already seen.
func insertInboxTx(ctx context.Context, tx pgx.Tx, consumer, messageID string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		// No message id means no dedup identity; process it as new.
		return true, nil
	}
	result, err := tx.Exec(ctx, `
		INSERT INTO inbox_messages (consumer, message_id)
		VALUES ($1, $2)
		ON CONFLICT (consumer, message_id) DO NOTHING
	`, consumer, messageID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func enqueueMessageTx(ctx context.Context, tx pgx.Tx, exchange string, msg messaging.Message) error {
	blob, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO event_outbox (exchange, routing_key, message_id, payload)
		VALUES ($1, $2, $3, $4::jsonb)
	`, exchange, msg.RoutingKey(), msg.DeduplicationKey(), string(blob))
	return err
}

func isBusinessRuleViolation(err error) bool {
	return errors.Is(err, domain.ErrInsufficientBalance) ||
		errors.Is(err, domain.ErrCurrencyMismatch) ||
		errors.Is(err, domain.ErrAccountInactive) ||
		errors.Is(err, domain.ErrInvalidAmount)
}

func (r *PostgresRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]outbox.Message, error) {
	return outbox.ClaimMessages(ctx, r.db, limit, staleAfterSeconds)
}

func (r *PostgresRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	return outbox.MarkPublished(ctx, r.db, id)
}

func (r *PostgresRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	return outbox.MarkFailed(ctx, r.db, id, retryAfterSeconds, reason)
}
