/**
 * @description
 * PostgreSQL implementation of the transfer-service `Repository`. The saga
 * event path loads the saga row, runs the pure transition function, and
 * persists the result with `UPDATE ... WHERE version = $expected`; zero rows
 * affected means another delivery won the race, and the whole transaction
 * (inbox row included) rolls back so the broker can redeliver.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/transfer/domain, internal/transfer/saga: Aggregate and machine.
 * - pkg/messaging: Saga contracts enqueued into the outbox.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mahmetunal/TransferHub/internal/transfer/domain"
	"github.com/mahmetunal/TransferHub/internal/transfer/saga"
	"github.com/mahmetunal/TransferHub/pkg/messaging"
	"github.com/mahmetunal/TransferHub/pkg/outbox"
)

var (
	ErrTransferNotFound = errors.New("transfer not found")
	ErrSagaNotFound     = errors.New("saga instance not found")
	// ErrSagaConflict means a concurrent delivery updated the saga row first.
	// The consumer nacks so the broker redelivers against the fresh state.
	ErrSagaConflict = errors.New("saga state version conflict")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateTransfer inserts the pending transfer and enqueues TransferInitiated
// in the same transaction, so the saga start cannot be lost.
func (r *PostgresRepository) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO transfers (id, source_account, destination_account, amount, currency, reference, status, initiated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, transfer.ID, transfer.SourceAccount, transfer.DestinationAccount, transfer.Amount,
		transfer.Currency, transfer.Reference, transfer.Status, transfer.InitiatedBy, transfer.CreatedAt, transfer.UpdatedAt)
	if err != nil {
		return err
	}

	event := messaging.TransferInitiated{
		TransferID:         transfer.ID,
		SourceAccount:      transfer.SourceAccount,
		DestinationAccount: transfer.DestinationAccount,
		Amount:             transfer.Amount,
		Currency:           transfer.Currency,
		Reference:          transfer.Reference,
		InitiatedBy:        transfer.InitiatedBy,
	}
	if err := enqueueMessageTx(ctx, tx, messaging.Exchange, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetTransfer returns a single transfer by id.
func (r *PostgresRepository) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	transfer, err := scanTransfer(r.db.QueryRow(ctx, `
		SELECT id, source_account, destination_account, amount, currency, reference, status,
		       failure_reason, initiated_by, created_at, updated_at, completed_at
		FROM transfers
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return transfer, nil
}

// ListTransfers returns the caller's transfers, newest first, with optional
// status/account/date filters.
func (r *PostgresRepository) ListTransfers(ctx context.Context, initiatedBy string, opts ListTransfersOptions) ([]domain.Transfer, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	var (
		conditions = []string{"initiated_by = $1"}
		args       = []any{initiatedBy}
	)
	addFilter := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}
	if opts.Status != "" {
		addFilter("status = $%d", opts.Status)
	}
	if opts.SourceAccount != "" {
		addFilter("source_account = $%d", opts.SourceAccount)
	}
	if opts.DestinationAccount != "" {
		addFilter("destination_account = $%d", opts.DestinationAccount)
	}
	if opts.From != nil {
		addFilter("created_at >= $%d", *opts.From)
	}
	if opts.To != nil {
		addFilter("created_at <= $%d", *opts.To)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(`
		SELECT id, source_account, destination_account, amount, currency, reference, status,
		       failure_reason, initiated_by, created_at, updated_at, completed_at
		FROM transfers
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]domain.Transfer, 0, opts.Limit)
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *transfer)
	}
	return transfers, rows.Err()
}

// ProcessSagaEvent applies one ledger event to the saga instance correlated
// by the event's transfer id.
func (r *PostgresRepository) ProcessSagaEvent(ctx context.Context, messageID string, event messaging.Message) (*SagaResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	inserted, err := insertInboxTx(ctx, tx, SagaConsumer, messageID)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return &SagaResult{Duplicate: true}, tx.Commit(ctx)
	}

	if initiated, ok := event.(messaging.TransferInitiated); ok {
		return r.startSaga(ctx, tx, initiated)
	}

	transferID, err := eventTransferID(event)
	if err != nil {
		return nil, err
	}

	state, err := getSagaStateTx(ctx, tx, transferID)
	if errors.Is(err, ErrSagaNotFound) {
		// The event outran TransferInitiated. Roll back the inbox row and
		// retry once the saga instance exists.
		return nil, fmt.Errorf("%w: transfer %s", ErrSagaConflict, transferID)
	}
	if err != nil {
		return nil, err
	}

	expectedVersion := state.Version
	commands, err := saga.Transition(state, event)
	if err != nil {
		if errors.Is(err, saga.ErrUnexpectedEvent) {
			// Drop the event for good: keep the inbox row so a redelivery
			// does not resurface it.
			return &SagaResult{Ignored: true}, tx.Commit(ctx)
		}
		return nil, err
	}

	if err := updateSagaStateTx(ctx, tx, state, expectedVersion); err != nil {
		return nil, err
	}
	for _, command := range commands {
		if err := enqueueMessageTx(ctx, tx, messaging.Exchange, command); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &SagaResult{}, nil
}

func (r *PostgresRepository) startSaga(ctx context.Context, tx pgx.Tx, event messaging.TransferInitiated) (*SagaResult, error) {
	state, commands := saga.Start(event)

	result, err := tx.Exec(ctx, `
		INSERT INTO transfer_saga_state
			(transfer_id, current_state, source_account, destination_account, amount, currency,
			 initiated_by, reservation_id, failure_reason, finalized, version, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (transfer_id) DO NOTHING
	`, state.TransferID, state.CurrentState, state.SourceAccount, state.DestinationAccount,
		state.Amount, state.Currency, state.InitiatedBy, state.ReservationID, state.FailureReason,
		state.Finalized, state.Version, state.CreatedAt, state.CompletedAt)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected() == 0 {
		return &SagaResult{Duplicate: true}, tx.Commit(ctx)
	}

	for _, command := range commands {
		if err := enqueueMessageTx(ctx, tx, messaging.Exchange, command); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &SagaResult{}, nil
}

// MarkTransferProcessing moves the transfer record to processing.
func (r *PostgresRepository) MarkTransferProcessing(ctx context.Context, messageID string, transferID uuid.UUID) (*domain.Transfer, error) {
	return r.applyTransferStatus(ctx, messageID, transferID, func(t *domain.Transfer) error {
		return t.MarkProcessing()
	})
}

// MarkTransferFailed records a reservation failure on the transfer record.
func (r *PostgresRepository) MarkTransferFailed(ctx context.Context, messageID string, transferID uuid.UUID, reason string) (*domain.Transfer, error) {
	return r.applyTransferStatus(ctx, messageID, transferID, func(t *domain.Transfer) error {
		return t.MarkFailed(reason)
	})
}

// MarkTransferCompleted finalizes the transfer record.
func (r *PostgresRepository) MarkTransferCompleted(ctx context.Context, messageID string, transferID uuid.UUID) (*domain.Transfer, error) {
	return r.applyTransferStatus(ctx, messageID, transferID, func(t *domain.Transfer) error {
		return t.MarkCompleted()
	})
}

// MarkTransferCancelled records a rollback on the transfer record.
func (r *PostgresRepository) MarkTransferCancelled(ctx context.Context, messageID string, transferID uuid.UUID, reason string) (*domain.Transfer, error) {
	return r.applyTransferStatus(ctx, messageID, transferID, func(t *domain.Transfer) error {
		return t.Cancel(reason)
	})
}

func (r *PostgresRepository) applyTransferStatus(ctx context.Context, messageID string, transferID uuid.UUID, mutate func(*domain.Transfer) error) (*domain.Transfer, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	inserted, err := insertInboxTx(ctx, tx, StatusConsumer, messageID)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, tx.Commit(ctx)
	}

	transfer, err := scanTransfer(tx.QueryRow(ctx, `
		SELECT id, source_account, destination_account, amount, currency, reference, status,
		       failure_reason, initiated_by, created_at, updated_at, completed_at
		FROM transfers
		WHERE id = $1
		FOR UPDATE
	`, transferID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}

	if err := mutate(transfer); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE transfers
		SET status = $2, failure_reason = $3, completed_at = $4, updated_at = NOW()
		WHERE id = $1
	`, transfer.ID, transfer.Status, transfer.FailureReason, transfer.CompletedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return transfer, nil
}

// ---- helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*domain.Transfer, error) {
	var transfer domain.Transfer
	err := row.Scan(
		&transfer.ID, &transfer.SourceAccount, &transfer.DestinationAccount, &transfer.Amount,
		&transfer.Currency, &transfer.Reference, &transfer.Status, &transfer.FailureReason,
		&transfer.InitiatedBy, &transfer.CreatedAt, &transfer.UpdatedAt, &transfer.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func getSagaStateTx(ctx context.Context, tx pgx.Tx, transferID uuid.UUID) (*saga.State, error) {
	var state saga.State
	err := tx.QueryRow(ctx, `
		SELECT transfer_id, current_state, source_account, destination_account, amount, currency,
		       initiated_by, reservation_id, failure_reason, finalized, version, created_at, completed_at
		FROM transfer_saga_state
		WHERE transfer_id = $1
	`, transferID).Scan(
		&state.TransferID, &state.CurrentState, &state.SourceAccount, &state.DestinationAccount,
		&state.Amount, &state.Currency, &state.InitiatedBy, &state.ReservationID,
		&state.FailureReason, &state.Finalized, &state.Version, &state.CreatedAt, &state.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSagaNotFound
		}
		return nil, err
	}
	return &state, nil
}

// updateSagaStateTx persists a transitioned saga state under the optimistic
// version check.
func updateSagaStateTx(ctx context.Context, tx pgx.Tx, state *saga.State, expectedVersion int) error {
	result, err := tx.Exec(ctx, `
		UPDATE transfer_saga_state
		SET current_state = $2,
			reservation_id = $3,
			failure_reason = $4,
			finalized = $5,
			completed_at = $6,
			version = $7
		WHERE transfer_id = $1 AND version = $8
	`, state.TransferID, state.CurrentState, state.ReservationID, state.FailureReason,
		state.Finalized, state.CompletedAt, expectedVersion+1, expectedVersion)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: transfer %s at version %d", ErrSagaConflict, state.TransferID, expectedVersion)
	}
	return nil
}

func eventTransferID(event messaging.Message) (uuid.UUID, error) {
	switch ev := event.(type) {
	case messaging.BalanceReserved:
		return ev.TransferID, nil
	case messaging.BalanceReservationFailed:
		return ev.TransferID, nil
	case messaging.DestinationCredited:
		return ev.TransferID, nil
	case messaging.CreditFailed:
		return ev.TransferID, nil
	case messaging.TransferCompleted:
		return ev.TransferID, nil
	case messaging.TransferCancelled:
		return ev.TransferID, nil
	default:
		return uuid.Nil, fmt.Errorf("unsupported saga event type %T", event)
	}
}

func insertInboxTx(ctx context.Context, tx pgx.Tx, consumer, messageID string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
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

func (r *PostgresRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]outbox.Message, error) {
	return outbox.ClaimMessages(ctx, r.db, limit, staleAfterSeconds)
}

func (r *PostgresRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	return outbox.MarkPublished(ctx, r.db, id)
}

func (r *PostgresRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	return outbox.MarkFailed(ctx, r.db, id, retryAfterSeconds, reason)
}
