/**
 * @description
 * This file implements the saga command consumer for the account-service. It
 * binds one handler per command routing key; each handler unmarshals the
 * payload, runs the corresponding transactional store method, and decides the
 * acknowledgement:
 *
 *   - malformed payloads are acknowledged and dropped (redelivery cannot fix them)
 *   - duplicates and business-rule failures are acknowledged (the store already
 *     enqueued the failure event where one exists)
 *   - infrastructure errors are nacked so the broker redelivers
 *
 * Commit and release failures have no compensating event: the ledger cannot
 * roll back a finalized reservation, so the handler logs the violation and
 * acknowledges to keep the queue moving.
 *
 * @dependencies
 * - internal/account/store: Transactional command execution.
 * - pkg/messaging: Wire contracts.
 * - pkg/rabbitmq: Delivery and handler types.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/mahmetunal/TransferHub/internal/account/domain"
	"github.com/mahmetunal/TransferHub/internal/account/store"
	"github.com/mahmetunal/TransferHub/pkg/messaging"
	"github.com/mahmetunal/TransferHub/pkg/rabbitmq"
)

const commandTimeout = 15 * time.Second

type SagaCommandConsumer struct {
	repo store.Repository
}

func NewSagaCommandConsumer(repo store.Repository) *SagaCommandConsumer {
	return &SagaCommandConsumer{repo: repo}
}

// Bindings maps each command routing key to its handler, in the shape
// rabbitmq.Consumer.ConsumeWithBindings expects.
func (c *SagaCommandConsumer) Bindings() map[string]rabbitmq.Handler {
	return map[string]rabbitmq.Handler{
		messaging.RouteReserveBalance:     c.handleReserveBalance,
		messaging.RouteCreditAccount:      c.handleCreditAccount,
		messaging.RouteCommitReservation:  c.handleCommitReservation,
		messaging.RouteReleaseReservation: c.handleReleaseReservation,
	}
}

func (c *SagaCommandConsumer) handleReserveBalance(d rabbitmq.Delivery) bool {
	var cmd messaging.ReserveBalance
	if err := json.Unmarshal(d.Body, &cmd); err != nil {
		log.Printf("level=error component=saga_commands msg=\"malformed reserve_balance payload; dropping\" message_id=%s err=%v", d.MessageID, err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := c.repo.ReserveBalance(ctx, d.MessageID, cmd)
	if err != nil {
		log.Printf("level=error component=saga_commands msg=\"reserve_balance failed; re-queuing\" transfer_id=%s err=%v", cmd.TransferID, err)
		return false
	}
	logCommandResult("reserve_balance", cmd.TransferID.String(), result)
	return true
}

func (c *SagaCommandConsumer) handleCreditAccount(d rabbitmq.Delivery) bool {
	var cmd messaging.CreditAccount
	if err := json.Unmarshal(d.Body, &cmd); err != nil {
		log.Printf("level=error component=saga_commands msg=\"malformed credit_account payload; dropping\" message_id=%s err=%v", d.MessageID, err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := c.repo.CreditAccount(ctx, d.MessageID, cmd)
	if err != nil {
		log.Printf("level=error component=saga_commands msg=\"credit_account failed; re-queuing\" transfer_id=%s err=%v", cmd.TransferID, err)
		return false
	}
	logCommandResult("credit_account", cmd.TransferID.String(), result)
	return true
}

func (c *SagaCommandConsumer) handleCommitReservation(d rabbitmq.Delivery) bool {
	var cmd messaging.CommitReservation
	if err := json.Unmarshal(d.Body, &cmd); err != nil {
		log.Printf("level=error component=saga_commands msg=\"malformed commit_reservation payload; dropping\" message_id=%s err=%v", d.MessageID, err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := c.repo.CommitReservation(ctx, d.MessageID, cmd)
	if err != nil {
		if isReservationProtocolViolation(err) {
			log.Printf("level=error component=saga_commands msg=\"commit_reservation protocol violation; dropping\" transfer_id=%s reservation_id=%s err=%v",
				cmd.TransferID, cmd.ReservationID, err)
			return true
		}
		log.Printf("level=error component=saga_commands msg=\"commit_reservation failed; re-queuing\" transfer_id=%s err=%v", cmd.TransferID, err)
		return false
	}
	logCommandResult("commit_reservation", cmd.TransferID.String(), result)
	return true
}

func (c *SagaCommandConsumer) handleReleaseReservation(d rabbitmq.Delivery) bool {
	var cmd messaging.ReleaseReservation
	if err := json.Unmarshal(d.Body, &cmd); err != nil {
		log.Printf("level=error component=saga_commands msg=\"malformed release_reservation payload; dropping\" message_id=%s err=%v", d.MessageID, err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := c.repo.ReleaseReservation(ctx, d.MessageID, cmd)
	if err != nil {
		if isReservationProtocolViolation(err) {
			log.Printf("level=error component=saga_commands msg=\"release_reservation protocol violation; dropping\" transfer_id=%s reservation_id=%s err=%v",
				cmd.TransferID, cmd.ReservationID, err)
			return true
		}
		log.Printf("level=error component=saga_commands msg=\"release_reservation failed; re-queuing\" transfer_id=%s err=%v", cmd.TransferID, err)
		return false
	}
	logCommandResult("release_reservation", cmd.TransferID.String(), result)
	return true
}

func isReservationProtocolViolation(err error) bool {
	return errors.Is(err, store.ErrReservationNotFound) ||
		errors.Is(err, domain.ErrReservationCommitted) ||
		errors.Is(err, domain.ErrReservationReleased)
}

func logCommandResult(command, transferID string, result *store.CommandResult) {
	switch {
	case result.Duplicate:
		log.Printf("level=info component=saga_commands msg=\"duplicate command skipped\" command=%s transfer_id=%s", command, transferID)
	case result.FailureReason != "":
		log.Printf("level=warn component=saga_commands msg=\"command rejected\" command=%s transfer_id=%s reason=%q", command, transferID, result.FailureReason)
	default:
		log.Printf("level=info component=saga_commands msg=\"command applied\" command=%s transfer_id=%s", command, transferID)
	}
}
