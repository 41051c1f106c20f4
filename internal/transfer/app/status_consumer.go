/**
 * @description
 * This file implements the transfer status projection: a second consumer on
 * the same ledger events that keeps the client-facing transfer record in sync
 * with the saga's progress. It runs on its own queue with its own inbox
 * identity, so it deduplicates independently of the orchestrator.
 *
 * Transition rejections from the aggregate (wrong starting status) are final
 * for that message: redelivery would hit the same guard, so the handler logs
 * and acknowledges.
 *
 * @dependencies
 * - internal/transfer/domain, internal/transfer/store: Aggregate and persistence.
 * - pkg/messaging, pkg/rabbitmq: Contracts and delivery types.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/mahmetunal/TransferHub/internal/transfer/domain"
	"github.com/mahmetunal/TransferHub/internal/transfer/store"
	"github.com/mahmetunal/TransferHub/pkg/messaging"
	"github.com/mahmetunal/TransferHub/pkg/rabbitmq"
)

type TransferStatusConsumer struct {
	repo store.Repository
}

func NewTransferStatusConsumer(repo store.Repository) *TransferStatusConsumer {
	return &TransferStatusConsumer{repo: repo}
}

func (c *TransferStatusConsumer) Bindings() map[string]rabbitmq.Handler {
	return map[string]rabbitmq.Handler{
		messaging.RouteBalanceReserved:          c.handleBalanceReserved,
		messaging.RouteBalanceReservationFailed: c.handleReservationFailed,
		messaging.RouteTransferCompleted:        c.handleCompleted,
		messaging.RouteTransferCancelled:        c.handleCancelled,
	}
}

func (c *TransferStatusConsumer) handleBalanceReserved(d rabbitmq.Delivery) bool {
	var ev messaging.BalanceReserved
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		log.Printf("level=error component=transfer_status msg=\"malformed balance_reserved; dropping\" message_id=%s err=%v", d.MessageID, err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	_, err := c.repo.MarkTransferProcessing(ctx, d.MessageID, ev.TransferID)
	return c.finishTransition("processing", ev.TransferID.String(), err)
}

func (c *TransferStatusConsumer) handleReservationFailed(d rabbitmq.Delivery) bool {
	var ev messaging.BalanceReservationFailed
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		log.Printf("level=error component=transfer_status msg=\"malformed balance_reservation_failed; dropping\" message_id=%s err=%v", d.MessageID, err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	transfer, err := c.repo.MarkTransferFailed(ctx, d.MessageID, ev.TransferID, ev.Reason)
	if err == nil && transfer != nil {
		observeTransferOutcome(domain.StatusFailed, transfer.CreatedAt)
	}
	return c.finishTransition("failed", ev.TransferID.String(), err)
}

func (c *TransferStatusConsumer) handleCompleted(d rabbitmq.Delivery) bool {
	var ev messaging.TransferCompleted
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		log.Printf("level=error component=transfer_status msg=\"malformed transfer_completed; dropping\" message_id=%s err=%v", d.MessageID, err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	transfer, err := c.repo.MarkTransferCompleted(ctx, d.MessageID, ev.TransferID)
	if err == nil && transfer != nil {
		observeTransferOutcome(domain.StatusCompleted, transfer.CreatedAt)
	}
	return c.finishTransition("completed", ev.TransferID.String(), err)
}

func (c *TransferStatusConsumer) handleCancelled(d rabbitmq.Delivery) bool {
	var ev messaging.TransferCancelled
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		log.Printf("level=error component=transfer_status msg=\"malformed transfer_cancelled; dropping\" message_id=%s err=%v", d.MessageID, err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	transfer, err := c.repo.MarkTransferCancelled(ctx, d.MessageID, ev.TransferID, ev.Reason)
	if err == nil && transfer != nil {
		observeTransferOutcome(domain.StatusCancelled, transfer.CreatedAt)
	}
	return c.finishTransition("cancelled", ev.TransferID.String(), err)
}

func (c *TransferStatusConsumer) finishTransition(target, transferID string, err error) bool {
	switch {
	case err == nil:
		return true
	case isFinalTransitionError(err):
		log.Printf("level=warn component=transfer_status msg=\"transition rejected; dropping\" target=%s transfer_id=%s err=%v", target, transferID, err)
		return true
	default:
		log.Printf("level=error component=transfer_status msg=\"transition failed; re-queuing\" target=%s transfer_id=%s err=%v", target, transferID, err)
		return false
	}
}

// isFinalTransitionError reports errors that redelivery cannot fix.
func isFinalTransitionError(err error) bool {
	return errors.Is(err, store.ErrTransferNotFound) ||
		errors.Is(err, domain.ErrNotPending) ||
		errors.Is(err, domain.ErrNotProcessing) ||
		errors.Is(err, domain.ErrAlreadyCompleted)
}
