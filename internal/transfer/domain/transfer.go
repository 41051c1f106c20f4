/**
 * @description
 * This file defines the Transfer aggregate for the transfer-service: the
 * client-facing record of a money transfer and the status transitions the
 * saga's terminal events drive. The aggregate never talks to the ledger; it
 * only reflects what the saga reports back.
 *
 * Status lifecycle:
 *
 *   pending → processing → completed
 *   pending/processing → failed (reservation failure)
 *   pending/processing → cancelled (rollback after credit failure)
 *
 * @dependencies
 * - github.com/google/uuid: Transfer identifiers.
 * - github.com/shopspring/decimal: Exact amounts.
 */

package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// MaxReasonLength bounds stored failure reasons; longer reasons are truncated.
const MaxReasonLength = 500

var (
	ErrNotPending       = errors.New("transfer is not pending")
	ErrNotProcessing    = errors.New("transfer is not processing")
	ErrAlreadyCompleted = errors.New("transfer is already completed")
)

// Transfer maps to the `transfers` table.
type Transfer struct {
	ID                 uuid.UUID       `json:"id"`
	SourceAccount      string          `json:"source_account"`
	DestinationAccount string          `json:"destination_account"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Reference          *string         `json:"reference,omitempty"`
	Status             string          `json:"status"`
	FailureReason      *string         `json:"failure_reason,omitempty"`
	InitiatedBy        string          `json:"initiated_by"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

// NewTransfer creates a pending transfer record. reference is the caller's
// optional free-text label; nil means none was supplied.
func NewTransfer(sourceAccount, destinationAccount string, amount decimal.Decimal, currency string, reference *string, initiatedBy string) *Transfer {
	now := time.Now().UTC()
	return &Transfer{
		ID:                 uuid.New(),
		SourceAccount:      sourceAccount,
		DestinationAccount: destinationAccount,
		Amount:             amount,
		Currency:           currency,
		Reference:          reference,
		Status:             StatusPending,
		InitiatedBy:        initiatedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// MarkProcessing moves a pending transfer into processing once the source
// balance has been reserved. Any other starting status is rejected.
func (t *Transfer) MarkProcessing() error {
	if t.Status != StatusPending {
		return ErrNotPending
	}
	t.Status = StatusProcessing
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCompleted finalizes a processing transfer.
func (t *Transfer) MarkCompleted() error {
	if t.Status != StatusProcessing {
		return ErrNotProcessing
	}
	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// MarkFailed records a reservation failure. Terminal statuses stay as they
// are; a redelivered failure event on an already-failed transfer is a no-op.
func (t *Transfer) MarkFailed(reason string) error {
	switch t.Status {
	case StatusFailed:
		return nil
	case StatusCompleted:
		return ErrAlreadyCompleted
	}
	truncated := TruncateReason(reason)
	t.Status = StatusFailed
	t.FailureReason = &truncated
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel records a rollback. Cancelling twice is a no-op; a completed
// transfer can no longer be cancelled.
func (t *Transfer) Cancel(reason string) error {
	switch t.Status {
	case StatusCancelled:
		return nil
	case StatusCompleted:
		return ErrAlreadyCompleted
	}
	t.Status = StatusCancelled
	if reason != "" {
		truncated := TruncateReason(reason)
		t.FailureReason = &truncated
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// IsTerminal reports whether the transfer can still change status.
func (t *Transfer) IsTerminal() bool {
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TruncateReason bounds a failure reason to MaxReasonLength characters,
// keeping the first 497 and appending an ellipsis when it overflows.
// Truncation counts runes, not bytes, so a multi-byte reason is never cut
// mid-character.
func TruncateReason(reason string) string {
	runes := []rune(reason)
	if len(runes) <= MaxReasonLength {
		return reason
	}
	return string(runes[:MaxReasonLength-3]) + "..."
}
