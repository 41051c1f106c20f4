/**
 * @description
 * This file contains the HTTP handlers for the transfer-service's API
 * endpoints. Submitting a transfer returns 201 with the pending record; the
 * saga drives it to a terminal status asynchronously and clients poll
 * GET /transfers/{id} to observe progress. The caller identity arrives in
 * the X-User-Id header and scopes the listing endpoint.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - github.com/go-playground/validator/v10: Request payload validation.
 * - internal/transfer/app: Business logic.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mahmetunal/TransferHub/internal/transfer/app"
	"github.com/mahmetunal/TransferHub/internal/transfer/store"
)

// HeaderUserID carries the caller identity. Authentication happens upstream;
// this service only records who initiated the transfer.
const HeaderUserID = "X-User-Id"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TransferHandlers holds the application service that handlers will use.
type TransferHandlers struct {
	service  *app.TransferService
	validate *validator.Validate
}

func NewTransferHandlers(service *app.TransferService) *TransferHandlers {
	return &TransferHandlers{service: service, validate: validator.New()}
}

type createTransferRequest struct {
	SourceAccount      string          `json:"source_account" validate:"required"`
	DestinationAccount string          `json:"destination_account" validate:"required"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency" validate:"required,len=3"`
	Reference          *string         `json:"reference" validate:"omitempty,max=255"`
}

// CreateTransferHandler accepts a new transfer and starts the saga.
func (h *TransferHandlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	initiatedBy := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if initiatedBy == "" {
		h.writeError(w, http.StatusBadRequest, "X-User-Id header is required")
		return
	}

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	transfer, err := h.service.InitiateTransfer(r.Context(),
		req.SourceAccount, req.DestinationAccount, req.Amount, req.Currency, req.Reference, initiatedBy)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, transfer)
}

// GetTransferHandler returns a single transfer by id.
func (h *TransferHandlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer id")
		return
	}

	transfer, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			h.writeError(w, http.StatusNotFound, "Transfer not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_transfer transfer_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load transfer")
		return
	}
	h.writeJSON(w, http.StatusOK, transfer)
}

// ListTransfersHandler returns the caller's transfers with optional filters:
// status, source_account, destination_account, from, to (RFC 3339), and
// page-based pagination via page (1-based) and page_size.
func (h *TransferHandlers) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	initiatedBy := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if initiatedBy == "" {
		h.writeError(w, http.StatusBadRequest, "X-User-Id header is required")
		return
	}

	query := r.URL.Query()
	page := queryInt(query.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(query.Get("page_size"), defaultPageSize)
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	opts := store.ListTransfersOptions{
		Status:             query.Get("status"),
		SourceAccount:      query.Get("source_account"),
		DestinationAccount: query.Get("destination_account"),
		Limit:              pageSize,
		Offset:             (page - 1) * pageSize,
	}
	if from, ok := queryTime(query.Get("from")); ok {
		opts.From = &from
	}
	if to, ok := queryTime(query.Get("to")); ok {
		opts.To = &to
	}

	transfers, err := h.service.ListTransfers(r.Context(), initiatedBy, opts)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transfers err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list transfers")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"transfers": transfers,
		"page":      page,
		"page_size": pageSize,
	})
}

func (h *TransferHandlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *TransferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func queryTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
