/**
 * @description
 * This file contains the HTTP handlers for the account-service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and write JSON responses. Validation of request payloads uses
 * go-playground/validator on top of the domain-level checks.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - github.com/go-playground/validator/v10: Request payload validation.
 * - internal/account/app: Business logic.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mahmetunal/TransferHub/internal/account/app"
	"github.com/mahmetunal/TransferHub/internal/account/store"
)

// AccountHandlers holds the application service that handlers will use.
type AccountHandlers struct {
	service  *app.AccountService
	validate *validator.Validate
}

func NewAccountHandlers(service *app.AccountService) *AccountHandlers {
	return &AccountHandlers{service: service, validate: validator.New()}
}

type createAccountRequest struct {
	OwnerName   string `json:"owner_name" validate:"required,min=2,max=120"`
	CountryCode string `json:"country_code" validate:"required,len=2,alpha"`
	Currency    string `json:"currency" validate:"required,len=3"`
}

type topUpRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,len=3"`
}

// CreateAccountHandler opens a new account with a generated IBAN.
func (h *AccountHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.service.OpenAccount(r.Context(), req.OwnerName, req.CountryCode, req.Currency)
	if err != nil {
		if errors.Is(err, store.ErrIBANAlreadyExists) {
			h.writeError(w, http.StatusConflict, "Generated IBAN collided; retry the request")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

// GetAccountHandler returns a single account by IBAN.
func (h *AccountHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "iban"))
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// ListAccountsHandler returns a page of accounts.
func (h *AccountHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	accounts, err := h.service.ListAccounts(r.Context(), limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_accounts err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list accounts")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts, "limit": limit, "offset": offset})
}

// TopUpHandler credits an account outside the transfer saga.
func (h *AccountHandlers) TopUpHandler(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Amount.IsPositive() {
		h.writeError(w, http.StatusBadRequest, "Amount must be positive")
		return
	}

	account, err := h.service.TopUp(r.Context(), chi.URLParam(r, "iban"), req.Amount, req.Currency)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// GetBalanceHandler returns just the available balance of an account.
func (h *AccountHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "iban"))
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"iban":     account.IBAN,
		"balance":  account.Balance,
		"currency": account.Currency,
	})
}

// ActivateAccountHandler re-enables a deactivated account.
func (h *AccountHandlers) ActivateAccountHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Activate(r.Context(), chi.URLParam(r, "iban")); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeactivateAccountHandler disables an account.
func (h *AccountHandlers) DeactivateAccountHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), chi.URLParam(r, "iban")); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *AccountHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
