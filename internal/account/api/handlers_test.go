package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahmetunal/TransferHub/internal/account/app"
	"github.com/mahmetunal/TransferHub/internal/account/domain"
	"github.com/mahmetunal/TransferHub/internal/account/store"
	"github.com/mahmetunal/TransferHub/pkg/idempotency"
	"github.com/mahmetunal/TransferHub/pkg/money"
)

type apiStubRepo struct {
	store.Repository

	created   *domain.Account
	account   *domain.Account
	activated []string
	err       error
}

func (s *apiStubRepo) CreateAccount(_ context.Context, account *domain.Account) error {
	s.created = account
	return s.err
}

func (s *apiStubRepo) GetAccountByIBAN(context.Context, string) (*domain.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.account, nil
}

func (s *apiStubRepo) TopUpAccount(_ context.Context, _ string, amount decimal.Decimal, _ string) (*domain.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.account.Balance = s.account.Balance.Add(amount)
	return s.account, nil
}

func (s *apiStubRepo) ActivateAccount(_ context.Context, iban string) error {
	s.activated = append(s.activated, iban)
	return s.err
}

func (s *apiStubRepo) DeactivateAccount(context.Context, string) error {
	return s.err
}

type noopIdemStore struct{}

func (noopIdemStore) GetCachedResponse(context.Context, string) (*idempotency.CachedResponse, error) {
	return nil, nil
}
func (noopIdemStore) SaveCachedResponse(context.Context, string, *idempotency.CachedResponse, time.Duration) error {
	return nil
}
func (noopIdemStore) AcquireLock(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}
func (noopIdemStore) ReleaseLock(context.Context, string) error { return nil }

func newTestRouter(repo *apiStubRepo) http.Handler {
	handlers := NewAccountHandlers(app.NewAccountService(repo))
	idem := idempotency.NewMiddleware(noopIdemStore{}, 0)
	return AccountRoutes(handlers, idem)
}

func jsonRequest(method, target string, body map[string]any) *http.Request {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotency.HeaderKey, "key-1")
	return req
}

func testAccount(t *testing.T) *domain.Account {
	t.Helper()
	iban, err := money.GenerateIBAN("DE")
	require.NoError(t, err)
	return domain.NewAccount(iban, "Ada Lovelace", money.EUR)
}

func TestCreateAccount_ReturnsActiveAccountWithIBAN(t *testing.T) {
	repo := &apiStubRepo{}
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/accounts", map[string]any{
		"owner_name":   "Ada Lovelace",
		"country_code": "DE",
		"currency":     "EUR",
	}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var got domain.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.IsActive)
	_, err := money.ParseIBAN(got.IBAN)
	assert.NoError(t, err)
	assert.NotNil(t, repo.created)
}

func TestCreateAccount_RejectsInvalidPayloads(t *testing.T) {
	router := newTestRouter(&apiStubRepo{})

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing owner", map[string]any{"country_code": "DE", "currency": "EUR"}},
		{"numeric country code", map[string]any{"owner_name": "Ada", "country_code": "12", "currency": "EUR"}},
		{"unsupported currency", map[string]any{"owner_name": "Ada", "country_code": "DE", "currency": "XTS"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/accounts", tc.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateAccount_RequiresIdempotencyKey(t *testing.T) {
	router := newTestRouter(&apiStubRepo{})

	payload, _ := json.Marshal(map[string]any{"owner_name": "Ada Lovelace", "country_code": "DE", "currency": "EUR"})
	req := httptest.NewRequest(http.MethodPost, "/accounts", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAccount_NotFound(t *testing.T) {
	repo := &apiStubRepo{err: store.ErrAccountNotFound}
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/DE89370400440532013000", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAccount_MalformedIBAN(t *testing.T) {
	router := newTestRouter(&apiStubRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/not-an-iban", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTopUp_CreditsAccount(t *testing.T) {
	repo := &apiStubRepo{account: testAccount(t)}
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/accounts/"+repo.account.IBAN+"/topup", map[string]any{
		"amount":   "250.00",
		"currency": "EUR",
	}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, repo.account.Balance.Equal(decimal.RequireFromString("250.00")))
}

func TestTopUp_RejectsNonPositiveAmount(t *testing.T) {
	repo := &apiStubRepo{account: testAccount(t)}
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/accounts/"+repo.account.IBAN+"/topup", map[string]any{
		"amount":   "-5",
		"currency": "EUR",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, repo.account.Balance.IsZero())
}

func TestGetBalance_ReturnsBalanceAndCurrency(t *testing.T) {
	repo := &apiStubRepo{account: testAccount(t)}
	repo.account.Balance = decimal.RequireFromString("75.50")
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/"+repo.account.IBAN+"/balance", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		IBAN     string          `json:"iban"`
		Balance  decimal.Decimal `json:"balance"`
		Currency string          `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, repo.account.IBAN, body.IBAN)
	assert.True(t, body.Balance.Equal(decimal.RequireFromString("75.50")))
	assert.Equal(t, "EUR", body.Currency)
}

func TestGetBalance_NotFound(t *testing.T) {
	repo := &apiStubRepo{err: store.ErrAccountNotFound}
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/DE89370400440532013000/balance", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivateAccount_NoContent(t *testing.T) {
	repo := &apiStubRepo{}
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounts/DE89370400440532013000/activate", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"DE89370400440532013000"}, repo.activated)
}

func TestActivateAccount_NotFound(t *testing.T) {
	repo := &apiStubRepo{err: store.ErrAccountNotFound}
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounts/DE89370400440532013000/activate", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeactivateAccount_NoContent(t *testing.T) {
	repo := &apiStubRepo{}
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/accounts/DE89370400440532013000", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
