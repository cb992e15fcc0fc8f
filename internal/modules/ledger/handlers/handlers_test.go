package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/holdings/internal/api"
	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/modules/ledger"
)

type mockLedgerService struct {
	mock.Mock
}

func (m *mockLedgerService) Create(ctx context.Context, ownerID string, req ledger.CreateRequest) (*ledger.MutationResult, error) {
	args := m.Called(ctx, ownerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.MutationResult), args.Error(1)
}

func (m *mockLedgerService) GetByID(ctx context.Context, ownerID, id string) (*domain.Transaction, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *mockLedgerService) List(ctx context.Context, ownerID string, f ledger.Filter) (*ledger.Page, error) {
	args := m.Called(ctx, ownerID, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Page), args.Error(1)
}

func (m *mockLedgerService) Update(ctx context.Context, ownerID, id string, patch ledger.Patch) (*ledger.MutationResult, error) {
	args := m.Called(ctx, ownerID, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.MutationResult), args.Error(1)
}

func (m *mockLedgerService) Delete(ctx context.Context, ownerID, id string) (*ledger.MutationResult, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.MutationResult), args.Error(1)
}

func newRouter(svc *mockLedgerService) http.Handler {
	r := chi.NewRouter()
	NewHandler(svc, zerolog.Nop()).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, owner bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if owner {
		req.Header.Set(api.OwnerHeader, "owner-1")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes(t *testing.T) {
	svc := &mockLedgerService{}
	router := newRouter(svc)

	testCases := []struct {
		method string
		path   string
	}{
		{"GET", "/transactions/"},
		{"POST", "/transactions/"},
		{"GET", "/transactions/tx-1"},
		{"PATCH", "/transactions/tx-1"},
		{"DELETE", "/transactions/tx-1"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := do(t, router, tc.method, tc.path, "", false)
			assert.NotEqual(t, http.StatusNotFound, w.Code)
			assert.Equal(t, http.StatusUnauthorized, w.Code, "owner header is required")
		})
	}
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCreateTransaction(t *testing.T) {
	svc := &mockLedgerService{}
	router := newRouter(svc)

	executed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	expectedReq := ledger.CreateRequest{
		PortfolioID:      "portfolio-1",
		TradingAccountID: "account-1",
		AssetID:          "asset-aapl",
		Type:             "buy",
		Quantity:         decimal.RequireFromString("10"),
		Price:            decimal.RequireFromString("12.5"),
		ExecutedAt:       &executed,
	}
	svc.On("Create", mock.Anything, "owner-1", mock.MatchedBy(func(req ledger.CreateRequest) bool {
		return req.PortfolioID == expectedReq.PortfolioID &&
			req.Quantity.Equal(expectedReq.Quantity) &&
			req.Price.Equal(expectedReq.Price) &&
			req.ExecutedAt.Equal(executed)
	})).Return(&ledger.MutationResult{
		Transaction: domain.Transaction{ID: "tx-1", TotalAmount: decimal.RequireFromString("125")},
		PositionErr: &domain.DerivedStateError{Operation: "create", TransactionID: "tx-1", Err: errors.New("locked")},
	}, nil)

	body := `{"portfolio_id":"portfolio-1","trading_account_id":"account-1","asset_id":"asset-aapl",
		"type":"buy","quantity":"10","price":12.5,"executed_at":"2024-03-01T00:00:00Z"}`
	w := do(t, router, "POST", "/transactions/", body, true)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp MutationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "tx-1", resp.Transaction.ID)
	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.PositionError, "locked")
	svc.AssertExpectations(t)
}

func TestHandleCreateTransaction_Errors(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		svc := &mockLedgerService{}
		w := do(t, newRouter(svc), "POST", "/transactions/", `{"portfolio":"x"}`, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("validation", func(t *testing.T) {
		svc := &mockLedgerService{}
		svc.On("Create", mock.Anything, "owner-1", mock.Anything).
			Return(nil, domain.NewValidationError("quantity", "0", "must be greater than 0"))

		w := do(t, newRouter(svc), "POST", "/transactions/", `{"quantity":"0"}`, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var body api.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "quantity", body.Field)
	})

	t.Run("not owned", func(t *testing.T) {
		svc := &mockLedgerService{}
		svc.On("Create", mock.Anything, "owner-1", mock.Anything).
			Return(nil, domain.NewNotFoundError("portfolio", "portfolio-2"))

		w := do(t, newRouter(svc), "POST", "/transactions/", `{"portfolio_id":"portfolio-2"}`, true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleGetTransactions_ParsesFilter(t *testing.T) {
	svc := &mockLedgerService{}
	router := newRouter(svc)

	svc.On("List", mock.Anything, "owner-1", mock.MatchedBy(func(f ledger.Filter) bool {
		return f.PortfolioID == "portfolio-1" &&
			f.TradingAccountID == "account-1" &&
			len(f.Types) == 2 && f.Types[0] == domain.TypeETFBuy && f.Types[1] == domain.TypeSell &&
			f.Side == domain.SideBuy &&
			f.Status == domain.StatusSettled &&
			f.From != nil && f.From.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) &&
			f.To != nil && f.To.Equal(time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)) &&
			f.MinAmount != nil && f.MinAmount.Equal(decimal.RequireFromString("10.5")) &&
			f.MaxAmount == nil &&
			len(f.Tags) == 2 &&
			f.Page == 2 && f.Limit == 50 &&
			f.SortBy == "total_amount" && !f.SortDesc
	})).Return(&ledger.Page{Items: []domain.Transaction{}, Total: 0, Page: 2, Limit: 50}, nil)

	path := "/transactions/?portfolio_id=portfolio-1&account_id=account-1&type=etf-buy,sell&side=buy" +
		"&status=settled&from=2024-01-01&to=2024-01-31&min_amount=10.5&tags=core,%20tax" +
		"&page=2&limit=50&sort_by=total_amount&order=asc"
	w := do(t, router, "GET", path, "", true)

	require.Equal(t, http.StatusOK, w.Code)
	var page ledger.Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Page)
	svc.AssertExpectations(t)
}

func TestHandleGetTransactions_BadQuery(t *testing.T) {
	paths := []string{
		"/transactions/?type=gift",
		"/transactions/?side=long",
		"/transactions/?status=lost",
		"/transactions/?from=yesterday",
		"/transactions/?min_amount=abc",
		"/transactions/?page=two",
		"/transactions/?order=sideways",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			svc := &mockLedgerService{}
			w := do(t, newRouter(svc), "GET", path, "", true)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandleTransactionByID(t *testing.T) {
	svc := &mockLedgerService{}
	router := newRouter(svc)

	svc.On("GetByID", mock.Anything, "owner-1", "tx-1").Return(&domain.Transaction{ID: "tx-1"}, nil)
	svc.On("GetByID", mock.Anything, "owner-1", "tx-missing").Return(nil, domain.NewNotFoundError("transaction", "tx-missing"))

	qty := decimal.RequireFromString("3")
	svc.On("Update", mock.Anything, "owner-1", "tx-1", mock.MatchedBy(func(p ledger.Patch) bool {
		return p.Quantity != nil && p.Quantity.Equal(qty) && p.Price == nil
	})).Return(&ledger.MutationResult{Transaction: domain.Transaction{ID: "tx-1", Quantity: qty}}, nil)

	svc.On("Delete", mock.Anything, "owner-1", "tx-1").Return(&ledger.MutationResult{Transaction: domain.Transaction{ID: "tx-1"}}, nil)
	svc.On("Delete", mock.Anything, "owner-1", "tx-stuck").Return(nil, &domain.ConsistencyError{Operation: "delete", ID: "tx-stuck", Message: "still present"})

	w := do(t, router, "GET", "/transactions/tx-1", "", true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, "GET", "/transactions/tx-missing", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, "PATCH", "/transactions/tx-1", `{"quantity":"3"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	var resp MutationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Degraded)

	w = do(t, router, "PATCH", "/transactions/tx-1", `{"portfolio_id":"elsewhere"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code, "key fields cannot be patched")

	w = do(t, router, "DELETE", "/transactions/tx-1", "", true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, "DELETE", "/transactions/tx-stuck", "", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	svc.AssertExpectations(t)
}
