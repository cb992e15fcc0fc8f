package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/holdings/internal/api"
	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/modules/imports"
)

type mockImportService struct {
	mock.Mock
}

func (m *mockImportService) Import(ctx context.Context, ic imports.Context, rows []imports.Row) (*imports.Result, error) {
	args := m.Called(ctx, ic, rows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*imports.Result), args.Error(1)
}

const body = `{
	"portfolio_id": "portfolio-1",
	"trading_account_id": "account-1",
	"asset_id": "asset-aapl",
	"rows": [
		{"date": "2024-03-01", "type": "BUY", "quantity": 10, "price": "100.5"},
		{"date": "2024-03-02", "type": "SELL", "quantity": "4", "price": 110, "fee": 1, "tags": ["rebalance"]}
	]
}`

func setup() (*mockImportService, http.Handler) {
	svc := &mockImportService{}
	r := chi.NewRouter()
	NewHandler(svc, zerolog.Nop()).RegisterRoutes(r)
	return svc, r
}

func post(router http.Handler, payload, owner string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/imports", strings.NewReader(payload))
	if owner != "" {
		req.Header.Set(api.OwnerHeader, owner)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleImport_Decoding(t *testing.T) {
	svc, router := setup()

	expected := imports.Context{
		OwnerID:          "owner-1",
		PortfolioID:      "portfolio-1",
		TradingAccountID: "account-1",
		AssetID:          "asset-aapl",
	}
	svc.On("Import", mock.Anything, expected, mock.MatchedBy(func(rows []imports.Row) bool {
		return len(rows) == 2 &&
			rows[0].Quantity == "10" &&
			rows[0].Price == "100.5" &&
			rows[1].Fee == "1" &&
			rows[1].Tags.Values[0] == "rebalance"
	})).Return(&imports.Result{Success: true, Count: 2, Summary: imports.Summary{BatchID: "batch-1", Imported: 2}}, nil)

	w := post(router, body, "owner-1")
	require.Equal(t, http.StatusCreated, w.Code)

	var result imports.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "batch-1", result.Summary.BatchID)
	svc.AssertExpectations(t)
}

func TestHandleImport_MalformedTagsReachService(t *testing.T) {
	svc, router := setup()

	payload := `{
		"portfolio_id": "portfolio-1",
		"trading_account_id": "account-1",
		"asset_id": "asset-aapl",
		"rows": [
			{"date": "2024-03-01", "type": "BUY", "quantity": 1, "price": 10, "tags": "rebalance"},
			{"date": "2024-03-02", "type": "BUY", "quantity": -5, "price": 10}
		]
	}`

	violations := &imports.Result{Errors: []imports.RowError{
		{Row: 1, Field: "tags", Value: `"rebalance"`, Message: "must be an array of strings"},
		{Row: 2, Field: "quantity", Value: "-5", Message: "must be greater than 0"},
	}}
	svc.On("Import", mock.Anything, mock.Anything, mock.MatchedBy(func(rows []imports.Row) bool {
		return len(rows) == 2 && rows[0].Tags.Invalid == `"rebalance"` && rows[1].Quantity == "-5"
	})).Return(violations, nil)

	w := post(router, payload, "owner-1")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	var result imports.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "tags", result.Errors[0].Field)
	assert.Equal(t, 2, result.Errors[1].Row)
	svc.AssertExpectations(t)
}

func TestHandleImport_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		result *imports.Result
		err    error
		status int
	}{
		{
			name:   "row violations",
			result: &imports.Result{Errors: []imports.RowError{{Row: 2, Field: "quantity", Message: "must be greater than 0"}}},
			status: http.StatusBadRequest,
		},
		{
			name:   "commit failure",
			result: &imports.Result{Errors: []imports.RowError{{Row: 0, Field: imports.SystemField, Message: "import timed out, nothing was imported"}}},
			status: http.StatusInternalServerError,
		},
		{
			name:   "degraded",
			result: &imports.Result{Success: true, Count: 2, Summary: imports.Summary{Degraded: true, PositionFailures: 1}},
			status: http.StatusCreated,
		},
		{
			name:   "unknown portfolio",
			err:    domain.NewNotFoundError("portfolio", "portfolio-1"),
			status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, router := setup()
			if tt.result != nil {
				svc.On("Import", mock.Anything, mock.Anything, mock.Anything).Return(tt.result, nil)
			} else {
				svc.On("Import", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			w := post(router, body, "owner-1")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHandleImport_BadRequests(t *testing.T) {
	svc, router := setup()

	w := post(router, body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(router, `{"portfolio_id": "portfolio-1", "owner": "someone"}`, "owner-1")
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown fields are rejected")

	w = post(router, `not json`, "owner-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertNotCalled(t, "Import", mock.Anything, mock.Anything, mock.Anything)
}
