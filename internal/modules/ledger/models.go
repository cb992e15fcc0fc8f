// Package ledger is the transaction ledger gateway: validated, ownership-scoped CRUD over the
// transactions table, with every committed mutation propagated to the derived positions.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/holdings/internal/domain"
)

// Pagination defaults for List
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Sort columns accepted by List
const (
	SortExecutedAt  = "executed_at"
	SortTotalAmount = "total_amount"
	SortCreatedAt   = "created_at"
)

// CreateRequest is the caller-supplied part of a new transaction
type CreateRequest struct {
	PortfolioID      string           `json:"portfolio_id"`
	TradingAccountID string           `json:"trading_account_id"`
	AssetID          string           `json:"asset_id"`
	Type             string           `json:"type"`
	Quantity         decimal.Decimal  `json:"quantity"`
	Price            decimal.Decimal  `json:"price"`
	Fees             *decimal.Decimal `json:"fees,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	Status           string           `json:"status,omitempty"`
	ExecutedAt       *time.Time       `json:"executed_at,omitempty"`
	SettledAt        *time.Time       `json:"settled_at,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	Tags             []string         `json:"tags,omitempty"`
}

// Patch lists the fields an update may change. Nil fields are left untouched.
// The (portfolio, account, asset) key of a transaction is immutable.
type Patch struct {
	Type       *string          `json:"type,omitempty"`
	Quantity   *decimal.Decimal `json:"quantity,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Fees       *decimal.Decimal `json:"fees,omitempty"`
	Currency   *string          `json:"currency,omitempty"`
	Status     *string          `json:"status,omitempty"`
	ExecutedAt *time.Time       `json:"executed_at,omitempty"`
	SettledAt  *time.Time       `json:"settled_at,omitempty"`
	Notes      *string          `json:"notes,omitempty"`
	Tags       *[]string        `json:"tags,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return p.Type == nil && p.Quantity == nil && p.Price == nil && p.Fees == nil &&
		p.Currency == nil && p.Status == nil && p.ExecutedAt == nil && p.SettledAt == nil &&
		p.Notes == nil && p.Tags == nil
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	PortfolioID      string
	TradingAccountID string
	AssetID          string
	Types            []domain.TransactionType
	Side             domain.Side
	Status           domain.TransactionStatus
	From             *time.Time
	To               *time.Time
	MinAmount        *decimal.Decimal
	MaxAmount        *decimal.Decimal
	// Tags matches transactions carrying at least one of the tags
	Tags     []string
	Page     int
	Limit    int
	SortBy   string
	SortDesc bool
}

// Page is one page of List results
type Page struct {
	Items []domain.Transaction `json:"items"`
	Total int                  `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// MutationResult is the outcome of a committed ledger mutation. The ledger write always
// succeeded when a result is returned; PositionErr is set when the derived position
// update that followed it failed and the position is now stale.
type MutationResult struct {
	Transaction domain.Transaction        `json:"transaction"`
	Position    *domain.Position          `json:"position,omitempty"`
	PositionErr *domain.DerivedStateError `json:"-"`
}

// Degraded reports whether the position update failed after the ledger write
func (m *MutationResult) Degraded() bool {
	return m.PositionErr != nil
}
