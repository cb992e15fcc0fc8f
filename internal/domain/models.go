// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one row of the ledger. The ledger is the source of truth;
// positions are derived from it.
type Transaction struct {
	ExecutedAt       time.Time         `json:"executed_at"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	SettledAt        *time.Time        `json:"settled_at,omitempty"`
	ID               string            `json:"id"`
	PortfolioID      string            `json:"portfolio_id"`
	TradingAccountID string            `json:"trading_account_id"`
	AssetID          string            `json:"asset_id"`
	Type             TransactionType   `json:"type"`
	Side             Side              `json:"side"`
	Status           TransactionStatus `json:"status"`
	Currency         string            `json:"currency"`
	Notes            string            `json:"notes,omitempty"`
	Tags             []string          `json:"tags"`
	ImportBatchID    string            `json:"import_batch_id,omitempty"`
	Quantity         decimal.Decimal   `json:"quantity"`
	Price            decimal.Decimal   `json:"price"`
	TotalAmount      decimal.Decimal   `json:"total_amount"`
	Fees             decimal.Decimal   `json:"fees"`
}

// Key returns the position key this transaction contributes to
func (t Transaction) Key() PositionKey {
	return PositionKey{
		PortfolioID:      t.PortfolioID,
		TradingAccountID: t.TradingAccountID,
		AssetID:          t.AssetID,
	}
}

// Effect returns the accounting effect of the transaction on its position
func (t Transaction) Effect() Effect {
	return Effect{
		Type:     t.Type,
		Quantity: t.Quantity,
		Price:    t.Price,
		Date:     t.ExecutedAt,
	}
}

// PositionKey identifies at most one active position
type PositionKey struct {
	PortfolioID      string `json:"portfolio_id"`
	TradingAccountID string `json:"trading_account_id"`
	AssetID          string `json:"asset_id"`
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.PortfolioID, k.TradingAccountID, k.AssetID)
}

// Position is the derived weighted-average aggregate for one key.
// Positions are never deleted; a position whose quantity reaches zero or below is deactivated.
type Position struct {
	LastTransactionDate time.Time       `json:"last_transaction_date"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	FirstPurchaseDate   *time.Time      `json:"first_purchase_date,omitempty"`
	ID                  string          `json:"id"`
	PortfolioID         string          `json:"portfolio_id"`
	TradingAccountID    string          `json:"trading_account_id"`
	AssetID             string          `json:"asset_id"`
	Currency            string          `json:"currency"`
	Quantity            decimal.Decimal `json:"quantity"`
	AverageCost         decimal.Decimal `json:"average_cost"`
	TotalCost           decimal.Decimal `json:"total_cost"`
	IsActive            bool            `json:"is_active"`
}

// Key returns the position key
func (p Position) Key() PositionKey {
	return PositionKey{
		PortfolioID:      p.PortfolioID,
		TradingAccountID: p.TradingAccountID,
		AssetID:          p.AssetID,
	}
}

// Effect is the part of a transaction the cost-basis calculator needs.
// Quantity is always a positive magnitude; direction comes from Type.
type Effect struct {
	Date     time.Time
	Type     TransactionType
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Portfolio belongs to exactly one owner
type Portfolio struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
}

// TradingAccount belongs to exactly one portfolio
type TradingAccount struct {
	CreatedAt   time.Time `json:"created_at"`
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	Name        string    `json:"name"`
}

// Asset is an instrument known to the asset registry
type Asset struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}
