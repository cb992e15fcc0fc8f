package testing

import (
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/holdings/internal/domain"
)

// Fixture ids shared by module tests
const (
	OwnerID        = "owner-1"
	OtherOwnerID   = "owner-2"
	PortfolioID    = "portfolio-1"
	OtherPortfolio = "portfolio-2"
	AccountID      = "account-1"
	OtherAccountID = "account-2"
	AssetAAPL      = "asset-aapl"
	AssetVWCE      = "asset-vwce"
	AssetBTC       = "asset-btc"
)

// NewPortfolioFixtures returns two portfolios owned by different owners
func NewPortfolioFixtures() []domain.Portfolio {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Portfolio{
		{ID: PortfolioID, OwnerID: OwnerID, Name: "Main", CreatedAt: created},
		{ID: OtherPortfolio, OwnerID: OtherOwnerID, Name: "Someone else", CreatedAt: created},
	}
}

// NewAccountFixtures returns one trading account per fixture portfolio
func NewAccountFixtures() []domain.TradingAccount {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.TradingAccount{
		{ID: AccountID, PortfolioID: PortfolioID, Name: "Broker A", CreatedAt: created},
		{ID: OtherAccountID, PortfolioID: OtherPortfolio, Name: "Broker B", CreatedAt: created},
	}
}

// NewAssetFixtures returns assets quoted in different currencies
func NewAssetFixtures() []domain.Asset {
	return []domain.Asset{
		{ID: AssetAAPL, Symbol: "AAPL", Name: "Apple Inc.", Currency: "USD"},
		{ID: AssetVWCE, Symbol: "VWCE", Name: "Vanguard FTSE All-World UCITS ETF", Currency: "EUR"},
		{ID: AssetBTC, Symbol: "BTC", Name: "Bitcoin", Currency: "USD"},
	}
}

// SeedLedger inserts the portfolio, account and asset fixtures into a migrated ledger database
func SeedLedger(t *testing.T, ledgerDB *sql.DB) {
	t.Helper()

	for _, p := range NewPortfolioFixtures() {
		if _, err := ledgerDB.Exec(
			"INSERT INTO portfolios (id, owner_id, name, created_at) VALUES (?, ?, ?, ?)",
			p.ID, p.OwnerID, p.Name, p.CreatedAt.Unix(),
		); err != nil {
			t.Fatalf("Failed to seed portfolio %s: %v", p.ID, err)
		}
	}

	for _, a := range NewAccountFixtures() {
		if _, err := ledgerDB.Exec(
			"INSERT INTO trading_accounts (id, portfolio_id, name, created_at) VALUES (?, ?, ?, ?)",
			a.ID, a.PortfolioID, a.Name, a.CreatedAt.Unix(),
		); err != nil {
			t.Fatalf("Failed to seed trading account %s: %v", a.ID, err)
		}
	}

	for _, a := range NewAssetFixtures() {
		if _, err := ledgerDB.Exec(
			"INSERT INTO assets (id, symbol, name, currency) VALUES (?, ?, ?, ?)",
			a.ID, a.Symbol, a.Name, a.Currency,
		); err != nil {
			t.Fatalf("Failed to seed asset %s: %v", a.ID, err)
		}
	}
}
