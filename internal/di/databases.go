package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/config"
	"github.com/aristath/holdings/internal/database"
)

// InitializeDatabases opens both databases and applies their migrations
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. ledger.db - Transaction ledger, portfolios, accounts and the asset registry
	ledgerDB, err := database.New(database.Config{
		Path:        cfg.LedgerDBPath(),
		Profile:     database.ProfileLedger,
		Name:        "ledger",
		BusyTimeout: cfg.DBBusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}
	container.LedgerDB = ledgerDB

	// 2. portfolio.db - Derived positions
	portfolioDB, err := database.New(database.Config{
		Path:        cfg.PortfolioDBPath(),
		Profile:     database.ProfileStandard,
		Name:        "portfolio",
		BusyTimeout: cfg.DBBusyTimeout,
	})
	if err != nil {
		_ = ledgerDB.Close()
		return nil, fmt.Errorf("failed to initialize portfolio database: %w", err)
	}
	container.PortfolioDB = portfolioDB

	for name, db := range container.Databases() {
		if err := db.Migrate(); err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", name, err)
		}
	}

	log.Info().
		Str("ledger", ledgerDB.Path()).
		Str("portfolio", portfolioDB.Path()).
		Msg("Databases initialized")

	return container, nil
}
