// Package di provides dependency injection wiring and initialization.
package di

import (
	"errors"

	"github.com/aristath/holdings/internal/cache"
	"github.com/aristath/holdings/internal/database"
	"github.com/aristath/holdings/internal/modules/assets"
	"github.com/aristath/holdings/internal/modules/imports"
	"github.com/aristath/holdings/internal/modules/ledger"
	"github.com/aristath/holdings/internal/modules/portfolios"
	"github.com/aristath/holdings/internal/modules/positions"
	"github.com/aristath/holdings/internal/reliability"
)

// Container holds all dependencies for the application.
// It is created by Wire and handed to the server and the scheduler.
//
// Architecture:
//   - Databases: ledger.db (source of truth) and portfolio.db (derived positions)
//   - Repositories: transactions, portfolios and accounts, asset registry, positions
//   - Services: ledger, positions, imports
//   - Reliability: staleness tracker and the daily maintenance job
type Container struct {
	// Databases
	LedgerDB    *database.DB
	PortfolioDB *database.DB

	// Repositories
	TransactionRepo *ledger.TransactionRepository
	PortfolioRepo   *portfolios.Repository
	AssetRegistry   *assets.Registry
	PositionRepo    *positions.PositionRepository

	// Services
	PositionCache   *cache.PositionCache
	Staleness       *reliability.StalenessTracker
	PositionService *positions.Service
	LedgerService   *ledger.Service
	ImportService   *imports.Service

	// Jobs
	MaintenanceJob *reliability.DailyMaintenanceJob
}

// Databases returns the open databases keyed by name
func (c *Container) Databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 2)
	if c.LedgerDB != nil {
		dbs["ledger"] = c.LedgerDB
	}
	if c.PortfolioDB != nil {
		dbs["portfolio"] = c.PortfolioDB
	}
	return dbs
}

// Wait blocks until the services have finished their background cache invalidations
func (c *Container) Wait() {
	if c.LedgerService != nil {
		c.LedgerService.Wait()
	}
	if c.ImportService != nil {
		c.ImportService.Wait()
	}
}

// Close closes every open database
func (c *Container) Close() error {
	var errs []error
	if c.PortfolioDB != nil {
		errs = append(errs, c.PortfolioDB.Close())
	}
	if c.LedgerDB != nil {
		errs = append(errs, c.LedgerDB.Close())
	}
	return errors.Join(errs...)
}
