package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/cache"
	"github.com/aristath/holdings/internal/config"
	"github.com/aristath/holdings/internal/modules/imports"
	"github.com/aristath/holdings/internal/modules/ledger"
	"github.com/aristath/holdings/internal/modules/positions"
	"github.com/aristath/holdings/internal/reliability"
)

// InitializeServices creates the services. The position cache serves both as the
// position service's read cache and as the invalidation hook of the ledger and imports.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.TransactionRepo == nil || container.PositionRepo == nil {
		return fmt.Errorf("repositories must be initialized before services")
	}

	container.PositionCache = cache.NewPositionCache(cfg.PositionCacheTTL, cfg.PositionCacheClean, log)
	container.Staleness = reliability.NewStalenessTracker()

	container.PositionService = positions.NewService(
		container.PositionRepo,
		container.AssetRegistry,
		container.TransactionRepo,
		container.PositionCache,
		log,
	)

	container.LedgerService = ledger.NewService(
		container.TransactionRepo,
		container.PortfolioRepo,
		container.AssetRegistry,
		container.PositionService,
		container.PositionCache,
		container.Staleness,
		cfg.SupportedCurrencies,
		log,
	)

	container.ImportService = imports.NewService(
		container.TransactionRepo,
		container.PortfolioRepo,
		container.AssetRegistry,
		container.PositionService,
		container.PositionCache,
		container.Staleness,
		imports.NewValidator(cfg.SupportedCurrencies),
		cfg.ImportCommitTimeout,
		log,
	)

	log.Debug().Msg("Services initialized")
	return nil
}
