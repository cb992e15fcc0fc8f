package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/modules/assets"
	"github.com/aristath/holdings/internal/modules/ledger"
	"github.com/aristath/holdings/internal/modules/portfolios"
	"github.com/aristath/holdings/internal/modules/positions"
)

// InitializeRepositories creates all repositories over the open databases
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container.LedgerDB == nil || container.PortfolioDB == nil {
		return fmt.Errorf("databases must be initialized before repositories")
	}

	container.TransactionRepo = ledger.NewTransactionRepository(container.LedgerDB.Conn(), log)
	container.PortfolioRepo = portfolios.NewRepository(container.LedgerDB.Conn(), log)
	container.AssetRegistry = assets.NewRegistry(container.LedgerDB.Conn(), log)
	container.PositionRepo = positions.NewPositionRepository(container.PortfolioDB.Conn(), log)

	log.Debug().Msg("Repositories initialized")
	return nil
}
