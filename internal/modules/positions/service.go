package positions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/keylock"
)

// PositionRepositoryInterface defines the persistence operations the service needs
type PositionRepositoryInterface interface {
	GetActive(ctx context.Context, key domain.PositionKey) (*domain.Position, error)
	GetLatest(ctx context.Context, key domain.PositionKey) (*domain.Position, error)
	GetByPortfolio(ctx context.Context, portfolioID string, includeInactive bool) ([]domain.Position, error)
	GetKeys(ctx context.Context, portfolioID string) ([]domain.PositionKey, error)
	Insert(ctx context.Context, pos domain.Position) error
	Update(ctx context.Context, pos domain.Position) error
}

// LedgerSource reads the authoritative transaction history for rebuilds
type LedgerSource interface {
	// ListForKey returns every transaction of the key ordered by execution time
	ListForKey(ctx context.Context, key domain.PositionKey) ([]domain.Transaction, error)
	// ListKeys returns the distinct keys with at least one transaction in the portfolio
	ListKeys(ctx context.Context, portfolioID string) ([]domain.PositionKey, error)
}

// PortfolioCache holds the active positions of a portfolio between reads.
// Every Delete advances the portfolio's generation; SetIfGeneration stores a snapshot
// only while the generation is still the one read before loading it.
type PortfolioCache interface {
	Get(portfolioID string) ([]domain.Position, bool)
	Generation(portfolioID string) uint64
	SetIfGeneration(portfolioID string, generation uint64, positions []domain.Position) bool
	Delete(portfolioID string)
}

// Service is the position store: it reads the current aggregate for a key, runs the
// calculator and persists the result. All read-compute-write sequences for one
// (portfolio, account, asset) key run under that key's lock.
type Service struct {
	repo     PositionRepositoryInterface
	registry domain.AssetRegistry
	ledger   LedgerSource   // optional, required only for rebuilds
	cache    PortfolioCache // optional
	locks    *keylock.Locker[domain.PositionKey]
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates a new position service
func NewService(
	repo PositionRepositoryInterface,
	registry domain.AssetRegistry,
	ledger LedgerSource,
	cache PortfolioCache,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		ledger:   ledger,
		cache:    cache,
		locks:    keylock.New[domain.PositionKey](),
		now:      time.Now,
		log:      log.With().Str("service", "positions").Logger(),
	}
}

// Get returns the active position for a key, or nil when none exists
func (s *Service) Get(ctx context.Context, key domain.PositionKey) (*domain.Position, error) {
	return s.repo.GetActive(ctx, key)
}

// GetPortfolioPositions returns the active positions of a portfolio
func (s *Service) GetPortfolioPositions(ctx context.Context, portfolioID string) ([]domain.Position, error) {
	var generation uint64
	if s.cache != nil {
		if cached, ok := s.cache.Get(portfolioID); ok {
			return cached, nil
		}
		generation = s.cache.Generation(portfolioID)
	}

	positions, err := s.repo.GetByPortfolio(ctx, portfolioID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio positions: %w", err)
	}

	// A write that landed during the read has already invalidated this snapshot
	if s.cache != nil && !s.cache.SetIfGeneration(portfolioID, generation, positions) {
		s.log.Debug().Str("portfolio_id", portfolioID).Msg("Portfolio changed during read, snapshot not cached")
	}
	return positions, nil
}

// UpsertFromTransaction applies the transaction's effect to the active position of its key,
// creating a new position record when none is active.
func (s *Service) UpsertFromTransaction(ctx context.Context, tx domain.Transaction) (*domain.Position, error) {
	if err := validateEffect(tx); err != nil {
		return nil, err
	}

	key := tx.Key()
	unlock := s.locks.Lock(key)
	defer unlock()

	current, err := s.repo.GetActive(ctx, key)
	if err != nil {
		return nil, err
	}

	next := ApplyEffect(current, tx.Effect())
	pos, err := s.save(ctx, key, current, next)
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("transaction_id", tx.ID).
		Str("key", key.String()).
		Str("quantity", pos.Quantity.String()).
		Str("average_cost", pos.AverageCost.String()).
		Bool("is_active", pos.IsActive).
		Msg("Position updated from transaction")
	return pos, nil
}

// AdjustForDeletedTransaction reverses the transaction's effect on the latest position
// record of its key. A key with no position record at all is logged and skipped.
func (s *Service) AdjustForDeletedTransaction(ctx context.Context, tx domain.Transaction) (*domain.Position, error) {
	if err := validateEffect(tx); err != nil {
		return nil, err
	}

	key := tx.Key()
	unlock := s.locks.Lock(key)
	defer unlock()

	current, err := s.repo.GetLatest(ctx, key)
	if err != nil {
		return nil, err
	}
	if current == nil {
		s.log.Warn().
			Str("transaction_id", tx.ID).
			Str("key", key.String()).
			Msg("No position found for deleted transaction, nothing to adjust")
		return nil, nil
	}

	next := ReverseEffect(*current, tx.Effect())
	return s.save(ctx, key, current, next)
}

// ReplaceTransaction moves the position from the old version of a transaction to the new one:
// the old effect is reversed and the new effect applied under a single key lock.
// If reversing empties the position, the new effect starts it over on the same record.
func (s *Service) ReplaceTransaction(ctx context.Context, old, updated domain.Transaction) (*domain.Position, error) {
	if old.Key() != updated.Key() {
		return nil, fmt.Errorf("cannot move transaction %s between positions", old.ID)
	}
	if err := validateEffect(old); err != nil {
		return nil, err
	}
	if err := validateEffect(updated); err != nil {
		return nil, err
	}

	key := updated.Key()
	unlock := s.locks.Lock(key)
	defer unlock()

	latest, err := s.repo.GetLatest(ctx, key)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return s.save(ctx, key, nil, ApplyEffect(nil, updated.Effect()))
	}

	reversed := ReverseEffect(*latest, old.Effect())
	var base *domain.Position
	if reversed.IsActive {
		base = &reversed
	}

	next := ApplyEffect(base, updated.Effect())
	return s.save(ctx, key, latest, next)
}

// RebuildPosition replays the full ledger history of a key through the calculator
// and overwrites the latest position record with the result.
func (s *Service) RebuildPosition(ctx context.Context, key domain.PositionKey) (*domain.Position, error) {
	if s.ledger == nil {
		return nil, fmt.Errorf("position rebuild requires a ledger source")
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	return s.rebuildLocked(ctx, key)
}

// RebuildPortfolio rebuilds every key of the portfolio that appears in the ledger or
// already has a position record, and returns the resulting active positions.
func (s *Service) RebuildPortfolio(ctx context.Context, portfolioID string) ([]domain.Position, error) {
	if s.ledger == nil {
		return nil, fmt.Errorf("position rebuild requires a ledger source")
	}

	ledgerKeys, err := s.ledger.ListKeys(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger keys: %w", err)
	}
	positionKeys, err := s.repo.GetKeys(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	seen := make(map[domain.PositionKey]bool)
	rebuilt := 0
	for _, key := range append(ledgerKeys, positionKeys...) {
		if seen[key] {
			continue
		}
		seen[key] = true

		if _, err := s.RebuildPosition(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to rebuild position %s: %w", key, err)
		}
		rebuilt++
	}

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Int("keys", rebuilt).
		Msg("Portfolio positions rebuilt from ledger")

	return s.GetPortfolioPositions(ctx, portfolioID)
}

func (s *Service) rebuildLocked(ctx context.Context, key domain.PositionKey) (*domain.Position, error) {
	txs, err := s.ledger.ListForKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger history: %w", err)
	}

	effects := make([]domain.Effect, 0, len(txs))
	for _, tx := range txs {
		effects = append(effects, tx.Effect())
	}
	replayed := Replay(effects)

	latest, err := s.repo.GetLatest(ctx, key)
	if err != nil {
		return nil, err
	}

	switch {
	case replayed == nil && latest == nil:
		return nil, nil

	case replayed == nil:
		// Nothing left in the ledger for this key
		next := *latest
		next.Quantity = decimal.Zero
		next.TotalCost = decimal.Zero
		next.IsActive = false
		return s.save(ctx, key, latest, next)

	default:
		return s.save(ctx, key, latest, *replayed)
	}
}

// save persists next as the successor of existing. A nil existing inserts a new record;
// otherwise the existing record's identity is kept and its fields overwritten.
func (s *Service) save(ctx context.Context, key domain.PositionKey, existing *domain.Position, next domain.Position) (*domain.Position, error) {
	now := s.now().UTC().Truncate(time.Second)
	next.UpdatedAt = now

	if existing == nil {
		currency, err := s.registry.LookupCurrency(ctx, key.AssetID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up currency for asset %s: %w", key.AssetID, err)
		}

		next.ID = uuid.NewString()
		next.PortfolioID = key.PortfolioID
		next.TradingAccountID = key.TradingAccountID
		next.AssetID = key.AssetID
		next.Currency = currency
		next.CreatedAt = now

		if err := s.repo.Insert(ctx, next); err != nil {
			return nil, err
		}
		s.invalidate(key.PortfolioID)
		return &next, nil
	}

	next.ID = existing.ID
	next.PortfolioID = existing.PortfolioID
	next.TradingAccountID = existing.TradingAccountID
	next.AssetID = existing.AssetID
	next.Currency = existing.Currency
	next.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}

	if existing.IsActive && !next.IsActive {
		s.log.Info().
			Str("position_id", next.ID).
			Str("key", key.String()).
			Str("quantity", next.Quantity.String()).
			Msg("Position deactivated")
	}

	s.invalidate(key.PortfolioID)
	return &next, nil
}

func (s *Service) invalidate(portfolioID string) {
	if s.cache != nil {
		s.cache.Delete(portfolioID)
	}
}

func validateEffect(tx domain.Transaction) error {
	if !tx.Type.IsValid() {
		return domain.NewValidationError("type", tx.Type, "unknown transaction type")
	}
	if !tx.Quantity.IsPositive() {
		return domain.NewValidationError("quantity", tx.Quantity.String(), "must be greater than 0")
	}
	return nil
}
