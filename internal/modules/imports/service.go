package imports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/reliability"
)

const invalidationTimeout = 5 * time.Second

// BatchStore commits a batch of ledger rows atomically
type BatchStore interface {
	InsertBatch(ctx context.Context, txs []domain.Transaction) error
}

// OwnershipChecker answers whether the caller may book into a portfolio and account
type OwnershipChecker interface {
	GetOwned(ctx context.Context, ownerID, portfolioID string) (*domain.Portfolio, error)
	AccountInPortfolio(ctx context.Context, portfolioID, accountID string) (bool, error)
}

// PositionUpserter applies committed rows to their position
type PositionUpserter interface {
	UpsertFromTransaction(ctx context.Context, tx domain.Transaction) (*domain.Position, error)
}

// Service coordinates batch imports
type Service struct {
	store         BatchStore
	ownership     OwnershipChecker
	registry      domain.AssetRegistry
	positions     PositionUpserter
	invalidator   domain.CacheInvalidator  // optional
	staleness     domain.StalenessRecorder // optional
	validator     *Validator
	commitTimeout time.Duration
	inflight      sync.WaitGroup
	now           func() time.Time
	log           zerolog.Logger
}

// NewService creates a new import service
func NewService(
	store BatchStore,
	ownership OwnershipChecker,
	registry domain.AssetRegistry,
	positions PositionUpserter,
	invalidator domain.CacheInvalidator,
	staleness domain.StalenessRecorder,
	validator *Validator,
	commitTimeout time.Duration,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:         store,
		ownership:     ownership,
		registry:      registry,
		positions:     positions,
		invalidator:   invalidator,
		staleness:     staleness,
		validator:     validator,
		commitTimeout: commitTimeout,
		now:           time.Now,
		log:           log.With().Str("service", "imports").Logger(),
	}
}

// Import runs a batch through context validation, row validation, enrichment, an atomic
// ledger commit and best-effort position repair, in that order.
//
// A missing or foreign portfolio, account or asset is returned as a ValidationError or
// NotFoundError before any row is read. Row violations and system failures, including a
// store that cannot answer the context checks, are reported in the Result with nothing
// persisted. Once the commit succeeds the batch is durable and position failures only
// mark the Result degraded.
func (s *Service) Import(ctx context.Context, ic Context, rows []Row) (*Result, error) {
	summary := Summary{TotalRows: len(rows)}

	defaultCurrency, err := s.validateContext(ctx, ic)
	if err != nil {
		if domain.IsValidation(err) || domain.IsNotFound(err) {
			return nil, err
		}
		s.log.Error().
			Err(err).
			Str("portfolio_id", ic.PortfolioID).
			Str("asset_id", ic.AssetID).
			Msg("Import context check failed, nothing persisted")
		return systemFailure(summary, err), nil
	}

	valid, rowErrs := s.validator.Validate(rows, defaultCurrency)
	if len(rowErrs) > 0 {
		summary.InvalidRows = countRows(rowErrs)
		s.log.Info().
			Str("portfolio_id", ic.PortfolioID).
			Int("rows", len(rows)).
			Int("violations", len(rowErrs)).
			Msg("Import rejected by validation")
		return &Result{Success: false, Errors: rowErrs, Summary: summary}, nil
	}

	batchID := uuid.NewString()
	txs := s.enrich(ic, batchID, valid)

	commitCtx, cancel := context.WithTimeout(ctx, s.commitTimeout)
	err = s.store.InsertBatch(commitCtx, txs)
	cancel()
	if err != nil {
		s.log.Error().
			Err(err).
			Str("portfolio_id", ic.PortfolioID).
			Str("batch_id", batchID).
			Int("rows", len(txs)).
			Msg("Import commit failed, nothing persisted")
		return systemFailure(summary, err), nil
	}

	summary.BatchID = batchID
	summary.Imported = len(txs)

	// The batch is durable from here on; the caller going away must not stop the repair
	repairCtx := context.WithoutCancel(ctx)
	for _, tx := range txs {
		if _, err := s.positions.UpsertFromTransaction(repairCtx, tx); err != nil {
			derived := &domain.DerivedStateError{
				Operation:     "import",
				Key:           tx.Key(),
				TransactionID: tx.ID,
				Err:           err,
			}
			reliability.LogDerivedStateError(s.log, derived)
			if s.staleness != nil {
				s.staleness.RecordDerivedStateError(derived)
			}
			summary.PositionFailures++
			continue
		}
		summary.PositionsUpdated++
	}
	summary.Degraded = summary.PositionFailures > 0

	s.invalidateAsync(ic.PortfolioID)

	s.log.Info().
		Str("portfolio_id", ic.PortfolioID).
		Str("batch_id", batchID).
		Int("imported", summary.Imported).
		Int("position_failures", summary.PositionFailures).
		Msg("Import committed")

	return &Result{Success: true, Count: len(txs), Summary: summary}, nil
}

// Wait blocks until every pending cache invalidation has finished
func (s *Service) Wait() {
	s.inflight.Wait()
}

// validateContext checks the booking target and returns the asset's currency
func (s *Service) validateContext(ctx context.Context, ic Context) (string, error) {
	ids := []struct{ field, value string }{
		{"portfolio_id", ic.PortfolioID},
		{"trading_account_id", ic.TradingAccountID},
		{"asset_id", ic.AssetID},
	}
	for _, id := range ids {
		if strings.TrimSpace(id.value) == "" {
			return "", domain.NewValidationError(id.field, id.value, "is required")
		}
	}

	if _, err := s.ownership.GetOwned(ctx, ic.OwnerID, ic.PortfolioID); err != nil {
		return "", err
	}
	ok, err := s.ownership.AccountInPortfolio(ctx, ic.PortfolioID, ic.TradingAccountID)
	if err != nil {
		return "", fmt.Errorf("failed to check trading account: %w", err)
	}
	if !ok {
		return "", domain.NewNotFoundError("trading_account", ic.TradingAccountID)
	}

	currency, err := s.registry.LookupCurrency(ctx, ic.AssetID)
	if err != nil {
		if domain.IsNotFound(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to look up asset: %w", err)
	}
	return currency, nil
}

// enrich turns validated rows into ledger transactions. The fee is added to the amount
// of buy-class rows and subtracted from sell-class rows.
func (s *Service) enrich(ic Context, batchID string, rows []validRow) []domain.Transaction {
	now := s.now().UTC().Truncate(time.Second)
	txs := make([]domain.Transaction, 0, len(rows))

	for _, r := range rows {
		gross := r.Quantity.Mul(r.Price)
		total := gross.Sub(r.Fee)
		if r.Type.IsBuyClass() {
			total = gross.Add(r.Fee)
		}

		txs = append(txs, domain.Transaction{
			ID:               uuid.NewString(),
			PortfolioID:      ic.PortfolioID,
			TradingAccountID: ic.TradingAccountID,
			AssetID:          ic.AssetID,
			Type:             r.Type,
			Side:             r.Type.Side(),
			Status:           domain.StatusExecuted,
			Quantity:         r.Quantity,
			Price:            r.Price,
			TotalAmount:      total,
			Fees:             r.Fee,
			Currency:         r.Currency,
			Notes:            r.Notes,
			Tags:             r.Tags,
			ImportBatchID:    batchID,
			ExecutedAt:       r.Date,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return txs
}

func (s *Service) invalidateAsync(portfolioID string) {
	if s.invalidator == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Str("portfolio_id", portfolioID).Msg("Cache invalidation panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), invalidationTimeout)
		defer cancel()

		if err := s.invalidator.InvalidatePortfolio(ctx, portfolioID); err != nil {
			s.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Cache invalidation failed")
		}
	}()
}

func systemFailure(summary Summary, err error) *Result {
	message := "import failed, nothing was imported"
	if errors.Is(err, context.DeadlineExceeded) {
		message = "import timed out, nothing was imported"
	}
	return &Result{
		Success: false,
		Errors:  []RowError{{Row: 0, Field: SystemField, Message: message}},
		Summary: summary,
	}
}

func countRows(errs []RowError) int {
	rows := make(map[int]bool)
	for _, e := range errs {
		rows[e.Row] = true
	}
	return len(rows)
}
