package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/keylock"
	"github.com/aristath/holdings/internal/reliability"
)

const invalidationTimeout = 5 * time.Second

// TransactionStore is the persistence the gateway needs
type TransactionStore interface {
	Insert(ctx context.Context, tx domain.Transaction) error
	GetOwned(ctx context.Context, ownerID, id string) (*domain.Transaction, error)
	Exists(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, tx domain.Transaction) error
	DeleteOwned(ctx context.Context, ownerID, id string) (int64, error)
	List(ctx context.Context, ownerID string, f Filter) ([]domain.Transaction, int, error)
}

// OwnershipChecker answers whether the caller may touch a portfolio and account
type OwnershipChecker interface {
	GetOwned(ctx context.Context, ownerID, portfolioID string) (*domain.Portfolio, error)
	AccountInPortfolio(ctx context.Context, portfolioID, accountID string) (bool, error)
}

// PositionSyncer keeps positions in step with committed ledger mutations
type PositionSyncer interface {
	UpsertFromTransaction(ctx context.Context, tx domain.Transaction) (*domain.Position, error)
	AdjustForDeletedTransaction(ctx context.Context, tx domain.Transaction) (*domain.Position, error)
	ReplaceTransaction(ctx context.Context, old, updated domain.Transaction) (*domain.Position, error)
}

// Service is the transaction ledger gateway. Ledger errors always surface to the caller;
// a position failure after a committed write is logged, counted and reported in the
// MutationResult without failing the operation.
//
// Update and Delete of one transaction id are serialized from the read of the stored
// row through the position change, so each stored version's effect is reversed once.
type Service struct {
	store       TransactionStore
	ownership   OwnershipChecker
	registry    domain.AssetRegistry
	positions   PositionSyncer
	invalidator domain.CacheInvalidator  // optional
	staleness   domain.StalenessRecorder // optional
	currencies  map[string]bool
	txLocks     *keylock.Locker[string]
	inflight    sync.WaitGroup
	now         func() time.Time
	log         zerolog.Logger
}

// NewService creates a new ledger service
func NewService(
	store TransactionStore,
	ownership OwnershipChecker,
	registry domain.AssetRegistry,
	positions PositionSyncer,
	invalidator domain.CacheInvalidator,
	staleness domain.StalenessRecorder,
	supportedCurrencies []string,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:       store,
		ownership:   ownership,
		registry:    registry,
		positions:   positions,
		invalidator: invalidator,
		staleness:   staleness,
		currencies:  domain.CurrencySet(supportedCurrencies),
		txLocks:     keylock.New[string](),
		now:         time.Now,
		log:         log.With().Str("service", "ledger").Logger(),
	}
}

// Create validates and stores a transaction, then applies it to its position
func (s *Service) Create(ctx context.Context, ownerID string, req CreateRequest) (*MutationResult, error) {
	tx, err := s.buildTransaction(ctx, ownerID, req)
	if err != nil {
		return nil, err
	}

	if err := s.store.Insert(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.log.Info().
		Str("transaction_id", tx.ID).
		Str("portfolio_id", tx.PortfolioID).
		Str("type", string(tx.Type)).
		Str("quantity", tx.Quantity.String()).
		Msg("Transaction created")

	result := &MutationResult{Transaction: tx}
	result.Position, result.PositionErr = s.syncPosition("create", tx, func() (*domain.Position, error) {
		return s.positions.UpsertFromTransaction(ctx, tx)
	})

	s.invalidateAsync(tx.PortfolioID)
	return result, nil
}

// GetByID returns a transaction the owner may see, or a NotFoundError
func (s *Service) GetByID(ctx context.Context, ownerID, id string) (*domain.Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewValidationError("id", id, "is required")
	}
	return s.store.GetOwned(ctx, ownerID, id)
}

// List returns one page of the owner's transactions
func (s *Service) List(ctx context.Context, ownerID string, f Filter) (*Page, error) {
	f, err := NormalizeFilter(f)
	if err != nil {
		return nil, err
	}

	items, total, err := s.store.List(ctx, ownerID, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return &Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Update applies a patch to a transaction and moves its position from the old effect to the new one
func (s *Service) Update(ctx context.Context, ownerID, id string, patch Patch) (*MutationResult, error) {
	unlock := s.txLocks.Lock(id)
	defer unlock()

	existing, err := s.store.GetOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.applyPatch(*existing, patch)
	if err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.now().UTC().Truncate(time.Second)

	if err := s.store.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	s.log.Info().Str("transaction_id", id).Msg("Transaction updated")

	result := &MutationResult{Transaction: updated}
	if effectChanged(*existing, updated) {
		result.Position, result.PositionErr = s.syncPosition("update", updated, func() (*domain.Position, error) {
			return s.positions.ReplaceTransaction(ctx, *existing, updated)
		})
	}

	s.invalidateAsync(updated.PortfolioID)
	return result, nil
}

// Delete removes a transaction and reverses its effect on the position.
// A row still visible after the delete reports a ConsistencyError and leaves the position untouched.
func (s *Service) Delete(ctx context.Context, ownerID, id string) (*MutationResult, error) {
	unlock := s.txLocks.Lock(id)
	defer unlock()

	existing, err := s.store.GetOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	deleted, err := s.store.DeleteOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	stillThere, err := s.store.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to verify delete: %w", err)
	}
	if stillThere {
		s.log.Error().
			Str("transaction_id", id).
			Int64("rows_affected", deleted).
			Msg("Transaction still present after delete")
		return nil, &domain.ConsistencyError{
			Operation: "delete",
			ID:        id,
			Message:   "transaction still present after delete",
		}
	}
	if deleted == 0 {
		// Removed concurrently by another request
		return nil, domain.NewNotFoundError("transaction", id)
	}

	s.log.Info().Str("transaction_id", id).Msg("Transaction deleted")

	result := &MutationResult{Transaction: *existing}
	result.Position, result.PositionErr = s.syncPosition("delete", *existing, func() (*domain.Position, error) {
		return s.positions.AdjustForDeletedTransaction(ctx, *existing)
	})

	s.invalidateAsync(existing.PortfolioID)
	return result, nil
}

// Wait blocks until every pending cache invalidation has finished
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) buildTransaction(ctx context.Context, ownerID string, req CreateRequest) (domain.Transaction, error) {
	var tx domain.Transaction

	ids := []struct{ field, value string }{
		{"portfolio_id", req.PortfolioID},
		{"trading_account_id", req.TradingAccountID},
		{"asset_id", req.AssetID},
	}
	for _, id := range ids {
		if strings.TrimSpace(id.value) == "" {
			return tx, domain.NewValidationError(id.field, id.value, "is required")
		}
	}

	typ, err := domain.ParseTransactionType(req.Type)
	if err != nil {
		return tx, domain.NewValidationError("type", req.Type, err.Error())
	}
	if err := validateAmount("quantity", req.Quantity, true); err != nil {
		return tx, err
	}
	if err := validateAmount("price", req.Price, true); err != nil {
		return tx, err
	}
	fees := decimal.Zero
	if req.Fees != nil {
		if err := validateAmount("fees", *req.Fees, false); err != nil {
			return tx, err
		}
		fees = *req.Fees
	}

	status := domain.StatusExecuted
	if req.Status != "" {
		if status, err = domain.ParseTransactionStatus(req.Status); err != nil {
			return tx, domain.NewValidationError("status", req.Status, err.Error())
		}
	}

	tags, err := domain.NormalizeTags(req.Tags)
	if err != nil {
		return tx, err
	}

	if err := s.checkOwnership(ctx, ownerID, req.PortfolioID, req.TradingAccountID); err != nil {
		return tx, err
	}
	exists, err := s.registry.Exists(ctx, req.AssetID)
	if err != nil {
		return tx, fmt.Errorf("failed to check asset: %w", err)
	}
	if !exists {
		return tx, domain.NewNotFoundError("asset", req.AssetID)
	}

	currency := req.Currency
	if strings.TrimSpace(currency) == "" {
		if currency, err = s.registry.LookupCurrency(ctx, req.AssetID); err != nil {
			return tx, fmt.Errorf("failed to look up asset currency: %w", err)
		}
	}
	if currency, err = domain.NormalizeCurrency(currency, s.currencies); err != nil {
		return tx, err
	}

	now := s.now().UTC().Truncate(time.Second)
	executedAt := now
	if req.ExecutedAt != nil {
		executedAt = req.ExecutedAt.UTC().Truncate(time.Second)
	}

	tx = domain.Transaction{
		ID:               uuid.NewString(),
		PortfolioID:      req.PortfolioID,
		TradingAccountID: req.TradingAccountID,
		AssetID:          req.AssetID,
		Type:             typ,
		Side:             typ.Side(),
		Status:           status,
		Quantity:         req.Quantity,
		Price:            req.Price,
		TotalAmount:      req.Quantity.Abs().Mul(req.Price),
		Fees:             fees,
		Currency:         currency,
		ExecutedAt:       executedAt,
		SettledAt:        truncateOptional(req.SettledAt),
		Notes:            strings.TrimSpace(req.Notes),
		Tags:             tags,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return tx, nil
}

func (s *Service) checkOwnership(ctx context.Context, ownerID, portfolioID, accountID string) error {
	if _, err := s.ownership.GetOwned(ctx, ownerID, portfolioID); err != nil {
		return err
	}
	ok, err := s.ownership.AccountInPortfolio(ctx, portfolioID, accountID)
	if err != nil {
		return fmt.Errorf("failed to check trading account: %w", err)
	}
	if !ok {
		return domain.NewNotFoundError("trading_account", accountID)
	}
	return nil
}

func (s *Service) applyPatch(tx domain.Transaction, p Patch) (domain.Transaction, error) {
	if p.IsEmpty() {
		return tx, domain.NewValidationError("", nil, "patch changes nothing")
	}

	if p.Type != nil {
		typ, err := domain.ParseTransactionType(*p.Type)
		if err != nil {
			return tx, domain.NewValidationError("type", *p.Type, err.Error())
		}
		tx.Type = typ
		tx.Side = typ.Side()
	}
	if p.Quantity != nil {
		if err := validateAmount("quantity", *p.Quantity, true); err != nil {
			return tx, err
		}
		tx.Quantity = *p.Quantity
	}
	if p.Price != nil {
		if err := validateAmount("price", *p.Price, true); err != nil {
			return tx, err
		}
		tx.Price = *p.Price
	}
	if p.Quantity != nil || p.Price != nil {
		tx.TotalAmount = tx.Quantity.Abs().Mul(tx.Price)
	}
	if p.Fees != nil {
		if err := validateAmount("fees", *p.Fees, false); err != nil {
			return tx, err
		}
		tx.Fees = *p.Fees
	}
	if p.Currency != nil {
		currency, err := domain.NormalizeCurrency(*p.Currency, s.currencies)
		if err != nil {
			return tx, err
		}
		tx.Currency = currency
	}
	if p.Status != nil {
		status, err := domain.ParseTransactionStatus(*p.Status)
		if err != nil {
			return tx, domain.NewValidationError("status", *p.Status, err.Error())
		}
		tx.Status = status
	}
	if p.ExecutedAt != nil {
		tx.ExecutedAt = p.ExecutedAt.UTC().Truncate(time.Second)
	}
	if p.SettledAt != nil {
		tx.SettledAt = truncateOptional(p.SettledAt)
	}
	if p.Notes != nil {
		tx.Notes = strings.TrimSpace(*p.Notes)
	}
	if p.Tags != nil {
		tags, err := domain.NormalizeTags(*p.Tags)
		if err != nil {
			return tx, err
		}
		tx.Tags = tags
	}
	return tx, nil
}

// syncPosition runs a position update after a committed ledger write. A failure is
// converted to a DerivedStateError, logged and counted instead of being returned.
func (s *Service) syncPosition(op string, tx domain.Transaction, fn func() (*domain.Position, error)) (*domain.Position, *domain.DerivedStateError) {
	pos, err := fn()
	if err == nil {
		return pos, nil
	}

	derived := &domain.DerivedStateError{
		Operation:     op,
		Key:           tx.Key(),
		TransactionID: tx.ID,
		Err:           err,
	}
	reliability.LogDerivedStateError(s.log, derived)
	if s.staleness != nil {
		s.staleness.RecordDerivedStateError(derived)
	}
	return nil, derived
}

// invalidateAsync fires the cache invalidation hook without waiting for it.
// Failures are logged and never reach the caller.
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

// NormalizeFilter applies paging defaults and rejects out-of-range values
func NormalizeFilter(f Filter) (Filter, error) {
	if f.Page == 0 {
		f.Page = DefaultPage
	}
	if f.Page < 1 {
		return f, domain.NewValidationError("page", f.Page, "must be at least 1")
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit < 1 || f.Limit > MaxLimit {
		return f, domain.NewValidationError("limit", f.Limit, fmt.Sprintf("must be between 1 and %d", MaxLimit))
	}
	if f.SortBy == "" {
		f.SortBy = SortExecutedAt
	}
	if _, ok := sortColumns[f.SortBy]; !ok {
		return f, domain.NewValidationError("sort_by", f.SortBy, "must be executed_at, total_amount or created_at")
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return f, domain.NewValidationError("from", f.From, "must not be after to")
	}
	if f.MinAmount != nil && f.MaxAmount != nil && f.MinAmount.GreaterThan(*f.MaxAmount) {
		return f, domain.NewValidationError("min_amount", f.MinAmount.String(), "must not exceed max_amount")
	}
	return f, nil
}

func validateAmount(field string, d decimal.Decimal, positive bool) error {
	if positive && !d.IsPositive() {
		return domain.NewValidationError(field, d.String(), "must be greater than 0")
	}
	if !positive && d.IsNegative() {
		return domain.NewValidationError(field, d.String(), "must not be negative")
	}
	if !domain.HasValidScale(d) {
		return domain.NewValidationError(field, d.String(),
			fmt.Sprintf("must have at most %d decimal places", domain.MaxFractionDigits))
	}
	return nil
}

func effectChanged(old, updated domain.Transaction) bool {
	return old.Type != updated.Type ||
		!old.Quantity.Equal(updated.Quantity) ||
		!old.Price.Equal(updated.Price) ||
		!old.ExecutedAt.Equal(updated.ExecutedAt)
}

func truncateOptional(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Second)
	return &v
}
