// Package portfolios stores portfolios and their trading accounts and answers ownership questions.
package portfolios

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/domain"
)

// Repository handles portfolio and trading account database operations (ledger.db)
type Repository struct {
	ledgerDB *sql.DB
	now      func() time.Time
	log      zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		now:      time.Now,
		log:      log.With().Str("repo", "portfolio").Logger(),
	}
}

// CreatePortfolio stores a new portfolio for the owner
func (r *Repository) CreatePortfolio(ctx context.Context, ownerID, name string) (*domain.Portfolio, error) {
	ownerID = strings.TrimSpace(ownerID)
	name = strings.TrimSpace(name)
	if ownerID == "" {
		return nil, domain.NewValidationError("owner_id", ownerID, "is required")
	}
	if name == "" {
		return nil, domain.NewValidationError("name", name, "is required")
	}

	p := domain.Portfolio{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: r.now().UTC().Truncate(time.Second),
	}

	_, err := r.ledgerDB.ExecContext(ctx,
		"INSERT INTO portfolios (id, owner_id, name, created_at) VALUES (?, ?, ?, ?)",
		p.ID, p.OwnerID, p.Name, p.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	r.log.Info().Str("portfolio_id", p.ID).Str("owner_id", ownerID).Msg("Portfolio created")
	return &p, nil
}

// CreateTradingAccount stores a new account under a portfolio the owner controls
func (r *Repository) CreateTradingAccount(ctx context.Context, ownerID, portfolioID, name string) (*domain.TradingAccount, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name", name, "is required")
	}
	if _, err := r.GetOwned(ctx, ownerID, portfolioID); err != nil {
		return nil, err
	}

	a := domain.TradingAccount{
		ID:          uuid.NewString(),
		PortfolioID: portfolioID,
		Name:        name,
		CreatedAt:   r.now().UTC().Truncate(time.Second),
	}

	_, err := r.ledgerDB.ExecContext(ctx,
		"INSERT INTO trading_accounts (id, portfolio_id, name, created_at) VALUES (?, ?, ?, ?)",
		a.ID, a.PortfolioID, a.Name, a.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create trading account: %w", err)
	}

	r.log.Info().Str("account_id", a.ID).Str("portfolio_id", portfolioID).Msg("Trading account created")
	return &a, nil
}

// GetOwned returns the portfolio when it exists and belongs to ownerID.
// Missing and foreign portfolios both yield a NotFoundError.
func (r *Repository) GetOwned(ctx context.Context, ownerID, portfolioID string) (*domain.Portfolio, error) {
	var p domain.Portfolio
	var createdAt int64

	err := r.ledgerDB.QueryRowContext(ctx,
		"SELECT id, owner_id, name, created_at FROM portfolios WHERE id = ? AND owner_id = ?",
		portfolioID, ownerID,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("portfolio", portfolioID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &p, nil
}

// ListByOwner returns the owner's portfolios ordered by creation
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Portfolio, error) {
	rows, err := r.ledgerDB.QueryContext(ctx,
		"SELECT id, owner_id, name, created_at FROM portfolios WHERE owner_id = ? ORDER BY created_at, id",
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := make([]domain.Portfolio, 0)
	for rows.Next() {
		var p domain.Portfolio
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// ListAccounts returns the trading accounts of a portfolio
func (r *Repository) ListAccounts(ctx context.Context, portfolioID string) ([]domain.TradingAccount, error) {
	rows, err := r.ledgerDB.QueryContext(ctx,
		"SELECT id, portfolio_id, name, created_at FROM trading_accounts WHERE portfolio_id = ? ORDER BY created_at, id",
		portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trading accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.TradingAccount, 0)
	for rows.Next() {
		var a domain.TradingAccount
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.PortfolioID, &a.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan trading account: %w", err)
		}
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AccountInPortfolio reports whether the trading account belongs to the portfolio
func (r *Repository) AccountInPortfolio(ctx context.Context, portfolioID, accountID string) (bool, error) {
	var exists int
	err := r.ledgerDB.QueryRowContext(ctx,
		"SELECT 1 FROM trading_accounts WHERE id = ? AND portfolio_id = ?",
		accountID, portfolioID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check trading account: %w", err)
	}
	return true, nil
}
