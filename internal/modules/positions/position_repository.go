package positions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/holdings/internal/domain"
)

// positionsColumns is the list of columns for the positions table
// Column order must match scanPosition()
const positionsColumns = `id, portfolio_id, trading_account_id, asset_id, quantity, average_cost,
	total_cost, currency, first_purchase_date, last_transaction_date, is_active, created_at, updated_at`

// PositionRepository handles position database operations (portfolio.db)
type PositionRepository struct {
	portfolioDB *sql.DB
	log         zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(portfolioDB *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "position").Logger(),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// GetActive returns the active position for a key, or nil when none exists
func (r *PositionRepository) GetActive(ctx context.Context, key domain.PositionKey) (*domain.Position, error) {
	query := "SELECT " + positionsColumns + ` FROM positions
		WHERE portfolio_id = ? AND trading_account_id = ? AND asset_id = ? AND is_active = 1`

	pos, err := r.scanPosition(r.portfolioDB.QueryRowContext(ctx, query,
		key.PortfolioID, key.TradingAccountID, key.AssetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active position %s: %w", key, err)
	}
	return pos, nil
}

// GetLatest returns the active position for a key, falling back to the most
// recently updated inactive one. Returns nil when the key has never had a position.
func (r *PositionRepository) GetLatest(ctx context.Context, key domain.PositionKey) (*domain.Position, error) {
	query := "SELECT " + positionsColumns + ` FROM positions
		WHERE portfolio_id = ? AND trading_account_id = ? AND asset_id = ?
		ORDER BY is_active DESC, updated_at DESC, rowid DESC
		LIMIT 1`

	pos, err := r.scanPosition(r.portfolioDB.QueryRowContext(ctx, query,
		key.PortfolioID, key.TradingAccountID, key.AssetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest position %s: %w", key, err)
	}
	return pos, nil
}

// GetByPortfolio returns the positions of a portfolio ordered by account and asset
func (r *PositionRepository) GetByPortfolio(ctx context.Context, portfolioID string, includeInactive bool) ([]domain.Position, error) {
	query := "SELECT " + positionsColumns + " FROM positions WHERE portfolio_id = ?"
	if !includeInactive {
		query += " AND is_active = 1"
	}
	query += " ORDER BY trading_account_id, asset_id, updated_at"

	rows, err := r.portfolioDB.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		pos, err := r.scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// GetKeys returns every key that has at least one position record in the portfolio
func (r *PositionRepository) GetKeys(ctx context.Context, portfolioID string) ([]domain.PositionKey, error) {
	rows, err := r.portfolioDB.QueryContext(ctx, `SELECT DISTINCT trading_account_id, asset_id
		FROM positions WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query position keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.PositionKey
	for rows.Next() {
		key := domain.PositionKey{PortfolioID: portfolioID}
		if err := rows.Scan(&key.TradingAccountID, &key.AssetID); err != nil {
			return nil, fmt.Errorf("failed to scan position key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Insert stores a new position record
func (r *PositionRepository) Insert(ctx context.Context, pos domain.Position) error {
	query := `INSERT INTO positions (` + positionsColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.portfolioDB.ExecContext(ctx, query,
		pos.ID,
		pos.PortfolioID,
		pos.TradingAccountID,
		pos.AssetID,
		pos.Quantity.String(),
		pos.AverageCost.String(),
		pos.TotalCost.String(),
		pos.Currency,
		nullUnix(pos.FirstPurchaseDate),
		pos.LastTransactionDate.Unix(),
		boolToInt(pos.IsActive),
		pos.CreatedAt.Unix(),
		pos.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}

	r.log.Debug().
		Str("position_id", pos.ID).
		Str("key", pos.Key().String()).
		Bool("is_active", pos.IsActive).
		Msg("Position created")
	return nil
}

// Update overwrites the mutable fields of an existing position record
func (r *PositionRepository) Update(ctx context.Context, pos domain.Position) error {
	query := `UPDATE positions SET
			quantity = ?,
			average_cost = ?,
			total_cost = ?,
			first_purchase_date = ?,
			last_transaction_date = ?,
			is_active = ?,
			updated_at = ?
		WHERE id = ?`

	result, err := r.portfolioDB.ExecContext(ctx, query,
		pos.Quantity.String(),
		pos.AverageCost.String(),
		pos.TotalCost.String(),
		nullUnix(pos.FirstPurchaseDate),
		pos.LastTransactionDate.Unix(),
		boolToInt(pos.IsActive),
		pos.UpdatedAt.Unix(),
		pos.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update position %s: %w", pos.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFoundError("position", pos.ID)
	}

	r.log.Debug().
		Str("position_id", pos.ID).
		Str("quantity", pos.Quantity.String()).
		Bool("is_active", pos.IsActive).
		Msg("Position updated")
	return nil
}

// scanPosition scans a database row into a Position struct
func (r *PositionRepository) scanPosition(row rowScanner) (*domain.Position, error) {
	var pos domain.Position
	var quantity, averageCost, totalCost string
	var firstPurchase sql.NullInt64
	var lastTransaction, createdAt, updatedAt int64
	var isActive int

	err := row.Scan(
		&pos.ID,
		&pos.PortfolioID,
		&pos.TradingAccountID,
		&pos.AssetID,
		&quantity,
		&averageCost,
		&totalCost,
		&pos.Currency,
		&firstPurchase,
		&lastTransaction,
		&isActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if pos.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	if pos.AverageCost, err = decimal.NewFromString(averageCost); err != nil {
		return nil, fmt.Errorf("invalid average_cost %q: %w", averageCost, err)
	}
	if pos.TotalCost, err = decimal.NewFromString(totalCost); err != nil {
		return nil, fmt.Errorf("invalid total_cost %q: %w", totalCost, err)
	}

	if firstPurchase.Valid {
		t := fromUnix(firstPurchase.Int64)
		pos.FirstPurchaseDate = &t
	}
	pos.LastTransactionDate = fromUnix(lastTransaction)
	pos.CreatedAt = fromUnix(createdAt)
	pos.UpdatedAt = fromUnix(updatedAt)
	pos.IsActive = isActive == 1

	return &pos, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
