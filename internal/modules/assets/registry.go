// Package assets is the asset registry: the authority for instrument metadata and currency.
package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/domain"
)

// Registry handles asset database operations (ledger.db) and implements domain.AssetRegistry
type Registry struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewRegistry creates a new asset registry
func NewRegistry(ledgerDB *sql.DB, log zerolog.Logger) *Registry {
	return &Registry{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "asset").Logger(),
	}
}

// Create registers a new asset. Symbol and currency are upper-cased.
func (r *Registry) Create(ctx context.Context, asset domain.Asset) (*domain.Asset, error) {
	asset.Symbol = strings.ToUpper(strings.TrimSpace(asset.Symbol))
	asset.Name = strings.TrimSpace(asset.Name)

	if asset.Symbol == "" {
		return nil, domain.NewValidationError("symbol", asset.Symbol, "is required")
	}
	currency, err := domain.NormalizeCurrency(asset.Currency, nil)
	if err != nil {
		return nil, err
	}
	asset.Currency = currency
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}

	_, err = r.ledgerDB.ExecContext(ctx,
		"INSERT INTO assets (id, symbol, name, currency) VALUES (?, ?, ?, ?)",
		asset.ID, asset.Symbol, asset.Name, asset.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}

	r.log.Info().Str("asset_id", asset.ID).Str("symbol", asset.Symbol).Msg("Asset registered")
	return &asset, nil
}

// Get returns the asset or a NotFoundError
func (r *Registry) Get(ctx context.Context, assetID string) (*domain.Asset, error) {
	var a domain.Asset
	err := r.ledgerDB.QueryRowContext(ctx,
		"SELECT id, symbol, name, currency FROM assets WHERE id = ?", assetID,
	).Scan(&a.ID, &a.Symbol, &a.Name, &a.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("asset", assetID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &a, nil
}

// List returns every registered asset ordered by symbol
func (r *Registry) List(ctx context.Context) ([]domain.Asset, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, "SELECT id, symbol, name, currency FROM assets ORDER BY symbol, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	assets := make([]domain.Asset, 0)
	for rows.Next() {
		var a domain.Asset
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &a.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// LookupCurrency returns the asset's trading currency
func (r *Registry) LookupCurrency(ctx context.Context, assetID string) (string, error) {
	a, err := r.Get(ctx, assetID)
	if err != nil {
		return "", err
	}
	return a.Currency, nil
}

// Exists reports whether the asset is registered
func (r *Registry) Exists(ctx context.Context, assetID string) (bool, error) {
	var exists int
	err := r.ledgerDB.QueryRowContext(ctx, "SELECT 1 FROM assets WHERE id = ?", assetID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check asset: %w", err)
	}
	return true, nil
}
