package domain

import "context"

// AssetRegistry is the authority for asset metadata.
// The position store asks it for the currency of a position when the position is first created,
// so the stored currency never comes from the caller.
type AssetRegistry interface {
	// LookupCurrency returns the trading currency of the asset, or a NotFoundError
	LookupCurrency(ctx context.Context, assetID string) (string, error)

	// Exists reports whether the asset is registered
	Exists(ctx context.Context, assetID string) (bool, error)
}

// CacheInvalidator is the fire-and-forget hook fired after successful ledger mutations.
// Callers log its errors and never let them fail the primary operation.
type CacheInvalidator interface {
	InvalidatePortfolio(ctx context.Context, portfolioID string) error
}

// StalenessRecorder receives every swallowed DerivedStateError so derived-state
// staleness stays observable.
type StalenessRecorder interface {
	RecordDerivedStateError(err *DerivedStateError)
}
