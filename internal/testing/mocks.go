package testing

import (
	"context"
	"sync"

	"github.com/aristath/holdings/internal/domain"
)

// MockAssetRegistry is an in-memory implementation of domain.AssetRegistry
type MockAssetRegistry struct {
	mu         sync.RWMutex
	currencies map[string]string
	err        error
	lookups    int
}

// NewMockAssetRegistry creates a registry that knows the fixture assets
func NewMockAssetRegistry() *MockAssetRegistry {
	m := &MockAssetRegistry{currencies: make(map[string]string)}
	for _, a := range NewAssetFixtures() {
		m.currencies[a.ID] = a.Currency
	}
	return m
}

// SetCurrency registers or overrides an asset currency
func (m *MockAssetRegistry) SetCurrency(assetID, currency string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currencies[assetID] = currency
}

// SetError sets the error to return from every call
func (m *MockAssetRegistry) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Lookups returns how many currency lookups were made
func (m *MockAssetRegistry) Lookups() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookups
}

// LookupCurrency returns the registered currency or a NotFoundError
func (m *MockAssetRegistry) LookupCurrency(_ context.Context, assetID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return "", m.err
	}
	currency, ok := m.currencies[assetID]
	if !ok {
		return "", domain.NewNotFoundError("asset", assetID)
	}
	return currency, nil
}

// Exists reports whether the asset is registered
func (m *MockAssetRegistry) Exists(_ context.Context, assetID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.currencies[assetID]
	return ok, nil
}

// MockCacheInvalidator records invalidated portfolios
type MockCacheInvalidator struct {
	mu          sync.Mutex
	invalidated []string
	err         error
}

// NewMockCacheInvalidator creates a new invalidator mock
func NewMockCacheInvalidator() *MockCacheInvalidator {
	return &MockCacheInvalidator{}
}

// SetError makes every invalidation fail after being recorded
func (m *MockCacheInvalidator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// InvalidatePortfolio records the call
func (m *MockCacheInvalidator) InvalidatePortfolio(_ context.Context, portfolioID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, portfolioID)
	return m.err
}

// Invalidated returns a copy of the recorded portfolio ids
func (m *MockCacheInvalidator) Invalidated() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.invalidated))
	copy(out, m.invalidated)
	return out
}

// MockStalenessRecorder collects derived-state errors
type MockStalenessRecorder struct {
	mu     sync.Mutex
	errors []*domain.DerivedStateError
}

// RecordDerivedStateError stores the error
func (m *MockStalenessRecorder) RecordDerivedStateError(err *domain.DerivedStateError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}

// Errors returns a copy of the recorded errors
func (m *MockStalenessRecorder) Errors() []*domain.DerivedStateError {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.DerivedStateError, len(m.errors))
	copy(out, m.errors)
	return out
}
