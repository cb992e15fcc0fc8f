// Package reliability tracks derived-state staleness and runs database maintenance.
package reliability

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/domain"
)

// StalenessSnapshot is a point-in-time copy of the tracker counters
type StalenessSnapshot struct {
	Total       int64            `json:"total"`
	ByOperation map[string]int64 `json:"by_operation"`
	LastAt      *time.Time       `json:"last_at,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	LastKey     string           `json:"last_key,omitempty"`

	// StalePortfolios lists portfolios with a failure not yet repaired by a rebuild
	StalePortfolios []string `json:"stale_portfolios"`
}

// StalenessTracker counts position updates that failed after their ledger write committed.
// A non-zero total means some positions may disagree with the ledger until rebuilt.
type StalenessTracker struct {
	mu          sync.RWMutex
	total       int64
	byOperation map[string]int64
	last        *domain.DerivedStateError
	lastAt      time.Time
	stale       map[string]int64 // failures per portfolio since its last repair
	now         func() time.Time
}

// NewStalenessTracker creates an empty tracker
func NewStalenessTracker() *StalenessTracker {
	return &StalenessTracker{
		byOperation: make(map[string]int64),
		stale:       make(map[string]int64),
		now:         time.Now,
	}
}

// RecordDerivedStateError counts one swallowed position failure
func (t *StalenessTracker) RecordDerivedStateError(err *domain.DerivedStateError) {
	if err == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	t.byOperation[err.Operation]++
	t.last = err
	t.lastAt = t.now().UTC()
	t.stale[err.Key.PortfolioID]++
}

// StalePortfolios returns the portfolios awaiting a rebuild, sorted
func (t *StalenessTracker) StalePortfolios() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stalePortfoliosLocked()
}

// StaleFailures returns how many failures the portfolio has seen since its last repair
func (t *StalenessTracker) StaleFailures(portfolioID string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stale[portfolioID]
}

// MarkRepaired clears a portfolio after its positions were rebuilt from the ledger, provided
// no failure was recorded since StaleFailures returned failures. It reports whether it cleared.
// The counters are cumulative and are not reset.
func (t *StalenessTracker) MarkRepaired(portfolioID string, failures int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stale[portfolioID] != failures {
		return false
	}
	delete(t.stale, portfolioID)
	return true
}

func (t *StalenessTracker) stalePortfoliosLocked() []string {
	ids := make([]string, 0, len(t.stale))
	for id := range t.stale {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the counters
func (t *StalenessTracker) Snapshot() StalenessSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := StalenessSnapshot{
		Total:           t.total,
		ByOperation:     make(map[string]int64, len(t.byOperation)),
		StalePortfolios: t.stalePortfoliosLocked(),
	}
	for op, n := range t.byOperation {
		snap.ByOperation[op] = n
	}
	if t.last != nil {
		at := t.lastAt
		snap.LastAt = &at
		snap.LastError = t.last.Error()
		snap.LastKey = t.last.Key.String()
	}
	return snap
}

// LogDerivedStateError emits the structured record of a swallowed position failure
func LogDerivedStateError(log zerolog.Logger, err *domain.DerivedStateError) {
	log.Error().
		Err(err.Err).
		Bool("derived_state_error", true).
		Str("op", err.Operation).
		Str("portfolio_id", err.Key.PortfolioID).
		Str("trading_account_id", err.Key.TradingAccountID).
		Str("asset_id", err.Key.AssetID).
		Str("transaction_id", err.TransactionID).
		Msg("Position update failed after ledger write, position is stale")
}
