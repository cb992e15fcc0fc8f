// Package cache holds the in-process portfolio position cache.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/domain"
)

const keyPrefix = "positions:"

// Stats is a point-in-time view of the cache
type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// PositionCache caches the active positions of each portfolio with a TTL.
// It serves the position service as its read cache and the ledger and import
// services as their invalidation hook.
//
// Each portfolio has a generation that advances on every invalidation. A reader takes
// the generation before loading from the database and stores its snapshot with
// SetIfGeneration, so a snapshot loaded before a write never outlives that write.
type PositionCache struct {
	store  *gocache.Cache
	hits   atomic.Uint64
	misses atomic.Uint64

	mu          sync.Mutex // orders generation changes against conditional stores
	seq         uint64
	generations map[string]uint64

	log zerolog.Logger
}

// NewPositionCache creates a cache whose entries expire after ttl
func NewPositionCache(ttl, cleanupInterval time.Duration, log zerolog.Logger) *PositionCache {
	return &PositionCache{
		store:       gocache.New(ttl, cleanupInterval),
		generations: make(map[string]uint64),
		log:         log.With().Str("component", "position_cache").Logger(),
	}
}

// Get returns a copy of the cached positions of a portfolio
func (c *PositionCache) Get(portfolioID string) ([]domain.Position, bool) {
	cached, found := c.store.Get(keyPrefix + portfolioID)
	if !found {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return clonePositions(cached.([]domain.Position)), true
}

// Generation returns the portfolio's current invalidation generation
func (c *PositionCache) Generation(portfolioID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[portfolioID]
}

// SetIfGeneration stores a copy of the positions with the default expiration, unless the
// portfolio was invalidated after generation was taken. It reports whether it stored.
func (c *PositionCache) SetIfGeneration(portfolioID string, generation uint64, positions []domain.Position) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[portfolioID] != generation {
		return false
	}
	c.store.Set(keyPrefix+portfolioID, clonePositions(positions), gocache.DefaultExpiration)
	return true
}

// Delete drops the cached entry of a portfolio and advances its generation
func (c *PositionCache) Delete(portfolioID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.generations[portfolioID] = c.seq
	c.store.Delete(keyPrefix + portfolioID)
}

// InvalidatePortfolio drops the cached entry after a ledger mutation
func (c *PositionCache) InvalidatePortfolio(ctx context.Context, portfolioID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Delete(portfolioID)
	c.log.Debug().Str("portfolio_id", portfolioID).Msg("Portfolio positions invalidated")
	return nil
}

// Stats returns entry and hit counts
func (c *PositionCache) Stats() Stats {
	return Stats{
		Entries: c.store.ItemCount(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

func clonePositions(positions []domain.Position) []domain.Position {
	out := make([]domain.Position, len(positions))
	copy(out, positions)
	return out
}
