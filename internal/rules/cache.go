// Package rules caches per-symbol trading rules fetched from the venue's
// exchange-info endpoint.
package rules

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"trading-engine/pkg/exchanges/common"
)

// DefaultTTL is how long a fetched rule set stays fresh. Exchanges change
// filters rarely; a day keeps us off their rate budget.
const DefaultTTL = 24 * time.Hour

// Fetcher is the slice of a gateway the cache needs.
type Fetcher interface {
	ExchangeInfo(ctx context.Context) (*common.ExchangeRules, error)
}

// Cache holds a TTL'd copy of the exchange rules plus an emergency copy
// that survives refresh failures. Concurrent callers during a refresh
// share one in-flight fetch.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	logger  *zap.Logger

	group singleflight.Group

	mu        sync.RWMutex
	live      *common.ExchangeRules
	emergency *common.ExchangeRules
}

// New creates a Cache. ttl <= 0 uses DefaultTTL.
func New(fetcher Fetcher, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{fetcher: fetcher, ttl: ttl, logger: logger}
}

// Get returns the current rules, refreshing on miss or expiry. When the
// refresh fails and an emergency copy exists, that copy is served with a
// degraded-mode warning; with no fallback the failure propagates.
func (c *Cache) Get(ctx context.Context) (*common.ExchangeRules, error) {
	c.mu.RLock()
	live := c.live
	c.mu.RUnlock()

	if live != nil && time.Since(live.FetchedAt) < c.ttl {
		return live, nil
	}

	v, err, _ := c.group.Do("exchange-info", func() (any, error) {
		// Re-check under the flight: another caller may have refreshed
		// while we waited on the group.
		c.mu.RLock()
		cur := c.live
		c.mu.RUnlock()
		if cur != nil && time.Since(cur.FetchedAt) < c.ttl {
			return cur, nil
		}

		fetched, err := c.fetcher.ExchangeInfo(ctx)
		if err != nil {
			return nil, err
		}
		if fetched.FetchedAt.IsZero() {
			fetched.FetchedAt = time.Now()
		}

		c.mu.Lock()
		c.live = fetched
		c.emergency = fetched
		c.mu.Unlock()
		return fetched, nil
	})
	if err == nil {
		return v.(*common.ExchangeRules), nil
	}

	c.mu.RLock()
	emergency := c.emergency
	c.mu.RUnlock()
	if emergency != nil {
		c.logger.Warn("exchange rules refresh failed, serving emergency copy",
			zap.Error(err), zap.Time("fetched_at", emergency.FetchedAt))
		return emergency, nil
	}
	return nil, err
}

// SymbolRules returns the rules for one symbol, refreshing as needed.
func (c *Cache) SymbolRules(ctx context.Context, symbol string) (common.SymbolRules, bool, error) {
	all, err := c.Get(ctx)
	if err != nil {
		return common.SymbolRules{}, false, err
	}
	r, ok := all.Rules(symbol)
	return r, ok, nil
}
