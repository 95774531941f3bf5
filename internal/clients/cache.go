package clients

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"casanexus/internal/postal"
)

// CachedLookup keeps found addresses in a ristretto cache. Misses and
// failures are not cached.
type CachedLookup struct {
	next  postal.Lookup
	cache *ristretto.Cache[string, postal.Address]
	ttl   time.Duration
}

// NewCachedLookup creates a cache bounded by maxCost bytes of address text.
func NewCachedLookup(next postal.Lookup, maxCost int64, ttl time.Duration) (*CachedLookup, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, postal.Address]{
		NumCounters: max(maxCost/100*10, 1000), // ~10x expected items
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedLookup{next: next, cache: cache, ttl: ttl}, nil
}

func (c *CachedLookup) Lookup(ctx context.Context, code string) (*postal.Address, error) {
	key, ok := postal.Normalize(code)
	if !ok {
		return nil, postal.ErrNotFound
	}

	if addr, found := c.cache.Get(key); found {
		return &addr, nil
	}

	addr, err := c.next.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	cost := int64(len(addr.Street) + len(addr.District) + len(addr.City) + len(addr.State) + len(addr.PostalCode))
	c.cache.SetWithTTL(key, *addr, cost, c.ttl)
	c.cache.Wait()
	return addr, nil
}

// Close releases the cache goroutines.
func (c *CachedLookup) Close() {
	c.cache.Close()
}
