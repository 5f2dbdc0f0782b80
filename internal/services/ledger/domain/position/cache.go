package position

import "sync"

// CacheKey identifies a portfolio's transaction set. A new transaction changes
// the highest position or the count and an edit bumps the revision, so stale
// entries are never returned.
type CacheKey struct {
	PortfolioID string
	MaxPosition uint64
	Count       int
	// Revision is the sum of the transaction stream versions.
	Revision uint64
}

// Cache keeps recently built ledgers. The zero value is not usable; call NewCache.
type Cache struct {
	mu      sync.Mutex
	limit   int
	entries map[CacheKey]Ledger
	order   []CacheKey
}

// NewCache returns a cache holding at most limit ledgers.
func NewCache(limit int) *Cache {
	if limit <= 0 {
		limit = 64
	}
	return &Cache{limit: limit, entries: make(map[CacheKey]Ledger)}
}

// Get returns the ledger stored for key.
func (c *Cache) Get(key CacheKey) (Ledger, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ledger, ok := c.entries[key]
	return ledger, ok
}

// Put stores ledger under key, evicting the oldest entry when full. Entries
// for other versions of the same portfolio are dropped.
func (c *Cache) Put(key CacheKey, ledger Ledger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.order[:0]
	for _, k := range c.order {
		if k.PortfolioID == key.PortfolioID && k != key {
			delete(c.entries, k)
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = ledger
	for len(c.order) > c.limit {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}

// Len reports the number of cached ledgers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
