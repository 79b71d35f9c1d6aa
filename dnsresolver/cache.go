package dnsresolver

import (
	"context"
	"crypto/ed25519"
	"sync"
)

// Cache memoizes Lookup results for the lifetime of a single
// verification pass. It is not a long-lived global: callers construct
// one per top-level Verify call and thread it through recursive
// dependency verification, so repeated lookups of the same
// service.domain pair within one pass cost one DNS round trip.
type Cache struct {
	resolver *Resolver
	mu       sync.Mutex
	entries  map[string]cacheEntry
}

type cacheEntry struct {
	key ed25519.PublicKey
	err error
}

// NewCache wraps resolver with a per-pass memoization layer.
func NewCache(resolver *Resolver) *Cache {
	return &Cache{resolver: resolver, entries: make(map[string]cacheEntry)}
}

// Lookup returns the cached result for service.domain if this pass has
// already resolved it, otherwise performs the lookup and caches it
// (including cache of the error, so a transient DNS failure is not
// retried against the network for every dependency that shares an
// author within the same pass).
func (c *Cache) Lookup(ctx context.Context, service, domain string) (ed25519.PublicKey, error) {
	key := service + "." + domain

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return entry.key, entry.err
	}
	c.mu.Unlock()

	pub, err := c.resolver.Lookup(ctx, service, domain)

	c.mu.Lock()
	c.entries[key] = cacheEntry{key: pub, err: err}
	c.mu.Unlock()

	return pub, err
}
