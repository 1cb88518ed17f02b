// Package neigh implements the neighbour cache (spec.md §4.2 step 5,
// §2.2): a key-value map from (family, IP) to hardware address, refreshed
// on demand from the OS via a bounded, deferred task queue rather than
// blocking ingest on every miss.
package neigh

import (
	"net/netip"

	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
)

// Key identifies a neighbour cache entry.
type Key struct {
	Family recstore.Family
	Addr   netip.Addr
}

// Cache is a plain, single-owner map: it carries no internal locking
// because, per spec.md §5's concurrency model, only the event loop
// goroutine ever calls Get/Set — deferred resolution results are posted
// back onto the loop's channel (see deferred.go) rather than written here
// directly from a timer goroutine.
type Cache struct {
	entries map[Key][6]byte
}

// New creates an empty neighbour cache.
func New() *Cache {
	return &Cache{entries: make(map[Key][6]byte)}
}

// Get returns the cached MAC for key, if present.
func (c *Cache) Get(key Key) ([6]byte, bool) {
	mac, ok := c.entries[key]
	return mac, ok
}

// Set records mac for key, overwriting any previous entry.
func (c *Cache) Set(key Key, mac [6]byte) {
	c.entries[key] = mac
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }
