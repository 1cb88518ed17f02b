// Package subnet implements the local/remote address classification the
// ingest pipeline uses to resolve traffic direction (spec.md §4.2 step 2).
package subnet

import "net/netip"

// Classifier tells whether an address falls inside any configured local
// prefix. The zero value classifies every address as remote.
type Classifier struct {
	prefixes []netip.Prefix
}

// New builds a Classifier over prefixes, as parsed from the repeatable
// `-l`/`--local` CLI flag (spec.md §6).
func New(prefixes []netip.Prefix) *Classifier {
	return &Classifier{prefixes: prefixes}
}

// IsLocal reports whether addr falls within any configured prefix.
func (c *Classifier) IsLocal(addr netip.Addr) bool {
	if c == nil {
		return false
	}
	for _, p := range c.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
