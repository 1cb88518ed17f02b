// Package options implements the daemon's functional-options
// configuration surface, in the teacher's style: a single Options struct
// built up by applying a sequence of OptionFunc values over a set of
// defaults, so callers only need to specify what differs from the default.
package options

import (
	"net/netip"
	"time"

	"github.com/nlbwmon/nlbwmon-go/internal/interval"
)

// Options holds every tunable of the accounting daemon, populated by
// NewDefaultOptions and then overridden by whatever OptionFunc values the
// CLI layer (cmd/nlbwmond) derives from parsed flags.
type Options struct {
	// NetlinkBufferSize is the requested SO_RCVBUF size for the conntrack
	// netlink socket, compared against the kernel's rmem_max at startup.
	NetlinkBufferSize int

	// RefreshInterval is how often the period manager's refresh timer
	// fires (update-only re-dump, scratch snapshot).
	RefreshInterval time.Duration

	// CommitInterval is how often the period manager's commit timer fires
	// (full save under the current stamp).
	CommitInterval time.Duration

	// LocalPrefixes classifies addresses as local vs. remote.
	LocalPrefixes []netip.Prefix

	// PersistDir is where closed periods are written.
	PersistDir string

	// CatalogPath is the protocol catalog file used for layer7 naming.
	CatalogPath string

	// Generations is how many past periods Cleanup retains. 0 disables
	// cleanup.
	Generations int

	// Interval is the accounting period descriptor.
	Interval interval.Descriptor

	// Preallocate, when true with Limit > 0, allocates the live store's
	// full capacity up front instead of growing geometrically.
	Preallocate bool

	// Limit is the live store's hard entry cap. 0 means unbounded.
	Limit int

	// Compress selects the gzip on-disk encoding over the raw one.
	Compress bool

	// SocketPath is the control endpoint's unix socket path.
	SocketPath string
}

// OptionFunc mutates an Options in place. Functional options are applied in
// order, so later options override earlier ones.
type OptionFunc func(*Options)

// NewDefaultOptions returns the baseline configuration spec.md §6 assumes
// before any CLI flags are applied: a 30s refresh timer, a 24h commit
// timer, and no local prefixes, persistent directory, or interval — those
// have no sane default and must come from the CLI.
func NewDefaultOptions() *Options {
	return &Options{
		NetlinkBufferSize: 212992,
		RefreshInterval:   30 * time.Second,
		CommitInterval:    86400 * time.Second,
		Generations:       0,
		Preallocate:       false,
		Limit:             0,
		Compress:          false,
		SocketPath:        "/var/run/nlbwmon.sock",
	}
}

// Apply builds an Options from the defaults plus every opt, in order.
func Apply(opts ...OptionFunc) *Options {
	o := NewDefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func WithNetlinkBufferSize(size int) OptionFunc {
	return func(o *Options) { o.NetlinkBufferSize = size }
}

func WithRefreshInterval(d time.Duration) OptionFunc {
	return func(o *Options) { o.RefreshInterval = d }
}

func WithCommitInterval(d time.Duration) OptionFunc {
	return func(o *Options) { o.CommitInterval = d }
}

func WithLocalPrefixes(prefixes []netip.Prefix) OptionFunc {
	return func(o *Options) { o.LocalPrefixes = prefixes }
}

func WithPersistDir(dir string) OptionFunc {
	return func(o *Options) { o.PersistDir = dir }
}

func WithCatalogPath(path string) OptionFunc {
	return func(o *Options) { o.CatalogPath = path }
}

func WithGenerations(n int) OptionFunc {
	return func(o *Options) { o.Generations = n }
}

func WithInterval(d interval.Descriptor) OptionFunc {
	return func(o *Options) { o.Interval = d }
}

func WithPreallocate(v bool) OptionFunc {
	return func(o *Options) { o.Preallocate = v }
}

func WithLimit(n int) OptionFunc {
	return func(o *Options) { o.Limit = n }
}

func WithCompress(v bool) OptionFunc {
	return func(o *Options) { o.Compress = v }
}

func WithSocketPath(path string) OptionFunc {
	return func(o *Options) { o.SocketPath = path }
}
