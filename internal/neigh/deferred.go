package neigh

import (
	"context"
	"net/netip"
	"time"

	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/pkg/errors"
)

// DefaultDelay is the deferred-resolution wait before the OS neighbour
// table is consulted, per spec.md §4.2 step 5.
const DefaultDelay = 500 * time.Millisecond

// Resolver performs the actual, potentially-blocking OS lookup: the
// neighbour table first, falling back to the interface address list when
// addr turns out to be a local interface address rather than a neighbour.
type Resolver interface {
	Resolve(ctx context.Context, family recstore.Family, addr netip.Addr) (mac [6]byte, ok bool, err error)
}

// Result is a completed deferred resolution, posted back onto the event
// loop's channel so the cache is only ever mutated by its owning goroutine.
type Result struct {
	Key   Key
	MAC   [6]byte
	Found bool
}

// DeferredQueue is the bounded task queue spec.md §4.2 step 5 and §9
// describe: at most one outstanding timer per (family, addr), capped at
// the store's hard limit. Scheduling past the cap is a ResourceExhausted
// error; the caller (the ingest pipeline) falls back to an immediate
// insert with a zero MAC, per the documented policy.
type DeferredQueue struct {
	limit    int
	resolver Resolver
	out      chan<- Result
	pending  map[Key]*time.Timer
}

// NewDeferredQueue creates a queue bounded at limit (0 means unbounded),
// using resolver for the OS lookup and posting completions to out.
func NewDeferredQueue(limit int, resolver Resolver, out chan<- Result) *DeferredQueue {
	return &DeferredQueue{
		limit:    limit,
		resolver: resolver,
		out:      out,
		pending:  make(map[Key]*time.Timer),
	}
}

// Schedule queues a deferred resolution for key after DefaultDelay, unless
// one is already outstanding for the same key. It returns a
// ResourceExhausted error if the queue is at its hard limit.
func (q *DeferredQueue) Schedule(key Key) error {
	if _, exists := q.pending[key]; exists {
		return nil
	}
	if q.limit > 0 && len(q.pending) >= q.limit {
		return errors.NewResourceExhaustedError("deferred mac resolution queue", q.limit, len(q.pending)+1)
	}

	q.pending[key] = time.AfterFunc(DefaultDelay, func() {
		mac, ok, _ := q.resolver.Resolve(context.Background(), key.Family, key.Addr)
		q.out <- Result{Key: key, MAC: mac, Found: ok}
	})
	return nil
}

// Complete marks key's deferred task as finished — called by the event
// loop once it has consumed the corresponding Result, freeing a slot under
// the hard limit.
func (q *DeferredQueue) Complete(key Key) {
	delete(q.pending, key)
}

// Len reports the number of outstanding deferred tasks.
func (q *DeferredQueue) Len() int { return len(q.pending) }

// Cancel stops every outstanding timer without waiting for completion, per
// spec.md §5's cancellation policy ("no outstanding deferred tasks are
// awaited").
func (q *DeferredQueue) Cancel() {
	for key, t := range q.pending {
		t.Stop()
		delete(q.pending, key)
	}
}
