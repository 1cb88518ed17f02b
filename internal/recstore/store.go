package recstore

import (
	"iter"

	nlbwerrors "github.com/nlbwmon/nlbwmon-go/pkg/errors"
)

const (
	initialCapacity = 100
	growthFactor    = 1.5
)

// Store is the engine's record store handle: a fixed-width record buffer
// plus an ordered index over it. A Store created by NewMemStore is
// unbounded and used by the reporting re-aggregator; one created by
// NewPeriodStore is the bounded, capacity-managed live accounting store.
type Store struct {
	recs    []Record
	cap     int
	entries int
	offset  uint64 // monotonically increasing insertion counter
	limit   int    // 0 means unbounded
	index   *avlIndex

	// Timestamp is the period stamp this store currently accumulates under.
	// Unused (left 0) by mem stores created for reporting.
	Timestamp uint32

	// pristine is true until either a record is merged in from a loaded
	// file, or the store is saved under a non-zero timestamp.
	pristine bool
}

// NewMemStore creates an unbounded store ordered by cmp, for the reporting
// client's in-memory re-aggregation.
func NewMemStore(cmp Comparator, ctx any) *Store {
	s := &Store{pristine: true}
	s.index = newAVLIndex(cmp, ctx, s.recordAt)
	return s
}

// NewPeriodStore creates a store for live accounting under the given
// period stamp, ordered by flow identity. If prealloc is set and limit > 0, the
// full capacity is allocated up front; otherwise the buffer grows
// geometrically from a small initial capacity, clamped to limit when
// limit > 0.
func NewPeriodStore(timestamp uint32, prealloc bool, limit int) *Store {
	s := &Store{Timestamp: timestamp, limit: limit, pristine: true}
	s.index = newAVLIndex(identityComparator, nil, s.recordAt)

	if prealloc && limit > 0 {
		s.recs = make([]Record, limit)
		s.cap = limit
		return s
	}

	initial := initialCapacity
	if limit > 0 && initial > limit {
		initial = limit
	}
	s.recs = make([]Record, initial)
	s.cap = initial
	return s
}

// NewIdentityMemStore creates an unbounded store ordered by flow identity,
// for callers (e.g. the control endpoint's dump-by-stamp path) that need a
// plain Insert-or-merge store without the reporting re-aggregator's
// group/sort projections.
func NewIdentityMemStore() *Store {
	return NewMemStore(identityComparator, nil)
}

// identityComparator orders records by their flow identity range, the
// primary index's required total order.
func identityComparator(a, b *Record, _ any) int {
	ak, bk := a.IdentityKey(), b.IdentityKey()
	for i := range ak {
		if ak[i] != bk[i] {
			if ak[i] < bk[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (s *Store) recordAt(slot int) *Record {
	return &s.recs[slot]
}

// Len returns the number of live records in the store.
func (s *Store) Len() int { return s.entries }

// Capacity returns the store's current allocated capacity.
func (s *Store) Capacity() int { return s.cap }

// Limit returns the store's hard entry limit, or 0 if unbounded.
func (s *Store) Limit() int { return s.limit }

// Pristine reports whether the store has never been loaded from, nor saved
// to, a persistent file with a non-zero stamp.
func (s *Store) Pristine() bool { return s.pristine }

// MarkLoaded clears the pristine bit, as if records had been merged in from
// a loaded file.
func (s *Store) MarkLoaded() { s.pristine = false }

// MarkSaved clears the pristine bit if timestamp is non-zero, per the save
// protocol in spec.md §4.5.
func (s *Store) MarkSaved(timestamp uint32) {
	if timestamp != 0 {
		s.pristine = false
	}
}

// Insert inserts rec, merging its counters into an existing record with the
// same identity, or appending (subject to growth and circular-overwrite
// policy) if no match exists. Insert always succeeds: ResourceExhausted
// conditions are absorbed by the documented fallback (circular overwrite).
func (s *Store) Insert(rec *Record) error {
	if slot, ok := s.index.Find(rec); ok {
		s.recs[slot].MergeCounters(rec)
		return nil
	}

	if s.entries < s.cap {
		slot := s.entries
		s.recs[slot] = *rec
		s.index.Insert(slot)
		s.entries++
		s.offset++
		return nil
	}

	if s.grow() {
		slot := s.entries
		s.recs[slot] = *rec
		s.index.Insert(slot)
		s.entries++
		s.offset++
		return nil
	}

	// Hard cap reached: circular-overwrite the slot at offset mod capacity.
	slot := int(s.offset % uint64(s.cap))
	old := s.recs[slot]
	s.index.Remove(&old)
	s.recs[slot] = *rec
	s.index.Insert(slot)
	s.offset++
	return nil
}

// Update merges rec's counters into an existing record with the same
// identity. It never creates a new record: if no match exists, it returns a
// Missing error, which callers (the ingest pipeline, for conntrack UPDATE
// events on flows never observed opening) are expected to swallow.
func (s *Store) Update(rec *Record) error {
	slot, ok := s.index.Find(rec)
	if !ok {
		return nlbwerrors.NewMissingError("no record with matching identity").WithKey("flow identity")
	}
	s.recs[slot].MergeCounters(rec)
	return nil
}

// Reorder rebuilds the index under a new comparator, e.g. switching from
// the primary identity order to a client-requested sort order before a
// dump. Record locations in the backing buffer are unchanged.
func (s *Store) Reorder(cmp Comparator, ctx any) {
	s.index = newAVLIndex(cmp, ctx, s.recordAt)
	for slot := 0; slot < s.entries; slot++ {
		s.index.Insert(slot)
	}
}

// Iter yields the store's records in the current index order. It is
// restartable (each call walks the index fresh) and finite.
func (s *Store) Iter() iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		s.index.InOrder(func(slot int) bool {
			return yield(&s.recs[slot])
		})
	}
}

// ResetForPeriod clears the store in place — offset and entries reset to
// zero, index rebuilt empty — and sets Timestamp to newTimestamp. The
// backing buffer is reused rather than reallocated, per spec.md §3's
// rollover lifecycle note. Pristine is untouched: it tracks persistence
// history, not period identity.
func (s *Store) ResetForPeriod(newTimestamp uint32) {
	s.entries = 0
	s.offset = 0
	s.Timestamp = newTimestamp
	s.index.Reset()
}

// grow attempts to increase the store's capacity by growthFactor, clamped
// to limit when the store is bounded. It returns false when the store is
// already at its hard limit (the caller must fall back to circular
// overwrite).
func (s *Store) grow() bool {
	if s.limit > 0 && s.cap >= s.limit {
		return false
	}

	newCap := int(float64(s.cap) * growthFactor)
	if newCap <= s.cap {
		newCap = s.cap + 1
	}
	if s.limit > 0 && newCap > s.limit {
		newCap = s.limit
	}
	if newCap <= s.cap {
		return false
	}

	grown := make([]Record, newCap)
	copy(grown, s.recs[:s.entries])
	s.recs = grown
	s.cap = newCap
	// Slot indices are unchanged by growth (see avlindex.go doc comment),
	// so the index needs no rebuild here.
	return true
}
