// Package report implements the reporting re-aggregator (spec.md §4.3):
// the client-side consumer that takes a raw record dump streamed off the
// control endpoint, re-aggregates it into an in-memory store keyed by a
// caller-supplied group projection, and presents it sorted by a caller-
// supplied sort projection. It is grounded on the teacher's Config-struct
// idiom, reusing internal/recstore.NewMemStore exactly as spec.md §6.3
// describes ("Aggregator type wrapping a recstore.Store created via
// NewMemStore").
package report

import (
	"fmt"
	"strings"

	"github.com/nlbwmon/nlbwmon-go/internal/catalog"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
)

// Field names one column a group or sort projection can reference.
// "host" and "layer7" are composite: host expands to {mac, ip} and layer7
// expands to {proto, port}, per spec.md §4.3.
type Field uint8

const (
	FieldFamily Field = iota
	FieldProto
	FieldPort
	FieldMAC
	FieldIP
	FieldHost
	FieldLayer7
)

var fieldNames = map[string]Field{
	"family":  FieldFamily,
	"proto":   FieldProto,
	"port":    FieldPort,
	"mac":     FieldMAC,
	"ip":      FieldIP,
	"host":    FieldHost,
	"layer7":  FieldLayer7,
	"app":     FieldLayer7,
	"dport":   FieldPort,
	"macaddr": FieldMAC,
}

// ParseField resolves a CLI-supplied field token (spec.md §6 `-g`/`-o`
// grammar) into a Field, returning a plain error for an unrecognised name.
func ParseField(name string) (Field, error) {
	f, ok := fieldNames[name]
	if !ok {
		return 0, fmt.Errorf("report: unknown field %q", name)
	}
	return f, nil
}

// expand returns the primitive fields a (possibly composite) field maps to,
// for column rendering: host -> {mac, ip}, layer7 -> {proto, port}.
func (f Field) expand() []Field {
	switch f {
	case FieldHost:
		return []Field{FieldMAC, FieldIP}
	case FieldLayer7:
		return []Field{FieldProto, FieldPort}
	default:
		return []Field{f}
	}
}

func (f Field) columnName() string {
	switch f {
	case FieldFamily:
		return "family"
	case FieldProto:
		return "proto"
	case FieldPort:
		return "port"
	case FieldMAC:
		return "mac"
	case FieldIP:
		return "ip"
	default:
		return "field"
	}
}

// SortKey is one (field, direction) pair in a sort projection.
type SortKey struct {
	Field Field
	Desc  bool
}

// CounterField names one of the five counter columns every report includes
// regardless of projection.
type CounterField uint8

const (
	CounterCount CounterField = iota
	CounterOutPkts
	CounterOutBytes
	CounterInPkts
	CounterInBytes
)

var counterNames = [...]string{"count", "tx_pkts", "tx_bytes", "rx_pkts", "rx_bytes"}

func (c CounterField) String() string { return counterNames[c] }

func counterValue(rec *recstore.Record, c CounterField) uint64 {
	switch c {
	case CounterCount:
		return rec.Count
	case CounterOutPkts:
		return rec.OutPkts
	case CounterOutBytes:
		return rec.OutBytes
	case CounterInPkts:
		return rec.InPkts
	default:
		return rec.InBytes
	}
}

var counterNameLookup = map[string]CounterField{
	"count": CounterCount, "flows": CounterCount,
	"tx_pkts": CounterOutPkts, "out_pkts": CounterOutPkts,
	"tx_bytes": CounterOutBytes, "out_bytes": CounterOutBytes,
	"rx_pkts": CounterInPkts, "in_pkts": CounterInPkts,
	"rx_bytes": CounterInBytes, "in_bytes": CounterInBytes,
}

// ParseSortKey parses one `-o` token: an optional leading '-' for
// descending, then a field name that is either a group Field or a counter
// column name.
func ParseSortKey(token string) (SortKey, error) {
	desc := false
	if len(token) > 0 && token[0] == '-' {
		desc = true
		token = token[1:]
	}
	if c, ok := counterNameLookup[token]; ok {
		return SortKey{Field: counterSortField(c), Desc: desc}, nil
	}
	f, err := ParseField(token)
	if err != nil {
		return SortKey{}, err
	}
	return SortKey{Field: f, Desc: desc}, nil
}

// counterSortField maps a counter column onto a synthetic Field range so
// SortKey can carry either a group field or a counter column uniformly.
// Counter fields are offset past the real Field values.
const counterFieldBase = Field(100)

func counterSortField(c CounterField) Field { return counterFieldBase + Field(c) }

func (f Field) asCounter() (CounterField, bool) {
	if f < counterFieldBase {
		return 0, false
	}
	return CounterField(f - counterFieldBase), true
}

// DefaultGroupProjection is spec.md §4.3's default: {family, host, layer7}.
func DefaultGroupProjection() []Field {
	return []Field{FieldFamily, FieldHost, FieldLayer7}
}

// DefaultSortProjection is spec.md §4.3's default: {rx_bytes desc, rx_pkts desc}.
func DefaultSortProjection() []SortKey {
	return []SortKey{
		{Field: counterSortField(CounterInBytes), Desc: true},
		{Field: counterSortField(CounterInPkts), Desc: true},
	}
}

// groupCtx closes over the selected group fields plus the catalog for
// comparator recstore.NewMemStore takes — spec.md §4.3's "comparator
// context".
type groupCtx struct {
	fields []Field
	cat    *catalog.Catalog
}

// GroupComparator builds a lexicographic byte comparator over exactly the
// selected group fields, the "group projection" spec.md §4.3 describes:
// two records fall in the same group iff they agree on every selected
// field. Composite fields are compared on their expansion: host on
// {mac, ip}, layer7 on the catalog-mapped application name (so two ports
// sharing one app name group together, per spec.md §4.3).
func GroupComparator(fields []Field, cat *catalog.Catalog) (recstore.Comparator, any) {
	return func(a, b *recstore.Record, ctx any) int {
		gc := ctx.(*groupCtx)
		for _, f := range gc.fields {
			if c := compareField(a, b, f, gc.cat); c != 0 {
				return c
			}
		}
		return 0
	}, &groupCtx{fields: fields, cat: cat}
}

// sortCtx closes over the full sort projection and the catalog; when every
// requested key ties, SortComparator falls back to a full-identity
// comparison so ordering stays deterministic.
type sortCtx struct {
	keys []SortKey
	cat  *catalog.Catalog
}

// SortComparator builds the client's final presentation ordering: the
// requested (field, descending) pairs in order, then a full-record
// tie-break (spec.md §4.3: "followed by full-record tie-break so ordering
// is deterministic when keys tie").
func SortComparator(keys []SortKey, cat *catalog.Catalog) (recstore.Comparator, any) {
	return func(a, b *recstore.Record, ctx any) int {
		sc := ctx.(*sortCtx)
		for _, k := range sc.keys {
			var c int
			if cf, ok := k.Field.asCounter(); ok {
				av, bv := counterValue(a, cf), counterValue(b, cf)
				c = compareUint64(av, bv)
			} else {
				c = compareField(a, b, k.Field, sc.cat)
			}
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return compareIdentityTieBreak(a, b)
	}, &sortCtx{keys: keys, cat: cat}
}

func compareField(a, b *recstore.Record, f Field, cat *catalog.Catalog) int {
	switch f {
	case FieldFamily:
		return int(a.Family) - int(b.Family)
	case FieldProto:
		return int(a.Proto) - int(b.Proto)
	case FieldPort:
		return int(a.DstPort) - int(b.DstPort)
	case FieldMAC:
		return compareBytes(a.SrcMAC[:], b.SrcMAC[:])
	case FieldIP:
		return compareBytes(a.SrcAddr[:], b.SrcAddr[:])
	case FieldHost:
		if c := compareBytes(a.SrcMAC[:], b.SrcMAC[:]); c != 0 {
			return c
		}
		return compareBytes(a.SrcAddr[:], b.SrcAddr[:])
	case FieldLayer7:
		return strings.Compare(cat.Name(a.Proto, a.DstPort), cat.Name(b.Proto, b.DstPort))
	default:
		return 0
	}
}

func compareIdentityTieBreak(a, b *recstore.Record) int {
	ak, bk := a.IdentityKey(), b.IdentityKey()
	return compareBytes(ak[:], bk[:])
}

func compareBytes(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Aggregator re-aggregates a raw record stream under a group projection and
// presents it sorted under a sort projection (spec.md §4.3).
type Aggregator struct {
	store   *recstore.Store
	group   []Field
	sort    []SortKey
	catalog *catalog.Catalog
}

// New creates an Aggregator keyed by group's projection.
func New(group []Field, sort []SortKey, cat *catalog.Catalog) *Aggregator {
	cmp, ctx := GroupComparator(group, cat)
	return &Aggregator{
		store:   recstore.NewMemStore(cmp, ctx),
		group:   group,
		sort:    sort,
		catalog: cat,
	}
}

// Insert merges rec into the aggregator's store, combining counters with
// any existing record that agrees on every selected group field.
func (a *Aggregator) Insert(rec *recstore.Record) error {
	return a.store.Insert(rec)
}

// Finalize reorders the store under the sort projection and returns the
// records in presentation order. It must be called exactly once, after all
// records have been inserted (spec.md §4.3: "After ingest, the store is
// reordered under the user's sort projection").
func (a *Aggregator) Finalize() []recstore.Record {
	cmp, ctx := SortComparator(a.sort, a.catalog)
	a.store.Reorder(cmp, ctx)

	out := make([]recstore.Record, 0, a.store.Len())
	for rec := range a.store.Iter() {
		out = append(out, *rec)
	}
	return out
}

// Columns returns the column set a report table/JSON/delimited renderer
// should emit: the union of the group projection (expanded) plus the five
// counter columns, per spec.md §4.3.
func (a *Aggregator) Columns() []string {
	seen := map[Field]bool{}
	var cols []string
	for _, f := range a.group {
		for _, ef := range f.expand() {
			if seen[ef] {
				continue
			}
			seen[ef] = true
			cols = append(cols, ef.columnName())
		}
	}
	for _, c := range [...]CounterField{CounterCount, CounterOutPkts, CounterOutBytes, CounterInPkts, CounterInBytes} {
		cols = append(cols, c.String())
	}
	return cols
}
