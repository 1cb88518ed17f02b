// Package conntrack defines the interface the ingest pipeline consumes to
// receive connection-tracking events and request full-table dumps
// (spec.md §1's "Conntrack source" collaborator). The Linux netlink
// implementation lives in internal/conntrack/nfct; this package is
// transport-agnostic so the ingest pipeline and its tests never depend on
// netlink directly.
package conntrack

import (
	"context"
	"net/netip"

	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
)

// EventType classifies a conntrack message the way spec.md §4.2 expects:
// NEW, UPDATE, or DESTROY.
type EventType uint8

const (
	EventNew EventType = iota
	EventUpdate
	EventDestroy
)

func (t EventType) String() string {
	switch t {
	case EventNew:
		return "new"
	case EventUpdate:
		return "update"
	case EventDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// Tuple is one direction's flow identity plus its counters, as parsed from
// either the original or reply conntrack tuple (spec.md §4.2 step 1).
type Tuple struct {
	Family  recstore.Family
	Proto   uint8
	SrcAddr netip.Addr
	DstAddr netip.Addr
	SrcPort uint16
	DstPort uint16

	Packets uint64
	Bytes   uint64
}

// Message is a single parsed conntrack event: both tuples (original and
// reply), each carrying its own direction's counters, ready for the
// ingest pipeline's direction-resolution step.
type Message struct {
	Type  EventType
	Orig  Tuple
	Reply Tuple
}

// Source produces conntrack events and full-table dumps.
type Source interface {
	// Listen streams live conntrack events until ctx is cancelled. The
	// returned channel is closed when the source is shut down; errors
	// encountered while streaming are sent on the error channel.
	Listen(ctx context.Context) (<-chan Message, <-chan error, error)

	// Dump requests a full conntrack table dump. If zeroCounters is true,
	// the kernel is asked to zero each flow's counters after reading them
	// (the "zeroing" dump spec.md §1 and §4.4 describe, used on period
	// rollover and refresh so counters are attributed to exactly one
	// period). The returned channel is closed once the dump completes.
	Dump(ctx context.Context, zeroCounters bool) (<-chan Message, error)

	// Close releases the underlying transport.
	Close() error
}
