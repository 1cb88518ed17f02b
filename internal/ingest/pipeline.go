// Package ingest implements the conntrack-event-to-record mapping pipeline
// (spec.md §4.2): direction resolution via the subnet classifier, layer7
// normalisation via the protocol catalog, MAC resolution via the
// neighbour cache (with deferred OS lookups), and insert-or-update into
// the live record store.
package ingest

import (
	"net/netip"

	"go.uber.org/zap"

	"github.com/nlbwmon/nlbwmon-go/internal/catalog"
	"github.com/nlbwmon/nlbwmon-go/internal/conntrack"
	"github.com/nlbwmon/nlbwmon-go/internal/neigh"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/internal/subnet"
	"github.com/nlbwmon/nlbwmon-go/pkg/errors"
)

// Mode tells Handle which insertion semantics a message carries: a live
// conntrack event (semantics derived from the event type, spec.md §4.2
// steps 4-6), or one of the period manager's two synthetic re-dump modes
// (spec.md §4.4).
type Mode uint8

const (
	// ModeLive is an ordinary conntrack NEW/UPDATE/DESTROY event.
	ModeLive Mode = iota

	// ModeDumpInsert is the rollover re-dump (allow_insert=true): every
	// flow is treated as freshly observed (count=1, insert).
	ModeDumpInsert

	// ModeDumpUpdate is the refresh-timer's update-only re-dump
	// (allow_insert=false): existing flows are refreshed without
	// incrementing their flow count, and unmatched flows are dropped.
	ModeDumpUpdate
)

// Config bundles the pipeline's collaborators, in the teacher's
// Config-struct idiom.
type Config struct {
	Classifier *subnet.Classifier
	Catalog    *catalog.Catalog
	Neigh      *neigh.Cache
	Deferred   *neigh.DeferredQueue
	Log        *zap.SugaredLogger
}

// pendingRecord is a record awaiting a deferred MAC resolution result.
type pendingRecord struct {
	rec    *recstore.Record
	insert bool
}

// Pipeline implements the event-to-record mapping. It is not safe for
// concurrent use: per spec.md §5, it is driven exclusively by the event
// loop goroutine.
type Pipeline struct {
	cfg     Config
	pending map[neigh.Key][]pendingRecord
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg, pending: make(map[neigh.Key][]pendingRecord)}
}

// Handle implements spec.md §4.2 steps 2-6 for one conntrack message under
// mode. It never blocks: a neighbour-cache miss that needs OS resolution
// schedules a deferred task and returns immediately without touching
// store; the record is committed later from HandleDeferred.
func (p *Pipeline) Handle(store *recstore.Store, msg conntrack.Message, mode Mode) error {
	rec, localKey, ok := p.buildRecord(msg)
	if !ok {
		return nil
	}

	insert, triggerDeferred := modeSemantics(mode, msg.Type, rec)

	if mac, ok := p.cfg.Neigh.Get(localKey); ok {
		rec.SrcMAC = macBytes(mac)
		return p.commit(store, rec, insert)
	}

	if !triggerDeferred {
		return p.commit(store, rec, insert)
	}

	if err := p.cfg.Deferred.Schedule(localKey); err != nil {
		if p.cfg.Log != nil {
			p.cfg.Log.Warnw("deferred mac queue exhausted, inserting with zero mac",
				"addr", localKey.Addr, "error", err)
		}
		return p.commit(store, rec, insert)
	}

	p.pending[localKey] = append(p.pending[localKey], pendingRecord{rec: rec, insert: insert})
	return nil
}

// HandleDeferred applies a completed deferred MAC resolution to every
// record that was waiting on it, committing each to store.
func (p *Pipeline) HandleDeferred(store *recstore.Store, res neigh.Result) error {
	p.cfg.Deferred.Complete(res.Key)
	if res.Found {
		p.cfg.Neigh.Set(res.Key, res.MAC)
	}

	waiting := p.pending[res.Key]
	delete(p.pending, res.Key)

	mac := macBytes(res.MAC)
	if !res.Found {
		mac = [8]byte{}
	}

	for _, pr := range waiting {
		pr.rec.SrcMAC = mac
		if err := p.commit(store, pr.rec, pr.insert); err != nil {
			return err
		}
	}
	return nil
}

func modeSemantics(mode Mode, evType conntrack.EventType, rec *recstore.Record) (insert bool, triggerDeferred bool) {
	switch mode {
	case ModeDumpInsert:
		rec.Count = 1
		return true, true
	case ModeDumpUpdate:
		rec.Count = 0
		return false, true
	default:
		isNew := evType == conntrack.EventNew
		if isNew {
			rec.Count = 1
		} else {
			rec.Count = 0
		}
		return isNew, isNew
	}
}

// commit performs step 6: insert for freshly-observed flows, update-only
// (silently dropping a miss) otherwise.
func (p *Pipeline) commit(store *recstore.Store, rec *recstore.Record, insert bool) error {
	if insert {
		return store.Insert(rec)
	}
	err := store.Update(rec)
	if errors.IsMissing(err) {
		return nil
	}
	return err
}

// buildRecord implements steps 1-3: direction resolution and layer7
// normalisation. ok is false when the flow is local↔local or
// remote↔remote and must be dropped.
func (p *Pipeline) buildRecord(msg conntrack.Message) (*recstore.Record, neigh.Key, bool) {
	origLocal := p.cfg.Classifier.IsLocal(msg.Orig.SrcAddr)
	origRemoteDst := p.cfg.Classifier.IsLocal(msg.Orig.DstAddr)
	replyLocal := p.cfg.Classifier.IsLocal(msg.Reply.SrcAddr)
	replyRemoteDst := p.cfg.Classifier.IsLocal(msg.Reply.DstAddr)

	var (
		localAddr         = msg.Orig.SrcAddr
		remotePort        uint16
		outPkts, outBytes uint64
		inPkts, inBytes   uint64
		family            = msg.Orig.Family
		proto             = msg.Orig.Proto
	)

	switch {
	case !origLocal && origRemoteDst:
		// remote -> local
		localAddr = msg.Reply.SrcAddr
		remotePort = msg.Reply.SrcPort
		inPkts, inBytes = msg.Orig.Packets, msg.Orig.Bytes
		outPkts, outBytes = msg.Reply.Packets, msg.Reply.Bytes
	case !replyLocal && replyRemoteDst:
		// local -> remote
		localAddr = msg.Orig.SrcAddr
		remotePort = msg.Orig.DstPort
		outPkts, outBytes = msg.Orig.Packets, msg.Orig.Bytes
		inPkts, inBytes = msg.Reply.Packets, msg.Reply.Bytes
	default:
		return nil, neigh.Key{}, false
	}

	proto, remotePort = p.cfg.Catalog.Normalize(proto, remotePort)

	rec := &recstore.Record{
		Family:   family,
		Proto:    proto,
		DstPort:  remotePort,
		OutPkts:  outPkts,
		OutBytes: outBytes,
		InPkts:   inPkts,
		InBytes:  inBytes,
	}
	writeSrcAddr(&rec.SrcAddr, localAddr)

	key := neigh.Key{Family: family, Addr: localAddr}
	return rec, key, true
}

// writeSrcAddr fills dst per spec.md §3's "16-byte address slot (v4
// left-justified)": an IPv4 address occupies the first 4 bytes with the
// remainder zeroed, while an IPv6 address fills all 16 bytes.
func writeSrcAddr(dst *[16]byte, addr netip.Addr) {
	*dst = [16]byte{}
	if addr.Is4() {
		a4 := addr.As4()
		copy(dst[:4], a4[:])
		return
	}
	a16 := addr.As16()
	copy(dst[:], a16[:])
}

func macBytes(mac [6]byte) [8]byte {
	var b [8]byte
	copy(b[:6], mac[:])
	return b
}
