// Package recstore implements the accounting engine's in-memory aggregation
// store: a fixed-width record array plus an ordered index keyed on the
// record's identity range, supporting insert-or-merge, reorder-under-a-
// different-comparator, bounded-capacity circular overwrite, save, and
// load. It is the indexed, bounded aggregation store the rest of the system
// (ingest pipeline, period manager, persistence, reporting re-aggregator)
// builds on.
//
// The design is adapted from the teacher's segment/index split
// (internal/storage, internal/index in the ignite key-value store): where
// ignite keeps values on disk and only pointers in memory, recstore keeps
// every record fully in memory (accounting records are tiny and bounded)
// and uses the same ordered-index-over-a-growable-buffer idea, but with an
// AVL tree keyed by slot index so growth never invalidates index entries.
package recstore

import "encoding/binary"

// Family is the address-family tag carried in a record's identity.
type Family uint8

const (
	FamilyV4 Family = 1
	FamilyV6 Family = 2
)

// RecSize is the fixed on-wire width of a record's identity+counter range,
// matching the original nlbwmon database's packed struct record layout
// (family, proto, dst_port, src_mac padded to 8, src_addr, five u64 counters).
const RecSize = 1 + 1 + 2 + 8 + 16 + 8*5

// Record is one (host, protocol, port) aggregation bucket. The identity
// range is {Family, Proto, DstPort, SrcMAC, SrcAddr}; the remaining fields
// are commutative big-endian-add counters. Counters are held in host byte
// order for in-process arithmetic and converted to/from big-endian only at
// the encode/decode boundary (EncodeTo/DecodeRecord), per the design note that
// the wire format — not the in-memory representation — must stay
// big-endian.
type Record struct {
	Family  Family
	Proto   uint8
	DstPort uint16
	SrcMAC  [8]byte  // 6 real bytes, zero-padded to 8
	SrcAddr [16]byte // v4 left-justified

	Count    uint64
	OutPkts  uint64
	OutBytes uint64
	InPkts   uint64
	InBytes  uint64
}

// SameIdentity reports whether r and other share the same flow identity
// range — the "same flow key" relation from the data model.
func (r *Record) SameIdentity(other *Record) bool {
	return r.Family == other.Family &&
		r.Proto == other.Proto &&
		r.DstPort == other.DstPort &&
		r.SrcMAC == other.SrcMAC &&
		r.SrcAddr == other.SrcAddr
}

// MergeCounters adds src's five counters into r, in place. Addition is
// performed in host order; the big-endian requirement applies only to the
// wire representation, and host-order addition is equivalent to wrapping
// big-endian addition as long as both sides observe the same byte order at
// the boundary (see the package doc and spec.md design note §9).
func (r *Record) MergeCounters(src *Record) {
	r.Count += src.Count
	r.OutPkts += src.OutPkts
	r.OutBytes += src.OutBytes
	r.InPkts += src.InPkts
	r.InBytes += src.InBytes
}

// EncodeTo writes r's identity+counter range into buf (which must be at
// least RecSize bytes) in big-endian wire format.
func (r *Record) EncodeTo(buf []byte) {
	buf[0] = byte(r.Family)
	buf[1] = r.Proto
	binary.BigEndian.PutUint16(buf[2:4], r.DstPort)
	copy(buf[4:12], r.SrcMAC[:])
	copy(buf[12:28], r.SrcAddr[:])
	binary.BigEndian.PutUint64(buf[28:36], r.Count)
	binary.BigEndian.PutUint64(buf[36:44], r.OutPkts)
	binary.BigEndian.PutUint64(buf[44:52], r.OutBytes)
	binary.BigEndian.PutUint64(buf[52:60], r.InPkts)
	binary.BigEndian.PutUint64(buf[60:68], r.InBytes)
}

// DecodeRecord reads a Record from buf (which must be at least RecSize
// bytes) in big-endian wire format.
func DecodeRecord(buf []byte) Record {
	var r Record
	r.Family = Family(buf[0])
	r.Proto = buf[1]
	r.DstPort = binary.BigEndian.Uint16(buf[2:4])
	copy(r.SrcMAC[:], buf[4:12])
	copy(r.SrcAddr[:], buf[12:28])
	r.Count = binary.BigEndian.Uint64(buf[28:36])
	r.OutPkts = binary.BigEndian.Uint64(buf[36:44])
	r.OutBytes = binary.BigEndian.Uint64(buf[44:52])
	r.InPkts = binary.BigEndian.Uint64(buf[52:60])
	r.InBytes = binary.BigEndian.Uint64(buf[60:68])
	return r
}

// IdentityKey returns a byte string uniquely identifying r's flow identity,
// suitable for use as a map/tree key by comparators that don't need field-
// level granularity.
func (r *Record) IdentityKey() [28]byte {
	var key [28]byte
	key[0] = byte(r.Family)
	key[1] = r.Proto
	binary.BigEndian.PutUint16(key[2:4], r.DstPort)
	copy(key[4:12], r.SrcMAC[:])
	copy(key[12:28], r.SrcAddr[:])
	return key
}
