package recstore

import (
	"encoding/binary"

	"github.com/nlbwmon/nlbwmon-go/internal/interval"
)

// Magic is the four-byte tag identifying an on-disk database file.
var Magic = [4]byte{'n', 'l', 'b', 'm'}

// HeaderSize is the fixed on-wire width of the database header: magic (4) +
// entries (4) + timestamp (4) + interval descriptor (1+4+8).
const HeaderSize = 4 + 4 + 4 + 1 + 4 + 8

// Header is the on-disk database header, preceding the packed record array.
type Header struct {
	Entries     uint32
	Timestamp   uint32
	IntervalTyp interval.Type
	IntervalVal int32
	IntervalBas int64
}

// EncodeTo writes h into buf (which must be at least HeaderSize bytes).
func (h *Header) EncodeTo(buf []byte) {
	copy(buf[0:4], Magic[:])
	binary.BigEndian.PutUint32(buf[4:8], h.Entries)
	binary.BigEndian.PutUint32(buf[8:12], h.Timestamp)
	buf[12] = byte(h.IntervalTyp)
	binary.BigEndian.PutUint32(buf[13:17], uint32(h.IntervalVal))
	binary.BigEndian.PutUint64(buf[17:25], uint64(h.IntervalBas))
}

// DecodeHeader reads a Header from buf (which must be at least HeaderSize
// bytes). It does not validate the magic or interval type; callers perform
// that validation against the expected stamp/encoding (see internal/persist).
func DecodeHeader(buf []byte) Header {
	return Header{
		Entries:     binary.BigEndian.Uint32(buf[4:8]),
		Timestamp:   binary.BigEndian.Uint32(buf[8:12]),
		IntervalTyp: interval.Type(buf[12]),
		IntervalVal: int32(binary.BigEndian.Uint32(buf[13:17])),
		IntervalBas: int64(binary.BigEndian.Uint64(buf[17:25])),
	}
}

// MagicValid reports whether buf starts with the expected magic tag.
func MagicValid(buf []byte) bool {
	return len(buf) >= 4 && buf[0] == Magic[0] && buf[1] == Magic[1] && buf[2] == Magic[2] && buf[3] == Magic[3]
}
