// Package interval implements the accounting engine's calendar clock: it
// converts a configured interval specification plus an integer offset into
// the canonical yyyymmdd period stamp used everywhere else in the system
// (database headers, file names, the control protocol's list walk).
//
// Two interval kinds are supported, matching the original nlbwmon database
// format: MONTHLY, anchored to a day-of-month (possibly counted from the
// end of the month), and FIXED, a fixed-length stride in whole days from a
// reference epoch.
package interval

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type identifies which interval kind a Descriptor encodes on disk.
type Type byte

const (
	// TypeUnset marks an interval descriptor that was never initialised —
	// decoding a database whose descriptor has this type is an Invalid error.
	TypeUnset Type = 0
	// TypeMonthly is the calendar-month interval kind.
	TypeMonthly Type = 1
	// TypeFixed is the fixed-stride interval kind.
	TypeFixed Type = 2
)

// Descriptor computes period stamps for one interval kind. Implementations
// are immutable value types safe for concurrent read-only use.
type Descriptor interface {
	// Stamp returns the yyyymmdd stamp of the period that contains "at",
	// shifted by offset whole periods (offset may be negative).
	Stamp(at time.Time, offset int) uint32

	// Prev returns the stamp of the period immediately preceding stamp.
	Prev(stamp uint32) uint32

	// Encode returns the on-disk (type, value, base) triple for this
	// descriptor, per the database header's interval descriptor layout.
	Encode() (typ Type, value int32, base int64)
}

// Decode reconstructs a Descriptor from the on-disk (type, value, base)
// triple. A zero typ is Invalid — the caller is reading a corrupt or
// never-initialised header.
func Decode(typ Type, value int32, base int64) (Descriptor, error) {
	switch typ {
	case TypeMonthly:
		return Monthly{Day: int(value)}, nil
	case TypeFixed:
		return Fixed{Base: time.Unix(base, 0).UTC(), StrideDays: int(value)}, nil
	default:
		return nil, fmt.Errorf("interval: unknown descriptor type %d", typ)
	}
}

// EncodeStamp packs a calendar date into the yyyymmdd stamp encoding.
func EncodeStamp(year, month, day int) uint32 {
	return uint32(year)*10000 + uint32(month)*100 + uint32(day)
}

// DecodeStamp unpacks a yyyymmdd stamp into its calendar components.
func DecodeStamp(stamp uint32) (year, month, day int) {
	year = int(stamp / 10000)
	month = int((stamp / 100) % 100)
	day = int(stamp % 100)
	return
}

// StampTime returns the stamp's date at local midnight, for arithmetic that
// needs a time.Time (e.g. stepping Prev across months).
func StampTime(stamp uint32) time.Time {
	y, m, d := DecodeStamp(stamp)
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.Local)
}

// ParseSpec parses the server CLI's interval grammar: "N" selects MONTHLY
// with day-of-month N (N may be negative, counting from month end), and
// "YYYY-MM-DD/N" selects FIXED with the given reference day and an N-day
// stride.
func ParseSpec(spec string) (Descriptor, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("interval: empty spec")
	}

	if idx := strings.IndexByte(spec, '/'); idx >= 0 {
		dateStr, strideStr := spec[:idx], spec[idx+1:]
		base, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
		if err != nil {
			return nil, fmt.Errorf("interval: invalid fixed base date %q: %w", dateStr, err)
		}
		stride, err := strconv.Atoi(strideStr)
		if err != nil || stride <= 0 {
			return nil, fmt.Errorf("interval: invalid fixed stride %q", strideStr)
		}
		return Fixed{Base: base, StrideDays: stride}, nil
	}

	day, err := strconv.Atoi(spec)
	if err != nil || day == 0 || day < -31 || day > 31 {
		return nil, fmt.Errorf("interval: invalid monthly day-of-month %q", spec)
	}
	return Monthly{Day: day}, nil
}
