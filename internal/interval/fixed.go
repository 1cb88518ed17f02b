package interval

import "time"

// Fixed is the FIXED interval descriptor: periods are StrideDays-long,
// starting at Base + k*StrideDays*86400 for integer k.
type Fixed struct {
	Base       time.Time
	StrideDays int
}

// Encode implements Descriptor.
func (f Fixed) Encode() (Type, int32, int64) {
	return TypeFixed, int32(f.StrideDays), f.Base.Unix()
}

// Stamp implements Descriptor.
func (f Fixed) Stamp(at time.Time, offset int) uint32 {
	strideSec := int64(f.StrideDays) * 86400
	k := floorDiv(at.Unix()-f.Base.Unix(), strideSec) + int64(offset)
	start := time.Unix(f.Base.Unix()+k*strideSec, 0).Local()
	return EncodeStamp(start.Year(), int(start.Month()), start.Day())
}

// Prev implements Descriptor.
func (f Fixed) Prev(stamp uint32) uint32 {
	t := StampTime(stamp).AddDate(0, 0, -f.StrideDays)
	return EncodeStamp(t.Year(), int(t.Month()), t.Day())
}

// floorDiv computes integer division rounded towards negative infinity,
// matching how period index k should behave for times before Base.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
