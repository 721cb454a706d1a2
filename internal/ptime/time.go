package ptime

import (
	"math"
	"math/bits"
)

// SubnsPerSecond is the number of subnanoseconds (1/65536 ns each) in
// one second.
const SubnsPerSecond int64 = 65536 * 1_000_000_000

// SubnsPerNanosecond is the number of subnanoseconds in one nanosecond.
const SubnsPerNanosecond int64 = 65536

// maxScale bounds Scale to the integer range the spec guarantees is
// overflow-safe.
const maxScale = 10_000

// Time is a signed, canonical (seconds, subnanoseconds) pair. Subns is
// always in [0, SubnsPerSecond); Seconds carries the sign of the whole
// value.
type Time struct {
	Seconds int64
	Subns   int64
}

// Zero is the additive identity.
var Zero = Time{}

// New builds a canonical Time from raw (possibly out-of-range) seconds
// and subnanoseconds.
func New(seconds, subns int64) Time {
	return normalize(seconds, subns)
}

// FromFields builds a Time from a PTP-style (seconds, nanoseconds,
// subns-residual) triple.
func FromFields(seconds, nanoseconds, subnsResidual int64) Time {
	return normalize(seconds, nanoseconds*SubnsPerNanosecond+subnsResidual)
}

func normalize(seconds, subns int64) Time {
	if subns >= SubnsPerSecond {
		carry := subns / SubnsPerSecond
		subns -= carry * SubnsPerSecond
		seconds += carry
	} else if subns < 0 {
		// ceiling division of -subns by SubnsPerSecond
		borrow := (-subns + SubnsPerSecond - 1) / SubnsPerSecond
		subns += borrow * SubnsPerSecond
		seconds -= borrow
	}
	return Time{Seconds: seconds, Subns: subns}
}

// IsCanonical reports whether t already satisfies the canonical-form
// invariant (subns in [0, SubnsPerSecond)). Intended for assertions and
// tests, not hot-path use.
func (t Time) IsCanonical() bool {
	return t.Subns >= 0 && t.Subns < SubnsPerSecond
}

// Add returns a+b.
func (t Time) Add(o Time) Time {
	return normalize(t.Seconds+o.Seconds, t.Subns+o.Subns)
}

// Sub returns a-b.
func (t Time) Sub(o Time) Time {
	return normalize(t.Seconds-o.Seconds, t.Subns-o.Subns)
}

// Neg returns -a.
func (t Time) Neg() Time {
	return normalize(-t.Seconds, -t.Subns)
}

// Scale multiplies t by a small integer n. Only |n| <= 10000 is
// supported; larger scales risk overflowing the 128-bit intermediate
// used for the subnanosecond product.
func (t Time) Scale(n int64) Time {
	if n > maxScale || n < -maxScale {
		panic("ptime: scale factor out of supported range")
	}
	if n == 0 {
		return Zero
	}
	neg := n < 0
	if neg {
		n = -n
	}
	secs := t.Seconds * n
	hi, lo := bits.Mul64(uint64(t.Subns), uint64(n))
	carry, remSubns := bits.Div64(hi, lo, uint64(SubnsPerSecond))
	result := normalize(secs+int64(carry), int64(remSubns))
	if neg {
		result = result.Neg()
	}
	return result
}

// Compare returns -1, 0, or 1 as t is less than, equal to, or greater
// than o.
func (t Time) Compare(o Time) int {
	switch {
	case t.Seconds < o.Seconds:
		return -1
	case t.Seconds > o.Seconds:
		return 1
	case t.Subns < o.Subns:
		return -1
	case t.Subns > o.Subns:
		return 1
	default:
		return 0
	}
}

// Before reports whether t < o.
func (t Time) Before(o Time) bool { return t.Compare(o) < 0 }

// After reports whether t > o.
func (t Time) After(o Time) bool { return t.Compare(o) > 0 }

const safeRangeSeconds = 24 * 60 * 60

// saturatingUnits converts a pure-difference Time to units of unitSubns
// subnanoseconds each, saturating to the signed 64-bit extrema outside
// the +-24h safe range.
func (t Time) saturatingUnits(unitSubns int64) int64 {
	if t.Seconds > safeRangeSeconds || (t.Seconds == safeRangeSeconds && t.Subns > 0) {
		return math.MaxInt64
	}
	if t.Seconds < -safeRangeSeconds {
		return math.MinInt64
	}
	totalSubns := t.Seconds*SubnsPerSecond + t.Subns
	return totalSubns / unitSubns
}

// DeltaNanoseconds converts a pure-difference Time to nanoseconds,
// saturating outside the safe range.
func (t Time) DeltaNanoseconds() int64 { return t.saturatingUnits(SubnsPerNanosecond) }

// DeltaMicroseconds converts a pure-difference Time to microseconds.
func (t Time) DeltaMicroseconds() int64 { return t.saturatingUnits(SubnsPerNanosecond * 1_000) }

// DeltaMilliseconds converts a pure-difference Time to milliseconds.
func (t Time) DeltaMilliseconds() int64 { return t.saturatingUnits(SubnsPerNanosecond * 1_000_000) }

// DeltaSeconds converts a pure-difference Time to whole seconds.
func (t Time) DeltaSeconds() int64 { return t.saturatingUnits(SubnsPerSecond) }

// DeltaSubns converts a pure-difference Time to raw subnanoseconds,
// saturating outside the safe range. Used by servo loops operating
// directly on the PTP internal time unit.
func (t Time) DeltaSubns() int64 { return t.saturatingUnits(1) }

// FieldSeconds extracts the canonical PTP 48-bit seconds field.
func (t Time) FieldSeconds() uint64 {
	return uint64(t.Seconds) & 0xFFFFFFFFFFFF
}

// FieldNanoseconds extracts the canonical PTP nanoseconds-within-second
// field, truncating the subnanosecond remainder.
func (t Time) FieldNanoseconds() uint32 {
	return uint32(t.Subns / SubnsPerNanosecond)
}

// FieldSubnsResidual extracts the subnanosecond remainder not captured
// by FieldNanoseconds.
func (t Time) FieldSubnsResidual() int64 {
	return t.Subns % SubnsPerNanosecond
}

// RoundFieldNanoseconds extracts (seconds, nanoseconds) with half-ULP
// rounding applied to the subnanosecond remainder instead of
// truncating it.
func (t Time) RoundFieldNanoseconds() (seconds uint64, nanoseconds uint32) {
	rounded := normalize(t.Seconds, t.Subns+SubnsPerNanosecond/2)
	return rounded.FieldSeconds(), rounded.FieldNanoseconds()
}
