package ptime

import (
	"testing"

	_ "github.com/satcat5/corenet/internal/testutil/testlog"
)

func TestNormalizeIsIdempotent(t *testing.T) {
	cases := []Time{
		{Seconds: 5, Subns: 10},
		{Seconds: -5, Subns: 10},
		{Seconds: 0, Subns: SubnsPerSecond - 1},
		New(0, -1),
		New(-1, SubnsPerSecond+5),
	}
	for _, tc := range cases {
		if !tc.IsCanonical() {
			t.Fatalf("%+v is not canonical", tc)
		}
		again := New(tc.Seconds, tc.Subns)
		if again != tc {
			t.Fatalf("normalize not idempotent: %+v -> %+v", tc, again)
		}
	}
}

func TestAddSubRoundTrip(t *testing.T) {
	a := New(100, 12345)
	b := New(-30, 987654321)
	if got := a.Add(b).Sub(b); got != a {
		t.Fatalf("(a+b)-b = %+v, want %+v", got, a)
	}
}

func TestNegCanonical(t *testing.T) {
	a := New(5, 10)
	neg := a.Neg()
	if !neg.IsCanonical() {
		t.Fatalf("negated value not canonical: %+v", neg)
	}
	if neg.Add(a) != Zero {
		t.Fatalf("a + (-a) != 0: %+v", neg.Add(a))
	}
}

func TestScalePreservesSign(t *testing.T) {
	a := New(2, SubnsPerSecond/2)
	doubled := a.Scale(2)
	want := a.Add(a)
	if doubled != want {
		t.Fatalf("Scale(2) = %+v, want %+v", doubled, want)
	}
	negated := a.Scale(-1)
	if negated != a.Neg() {
		t.Fatalf("Scale(-1) = %+v, want %+v", negated, a.Neg())
	}
}

func TestCompareLexicographic(t *testing.T) {
	lo := New(1, 5)
	hi := New(1, 6)
	if lo.Compare(hi) >= 0 {
		t.Fatalf("expected lo < hi")
	}
	if !lo.Before(hi) || !hi.After(lo) {
		t.Fatalf("Before/After disagree with Compare")
	}
}

func TestDeltaSaturates(t *testing.T) {
	huge := New(100*24*60*60, 0)
	if got := huge.DeltaNanoseconds(); got != 9223372036854775807 {
		t.Fatalf("expected saturation to MaxInt64, got %d", got)
	}
	tiny := New(-100*24*60*60, 0)
	if got := tiny.DeltaNanoseconds(); got != -9223372036854775808 {
		t.Fatalf("expected saturation to MinInt64, got %d", got)
	}
}

func TestDeltaWithinSafeRange(t *testing.T) {
	d := New(1, 500_000_000*SubnsPerNanosecond)
	if got := d.DeltaMilliseconds(); got != 1500 {
		t.Fatalf("DeltaMilliseconds = %d, want 1500", got)
	}
}

func TestWireTimestampRoundTrip(t *testing.T) {
	tm := FromFields(123456, 789000000, 32768)
	var buf [TimestampWireLen + CorrectionWireLen]byte
	EncodeFull(tm, buf[:])
	back := DecodeFull(buf[:])

	if back.FieldSeconds() != 123456 {
		t.Fatalf("field_secs = %d, want 123456", back.FieldSeconds())
	}
	if back.FieldNanoseconds() != 789000000 {
		t.Fatalf("field_nsec = %d, want 789000000", back.FieldNanoseconds())
	}
	if back.FieldSubnsResidual() != 32768 {
		t.Fatalf("correction residual = %d, want 32768", back.FieldSubnsResidual())
	}
}

func TestRoundFieldNanosecondsCarries(t *testing.T) {
	tm := FromFields(0, 999999999, SubnsPerNanosecond-1)
	secs, nsec := tm.RoundFieldNanoseconds()
	if secs != 1 || nsec != 0 {
		t.Fatalf("expected carry to (1, 0), got (%d, %d)", secs, nsec)
	}
}
