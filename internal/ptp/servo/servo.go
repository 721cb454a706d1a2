// Package servo implements the tracking-clock controllers that turn a
// measured offset-from-master into a rate correction: PI, PII, and a
// windowed linear-regression (LR) variant, plus the shared TrackingClock
// interface and step-vs-trim policy from §4.L.
package servo

import (
	"math"

	"github.com/satcat5/corenet/internal/ptime"
)

// TrackingClock is the oscillator a Controller steers: stepped
// coarsely via Adjust, trimmed finely via Rate.
type TrackingClock interface {
	Now() ptime.Time
	// Adjust steps the clock by amount (coarse correction, resets the
	// servo's accumulated state).
	Adjust(amount ptime.Time)
	// Rate sets the fine frequency trim, in units of 2^-40 fractional
	// parts per unit time (a PPB-class unit; see §6).
	Rate(offsetPPB int64)
}

// DefaultStepThreshold is the |offset| beyond which the servo steps
// the clock instead of integrating across the discontinuity.
const DefaultStepThreshold = 1 * ptime.SubnsPerNanosecond * 1_000_000 // 1ms in subns

// Controller consumes one offset-from-master measurement per call and
// drives clock accordingly.
type Controller interface {
	// Update feeds one new measurement, stepping or trimming clock,
	// and returns the rate (subns-per-second-class PPB unit) it applied.
	Update(offset ptime.Time) int64
	Reset()
}

// stepOrTrim applies the shared policy: a |offset| beyond threshold
// steps the clock and resets integrator state (via reset); smaller
// offsets are left for the caller's fine-trim path.
func stepOrTrim(clock TrackingClock, offset ptime.Time, threshold int64, reset func()) (stepped bool) {
	abs := offset.DeltaSubns()
	if abs < 0 {
		abs = -abs
	}
	if abs > threshold {
		clock.Adjust(offset)
		reset()
		return true
	}
	return false
}

// PI is a proportional-integral controller: rate = Kp*e + Ki*sum(e).
// The integrator saturates at +-RateMax to bound runaway frequency
// commands.
type PI struct {
	Clock         TrackingClock
	Kp, Ki        float64
	RateMax       int64
	StepThreshold int64

	integral float64
}

// NewPI builds a PI controller with the spec's default 1ms step
// threshold.
func NewPI(clock TrackingClock, kp, ki float64, rateMax int64) *PI {
	return &PI{Clock: clock, Kp: kp, Ki: ki, RateMax: rateMax, StepThreshold: DefaultStepThreshold}
}

func (c *PI) Reset() { c.integral = 0 }

func (c *PI) Update(offset ptime.Time) int64 {
	if stepOrTrim(c.Clock, offset, c.StepThreshold, c.Reset) {
		c.Clock.Rate(0)
		return 0
	}
	e := float64(offset.DeltaSubns())
	candidate := c.integral + e
	if c.Ki != 0 {
		lim := float64(c.RateMax) / math.Abs(c.Ki)
		candidate = clamp(candidate, -lim, lim)
	}
	rate := clamp(c.Kp*e+c.Ki*candidate, float64(-c.RateMax), float64(c.RateMax))
	// Only accept the integrator step if it didn't push the output
	// into saturation, bounding integral windup.
	if rate == c.Kp*e+c.Ki*candidate {
		c.integral = candidate
	}
	out := int64(rate)
	c.Clock.Rate(out)
	return out
}

// PII adds a second integrator tracking acceleration, useful for
// satellite-Doppler-like drift profiles where rate itself is ramping.
type PII struct {
	Clock            TrackingClock
	Kp, Ki, Kii      float64
	RateMax          int64
	StepThreshold    int64

	integral  float64
	integral2 float64
}

func NewPII(clock TrackingClock, kp, ki, kii float64, rateMax int64) *PII {
	return &PII{Clock: clock, Kp: kp, Ki: ki, Kii: kii, RateMax: rateMax, StepThreshold: DefaultStepThreshold}
}

func (c *PII) Reset() { c.integral, c.integral2 = 0, 0 }

func (c *PII) Update(offset ptime.Time) int64 {
	if stepOrTrim(c.Clock, offset, c.StepThreshold, c.Reset) {
		c.Clock.Rate(0)
		return 0
	}
	e := float64(offset.DeltaSubns())
	c.integral += e
	c.integral2 += c.integral
	rate := c.Kp*e + c.Ki*c.integral + c.Kii*c.integral2
	rate = clamp(rate, float64(-c.RateMax), float64(c.RateMax))
	out := int64(rate)
	c.Clock.Rate(out)
	return out
}

// LR fits a line to the last N (time, offset) samples by least
// squares and uses the slope as rate, rather than integrating error
// directly. The fitted intercept is not applied to the clock.
type LR struct {
	Clock         TrackingClock
	Window        int
	RateMax       int64
	StepThreshold int64

	xs, ys []float64
	t      float64
}

func NewLR(clock TrackingClock, window int, rateMax int64) *LR {
	if window < 2 {
		window = 2
	}
	return &LR{Clock: clock, Window: window, RateMax: rateMax, StepThreshold: DefaultStepThreshold}
}

func (c *LR) Reset() { c.xs, c.ys, c.t = nil, nil, 0 }

func (c *LR) Update(offset ptime.Time) int64 {
	if stepOrTrim(c.Clock, offset, c.StepThreshold, c.Reset) {
		c.Clock.Rate(0)
		return 0
	}

	c.xs = append(c.xs, c.t)
	c.ys = append(c.ys, float64(offset.DeltaSubns()))
	c.t++
	if len(c.xs) > c.Window {
		c.xs = c.xs[len(c.xs)-c.Window:]
		c.ys = c.ys[len(c.ys)-c.Window:]
	}
	if len(c.xs) < 2 {
		return 0
	}

	slope, _ := leastSquares(c.xs, c.ys)
	rate := clamp(slope, float64(-c.RateMax), float64(c.RateMax))
	out := int64(rate)
	c.Clock.Rate(out)
	return out
}

// leastSquares fits y = slope*x + intercept over the given samples.
func leastSquares(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
