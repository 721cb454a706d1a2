// Package poll implements the single-threaded cooperative scheduler:
// Always/OnDemand/Timer task registrations serviced one cycle at a
// time by a timekeeper driven off a monotonic Clock.
package poll

import "time"

// Clock is the monotonic time source driving the scheduler. Timers use
// deadlines computed from it, never cumulative sleep, so drift between
// wall clock and poll tick never accumulates.
type Clock interface {
	NowMillis() int64
}

// SystemClock is the real monotonic Clock, backed by time.Now.
type SystemClock struct{ epoch time.Time }

// NewSystemClock returns a Clock anchored at the time of the call.
func NewSystemClock() SystemClock {
	return SystemClock{epoch: time.Now()}
}

func (c SystemClock) NowMillis() int64 {
	return time.Since(c.epoch).Milliseconds()
}
