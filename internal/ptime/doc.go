// Package ptime implements the sub-nanosecond fixed-point time value
// used throughout the PTP timekeeping subsystem.
//
// A Time is a canonical (seconds, subns) pair: subns always lies in
// [0, SubnsPerSecond) and seconds carries the sign. Arithmetic
// preserves that invariant; conversions outside the safe range
// saturate rather than overflow silently.
package ptime
