package client

import "bytes"

// Announce is the subset of an Announce message's dataset needed for
// the Best Master Clock Algorithm comparison.
type Announce struct {
	GrandmasterIdentity  ClockIdentity
	GrandmasterPriority1 uint8
	GrandmasterPriority2 uint8
	ClockClass           uint8
	ClockAccuracy        uint8
	StepsRemoved         uint16
}

// Compare implements the reduced IEEE 1588 data set comparison: lower
// priority1 wins, then lower clock class, then lower clock accuracy,
// then lower priority2, then fewer steps removed, then lower
// grandmaster identity as the final tiebreak.
func Compare(a, b Announce) int {
	switch {
	case a.GrandmasterPriority1 != b.GrandmasterPriority1:
		return cmpU8(a.GrandmasterPriority1, b.GrandmasterPriority1)
	case a.ClockClass != b.ClockClass:
		return cmpU8(a.ClockClass, b.ClockClass)
	case a.ClockAccuracy != b.ClockAccuracy:
		return cmpU8(a.ClockAccuracy, b.ClockAccuracy)
	case a.GrandmasterPriority2 != b.GrandmasterPriority2:
		return cmpU8(a.GrandmasterPriority2, b.GrandmasterPriority2)
	case a.StepsRemoved != b.StepsRemoved:
		return cmpU16(a.StepsRemoved, b.StepsRemoved)
	default:
		return bytes.Compare(a.GrandmasterIdentity[:], b.GrandmasterIdentity[:])
	}
}

func cmpU8(a, b uint8) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func cmpU16(a, b uint16) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// BestOf runs the reduced BMCA comparison over candidates (this
// port's local dataset plus every Announce heard on the segment) and
// returns the winning index. Nothing in this module calls it: the
// transport does not decode Announce messages, and the port role is
// set through Client.SetState.
func BestOf(candidates []Announce) int {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if Compare(candidates[i], candidates[best]) < 0 {
			best = i
		}
	}
	return best
}
