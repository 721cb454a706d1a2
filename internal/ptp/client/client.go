// Package client implements the PTP port state machine and
// Sync/Follow-Up/Delay-Req/Delay-Resp measurement pipeline described
// in §4.K. Role selection (Master/Slave/Passive) may come from an
// externally computed BMCA result or a static configuration; both are
// accepted.
package client

import (
	"sync"

	"github.com/satcat5/corenet/internal/ptime"
)

// ClockIdentity is the 8-byte EUI-64-style PTP clock identifier.
type ClockIdentity [8]byte

// State is one PTP port state.
type State int

const (
	Disabled State = iota
	Listening
	Master
	Slave
	Passive
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Listening:
		return "listening"
	case Master:
		return "master"
	case Slave:
		return "slave"
	case Passive:
		return "passive"
	default:
		return "unknown"
	}
}

// Measurement is one completed Sync/Delay-Req exchange; see §3.
type Measurement struct {
	T1, T2, T3, T4 ptime.Time
	CorrectionSum  ptime.Time
	SequenceID     uint16
	Peer           ClockIdentity
}

// MeanPathDelay returns ((t2-t1)+(t4-t3))/2.
func (m Measurement) MeanPathDelay() ptime.Time {
	sum := m.T2.Sub(m.T1).Add(m.T4.Sub(m.T3))
	return halve(sum)
}

// OffsetFromMaster returns ((t2-t1)-(t4-t3))/2.
func (m Measurement) OffsetFromMaster() ptime.Time {
	diff := m.T2.Sub(m.T1).Sub(m.T4.Sub(m.T3))
	return halve(diff)
}

func halve(t ptime.Time) ptime.Time {
	return ptime.New(0, t.DeltaSubns()/2)
}

type pendingDelay struct {
	t1, t2, correctionSum ptime.Time
	peer                  ClockIdentity
	t3                    ptime.Time
}

// Client is one PTP port's state machine and measurement pipeline.
// Unicast L2/L3 variants differ only in the transport the caller uses
// to actually send/receive the wire messages; Client itself is
// transport-agnostic.
type Client struct {
	mu      sync.Mutex
	state   State
	id      ClockIdentity
	window  int
	onMeas  func(Measurement)

	haveSync bool
	haveT1   bool
	syncSeq  uint16
	t1, t2   ptime.Time
	corrSum  ptime.Time
	peer     ClockIdentity

	seqCounter uint16
	inflight   map[uint16]*pendingDelay
	order      []uint16

	tlvHandlers map[uint16]TLVHandler
}

// New builds a Client for clock identity id. window bounds the number
// of in-flight (Delay-Req sent, Delay-Resp pending) measurements
// tracked at once; the spec requires at least 8. onMeasurement is
// called synchronously once a measurement completes all four
// timestamps.
func New(id ClockIdentity, window int, onMeasurement func(Measurement)) *Client {
	if window < 8 {
		window = 8
	}
	return &Client{
		id:       id,
		window:   window,
		onMeas:   onMeasurement,
		inflight: make(map[uint16]*pendingDelay),
	}
}

// SetState transitions the port, e.g. after an external BMCA decision
// or static configuration.
func (c *Client) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RxSync records t2 for a Sync with sequence seq. correction is the
// Sync message's correctionField. The exchange is ready for
// SendDelayReq only once RxFollowUp supplies t1 (two-step operation).
func (c *Client) RxSync(seq uint16, t2, correction ptime.Time, peer ClockIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.haveSync = true
	c.haveT1 = false
	c.syncSeq = seq
	c.t2 = t2
	c.corrSum = correction
	c.peer = peer
}

// RxFollowUp records t1 from the Follow-Up completing the two-step
// Sync with sequence seq. A Follow-Up for any other sequence (the Sync
// having been missed, or arrived for a stale exchange) is discarded.
func (c *Client) RxFollowUp(seq uint16, t1, correction ptime.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveSync || c.syncSeq != seq {
		return
	}
	c.t1 = t1
	c.corrSum = c.corrSum.Add(correction)
	c.haveT1 = true
}

// SendDelayReq records t3 for a Delay-Req the caller has just
// transmitted, pairing it with the most recently completed Sync pair.
// Returns the sequence id to tag the wire message with, and ok=false
// if no Sync/Follow-Up pair is ready yet (the step-4-without-steps-1-2
// ordering constraint applies on the receive side too, but a caller
// that checks ok here never emits a request doomed to be discarded).
func (c *Client) SendDelayReq(t3 ptime.Time) (seq uint16, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveSync || !c.haveT1 {
		return 0, false
	}
	seq = c.seqCounter
	c.seqCounter++

	c.inflight[seq] = &pendingDelay{t1: c.t1, t2: c.t2, correctionSum: c.corrSum, peer: c.peer, t3: t3}
	c.order = append(c.order, seq)
	for len(c.order) > c.window {
		evict := c.order[0]
		c.order = c.order[1:]
		delete(c.inflight, evict)
	}

	c.haveSync = false
	c.haveT1 = false
	return seq, true
}

// RxDelayResp completes the measurement for seq with t4, the
// master's Delay-Req receive timestamp, and publishes it via
// onMeasurement. A Delay-Resp for a sequence with no matching
// in-flight Delay-Req (never sent, already completed, or evicted past
// the window) is discarded.
func (c *Client) RxDelayResp(seq uint16, t4 ptime.Time) {
	c.mu.Lock()
	pd, ok := c.inflight[seq]
	if ok {
		delete(c.inflight, seq)
		for i, s := range c.order {
			if s == seq {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.onMeas(Measurement{
		T1: pd.t1, T2: pd.t2, T3: pd.t3, T4: t4,
		CorrectionSum: pd.correctionSum, SequenceID: seq, Peer: pd.peer,
	})
}

// InFlight returns the number of Delay-Req/Delay-Resp exchanges
// currently awaiting completion.
func (c *Client) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}
