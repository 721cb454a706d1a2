// Package transport carries PTP event/general messages over UDP, per
// the IEEE 1588 Annex D unicast mapping: port 319 for time-critical
// event messages (Sync, Delay-Req), port 320 for general messages
// (Follow-Up, Delay-Resp, Announce). It decodes just enough of the
// common PTPv2 header and message bodies to drive an
// internal/ptp/client.Client; everything else about the message is
// ignored.
package transport

import (
	"net"

	"github.com/rs/zerolog/log"

	"github.com/satcat5/corenet/internal/netstack/udp"
	"github.com/satcat5/corenet/internal/ptime"
	"github.com/satcat5/corenet/internal/ptp/client"
	"github.com/satcat5/corenet/internal/stream"
)

// EventPort and GeneralPort are the IEEE 1588 well-known UDP ports.
const (
	EventPort   uint16 = 319
	GeneralPort uint16 = 320
)

const (
	msgSync      = 0x0
	msgDelayReq  = 0x1
	msgFollowUp  = 0x8
	msgDelayResp = 0x9
	msgAnnounce  = 0xB
)

const commonHeaderLen = 34

// UDPTransport binds the event and general sockets and feeds parsed
// messages into a client.Client. It is driven by Poll, registered as
// an Always task on the scheduler.
type UDPTransport struct {
	c       *client.Client
	event   *udp.Socket
	general *udp.Socket
	peer    net.IP
}

// New binds the event/general sockets on d and wires rx messages into
// c. peer is the unicast PTP peer (master or slave, depending on
// role), supplied by the caller. This type carries PTP over UDP only;
// there is no Layer-2 transport.
func New(d *udp.Dispatch, c *client.Client, peer net.IP) *UDPTransport {
	return &UDPTransport{
		c:       c,
		event:   udp.Listen(d, EventPort, 256),
		general: udp.Listen(d, GeneralPort, 256),
		peer:    peer,
	}
}

// Poll drains both sockets and dispatches every complete datagram.
func (t *UDPTransport) Poll() {
	drain(t.event.RX(), t.handle)
	drain(t.general.RX(), t.handle)
}

func drain(r stream.Readable, handle func([]byte)) {
	for r.ReadReady() {
		n := r.Available()
		buf := make([]byte, n)
		if !r.ReadBytes(n, buf) {
			r.Abort()
			return
		}
		r.Finalize()
		handle(buf)
	}
}

func (t *UDPTransport) handle(msg []byte) {
	if len(msg) < commonHeaderLen {
		return
	}
	msgType := msg[0] & 0x0F
	correction := ptime.DecodeCorrection(msg[8:16])
	var clockID [8]byte
	copy(clockID[:], msg[20:28])
	seq := beU16(msg[30:32])
	body := msg[commonHeaderLen:]

	switch msgType {
	case msgSync:
		if len(body) < ptime.TimestampWireLen {
			return
		}
		ts := ptime.DecodeTimestamp(body)
		t.c.RxSync(seq, ts, ptime.New(0, correction), client.ClockIdentity(clockID))
		t.c.HandleTLVs(client.ClockIdentity(clockID), body[ptime.TimestampWireLen:])
	case msgFollowUp:
		if len(body) < ptime.TimestampWireLen {
			return
		}
		ts := ptime.DecodeTimestamp(body)
		t.c.RxFollowUp(seq, ts, ptime.New(0, correction))
		t.c.HandleTLVs(client.ClockIdentity(clockID), body[ptime.TimestampWireLen:])
	case msgDelayResp:
		if len(body) < ptime.TimestampWireLen {
			return
		}
		ts := ptime.DecodeTimestamp(body)
		t.c.RxDelayResp(seq, ts)
		t.c.HandleTLVs(client.ClockIdentity(clockID), body[ptime.TimestampWireLen:])
	case msgAnnounce:
		// BMCA comparison needs clock-quality fields this transport
		// does not parse; Announce messages are dropped.
	default:
		log.Debug().Uint8("ptp_msg_type", msgType).Msg("unhandled PTP message type")
	}
}

// SendDelayReq transmits a Delay-Req to the peer at t3 and pairs it
// with the most recent Sync/Follow-Up via the Client, returning
// whether a request was actually ready to send.
func (t *UDPTransport) SendDelayReq(localIdentity client.ClockIdentity, t3 ptime.Time) bool {
	seq, ok := t.c.SendDelayReq(t3)
	if !ok {
		return false
	}
	w, ok := t.event.OpenTX(t.peer, EventPort)
	if !ok {
		return false
	}
	writeHeader(w, msgDelayReq, seq, localIdentity)
	writeTimestampBody(w, t3)
	return w.Finalize()
}

func writeHeader(w stream.Writeable, msgType uint8, seq uint16, clockID client.ClockIdentity) {
	w.PutU8(msgType)
	w.PutU8(0x02) // versionPTP
	w.PutU16BE(commonHeaderLen + ptime.TimestampWireLen)
	w.PutU8(0)    // domainNumber
	w.PutU8(0)    // reserved
	w.PutU16BE(0) // flags
	var corr [ptime.CorrectionWireLen]byte
	w.PutBytes(corr[:])
	w.PutU32BE(0) // reserved
	w.PutBytes(clockID[:])
	w.PutU16BE(0) // portNumber
	w.PutU16BE(seq)
	w.PutU8(0) // controlField
	w.PutU8(0) // logMessageInterval
}

func writeTimestampBody(w stream.Writeable, ts ptime.Time) {
	var buf [ptime.TimestampWireLen]byte
	ptime.EncodeTimestamp(ts, buf[:])
	w.PutBytes(buf[:])
}

func beU16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
