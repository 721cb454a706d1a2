// Package icmp implements the built-in ICMP echo responder as an
// ipv4 Protocol handler; unreachable/time-exceeded/redirect are
// optional per §4.I and are not implemented here.
package icmp

import (
	"github.com/satcat5/corenet/internal/netstack/dispatch"
	"github.com/satcat5/corenet/internal/netstack/ipv4"
	"github.com/satcat5/corenet/internal/stream"
)

const (
	typeEchoReply   uint8 = 0
	typeEchoRequest uint8 = 8
)

// Protocol is the ICMP handler registered on an ipv4.Dispatch.
type Protocol struct {
	ip *ipv4.Dispatch
}

// New registers an ICMP Protocol on ip.
func New(ip *ipv4.Dispatch) *Protocol {
	p := &Protocol{ip: ip}
	ip.Register(p)
	return p
}

func (p *Protocol) Type() uint8 { return ipv4.ProtoICMP }

// FrameRcvd answers Echo Request with Echo Reply, same identifier,
// sequence number, and payload, recomputing the ICMP checksum.
func (p *Protocol) FrameRcvd(r *stream.LimitedRead, reply dispatch.Replier) {
	var hdr [4]byte
	if !r.ReadBytes(4, hdr[:]) {
		return
	}
	msgType, code := hdr[0], hdr[1]
	if msgType != typeEchoRequest {
		return
	}

	rest := r.Available()
	body := make([]byte, rest)
	r.ReadBytes(rest, body)

	w, ok := reply.OpenReply()
	if !ok {
		return
	}
	msg := make([]byte, 4+len(body))
	msg[0] = typeEchoReply
	msg[1] = code
	copy(msg[4:], body)
	cs := ipv4.Checksum(msg)
	msg[2] = byte(cs >> 8)
	msg[3] = byte(cs)

	if !w.PutBytes(msg) {
		w.Abort()
		return
	}
	w.Finalize()
}
