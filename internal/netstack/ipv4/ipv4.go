// Package ipv4 is the network-layer Dispatch: header validation,
// checksum, TTL enforcement, single-datagram fragment reassembly, and
// protocol-number demux to ICMP/UDP/user handlers.
package ipv4

import (
	"net"
	"sync"

	"github.com/satcat5/corenet/internal/netstack/arp"
	"github.com/satcat5/corenet/internal/netstack/dispatch"
	"github.com/satcat5/corenet/internal/netstack/eth"
	"github.com/satcat5/corenet/internal/netstack/route"
	"github.com/satcat5/corenet/internal/stream"
)

// EtherType is the IPv4 EtherType value, registered with eth.Dispatch.
const EtherType uint16 = 0x0800

// Protocol numbers this core names explicitly.
const (
	ProtoICMP uint8 = 1
	ProtoUDP  uint8 = 17
)

const minHeaderLen = 20

// Checksum computes the RFC 1071 Internet checksum (one's complement
// sum of 16-bit words, folded and complemented) over b.
func Checksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// PseudoHeaderSum returns the partial checksum accumulator for the
// IPv4 pseudo-header used by UDP/TCP checksums: src+dst addresses,
// zero byte, protocol, and the upper-layer length. Callers add their
// own segment's checksum contribution and fold the combined sum.
func PseudoHeaderSum(src, dst net.IP, protocol uint8, length uint16) uint32 {
	var sum uint32
	src4, dst4 := src.To4(), dst.To4()
	sum += uint32(src4[0])<<8 | uint32(src4[1])
	sum += uint32(src4[2])<<8 | uint32(src4[3])
	sum += uint32(dst4[0])<<8 | uint32(dst4[1])
	sum += uint32(dst4[2])<<8 | uint32(dst4[3])
	sum += uint32(protocol)
	sum += uint32(length)
	return sum
}

// FoldChecksum folds a 32-bit accumulator (e.g. PseudoHeaderSum plus a
// segment's word sum) down to the final one's-complement checksum.
func FoldChecksum(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// SumBytes accumulates b as 16-bit big-endian words for use with
// PseudoHeaderSum/FoldChecksum.
func SumBytes(b []byte) uint32 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	return sum
}

// Header is a parsed IPv4 header.
type Header struct {
	IHL            uint8
	TotalLen       uint16
	ID             uint16
	DontFragment   bool
	MoreFragments  bool
	FragmentOffset uint16
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	Src            net.IP
	Dst            net.IP
}

// Resolver resolves a next-hop IPv4 address to a link-layer Address,
// satisfied by *arp.Protocol composed with an eth.Dispatch.
type Resolver interface {
	Resolve(ip arp.IPv4) (eth.Addr, bool)
}

// Dispatch is the IPv4 layer.
type Dispatch struct {
	*dispatch.Dispatch[uint8]

	localIP  net.IP
	eth      *eth.Dispatch
	arp      Resolver
	routes   *route.Table
	forward  bool // decrement TTL and forward vs. consume as host
	ttlBase  uint8
	reassemb map[reassemblyKey]*reassemblyState

	mu          sync.Mutex
	curSrc      net.IP
	curDst      net.IP
	malformedCt uint64
}

type reassemblyKey struct {
	src [4]byte
	id  uint16
}

type reassemblyState struct {
	buf        []byte
	nextOffset uint16
	complete   bool
	protocol   uint8
}

// New builds an IPv4 Dispatch for localIP, transmitting through e and
// resolving next hops through resolver/routes. forward selects router
// behavior (decrement TTL, recompute checksum) vs host behavior
// (consume TTL==0 as a drop).
func New(localIP net.IP, e *eth.Dispatch, resolver Resolver, routes *route.Table, forward bool) *Dispatch {
	d := &Dispatch{
		Dispatch: dispatch.New[uint8](),
		localIP:  localIP.To4(),
		eth:      e,
		arp:      resolver,
		routes:   routes,
		forward:  forward,
		ttlBase:  64,
		reassemb: make(map[reassemblyKey]*reassemblyState),
	}
	e.Register(d)
	return d
}

func (d *Dispatch) Type() eth.Type { return eth.Type{EtherType: EtherType} }

// LocalIP returns this host's configured IPv4 address.
func (d *Dispatch) LocalIP() net.IP { return d.localIP }

// CurrentSrc/CurrentDst return the source/destination of the datagram
// currently being dispatched, valid only for the duration of the
// Protocol's FrameRcvd call, mirroring the reply-address latching
// pattern from §4.G.
func (d *Dispatch) CurrentSrc() net.IP { d.mu.Lock(); defer d.mu.Unlock(); return d.curSrc }
func (d *Dispatch) CurrentDst() net.IP { d.mu.Lock(); defer d.mu.Unlock(); return d.curDst }

// Malformed returns the count of datagrams dropped for a bad version,
// checksum, length, IHL, or TTL, plus forwarded datagrams that match
// no route.
func (d *Dispatch) Malformed() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.malformedCt
}

func (d *Dispatch) dropMalformed() {
	d.mu.Lock()
	d.malformedCt++
	d.mu.Unlock()
}

// FrameRcvd implements eth.Handler: it is invoked by eth.Dispatch with
// the Ethernet payload for EtherType 0x0800.
func (d *Dispatch) FrameRcvd(r *stream.LimitedRead, _ dispatch.Replier) {
	var first2 [2]byte
	if !r.PeekBytes(2, first2[:]) {
		d.dropMalformed()
		return
	}
	verIHL := first2[0]
	if verIHL>>4 != 4 {
		d.dropMalformed()
		return
	}
	ihl := int(verIHL&0x0F) * 4
	if ihl < minHeaderLen {
		d.dropMalformed()
		return
	}

	hdr := make([]byte, ihl)
	if !r.ReadBytes(ihl, hdr) {
		d.dropMalformed()
		return
	}
	if Checksum(hdr) != 0 {
		d.dropMalformed()
		return
	}

	totalLen := int(hdr[2])<<8 | int(hdr[3])
	id := uint16(hdr[4])<<8 | uint16(hdr[5])
	flagsFrag := uint16(hdr[6])<<8 | uint16(hdr[7])
	df := flagsFrag&0x4000 != 0
	mf := flagsFrag&0x2000 != 0
	fragOffset := (flagsFrag & 0x1FFF) * 8
	ttl := hdr[8]
	protocol := hdr[9]
	src := net.IP(append([]byte(nil), hdr[12:16]...))
	dst := net.IP(append([]byte(nil), hdr[16:20]...))

	payloadLen := totalLen - ihl
	if payloadLen < 0 || payloadLen > r.Available() {
		d.dropMalformed()
		return
	}
	if ttl == 0 {
		d.dropMalformed()
		return
	}

	if d.forward {
		d.forwardDatagram(hdr, ttl, dst, r, payloadLen)
		return
	}

	payload := stream.NewLimitedRead(r, payloadLen)

	if mf || fragOffset != 0 {
		complete, reassembled, proto := d.reassemble(src, id, fragOffset, mf, protocol, payload)
		if !complete {
			_ = df
			return
		}
		d.dispatchPayload(src, dst, proto, stream.NewArrayRead(reassembled))
		return
	}

	d.dispatchPayload(src, dst, protocol, payload)
}

func (d *Dispatch) reassemble(src net.IP, id uint16, offset uint16, more bool, protocol uint8, payload *stream.LimitedRead) (complete bool, data []byte, proto uint8) {
	var key reassemblyKey
	copy(key.src[:], src.To4())
	key.id = id

	n := payload.Available()
	buf := make([]byte, n)
	payload.ReadBytes(n, buf)

	st, ok := d.reassemb[key]
	if !ok {
		if offset != 0 {
			// first fragment missing; out-of-order start, drop silently.
			return false, nil, 0
		}
		st = &reassemblyState{protocol: protocol}
		d.reassemb[key] = st
	}
	if offset != uint16(len(st.buf)) {
		// out-of-order or overlapping: drop the whole datagram.
		delete(d.reassemb, key)
		return false, nil, 0
	}
	st.buf = append(st.buf, buf...)
	if !more {
		delete(d.reassemb, key)
		return true, st.buf, st.protocol
	}
	return false, nil, 0
}

func (d *Dispatch) dispatchPayload(src, dst net.IP, protocol uint8, payload stream.Readable) {
	d.mu.Lock()
	d.curSrc, d.curDst = src, dst
	d.mu.Unlock()

	lr, isLimited := payload.(*stream.LimitedRead)
	if !isLimited {
		lr = stream.NewLimitedRead(payload, payload.Available())
	}
	openReply := func() (stream.Writeable, bool) { return d.Open(src, protocol) }
	d.Dispatch.Dispatch(protocol, lr, openReply)
}

func (d *Dispatch) forwardDatagram(hdr []byte, ttl uint8, dst net.IP, r *stream.LimitedRead, payloadLen int) {
	rt, ok := d.routes.Lookup(dst)
	if !ok {
		d.dropMalformed()
		return
	}
	mac, resolved := d.arp.Resolve(arp.IPv4{rt.Gateway.To4()[0], rt.Gateway.To4()[1], rt.Gateway.To4()[2], rt.Gateway.To4()[3]})
	if !resolved {
		return
	}
	newHdr := append([]byte(nil), hdr...)
	newHdr[8] = ttl - 1
	newHdr[10], newHdr[11] = 0, 0
	binarySet16(newHdr[10:12], Checksum(newHdr))

	w, ok := d.eth.NewAddress(mac, EtherType).Open()
	if !ok {
		return
	}
	w.PutBytes(newHdr)
	buf := make([]byte, payloadLen)
	r.ReadBytes(payloadLen, buf)
	w.PutBytes(buf)
	w.Finalize()
}

func binarySet16(dst []byte, v uint16) {
	dst[0] = byte(v >> 8)
	dst[1] = byte(v)
}

// Open builds a Writeable addressed to dst for protocol. It buffers
// the payload; Finalize composes the IPv4 header, including its
// checksum, and commits header and payload together.
func (d *Dispatch) Open(dst net.IP, protocol uint8) (stream.Writeable, bool) {
	dst4 := dst.To4()
	resolveIP := dst4
	if rt, ok := d.routes.Lookup(dst); ok && rt.Gateway != nil && !rt.Gateway.IsUnspecified() {
		// Off-subnet: resolve the gateway's MAC, not the destination's —
		// the destination itself is unreachable at the link layer.
		resolveIP = rt.Gateway.To4()
	}
	mac, ok := d.arp.Resolve(arp.IPv4{resolveIP[0], resolveIP[1], resolveIP[2], resolveIP[3]})
	if !ok {
		return nil, false
	}
	w, ok := d.eth.NewAddress(mac, EtherType).Open()
	if !ok {
		return nil, false
	}
	return &headerWriter{w: w, src: d.localIP, dst: dst4, ttl: d.ttlBase, protocol: protocol}, true
}
