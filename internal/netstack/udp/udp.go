// Package udp is the transport-layer Dispatch: port-keyed demux to
// registered Sockets, each exposing a standard Readable/Writeable
// pair. Checksums are required on TX and verified on RX except for
// the RFC 768 zero-checksum exception.
package udp

import (
	"net"
	"sync"

	"github.com/satcat5/corenet/internal/netstack/dispatch"
	"github.com/satcat5/corenet/internal/netstack/ipv4"
	"github.com/satcat5/corenet/internal/stream"
)

const headerLen = 8

// Port is the UDP layer's demux key: local port, optionally narrowed
// by a connected remote (addr, port).
type Port struct {
	Local      uint16
	RemoteIP   [4]byte
	RemotePort uint16
	Connected  bool
}

// Dispatch is the UDP layer, registered as an ipv4 Protocol.
type Dispatch struct {
	*dispatch.Dispatch[Port]
	ip *ipv4.Dispatch

	mu          sync.Mutex
	badChecksum uint64
}

// New registers a UDP Dispatch on ip.
func New(ip *ipv4.Dispatch) *Dispatch {
	d := &Dispatch{Dispatch: dispatch.New[Port](), ip: ip}
	ip.Register(d)
	return d
}

func (d *Dispatch) Type() uint8 { return ipv4.ProtoUDP }

// BadChecksum counts datagrams dropped for a non-zero checksum
// mismatch.
func (d *Dispatch) BadChecksum() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.badChecksum
}

// FrameRcvd implements ipv4.Protocol: parses the UDP header, verifies
// the checksum (unless it is the RFC 768 zero sentinel), and
// redispatches by destination port, narrowing to a connected socket
// first if one is registered.
func (d *Dispatch) FrameRcvd(r *stream.LimitedRead, ipReply dispatch.Replier) {
	var hdr [headerLen]byte
	if !r.ReadBytes(headerLen, hdr[:]) {
		return
	}
	srcPort := uint16(hdr[0])<<8 | uint16(hdr[1])
	dstPort := uint16(hdr[2])<<8 | uint16(hdr[3])
	length := int(uint16(hdr[4])<<8 | uint16(hdr[5]))
	checksum := uint16(hdr[6])<<8 | uint16(hdr[7])

	payloadLen := length - headerLen
	if payloadLen < 0 || payloadLen > r.Available() {
		return
	}
	body := make([]byte, payloadLen)
	if !r.ReadBytes(payloadLen, body) {
		return
	}

	if checksum != 0 {
		src, dst := d.ip.CurrentSrc(), d.ip.CurrentDst()
		sum := ipv4.PseudoHeaderSum(src, dst, ipv4.ProtoUDP, uint16(length))
		segHdr := append([]byte(nil), hdr[:]...)
		segHdr[6], segHdr[7] = 0, 0
		sum += ipv4.SumBytes(segHdr)
		sum += ipv4.SumBytes(body)
		if ipv4.FoldChecksum(sum) != checksum {
			d.mu.Lock()
			d.badChecksum++
			d.mu.Unlock()
			return
		}
	}

	srcIP4 := to4(d.ip.CurrentSrc())
	connKey := Port{Local: dstPort, RemoteIP: srcIP4, RemotePort: srcPort, Connected: true}
	key := connKey
	if !d.Dispatch.Lookup(connKey) {
		key = Port{Local: dstPort}
	}
	d.Dispatch.Dispatch(key, stream.NewLimitedRead(stream.NewArrayRead(body), len(body)), d.replier(srcPort, dstPort))
}

func to4(ip net.IP) (out [4]byte) {
	b := ip.To4()
	copy(out[:], b)
	return out
}

func (d *Dispatch) replier(srcPort, dstPort uint16) func() (stream.Writeable, bool) {
	return func() (stream.Writeable, bool) {
		w, ok := d.ip.Open(d.ip.CurrentSrc(), ipv4.ProtoUDP)
		if !ok {
			return nil, false
		}
		return &headerWriter{w: w, localPort: dstPort, remotePort: srcPort, srcIP: d.ip.LocalIP(), dstIP: d.ip.CurrentSrc()}, true
	}
}

// Socket is a bound UDP endpoint: a Readable RX queue of datagrams and
// a TX builder addressed at one peer.
type Socket struct {
	udp        *Dispatch
	localPort  uint16
	remoteIP   net.IP
	remotePort uint16
	connected  bool
	rx         *stream.PacketBuffer
	rxw        stream.Writeable
}

const defaultRXRingBytes = 16 * 1024

// Listen binds an unconnected socket on localPort.
func Listen(d *Dispatch, localPort uint16, maxDatagramBytes int) *Socket {
	return newSocket(d, localPort, nil, 0, false, maxDatagramBytes)
}

// Connect binds a socket narrowed to one remote peer.
func Connect(d *Dispatch, localPort uint16, remoteIP net.IP, remotePort uint16, maxDatagramBytes int) *Socket {
	return newSocket(d, localPort, remoteIP, remotePort, true, maxDatagramBytes)
}

func newSocket(d *Dispatch, localPort uint16, remoteIP net.IP, remotePort uint16, connected bool, maxDatagramBytes int) *Socket {
	pb := stream.NewPacketBuffer(defaultRXRingBytes, maxDatagramBytes)
	s := &Socket{
		udp: d, localPort: localPort, remoteIP: remoteIP, remotePort: remotePort,
		connected: connected, rx: pb, rxw: pb.Writer(),
	}
	d.Register(s)
	return s
}

func (s *Socket) Type() Port {
	if !s.connected {
		return Port{Local: s.localPort}
	}
	return Port{Local: s.localPort, RemoteIP: to4(s.remoteIP), RemotePort: s.remotePort, Connected: true}
}

// RX returns the Readable surface for datagrams delivered to this
// socket.
func (s *Socket) RX() stream.Readable { return s.rx.Reader() }

// FrameRcvd copies the datagram body into the socket's RX buffer.
func (s *Socket) FrameRcvd(r *stream.LimitedRead, _ dispatch.Replier) {
	n := r.Available()
	buf := make([]byte, n)
	r.ReadBytes(n, buf)
	if s.rxw.PutBytes(buf) {
		s.rxw.Finalize()
	} else {
		s.rxw.Abort()
	}
}

// OpenTX builds a Writeable addressed at peer (remoteIP, remotePort),
// pre-filled with a UDP header whose checksum is completed and
// committed on Finalize.
func (s *Socket) OpenTX(peerIP net.IP, peerPort uint16) (stream.Writeable, bool) {
	w, ok := s.udp.ip.Open(peerIP, ipv4.ProtoUDP)
	if !ok {
		return nil, false
	}
	return &headerWriter{w: w, localPort: s.localPort, remotePort: peerPort, srcIP: s.udp.ip.LocalIP(), dstIP: peerIP}, true
}
