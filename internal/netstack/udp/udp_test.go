package udp_test

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/satcat5/corenet/internal/netstack/arp"
	"github.com/satcat5/corenet/internal/netstack/dispatch"
	"github.com/satcat5/corenet/internal/netstack/eth"
	"github.com/satcat5/corenet/internal/netstack/ipv4"
	"github.com/satcat5/corenet/internal/netstack/route"
	"github.com/satcat5/corenet/internal/netstack/udp"
	"github.com/satcat5/corenet/internal/stream"
	_ "github.com/satcat5/corenet/internal/testutil/testlog"
)

type fakeResolver struct{ mac eth.Addr }

func (f fakeResolver) Resolve(arp.IPv4) (eth.Addr, bool) { return f.mac, true }

// echoHandler is a registered udp.Port Handler that bounces its
// payload straight back at the sender, standing in for an
// application's echo service on port 7.
type echoHandler struct{ port uint16 }

func (e echoHandler) Type() udp.Port { return udp.Port{Local: e.port} }

func (e echoHandler) FrameRcvd(r *stream.LimitedRead, reply dispatch.Replier) {
	n := r.Available()
	body := make([]byte, n)
	r.ReadBytes(n, body)
	w, ok := reply.OpenReply()
	if !ok {
		return
	}
	w.PutBytes(body)
	w.Finalize()
}

func checksumOK(hdr []byte) bool { return ipv4.Checksum(hdr) == 0 }

func TestUDPEcho(t *testing.T) {
	localMAC := eth.Addr{0, 0, 0, 0, 0, 1}
	remoteMAC := eth.Addr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	localIP := net.IPv4(10, 0, 0, 1).To4()
	remoteIP := net.IPv4(10, 0, 0, 5).To4()

	var tx [1600]byte
	var txWriter *stream.ArrayWrite
	e := eth.New(localMAC, func() (stream.Writeable, bool) {
		txWriter = stream.NewArrayWrite(tx[:])
		return txWriter, true
	})

	rt := route.New(4)
	ip := ipv4.New(localIP, e, fakeResolver{remoteMAC}, rt, false)
	u := udp.New(ip)
	u.Register(echoHandler{port: 7})

	frame := buildUDPFrame(t, remoteMAC, localMAC, remoteIP, localIP, 4000, 7, []byte("HELLO"))
	if !e.RxFrame(stream.NewArrayRead(frame)) {
		t.Fatal("RxFrame: no handler matched")
	}
	if txWriter == nil {
		t.Fatal("no reply frame was sent")
	}

	out := tx[:txWriter.Len()]
	// Ethernet header.
	if eth.Addr(asAddr(out[0:6])) != remoteMAC {
		t.Errorf("reply dst MAC = %x, want %x", out[0:6], remoteMAC)
	}
	if eth.Addr(asAddr(out[6:12])) != localMAC {
		t.Errorf("reply src MAC = %x, want %x", out[6:12], localMAC)
	}
	if binary.BigEndian.Uint16(out[12:14]) != ipv4.EtherType {
		t.Fatalf("reply EtherType = %#x, want %#x", binary.BigEndian.Uint16(out[12:14]), ipv4.EtherType)
	}

	ipHdr := out[14:34]
	if !checksumOK(ipHdr) {
		t.Error("reply IPv4 checksum invalid")
	}
	if !net.IP(ipHdr[12:16]).Equal(localIP) {
		t.Errorf("reply IP src = %v, want %v", net.IP(ipHdr[12:16]), localIP)
	}
	if !net.IP(ipHdr[16:20]).Equal(remoteIP) {
		t.Errorf("reply IP dst = %v, want %v", net.IP(ipHdr[16:20]), remoteIP)
	}

	udpHdr := out[34:42]
	if binary.BigEndian.Uint16(udpHdr[0:2]) != 7 {
		t.Errorf("reply UDP src port = %d, want 7", binary.BigEndian.Uint16(udpHdr[0:2]))
	}
	if binary.BigEndian.Uint16(udpHdr[2:4]) != 4000 {
		t.Errorf("reply UDP dst port = %d, want 4000", binary.BigEndian.Uint16(udpHdr[2:4]))
	}
	payload := out[42:47]
	if string(payload) != "HELLO" {
		t.Errorf("reply payload = %q, want HELLO", payload)
	}

	sum := ipv4.PseudoHeaderSum(net.IP(ipHdr[12:16]), net.IP(ipHdr[16:20]), ipv4.ProtoUDP, uint16(len(udpHdr)+len(payload)))
	sum += ipv4.SumBytes(udpHdr)
	sum += ipv4.SumBytes(payload)
	if ipv4.FoldChecksum(sum) != 0 {
		t.Error("reply UDP checksum invalid")
	}
}

func TestUDPListenDoesNotCountAsDropped(t *testing.T) {
	localMAC := eth.Addr{0, 0, 0, 0, 0, 1}
	remoteMAC := eth.Addr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	localIP := net.IPv4(10, 0, 0, 1).To4()
	remoteIP := net.IPv4(10, 0, 0, 5).To4()

	e := eth.New(localMAC, func() (stream.Writeable, bool) { return nil, false })
	rt := route.New(4)
	ip := ipv4.New(localIP, e, fakeResolver{remoteMAC}, rt, false)
	u := udp.New(ip)
	sock := udp.Listen(u, 7, 256)

	// No connected socket is registered for this (remote addr, port);
	// the datagram must land on the unconnected Listen socket without
	// the connected-key lookup miss counting as a drop.
	frame := buildUDPFrame(t, remoteMAC, localMAC, remoteIP, localIP, 4000, 7, []byte("HELLO"))
	if !e.RxFrame(stream.NewArrayRead(frame)) {
		t.Fatal("RxFrame: no handler matched")
	}
	if got := u.Dropped(); got != 0 {
		t.Errorf("Dropped() = %d, want 0 for a datagram delivered to a Listen socket", got)
	}
	if !sock.RX().ReadReady() {
		t.Fatal("expected the datagram queued on the listening socket")
	}
}

func asAddr(b []byte) [6]byte {
	var a [6]byte
	copy(a[:], b)
	return a
}

func buildUDPFrame(t *testing.T, srcMAC, dstMAC eth.Addr, srcIP, dstIP net.IP, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	udpLen := 8 + len(payload)
	udpHdr := make([]byte, 8)
	binary.BigEndian.PutUint16(udpHdr[0:2], srcPort)
	binary.BigEndian.PutUint16(udpHdr[2:4], dstPort)
	binary.BigEndian.PutUint16(udpHdr[4:6], uint16(udpLen))
	sum := ipv4.PseudoHeaderSum(srcIP, dstIP, ipv4.ProtoUDP, uint16(udpLen))
	sum += ipv4.SumBytes(udpHdr)
	sum += ipv4.SumBytes(payload)
	binary.BigEndian.PutUint16(udpHdr[6:8], ipv4.FoldChecksum(sum))

	ipHdr := make([]byte, 20)
	ipHdr[0] = 0x45
	binary.BigEndian.PutUint16(ipHdr[2:4], uint16(20+udpLen))
	ipHdr[8] = 64
	ipHdr[9] = ipv4.ProtoUDP
	copy(ipHdr[12:16], srcIP.To4())
	copy(ipHdr[16:20], dstIP.To4())
	binary.BigEndian.PutUint16(ipHdr[10:12], ipv4.Checksum(ipHdr))

	frame := make([]byte, 0, 14+len(ipHdr)+len(udpHdr)+len(payload))
	frame = append(frame, dstMAC[:]...)
	frame = append(frame, srcMAC[:]...)
	var etb [2]byte
	binary.BigEndian.PutUint16(etb[:], ipv4.EtherType)
	frame = append(frame, etb[:]...)
	frame = append(frame, ipHdr...)
	frame = append(frame, udpHdr...)
	frame = append(frame, payload...)
	return frame
}
