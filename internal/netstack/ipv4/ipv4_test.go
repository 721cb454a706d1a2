package ipv4_test

import (
	"net"
	"testing"

	"github.com/satcat5/corenet/internal/netstack/arp"
	"github.com/satcat5/corenet/internal/netstack/eth"
	"github.com/satcat5/corenet/internal/netstack/ipv4"
	"github.com/satcat5/corenet/internal/netstack/route"
	"github.com/satcat5/corenet/internal/stream"
	_ "github.com/satcat5/corenet/internal/testutil/testlog"
)

// recordingResolver remembers every IP it was asked to resolve and
// always answers with mac, standing in for a populated ARP cache.
type recordingResolver struct {
	mac   eth.Addr
	asked []arp.IPv4
}

func (r *recordingResolver) Resolve(ip arp.IPv4) (eth.Addr, bool) {
	r.asked = append(r.asked, ip)
	return r.mac, true
}

func fakeTx() (stream.Writeable, bool) {
	var buf [64]byte
	return stream.NewArrayWrite(buf[:]), true
}

func TestOpenResolvesGatewayForOffSubnetDestination(t *testing.T) {
	localIP := net.IPv4(10, 0, 0, 1).To4()
	gatewayIP := net.IPv4(10, 0, 0, 254).To4()
	farIP := net.IPv4(192, 168, 9, 9).To4()
	gatewayMAC := eth.Addr{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}

	resolver := &recordingResolver{mac: gatewayMAC}
	rt := route.New(4)
	_, farNet, _ := net.ParseCIDR("192.168.9.0/24")
	if err := rt.Add(route.Route{Dest: *farNet, Gateway: gatewayIP}); err != nil {
		t.Fatalf("Add route: %v", err)
	}

	e := eth.New(eth.Addr{0, 0, 0, 0, 0, 1}, fakeTx)
	ip := ipv4.New(localIP, e, resolver, rt, false)

	if _, ok := ip.Open(farIP, ipv4.ProtoUDP); !ok {
		t.Fatal("Open: want ok")
	}
	if len(resolver.asked) != 1 {
		t.Fatalf("resolver asked %d times, want 1", len(resolver.asked))
	}
	want := arp.IPv4{gatewayIP[0], gatewayIP[1], gatewayIP[2], gatewayIP[3]}
	if resolver.asked[0] != want {
		t.Errorf("resolver asked for %v, want the gateway %v", resolver.asked[0], want)
	}
}

func TestOpenResolvesDestinationDirectlyOnSubnet(t *testing.T) {
	localIP := net.IPv4(10, 0, 0, 1).To4()
	peerIP := net.IPv4(10, 0, 0, 5).To4()
	peerMAC := eth.Addr{0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb}

	resolver := &recordingResolver{mac: peerMAC}
	rt := route.New(4)
	_, localNet, _ := net.ParseCIDR("10.0.0.0/24")
	// Directly-connected route: no gateway.
	if err := rt.Add(route.Route{Dest: *localNet}); err != nil {
		t.Fatalf("Add route: %v", err)
	}

	e := eth.New(eth.Addr{0, 0, 0, 0, 0, 1}, fakeTx)
	ip := ipv4.New(localIP, e, resolver, rt, false)

	if _, ok := ip.Open(peerIP, ipv4.ProtoUDP); !ok {
		t.Fatal("Open: want ok")
	}
	if len(resolver.asked) != 1 {
		t.Fatalf("resolver asked %d times, want 1", len(resolver.asked))
	}
	want := arp.IPv4{peerIP[0], peerIP[1], peerIP[2], peerIP[3]}
	if resolver.asked[0] != want {
		t.Errorf("resolver asked for %v, want the destination %v", resolver.asked[0], want)
	}
}

func TestOpenResolvesDestinationDirectlyWithEmptyRouteTable(t *testing.T) {
	localIP := net.IPv4(10, 0, 0, 1).To4()
	peerIP := net.IPv4(10, 0, 0, 5).To4()
	peerMAC := eth.Addr{0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc}

	resolver := &recordingResolver{mac: peerMAC}
	rt := route.New(4)

	e := eth.New(eth.Addr{0, 0, 0, 0, 0, 1}, fakeTx)
	ip := ipv4.New(localIP, e, resolver, rt, false)

	if _, ok := ip.Open(peerIP, ipv4.ProtoUDP); !ok {
		t.Fatal("Open: want ok")
	}
	want := arp.IPv4{peerIP[0], peerIP[1], peerIP[2], peerIP[3]}
	if resolver.asked[0] != want {
		t.Errorf("resolver asked for %v, want the destination %v", resolver.asked[0], want)
	}
}
