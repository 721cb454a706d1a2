package arp_test

import (
	"testing"

	"github.com/satcat5/corenet/internal/netstack/arp"
	"github.com/satcat5/corenet/internal/netstack/eth"
	"github.com/satcat5/corenet/internal/stream"
	_ "github.com/satcat5/corenet/internal/testutil/testlog"
)

// capturingTx is a TxOpener that hands back one 1500-byte ArrayWrite
// per call and remembers the committed bytes of the last Finalize, so
// a test can inspect exactly the frame a protocol handler sent.
type capturingTx struct {
	last []byte
}

func (c *capturingTx) open() (stream.Writeable, bool) {
	buf := make([]byte, 1500)
	w := &recordingWrite{ArrayWrite: *stream.NewArrayWrite(buf), buf: buf, tx: c}
	return w, true
}

type recordingWrite struct {
	stream.ArrayWrite
	buf []byte
	tx  *capturingTx
}

func (r *recordingWrite) Finalize() bool {
	ok := r.ArrayWrite.Finalize()
	if ok {
		r.tx.last = append([]byte(nil), r.buf[:r.ArrayWrite.Len()]...)
	}
	return ok
}

func TestARPProbeThenResolve(t *testing.T) {
	localMAC := eth.Addr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	peerMAC := eth.Addr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	target := arp.IPv4{10, 0, 0, 42}

	tx := &capturingTx{}
	ethDispatch := eth.New(localMAC, tx.open)
	arpProto := arp.New(ethDispatch, arp.IPv4{10, 0, 0, 1}, 8)

	if _, ok := arpProto.Resolve(target); ok {
		t.Fatal("Resolve returned a MAC before any reply was seen")
	}

	frame := tx.last
	if frame == nil {
		t.Fatal("no ARP request frame was sent")
	}
	if eth.Addr(frame[0:6]) != eth.Broadcast {
		t.Errorf("request destination = %x, want broadcast", frame[0:6])
	}
	if eth.Addr(frame[6:12]) != localMAC {
		t.Errorf("request source = %x, want local MAC", frame[6:12])
	}
	arpPayload := frame[14:]
	if op := uint16(arpPayload[6])<<8 | uint16(arpPayload[7]); op != 1 {
		t.Errorf("request opcode = %d, want 1 (request)", op)
	}
	if senderIP := arpPayload[14:18]; string(senderIP) != string([]byte{10, 0, 0, 1}) {
		t.Errorf("request sender IP = %v, want 10.0.0.1", senderIP)
	}
	if targetIP := arpPayload[24:28]; string(targetIP) != string(target[:]) {
		t.Errorf("request target IP = %v, want %v", targetIP, target)
	}

	reply := buildARPReply(localMAC, peerMAC, target)
	r := stream.NewArrayRead(reply)
	if matched := ethDispatch.RxFrame(r); !matched {
		t.Fatal("ARP reply frame was not dispatched")
	}

	mac, ok := arpProto.Lookup(target)
	if !ok {
		t.Fatal("lookup after reply returned unresolved")
	}
	if mac != peerMAC {
		t.Errorf("resolved MAC = %x, want %x", mac, peerMAC)
	}
	if arpProto.CacheLen() != 1 {
		t.Errorf("CacheLen = %d, want 1", arpProto.CacheLen())
	}
}

// buildARPReply constructs a raw Ethernet frame carrying an ARP reply
// from peerMAC/target claiming to answer localMAC's probe.
func buildARPReply(localMAC, peerMAC eth.Addr, target arp.IPv4) []byte {
	frame := make([]byte, 0, 42)
	frame = append(frame, localMAC[:]...) // destination: us
	frame = append(frame, peerMAC[:]...)  // source: the resolved peer
	frame = append(frame, 0x08, 0x06)     // EtherType ARP
	frame = append(frame, 0x00, 0x01)     // hwtype ethernet
	frame = append(frame, 0x08, 0x00)     // protocol type IPv4
	frame = append(frame, 6, 4)           // hwlen, protolen
	frame = append(frame, 0x00, 0x02)     // opcode reply
	frame = append(frame, peerMAC[:]...)  // sender MAC
	frame = append(frame, target[:]...)   // sender IP (the resolved peer's)
	frame = append(frame, localMAC[:]...) // target MAC
	frame = append(frame, 10, 0, 0, 1)    // target IP (us)
	return frame
}
