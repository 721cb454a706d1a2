package stream

import (
	"testing"

	_ "github.com/satcat5/corenet/internal/testutil/testlog"
)

func TestMultiBufferFansOutToAllPorts(t *testing.T) {
	mb := NewMultiBuffer(4, 32)
	w := mb.Writer()
	a := mb.AttachReader(0)
	b := mb.AttachReader(1)

	w.PutBytes([]byte("fanout"))
	if !w.Finalize() {
		t.Fatalf("finalize failed")
	}

	for name, r := range map[string]Readable{"a": a, "b": b} {
		if !r.ReadReady() {
			t.Fatalf("%s: expected packet ready", name)
		}
		buf := make([]byte, 6)
		if !r.ReadBytes(6, buf) || string(buf) != "fanout" {
			t.Fatalf("%s: unexpected payload %q", name, buf)
		}
		r.Finalize()
	}
}

func TestMultiBufferSlotFreedOnlyAfterAllPortsConsume(t *testing.T) {
	mb := NewMultiBuffer(1, 32)
	w := mb.Writer()
	a := mb.AttachReader(0)
	b := mb.AttachReader(0)

	w.PutBytes([]byte("x"))
	if !w.Finalize() {
		t.Fatalf("finalize failed")
	}

	// Second packet should be rejected: the single slot is still held
	// by both unconsumed ports.
	w.PutBytes([]byte("y"))
	if w.Finalize() {
		t.Fatalf("expected finalize to fail while slot is still referenced")
	}

	buf := make([]byte, 1)
	a.ReadBytes(1, buf)
	a.Finalize()

	// b has not consumed yet, slot still held.
	w.PutBytes([]byte("y"))
	if w.Finalize() {
		t.Fatalf("expected finalize to still fail with one port outstanding")
	}

	b.ReadBytes(1, buf)
	b.Finalize()

	w.PutBytes([]byte("y"))
	if !w.Finalize() {
		t.Fatalf("expected finalize to succeed once all ports consumed")
	}
}

func TestArrayReadWriteRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	aw := NewArrayWrite(buf)
	aw.PutU16BE(0xBEEF)
	aw.PutBytes([]byte("ok"))
	if !aw.Finalize() {
		t.Fatalf("finalize failed")
	}

	ar := NewArrayRead(buf[:aw.Len()])
	v, ok := ar.ReadU16BE()
	if !ok || v != 0xBEEF {
		t.Fatalf("ReadU16BE = %x,%v want BEEF,true", v, ok)
	}
	rest := make([]byte, 2)
	if !ar.ReadBytes(2, rest) || string(rest) != "ok" {
		t.Fatalf("unexpected tail %q", rest)
	}
	if ar.ReadReady() {
		t.Fatalf("expected exhausted reader")
	}
}
