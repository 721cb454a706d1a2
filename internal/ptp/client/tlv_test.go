package client

import (
	"encoding/binary"
	"testing"

	_ "github.com/satcat5/corenet/internal/testutil/testlog"
)

func encodeTLV(typ uint16, value []byte) []byte {
	buf := make([]byte, tlvHeaderLen+len(value))
	binary.BigEndian.PutUint16(buf[0:2], typ)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(value)))
	copy(buf[tlvHeaderLen:], value)
	return buf
}

func TestHandleTLVsSkipsUnknownType(t *testing.T) {
	c := New(ClockIdentity{1}, 8, func(Measurement) {})

	var got []byte
	c.RegisterTLV(2, func(peer ClockIdentity, value []byte) {
		if peer != (ClockIdentity{9}) {
			t.Errorf("handler peer = %v, want {9}", peer)
		}
		got = value
	})

	// An unrecognized type-1 TLV precedes the registered type-2 TLV;
	// the handler for type 2 must still fire with the right value once
	// the unknown one has been skipped by its own length field.
	body := append(encodeTLV(1, []byte{0xAA, 0xAA, 0xAA, 0xAA}), encodeTLV(2, []byte("payload"))...)
	c.HandleTLVs(ClockIdentity{9}, body)

	if string(got) != "payload" {
		t.Fatalf("handler value = %q, want %q", got, "payload")
	}
}

func TestHandleTLVsNoHandlerIsNoop(t *testing.T) {
	c := New(ClockIdentity{1}, 8, func(Measurement) {})
	body := encodeTLV(5, []byte("ignored"))
	// Must not panic with no handler registered for type 5.
	c.HandleTLVs(ClockIdentity{9}, body)
}

func TestDecodeTLVsStopsAtTruncatedValue(t *testing.T) {
	full := encodeTLV(1, []byte("abcd"))
	truncated := full[:tlvHeaderLen+2] // header claims 4 bytes, only 2 present

	tlvs := DecodeTLVs(truncated)
	if len(tlvs) != 0 {
		t.Fatalf("DecodeTLVs(truncated) = %v, want none", tlvs)
	}
}

func TestDecodeTLVsMultiple(t *testing.T) {
	body := append(encodeTLV(1, []byte("a")), encodeTLV(2, []byte("bb"))...)
	tlvs := DecodeTLVs(body)
	if len(tlvs) != 2 {
		t.Fatalf("DecodeTLVs returned %d TLVs, want 2", len(tlvs))
	}
	if tlvs[0].Type != 1 || string(tlvs[0].Value) != "a" {
		t.Errorf("tlvs[0] = %+v", tlvs[0])
	}
	if tlvs[1].Type != 2 || string(tlvs[1].Value) != "bb" {
		t.Errorf("tlvs[1] = %+v", tlvs[1])
	}
}
