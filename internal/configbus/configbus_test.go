package configbus

import (
	"errors"
	"testing"
	"time"

	_ "github.com/satcat5/corenet/internal/testutil/testlog"
)

func TestAddrCombinesDeviceAndRegister(t *testing.T) {
	if got := Addr(2, 5); got != 2*RegistersPerDevice+5 {
		t.Fatalf("Addr(2,5) = %d", got)
	}
}

func TestMmapReadWriteRoundTrip(t *testing.T) {
	m := NewMmap(16)
	if st := m.Write(4, 0xABCD); st != StatusOK {
		t.Fatalf("write status = %v", st)
	}
	v, st := m.Read(4)
	if st != StatusOK || v != 0xABCD {
		t.Fatalf("read = %x,%v want ABCD,OK", v, st)
	}
}

func TestMmapOutOfRangeIsBadAddress(t *testing.T) {
	m := NewMmap(4)
	if _, st := m.Read(10); st != StatusCmdError {
		t.Fatalf("status = %v, want CmdError", st)
	}
}

func TestMmapBulkOps(t *testing.T) {
	m := NewMmap(16)
	m.WriteArray(0, []uint32{1, 2, 3})
	out := make([]uint32, 3)
	m.ReadArray(0, out)
	if out[0] != 1 || out[1] != 2 || out[2] != 3 {
		t.Fatalf("ReadArray = %v", out)
	}

	m.WriteRepeat(10, 7, 3)
	rep := make([]uint32, 3)
	m.ReadRepeat(10, rep)
	if rep[0] != 7 || rep[1] != 7 || rep[2] != 7 {
		t.Fatalf("ReadRepeat = %v", rep)
	}
}

// loopbackTransport answers Read/Write commands against its own Mmap,
// modeling a remote peripheral for testing Remote without real I/O.
type loopbackTransport struct {
	mem   *Mmap
	reply []byte
}

func (lt *loopbackTransport) Send(frame []byte) error {
	op, seq, addr, count, vals, err := decodeCmdForTest(frame)
	if err != nil {
		return err
	}
	switch op {
	case opRead:
		v, st := lt.mem.Read(addr)
		lt.reply = encodeReplyForTest(op, seq, st, []uint32{v})
	case opWrite:
		st := lt.mem.Write(addr, vals[0])
		lt.reply = encodeReplyForTest(op, seq, st, nil)
	case opReadArray:
		out := make([]uint32, count)
		st := lt.mem.ReadArray(addr, out)
		lt.reply = encodeReplyForTest(op, seq, st, out)
	}
	return nil
}

func (lt *loopbackTransport) Recv(timeout time.Duration) ([]byte, error) {
	return lt.reply, nil
}

func decodeCmdForTest(b []byte) (op cmdOp, seq, addr uint32, count int, vals []uint32, err error) {
	op = cmdOp(b[0])
	seq = uint32FromBE(b[1:5])
	addr = uint32FromBE(b[5:9])
	count = int(uint16FromBE(b[9:11]))
	n := (len(b) - cmdHeaderLen) / 4
	vals = make([]uint32, n)
	for i := range vals {
		vals[i] = uint32FromBE(b[cmdHeaderLen+4*i : cmdHeaderLen+4*i+4])
	}
	return
}

func encodeReplyForTest(op cmdOp, seq uint32, status IoStatus, vals []uint32) []byte {
	buf := make([]byte, replyHeaderLen+4*len(vals))
	buf[0] = byte(op)
	putU32BE(buf[1:5], seq)
	buf[5] = byte(status)
	putU16BE(buf[6:8], uint16(len(vals)))
	for i, v := range vals {
		putU32BE(buf[replyHeaderLen+4*i:replyHeaderLen+4*i+4], v)
	}
	return buf
}

func TestRemoteReadWriteRoundTrip(t *testing.T) {
	mem := NewMmap(16)
	mem.Write(3, 0x1234)
	lt := &loopbackTransport{mem: mem}
	r := NewRemote(lt, time.Second)

	v, st := r.Read(3)
	if st != StatusOK || v != 0x1234 {
		t.Fatalf("read = %x,%v want 1234,OK", v, st)
	}

	if st := r.Write(5, 0x99); st != StatusOK {
		t.Fatalf("write status = %v", st)
	}
	v, st = r.Read(5)
	if st != StatusOK || v != 0x99 {
		t.Fatalf("read after write = %x,%v", v, st)
	}
}

func TestRemoteBulkRead(t *testing.T) {
	mem := NewMmap(16)
	mem.WriteArray(0, []uint32{10, 20, 30})
	lt := &loopbackTransport{mem: mem}
	r := NewRemote(lt, time.Second)

	out := make([]uint32, 3)
	if st := r.ReadArray(0, out); st != StatusOK {
		t.Fatalf("status = %v", st)
	}
	if out[0] != 10 || out[1] != 20 || out[2] != 30 {
		t.Fatalf("ReadArray = %v", out)
	}
}

type timeoutTransport struct{ sends int }

func (tt *timeoutTransport) Send(frame []byte) error { tt.sends++; return nil }
func (*timeoutTransport) Recv(timeout time.Duration) ([]byte, error) {
	return nil, errors.New("no reply")
}

func TestRemoteTimeoutDoesNotAutoRetry(t *testing.T) {
	tt := &timeoutTransport{}
	r := NewRemote(tt, time.Millisecond)
	if _, st := r.Read(0); st != StatusTimeout {
		t.Fatalf("status = %v, want Timeout", st)
	}
	if tt.sends != 1 {
		t.Fatalf("Read sent %d commands, want 1: it should not retry internally", tt.sends)
	}
}

func uint32FromBE(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
func uint16FromBE(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
func putU32BE(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
func putU16BE(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
