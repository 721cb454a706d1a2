package configbus

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Transport is the wire channel a Remote backend sends commands over
// and reads replies from. Send and Recv operate on whole frames;
// fragmentation, if any, is the transport's concern.
type Transport interface {
	Send(frame []byte) error
	// Recv blocks for at most timeout waiting for one reply frame.
	Recv(timeout time.Duration) ([]byte, error)
}

type cmdOp uint8

const (
	opRead cmdOp = iota
	opWrite
	opReadArray
	opReadRepeat
	opWriteArray
	opWriteRepeat
)

// cmdHeaderLen is opcode(1) + seq(4) + addr(4) + count(2).
const cmdHeaderLen = 11

// replyHeaderLen is opcode(1) + seq(4) + status(1) + count(2).
const replyHeaderLen = 8

// Remote is the ConfigBus backend for a peripheral reachable only
// over a serialized command/reply exchange. Only one transaction is
// ever in flight: Exchange holds a lock across the full round trip,
// and a Recv timeout is surfaced as StatusTimeout with no automatic
// retry, leaving the retry policy to the caller.
type Remote struct {
	transport Transport
	timeout   time.Duration

	mu  sync.Mutex
	seq uint32
}

// NewRemote builds a Remote backend sending over transport, giving
// each transaction up to timeout to complete.
func NewRemote(transport Transport, timeout time.Duration) *Remote {
	return &Remote{transport: transport, timeout: timeout}
}

func (r *Remote) nextSeq() uint32 {
	r.seq++
	return r.seq
}

func encodeCmd(op cmdOp, seq, addr uint32, count int, vals []uint32) []byte {
	buf := make([]byte, cmdHeaderLen+4*len(vals))
	buf[0] = byte(op)
	binary.BigEndian.PutUint32(buf[1:5], seq)
	binary.BigEndian.PutUint32(buf[5:9], addr)
	binary.BigEndian.PutUint16(buf[9:11], uint16(count))
	for i, v := range vals {
		binary.BigEndian.PutUint32(buf[cmdHeaderLen+4*i:cmdHeaderLen+4*i+4], v)
	}
	return buf
}

func decodeReply(b []byte) (op cmdOp, seq uint32, status IoStatus, vals []uint32, err error) {
	if len(b) < replyHeaderLen {
		return 0, 0, 0, nil, fmt.Errorf("configbus: short reply (%d bytes)", len(b))
	}
	op = cmdOp(b[0])
	seq = binary.BigEndian.Uint32(b[1:5])
	status = IoStatus(b[5])
	count := int(binary.BigEndian.Uint16(b[6:8]))
	if len(b) != replyHeaderLen+4*count {
		return 0, 0, 0, nil, fmt.Errorf("configbus: reply count mismatch")
	}
	vals = make([]uint32, count)
	for i := range vals {
		vals[i] = binary.BigEndian.Uint32(b[replyHeaderLen+4*i : replyHeaderLen+4*i+4])
	}
	return op, seq, status, vals, nil
}

// exchange serializes one request/reply round trip. Holding mu for
// its whole body is what enforces the single-in-flight-transaction
// rule: a second caller blocks here rather than racing a reply onto
// the wrong request.
func (r *Remote) exchange(op cmdOp, addr uint32, count int, vals []uint32) ([]uint32, IoStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.nextSeq()
	req := encodeCmd(op, seq, addr, count, vals)
	if err := r.transport.Send(req); err != nil {
		return nil, StatusError
	}

	reply, err := r.transport.Recv(r.timeout)
	if err != nil {
		return nil, StatusTimeout
	}
	repOp, repSeq, status, repVals, err := decodeReply(reply)
	if err != nil || repOp != op || repSeq != seq {
		return nil, StatusError
	}
	if status != StatusOK {
		return nil, status
	}
	return repVals, StatusOK
}

func (r *Remote) Read(addr uint32) (uint32, IoStatus) {
	vals, st := r.exchange(opRead, addr, 1, nil)
	if st != StatusOK {
		return 0, st
	}
	return vals[0], StatusOK
}

func (r *Remote) Write(addr uint32, val uint32) IoStatus {
	_, st := r.exchange(opWrite, addr, 1, []uint32{val})
	return st
}

func (r *Remote) ReadArray(addr uint32, out []uint32) IoStatus {
	vals, st := r.exchange(opReadArray, addr, len(out), nil)
	if st != StatusOK {
		return st
	}
	copy(out, vals)
	return StatusOK
}

func (r *Remote) ReadRepeat(addr uint32, out []uint32) IoStatus {
	vals, st := r.exchange(opReadRepeat, addr, len(out), nil)
	if st != StatusOK {
		return st
	}
	copy(out, vals)
	return StatusOK
}

func (r *Remote) WriteArray(addr uint32, vals []uint32) IoStatus {
	_, st := r.exchange(opWriteArray, addr, len(vals), vals)
	return st
}

func (r *Remote) WriteRepeat(addr uint32, val uint32, n int) IoStatus {
	_, st := r.exchange(opWriteRepeat, addr, n, []uint32{val})
	return st
}
