package stream

import "sync"

// lengthPrefixBytes is the size of the length header stored in the
// ring ahead of each committed packet.
const lengthPrefixBytes = 4

// PacketBuffer is a FIFO of length-prefixed packets over a fixed byte
// ring, shared between one producer and one consumer. A Finalize that
// would not fit in the ring is rejected atomically: the scratch area
// is simply discarded, so no torn packet is ever written. Use Writer
// and Reader to obtain the two single-purpose views; PacketBuffer
// itself exposes neither interface directly since the two sides
// disagree on what Abort means.
type PacketBuffer struct {
	mu sync.Mutex

	ring []byte
	head int // next byte to read
	tail int // next byte to write
	used int // committed bytes currently in the ring

	scratch    []byte
	scratchLen int
	scratchOK  bool

	curLen      int
	curRead     int
	haveCurOpen bool

	listener func()
}

// NewPacketBuffer allocates a PacketBuffer with the given ring
// capacity and maximum single-packet size.
func NewPacketBuffer(ringCapacity, maxPacketSize int) *PacketBuffer {
	return &PacketBuffer{
		ring:      make([]byte, ringCapacity),
		scratch:   make([]byte, maxPacketSize),
		scratchOK: true,
	}
}

// Writer returns the Writeable view of this buffer.
func (p *PacketBuffer) Writer() Writeable { return pbWriter{p} }

// Reader returns the Readable view of this buffer.
func (p *PacketBuffer) Reader() Readable { return pbReader{p} }

func (p *PacketBuffer) freeBytes() int { return len(p.ring) - p.used }

// ---- producer side ----

type pbWriter struct{ p *PacketBuffer }

func (w pbWriter) Ok() bool { return w.p.scratchOK }

func (w pbWriter) putBytes(b []byte) bool {
	p := w.p
	if !p.scratchOK {
		return false
	}
	if p.scratchLen+len(b) > len(p.scratch) {
		p.scratchOK = false
		return false
	}
	copy(p.scratch[p.scratchLen:], b)
	p.scratchLen += len(b)
	return true
}

func (w pbWriter) PutU8(v uint8) bool { return w.putBytes([]byte{v}) }

func (w pbWriter) PutU16BE(v uint16) bool {
	var b [2]byte
	putU16BE(b[:], v)
	return w.putBytes(b[:])
}

func (w pbWriter) PutU16LE(v uint16) bool {
	var b [2]byte
	putU16LE(b[:], v)
	return w.putBytes(b[:])
}

func (w pbWriter) PutU32BE(v uint32) bool {
	var b [4]byte
	putU32BE(b[:], v)
	return w.putBytes(b[:])
}

func (w pbWriter) PutU32LE(v uint32) bool {
	var b [4]byte
	putU32LE(b[:], v)
	return w.putBytes(b[:])
}

func (w pbWriter) PutU64BE(v uint64) bool {
	var b [8]byte
	putU64BE(b[:], v)
	return w.putBytes(b[:])
}

func (w pbWriter) PutU64LE(v uint64) bool {
	var b [8]byte
	putU64LE(b[:], v)
	return w.putBytes(b[:])
}

func (w pbWriter) PutBytes(b []byte) bool { return w.putBytes(b) }

// Finalize commits the staged packet to the ring atomically, or
// discards it if it does not fit (or a prior Put had already failed).
func (w pbWriter) Finalize() bool {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()

	ok := p.scratchOK && p.freeBytes() >= lengthPrefixBytes+p.scratchLen
	if ok {
		p.writeRing(p.scratchLen, p.scratch[:p.scratchLen])
		p.used += lengthPrefixBytes + p.scratchLen
		if fn := p.listener; fn != nil {
			fn()
		}
	}
	p.scratchLen = 0
	p.scratchOK = true
	return ok
}

func (w pbWriter) Abort() {
	w.p.scratchLen = 0
	w.p.scratchOK = true
}

func (p *PacketBuffer) writeRing(length int, payload []byte) {
	var hdr [lengthPrefixBytes]byte
	putU32BE(hdr[:], uint32(length))
	p.ringAppend(hdr[:])
	p.ringAppend(payload)
}

func (p *PacketBuffer) ringAppend(b []byte) {
	n := len(p.ring)
	for _, c := range b {
		p.ring[p.tail] = c
		p.tail = (p.tail + 1) % n
	}
}

func (p *PacketBuffer) ringPeekAt(offset, n int, dst []byte) {
	sz := len(p.ring)
	pos := (p.head + offset) % sz
	for i := 0; i < n; i++ {
		dst[i] = p.ring[pos]
		pos = (pos + 1) % sz
	}
}

// ---- consumer side ----

type pbReader struct{ p *PacketBuffer }

// openNext pulls the next packet's length header off the ring if one
// is queued and none is currently open.
func (p *PacketBuffer) openNext() {
	if p.haveCurOpen {
		return
	}
	if p.used < lengthPrefixBytes {
		return
	}
	var hdr [lengthPrefixBytes]byte
	p.ringPeekAt(0, lengthPrefixBytes, hdr[:])
	p.curLen = int(getU32BE(hdr[:]))
	p.curRead = 0
	p.haveCurOpen = true
	p.advanceHead(lengthPrefixBytes)
}

func (p *PacketBuffer) advanceHead(n int) {
	p.head = (p.head + n) % len(p.ring)
	p.used -= n
}

func (r pbReader) Available() int {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openNext()
	if !p.haveCurOpen {
		return 0
	}
	return p.curLen - p.curRead
}

func (r pbReader) ReadReady() bool {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openNext()
	return p.haveCurOpen && p.curRead < p.curLen
}

func (r pbReader) PeekBytes(n int, dst []byte) bool {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openNext()
	if !p.haveCurOpen || p.curRead+n > p.curLen {
		return false
	}
	// head already sits at the next unread byte (ReadBytes/Skip move it
	// forward as they consume), so the peek offset is always 0.
	p.ringPeekAt(0, n, dst[:n])
	return true
}

func (r pbReader) ReadBytes(n int, dst []byte) bool {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openNext()
	if !p.haveCurOpen || p.curRead+n > p.curLen {
		return false
	}
	p.ringPeekAt(0, n, dst[:n])
	p.advanceHead(n)
	p.curRead += n
	return true
}

func (r pbReader) readFixed(n int) ([]byte, bool) {
	var buf [8]byte
	if !r.ReadBytes(n, buf[:n]) {
		return nil, false
	}
	return buf[:n], true
}

func (r pbReader) ReadU8() (uint8, bool) {
	b, ok := r.readFixed(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (r pbReader) ReadU16BE() (uint16, bool) {
	b, ok := r.readFixed(2)
	if !ok {
		return 0, false
	}
	return getU16BE(b), true
}

func (r pbReader) ReadU16LE() (uint16, bool) {
	b, ok := r.readFixed(2)
	if !ok {
		return 0, false
	}
	return getU16LE(b), true
}

func (r pbReader) ReadU32BE() (uint32, bool) {
	b, ok := r.readFixed(4)
	if !ok {
		return 0, false
	}
	return getU32BE(b), true
}

func (r pbReader) ReadU32LE() (uint32, bool) {
	b, ok := r.readFixed(4)
	if !ok {
		return 0, false
	}
	return getU32LE(b), true
}

func (r pbReader) ReadU64BE() (uint64, bool) {
	b, ok := r.readFixed(8)
	if !ok {
		return 0, false
	}
	return getU64BE(b), true
}

func (r pbReader) ReadU64LE() (uint64, bool) {
	b, ok := r.readFixed(8)
	if !ok {
		return 0, false
	}
	return getU64LE(b), true
}

func (r pbReader) Skip(n int) bool {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openNext()
	if !p.haveCurOpen || p.curRead+n > p.curLen {
		return false
	}
	p.advanceHead(n)
	p.curRead += n
	return true
}

// Finalize releases whatever remains of the current packet (consuming
// unread trailing bytes) and advances to the next queued packet.
func (r pbReader) Finalize() bool {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.haveCurOpen {
		return false
	}
	remaining := p.curLen - p.curRead
	if remaining > 0 {
		p.advanceHead(remaining)
	}
	p.haveCurOpen = false
	return true
}

func (r pbReader) Abort() {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.haveCurOpen {
		return
	}
	remaining := p.curLen - p.curRead
	if remaining > 0 {
		p.advanceHead(remaining)
	}
	p.haveCurOpen = false
}

func (r pbReader) OnPacketAvailable(fn func()) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = fn
}

var _ Readable = pbReader{}
var _ Writeable = pbWriter{}
