package stream

import "sync"

type mbEntry struct {
	data []byte
	refs int
}

// MultiBuffer is a single-producer, multi-consumer packet fan-out.
// Each attached port gets its own read cursor over the same committed
// packet bytes (no per-reader copy); a slot is only reusable once
// every attached port has finalized past it. Ports are woken in
// ascending priority order so higher-priority readers observe new
// packets first.
type MultiBuffer struct {
	mu      sync.Mutex
	slots   []*mbEntry
	nextSeq int // sequence number of the next packet to be written
	ports   []*mbPort

	scratch    []byte
	scratchLen int
	scratchOK  bool
}

// NewMultiBuffer allocates a fan-out buffer with room for
// queueDepth in-flight packets of up to maxPacketSize bytes.
func NewMultiBuffer(queueDepth, maxPacketSize int) *MultiBuffer {
	return &MultiBuffer{
		slots:     make([]*mbEntry, queueDepth),
		scratch:   make([]byte, maxPacketSize),
		scratchOK: true,
	}
}

// Writer returns the single Writeable producer side.
func (m *MultiBuffer) Writer() Writeable { return mbWriter{m} }

// AttachReader registers a new fan-out port. Lower priority values are
// woken first when a packet commits.
func (m *MultiBuffer) AttachReader(priority int) Readable {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &mbPort{m: m, priority: priority, readSeq: m.nextSeq}
	m.ports = append(m.ports, p)
	// keep ports sorted ascending by priority for wake order
	for i := len(m.ports) - 1; i > 0 && m.ports[i].priority < m.ports[i-1].priority; i-- {
		m.ports[i], m.ports[i-1] = m.ports[i-1], m.ports[i]
	}
	return p
}

// Detach removes a previously attached port, releasing any slot
// references it still held.
func (m *MultiBuffer) Detach(r Readable) {
	p, ok := r.(*mbPort)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cand := range m.ports {
		if cand == p {
			// p holds an implicit ref on every committed slot it has not
			// yet finalized past, not just the one it is currently on.
			for seq := p.readSeq; seq < m.nextSeq; seq++ {
				if e := m.slots[seq%len(m.slots)]; e != nil && e.refs > 0 {
					e.refs--
				}
			}
			m.ports = append(m.ports[:i], m.ports[i+1:]...)
			return
		}
	}
}

type mbWriter struct{ m *MultiBuffer }

func (w mbWriter) Ok() bool { return w.m.scratchOK }

func (w mbWriter) putBytes(b []byte) bool {
	m := w.m
	if !m.scratchOK {
		return false
	}
	if m.scratchLen+len(b) > len(m.scratch) {
		m.scratchOK = false
		return false
	}
	copy(m.scratch[m.scratchLen:], b)
	m.scratchLen += len(b)
	return true
}

func (w mbWriter) PutU8(v uint8) bool { return w.putBytes([]byte{v}) }
func (w mbWriter) PutU16BE(v uint16) bool {
	var b [2]byte
	putU16BE(b[:], v)
	return w.putBytes(b[:])
}
func (w mbWriter) PutU16LE(v uint16) bool {
	var b [2]byte
	putU16LE(b[:], v)
	return w.putBytes(b[:])
}
func (w mbWriter) PutU32BE(v uint32) bool {
	var b [4]byte
	putU32BE(b[:], v)
	return w.putBytes(b[:])
}
func (w mbWriter) PutU32LE(v uint32) bool {
	var b [4]byte
	putU32LE(b[:], v)
	return w.putBytes(b[:])
}
func (w mbWriter) PutU64BE(v uint64) bool {
	var b [8]byte
	putU64BE(b[:], v)
	return w.putBytes(b[:])
}
func (w mbWriter) PutU64LE(v uint64) bool {
	var b [8]byte
	putU64LE(b[:], v)
	return w.putBytes(b[:])
}
func (w mbWriter) PutBytes(b []byte) bool { return w.putBytes(b) }

// Finalize commits the staged packet into the next slot if it is free
// (every port has consumed past it), fanning it out to all attached
// ports. It fails atomically if no slot is free or a prior Put failed.
func (w mbWriter) Finalize() bool {
	m := w.m
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.nextSeq % len(m.slots)
	slot := m.slots[idx]
	full := len(m.slots) > 0 && m.nextSeq >= len(m.slots) && slot != nil && slot.refs > 0
	if !m.scratchOK || len(m.slots) == 0 || full {
		m.scratchLen = 0
		m.scratchOK = true
		return false
	}

	data := make([]byte, m.scratchLen)
	copy(data, m.scratch[:m.scratchLen])
	m.slots[idx] = &mbEntry{data: data, refs: len(m.ports)}
	m.nextSeq++
	m.scratchLen = 0
	m.scratchOK = true

	for _, p := range m.ports {
		if p.onPkt != nil {
			p.onPkt()
		}
	}
	return true
}

func (w mbWriter) Abort() {
	w.m.scratchLen = 0
	w.m.scratchOK = true
}

// mbPort is one fan-out reader's independent cursor.
type mbPort struct {
	m        *MultiBuffer
	priority int
	readSeq  int // sequence number of the packet currently/being opened
	readPos  int
	open     bool
	onPkt    func()
}

func (p *mbPort) current() *mbEntry {
	m := p.m
	if p.readSeq >= m.nextSeq {
		return nil
	}
	return m.slots[p.readSeq%len(m.slots)]
}

func (p *mbPort) Available() int {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	e := p.current()
	if e == nil {
		return 0
	}
	return len(e.data) - p.readPos
}

func (p *mbPort) ReadReady() bool {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	e := p.current()
	return e != nil && p.readPos < len(e.data)
}

func (p *mbPort) PeekBytes(n int, dst []byte) bool {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	e := p.current()
	if e == nil || p.readPos+n > len(e.data) {
		return false
	}
	copy(dst[:n], e.data[p.readPos:p.readPos+n])
	return true
}

func (p *mbPort) ReadBytes(n int, dst []byte) bool {
	if !p.PeekBytes(n, dst) {
		return false
	}
	p.m.mu.Lock()
	p.readPos += n
	p.m.mu.Unlock()
	return true
}

func (p *mbPort) readFixed(n int) ([]byte, bool) {
	var buf [8]byte
	if !p.ReadBytes(n, buf[:n]) {
		return nil, false
	}
	return buf[:n], true
}

func (p *mbPort) ReadU8() (uint8, bool) {
	b, ok := p.readFixed(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}
func (p *mbPort) ReadU16BE() (uint16, bool) {
	b, ok := p.readFixed(2)
	if !ok {
		return 0, false
	}
	return getU16BE(b), true
}
func (p *mbPort) ReadU16LE() (uint16, bool) {
	b, ok := p.readFixed(2)
	if !ok {
		return 0, false
	}
	return getU16LE(b), true
}
func (p *mbPort) ReadU32BE() (uint32, bool) {
	b, ok := p.readFixed(4)
	if !ok {
		return 0, false
	}
	return getU32BE(b), true
}
func (p *mbPort) ReadU32LE() (uint32, bool) {
	b, ok := p.readFixed(4)
	if !ok {
		return 0, false
	}
	return getU32LE(b), true
}
func (p *mbPort) ReadU64BE() (uint64, bool) {
	b, ok := p.readFixed(8)
	if !ok {
		return 0, false
	}
	return getU64BE(b), true
}
func (p *mbPort) ReadU64LE() (uint64, bool) {
	b, ok := p.readFixed(8)
	if !ok {
		return 0, false
	}
	return getU64LE(b), true
}

func (p *mbPort) Skip(n int) bool {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	e := p.current()
	if e == nil || p.readPos+n > len(e.data) {
		return false
	}
	p.readPos += n
	return true
}

// Finalize releases the current packet (consuming any unread trailing
// bytes) and advances this port to the next committed packet.
func (p *mbPort) Finalize() bool {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	e := p.current()
	if e == nil {
		return false
	}
	if e.refs > 0 {
		e.refs--
	}
	p.readSeq++
	p.readPos = 0
	return true
}

func (p *mbPort) Abort() {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	e := p.current()
	if e == nil {
		return
	}
	if e.refs > 0 {
		e.refs--
	}
	p.readSeq++
	p.readPos = 0
}

func (p *mbPort) OnPacketAvailable(fn func()) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	p.onPkt = fn
}

var _ Readable = (*mbPort)(nil)
var _ Writeable = mbWriter{}
