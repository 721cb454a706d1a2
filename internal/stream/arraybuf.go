package stream

// ArrayRead is a Readable over a single fixed byte slice, useful for
// tests and for framing codecs that already have a whole packet in
// memory.
type ArrayRead struct {
	buf   []byte
	pos   int
	open  bool
	onPkt func()
}

// NewArrayRead wraps buf as a single open packet.
func NewArrayRead(buf []byte) *ArrayRead {
	return &ArrayRead{buf: buf, open: true}
}

func (a *ArrayRead) Available() int {
	if !a.open {
		return 0
	}
	return len(a.buf) - a.pos
}

func (a *ArrayRead) ReadReady() bool { return a.open && a.pos < len(a.buf) }

func (a *ArrayRead) PeekBytes(n int, dst []byte) bool {
	if !a.open || a.pos+n > len(a.buf) {
		return false
	}
	copy(dst[:n], a.buf[a.pos:a.pos+n])
	return true
}

func (a *ArrayRead) ReadBytes(n int, dst []byte) bool {
	if !a.PeekBytes(n, dst) {
		return false
	}
	a.pos += n
	return true
}

func (a *ArrayRead) readFixed(n int) ([]byte, bool) {
	var buf [8]byte
	if !a.ReadBytes(n, buf[:n]) {
		return nil, false
	}
	return buf[:n], true
}

func (a *ArrayRead) ReadU8() (uint8, bool) {
	b, ok := a.readFixed(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (a *ArrayRead) ReadU16BE() (uint16, bool) {
	b, ok := a.readFixed(2)
	if !ok {
		return 0, false
	}
	return getU16BE(b), true
}

func (a *ArrayRead) ReadU16LE() (uint16, bool) {
	b, ok := a.readFixed(2)
	if !ok {
		return 0, false
	}
	return getU16LE(b), true
}

func (a *ArrayRead) ReadU32BE() (uint32, bool) {
	b, ok := a.readFixed(4)
	if !ok {
		return 0, false
	}
	return getU32BE(b), true
}

func (a *ArrayRead) ReadU32LE() (uint32, bool) {
	b, ok := a.readFixed(4)
	if !ok {
		return 0, false
	}
	return getU32LE(b), true
}

func (a *ArrayRead) ReadU64BE() (uint64, bool) {
	b, ok := a.readFixed(8)
	if !ok {
		return 0, false
	}
	return getU64BE(b), true
}

func (a *ArrayRead) ReadU64LE() (uint64, bool) {
	b, ok := a.readFixed(8)
	if !ok {
		return 0, false
	}
	return getU64LE(b), true
}

func (a *ArrayRead) Skip(n int) bool {
	if !a.open || a.pos+n > len(a.buf) {
		return false
	}
	a.pos += n
	return true
}

func (a *ArrayRead) Finalize() bool {
	if !a.open {
		return false
	}
	a.open = false
	return true
}

func (a *ArrayRead) Abort() { a.open = false }

func (a *ArrayRead) OnPacketAvailable(fn func()) { a.onPkt = fn }

var _ Readable = (*ArrayRead)(nil)

// ArrayWrite is a Writeable committing into a single fixed
// caller-supplied byte slice. Len reports the committed length after
// Finalize.
type ArrayWrite struct {
	buf []byte
	n   int
	ok  bool
	len int
}

// NewArrayWrite wraps buf as the backing store for one packet.
func NewArrayWrite(buf []byte) *ArrayWrite {
	return &ArrayWrite{buf: buf, ok: true}
}

func (a *ArrayWrite) Ok() bool { return a.ok }

func (a *ArrayWrite) putBytes(b []byte) bool {
	if !a.ok {
		return false
	}
	if a.n+len(b) > len(a.buf) {
		a.ok = false
		return false
	}
	copy(a.buf[a.n:], b)
	a.n += len(b)
	return true
}

func (a *ArrayWrite) PutU8(v uint8) bool { return a.putBytes([]byte{v}) }

func (a *ArrayWrite) PutU16BE(v uint16) bool {
	var b [2]byte
	putU16BE(b[:], v)
	return a.putBytes(b[:])
}

func (a *ArrayWrite) PutU16LE(v uint16) bool {
	var b [2]byte
	putU16LE(b[:], v)
	return a.putBytes(b[:])
}

func (a *ArrayWrite) PutU32BE(v uint32) bool {
	var b [4]byte
	putU32BE(b[:], v)
	return a.putBytes(b[:])
}

func (a *ArrayWrite) PutU32LE(v uint32) bool {
	var b [4]byte
	putU32LE(b[:], v)
	return a.putBytes(b[:])
}

func (a *ArrayWrite) PutU64BE(v uint64) bool {
	var b [8]byte
	putU64BE(b[:], v)
	return a.putBytes(b[:])
}

func (a *ArrayWrite) PutU64LE(v uint64) bool {
	var b [8]byte
	putU64LE(b[:], v)
	return a.putBytes(b[:])
}

func (a *ArrayWrite) PutBytes(b []byte) bool { return a.putBytes(b) }

func (a *ArrayWrite) Finalize() bool {
	if !a.ok {
		a.n = 0
		return false
	}
	a.len = a.n
	a.n = 0
	return true
}

func (a *ArrayWrite) Abort() {
	a.n = 0
	a.ok = true
}

// Len returns the length committed by the most recent successful
// Finalize.
func (a *ArrayWrite) Len() int { return a.len }

var _ Writeable = (*ArrayWrite)(nil)
