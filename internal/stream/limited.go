package stream

// LimitedRead is a view over a parent Readable bounded to a byte
// budget. Each layer of the dispatch tree hands its child a
// LimitedRead over just that child's payload. Reads past the budget
// return zero-fill and report not-ready without touching the parent.
type LimitedRead struct {
	parent Readable
	budget int
}

// NewLimitedRead wraps parent with a budget of n bytes.
func NewLimitedRead(parent Readable, n int) *LimitedRead {
	if n < 0 {
		n = 0
	}
	return &LimitedRead{parent: parent, budget: n}
}

func (l *LimitedRead) Available() int {
	if avail := l.parent.Available(); avail < l.budget {
		return avail
	}
	return l.budget
}

func (l *LimitedRead) ReadReady() bool {
	return l.budget > 0 && l.parent.ReadReady()
}

func (l *LimitedRead) clamp(n int) (int, bool) {
	if n > l.budget {
		return 0, false
	}
	return n, true
}

// zeroFill clears dst[:n] (bounded to len(dst)) so a caller reading
// past the budget sees zero bytes rather than whatever was already in
// its buffer, per the exhausted-view contract.
func zeroFill(n int, dst []byte) bool {
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = 0
	}
	return false
}

func (l *LimitedRead) PeekBytes(n int, dst []byte) bool {
	if _, ok := l.clamp(n); !ok {
		return zeroFill(n, dst)
	}
	if !l.parent.PeekBytes(n, dst) {
		return zeroFill(n, dst)
	}
	return true
}

func (l *LimitedRead) ReadBytes(n int, dst []byte) bool {
	if _, ok := l.clamp(n); !ok {
		return zeroFill(n, dst)
	}
	if !l.parent.ReadBytes(n, dst) {
		return zeroFill(n, dst)
	}
	l.budget -= n
	return true
}

func (l *LimitedRead) readFixed(n int) ([]byte, bool) {
	var buf [8]byte
	if _, ok := l.clamp(n); !ok {
		return buf[:n], false
	}
	if !l.parent.ReadBytes(n, buf[:n]) {
		for i := 0; i < n; i++ {
			buf[i] = 0
		}
		return buf[:n], false
	}
	l.budget -= n
	return buf[:n], true
}

func (l *LimitedRead) ReadU8() (uint8, bool) {
	b, ok := l.readFixed(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (l *LimitedRead) ReadU16BE() (uint16, bool) {
	b, ok := l.readFixed(2)
	if !ok {
		return 0, false
	}
	return getU16BE(b), true
}

func (l *LimitedRead) ReadU16LE() (uint16, bool) {
	b, ok := l.readFixed(2)
	if !ok {
		return 0, false
	}
	return getU16LE(b), true
}

func (l *LimitedRead) ReadU32BE() (uint32, bool) {
	b, ok := l.readFixed(4)
	if !ok {
		return 0, false
	}
	return getU32BE(b), true
}

func (l *LimitedRead) ReadU32LE() (uint32, bool) {
	b, ok := l.readFixed(4)
	if !ok {
		return 0, false
	}
	return getU32LE(b), true
}

func (l *LimitedRead) ReadU64BE() (uint64, bool) {
	b, ok := l.readFixed(8)
	if !ok {
		return 0, false
	}
	return getU64BE(b), true
}

func (l *LimitedRead) ReadU64LE() (uint64, bool) {
	b, ok := l.readFixed(8)
	if !ok {
		return 0, false
	}
	return getU64LE(b), true
}

func (l *LimitedRead) Skip(n int) bool {
	if _, ok := l.clamp(n); !ok {
		return false
	}
	if !l.parent.Skip(n) {
		return false
	}
	l.budget -= n
	return true
}

// Finalize consumes any bytes remaining in this view's budget from the
// parent (so the parent's own Finalize sees a clean packet boundary)
// but does not finalize the parent itself — only the outermost
// Readable owns the packet boundary.
func (l *LimitedRead) Finalize() bool {
	if l.budget > 0 {
		l.parent.Skip(l.budget)
		l.budget = 0
	}
	return true
}

func (l *LimitedRead) Abort() {
	l.budget = 0
}

func (l *LimitedRead) OnPacketAvailable(fn func()) {
	l.parent.OnPacketAvailable(fn)
}

var _ Readable = (*LimitedRead)(nil)
