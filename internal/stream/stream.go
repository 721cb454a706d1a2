package stream

// Readable is a pull stream over one packet at a time. Callers must
// call Finalize to release the current packet and advance to the
// next; re-reading a finalized packet is not supported.
type Readable interface {
	// Available returns the number of unread bytes remaining in the
	// current packet, or 0 if none is open.
	Available() int
	// ReadReady reports whether a packet is open or one is queued and
	// can be opened by the next read.
	ReadReady() bool

	PeekBytes(n int, dst []byte) bool
	ReadBytes(n int, dst []byte) bool
	ReadU8() (uint8, bool)
	ReadU16BE() (uint16, bool)
	ReadU16LE() (uint16, bool)
	ReadU32BE() (uint32, bool)
	ReadU32LE() (uint32, bool)
	ReadU64BE() (uint64, bool)
	ReadU64LE() (uint64, bool)

	// Skip discards n unread bytes of the current packet.
	Skip(n int) bool
	// Finalize releases the current packet, consuming any bytes the
	// caller did not read, and advances to the next queued packet.
	Finalize() bool
	// Abort discards the current packet without marking it consumed
	// for accounting purposes beyond release.
	Abort()

	// OnPacketAvailable registers a listener woken when a new packet
	// arrives. Passing nil clears the listener.
	OnPacketAvailable(fn func())
}

// Writeable is a push stream committing one packet at a time.
// Partial writes before Finalize are invisible to any Readable
// draining the same buffer.
type Writeable interface {
	Ok() bool

	PutU8(v uint8) bool
	PutU16BE(v uint16) bool
	PutU16LE(v uint16) bool
	PutU32BE(v uint32) bool
	PutU32LE(v uint32) bool
	PutU64BE(v uint64) bool
	PutU64LE(v uint64) bool
	PutBytes(b []byte) bool

	// Finalize commits the packet atomically. It returns false (and
	// discards the packet) if any prior Put failed or the packet does
	// not fit in the backing store.
	Finalize() bool
	// Abort discards the in-progress packet.
	Abort()
}

func putU16BE(dst []byte, v uint16) { dst[0] = byte(v >> 8); dst[1] = byte(v) }
func putU16LE(dst []byte, v uint16) { dst[0] = byte(v); dst[1] = byte(v >> 8) }

func putU32BE(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}

func putU32LE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

func putU64BE(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> uint(56-8*i))
	}
}

func putU64LE(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> uint(8*i))
	}
}

func getU16BE(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func getU16LE(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

func getU32BE(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func getU32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func getU64BE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func getU64LE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << uint(8*i)
	}
	return v
}
