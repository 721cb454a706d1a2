package ipv4

import (
	"encoding/binary"
	"net"

	"github.com/satcat5/corenet/internal/stream"
)

// headerWriter accumulates one datagram's payload, then composes and
// prepends the IPv4 header on Finalize so the header checksum (which
// covers only the header, but needs the final total length) is
// computed after the payload size is known.
type headerWriter struct {
	w        stream.Writeable
	src, dst net.IP
	ttl      uint8
	protocol uint8
	buf      []byte
	id       uint16
}

func (h *headerWriter) Ok() bool { return true }

func (h *headerWriter) PutU8(v uint8) bool {
	h.buf = append(h.buf, v)
	return true
}

func (h *headerWriter) PutU16BE(v uint16) bool {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	h.buf = append(h.buf, b[:]...)
	return true
}

func (h *headerWriter) PutU16LE(v uint16) bool {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	h.buf = append(h.buf, b[:]...)
	return true
}

func (h *headerWriter) PutU32BE(v uint32) bool {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	h.buf = append(h.buf, b[:]...)
	return true
}

func (h *headerWriter) PutU32LE(v uint32) bool {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	h.buf = append(h.buf, b[:]...)
	return true
}

func (h *headerWriter) PutU64BE(v uint64) bool {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	h.buf = append(h.buf, b[:]...)
	return true
}

func (h *headerWriter) PutU64LE(v uint64) bool {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.buf = append(h.buf, b[:]...)
	return true
}

func (h *headerWriter) PutBytes(b []byte) bool {
	h.buf = append(h.buf, b...)
	return true
}

// Finalize composes the 20-byte IPv4 header around the accumulated
// payload and commits the combined packet to the underlying eth
// Writeable.
func (h *headerWriter) Finalize() bool {
	hdr := make([]byte, minHeaderLen)
	hdr[0] = 0x45 // version 4, IHL 5 (no options)
	hdr[1] = 0
	total := minHeaderLen + len(h.buf)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(total))
	binary.BigEndian.PutUint16(hdr[4:6], h.id)
	hdr[6], hdr[7] = 0x40, 0 // don't-fragment, no offset
	hdr[8] = h.ttl
	hdr[9] = h.protocol
	hdr[10], hdr[11] = 0, 0
	copy(hdr[12:16], h.src.To4())
	copy(hdr[16:20], h.dst.To4())
	binary.BigEndian.PutUint16(hdr[10:12], Checksum(hdr))

	if !h.w.PutBytes(hdr) || !h.w.PutBytes(h.buf) {
		h.w.Abort()
		return false
	}
	return h.w.Finalize()
}

func (h *headerWriter) Abort() {
	h.buf = nil
	h.w.Abort()
}

var _ stream.Writeable = (*headerWriter)(nil)
