package udp

import (
	"encoding/binary"
	"net"

	"github.com/satcat5/corenet/internal/netstack/ipv4"
	"github.com/satcat5/corenet/internal/stream"
)

// headerWriter accumulates one datagram's payload so the UDP length
// and checksum, which cover the payload, can be computed on Finalize.
type headerWriter struct {
	w                  stream.Writeable
	localPort          uint16
	remotePort         uint16
	srcIP, dstIP       net.IP
	buf                []byte
}

func (h *headerWriter) Ok() bool { return true }

func (h *headerWriter) PutU8(v uint8) bool { h.buf = append(h.buf, v); return true }

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

func (h *headerWriter) PutBytes(b []byte) bool { h.buf = append(h.buf, b...); return true }

// Finalize composes the 8-byte UDP header (checksum required on TX
// per §4.J) around the accumulated payload and commits it to the
// underlying IPv4 Writeable.
func (h *headerWriter) Finalize() bool {
	length := headerLen + len(h.buf)
	hdr := make([]byte, headerLen)
	binary.BigEndian.PutUint16(hdr[0:2], h.localPort)
	binary.BigEndian.PutUint16(hdr[2:4], h.remotePort)
	binary.BigEndian.PutUint16(hdr[4:6], uint16(length))
	hdr[6], hdr[7] = 0, 0

	sum := ipv4.PseudoHeaderSum(h.srcIP, h.dstIP, ipv4.ProtoUDP, uint16(length))
	sum += ipv4.SumBytes(hdr)
	sum += ipv4.SumBytes(h.buf)
	checksum := ipv4.FoldChecksum(sum)
	if checksum == 0 {
		checksum = 0xFFFF // RFC 768: a computed all-zero checksum is sent as all-ones.
	}
	binary.BigEndian.PutUint16(hdr[6:8], checksum)

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
