package pcap

import (
	"github.com/satcat5/corenet/internal/ptime"
	"github.com/satcat5/corenet/internal/stream"
)

// classicGlobalHeaderLen is the fixed 24-byte classic PCAP global
// header: magic, version_major, version_minor, thiszone, sigfigs,
// snaplen, network.
const classicGlobalHeaderLen = 24

const (
	classicVersionMajor uint16 = 2
	classicVersionMinor uint16 = 4
)

// classicReader reads classic-format PCAP records.
type classicReader struct {
	r          stream.Readable
	bigEndian  bool
	linkType   uint32
	nanosecond bool
}

func newClassicReader(r stream.Readable, bigEndian bool) (*classicReader, error) {
	cr := &classicReader{r: r, bigEndian: bigEndian}
	var hdr [classicGlobalHeaderLen]byte
	if !r.ReadBytes(classicGlobalHeaderLen, hdr[:]) {
		return nil, ErrShortRecord
	}
	magic := cr.getU32(hdr[0:4])
	cr.nanosecond = magic == magicNanoBE || magic == magicNanoLE
	cr.linkType = cr.getU32(hdr[20:24])
	return cr, nil
}

func (c *classicReader) LinkType() uint32 { return c.linkType }

func (c *classicReader) getU16(b []byte) uint16 {
	if c.bigEndian {
		return uint16(b[0])<<8 | uint16(b[1])
	}
	return uint16(b[1])<<8 | uint16(b[0])
}

func (c *classicReader) getU32(b []byte) uint32 {
	if c.bigEndian {
		return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	}
	return uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
}

// ReadPacket reads one (ts_sec, ts_usec_or_nsec, incl_len, orig_len,
// data) record.
func (c *classicReader) ReadPacket() (Packet, bool) {
	var hdr [16]byte
	if !c.r.ReadBytes(16, hdr[:]) {
		return Packet{}, false
	}
	sec := c.getU32(hdr[0:4])
	frac := c.getU32(hdr[4:8])
	inclLen := c.getU32(hdr[8:12])

	data := make([]byte, inclLen)
	if !c.r.ReadBytes(int(inclLen), data) {
		return Packet{}, false
	}

	var ns uint32
	if c.nanosecond {
		ns = frac
	} else {
		ns = frac * 1000
	}
	return Packet{Timestamp: ptime.FromFields(int64(sec), int64(ns), 0), Data: data}, true
}

// ClassicWriter emits classic-format PCAP records to a Writeable,
// big-endian, microsecond resolution.
type ClassicWriter struct {
	w        stream.Writeable
	linkType uint32
	wrote    bool
}

// NewClassicWriter writes the 24-byte global header immediately and
// returns a Writer for subsequent records.
func NewClassicWriter(w stream.Writeable, linkType uint32) (*ClassicWriter, bool) {
	if !w.PutU32BE(magicClassicBE) ||
		!w.PutU16BE(classicVersionMajor) || !w.PutU16BE(classicVersionMinor) ||
		!w.PutU32BE(0) || !w.PutU32BE(0) ||
		!w.PutU32BE(DefaultMaxPacketBytes) || !w.PutU32BE(linkType) ||
		!w.Finalize() {
		w.Abort()
		return nil, false
	}
	return &ClassicWriter{w: w, linkType: linkType}, true
}

// WritePacket appends one record for ts/data.
func (cw *ClassicWriter) WritePacket(ts ptime.Time, data []byte) bool {
	secs := ts.FieldSeconds()
	_, ns := ts.RoundFieldNanoseconds()
	usec := ns / 1000

	ok := cw.w.PutU32BE(uint32(secs)) &&
		cw.w.PutU32BE(usec) &&
		cw.w.PutU32BE(uint32(len(data))) &&
		cw.w.PutU32BE(uint32(len(data))) &&
		cw.w.PutBytes(data)
	if !ok {
		cw.w.Abort()
		return false
	}
	return cw.w.Finalize()
}
