package pcap

import (
	"github.com/satcat5/corenet/internal/ptime"
	"github.com/satcat5/corenet/internal/stream"
)

const (
	blockTypeSHB uint32 = 0x0A0D0D0A
	blockTypeIDB uint32 = 0x00000001
	blockTypeSPB uint32 = 0x00000003
	blockTypeEPB uint32 = 0x00000006

	byteOrderMagic uint32 = 0x1A2B3C4D
)

func pad4(n int) int { return (n + 3) &^ 3 }

type pcapngReader struct {
	r        stream.Readable
	linkType uint32
	haveIDB  bool
}

func newPCAPNGReader(r stream.Readable) (*pcapngReader, error) {
	pr := &pcapngReader{r: r}
	if err := pr.readSHB(); err != nil {
		return nil, err
	}
	for !pr.haveIDB {
		if _, err := pr.readBlockInto(nil); err != nil {
			return nil, err
		}
	}
	return pr, nil
}

func (pr *pcapngReader) LinkType() uint32 { return pr.linkType }

func (pr *pcapngReader) readSHB() error {
	var hdr [8]byte
	if !pr.r.ReadBytes(8, hdr[:]) {
		return ErrShortRecord
	}
	typ := u32be(hdr[0:4])
	totalLen := u32be(hdr[4:8])
	if typ != blockTypeSHB {
		return ErrUnknownFormat
	}
	body := make([]byte, int(totalLen)-12) // minus the two length fields + type
	if !pr.r.ReadBytes(len(body), body) {
		return ErrShortRecord
	}
	var trailer [4]byte
	if !pr.r.ReadBytes(4, trailer[:]) {
		return ErrShortRecord
	}
	// body[0:4] is the byte-order magic; this core only emits/consumes
	// big-endian PCAPNG, so no need to branch on it beyond validating.
	if len(body) < 4 || u32be(body[0:4]) != byteOrderMagic {
		return ErrUnknownFormat
	}
	return nil
}

// readBlockInto reads one block. If it is an IDB, linkType/haveIDB are
// set. If it is a packet block (SPB/EPB) and out is non-nil, *out is
// populated and isPacket is true; other block types are skipped via
// their length field.
func (pr *pcapngReader) readBlockInto(out *Packet) (isPacket bool, err error) {
	var hdr [8]byte
	if !pr.r.ReadBytes(8, hdr[:]) {
		return false, ErrShortRecord
	}
	typ := u32be(hdr[0:4])
	totalLen := int(u32be(hdr[4:8]))
	bodyLen := totalLen - 12
	if bodyLen < 0 {
		return false, ErrShortRecord
	}
	body := make([]byte, bodyLen)
	if !pr.r.ReadBytes(bodyLen, body) {
		return false, ErrShortRecord
	}
	var trailer [4]byte
	if !pr.r.ReadBytes(4, trailer[:]) {
		return false, ErrShortRecord
	}

	switch typ {
	case blockTypeIDB:
		if len(body) >= 4 {
			pr.linkType = uint32(u16be(body[0:2]))
		}
		pr.haveIDB = true
	case blockTypeSPB:
		if !pr.haveIDB {
			return false, ErrMissingIDB
		}
		if out != nil && len(body) >= 4 {
			origLen := u32be(body[0:4])
			data := body[4:]
			if int(origLen) <= len(data) {
				data = data[:origLen]
			}
			*out = Packet{Data: append([]byte(nil), data...)}
			return true, nil
		}
	case blockTypeEPB:
		if !pr.haveIDB {
			return false, ErrMissingIDB
		}
		if out != nil && len(body) >= 20 {
			tsHigh := u32be(body[4:8])
			tsLow := u32be(body[8:12])
			capLen := u32be(body[12:16])
			data := body[20:]
			if int(capLen) <= len(data) {
				data = data[:capLen]
			}
			tsUnits := uint64(tsHigh)<<32 | uint64(tsLow) // microseconds since epoch, per IDB if_tsresol default
			ts := ptime.FromFields(int64(tsUnits/1_000_000), int64(tsUnits%1_000_000)*1000, 0)
			*out = Packet{Timestamp: ts, Data: append([]byte(nil), data...)}
			return true, nil
		}
	}
	return false, nil
}

// ReadPacket returns the next SPB/EPB found, skipping any other block
// types by their self-declared length.
func (pr *pcapngReader) ReadPacket() (Packet, bool) {
	for {
		var pkt Packet
		isPacket, err := pr.readBlockInto(&pkt)
		if err != nil {
			return Packet{}, false
		}
		if isPacket {
			return pkt, true
		}
	}
}

func u16be(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func u32be(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Writer emits PCAPNG by default: SHB, one IDB, then an EPB per
// packet. If Passthrough is set, every finalized packet's raw bytes
// are also copied to it, sharing the same buffer so the frame is
// never copied twice.
type Writer struct {
	w           stream.Writeable
	linkType    uint32
	Passthrough stream.Writeable
	nextIfaceID uint32
}

// NewWriter writes the SHB and one IDB for linkType, returning a
// Writer for subsequent EPB packets.
func NewWriter(w stream.Writeable, linkType uint32) (*Writer, bool) {
	if !writeSHB(w) {
		return nil, false
	}
	if !writeIDB(w, linkType) {
		return nil, false
	}
	return &Writer{w: w, linkType: linkType}, true
}

func writeSHB(w stream.Writeable) bool {
	body := make([]byte, 16)
	u32put(body[0:4], byteOrderMagic)
	u16put(body[4:6], 1) // version major
	u16put(body[6:8], 0) // version minor
	// section length: -1 (unknown), as an 8-byte value.
	for i := 8; i < 16; i++ {
		body[i] = 0xFF
	}
	return writeBlock(w, blockTypeSHB, body)
}

func writeIDB(w stream.Writeable, linkType uint32) bool {
	body := make([]byte, 8)
	u16put(body[0:2], uint16(linkType))
	u16put(body[2:4], 0) // reserved
	u32put(body[4:8], DefaultMaxPacketBytes)
	return writeBlock(w, blockTypeIDB, body)
}

func writeBlock(w stream.Writeable, typ uint32, body []byte) bool {
	padded := pad4(len(body))
	if padded != len(body) {
		body = append(body, make([]byte, padded-len(body))...)
	}
	total := uint32(12 + len(body))
	if !w.PutU32BE(typ) || !w.PutU32BE(total) || !w.PutBytes(body) || !w.PutU32BE(total) {
		w.Abort()
		return false
	}
	return w.Finalize()
}

func u16put(dst []byte, v uint16) { dst[0] = byte(v >> 8); dst[1] = byte(v) }
func u32put(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}

// WritePacket emits an Enhanced Packet Block for data captured at ts.
func (pw *Writer) WritePacket(ts ptime.Time, data []byte) bool {
	secs, ns := ts.RoundFieldNanoseconds()
	tsUnits := secs*1_000_000 + uint64(ns)/1000

	body := make([]byte, 20+len(data))
	u32put(body[0:4], pw.nextIfaceID)
	u32put(body[4:8], uint32(tsUnits>>32))
	u32put(body[8:12], uint32(tsUnits))
	u32put(body[12:16], uint32(len(data)))
	u32put(body[16:20], uint32(len(data)))
	copy(body[20:], data)

	if !writeBlock(pw.w, blockTypeEPB, body) {
		return false
	}
	if pw.Passthrough != nil {
		if !pw.Passthrough.PutBytes(data) {
			pw.Passthrough.Abort()
			return true // the primary sink already committed; passthrough failure is non-fatal
		}
		pw.Passthrough.Finalize()
	}
	return true
}
