// Package pcap implements the classic-PCAP and PCAPNG file codecs
// over the same Readable/Writeable stream abstractions used
// throughout the core (§4.M). Format is autodetected from the magic
// number on read; the writer emits PCAPNG by default.
package pcap

import (
	"github.com/satcat5/corenet/internal/ptime"
	"github.com/satcat5/corenet/internal/stream"
)

// LinkType values named by the spec (§6).
const (
	LinkTypeEthernet uint32 = 1
	LinkTypeCCSDSAOS uint32 = 222
)

// DefaultMaxPacketBytes is the PCAP_BUFFSIZE default: the largest
// single captured frame the codec will hold.
const DefaultMaxPacketBytes = 1600

// Magic numbers identifying the on-disk format.
const (
	magicClassicBE uint32 = 0xA1B2C3D4
	magicClassicLE uint32 = 0xD4C3B2A1
	magicNanoBE    uint32 = 0xA1B23C4D
	magicNanoLE    uint32 = 0x4D3CB2A1
	magicPCAPNG    uint32 = 0x0A0D0D0A
)

// Format identifies the detected on-disk container.
type Format int

const (
	FormatUnknown Format = iota
	FormatClassicBE
	FormatClassicLE
	FormatPCAPNG
)

// Packet is one captured frame with its capture timestamp.
type Packet struct {
	Timestamp ptime.Time
	Data      []byte
}

// Reader is the codec-agnostic surface both classic-PCAP and PCAPNG
// readers satisfy: sequential packet extraction off a Readable.
type Reader interface {
	LinkType() uint32
	ReadPacket() (Packet, bool)
}

// Detect peeks the first 4 bytes of r to classify the container
// format without consuming them.
func Detect(r stream.Readable) Format {
	var magic [4]byte
	if !r.PeekBytes(4, magic[:]) {
		return FormatUnknown
	}
	be := uint32(magic[0])<<24 | uint32(magic[1])<<16 | uint32(magic[2])<<8 | uint32(magic[3])
	switch be {
	case magicClassicBE, magicNanoBE:
		return FormatClassicBE
	case magicClassicLE, magicNanoLE:
		return FormatClassicLE
	case magicPCAPNG:
		return FormatPCAPNG
	default:
		return FormatUnknown
	}
}

// Open autodetects the format on r and returns the matching Reader.
func Open(r stream.Readable) (Reader, error) {
	switch Detect(r) {
	case FormatClassicBE:
		return newClassicReader(r, true)
	case FormatClassicLE:
		return newClassicReader(r, false)
	case FormatPCAPNG:
		return newPCAPNGReader(r)
	default:
		return nil, ErrUnknownFormat
	}
}
