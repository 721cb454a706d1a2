package pcap

import "errors"

var (
	// ErrUnknownFormat is returned by Open when the magic number
	// matches neither classic PCAP nor PCAPNG.
	ErrUnknownFormat = errors.New("pcap: unrecognized magic number")
	// ErrShortRecord is returned when a record header or body is
	// truncated.
	ErrShortRecord = errors.New("pcap: short record")
	// ErrMissingIDB is returned by a PCAPNG reader that encounters an
	// Enhanced/Simple Packet Block before any Interface Description
	// Block declared a LinkType.
	ErrMissingIDB = errors.New("pcap: packet block before interface description block")
)
