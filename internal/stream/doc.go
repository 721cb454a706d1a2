// Package stream implements the Readable/Writeable byte-and-packet
// stream abstraction that every layer of the network dispatch tree and
// the PCAP codec reads and writes through.
//
// Readable is a pull stream with explicit finalize/abort packet
// boundaries; Writeable is the symmetric push stream. Neither
// implementation here allocates on the read/write hot path once
// constructed.
package stream
