package stream

// BufferedCopy forwards one packet at a time from a Readable to a
// Writeable through a single reusable scratch buffer, so no packet is
// ever copied twice. It is the building block behind the PCAP writer's
// passthrough sink.
type BufferedCopy struct {
	scratch []byte
}

// NewBufferedCopy allocates a copier with a scratch buffer sized for
// the largest packet it will forward.
func NewBufferedCopy(maxPacketSize int) *BufferedCopy {
	return &BufferedCopy{scratch: make([]byte, maxPacketSize)}
}

// CopyPacket drains everything remaining in src's current packet into
// dst and finalizes both sides. It returns false, leaving src
// unfinalized, if the packet does not fit the scratch buffer or the
// write side rejects it.
func (c *BufferedCopy) CopyPacket(dst Writeable, src Readable) bool {
	n := src.Available()
	if n > len(c.scratch) {
		return false
	}
	if n > 0 && !src.ReadBytes(n, c.scratch[:n]) {
		return false
	}
	if n > 0 && !dst.PutBytes(c.scratch[:n]) {
		src.Finalize()
		dst.Abort()
		return false
	}
	ok := dst.Finalize()
	src.Finalize()
	return ok
}
