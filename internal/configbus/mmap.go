package configbus

// Mmap is the local backend: a flat register file addressed straight
// through, standing in for a volatile memory-mapped pointer. Bulk ops
// are plain loops since there is no per-access overhead to amortize.
type Mmap struct {
	mem []uint32
}

// NewMmap allocates a register file of size combined addresses.
func NewMmap(size int) *Mmap {
	return &Mmap{mem: make([]uint32, size)}
}

func (m *Mmap) Read(addr uint32) (uint32, IoStatus) {
	if int(addr) >= len(m.mem) {
		return 0, StatusCmdError
	}
	return m.mem[addr], StatusOK
}

func (m *Mmap) Write(addr uint32, val uint32) IoStatus {
	if int(addr) >= len(m.mem) {
		return StatusCmdError
	}
	m.mem[addr] = val
	return StatusOK
}

func (m *Mmap) ReadArray(addr uint32, out []uint32) IoStatus {
	for i := range out {
		v, st := m.Read(addr + uint32(i))
		if st != StatusOK {
			return st
		}
		out[i] = v
	}
	return StatusOK
}

func (m *Mmap) ReadRepeat(addr uint32, out []uint32) IoStatus {
	for i := range out {
		v, st := m.Read(addr)
		if st != StatusOK {
			return st
		}
		out[i] = v
	}
	return StatusOK
}

func (m *Mmap) WriteArray(addr uint32, vals []uint32) IoStatus {
	for i, v := range vals {
		if st := m.Write(addr+uint32(i), v); st != StatusOK {
			return st
		}
	}
	return StatusOK
}

func (m *Mmap) WriteRepeat(addr uint32, val uint32, n int) IoStatus {
	for i := 0; i < n; i++ {
		if st := m.Write(addr, val); st != StatusOK {
			return st
		}
	}
	return StatusOK
}
