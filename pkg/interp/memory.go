package interp

import "encoding/binary"

// memory is a sparse byte-addressed store. Multi-byte accesses are
// little-endian; unwritten bytes read as zero.
type memory struct {
	bytes map[int64]byte
}

func newMemory() *memory {
	return &memory{bytes: make(map[int64]byte)}
}

// load reads n bytes (at most 8) starting at addr.
func (m *memory) load(addr int64, n int) uint64 {
	var buf [8]byte
	for i := 0; i < n; i++ {
		buf[i] = m.bytes[addr+int64(i)]
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// store writes the low n bytes of v starting at addr.
func (m *memory) store(addr int64, n int, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	for i, b := range buf[:n] {
		m.bytes[addr+int64(i)] = b
	}
}
