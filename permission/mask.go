package permission

// Mask is a fixed-width permission bitset of 64-bit words.
type Mask []uint64

// Has reports whether bit is set.
func (m Mask) Has(bit int) bool {
	if bit < 0 || bit >= len(m)*64 {
		return false
	}
	return m[bit/64]&(1<<(uint(bit)%64)) != 0
}

// Set sets bit. Out-of-range bits are ignored.
func (m Mask) Set(bit int) {
	if bit < 0 || bit >= len(m)*64 {
		return
	}
	m[bit/64] |= 1 << (uint(bit) % 64)
}

// Clear clears bit.
func (m Mask) Clear(bit int) {
	if bit < 0 || bit >= len(m)*64 {
		return
	}
	m[bit/64] &^= 1 << (uint(bit) % 64)
}
