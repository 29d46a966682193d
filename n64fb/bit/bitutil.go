package bit

// Shiftr extracts a field of width bits starting at bit shift.
// Example: Shiftr(0x006c_02ec, 16, 10) -> 0x06c (the VI h-start field)
func Shiftr(value uint32, shift, width uint) uint32 {
	return (value >> shift) & ((1 << width) - 1)
}

// Shiftl places the low width bits of value at bit shift.
func Shiftl(value uint32, shift, width uint) uint32 {
	return (value & ((1 << width) - 1)) << shift
}

// Fixed2Float converts an unsigned fixed point number with fracBits
// fractional bits into a float.
func Fixed2Float(value uint32, fracBits uint) float32 {
	return float32(value) / float32(uint32(1)<<fracBits)
}

// Low returns the lower halfword of a 32 bit value.
func Low(value uint32) uint16 {
	return uint16(value)
}
