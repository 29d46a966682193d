package pixel

const zLUTSize = 0x40000

// ZLUT maps 18-bit linear depth to the compressed 16-bit Z format the RDP
// stores in the depth image: a 3-bit exponent, an 11-bit mantissa and two
// low dz bits left at zero.
type ZLUT struct {
	table []uint16
}

// NewZLUT builds the full depth compression table.
func NewZLUT() *ZLUT {
	lut := &ZLUT{table: make([]uint16, zLUTSize)}
	for i := uint32(0); i < zLUTSize; i++ {
		exponent := uint32(0)
		testbit := uint32(1) << 17
		for i&testbit != 0 && exponent < 7 {
			exponent++
			testbit = 1 << (17 - exponent)
		}
		shift := exponent
		if shift > 6 {
			shift = 6
		}
		mantissa := (i >> (6 - shift)) & 0x7FF
		lut.table[i] = uint16(((exponent << 11) | mantissa) << 2)
	}
	return lut
}

// Lookup returns the compressed value for an 18-bit depth.
func (l *ZLUT) Lookup(z uint32) uint16 {
	if z >= zLUTSize {
		z = zLUTSize - 1
	}
	return l.table[z]
}

// FromFloat compresses a normalised GPU depth value. Values at or beyond
// the far plane map to the largest encodable depth.
func (l *ZLUT) FromFloat(z float32) uint16 {
	switch {
	case z >= 1.0:
		return l.Lookup(zLUTSize - 1)
	case z <= 0:
		return l.Lookup(0)
	}
	return l.Lookup(uint32(z*float32(zLUTSize) + 0.5))
}
