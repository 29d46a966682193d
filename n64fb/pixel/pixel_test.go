package pixel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeBytes(t *testing.T) {
	tests := []struct {
		size   Size
		pixels uint32
		bytes  uint32
	}{
		{Size4b, 320, 160},
		{Size8b, 320, 320},
		{Size16b, 320, 640},
		{Size32b, 320, 1280},
	}

	for _, tt := range tests {
		t.Run(tt.size.String(), func(t *testing.T) {
			assert.Equal(t, tt.bytes, tt.size.Bytes(tt.pixels))
			assert.Equal(t, tt.bytes, tt.size.Stride(tt.pixels))
			assert.Equal(t, tt.pixels, tt.size.Pixels(tt.bytes))
		})
	}
}

func TestPackUnpack(t *testing.T) {
	c := Pack(0x11, 0x22, 0x33, 0x44)
	assert.Equal(t, uint32(0x44332211), c)
	r, g, b, a := Unpack(c)
	assert.Equal(t, []uint8{0x11, 0x22, 0x33, 0x44}, []uint8{r, g, b, a})
}

func TestToRGBA16(t *testing.T) {
	tests := []struct {
		name     string
		color    uint32
		expected uint16
	}{
		{"opaque white", Pack(0xFF, 0xFF, 0xFF, 0xFF), 0xFFFF},
		{"transparent white", Pack(0xFF, 0xFF, 0xFF, 0), 0xFFFE},
		{"opaque red", Pack(0xFF, 0, 0, 0xFF), 0xF801},
		{"opaque green", Pack(0, 0xFF, 0, 0xFF), 0x07C1},
		{"opaque blue", Pack(0, 0, 0xFF, 0xFF), 0x003F},
		{"black", Pack(0, 0, 0, 0xFF), 0x0001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToRGBA16(tt.color, 0, 0, DitherNone))
		})
	}
}

func TestToRGBA16Bayer(t *testing.T) {
	// saturated channels stay saturated and black stays black under dithering
	for y := uint32(0); y < 4; y++ {
		for x := uint32(0); x < 4; x++ {
			assert.Equal(t, uint16(0xFFFF), ToRGBA16(Pack(0xFF, 0xFF, 0xFF, 0xFF), x, y, DitherBayer))
		}
	}
	assert.Equal(t, uint16(0x0001), ToRGBA16(Pack(0, 0, 0, 0xFF), 1, 0, DitherNone))

	// a mid grey lands within one 5-bit step of the undithered value
	plain := ToRGBA16(Pack(0x84, 0x84, 0x84, 0xFF), 0, 0, DitherNone) >> 11
	for y := uint32(0); y < 4; y++ {
		for x := uint32(0); x < 4; x++ {
			d := ToRGBA16(Pack(0x84, 0x84, 0x84, 0xFF), x, y, DitherBayer) >> 11
			assert.InDelta(t, float64(plain), float64(d), 1)
		}
	}
}

func TestRGBA16RoundTrip(t *testing.T) {
	for _, col := range []uint16{0x0000, 0x0001, 0xF801, 0x07C1, 0x003F, 0xFFFF, 0x8421} {
		assert.Equal(t, col, ToRGBA16(FromRGBA16(col, false), 0, 0, DitherNone), "color %04X", col)
	}
}

func TestFromRGBA16Alpha(t *testing.T) {
	_, _, _, a := Unpack(FromRGBA16(0xF800, false))
	assert.Equal(t, uint8(0), a)
	_, _, _, a = Unpack(FromRGBA16(0xF800, true))
	assert.Equal(t, uint8(0xFF), a)
	r, g, b, _ := Unpack(FromRGBA16(0xFFFF, false))
	assert.Equal(t, []uint8{0xFF, 0xFF, 0xFF}, []uint8{r, g, b})
}

func TestRGBA32(t *testing.T) {
	c := Pack(0x12, 0x34, 0x56, 0x78)
	assert.Equal(t, uint32(0x12345678), ToRGBA32(c))
	assert.Equal(t, c, FromRGBA32(0x12345678, false))
	assert.Equal(t, Pack(0x12, 0x34, 0x56, 0xFF), FromRGBA32(0x12345678, true))
}

func TestI8(t *testing.T) {
	assert.Equal(t, uint8(0x7F), ToI8(Pack(0x7F, 0x10, 0x20, 0xFF)))
	assert.Equal(t, Pack(0x40, 0x40, 0x40, 0xFF), FromI8(0x40))
}

func TestZLUT(t *testing.T) {
	lut := NewZLUT()

	assert.Equal(t, uint16(0), lut.FromFloat(0))
	assert.Equal(t, uint16(0), lut.FromFloat(-1))
	assert.Equal(t, lut.Lookup(0x3FFFF), lut.FromFloat(1.0))
	assert.Equal(t, lut.Lookup(0x3FFFF), lut.FromFloat(2.0))
	// max depth: exponent 7, mantissa all ones
	assert.Equal(t, uint16(((7<<11)|0x7FF)<<2), lut.Lookup(0x3FFFF))

	// values below 1<<17 have exponent 0 and keep the mantissa at full precision
	assert.Equal(t, uint16((0x100>>6)<<2), lut.Lookup(0x100))

	prev := uint16(0)
	for z := uint32(0); z < 0x40000; z += 0x101 {
		v := lut.Lookup(z)
		assert.GreaterOrEqual(t, v, prev, "z=%X", z)
		prev = v
	}
}

func TestColor16Model(t *testing.T) {
	c := Color16Model.Convert(Color16(0xF801))
	assert.Equal(t, Color16(0xF801), c)

	r, _, _, a := Color16(0xF801).RGBA()
	assert.Equal(t, uint32(0xFFFF), r)
	assert.Equal(t, uint32(0xFFFF), a)

	_, _, _, a = Color16(0xF800).RGBA()
	assert.Equal(t, uint32(0), a)
}
