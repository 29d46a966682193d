// Package pixel converts between GPU-side RGBA8 pixels and the pixel
// encodings the N64 stores in RDRAM framebuffers.
//
// GPU pixels are packed into a uint32 as they sit in memory after a readback
// of RGBA8 bytes: red in the low byte, alpha in the high byte.
package pixel

import "fmt"

// Size is the RDP image size field (G_IM_SIZ_*).
type Size uint16

const (
	Size4b Size = iota
	Size8b
	Size16b
	Size32b
)

// Bytes returns how many bytes pixels pixels of this size occupy.
func (s Size) Bytes(pixels uint32) uint32 {
	return pixels << s >> 1
}

// Pixels returns how many pixels of this size fit in bytes bytes.
func (s Size) Pixels(bytes uint32) uint32 {
	return bytes << 1 >> s
}

// Stride returns the byte length of one row of width pixels.
func (s Size) Stride(width uint32) uint32 {
	return width << s >> 1
}

func (s Size) String() string {
	switch s {
	case Size4b:
		return "4b"
	case Size8b:
		return "8b"
	case Size16b:
		return "16b"
	case Size32b:
		return "32b"
	}
	return fmt.Sprintf("Size(%d)", uint16(s))
}

// Format is the RDP image format field (G_IM_FMT_*).
type Format uint16

const (
	FormatRGBA Format = iota
	FormatYUV
	FormatCI
	FormatIA
	FormatI
)

func (f Format) String() string {
	switch f {
	case FormatRGBA:
		return "RGBA"
	case FormatYUV:
		return "YUV"
	case FormatCI:
		return "CI"
	case FormatIA:
		return "IA"
	case FormatI:
		return "I"
	}
	return fmt.Sprintf("Format(%d)", uint16(f))
}

// Pack builds a GPU pixel from its channels.
func Pack(r, g, b, a uint8) uint32 {
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24
}

// Unpack splits a GPU pixel into its channels.
func Unpack(c uint32) (r, g, b, a uint8) {
	return uint8(c), uint8(c >> 8), uint8(c >> 16), uint8(c >> 24)
}

// Dither selects how 8-bit channels are reduced to 5 bits on export.
type Dither int

const (
	DitherNone Dither = iota
	DitherBayer
)

// 4x4 ordered dither offsets for 5-bit channels.
var bayer5 = [4][4]int32{
	{-4, 2, -3, 4},
	{0, -2, 2, -1},
	{-3, 3, -4, 3},
	{1, -1, 1, -2},
}

func clamp8(v int32) uint32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint32(v)
}

// ToRGBA16 encodes a GPU pixel as RGBA 5:5:5:1. x and y are the pixel's
// position in the buffer and only matter when dithering.
func ToRGBA16(c uint32, x, y uint32, d Dither) uint16 {
	r, g, b, a := Unpack(c)
	rr, gg, bb := uint32(r), uint32(g), uint32(b)
	if d == DitherBayer {
		t := bayer5[y&3][x&3]
		rr = clamp8(int32(r) + t)
		gg = clamp8(int32(g) + t)
		bb = clamp8(int32(b) + t)
	}
	var alpha uint16
	if a != 0 {
		alpha = 1
	}
	return uint16((rr>>3)<<11|(gg>>3)<<6|(bb>>3)<<1) | alpha
}

// ToRGBA32 encodes a GPU pixel as the N64 RGBA 8:8:8:8 word.
func ToRGBA32(c uint32) uint32 {
	r, g, b, a := Unpack(c)
	return uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a)
}

// ToI8 encodes the red channel of a GPU pixel as an 8-bit intensity.
func ToI8(c uint32) uint8 {
	return uint8(c)
}

func expand5(v uint16) uint8 {
	v &= 0x1F
	return uint8(v<<3 | v>>2)
}

// FromRGBA16 decodes a RGBA 5:5:5:1 pixel. With fullAlpha the coverage bit
// is ignored and the pixel is opaque.
func FromRGBA16(col uint16, fullAlpha bool) uint32 {
	a := uint8(0)
	if fullAlpha || col&1 != 0 {
		a = 0xFF
	}
	return Pack(expand5(col>>11), expand5(col>>6), expand5(col>>1), a)
}

// FromRGBA32 decodes a RGBA 8:8:8:8 word. With fullAlpha the alpha channel
// is ignored and the pixel is opaque.
func FromRGBA32(col uint32, fullAlpha bool) uint32 {
	a := uint8(col)
	if fullAlpha {
		a = 0xFF
	}
	return Pack(uint8(col>>24), uint8(col>>16), uint8(col>>8), a)
}

// FromI8 decodes an 8-bit intensity into an opaque grey GPU pixel.
func FromI8(i uint8) uint32 {
	return Pack(i, i, i, 0xFF)
}
