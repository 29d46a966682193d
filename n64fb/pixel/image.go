package pixel

import (
	"image/color"
)

// Color16 is a RGBA 5:5:5:1 pixel usable with the image packages.
type Color16 uint16

func (c Color16) RGBA() (r, g, b, a uint32) {
	r8, g8, b8, a8 := Unpack(FromRGBA16(uint16(c), false))
	r = uint32(r8) * 0x101
	g = uint32(g8) * 0x101
	b = uint32(b8) * 0x101
	a = uint32(a8) * 0x101
	// image/color colors are alpha-premultiplied
	if a8 == 0 {
		return 0, 0, 0, 0
	}
	return
}

// Color16Model converts any color to a Color16.
var Color16Model color.Model = color.ModelFunc(color16Model)

func color16Model(c color.Color) color.Color {
	if _, ok := c.(Color16); ok {
		return c
	}
	r, g, b, a := c.RGBA()
	var alpha uint32
	if a>>15 != 0 {
		alpha = 1
	}
	return Color16((r&0xf800)|(g&0xf800)>>5|(b&0xf800)>>10) | Color16(alpha)
}
