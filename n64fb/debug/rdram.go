package debug

import (
	"image"
	"image/color"

	"github.com/valerio/go-n64fb/n64fb/pixel"
	"github.com/valerio/go-n64fb/n64fb/rdram"
)

// RDRAMImage views a framebuffer stored in RDRAM as an image.Image, so
// exported buffers can be dumped and compared with the GPU side.
type RDRAMImage struct {
	mem     *rdram.Memory
	address uint32
	width   int
	height  int
	size    pixel.Size
}

// NewRDRAMImage views width x height pixels of the given size at address.
func NewRDRAMImage(mem *rdram.Memory, address uint32, width, height int, size pixel.Size) *RDRAMImage {
	return &RDRAMImage{mem: mem, address: address, width: width, height: height, size: size}
}

func (m *RDRAMImage) ColorModel() color.Model {
	switch m.size {
	case pixel.Size16b:
		return pixel.Color16Model
	case pixel.Size8b:
		return color.GrayModel
	}
	return color.NRGBAModel
}

func (m *RDRAMImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.width, m.height)
}

func (m *RDRAMImage) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(m.Bounds())) {
		return color.NRGBA{}
	}
	offset := uint32(y*m.width + x)
	switch m.size {
	case pixel.Size16b:
		return pixel.Color16(m.mem.Half(m.address + offset*2))
	case pixel.Size8b:
		return color.Gray{Y: m.mem.Byte(m.address + offset)}
	case pixel.Size32b:
		r, g, b, a := pixel.Unpack(pixel.FromRGBA32(m.mem.Word(m.address+offset*4), false))
		return color.NRGBA{R: r, G: g, B: b, A: a}
	}
	return color.NRGBA{}
}
