// Package scan scatters a rectangle of read-back pixels into the linear
// RDRAM image of a framebuffer.
package scan

import (
	"github.com/valerio/go-n64fb/n64fb/pixel"
)

// Params describes where a read-back rectangle lands in RDRAM.
//
// The rectangle always spans full buffer rows: Width is the buffer width and
// row 0 of the source is the row containing StartAddress. When StartAddress
// is not at the beginning of a row, only the tail of the first source row is
// stored.
type Params struct {
	Width     uint32
	Height    uint32
	NumPixels uint32 // pixels to store from StartAddress on
	// StartAddress is the first RDRAM byte to write.
	StartAddress uint32
	// BufferAddress is the RDRAM address of pixel 0 of the buffer.
	BufferAddress uint32
	Size          pixel.Size
}

// Put stores one converted pixel at address. x and y are the pixel's
// position within the source rectangle.
type Put[T any] func(address uint32, c T, x, y uint32)

// Write walks src (Width*Height pixels, rows top to bottom) and calls put
// for every pixel that must reach RDRAM. Pixels equal to skip are counted
// but not stored, leaving whatever RDRAM held at their address.
//
// A first row that starts on an odd pixel is widened by one pixel to the
// left so stores always begin on a 32-bit boundary for 16-bit buffers.
// It returns the number of pixel slots walked.
func Write[T comparable](src []T, p Params, skip T, put Put[T]) uint32 {
	if p.Width == 0 || p.Height == 0 || p.StartAddress < p.BufferAddress {
		return 0
	}
	bpp := p.Size.Bytes(1)
	if bpp == 0 {
		return 0
	}

	address := p.StartAddress
	numPixels := p.NumPixels
	chunkStart := ((p.StartAddress - p.BufferAddress) / bpp) % p.Width
	if chunkStart%2 != 0 {
		chunkStart--
		address -= bpp
		numPixels++
	}

	stored := uint32(0)
	y := uint32(0)
	if chunkStart > 0 {
		for x := chunkStart; x < p.Width && stored < numPixels; x++ {
			if int(x) >= len(src) {
				break
			}
			if c := src[x]; c != skip {
				put(address+stored*bpp, c, x, 0)
			}
			stored++
		}
		y = 1
	}

	for ; y < p.Height; y++ {
		row := y * p.Width
		for x := uint32(0); x < p.Width && stored < numPixels; x++ {
			i := row + x
			if int(i) >= len(src) {
				return stored
			}
			if c := src[i]; c != skip {
				put(address+stored*bpp, c, x, y)
			}
			stored++
		}
	}
	return stored
}
