package framebuffer

import (
	"encoding/binary"
	"image"

	"github.com/valerio/go-n64fb/n64fb/config"
	"github.com/valerio/go-n64fb/n64fb/gpu"
	"github.com/valerio/go-n64fb/n64fb/pixel"
	"github.com/valerio/go-n64fb/n64fb/scan"
)

// chunkSize is the span of a single chunk export, one 4 KiB page.
const chunkSize = 0x1000

// colorExporter writes the pixels of a render target back into RDRAM.
type colorExporter struct {
	reg     *Registry
	native  scratch
	pixels  []uint32
	rb      gpu.PixelReadBuffer
	prepped Handle
	frame   uint32
	hasPrep bool
}

func newColorExporter(r *Registry) *colorExporter {
	return &colorExporter{
		reg:    r,
		native: scratch{ctx: r.deps.GPU, format: gpu.FormatRGBA8},
	}
}

func (e *colorExporter) destroy() {
	e.native.release()
	if e.rb != nil {
		e.rb.CleanUp()
		e.rb = nil
	}
	e.hasPrep = false
}

// copyTarget exports all of t and refreshes its validity snapshot.
func (e *colorExporter) copyTarget(t *Target, sync bool) {
	if !e.copy(t, t.StartAddress, 0, sync) {
		return
	}
	t.CopiedToRdram = true
	t.copyRdram()
	t.Cleared = false
}

// copyChunk exports the page containing address.
func (e *colorExporter) copyChunk(address uint32) {
	t := e.reg.FindBuffer(address)
	if t == nil {
		return
	}
	start := max(address&^(chunkSize-1), t.StartAddress)
	e.copy(t, start, chunkSize, true)
}

// prepare returns the framebuffer holding t's pixels at native
// resolution. Chunk exports reuse the result for the rest of the frame.
func (e *colorExporter) prepare(t *Target, chunk bool) gpu.FramebufferID {
	env := &e.reg.deps
	swaps := env.Window.BuffersSwapCount()
	if t.Scale == 1 {
		return t.ReadFBO()
	}
	w, h := int(t.Width), int(env.VI.MaxBufferHeight(t.Width))
	if chunk && e.hasPrep && e.prepped == t.handle && e.frame == swaps && e.native.width == w && e.native.height == h {
		return e.native.fbo
	}

	fbo := e.native.ensure(w, h)
	src := image.Rect(0, 0, t.scaled(uint32(w)), t.scaled(uint32(h)))
	dst := image.Rect(0, 0, w, h)
	if !env.GPU.BlitFramebuffers(gpu.BlitParams{
		Read: t.ReadFBO(), Draw: fbo, Src: src, Dst: dst,
		Filter: gpu.FilterLinear, Mask: gpu.MaskColor,
	}) {
		prev := env.GPU.BoundFramebuffer(gpu.DrawFramebuffer)
		env.GPU.BindFramebuffer(gpu.DrawFramebuffer, fbo)
		env.GPU.DrawTexturedRect(gpu.DrawRectParams{Texture: t.SampleTexture().ID, Src: src, Dst: dst, Filter: gpu.FilterLinear})
		env.GPU.BindFramebuffer(gpu.DrawFramebuffer, prev)
	}
	e.prepped, e.frame, e.hasPrep = t.handle, swaps, true
	return fbo
}

// copy reads the rows of t covering numBytes from start (the rest of the
// buffer when numBytes is 0) and scatters them into RDRAM.
func (e *colorExporter) copy(t *Target, start, numBytes uint32, sync bool) bool {
	env := &e.reg.deps
	if t.Size < pixel.Size8b || t.Width == 0 {
		return false
	}
	stride := t.Stride()
	maxHeight := min(env.VI.MaxBufferHeight(t.Width), env.RDRAM.CutHeight(t.StartAddress, t.Height, stride))
	if maxHeight == 0 {
		return false
	}
	chunk := numBytes == chunkSize
	start = max(start, t.StartAddress)
	offset := start - t.StartAddress
	if offset >= stride*maxHeight {
		return false
	}
	if numBytes == 0 || offset+numBytes > stride*maxHeight {
		numBytes = stride*maxHeight - offset
	}
	y0 := offset / stride
	y1 := min(maxHeight, (offset+numBytes+stride-1)/stride)

	fbo := e.prepare(t, chunk)
	if e.rb == nil {
		e.rb = env.GPU.CreatePixelReadBuffer()
	}
	rect := image.Rect(0, int(y0), int(t.Width), int(y1))
	if !e.rb.ReadPixels(fbo, rect, gpu.AttachColor, sync) {
		e.reg.log().Warn("color readback failed", "address", t.StartAddress)
		return false
	}
	data := e.rb.DrawnPixels()
	defer e.rb.CleanUp()

	n := len(data) / 4
	if cap(e.pixels) < n {
		e.pixels = make([]uint32, n)
	}
	src := e.pixels[:n]
	for i := range src {
		src[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	height := min(uint32(n)/t.Width, y1-y0)
	if height == 0 {
		return false
	}

	params := scan.Params{
		Width:         t.Width,
		Height:        height,
		NumPixels:     t.Size.Pixels(numBytes),
		StartAddress:  start,
		BufferAddress: t.StartAddress,
		Size:          t.Size,
	}
	scan.Write(src, params, 0, e.putter(t.Size, y0))
	return true
}

func (e *colorExporter) putter(size pixel.Size, y0 uint32) scan.Put[uint32] {
	env := &e.reg.deps
	mem := env.RDRAM
	white := env.Config.Hacks.Has(config.HackSubscreen)
	dither := pixel.DitherNone
	if env.Config.FrameBufferEmulation.Dithering == config.DitherBayer {
		dither = pixel.DitherBayer
	}

	switch size {
	case pixel.Size32b:
		return func(address uint32, c uint32, _, _ uint32) {
			if white {
				mem.SetWord(address, 0xFFFFFFFF)
				return
			}
			mem.SetWord(address, pixel.ToRGBA32(c))
		}
	case pixel.Size8b:
		return func(address uint32, c uint32, _, _ uint32) {
			if white {
				mem.SetByte(address, 0xFF)
				return
			}
			mem.SetByte(address, pixel.ToI8(c))
		}
	}
	return func(address uint32, c uint32, x, y uint32) {
		if white {
			mem.SetHalf(address, 0xFFFF)
			return
		}
		mem.SetHalf(address, pixel.ToRGBA16(c, x, y0+y, dither))
	}
}
