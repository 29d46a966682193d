package framebuffer

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/valerio/go-n64fb/n64fb/config"
	"github.com/valerio/go-n64fb/n64fb/gpu"
	"github.com/valerio/go-n64fb/n64fb/pixel"
	"github.com/valerio/go-n64fb/n64fb/scan"
)

// depthSkip is never produced by a depth readback, so every texel is stored.
const depthSkip float32 = 2.0

// depthExporter writes the current depth buffer into the RDRAM depth image
// as compressed 16-bit Z.
type depthExporter struct {
	reg    *Registry
	native scratch
	depths []float32
	rb     gpu.PixelReadBuffer
	frame  uint32
	ready  bool
}

func newDepthExporter(r *Registry) *depthExporter {
	return &depthExporter{
		reg:    r,
		native: scratch{ctx: r.deps.GPU, format: gpu.FormatDepth},
	}
}

func (e *depthExporter) destroy() {
	e.native.release()
	if e.rb != nil {
		e.rb.CleanUp()
		e.rb = nil
	}
	e.ready = false
}

// source returns the colour target whose depth attachment is exported, or
// nil when nothing exportable is attached.
func (e *depthExporter) source() (*Target, *DepthBuffer) {
	env := &e.reg.deps
	if env.Config.FrameBufferEmulation.CopyDepthToRDRAM != config.DepthCopyVideoCard {
		return nil, nil
	}
	if env.VI.Width == 0 || env.VI.Height == 0 {
		return nil, nil
	}
	t := e.reg.Current()
	if t == nil || t.Width < env.VI.Width {
		return nil, nil
	}
	d := t.DepthBuffer()
	if d == nil || d.depth == nil || !d.Cleared {
		return nil, nil
	}
	return t, d
}

func (e *depthExporter) copyToRDRAM(address uint32) bool {
	t, d := e.source()
	if t == nil {
		return false
	}
	if !e.copy(t, d, address, 0, false) {
		return false
	}
	d.Cleared = false
	if c := e.reg.FindBuffer(d.Address); c != nil {
		c.Cleared = false
	}
	return true
}

func (e *depthExporter) copyChunk(address uint32) bool {
	t, d := e.source()
	if t == nil {
		return false
	}
	start := max(address&^(chunkSize-1), d.Address)
	return e.copy(t, d, start, chunkSize, true)
}

// prepare returns the framebuffer whose depth attachment holds native
// resolution depth for t.
func (e *depthExporter) prepare(t *Target, width, height int, chunk bool) gpu.FramebufferID {
	env := &e.reg.deps
	if t.Scale == 1 {
		return t.main.fbo
	}
	swaps := env.Window.BuffersSwapCount()
	if chunk && e.ready && e.frame == swaps && e.native.width == width && e.native.height == height {
		return e.native.fbo
	}
	fbo := e.native.ensure(width, height)
	if !env.GPU.BlitFramebuffers(gpu.BlitParams{
		Read: t.main.fbo, Draw: fbo,
		Src:    image.Rect(0, 0, t.scaled(uint32(width)), t.scaled(uint32(height))),
		Dst:    image.Rect(0, 0, width, height),
		Filter: gpu.FilterNearest, Mask: gpu.MaskDepth,
	}) {
		e.reg.log().Warn("depth downscale unavailable", "address", t.StartAddress)
		return 0
	}
	e.frame, e.ready = swaps, true
	return fbo
}

func (e *depthExporter) copy(t *Target, d *DepthBuffer, start, numBytes uint32, chunk bool) bool {
	env := &e.reg.deps
	width := env.VI.Width
	stride := pixel.Size16b.Stride(width)
	height := env.RDRAM.CutHeight(d.Address, env.VI.Height, stride)
	total := stride * height
	if height == 0 || start < d.Address || start >= d.Address+total {
		return false
	}
	offset := start - d.Address
	if numBytes == 0 || offset+numBytes > total {
		numBytes = total - offset
	}
	y0 := offset / stride
	y1 := min(height, (offset+numBytes+stride-1)/stride)

	fbo := e.prepare(t, int(width), int(height), chunk)
	if fbo == 0 {
		return false
	}
	if e.rb == nil {
		e.rb = env.GPU.CreatePixelReadBuffer()
	}
	// the readback is requested up front and collected below
	if !e.rb.ReadPixels(fbo, image.Rect(0, int(y0), int(width), int(y1)), gpu.AttachDepth, false) {
		e.reg.log().Warn("depth readback failed", "address", d.Address)
		return false
	}
	data := e.rb.DrawnPixels()
	defer e.rb.CleanUp()

	n := len(data) / 4
	if cap(e.depths) < n {
		e.depths = make([]float32, n)
	}
	src := e.depths[:n]
	for i := range src {
		src[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	rows := min(uint32(n)/width, y1-y0)
	if rows == 0 {
		return false
	}

	lut := e.reg.Depth.ZLUT
	mem := env.RDRAM
	params := scan.Params{
		Width:         width,
		Height:        rows,
		NumPixels:     pixel.Size16b.Pixels(numBytes),
		StartAddress:  start,
		BufferAddress: d.Address,
		Size:          pixel.Size16b,
	}
	scan.Write(src, params, depthSkip, func(address uint32, z float32, _, _ uint32) {
		mem.SetHalf(address, lut.FromFloat(z))
	})
	return true
}
