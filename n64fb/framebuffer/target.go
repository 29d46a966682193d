package framebuffer

import (
	"image"

	"github.com/valerio/go-n64fb/n64fb/config"
	"github.com/valerio/go-n64fb/n64fb/debug"
	"github.com/valerio/go-n64fb/n64fb/gpu"
	"github.com/valerio/go-n64fb/n64fb/pixel"
	"github.com/valerio/go-n64fb/n64fb/rdp"
	"github.com/valerio/go-n64fb/n64fb/texcache"
)

const (
	// validityMask drops the coverage bit of both halves of a 16-bit word
	// pair; the RDP does not reproduce it reliably.
	validityMask = 0xFFFEFFFE

	// maxWidth is the widest colour image the RDP can render.
	maxWidth = 640

	// tailRows is how close to a buffer's end, in rows, a new address must
	// be for the two to be treated as one logical buffer.
	tailRows = 5
)

var fingerprint = [4]uint32{2, 6, 0, 3}

// ClearParams is the rectangle and colour of the last solid fill. X
// coordinates are in 32-bit words, Y in rows, lower-right exclusive.
type ClearParams struct {
	FillColor uint32
	ULX, ULY  uint32
	LRX, LRY  uint32
}

// renderTexture is a texture registered with the texture cache plus a
// framebuffer object rendering into it.
type renderTexture struct {
	tex *texcache.Texture
	fbo gpu.FramebufferID
}

func (rt *renderTexture) valid() bool {
	return rt.tex != nil
}

// Target is a GPU render target standing in for one N64 framebuffer.
type Target struct {
	StartAddress uint32
	EndAddress   uint32
	Width        uint32
	Height       uint32
	Format       pixel.Format
	Size         pixel.Size
	Scale        float32

	// OriginX and OriginY shift the viewport when the game renders into a
	// sub-region of this target.
	OriginX, OriginY uint32
	SwapCount        uint32

	Cleared       bool
	ClearParams   ClearParams
	Fingerprint   bool
	CopiedToRdram bool
	Changed       bool
	IsDepthBuffer bool
	IsMainBuffer  bool
	// CFB targets hold pixels imported from RDRAM rather than rendered.
	CFB      bool
	Readable bool
	Resolved bool

	auxiliary bool
	rdramCopy []uint32

	validityChecked uint32
	validityKnown   bool
	validityResult  bool

	main    renderTexture
	resolve renderTexture // single-sample copy of a multisampled main
	sub     renderTexture // tile-sized copy for wrapping reads
	shadow  renderTexture // same-frame read copy
	samples int

	depth Handle

	handle Handle
	reg    *Registry
}

func (t *Target) env() *Deps {
	return &t.reg.deps
}

// IsAuxiliary reports whether the target was created with a width other
// than the VI width: an off-screen render.
func (t *Target) IsAuxiliary() bool {
	return t.auxiliary
}

// Stride returns the byte length of one row.
func (t *Target) Stride() uint32 {
	return t.Size.Stride(t.Width)
}

// FBO returns the framebuffer object the RDP renders into.
func (t *Target) FBO() gpu.FramebufferID {
	return t.main.fbo
}

// Texture returns the cache entry of the main colour texture.
func (t *Target) Texture() *texcache.Texture {
	return t.main.tex
}

// Samples returns the multisample count of the main texture.
func (t *Target) Samples() int {
	return t.samples
}

// DepthBuffer returns the attached depth buffer, if still alive.
func (t *Target) DepthBuffer() *DepthBuffer {
	return t.reg.Depth.get(t.depth)
}

func (t *Target) scaled(v uint32) int {
	return int(float32(v)*t.Scale + 0.5)
}

func (t *Target) init(address uint32, format pixel.Format, size pixel.Size, width, height uint32, cfb bool) {
	env := t.env()
	t.StartAddress = address
	t.Format = format
	t.Size = size
	t.Width = width
	t.Height = height
	t.CFB = cfb
	t.auxiliary = width != env.VI.Width
	t.Scale = t.reg.resolveScale(width)
	t.samples = 0
	if env.Config.Video.Multisampling > 1 && env.GPU.Capabilities().MaxSamples >= env.Config.Video.Multisampling {
		t.samples = env.Config.Video.Multisampling
	}
	t.updateEndAddress()
	t.allocate()
}

// allocate creates the main (and resolve) textures sized for the tallest
// buffer this width can have.
func (t *Target) allocate() {
	env := t.env()
	w := t.scaled(t.Width)
	h := t.scaled(env.VI.MaxBufferHeight(t.Width))
	t.main = t.newRenderTexture(w, h, t.samples)
	if t.samples > 1 {
		t.resolve = t.newRenderTexture(w, h, 0)
	}
	t.Resolved = false
}

func (t *Target) newRenderTexture(w, h, samples int) renderTexture {
	env := t.env()
	params := gpu.TextureParams{Width: w, Height: h, Format: gpu.FormatRGBA8, Samples: samples}
	id := env.GPU.CreateTexture(params)
	env.GPU.SetTextureParameters(id, gpu.SamplerParams{Min: gpu.FilterNearest, Mag: gpu.FilterNearest})
	fbo := env.GPU.CreateFramebuffer()
	env.GPU.AddFrameBufferRenderTarget(fbo, gpu.AttachColor, id)
	debug.Assert(env.GPU.CheckFramebufferStatus(fbo), "framebuffer %d incomplete", fbo)
	return renderTexture{tex: env.Cache.AddFrameBufferTexture(id, params), fbo: fbo}
}

func (t *Target) releaseRenderTexture(rt *renderTexture) {
	if !rt.valid() {
		return
	}
	env := t.env()
	env.GPU.DeleteFramebuffer(rt.fbo)
	env.GPU.DeleteTexture(rt.tex.ID)
	env.Cache.RemoveFrameBufferTexture(rt.tex)
	*rt = renderTexture{}
}

func (t *Target) release() {
	t.releaseRenderTexture(&t.main)
	t.releaseRenderTexture(&t.resolve)
	t.releaseRenderTexture(&t.sub)
	t.releaseRenderTexture(&t.shadow)
}

// reformat switches an existing target to a new pixel size or scale and
// clears it to the RDP fill colour.
func (t *Target) reformat(format pixel.Format, size pixel.Size, scale float32) {
	env := t.env()
	if scale != t.Scale {
		t.release()
		t.Scale = scale
		t.allocate()
		if d := t.DepthBuffer(); d != nil {
			d.attach(t)
		}
	}
	t.Format = format
	t.Size = size
	t.updateEndAddress()

	prev := env.GPU.BoundFramebuffer(gpu.DrawFramebuffer)
	env.GPU.BindFramebuffer(gpu.DrawFramebuffer, t.main.fbo)
	r, g, b, a := fillColorUnit(env.RDP.FillColor, size)
	env.GPU.ClearColorBuffer(r, g, b, a)
	env.GPU.BindFramebuffer(gpu.DrawFramebuffer, prev)
	t.Resolved = false

	if t.CopiedToRdram {
		t.copyRdram()
	}
}

// Fill paints the RDP fill colour over a rectangle given in native pixels,
// lower-right exclusive.
func (t *Target) Fill(ulx, uly, lrx, lry int32) {
	env := t.env()
	clip := func(v int32) uint32 { return uint32(max(v, 0)) }
	rect := image.Rect(t.scaled(clip(ulx)), t.scaled(clip(uly)), t.scaled(clip(lrx)), t.scaled(clip(lry)))

	prev := env.GPU.BoundFramebuffer(gpu.DrawFramebuffer)
	env.GPU.BindFramebuffer(gpu.DrawFramebuffer, t.main.fbo)
	r, g, b, a := fillColorUnit(env.RDP.FillColor, t.Size)
	env.GPU.FillRect(rect, r, g, b, a)
	env.GPU.BindFramebuffer(gpu.DrawFramebuffer, prev)
	t.Resolved = false
}

func fillColorUnit(fill uint32, size pixel.Size) (r, g, b, a float32) {
	var c uint32
	if size == pixel.Size32b {
		c = pixel.FromRGBA32(fill, false)
	} else {
		c = pixel.FromRGBA16(uint16(fill), false)
	}
	r8, g8, b8, a8 := pixel.Unpack(c)
	return gpu.UnitColor(r8), gpu.UnitColor(g8), gpu.UnitColor(b8), gpu.UnitColor(a8)
}

// updateEndAddress recomputes the last byte of the buffer from its
// geometry. It never runs past the end of RDRAM or below StartAddress.
func (t *Target) updateEndAddress() {
	maxAddr := uint64(t.env().RDRAM.MaxAddress())
	height := uint64(max(t.Height, 1))
	end := uint64(t.StartAddress) + (uint64(t.Width)*height)<<t.Size>>1
	if end > 0 {
		end--
	}
	end = min(end, maxAddr)
	t.EndAddress = uint32(max(end, uint64(t.StartAddress)))
}

// ActiveRect is the area of the colour texture, in scaled pixels, that
// holds the buffer picture. Textures are allocated for the tallest buffer
// the VI mode allows, so the rows below Height are unused.
func (t *Target) ActiveRect() image.Rectangle {
	return image.Rect(0, 0, t.scaled(t.Width), t.scaled(max(t.Height, 1)))
}

// Contains reports whether address lies within the target's range.
func (t *Target) Contains(address uint32) bool {
	return address >= t.StartAddress && address <= t.EndAddress
}

// copyRdram captures the validity snapshot. Auxiliary buffers that are
// never written back get a fingerprint planted in RDRAM instead of a copy.
func (t *Target) copyRdram() {
	env := t.env()
	t.validityKnown = false
	stride := t.Stride()
	height := env.RDRAM.CutHeight(t.StartAddress, t.Height, stride)
	if height == 0 {
		return
	}
	dataSize := stride * height

	if t.auxiliary && !env.Config.FrameBufferEmulation.CopyAuxToRDRAM {
		words := max(uint32(4), dataSize/200)
		address := t.StartAddress &^ 3
		for i := uint32(0); i < words; i++ {
			v := uint32(0)
			if i < uint32(len(fingerprint)) {
				v = fingerprint[i]
			}
			env.RDRAM.SetWord(address+i*4, v)
		}
		t.rdramCopy = nil
		t.Cleared = false
		t.Fingerprint = true
		return
	}

	t.Fingerprint = false
	words := dataSize / 4
	if uint32(cap(t.rdramCopy)) >= words {
		t.rdramCopy = t.rdramCopy[:words]
	} else {
		t.rdramCopy = make([]uint32, words)
	}
	n := env.RDRAM.CopyWords(t.rdramCopy, t.StartAddress)
	t.rdramCopy = t.rdramCopy[:n]
}

// HasSnapshot reports whether a validity snapshot or fingerprint is held.
func (t *Target) HasSnapshot() bool {
	return len(t.rdramCopy) > 0 || t.Fingerprint
}

// IsValid reports whether RDRAM still holds what the target last saw,
// tolerating 1% of mismatched words. The result is computed once per
// swap unless forceCheck is set.
func (t *Target) IsValid(forceCheck bool) bool {
	swaps := t.env().Window.BuffersSwapCount()
	if !forceCheck && t.validityKnown && t.validityChecked == swaps {
		return t.validityResult
	}
	t.validityChecked = swaps
	t.validityKnown = true
	t.validityResult = t.checkValidity()
	return t.validityResult
}

func withinTolerance(wrong, total uint32) bool {
	return uint64(wrong)*100 <= uint64(total)
}

func (t *Target) checkValidity() bool {
	mem := t.env().RDRAM
	switch {
	case t.Cleared:
		p := t.ClearParams
		stride := t.Stride()
		lry := mem.CutHeight(t.StartAddress, p.LRY, stride)
		if lry == 0 || lry <= p.ULY || p.LRX <= p.ULX {
			return false
		}
		color := p.FillColor & validityMask
		var wrong, total uint32
		for y := p.ULY; y < lry; y++ {
			row := t.StartAddress + y*stride
			for x := p.ULX; x < p.LRX; x++ {
				total++
				if mem.Word(row+x*4)&validityMask != color {
					wrong++
				}
			}
		}
		return withinTolerance(wrong, total)

	case t.Fingerprint:
		address := t.StartAddress &^ 3
		for i, v := range fingerprint {
			if mem.Word(address+uint32(i)*4)&validityMask != v&validityMask {
				return false
			}
		}
		return true
	}

	if len(t.rdramCopy) == 0 {
		// nothing to compare against
		return true
	}
	var wrong uint32
	address := t.StartAddress &^ 3
	for i, v := range t.rdramCopy {
		if mem.Word(address+uint32(i)*4)&validityMask != v&validityMask {
			wrong++
		}
	}
	return withinTolerance(wrong, uint32(len(t.rdramCopy)))
}

// setClearParams records a solid fill. X is given in 32-bit words.
func (t *Target) setClearParams(fillColor, ulx, uly, lrx, lry uint32) {
	t.Cleared = true
	t.Fingerprint = false
	t.validityKnown = false
	t.ClearParams = ClearParams{FillColor: fillColor, ULX: ulx, ULY: uly, LRX: lrx, LRY: lry}
}

// ResolveMultisampledTexture blits the multisampled attachment into the
// resolve texture. It does nothing when already resolved, unless forced.
func (t *Target) ResolveMultisampledTexture(force bool) {
	if t.samples <= 1 || !t.resolve.valid() {
		return
	}
	if t.Resolved && !force {
		return
	}
	env := t.env()
	w, h := env.GPU.TextureSize(t.main.tex.ID)
	full := image.Rect(0, 0, w, h)
	if !env.GPU.BlitFramebuffers(gpu.BlitParams{
		Read: t.main.fbo, Draw: t.resolve.fbo,
		Src: full, Dst: full, Filter: gpu.FilterNearest, Mask: gpu.MaskColor,
	}) {
		t.reg.log().Warn("multisample resolve unavailable", "address", t.StartAddress)
		return
	}
	t.Resolved = true
}

// ReadFBO returns the framebuffer to read finished pixels from: the
// resolve target for multisampled buffers.
func (t *Target) ReadFBO() gpu.FramebufferID {
	if t.samples > 1 && t.resolve.valid() {
		t.ResolveMultisampledTexture(false)
		return t.resolve.fbo
	}
	return t.main.fbo
}

// SampleTexture returns a single-sample texture holding the target's pixels.
func (t *Target) SampleTexture() *texcache.Texture {
	if t.samples > 1 && t.resolve.valid() {
		t.ResolveMultisampledTexture(false)
		return t.resolve.tex
	}
	return t.main.tex
}

// texelShift converts a byte offset into the target into texel offsets.
func (t *Target) texelShift(address uint32) (s, tt float32) {
	if address < t.StartAddress || t.Width == 0 {
		return 0, 0
	}
	shift := t.Size.Pixels(address - t.StartAddress)
	return float32(shift % t.Width), float32(shift / t.Width)
}

// GetTexture returns the texture the RDP samples when tile reads from this
// target, with offsets and scales set from the tile.
func (t *Target) GetTexture(tileIndex int) *texcache.Texture {
	env := t.env()
	tile := env.RDP.TextureTile(tileIndex)

	if d := t.DepthBuffer(); d != nil && t.IsDepthBuffer &&
		env.RDP.ColorImage.Address == env.RDP.DepthImageAddress &&
		!t.CFB && !env.Config.Hacks.Has(config.HackZeldaMonochrome) {
		if tex := d.copyTexture(t); tex != nil {
			s, tt := t.texelShift(tile.ImageAddress)
			t.setSampling(tex, s, tt)
			return tex
		}
	}

	offsetS, offsetT := t.texelShift(tile.ImageAddress)
	if tile.LoadType == rdp.LoadTile {
		offsetS += float32(tile.LoadULS)
		offsetT += float32(tile.LoadULT)
	}

	if !tile.ClampS || !tile.ClampT || env.RDP.CycleType == rdp.CycleCopy {
		if tex := t.subTexture(tile, offsetS, offsetT); tex != nil {
			return tex
		}
	}

	tex := t.frameTexture()
	t.setSampling(tex, offsetS, offsetT)
	return tex
}

// GetTextureBG is GetTexture for background-image rectangles.
func (t *Target) GetTextureBG(tileIndex int) *texcache.Texture {
	env := t.env()
	tex := t.frameTexture()
	t.setSampling(tex, env.RDP.BgImage.ImageX, env.RDP.BgImage.ImageY)
	return tex
}

func (t *Target) setSampling(tex *texcache.Texture, offsetS, offsetT float32) {
	tex.OffsetS = offsetS
	tex.OffsetT = offsetT
	tex.ShiftScaleS = 1
	tex.ShiftScaleT = 1
	tex.HDRatio = t.Scale
	if tex.RealWidth > 0 {
		tex.ScaleS = t.Scale / float32(tex.RealWidth)
	}
	if tex.RealHeight > 0 {
		tex.ScaleT = t.Scale / float32(tex.RealHeight)
	}
}

// frameTexture returns a texture safe to sample given whether the target
// is also being rendered into this frame.
func (t *Target) frameTexture() *texcache.Texture {
	env := t.env()
	tex := t.SampleTexture()
	if t.reg.Current() != t {
		return tex
	}

	caps := env.GPU.Capabilities()
	switch {
	case caps.TextureBarrier && t.samples <= 1:
		env.GPU.TextureBarrier()
		return tex
	case caps.BlitFramebuffer:
		if shadow := t.copyFrameBufferTexture(); shadow != nil {
			return shadow
		}
	}
	if d := t.DepthBuffer(); d != nil && d.texCopy.valid() {
		return d.texCopy.tex
	}
	t.reg.log().Warn("no safe same-frame read path", "address", t.StartAddress)
	return tex
}

// copyFrameBufferTexture blits the target into its shadow texture.
func (t *Target) copyFrameBufferTexture() *texcache.Texture {
	env := t.env()
	w, h := env.GPU.TextureSize(t.main.tex.ID)
	if !t.shadow.valid() {
		t.shadow = t.newRenderTexture(w, h, 0)
	}
	full := image.Rect(0, 0, w, h)
	if !env.GPU.BlitFramebuffers(gpu.BlitParams{
		Read: t.ReadFBO(), Draw: t.shadow.fbo,
		Src: full, Dst: full, Filter: gpu.FilterNearest, Mask: gpu.MaskColor,
	}) {
		return nil
	}
	return t.shadow.tex
}

// subTexture copies the tile's footprint into a tile-sized texture so
// wrapping reads repeat the tile rather than the whole buffer.
func (t *Target) subTexture(tile *rdp.Tile, offsetS, offsetT float32) *texcache.Texture {
	env := t.env()
	if !env.GPU.Capabilities().BlitFramebuffer {
		return nil
	}
	tw, th := tile.Width(), tile.Height()
	if tile.LRS < tile.ULS || tile.LRT < tile.ULT || tw == 0 || th == 0 {
		return nil
	}
	w, h := t.scaled(tw), t.scaled(th)
	if t.sub.valid() {
		if sw, sh := env.GPU.TextureSize(t.sub.tex.ID); sw != w || sh != h {
			t.releaseRenderTexture(&t.sub)
		}
	}
	if !t.sub.valid() {
		t.sub = t.newRenderTexture(w, h, 0)
	}

	x0 := int(offsetS*t.Scale + 0.5)
	y0 := int(offsetT*t.Scale + 0.5)
	src := image.Rect(x0, y0, x0+w, y0+h)
	mw, mh := env.GPU.TextureSize(t.main.tex.ID)
	// past the buffer edge the copy shrinks rather than failing
	src = src.Intersect(image.Rect(0, 0, mw, mh))
	if src.Empty() {
		return nil
	}
	if !env.GPU.BlitFramebuffers(gpu.BlitParams{
		Read: t.ReadFBO(), Draw: t.sub.fbo,
		Src: src, Dst: image.Rect(0, 0, src.Dx(), src.Dy()),
		Filter: gpu.FilterNearest, Mask: gpu.MaskColor,
	}) {
		return nil
	}
	tex := t.sub.tex
	t.setSampling(tex, 0, 0)
	return tex
}
