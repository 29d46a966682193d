package framebuffer

import (
	"image"

	"github.com/valerio/go-n64fb/n64fb/debug"
	"github.com/valerio/go-n64fb/n64fb/gpu"
	"github.com/valerio/go-n64fb/n64fb/pixel"
	"github.com/valerio/go-n64fb/n64fb/texcache"
)

// DepthBuffer is the GPU depth attachment standing in for the N64 depth
// image at Address.
type DepthBuffer struct {
	Address uint32
	Width   uint32

	// Cleared is set by a depth fill and consumed by the depth exporter.
	// The rectangle is in native pixels, lower-right exclusive.
	Cleared            bool
	ULX, ULY, LRX, LRY uint32

	depth   *texcache.Texture
	texCopy renderTexture // depth copy sampled as a texture
	handle  Handle
	list    *DepthBufferList
}

// DepthBufferList tracks depth buffers by depth image address.
type DepthBufferList struct {
	reg     *Registry
	buffers arena[DepthBuffer]
	order   []Handle
	current Handle

	// ZLUT converts GPU depth into the compressed RDRAM Z format.
	ZLUT *pixel.ZLUT
}

func newDepthBufferList(reg *Registry) *DepthBufferList {
	return &DepthBufferList{reg: reg, ZLUT: pixel.NewZLUT()}
}

func (l *DepthBufferList) get(h Handle) *DepthBuffer {
	return l.buffers.get(h)
}

// Current returns the buffer at the last depth image address, or nil.
func (l *DepthBufferList) Current() *DepthBuffer {
	return l.buffers.get(l.current)
}

// Len returns the number of live depth buffers.
func (l *DepthBufferList) Len() int {
	return l.buffers.len()
}

// FindBuffer returns the buffer whose address is exactly address.
func (l *DepthBufferList) FindBuffer(address uint32) *DepthBuffer {
	for _, h := range l.order {
		if d := l.buffers.get(h); d != nil && d.Address == address {
			return d
		}
	}
	return nil
}

// SaveBuffer makes the buffer at address current, creating it if needed,
// and attaches it to the colour target being rendered. A buffer whose
// width no longer matches that target is recreated.
func (l *DepthBufferList) SaveBuffer(address uint32) {
	fb := l.reg.Current()
	if fb != nil && fb.StartAddress == address {
		fb.IsDepthBuffer = true
	}

	if cur := l.Current(); cur != nil && cur.Address == address && (fb == nil || cur.Width == fb.Width) {
		if fb != nil {
			cur.attach(fb)
		}
		return
	}

	d := l.FindBuffer(address)
	if d != nil && fb != nil && d.Width != fb.Width {
		l.RemoveBuffer(address)
		d = nil
	}
	if d == nil {
		width := l.reg.deps.VI.Width
		if fb != nil {
			width = fb.Width
		}
		d = &DepthBuffer{Address: address, Width: width, list: l}
		d.handle = l.buffers.insert(d)
		l.order = append([]Handle{d.handle}, l.order...)
		l.reg.log().Debug("depth buffer created", "address", address, "width", width)
	}
	l.current = d.handle
	if fb != nil {
		d.attach(fb)
	}
}

// ClearBuffer records a depth fill over rect and clears the GPU depth of
// the target the buffer is attached to.
func (l *DepthBufferList) ClearBuffer(ulx, uly, lrx, lry uint32) {
	d := l.Current()
	if d == nil {
		return
	}
	d.Cleared = true
	d.ULX, d.ULY, d.LRX, d.LRY = ulx, uly, lrx, lry

	fb := l.reg.Current()
	if fb == nil || fb.depth != d.handle {
		return
	}
	ctx := l.reg.deps.GPU
	prev := ctx.BoundFramebuffer(gpu.DrawFramebuffer)
	ctx.BindFramebuffer(gpu.DrawFramebuffer, fb.main.fbo)
	ctx.ClearDepthBuffer()
	ctx.BindFramebuffer(gpu.DrawFramebuffer, prev)
}

// RemoveBuffer destroys the buffer at address.
func (l *DepthBufferList) RemoveBuffer(address uint32) {
	for i, h := range l.order {
		d := l.buffers.get(h)
		if d == nil || d.Address != address {
			continue
		}
		d.release()
		l.buffers.remove(h)
		l.order = append(l.order[:i], l.order[i+1:]...)
		return
	}
}

// Reset destroys all depth buffers.
func (l *DepthBufferList) Reset() {
	for _, h := range l.order {
		if d := l.buffers.get(h); d != nil {
			d.release()
			l.buffers.remove(h)
		}
	}
	l.order = nil
	l.current = Handle{}
}

// attach makes d the depth attachment of t, resizing the depth texture
// to t's colour texture.
func (d *DepthBuffer) attach(t *Target) {
	env := &d.list.reg.deps
	w, h := env.GPU.TextureSize(t.main.tex.ID)
	if d.depth != nil && (int(d.depth.Width) != w || int(d.depth.Height) != h) {
		d.release()
	}
	if d.depth == nil {
		params := gpu.TextureParams{Width: w, Height: h, Format: gpu.FormatDepth, Samples: t.samples}
		id := env.GPU.CreateTexture(params)
		d.depth = env.Cache.AddFrameBufferTexture(id, params)
	}
	env.GPU.AddFrameBufferRenderTarget(t.main.fbo, gpu.AttachDepth, d.depth.ID)
	debug.Assert(env.GPU.CheckFramebufferStatus(t.main.fbo), "framebuffer %d incomplete with depth", t.main.fbo)
	t.depth = d.handle
}

func (d *DepthBuffer) release() {
	env := &d.list.reg.deps
	if d.depth != nil {
		env.GPU.DeleteTexture(d.depth.ID)
		env.Cache.RemoveFrameBufferTexture(d.depth)
		d.depth = nil
	}
	if d.texCopy.valid() {
		env.GPU.DeleteFramebuffer(d.texCopy.fbo)
		env.GPU.DeleteTexture(d.texCopy.tex.ID)
		env.Cache.RemoveFrameBufferTexture(d.texCopy.tex)
		d.texCopy = renderTexture{}
	}
}

// copyTexture copies the depth attachment of t into a depth texture that
// can be sampled while t keeps rendering. It returns nil when the backend
// cannot sample depth.
func (d *DepthBuffer) copyTexture(t *Target) *texcache.Texture {
	env := &d.list.reg.deps
	if d.depth == nil || !env.GPU.Capabilities().DepthFramebufferTexture {
		return nil
	}
	w, h := int(d.depth.Width), int(d.depth.Height)
	if !d.texCopy.valid() {
		params := gpu.TextureParams{Width: w, Height: h, Format: gpu.FormatDepth}
		id := env.GPU.CreateTexture(params)
		fbo := env.GPU.CreateFramebuffer()
		env.GPU.AddFrameBufferRenderTarget(fbo, gpu.AttachDepth, id)
		debug.Assert(env.GPU.CheckFramebufferStatus(fbo), "depth copy framebuffer %d incomplete", fbo)
		d.texCopy = renderTexture{tex: env.Cache.AddFrameBufferTexture(id, params), fbo: fbo}
	}
	full := image.Rect(0, 0, w, h)
	if !env.GPU.BlitFramebuffers(gpu.BlitParams{
		Read: t.main.fbo, Draw: d.texCopy.fbo,
		Src: full, Dst: full, Filter: gpu.FilterNearest, Mask: gpu.MaskDepth,
	}) {
		return nil
	}
	return d.texCopy.tex
}
