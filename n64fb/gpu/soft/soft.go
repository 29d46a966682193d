// Package soft is a CPU implementation of gpu.Context.
//
// Colour textures are *image.NRGBA, depth textures are float32 planes with
// 1.0 as the far plane. Scaled copies go through golang.org/x/image/draw.
// It exists so the framebuffer core can run headless and under test.
package soft

import (
	"encoding/binary"
	"image"
	"image/color"
	"log/slog"
	"math"

	"golang.org/x/image/draw"

	"github.com/valerio/go-n64fb/n64fb/gpu"
)

var _ gpu.Context = (*Context)(nil)

type texture struct {
	width, height int
	format        gpu.Format
	samples       int
	sampler       gpu.SamplerParams
	color         *image.NRGBA
	depth         []float32
}

type framebuffer struct {
	color gpu.TextureID
	depth gpu.TextureID
}

// Stats counts backend calls, for tests and the debug dump.
type Stats struct {
	Textures     int
	Framebuffers int
	Blits        int
	Draws        int
	Barriers     int
	Readbacks    int
	Filters      int
}

// Context is a software graphics context. Not safe for concurrent use.
type Context struct {
	caps     gpu.Capabilities
	textures map[gpu.TextureID]*texture
	fbos     map[gpu.FramebufferID]*framebuffer
	nextTex  gpu.TextureID
	nextFBO  gpu.FramebufferID
	draw     gpu.FramebufferID
	read     gpu.FramebufferID
	stats    Stats
	log      *slog.Logger
}

// Option configures a Context.
type Option func(*Context)

// WithCapabilities overrides the advertised capabilities.
func WithCapabilities(c gpu.Capabilities) Option {
	return func(ctx *Context) { ctx.caps = c }
}

// WithLogger sets the logger used for degraded paths.
func WithLogger(l *slog.Logger) Option {
	return func(ctx *Context) { ctx.log = l }
}

// DefaultCapabilities is what a modern desktop driver reports.
func DefaultCapabilities() gpu.Capabilities {
	return gpu.Capabilities{
		BlitFramebuffer:         true,
		TextureBarrier:          true,
		DepthFramebufferTexture: true,
		MaxSamples:              16,
	}
}

// New creates a context whose default framebuffer is a screenWidth x
// screenHeight colour surface.
func New(screenWidth, screenHeight int, opts ...Option) *Context {
	ctx := &Context{
		caps:     DefaultCapabilities(),
		textures: make(map[gpu.TextureID]*texture),
		fbos:     make(map[gpu.FramebufferID]*framebuffer),
		nextTex:  1,
		nextFBO:  1,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(ctx)
	}
	screen := ctx.CreateTexture(gpu.TextureParams{Width: screenWidth, Height: screenHeight, Format: gpu.FormatRGBA8})
	ctx.fbos[gpu.DefaultFramebuffer] = &framebuffer{color: screen}
	// the screen is not a user texture
	ctx.stats.Textures--
	return ctx
}

func (c *Context) Capabilities() gpu.Capabilities { return c.caps }

// Stats returns a copy of the call counters.
func (c *Context) Stats() Stats { return c.stats }

func (c *Context) CreateTexture(p gpu.TextureParams) gpu.TextureID {
	w, h := max(p.Width, 1), max(p.Height, 1)
	t := &texture{width: w, height: h, format: p.Format, samples: p.Samples}
	if p.Format == gpu.FormatDepth {
		t.depth = make([]float32, w*h)
		for i := range t.depth {
			t.depth[i] = 1
		}
	} else {
		t.color = image.NewNRGBA(image.Rect(0, 0, w, h))
	}
	id := c.nextTex
	c.nextTex++
	c.textures[id] = t
	c.stats.Textures++
	return id
}

func (c *Context) UploadTexture(tex gpu.TextureID, pix []byte) {
	t := c.textures[tex]
	if t == nil || t.color == nil {
		return
	}
	copy(t.color.Pix, pix)
}

func (c *Context) SetTextureParameters(tex gpu.TextureID, p gpu.SamplerParams) {
	if t := c.textures[tex]; t != nil {
		t.sampler = p
	}
}

func (c *Context) DeleteTexture(tex gpu.TextureID) {
	if _, ok := c.textures[tex]; !ok || tex == c.fbos[gpu.DefaultFramebuffer].color {
		return
	}
	delete(c.textures, tex)
	c.stats.Textures--
}

func (c *Context) TextureSize(tex gpu.TextureID) (int, int) {
	t := c.textures[tex]
	if t == nil {
		return 0, 0
	}
	return t.width, t.height
}

func (c *Context) CreateFramebuffer() gpu.FramebufferID {
	id := c.nextFBO
	c.nextFBO++
	c.fbos[id] = &framebuffer{}
	c.stats.Framebuffers++
	return id
}

func (c *Context) DeleteFramebuffer(fb gpu.FramebufferID) {
	if fb == gpu.DefaultFramebuffer {
		return
	}
	if _, ok := c.fbos[fb]; !ok {
		return
	}
	delete(c.fbos, fb)
	c.stats.Framebuffers--
	if c.draw == fb {
		c.draw = gpu.DefaultFramebuffer
	}
	if c.read == fb {
		c.read = gpu.DefaultFramebuffer
	}
}

func (c *Context) AddFrameBufferRenderTarget(fb gpu.FramebufferID, attachment gpu.Attachment, tex gpu.TextureID) {
	f := c.fbos[fb]
	if f == nil || fb == gpu.DefaultFramebuffer {
		return
	}
	if attachment == gpu.AttachDepth {
		f.depth = tex
	} else {
		f.color = tex
	}
}

func (c *Context) CheckFramebufferStatus(fb gpu.FramebufferID) bool {
	f := c.fbos[fb]
	if f == nil {
		return false
	}
	col, dep := c.textures[f.color], c.textures[f.depth]
	if col == nil && dep == nil {
		return false
	}
	if col != nil && col.format != gpu.FormatRGBA8 {
		return false
	}
	if dep != nil && dep.format != gpu.FormatDepth {
		return false
	}
	if col != nil && dep != nil && (col.width != dep.width || col.height != dep.height) {
		return false
	}
	return true
}

func (c *Context) BindFramebuffer(target gpu.Target, fb gpu.FramebufferID) {
	if _, ok := c.fbos[fb]; !ok {
		fb = gpu.DefaultFramebuffer
	}
	if target == gpu.ReadFramebuffer {
		c.read = fb
	} else {
		c.draw = fb
	}
}

func (c *Context) BoundFramebuffer(target gpu.Target) gpu.FramebufferID {
	if target == gpu.ReadFramebuffer {
		return c.read
	}
	return c.draw
}

func (c *Context) colorOf(fb gpu.FramebufferID) *texture {
	f := c.fbos[fb]
	if f == nil {
		return nil
	}
	t := c.textures[f.color]
	if t == nil || t.color == nil {
		return nil
	}
	return t
}

func (c *Context) depthOf(fb gpu.FramebufferID) *texture {
	f := c.fbos[fb]
	if f == nil {
		return nil
	}
	t := c.textures[f.depth]
	if t == nil || t.depth == nil {
		return nil
	}
	return t
}

func scaler(f gpu.Filter) draw.Scaler {
	if f == gpu.FilterLinear {
		return draw.ApproxBiLinear
	}
	return draw.NearestNeighbor
}

// clipRects shrinks src to bounds and moves the matching edges of dst.
func clipRects(src, dst, bounds image.Rectangle) (image.Rectangle, image.Rectangle, bool) {
	if src.Empty() || dst.Empty() {
		return src, dst, false
	}
	clipped := src.Intersect(bounds)
	if clipped.Empty() {
		return src, dst, false
	}
	if clipped == src {
		return src, dst, true
	}
	sx := float64(dst.Dx()) / float64(src.Dx())
	sy := float64(dst.Dy()) / float64(src.Dy())
	out := image.Rect(
		dst.Min.X+int(math.Round(float64(clipped.Min.X-src.Min.X)*sx)),
		dst.Min.Y+int(math.Round(float64(clipped.Min.Y-src.Min.Y)*sy)),
		dst.Min.X+int(math.Round(float64(clipped.Max.X-src.Min.X)*sx)),
		dst.Min.Y+int(math.Round(float64(clipped.Max.Y-src.Min.Y)*sy)),
	)
	return clipped, out, !out.Empty()
}

func copyImage(dst *image.NRGBA, dr image.Rectangle, src *image.NRGBA, sr image.Rectangle, f gpu.Filter, op draw.Op) {
	sr, dr, ok := clipRects(sr, dr, src.Bounds())
	if !ok {
		return
	}
	if sr.Size() == dr.Size() {
		draw.Draw(dst, dr, src, sr.Min, op)
		return
	}
	scaler(f).Scale(dst, dr, src, sr, op, nil)
}

func copyDepth(dst *texture, dr image.Rectangle, src *texture, sr image.Rectangle) {
	sr, dr, ok := clipRects(sr, dr, image.Rect(0, 0, src.width, src.height))
	if !ok {
		return
	}
	dr = dr.Intersect(image.Rect(0, 0, dst.width, dst.height))
	for y := dr.Min.Y; y < dr.Max.Y; y++ {
		sy := sr.Min.Y + (y-dr.Min.Y)*sr.Dy()/max(dr.Dy(), 1)
		for x := dr.Min.X; x < dr.Max.X; x++ {
			sx := sr.Min.X + (x-dr.Min.X)*sr.Dx()/max(dr.Dx(), 1)
			dst.depth[y*dst.width+x] = src.depth[sy*src.width+sx]
		}
	}
}

func (c *Context) BlitFramebuffers(p gpu.BlitParams) bool {
	if !c.caps.BlitFramebuffer {
		return false
	}
	c.stats.Blits++
	if p.Mask == 0 || p.Mask&gpu.MaskColor != 0 {
		src, dst := c.colorOf(p.Read), c.colorOf(p.Draw)
		if src == nil || dst == nil {
			return false
		}
		copyImage(dst.color, p.Dst, src.color, p.Src, p.Filter, draw.Src)
	}
	if p.Mask&gpu.MaskDepth != 0 {
		src, dst := c.depthOf(p.Read), c.depthOf(p.Draw)
		if src == nil || dst == nil {
			return false
		}
		copyDepth(dst, p.Dst, src, p.Src)
	}
	return true
}

func unitToByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xFF
	}
	return uint8(v*255 + 0.5)
}

func (c *Context) ClearColorBuffer(r, g, b, a float32) {
	if t := c.colorOf(c.draw); t != nil {
		c.fill(t, t.color.Bounds(), r, g, b, a)
	}
}

func (c *Context) ClearDepthBuffer() {
	if t := c.depthOf(c.draw); t != nil {
		for i := range t.depth {
			t.depth[i] = 1
		}
	}
}

func (c *Context) FillRect(rect image.Rectangle, r, g, b, a float32) {
	if t := c.colorOf(c.draw); t != nil {
		c.fill(t, rect, r, g, b, a)
	}
}

func (c *Context) fill(t *texture, rect image.Rectangle, r, g, b, a float32) {
	col := color.NRGBA{R: unitToByte(r), G: unitToByte(g), B: unitToByte(b), A: unitToByte(a)}
	draw.Draw(t.color, rect.Intersect(t.color.Bounds()), image.NewUniform(col), image.Point{}, draw.Src)
}

// FillDepth writes z into rect of fb's depth attachment. Depth rendering is
// not part of the contract; tests use this to stand in for the rasterizer.
func (c *Context) FillDepth(fb gpu.FramebufferID, rect image.Rectangle, z float32) {
	t := c.depthOf(fb)
	if t == nil {
		return
	}
	rect = rect.Intersect(image.Rect(0, 0, t.width, t.height))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			t.depth[y*t.width+x] = z
		}
	}
}

func (c *Context) DrawTexturedRect(p gpu.DrawRectParams) {
	src := c.textures[p.Texture]
	dst := c.colorOf(c.draw)
	if src == nil || src.color == nil || dst == nil {
		return
	}
	c.stats.Draws++
	op := draw.Src
	if p.Blend {
		op = draw.Over
	}
	copyImage(dst.color, p.Dst, src.color, p.Src, p.Filter, op)
}

func (c *Context) TextureBarrier() {
	c.stats.Barriers++
}

// Image returns the colour plane of a texture, or nil.
func (c *Context) Image(tex gpu.TextureID) *image.NRGBA {
	if t := c.textures[tex]; t != nil {
		return t.color
	}
	return nil
}

// Screen returns the default framebuffer's colour plane.
func (c *Context) Screen() *image.NRGBA {
	return c.colorOf(gpu.DefaultFramebuffer).color
}

// ColorAttachment returns the colour texture attached to fb.
func (c *Context) ColorAttachment(fb gpu.FramebufferID) gpu.TextureID {
	if f := c.fbos[fb]; f != nil {
		return f.color
	}
	return gpu.NoTexture
}

func (c *Context) CreatePixelReadBuffer() gpu.PixelReadBuffer {
	return &readBuffer{ctx: c}
}

type readBuffer struct {
	ctx  *Context
	data []byte
}

func (rb *readBuffer) ReadPixels(fb gpu.FramebufferID, rect image.Rectangle, attachment gpu.Attachment, sync bool) bool {
	rb.data = nil
	if rect.Empty() {
		return false
	}
	rb.ctx.stats.Readbacks++
	if attachment == gpu.AttachDepth {
		t := rb.ctx.depthOf(fb)
		if t == nil {
			return false
		}
		rect = rect.Intersect(image.Rect(0, 0, t.width, t.height))
		if rect.Empty() {
			return false
		}
		out := make([]byte, 0, rect.Dx()*rect.Dy()*4)
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				out = binary.LittleEndian.AppendUint32(out, math.Float32bits(t.depth[y*t.width+x]))
			}
		}
		rb.data = out
		return true
	}

	t := rb.ctx.colorOf(fb)
	if t == nil {
		return false
	}
	rect = rect.Intersect(t.color.Bounds())
	if rect.Empty() {
		return false
	}
	out := make([]byte, 0, rect.Dx()*rect.Dy()*4)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		i := t.color.PixOffset(rect.Min.X, y)
		out = append(out, t.color.Pix[i:i+rect.Dx()*4]...)
	}
	rb.data = out
	return true
}

func (rb *readBuffer) DrawnPixels() []byte {
	return rb.data
}

func (rb *readBuffer) CleanUp() {
	rb.data = nil
}
