package framebuffer

import (
	"image"

	"github.com/valerio/go-n64fb/n64fb/gpu"
)

// Video timing constants. Shifts are the first active dot and half-line
// of a standard mode; the horizontal scan is 640 dots wide.
const (
	ntscVShift = 37
	palVShift  = 47
	ntscHShift = 108
	palHShift  = 128
	scanDots   = 640
	ntscLines  = 240
	palLines   = 288

	lineMultiplier = 1.0126582
)

// presentPart is one source rectangle of the scanned-out image and where
// it lands on the screen.
type presentPart struct {
	target *Target
	src    image.Rectangle
	dst    image.Rectangle
}

// RenderBuffer presents the buffer the VI is scanning out and swaps the
// window. It runs once per vsync.
func (r *Registry) RenderBuffer() {
	env := &r.deps
	if !env.Config.FrameBufferEmulation.Enable {
		r.renderScreenBuffer()
		return
	}

	if cb := r.CopyBuffer(); cb != nil {
		r.color.copyTarget(cb, false)
		r.copyBuffer = Handle{}
	}

	vi := env.VI
	tm := vi.Timing()
	if vi.Blank() || tm.HEnd <= tm.HStart || tm.VEnd <= tm.VStart {
		r.presentBlank()
		return
	}

	origin := vi.Regs.Origin & 0xFFFFFF
	buf := r.FindBuffer(origin)
	if buf == nil {
		r.log().Debug("no buffer at vi origin", "origin", origin)
		return
	}
	buf.IsMainBuffer = true

	parts := r.layout(buf, origin)
	if len(parts) == 0 {
		r.presentBlank()
		return
	}

	ctx := env.GPU
	ctx.BindFramebuffer(gpu.DrawFramebuffer, gpu.DefaultFramebuffer)
	ctx.ClearColorBuffer(0, 0, 0, 1)
	// a stage's output target is shared, present each part before filtering the next
	for _, p := range parts {
		if r.post != nil {
			p.target = r.post.Process(p.target)
		}
		r.present(p)
	}
	env.Window.SwapBuffers()
	r.rebindCurrent()

	if env.Config.FrameBufferEmulation.ForceDepthBufferClear {
		if cur := r.Current(); cur != nil && cur.DepthBuffer() != nil {
			ctx.ClearDepthBuffer()
		}
	}
}

func scaleRect(rect image.Rectangle, scale float32) image.Rectangle {
	s := func(v int) int { return int(float32(v)*scale + 0.5) }
	return image.Rect(s(rect.Min.X), s(rect.Min.Y), s(rect.Max.X), s(rect.Max.Y))
}

// layout computes the source and screen rectangles of the scanned-out
// image, splitting it when it runs past buf into the next buffer.
func (r *Registry) layout(buf *Target, origin uint32) []presentPart {
	env := &r.deps
	vi := env.VI
	tm := vi.Timing()

	vShift, hShift, fullLines := ntscVShift, ntscHShift, ntscLines
	if vi.PAL {
		vShift, hShift, fullLines = palVShift, palHShift, palLines
	}

	screenW := int(env.Window.ScreenWidth())
	screenH := int(env.Window.ScreenHeight())
	hx0 := max(0, int(tm.HStart)-hShift)
	hx1 := max(0, hShift+scanDots-int(tm.HEnd))
	dstX0 := hx0 * screenW / scanDots
	dstX1 := screenW - hx1*screenW/scanDots

	lineY0 := max(0, int(tm.VStart)-vShift) >> 1
	lines := int(float32((tm.VEnd-tm.VStart)>>1)*lineMultiplier + 0.5)
	dstY0 := lineY0 * screenH / fullLines
	dstY1 := min(screenH, (lineY0+lines)*screenH/fullLines)
	if dstX1 <= dstX0 || dstY1 <= dstY0 {
		return nil
	}

	addrOffset := buf.Size.Pixels(origin - buf.StartAddress)
	srcX0 := int(addrOffset % buf.Width)
	srcY0 := int(addrOffset/buf.Width) + int(vi.Regs.OffsetY())
	if tm.LowerField && srcY0 > 0 {
		srcY0--
	}
	srcW := int(vi.Width)
	srcH := int(vi.RealHeight)
	if srcH == 0 {
		srcH = int(vi.Height)
	}
	src := image.Rect(srcX0, srcY0, srcX0+srcW, srcY0+srcH)

	m := env.Config.OverscanMargins(vi.PAL)
	src.Min.X += m.Left
	src.Max.X -= m.Right
	src.Min.Y += m.Top
	src.Max.Y -= m.Bottom
	if vi.Regs.Divot() && vi.Regs.AAMode() != 3 {
		src.Min.X++
		src.Max.X--
	}
	src.Max.X = min(src.Max.X, int(buf.Width))
	if src.Empty() {
		return nil
	}
	dst := image.Rect(dstX0, dstY0, dstX1, dstY1)

	bufRows := int(buf.Height)
	if src.Max.Y <= bufRows || src.Min.Y >= bufRows {
		return []presentPart{{target: buf, src: scaleRect(src, buf.Scale), dst: dst}}
	}

	// the picture continues in the buffer placed right after this one
	splitAddr := origin + uint32(bufRows-srcY0)*buf.Stride()
	second := r.FindBuffer(splitAddr)
	if second == nil || second == buf || second.Width != buf.Width {
		return []presentPart{{target: buf, src: scaleRect(src, buf.Scale), dst: dst}}
	}

	firstRows := bufRows - src.Min.Y
	splitY := dst.Min.Y + dst.Dy()*firstRows/src.Dy()
	top := presentPart{
		target: buf,
		src:    scaleRect(image.Rect(src.Min.X, src.Min.Y, src.Max.X, bufRows), buf.Scale),
		dst:    image.Rect(dst.Min.X, dst.Min.Y, dst.Max.X, splitY),
	}
	y2 := int(second.Size.Pixels(splitAddr-second.StartAddress) / second.Width)
	bottom := presentPart{
		target: second,
		src:    scaleRect(image.Rect(src.Min.X, y2, src.Max.X, y2+src.Dy()-firstRows), second.Scale),
		dst:    image.Rect(dst.Min.X, splitY, dst.Max.X, dst.Max.Y),
	}
	second.IsMainBuffer = true
	return []presentPart{top, bottom}
}

// present blits one part to the screen, drawing a textured rectangle when
// the backend cannot blit.
func (r *Registry) present(p presentPart) {
	ctx := r.deps.GPU
	if p.src.Empty() || p.dst.Empty() {
		return
	}
	if ctx.BlitFramebuffers(gpu.BlitParams{
		Read: p.target.ReadFBO(), Draw: gpu.DefaultFramebuffer,
		Src: p.src, Dst: p.dst, Filter: gpu.FilterLinear, Mask: gpu.MaskColor,
	}) {
		return
	}
	ctx.BindFramebuffer(gpu.DrawFramebuffer, gpu.DefaultFramebuffer)
	ctx.DrawTexturedRect(gpu.DrawRectParams{
		Texture: p.target.SampleTexture().ID,
		Src:     p.src,
		Dst:     p.dst,
		Filter:  gpu.FilterLinear,
	})
}

func (r *Registry) presentBlank() {
	ctx := r.deps.GPU
	ctx.BindFramebuffer(gpu.DrawFramebuffer, gpu.DefaultFramebuffer)
	ctx.ClearColorBuffer(0, 0, 0, 1)
	r.deps.Window.SwapBuffers()
	r.rebindCurrent()
}

// renderScreenBuffer presents the single screen-sized target used when
// emulation is disabled.
func (r *Registry) renderScreenBuffer() {
	env := &r.deps
	t := r.Current()
	if t == nil {
		r.presentBlank()
		return
	}
	height := env.VI.Height
	if height == 0 {
		height = t.Height
	}
	src := scaleRect(image.Rect(0, 0, int(t.Width), int(height)), t.Scale)
	dst := image.Rect(0, 0, int(env.Window.ScreenWidth()), int(env.Window.ScreenHeight()))
	ctx := env.GPU
	ctx.BindFramebuffer(gpu.DrawFramebuffer, gpu.DefaultFramebuffer)
	ctx.ClearColorBuffer(0, 0, 0, 1)
	r.present(presentPart{target: t, src: src, dst: dst})
	env.Window.SwapBuffers()
	r.rebindCurrent()
}
