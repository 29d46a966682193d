package framebuffer

import (
	"github.com/valerio/go-n64fb/n64fb/debug"
	"github.com/valerio/go-n64fb/n64fb/gpu"
)

// scratch is a native-resolution framebuffer the exporters downscale into
// before reading back. It is reallocated when the requested size changes.
type scratch struct {
	ctx    gpu.Context
	format gpu.Format
	tex    gpu.TextureID
	fbo    gpu.FramebufferID
	width  int
	height int
}

func (s *scratch) ensure(width, height int) gpu.FramebufferID {
	if s.tex != gpu.NoTexture && s.width == width && s.height == height {
		return s.fbo
	}
	s.release()
	s.tex = s.ctx.CreateTexture(gpu.TextureParams{Width: width, Height: height, Format: s.format})
	s.fbo = s.ctx.CreateFramebuffer()
	attachment := gpu.AttachColor
	if s.format == gpu.FormatDepth {
		attachment = gpu.AttachDepth
	}
	s.ctx.AddFrameBufferRenderTarget(s.fbo, attachment, s.tex)
	debug.Assert(s.ctx.CheckFramebufferStatus(s.fbo), "scratch framebuffer %d incomplete", s.fbo)
	s.width, s.height = width, height
	return s.fbo
}

func (s *scratch) release() {
	if s.tex == gpu.NoTexture {
		return
	}
	s.ctx.DeleteFramebuffer(s.fbo)
	s.ctx.DeleteTexture(s.tex)
	s.tex, s.fbo = gpu.NoTexture, 0
	s.width, s.height = 0, 0
}
