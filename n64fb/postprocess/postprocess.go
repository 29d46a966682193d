// Package postprocess runs full-screen filter passes over the buffer that is
// about to be presented.
package postprocess

import (
	"log/slog"

	"github.com/valerio/go-n64fb/n64fb/config"
	"github.com/valerio/go-n64fb/n64fb/framebuffer"
	"github.com/valerio/go-n64fb/n64fb/gpu"
	"github.com/valerio/go-n64fb/n64fb/video"
)

// Stage is one pass of the pipeline. Apply returns in unchanged when the
// pass has nothing to do this frame.
type Stage interface {
	Name() string
	Apply(in *framebuffer.Target) *framebuffer.Target
}

// pass is a stage backed by a single GPU filter. It renders into an
// offscreen target it owns, recreated when the input size changes.
type pass struct {
	name     string
	kind     gpu.FilterKind
	ctx      gpu.Context
	reg      *framebuffer.Registry
	active   func() bool
	amount   func() float32
	out      *framebuffer.Target
	outW     uint32
	outH     uint32
	outScale float32
}

func (p *pass) Name() string { return p.name }

func (p *pass) Apply(in *framebuffer.Target) *framebuffer.Target {
	if in == nil || (p.active != nil && !p.active()) {
		return in
	}
	tex := in.SampleTexture()
	if tex == nil {
		return in
	}
	if p.out == nil || p.outW != tex.Width || p.outH != tex.Height || p.outScale != in.Scale {
		p.release()
		p.out = p.reg.NewOffscreen(in)
		p.outW, p.outH, p.outScale = tex.Width, tex.Height, in.Scale
	}
	fp := gpu.FilterPass{Kind: p.kind, Src: tex.ID, Dst: p.out.FBO(), Rect: in.ActiveRect()}
	if p.amount != nil {
		fp.Amount = p.amount()
	}
	p.ctx.ApplyFilter(fp)
	return p.out
}

func (p *pass) release() {
	if p.out != nil {
		p.reg.ReleaseOffscreen(p.out)
		p.out = nil
	}
}

// GammaCorrection applies the VI gamma curve when the game enables it, or
// always when forced by the config.
func GammaCorrection(ctx gpu.Context, reg *framebuffer.Registry, cfg *config.Config, vi *video.Interface) Stage {
	return &pass{
		name:   "gamma",
		kind:   gpu.FilterGamma,
		ctx:    ctx,
		reg:    reg,
		active: func() bool { return cfg.Gamma.Force || vi.Regs.Gamma() },
		amount: func() float32 { return cfg.Gamma.Level },
	}
}

// FXAA smooths edges with a fast approximate anti-aliasing pass.
func FXAA(ctx gpu.Context, reg *framebuffer.Registry) Stage {
	return &pass{name: "fxaa", kind: gpu.FilterFXAA, ctx: ctx, reg: reg}
}

// OrientationFix flips or rotates the image. It returns nil for
// config.OrientationNone.
func OrientationFix(ctx gpu.Context, reg *framebuffer.Registry, o config.Orientation) Stage {
	var kind gpu.FilterKind
	switch o {
	case config.OrientationFlipVertical:
		kind = gpu.FilterFlipVertical
	case config.OrientationMirror:
		kind = gpu.FilterFlipHorizontal
	case config.OrientationRotate180:
		kind = gpu.FilterRotate180
	default:
		return nil
	}
	return &pass{name: "orientation", kind: kind, ctx: ctx, reg: reg}
}

// PostProcessor is the ordered stage list, fixed at construction.
type PostProcessor struct {
	stages []Stage
}

var _ framebuffer.PostProcessor = (*PostProcessor)(nil)

// New builds the pipeline the config asks for: gamma first, then FXAA, then
// the orientation fix.
func New(ctx gpu.Context, reg *framebuffer.Registry, cfg *config.Config, vi *video.Interface) *PostProcessor {
	p := &PostProcessor{}
	p.stages = append(p.stages, GammaCorrection(ctx, reg, cfg, vi))
	if cfg.Video.FXAA {
		p.stages = append(p.stages, FXAA(ctx, reg))
	}
	if s := OrientationFix(ctx, reg, cfg.Orientation); s != nil {
		p.stages = append(p.stages, s)
	}

	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	slog.Debug("post-processing pipeline", "stages", names)
	return p
}

// Stages returns the pipeline in execution order.
func (p *PostProcessor) Stages() []Stage {
	return p.stages
}

// Process runs every stage in order, each consuming the previous output.
func (p *PostProcessor) Process(t *framebuffer.Target) *framebuffer.Target {
	for _, s := range p.stages {
		t = s.Apply(t)
	}
	return t
}

// Destroy releases the offscreen targets held by the stages.
func (p *PostProcessor) Destroy() {
	for _, s := range p.stages {
		if ps, ok := s.(*pass); ok {
			ps.release()
		}
	}
}
