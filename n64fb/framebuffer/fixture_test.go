package framebuffer

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/valerio/go-n64fb/n64fb/config"
	"github.com/valerio/go-n64fb/n64fb/display/headless"
	"github.com/valerio/go-n64fb/n64fb/gpu"
	"github.com/valerio/go-n64fb/n64fb/gpu/soft"
	"github.com/valerio/go-n64fb/n64fb/pixel"
	"github.com/valerio/go-n64fb/n64fb/rdp"
	"github.com/valerio/go-n64fb/n64fb/rdram"
	"github.com/valerio/go-n64fb/n64fb/texcache"
	"github.com/valerio/go-n64fb/n64fb/video"
)

const (
	bufA      = 0x100000
	bufB      = 0x200000
	depthAddr = 0x300000
	stride16  = 320 * 2
	rdramSize = 0x800000
)

type fixture struct {
	gpu   *soft.Context
	win   *headless.Window
	cfg   *config.Config
	vi    *video.Interface
	rdp   *rdp.State
	mem   *rdram.Memory
	cache *texcache.Cache
	reg   *Registry
}

type fixtureOption func(*fixtureSetup)

type fixtureSetup struct {
	screenW, screenH int
	caps             *gpu.Capabilities
	cfg              config.Config
}

func withScreen(w, h int) fixtureOption {
	return func(s *fixtureSetup) { s.screenW, s.screenH = w, h }
}

func withCaps(c gpu.Capabilities) fixtureOption {
	return func(s *fixtureSetup) { s.caps = &c }
}

func withConfig(f func(*config.Config)) fixtureOption {
	return func(s *fixtureSetup) { f(&s.cfg) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	setup := fixtureSetup{screenW: 320, screenH: 240, cfg: config.Default()}
	for _, opt := range opts {
		opt(&setup)
	}

	var gpuOpts []soft.Option
	if setup.caps != nil {
		gpuOpts = append(gpuOpts, soft.WithCapabilities(*setup.caps))
	}
	ctx := soft.New(setup.screenW, setup.screenH, gpuOpts...)
	win := headless.New(ctx, uint32(setup.screenW), uint32(setup.screenH), headless.SnapshotConfig{})

	vi := &video.Interface{}
	vi.Update(video.NTSC(bufA, 320, 240, video.BPP16))
	require.Equal(t, uint32(320), vi.Width)
	require.Equal(t, uint32(240), vi.Height)
	win.SetVIScale(vi.Width, vi.Height)

	cfg := setup.cfg
	f := &fixture{
		gpu:   ctx,
		win:   win,
		cfg:   &cfg,
		vi:    vi,
		rdp:   rdp.NewState(),
		mem:   rdram.New(rdramSize),
		cache: texcache.New(),
	}
	f.reg = New(Deps{
		GPU:    f.gpu,
		Cache:  f.cache,
		RDRAM:  f.mem,
		Window: f.win,
		Config: f.cfg,
		VI:     f.vi,
		RDP:    f.rdp,
	})
	t.Cleanup(f.reg.Destroy)
	return f
}

func (f *fixture) save(address, width uint32) *Target {
	f.reg.SaveBuffer(address, pixel.FormatRGBA, pixel.Size16b, width, false)
	return f.reg.Current()
}

// fill paints the whole colour texture of t.
func (f *fixture) fill(t *Target, c color.NRGBA) {
	f.fillRect(t, image.Rect(0, 0, 1<<12, 1<<12), c)
}

func (f *fixture) fillRect(t *Target, rect image.Rectangle, c color.NRGBA) {
	prev := f.gpu.BoundFramebuffer(gpu.DrawFramebuffer)
	f.gpu.BindFramebuffer(gpu.DrawFramebuffer, t.FBO())
	f.gpu.FillRect(rect, gpu.UnitColor(c.R), gpu.UnitColor(c.G), gpu.UnitColor(c.B), gpu.UnitColor(c.A))
	f.gpu.BindFramebuffer(gpu.DrawFramebuffer, prev)
}

func (f *fixture) fillWords(address, count, value uint32) {
	for i := uint32(0); i < count; i++ {
		f.mem.SetWord(address+i*4, value)
	}
}

var (
	red         = color.NRGBA{R: 0xFF, A: 0xFF}
	green       = color.NRGBA{G: 0xFF, A: 0xFF}
	blue        = color.NRGBA{B: 0xFF, A: 0xFF}
	transparent = color.NRGBA{}
)

func screenAt(f *fixture, x, y int) color.NRGBA {
	return f.gpu.Screen().NRGBAAt(x, y)
}
