package n64fb_test

import (
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-n64fb/n64fb"
	"github.com/valerio/go-n64fb/n64fb/config"
	"github.com/valerio/go-n64fb/n64fb/debug"
	"github.com/valerio/go-n64fb/n64fb/display/headless"
	"github.com/valerio/go-n64fb/n64fb/gpu/soft"
	"github.com/valerio/go-n64fb/n64fb/trace"
	"github.com/valerio/go-n64fb/n64fb/video"
)

var _ trace.Target = (*n64fb.Context)(nil)

var red = color.NRGBA{R: 0xFF, A: 0xFF}

type harness struct {
	gpu *soft.Context
	win *headless.Window
	ctx *n64fb.Context
	dir string
}

func newHarness(t *testing.T, edit func(*config.Config)) *harness {
	t.Helper()
	h := &harness{gpu: soft.New(320, 240), dir: t.TempDir()}
	h.win = headless.New(h.gpu, 320, 240, headless.SnapshotConfig{})
	cfg := config.Default()
	if edit != nil {
		edit(&cfg)
	}
	ctx, err := n64fb.New(n64fb.Options{
		GPU:         h.gpu,
		Window:      h.win,
		Config:      cfg,
		RDRAMSize:   0x400000,
		SnapshotDir: h.dir,
	})
	require.NoError(t, err)
	t.Cleanup(ctx.Close)
	h.ctx = ctx
	return h
}

func (h *harness) run(t *testing.T, script string) error {
	t.Helper()
	s, err := trace.Parse(strings.NewReader(script))
	require.NoError(t, err)
	return s.Run(h.ctx)
}

func TestNewRequiresBackends(t *testing.T) {
	gpu := soft.New(320, 240)
	win := headless.New(gpu, 320, 240, headless.SnapshotConfig{})

	_, err := n64fb.New(n64fb.Options{Window: win})
	assert.ErrorIs(t, err, n64fb.ErrNoGPU)

	_, err = n64fb.New(n64fb.Options{GPU: gpu})
	assert.ErrorIs(t, err, n64fb.ErrNoWindow)

	ctx, err := n64fb.New(n64fb.Options{GPU: gpu, Window: win, Config: config.Default()})
	require.NoError(t, err)
	defer ctx.Close()
	assert.Equal(t, n64fb.DefaultRDRAMSize, ctx.RDRAM().Len())
	assert.Equal(t, []string{"gamma"}, stageNames(ctx))
}

func stageNames(ctx *n64fb.Context) []string {
	var names []string
	for _, s := range ctx.PostProcessor().Stages() {
		names = append(names, s.Name())
	}
	return names
}

func TestFullFrame(t *testing.T) {
	h := newHarness(t, nil)

	err := h.run(t, `
vi ntsc 0x100000 320 240 bpp16
colorimage 0x100000 320 16
fillcolor 0xF801F801
fillrect 0 0 320 240
expect32 0x100000 0xF801F801
expect16 0x1257FE 0xF801
vsync
expect16 0x100000 0xF801
expectbuffers 1
`)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), h.win.BuffersSwapCount())
	screen, err := h.ctx.Screen()
	require.NoError(t, err)
	assert.Equal(t, red, screen.NRGBAAt(160, 120))
	assert.Zero(t, h.ctx.RDP().ColorImage.Height, "per-frame state is reset")
}

func TestPartialFillStaysOnGPU(t *testing.T) {
	h := newHarness(t, nil)

	err := h.run(t, `
vi ntsc 0x100000 320 240 bpp16
colorimage 0x100000 320 16
fillcolor 0xF801F801
fillrect 0 0 160 120
expect32 0x100000 0
`)
	require.NoError(t, err)

	cur := h.ctx.FrameBuffers().Current()
	require.NotNil(t, cur)
	img, err := cur.ReadImage()
	require.NoError(t, err)
	assert.Equal(t, red, img.NRGBAAt(10, 10))
	assert.True(t, cur.Changed)
}

func TestDepthClear(t *testing.T) {
	h := newHarness(t, nil)

	err := h.run(t, `
vi ntsc 0x100000 320 240 bpp16
colorimage 0x100000 320 16
depthimage 0x200000
colorimage 0x200000 320 16
fillcolor 0xFFFCFFFC
fillrect 0 0 320 240
expect32 0x200000 0xFFFCFFFC
expect32 0x2257FC 0xFFFCFFFC
`)
	require.NoError(t, err)

	d := h.ctx.FrameBuffers().Depth.FindBuffer(0x200000)
	require.NotNil(t, d)
	assert.True(t, d.Cleared)
}

func TestUpdateVI(t *testing.T) {
	h := newHarness(t, nil)

	assert.True(t, h.ctx.UpdateVI(video.NTSC(0x100000, 320, 240, video.BPP16)))
	assert.False(t, h.ctx.UpdateVI(video.NTSC(0x100000, 320, 240, video.BPP16)))

	assert.True(t, h.ctx.UpdateVI(video.NTSC(0x100000, 640, 480, video.BPP16)))
	assert.Equal(t, uint32(640), h.ctx.VI().Width)
	assert.InDelta(t, 0.5, h.win.ScaleX(), 1e-6)
}

func TestResolutionChangeDropsBuffers(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.run(t, `
vi ntsc 0x100000 320 240 bpp16
colorimage 0x100000 320 16
changed 240
`))
	require.Equal(t, 1, h.ctx.FrameBuffers().Len())

	h.ctx.UpdateVI(video.NTSC(0x100000, 640, 480, video.BPP16))

	assert.Zero(t, h.ctx.FrameBuffers().Len())
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.run(t, `
vi ntsc 0x100000 320 240 bpp16
colorimage 0x100000 320 16
fillcolor 0xF801F801
fillrect 0 0 320 240
vsync
snapshot "frame one"
rdramsnapshot cfb 0x100000 320 240 16
`))

	matches, err := filepath.Glob(filepath.Join(h.dir, "frame one_*.png"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	img, err := debug.LoadImage(matches[0])
	require.NoError(t, err)
	r, g, b, _ := img.At(100, 100).RGBA()
	assert.Equal(t, [3]uint32{0xFFFF, 0, 0}, [3]uint32{r, g, b})

	matches, err = filepath.Glob(filepath.Join(h.dir, "cfb_*.png"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	img, err = debug.LoadImage(matches[0])
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	r, g, b, _ = img.At(319, 239).RGBA()
	assert.Equal(t, [3]uint32{0xFFFF, 0, 0}, [3]uint32{r, g, b})
}

func TestDumpWritesTargets(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.run(t, `
vi ntsc 0x100000 320 240 bpp16
colorimage 0x100000 320 16
changed 240
dump
`))

	matches, err := filepath.Glob(filepath.Join(h.dir, "fb_*.png"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestCopyToRDRAMOff(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.FrameBufferEmulation.CopyToRDRAM = config.CopyOff
	})

	err := h.run(t, `
vi ntsc 0x100000 320 240 bpp16
colorimage 0x100000 320 16
fillcolor 0xF801F801
fillrect 0 0 160 120
vsync
expect16 0x100000 0
`)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h.win.BuffersSwapCount())
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.run(t, "vi ntsc 0x100000 320 240 bpp16\ncolorimage 0x100000 320 16"))
	textures := h.gpu.Stats().Textures
	require.NotZero(t, textures)

	h.ctx.Close()
	h.ctx.Close()

	assert.Zero(t, h.gpu.Stats().Textures)
}
