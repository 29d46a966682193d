package framebuffer

import (
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-n64fb/n64fb/config"
	"github.com/valerio/go-n64fb/n64fb/debug"
	"github.com/valerio/go-n64fb/n64fb/video"
)

var black = color.NRGBA{A: 0xFF}

func TestRenderBufferPresents(t *testing.T) {
	f := newFixture(t)
	cur := f.save(bufA, 320)
	f.fill(cur, green)

	f.reg.RenderBuffer()

	assert.Equal(t, uint32(1), f.win.BuffersSwapCount())
	assert.True(t, cur.IsMainBuffer)
	assert.Equal(t, green, screenAt(f, 160, 120))
	assert.Equal(t, green, screenAt(f, 0, 0))
	assert.Equal(t, green, screenAt(f, 319, 239))
}

func TestRenderBufferScaledWindow(t *testing.T) {
	f := newFixture(t, withScreen(640, 480))
	cur := f.save(bufA, 320)
	f.fill(cur, blue)

	f.reg.RenderBuffer()

	assert.Equal(t, blue, screenAt(f, 320, 240))
	assert.Equal(t, blue, screenAt(f, 639, 479))
}

func TestRenderBufferBlank(t *testing.T) {
	f := newFixture(t)
	cur := f.save(bufA, 320)
	f.fill(cur, green)
	f.vi.Update(video.NTSC(bufA, 320, 240, video.BPPBlank))

	f.reg.RenderBuffer()

	assert.Equal(t, uint32(1), f.win.BuffersSwapCount())
	assert.Equal(t, black, screenAt(f, 160, 120))
}

func TestRenderBufferNoBufferAtOrigin(t *testing.T) {
	f := newFixture(t)
	f.save(bufB, 320)

	f.reg.RenderBuffer()

	assert.Zero(t, f.win.BuffersSwapCount())
}

func TestRenderBufferSplitsAcrossBuffers(t *testing.T) {
	f := newFixture(t)
	top := f.save(bufA, 320)
	f.fill(top, red)
	bottom := f.save(bufA+240*stride16, 320)
	f.fill(bottom, blue)
	require.Equal(t, 2, f.reg.Len())
	f.vi.Update(video.NTSC(bufA+120*stride16, 320, 240, video.BPP16))

	f.reg.RenderBuffer()

	assert.Equal(t, red, screenAt(f, 160, 60))
	assert.Equal(t, blue, screenAt(f, 160, 200))
	assert.True(t, top.IsMainBuffer)
	assert.True(t, bottom.IsMainBuffer)
}

func TestRenderBufferOverscan(t *testing.T) {
	f := newFixture(t, withConfig(func(c *config.Config) {
		c.Overscan.Enable = true
		c.Overscan.NTSC.Left = 10
	}))
	cur := f.save(bufA, 320)
	f.fill(cur, red)
	f.fillRect(cur, image.Rect(0, 0, 10, 240), blue)

	f.reg.RenderBuffer()

	assert.Equal(t, red, screenAt(f, 5, 120))
}

func TestRenderBufferExportsCopyBuffer(t *testing.T) {
	f := newFixture(t, withConfig(func(c *config.Config) {
		c.FrameBufferEmulation.CopyToRDRAM = config.CopyAsync
	}))
	cur := f.save(bufA, 320)
	f.fill(cur, red)
	f.reg.SetCopyBuffer(cur)

	f.reg.RenderBuffer()

	assert.Nil(t, f.reg.CopyBuffer())
	assert.True(t, cur.CopiedToRdram)
	assert.Equal(t, uint16(0xF801), f.mem.Half(bufA))
}

type recordingPost struct {
	seen []*Target
}

func (p *recordingPost) Process(t *Target) *Target {
	p.seen = append(p.seen, t)
	return t
}

func TestRenderBufferPostProcess(t *testing.T) {
	f := newFixture(t)
	cur := f.save(bufA, 320)
	post := &recordingPost{}
	f.reg.SetPostProcessor(post)

	f.reg.RenderBuffer()

	require.Len(t, post.seen, 1)
	assert.Same(t, cur, post.seen[0])
}

// tintPost paints every buffer it is given into one shared offscreen
// target, a different colour per call.
type tintPost struct {
	f      *fixture
	out    *Target
	colors []color.NRGBA
	calls  int
}

func (p *tintPost) Process(t *Target) *Target {
	if p.out == nil {
		p.out = p.f.reg.NewOffscreen(t)
	}
	p.f.fill(p.out, p.colors[p.calls%len(p.colors)])
	p.calls++
	return p.out
}

func TestRenderBufferPostProcessesBothSplitHalves(t *testing.T) {
	f := newFixture(t)
	top := f.save(bufA, 320)
	f.fill(top, red)
	bottom := f.save(bufA+240*stride16, 320)
	f.fill(bottom, blue)
	f.vi.Update(video.NTSC(bufA+120*stride16, 320, 240, video.BPP16))
	post := &tintPost{f: f, colors: []color.NRGBA{green, {R: 0xFF, G: 0xFF, A: 0xFF}}}
	f.reg.SetPostProcessor(post)
	t.Cleanup(func() { f.reg.ReleaseOffscreen(post.out) })

	f.reg.RenderBuffer()

	assert.Equal(t, 2, post.calls)
	assert.Equal(t, green, screenAt(f, 160, 60))
	assert.Equal(t, color.NRGBA{R: 0xFF, G: 0xFF, A: 0xFF}, screenAt(f, 160, 200))
}

func TestRenderBufferEmulationDisabled(t *testing.T) {
	f := newFixture(t, withConfig(func(c *config.Config) { c.FrameBufferEmulation.Enable = false }))
	cur := f.save(bufB, 64)
	f.fill(cur, red)

	f.reg.RenderBuffer()

	assert.Equal(t, uint32(1), f.win.BuffersSwapCount())
	assert.Equal(t, red, screenAt(f, 160, 120))
}

func TestDump(t *testing.T) {
	f := newFixture(t)
	a := f.save(bufA, 320)
	f.fill(a, green)
	f.rdp.Scissor.LRY = 32
	f.save(bufB, 64)

	dir := t.TempDir()
	paths, err := f.reg.Dump(dir, debug.FormatPNG)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	var found bool
	for _, p := range paths {
		assert.Equal(t, dir, filepath.Dir(p))
		if !strings.HasPrefix(filepath.Base(p), "fb_00100000_320") {
			continue
		}
		found = true
		img, err := debug.LoadImage(p)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())
		r, g, b, _ := img.At(10, 10).RGBA()
		assert.Equal(t, [3]uint32{0, 0xFFFF, 0}, [3]uint32{r, g, b})
	}
	assert.True(t, found)
}
