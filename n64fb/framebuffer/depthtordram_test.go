package framebuffer

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-n64fb/n64fb/config"
)

// depthFixture renders into bufA with the depth image at depthAddr and a
// freshly cleared depth buffer whose top half holds z.
func depthFixture(t *testing.T, z float32, opts ...fixtureOption) (*fixture, *Target) {
	t.Helper()
	f := newFixture(t, opts...)
	f.rdp.DepthImageAddress = depthAddr
	cur := f.save(bufA, 320)
	f.reg.Depth.SaveBuffer(depthAddr)
	require.NotNil(t, cur.DepthBuffer())

	f.reg.Depth.ClearBuffer(0, 0, 320, 240)
	rows := cur.scaled(120)
	f.gpu.FillDepth(cur.FBO(), image.Rect(0, 0, cur.scaled(320), rows), z)
	return f, cur
}

func TestCopyDepthBuffer(t *testing.T) {
	f, cur := depthFixture(t, 0.5)
	lut := f.reg.Depth.ZLUT

	require.True(t, f.reg.CopyDepthBuffer(depthAddr))

	assert.Equal(t, lut.FromFloat(0.5), f.mem.Half(depthAddr))
	assert.Equal(t, lut.FromFloat(0.5), f.mem.Half(depthAddr+119*stride16+319*2))
	assert.Equal(t, lut.FromFloat(1), f.mem.Half(depthAddr+120*stride16))
	assert.Equal(t, lut.FromFloat(1), f.mem.Half(depthAddr+239*stride16+319*2))
	assert.Zero(t, f.mem.Half(depthAddr+240*stride16))
	assert.False(t, cur.DepthBuffer().Cleared)

	// a second export needs another depth clear
	assert.False(t, f.reg.CopyDepthBuffer(depthAddr))
}

func TestCopyDepthBufferScaled(t *testing.T) {
	f, _ := depthFixture(t, 0.25, withScreen(640, 480))
	lut := f.reg.Depth.ZLUT

	require.True(t, f.reg.CopyDepthBuffer(depthAddr))
	assert.Equal(t, lut.FromFloat(0.25), f.mem.Half(depthAddr+60*stride16+100*2))
	assert.Equal(t, lut.FromFloat(1), f.mem.Half(depthAddr+200*stride16))
}

func TestCopyDepthBufferChunk(t *testing.T) {
	f, cur := depthFixture(t, 0.5)
	lut := f.reg.Depth.ZLUT

	require.True(t, f.reg.CopyDepthBufferChunk(depthAddr+0x1002))

	assert.Zero(t, f.mem.Half(depthAddr+0x0FFE))
	assert.Equal(t, lut.FromFloat(0.5), f.mem.Half(depthAddr+0x1000))
	assert.Equal(t, lut.FromFloat(0.5), f.mem.Half(depthAddr+0x1FFE))
	assert.Zero(t, f.mem.Half(depthAddr+0x2000))
	assert.True(t, cur.DepthBuffer().Cleared, "chunks leave the clear pending")

	assert.False(t, f.reg.CopyDepthBufferChunk(depthAddr+0x26000))
}

func TestCopyDepthBufferDisabled(t *testing.T) {
	tests := []struct {
		name string
		mode config.DepthCopyMode
	}{
		{"off", config.DepthCopyOff},
		{"software", config.DepthCopySoftware},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := depthFixture(t, 0.5, withConfig(func(c *config.Config) {
				c.FrameBufferEmulation.CopyDepthToRDRAM = tt.mode
			}))
			assert.False(t, f.reg.CopyDepthBuffer(depthAddr))
			assert.Zero(t, f.mem.Half(depthAddr))
		})
	}
}

func TestCopyDepthBufferNeedsFullWidthTarget(t *testing.T) {
	f := newFixture(t)
	f.rdp.DepthImageAddress = depthAddr
	f.save(bufB, 64)
	f.reg.Depth.SaveBuffer(depthAddr)
	f.reg.Depth.ClearBuffer(0, 0, 64, 64)

	assert.False(t, f.reg.CopyDepthBuffer(depthAddr))
}
