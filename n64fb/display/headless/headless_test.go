package headless_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-n64fb/n64fb/debug"
	"github.com/valerio/go-n64fb/n64fb/display"
	"github.com/valerio/go-n64fb/n64fb/display/headless"
	"github.com/valerio/go-n64fb/n64fb/gpu"
	"github.com/valerio/go-n64fb/n64fb/gpu/soft"
)

func TestHeadlessWindow(t *testing.T) {
	t.Run("swap counting and scale", func(t *testing.T) {
		w := headless.New(soft.New(640, 480), 640, 480, headless.SnapshotConfig{})
		assert.Equal(t, float32(2), w.ScaleX())
		assert.Equal(t, float32(2), w.ScaleY())

		w.SetVIScale(640, 480)
		assert.Equal(t, float32(1), w.ScaleX())

		for i := 0; i < 3; i++ {
			w.SwapBuffers()
		}
		assert.Equal(t, uint32(3), w.BuffersSwapCount())
		assert.Nil(t, w.LastFrame())
	})

	t.Run("capture", func(t *testing.T) {
		ctx := soft.New(8, 8)
		w := headless.New(ctx, 8, 8, headless.SnapshotConfig{})
		w.Capture(true)

		ctx.BindFramebuffer(gpu.DrawFramebuffer, gpu.DefaultFramebuffer)
		ctx.ClearColorBuffer(0, 1, 0, 1)
		w.SwapBuffers()

		frame := w.LastFrame()
		require.NotNil(t, frame)
		assert.Equal(t, []uint8{0, 0xFF, 0, 0xFF}, frame.Pix[0:4])
	})

	t.Run("snapshots", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := headless.CreateSnapshotConfig(2, dir, "traces/demo.trace", debug.FormatPNG)
		require.NoError(t, err)
		assert.Equal(t, "demo", cfg.Name)

		w := headless.New(soft.New(4, 4), 4, 4, cfg)
		for i := 0; i < 4; i++ {
			w.SwapBuffers()
		}

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		// frames 2 and 4 may share a timestamp and file name
		assert.NotEmpty(t, entries)
	})
}

func TestCreateSnapshotConfigDisabled(t *testing.T) {
	cfg, err := headless.CreateSnapshotConfig(0, "", "x.trace", debug.FormatPNG)
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.Directory)
}

func TestHeadlessImplementsWindow(t *testing.T) {
	var _ display.Window = (*headless.Window)(nil)
}
