package terminal

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-n64fb/n64fb/gpu"
	"github.com/valerio/go-n64fb/n64fb/gpu/soft"
)

func TestRenderHalfBlocks(t *testing.T) {
	ctx := soft.New(8, 8)
	sim := tcell.NewSimulationScreen("UTF-8")
	w, err := NewWithScreen(ctx, 8, 8, sim)
	require.NoError(t, err)
	defer w.Close()
	sim.SetSize(8, 5)

	ctx.BindFramebuffer(gpu.DrawFramebuffer, gpu.DefaultFramebuffer)
	ctx.ClearColorBuffer(1, 0, 0, 1)
	w.SwapBuffers()

	mainc, _, style, _ := sim.GetContent(0, 0)
	assert.Equal(t, '▀', mainc)
	fg, bg, _ := style.Decompose()
	assert.Equal(t, tcell.NewRGBColor(0xFF, 0, 0), fg)
	assert.Equal(t, tcell.NewRGBColor(0xFF, 0, 0), bg)
	assert.Equal(t, uint32(1), w.BuffersSwapCount())
}

func TestQuitKey(t *testing.T) {
	sim := tcell.NewSimulationScreen("UTF-8")
	w, err := NewWithScreen(soft.New(4, 4), 4, 4, sim)
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.Running())
	sim.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	assert.False(t, w.Running())
}
