package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeFile(t, `{"frame_buffer_emulation": {"copy_aux_to_rdram": true}, "hacks": 4}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.FrameBufferEmulation.Enable)
	assert.True(t, cfg.FrameBufferEmulation.CopyAuxToRDRAM)
	assert.Equal(t, CopySync, cfg.FrameBufferEmulation.CopyToRDRAM)
	assert.Equal(t, 640, cfg.Screen.Width)
	assert.True(t, cfg.Hacks.Has(HackSubscreen))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "config: read")

	_, err = Load(writeFile(t, `{not json`))
	assert.ErrorContains(t, err, "config: parse")
}

func TestValidateResetsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Video.Multisampling = 3
	cfg.Orientation = 7
	cfg.FrameBufferEmulation.CopyToRDRAM = 9
	cfg.FrameBufferEmulation.NativeResFactor = -2
	cfg.Screen.Width = 0
	cfg.Overscan.NTSC.Left = 500
	cfg.Gamma.Level = 0

	cfg.Validate()

	assert.Equal(t, 0, cfg.Video.Multisampling)
	assert.Equal(t, OrientationNone, cfg.Orientation)
	assert.Equal(t, CopySync, cfg.FrameBufferEmulation.CopyToRDRAM)
	assert.Equal(t, 0, cfg.FrameBufferEmulation.NativeResFactor)
	assert.Equal(t, 640, cfg.Screen.Width)
	assert.Equal(t, 64, cfg.Overscan.NTSC.Left)
	assert.Equal(t, float32(2), cfg.Gamma.Level)
}

func TestResolve(t *testing.T) {
	cfg := Default()
	err := cfg.Resolve(Flags{
		DisableEmulation: true,
		NativeResFactor:  2,
		Dithering:        "bayer",
		Hacks:            []string{"re2", "snap"},
	})
	require.NoError(t, err)
	assert.False(t, cfg.FrameBufferEmulation.Enable)
	assert.Equal(t, 2, cfg.FrameBufferEmulation.NativeResFactor)
	assert.Equal(t, DitherBayer, cfg.FrameBufferEmulation.Dithering)
	assert.True(t, cfg.Hacks.Has(HackRE2|HackSnap))
	assert.False(t, cfg.Hacks.Has(HackSubscreen))

	assert.Error(t, cfg.Resolve(Flags{Hacks: []string{"nope"}}))
	assert.Error(t, cfg.Resolve(Flags{Dithering: "ordered"}))
}

func TestOverscanMargins(t *testing.T) {
	cfg := Default()
	cfg.Overscan.NTSC = Margins{Left: 8}
	cfg.Overscan.PAL = Margins{Top: 4}
	assert.Equal(t, Margins{}, cfg.OverscanMargins(false))

	cfg.Overscan.Enable = true
	assert.Equal(t, Margins{Left: 8}, cfg.OverscanMargins(false))
	assert.Equal(t, Margins{Top: 4}, cfg.OverscanMargins(true))
}
