// Package config holds the framebuffer emulation settings.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// CopyMode selects when colour buffers are written back to RDRAM.
type CopyMode int

const (
	CopyOff CopyMode = iota
	CopySync
	CopyAsync
)

// DepthCopyMode selects how the depth buffer reaches RDRAM.
type DepthCopyMode int

const (
	DepthCopyOff DepthCopyMode = iota
	DepthCopyVideoCard
	DepthCopySoftware
)

// Dithering selects the export dither pattern for 16-bit buffers.
type Dithering int

const (
	DitherNone Dithering = iota
	DitherBayer
)

// Orientation corrects the presented image for mirrored or upside-down
// displays.
type Orientation int

const (
	OrientationNone Orientation = iota
	OrientationFlipVertical
	OrientationMirror
	OrientationRotate180
)

// Hacks is the per-game hack bitmask.
type Hacks uint32

const (
	// HackRE2 takes the width of colour images wider than the RDP limit from
	// the VI width register.
	HackRE2 Hacks = 1 << iota
	// HackSnap keeps auxiliary buffers in place when the game switches away.
	HackSnap
	// HackSubscreen exports white instead of the rendered pixels.
	HackSubscreen
	// HackZeldaMonochrome never serves the depth buffer as a texture.
	HackZeldaMonochrome
	// HackLegoRacers re-imports RDRAM over every newly created buffer.
	HackLegoRacers
)

var hackNames = map[string]Hacks{
	"re2":             HackRE2,
	"snap":            HackSnap,
	"subscreen":       HackSubscreen,
	"zeldamonochrome": HackZeldaMonochrome,
	"legoracers":      HackLegoRacers,
}

// ParseHack returns the hack bit for a name.
func ParseHack(name string) (Hacks, bool) {
	h, ok := hackNames[name]
	return h, ok
}

// Has reports whether all bits of h are set.
func (h Hacks) Has(bits Hacks) bool {
	return h&bits == bits
}

type FrameBufferEmulation struct {
	Enable                bool          `json:"enable"`
	CopyAuxToRDRAM        bool          `json:"copy_aux_to_rdram"`
	CopyFromRDRAM         bool          `json:"copy_from_rdram"`
	CopyToRDRAM           CopyMode      `json:"copy_to_rdram"`
	CopyDepthToRDRAM      DepthCopyMode `json:"copy_depth_to_rdram"`
	NativeResFactor       int           `json:"native_res_factor"`
	ForceDepthBufferClear bool          `json:"force_depth_buffer_clear"`
	Dithering             Dithering     `json:"dithering"`
}

type Video struct {
	Multisampling int  `json:"multisampling"`
	FXAA          bool `json:"fxaa"`
}

type Screen struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Margins are overscan crops in native pixels.
type Margins struct {
	Left   int `json:"left"`
	Right  int `json:"right"`
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
}

type Overscan struct {
	Enable bool    `json:"enable"`
	NTSC   Margins `json:"ntsc"`
	PAL    Margins `json:"pal"`
}

type Gamma struct {
	Force bool    `json:"force"`
	Level float32 `json:"level"`
}

// Config holds every setting the framebuffer core reads.
type Config struct {
	FrameBufferEmulation FrameBufferEmulation `json:"frame_buffer_emulation"`
	Video                Video                `json:"video"`
	Screen               Screen               `json:"screen"`
	Overscan             Overscan             `json:"overscan"`
	Gamma                Gamma                `json:"gamma"`
	Orientation          Orientation          `json:"orientation"`
	Hacks                Hacks                `json:"hacks"`
}

// Default returns the settings most games run correctly with.
func Default() Config {
	return Config{
		FrameBufferEmulation: FrameBufferEmulation{
			Enable:           true,
			CopyAuxToRDRAM:   false,
			CopyFromRDRAM:    false,
			CopyToRDRAM:      CopySync,
			CopyDepthToRDRAM: DepthCopyVideoCard,
			NativeResFactor:  0,
			Dithering:        DitherNone,
		},
		Screen: Screen{Width: 640, Height: 480},
		Gamma:  Gamma{Level: 2.0},
	}
}

// Load reads a JSON config file on top of Default. Fields not set in the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Validate()
	return cfg, nil
}

// Validate resets out-of-range values to their defaults.
func (c *Config) Validate() {
	def := Default()
	fb := &c.FrameBufferEmulation
	if fb.CopyToRDRAM < CopyOff || fb.CopyToRDRAM > CopyAsync {
		slog.Warn("invalid config value, using default", "key", "copy_to_rdram", "value", fb.CopyToRDRAM)
		fb.CopyToRDRAM = def.FrameBufferEmulation.CopyToRDRAM
	}
	if fb.CopyDepthToRDRAM < DepthCopyOff || fb.CopyDepthToRDRAM > DepthCopySoftware {
		slog.Warn("invalid config value, using default", "key", "copy_depth_to_rdram", "value", fb.CopyDepthToRDRAM)
		fb.CopyDepthToRDRAM = def.FrameBufferEmulation.CopyDepthToRDRAM
	}
	if fb.NativeResFactor < 0 || fb.NativeResFactor > 16 {
		slog.Warn("invalid config value, using default", "key", "native_res_factor", "value", fb.NativeResFactor)
		fb.NativeResFactor = 0
	}
	if fb.Dithering != DitherNone && fb.Dithering != DitherBayer {
		fb.Dithering = DitherNone
	}

	switch c.Video.Multisampling {
	case 0, 2, 4, 8, 16:
	default:
		slog.Warn("invalid config value, using default", "key", "multisampling", "value", c.Video.Multisampling)
		c.Video.Multisampling = 0
	}

	if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
		c.Screen = def.Screen
	}
	if c.Gamma.Level <= 0 {
		c.Gamma.Level = def.Gamma.Level
	}

	if c.Orientation < OrientationNone || c.Orientation > OrientationRotate180 {
		slog.Warn("invalid config value, using default", "key", "orientation", "value", c.Orientation)
		c.Orientation = OrientationNone
	}

	clampMargins(&c.Overscan.NTSC)
	clampMargins(&c.Overscan.PAL)
}

func clampMargins(m *Margins) {
	for _, v := range []*int{&m.Left, &m.Right, &m.Top, &m.Bottom} {
		*v = min(max(*v, 0), 64)
	}
}

// OverscanMargins returns the margins for the given video standard.
func (c *Config) OverscanMargins(pal bool) Margins {
	if !c.Overscan.Enable {
		return Margins{}
	}
	if pal {
		return c.Overscan.PAL
	}
	return c.Overscan.NTSC
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	DisableEmulation bool
	NativeResFactor  int
	ScreenWidth      int
	ScreenHeight     int
	Multisampling    int
	FXAA             bool
	Dithering        string
	Hacks            []string
}

// Resolve applies CLI flags on top of the file values and validates the result.
// It returns an error for unknown hack or dithering names.
func (c *Config) Resolve(flags Flags) error {
	if flags.DisableEmulation {
		c.FrameBufferEmulation.Enable = false
	}
	if flags.NativeResFactor > 0 {
		c.FrameBufferEmulation.NativeResFactor = flags.NativeResFactor
	}
	if flags.ScreenWidth > 0 {
		c.Screen.Width = flags.ScreenWidth
	}
	if flags.ScreenHeight > 0 {
		c.Screen.Height = flags.ScreenHeight
	}
	if flags.Multisampling > 0 {
		c.Video.Multisampling = flags.Multisampling
	}
	if flags.FXAA {
		c.Video.FXAA = true
	}
	switch flags.Dithering {
	case "":
	case "none":
		c.FrameBufferEmulation.Dithering = DitherNone
	case "bayer":
		c.FrameBufferEmulation.Dithering = DitherBayer
	default:
		return fmt.Errorf("config: unknown dithering %q", flags.Dithering)
	}
	for _, name := range flags.Hacks {
		h, ok := ParseHack(name)
		if !ok {
			return fmt.Errorf("config: unknown hack %q", name)
		}
		c.Hacks |= h
	}
	c.Validate()
	return nil
}
