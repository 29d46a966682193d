// Package video models the N64 video interface (VI): the register block the
// game programs to scan a framebuffer out of RDRAM, and the decode of those
// registers into a display resolution.
package video

import "github.com/valerio/go-n64fb/n64fb/bit"

// Registers is a snapshot of the VI register block, in hardware order.
type Registers struct {
	Control   uint32 // VI_STATUS
	Origin    uint32
	Width     uint32
	VIntr     uint32
	VCurrent  uint32
	Burst     uint32
	VSync     uint32
	HSync     uint32
	HSyncLeap uint32
	HVideo    uint32 // VI_H_START
	VVideo    uint32 // VI_V_START
	VBurst    uint32
	XScale    uint32
	YScale    uint32
}

type ColorDepth uint32

const (
	BPPBlank ColorDepth = 0
	BPP16    ColorDepth = 2
	BPP32    ColorDepth = 3
)

// Control register fields.
const (
	ControlTypeMask uint32 = 3
	ControlGamma    uint32 = 1 << 3
	ControlDivot    uint32 = 1 << 4
	ControlSerrate  uint32 = 1 << 6
	controlAAShift         = 8
)

// Depth returns the colour depth of the scanned-out image.
func (r *Registers) Depth() ColorDepth {
	return ColorDepth(r.Control & ControlTypeMask)
}

// AAMode returns the anti-alias/resample mode (0-3).
func (r *Registers) AAMode() uint32 {
	return bit.Shiftr(r.Control, controlAAShift, 2)
}

func (r *Registers) Gamma() bool   { return r.Control&ControlGamma != 0 }
func (r *Registers) Divot() bool   { return r.Control&ControlDivot != 0 }
func (r *Registers) Serrate() bool { return r.Control&ControlSerrate != 0 }

// HStart and HEnd bound the active video horizontally, in dots.
func (r *Registers) HStart() uint32 { return bit.Shiftr(r.HVideo, 16, 10) }
func (r *Registers) HEnd() uint32   { return bit.Shiftr(r.HVideo, 0, 10) }

// VStart and VEnd bound the active video vertically, in half-lines.
func (r *Registers) VStart() uint32 { return bit.Shiftr(r.VVideo, 16, 10) }
func (r *Registers) VEnd() uint32   { return bit.Shiftr(r.VVideo, 0, 10) }

// ScaleX and ScaleY are the 2.10 fixed-point resampling factors.
func (r *Registers) ScaleX() float32 { return bit.Fixed2Float(bit.Shiftr(r.XScale, 0, 12), 10) }
func (r *Registers) ScaleY() float32 { return bit.Fixed2Float(bit.Shiftr(r.YScale, 0, 12), 10) }

// OffsetY is the fractional start of the vertical resampler.
func (r *Registers) OffsetY() float32 { return bit.Fixed2Float(bit.Shiftr(r.YScale, 16, 12), 10) }

// PAL reports whether the sync timing is the 625-line one.
func (r *Registers) PAL() bool {
	return r.VSync&0x3ff > 550
}

// NTSC returns the register values libdragon-style SDKs program for an
// NTSC display of a width x height framebuffer at origin.
func NTSC(origin, width, height uint32, depth ColorDepth) Registers {
	r := Registers{
		Burst:     0x3e5_2239,
		VSync:     0x20d,
		HSync:     0x0c15,
		HSyncLeap: 0x0c15_0c15,
		HVideo:    0x006c_02ec,
		VVideo:    0x0025_01ff,
		VBurst:    0x000e_0204,
	}
	setupCommon(&r, origin, width, height, depth)
	return r
}

// PAL returns the register values for a PAL display.
func PAL(origin, width, height uint32, depth ColorDepth) Registers {
	r := Registers{
		Burst:     0x0404_233a,
		VSync:     0x271,
		HSync:     0x0015_0c69,
		HSyncLeap: 0x0c6f_0c6e,
		HVideo:    0x0080_0300,
		VVideo:    0x005f_0239,
		VBurst:    0x0009_026b,
	}
	setupCommon(&r, origin, width, height, depth)
	return r
}

func setupCommon(r *Registers, origin, width, height uint32, depth ColorDepth) {
	r.Origin = origin
	r.Width = width
	r.VIntr = 2
	r.XScale = (1024*width + 320) / 640
	r.YScale = (1024*height + 120) / 240
	r.Control = uint32(depth) | bit.Shiftl(3, controlAAShift, 2)
	if height > 240 {
		r.Control |= ControlSerrate
	}
}
