package video

import "math"

// Interface is the decoded VI state the framebuffer core consults.
type Interface struct {
	Regs Registers

	Width      uint32
	Height     uint32
	RealHeight uint32
	Interlaced bool
	PAL        bool
}

// Timing is the per-frame decode used when compositing.
type Timing struct {
	HStart, HEnd uint32
	VStart, VEnd uint32
	ScaleX       float32
	ScaleY       float32
	// Width and Height are the scanned-out resolution in framebuffer pixels.
	Width, Height uint32
	LowerField    bool
}

// Resolution multipliers mapping the active line count to the nominal one.
const (
	palTallMultiplier = 1.0041841
	heightMultiplier  = 1.0126582
)

// Update decodes the registers into a resolution and reports whether the
// resolution or interlacing changed.
func (vi *Interface) Update(regs Registers) bool {
	prevWidth, prevHeight, prevInterlaced := vi.Width, vi.Height, vi.Interlaced
	vi.Regs = regs

	hStart, hEnd := regs.HStart(), regs.HEnd()
	vStart, vEnd := regs.VStart(), regs.VEnd()
	vi.Interlaced = regs.Serrate()
	vi.PAL = regs.PAL()

	if hEnd > hStart {
		vi.Width = uint32(math.Floor(float64(float32(hEnd-hStart)*regs.ScaleX()) + 0.5))
	} else {
		vi.Width = 0
	}

	if vEnd > vStart {
		lines := vEnd - vStart
		vi.RealHeight = uint32(float32(lines>>1) * regs.ScaleY())
		mult := heightMultiplier
		if vi.PAL && lines > 478 {
			mult = palTallMultiplier
		}
		vi.Height = uint32(math.Round(float64(vi.RealHeight) * mult))
	} else {
		vi.RealHeight = 0
		vi.Height = 0
	}

	if vi.Width == 0 {
		vi.Width = regs.Width
	}
	return vi.Width != prevWidth || vi.Height != prevHeight || vi.Interlaced != prevInterlaced
}

// MaxBufferHeight is the tallest framebuffer a game can render for a
// buffer of the given width with the current VI mode.
func (vi *Interface) MaxBufferHeight(width uint32) uint32 {
	tall := width > 320 || vi.Interlaced
	switch {
	case vi.PAL && tall:
		return 580
	case vi.PAL:
		return 290
	case tall:
		return 480
	}
	return 240
}

// Blank reports whether the VI is not scanning anything out.
func (vi *Interface) Blank() bool {
	return vi.Regs.Depth() == BPPBlank || vi.Width == 0 || vi.Height == 0 || vi.Regs.Width == 0
}

// Timing decodes the active-video window for the frame being presented.
func (vi *Interface) Timing() Timing {
	r := &vi.Regs
	t := Timing{
		HStart: r.HStart(), HEnd: r.HEnd(),
		VStart: r.VStart(), VEnd: r.VEnd(),
		ScaleX: r.ScaleX(), ScaleY: r.ScaleY(),
		Width: vi.Width, Height: vi.Height,
	}
	if vi.Interlaced {
		t.LowerField = r.VCurrent&1 == 0
	}
	return t
}
