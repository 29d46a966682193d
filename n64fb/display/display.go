// Package display defines the window the framebuffer core presents to.
package display

// Window is the display surface: its size, the scale from native VI pixels
// to window pixels, and the swap counter used to memoize per-frame work.
type Window interface {
	// SetVIScale recomputes the scale factors for a new native resolution.
	SetVIScale(viWidth, viHeight uint32)
	ScaleX() float32
	ScaleY() float32
	// Width and Height are the size of the output window.
	Width() uint32
	Height() uint32
	// ScreenWidth and ScreenHeight are the size of the default framebuffer.
	ScreenWidth() uint32
	ScreenHeight() uint32
	SwapBuffers()
	BuffersSwapCount() uint32
}

// Base implements the bookkeeping shared by every window.
type Base struct {
	width, height uint32
	scaleX        float32
	scaleY        float32
	swaps         uint32
}

// NewBase returns a window of width x height scaled for a 320x240 picture.
func NewBase(width, height uint32) Base {
	b := Base{width: width, height: height}
	b.SetVIScale(320, 240)
	return b
}

func (b *Base) SetVIScale(viWidth, viHeight uint32) {
	if viWidth == 0 || viHeight == 0 {
		return
	}
	b.scaleX = float32(b.width) / float32(viWidth)
	b.scaleY = float32(b.height) / float32(viHeight)
}

func (b *Base) ScaleX() float32          { return b.scaleX }
func (b *Base) ScaleY() float32          { return b.scaleY }
func (b *Base) Width() uint32            { return b.width }
func (b *Base) Height() uint32           { return b.height }
func (b *Base) ScreenWidth() uint32      { return b.width }
func (b *Base) ScreenHeight() uint32     { return b.height }
func (b *Base) BuffersSwapCount() uint32 { return b.swaps }

// SwapBuffers advances the swap counter.
func (b *Base) SwapBuffers() {
	b.swaps++
}
