// Package gpu defines the graphics service the framebuffer core draws with.
//
// The contract follows the subset of an OpenGL-style API the core needs:
// textures, framebuffer objects with colour and depth attachments, blits,
// clears, a texture barrier and asynchronous pixel readback. Coordinates
// are in texels with the origin at the top-left corner.
package gpu

import (
	"errors"
	"image"
)

// TextureID names a texture owned by a Context. Zero is never a valid texture.
type TextureID uint32

// FramebufferID names a framebuffer object. DefaultFramebuffer is the screen.
type FramebufferID uint32

const (
	NoTexture          TextureID     = 0
	DefaultFramebuffer FramebufferID = 0
)

// Format is the storage format of a texture.
type Format int

const (
	FormatRGBA8 Format = iota
	FormatDepth
)

func (f Format) String() string {
	if f == FormatDepth {
		return "depth"
	}
	return "rgba8"
}

// BytesPerPixel returns the readback size of one texel.
func (f Format) BytesPerPixel() int {
	return 4
}

// Filter is a texture sampling filter.
type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

// Wrap is a texture coordinate wrap mode.
type Wrap int

const (
	WrapClamp Wrap = iota
	WrapRepeat
	WrapMirror
)

// TextureParams describes a texture to allocate.
type TextureParams struct {
	Width   int
	Height  int
	Format  Format
	Samples int // > 1 for a multisampled render target
}

// SamplerParams are the sampling parameters of a texture.
type SamplerParams struct {
	Min, Mag     Filter
	WrapS, WrapT Wrap
}

// Attachment is a framebuffer attachment point.
type Attachment int

const (
	AttachColor Attachment = iota
	AttachDepth
)

// Target selects which framebuffer binding point an operation affects.
type Target int

const (
	DrawFramebuffer Target = iota
	ReadFramebuffer
)

// Mask selects the buffers a blit copies.
type Mask int

const (
	MaskColor Mask = 1 << iota
	MaskDepth
)

// BlitParams describes a framebuffer-to-framebuffer copy.
type BlitParams struct {
	Read   FramebufferID
	Draw   FramebufferID
	Src    image.Rectangle
	Dst    image.Rectangle
	Filter Filter
	Mask   Mask
}

// DrawRectParams draws a texture region into the bound draw framebuffer.
type DrawRectParams struct {
	Texture TextureID
	Src     image.Rectangle
	Dst     image.Rectangle
	Filter  Filter
	// Blend composites with source alpha instead of replacing.
	Blend bool
}

// FilterKind is a post-processing pass implemented by the backend.
type FilterKind int

const (
	FilterGamma FilterKind = iota
	FilterFXAA
	FilterFlipVertical
	FilterFlipHorizontal
	FilterRotate180
)

// FilterPass runs a full-screen filter from a source texture into a
// framebuffer of the same size. Geometric filters remap pixels within Rect
// only; a zero Rect means the whole texture.
type FilterPass struct {
	Kind   FilterKind
	Src    TextureID
	Dst    FramebufferID
	Rect   image.Rectangle
	Amount float32 // gamma level for FilterGamma
}

// Capabilities lists optional features. The core routes around missing ones.
type Capabilities struct {
	BlitFramebuffer         bool
	TextureBarrier          bool
	DepthFramebufferTexture bool
	MaxSamples              int
}

// PixelReadBuffer is a readback channel, modelled after pixel buffer
// objects: ReadPixels requests the data, DrawnPixels waits for and returns
// it, CleanUp releases the mapping.
type PixelReadBuffer interface {
	// ReadPixels requests rect of the given attachment of fb. With sync false
	// the backend may return before the data is available.
	ReadPixels(fb FramebufferID, rect image.Rectangle, attachment Attachment, sync bool) bool
	// DrawnPixels blocks until the requested data is available. Rows are top
	// to bottom, 4 bytes per texel: RGBA8, or a little-endian float32 depth.
	DrawnPixels() []byte
	CleanUp()
}

// Context is the graphics service.
type Context interface {
	Capabilities() Capabilities

	CreateTexture(p TextureParams) TextureID
	// UploadTexture replaces the full contents of a RGBA8 texture.
	UploadTexture(tex TextureID, pix []byte)
	SetTextureParameters(tex TextureID, p SamplerParams)
	DeleteTexture(tex TextureID)
	TextureSize(tex TextureID) (width, height int)

	CreateFramebuffer() FramebufferID
	DeleteFramebuffer(fb FramebufferID)
	AddFrameBufferRenderTarget(fb FramebufferID, attachment Attachment, tex TextureID)
	// CheckFramebufferStatus reports whether fb is complete.
	CheckFramebufferStatus(fb FramebufferID) bool
	BindFramebuffer(target Target, fb FramebufferID)
	BoundFramebuffer(target Target) FramebufferID

	BlitFramebuffers(p BlitParams) bool
	// ClearColorBuffer clears the colour attachment of the bound draw framebuffer.
	ClearColorBuffer(r, g, b, a float32)
	// ClearDepthBuffer clears the depth attachment of the bound draw framebuffer to the far plane.
	ClearDepthBuffer()
	// FillRect fills rect of the bound draw framebuffer's colour attachment.
	FillRect(rect image.Rectangle, r, g, b, a float32)
	DrawTexturedRect(p DrawRectParams)
	ApplyFilter(p FilterPass)
	TextureBarrier()

	CreatePixelReadBuffer() PixelReadBuffer
}

// ErrNoPixels is returned when a readback produced no data.
var ErrNoPixels = errors.New("gpu: readback returned no pixels")

// ReadImage synchronously reads rect of fb's colour attachment.
func ReadImage(ctx Context, fb FramebufferID, rect image.Rectangle) (*image.NRGBA, error) {
	rb := ctx.CreatePixelReadBuffer()
	defer rb.CleanUp()
	if !rb.ReadPixels(fb, rect, AttachColor, true) {
		return nil, ErrNoPixels
	}
	pix := rb.DrawnPixels()
	if len(pix) < rect.Dx()*rect.Dy()*4 {
		return nil, ErrNoPixels
	}
	img := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	copy(img.Pix, pix)
	return img, nil
}

// UnitColor converts an 8-bit channel to the [0,1] range used by clears.
func UnitColor(c uint8) float32 {
	return float32(c) / 255
}
