// Package rdp holds the slice of RDP and RSP state the framebuffer core
// reads: where the colour and depth images point, the fill colour, the
// scissor box and the texture tiles. The command interpreter owns a State
// and passes it into the core; nothing here is global.
package rdp

import (
	"github.com/valerio/go-n64fb/n64fb/bit"
	"github.com/valerio/go-n64fb/n64fb/pixel"
)

// ColorImage is the target of SetColorImage.
type ColorImage struct {
	Address uint32
	Format  pixel.Format
	Size    pixel.Size
	Width   uint32
	// Height is the tallest row drawn so far, tracked by the interpreter.
	Height uint32
}

// Scissor is the scissor box in framebuffer pixels, lower-right exclusive.
type Scissor struct {
	ULX, ULY float32
	LRX, LRY float32
}

// LoadType records how a tile's texels reached TMEM.
type LoadType int

const (
	LoadBlock LoadType = iota
	LoadTile
)

// Tile is one texture tile descriptor. Coordinates are in texels.
type Tile struct {
	ImageAddress uint32
	Size         pixel.Size
	Format       pixel.Format
	ULS, ULT     uint32
	LRS, LRT     uint32
	ClampS       bool
	ClampT       bool
	MaskS        uint32
	MaskT        uint32
	// LoadType and the load origin describe the load that filled the tile.
	LoadType LoadType
	LoadULS  uint32
	LoadULT  uint32
}

// Width and Height return the tile's extent in texels.
func (t *Tile) Width() uint32  { return t.LRS - t.ULS + 1 }
func (t *Tile) Height() uint32 { return t.LRT - t.ULT + 1 }

// BgImage is the S2DEX background image descriptor.
type BgImage struct {
	Address uint32
	Width   uint32
	Height  uint32
	Size    pixel.Size
	ImageX  float32
	ImageY  float32
}

// CycleType is the RDP pipeline mode.
type CycleType int

const (
	Cycle1 CycleType = iota
	Cycle2
	CycleCopy
	CycleFill
)

// Changed flags tell the renderer which derived state must be rebuilt.
type Changed uint32

const (
	ChangedViewport Changed = 1 << iota
	ChangedScissor
	ChangedFBTexture
	ChangedRenderMode
)

const NumTiles = 8

// State is the RDP/RSP state shared with the framebuffer core.
type State struct {
	ColorImage        ColorImage
	DepthImageAddress uint32
	FillColor         uint32
	Scissor           Scissor
	Tiles             [NumTiles]Tile
	// TextureTiles are the two tiles the current primitive samples.
	TextureTiles [2]int
	BgImage      BgImage
	CycleType    CycleType
	Changed      Changed
}

// NewState returns a state with the texture tiles pointed at tiles 0 and 1.
func NewState() *State {
	return &State{TextureTiles: [2]int{0, 1}}
}

// TextureTile returns the tile sampled by texture unit t.
func (s *State) TextureTile(t int) *Tile {
	if t < 0 || t > 1 {
		t = 0
	}
	return &s.Tiles[s.TextureTiles[t]&(NumTiles-1)]
}

// MarkChanged sets the given flags.
func (s *State) MarkChanged(c Changed) {
	s.Changed |= c
}

// FillColor16 returns the fill colour as the RGBA16 value replicated into
// both halves of the fill register.
func (s *State) FillColor16() uint16 {
	return bit.Low(s.FillColor)
}
