// Package texcache is the texture cache collaborator of the framebuffer
// core: it tracks the textures that back render targets, their byte cost,
// and which texture each RDP tile currently samples.
package texcache

import (
	"log/slog"

	"github.com/valerio/go-n64fb/n64fb/gpu"
)

// Texture is a cached texture plus the sampling parameters the renderer
// applies when a render target is used as a texture source.
type Texture struct {
	ID         gpu.TextureID
	Width      uint32
	Height     uint32
	RealWidth  uint32
	RealHeight uint32
	Format     gpu.Format
	Samples    int

	// FrameBufferTexture marks textures owned by a render target.
	FrameBufferTexture bool

	// Set per activation from the tile that samples the texture.
	OffsetS, OffsetT         float32
	ScaleS, ScaleT           float32
	ShiftScaleS, ShiftScaleT float32
	HDRatio                  float32

	Bytes uint64
}

// NumTiles is the number of tiles whose active texture is tracked.
const NumTiles = 2

// Cache tracks textures and their byte cost.
type Cache struct {
	textures map[gpu.TextureID]*Texture
	active   [NumTiles]*Texture
	bytes    uint64
	log      *slog.Logger
}

func New() *Cache {
	return &Cache{
		textures: make(map[gpu.TextureID]*Texture),
		log:      slog.Default(),
	}
}

// AddFrameBufferTexture registers a framebuffer texture and returns the
// cache entry used to carry its sampling parameters.
func (c *Cache) AddFrameBufferTexture(id gpu.TextureID, p gpu.TextureParams) *Texture {
	if old, ok := c.textures[id]; ok {
		c.bytes -= old.Bytes
	}
	samples := max(p.Samples, 1)
	t := &Texture{
		ID:                 id,
		Width:              uint32(p.Width),
		Height:             uint32(p.Height),
		RealWidth:          uint32(p.Width),
		RealHeight:         uint32(p.Height),
		Format:             p.Format,
		Samples:            p.Samples,
		FrameBufferTexture: true,
		ScaleS:             1,
		ScaleT:             1,
		ShiftScaleS:        1,
		ShiftScaleT:        1,
		HDRatio:            1,
		Bytes:              uint64(p.Width) * uint64(p.Height) * uint64(p.Format.BytesPerPixel()) * uint64(samples),
	}
	c.textures[id] = t
	c.bytes += t.Bytes
	c.log.Debug("texture cache add", "id", id, "bytes", t.Bytes, "total", c.bytes)
	return t
}

// RemoveFrameBufferTexture drops a texture. Tiles sampling it are deactivated.
func (c *Cache) RemoveFrameBufferTexture(t *Texture) {
	if t == nil {
		return
	}
	cached, ok := c.textures[t.ID]
	if !ok || cached != t {
		return
	}
	delete(c.textures, t.ID)
	c.bytes -= t.Bytes
	for i := range c.active {
		if c.active[i] == t {
			c.active[i] = nil
		}
	}
	c.log.Debug("texture cache remove", "id", t.ID, "total", c.bytes)
}

// ActivateTexture makes t the texture sampled by tile.
func (c *Cache) ActivateTexture(tile int, t *Texture) {
	if tile < 0 || tile >= NumTiles {
		return
	}
	c.active[tile] = t
}

// Active returns the texture bound to tile, or nil.
func (c *Cache) Active(tile int) *Texture {
	if tile < 0 || tile >= NumTiles {
		return nil
	}
	return c.active[tile]
}

// CachedBytes returns the byte cost of all registered textures.
func (c *Cache) CachedBytes() uint64 {
	return c.bytes
}

// Len returns the number of registered textures.
func (c *Cache) Len() int {
	return len(c.textures)
}
