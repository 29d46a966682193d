package framebuffer

import (
	"encoding/binary"
	"image"

	"github.com/valerio/go-n64fb/n64fb/gpu"
	"github.com/valerio/go-n64fb/n64fb/pixel"
	"github.com/valerio/go-n64fb/n64fb/texcache"
)

// importer draws an RDRAM framebuffer image over the render target that
// stands in for it, for games that write pixels with the CPU.
type importer struct {
	reg     *Registry
	target  Handle
	watched map[uint32]struct{}
	tex     *texcache.Texture
	pix     []byte
}

func newImporter(r *Registry) *importer {
	return &importer{reg: r, watched: make(map[uint32]struct{})}
}

func (m *importer) destroy() {
	m.releaseTexture()
	m.reset()
}

func (m *importer) reset() {
	m.target = Handle{}
	clear(m.watched)
}

func (m *importer) releaseTexture() {
	if m.tex == nil {
		return
	}
	m.reg.deps.GPU.DeleteTexture(m.tex.ID)
	m.reg.deps.Cache.RemoveFrameBufferTexture(m.tex)
	m.tex = nil
}

// addAddress records a CPU write of size bytes at address. Once addresses
// are recorded the next import only carries those pixels.
func (m *importer) addAddress(address, size uint32) {
	t := m.reg.targets.get(m.target)
	if t == nil {
		t = m.reg.FindBuffer(address)
		if t == nil {
			return
		}
		m.target = t.handle
	}
	bpp := t.Size.Bytes(1)
	if bpp == 0 || (size != bpp && address%bpp != 0) {
		return
	}
	for a := address; a < address+max(size, bpp); a += bpp {
		m.watched[a] = struct{}{}
	}
}

func (m *importer) uploadTexture(width, height int) *texcache.Texture {
	env := &m.reg.deps
	if m.tex != nil && int(m.tex.Width) == width && int(m.tex.Height) == height {
		return m.tex
	}
	m.releaseTexture()
	params := gpu.TextureParams{Width: width, Height: height, Format: gpu.FormatRGBA8}
	id := env.GPU.CreateTexture(params)
	env.GPU.SetTextureParameters(id, gpu.SamplerParams{Min: gpu.FilterNearest, Mag: gpu.FilterNearest})
	m.tex = env.Cache.AddFrameBufferTexture(id, params)
	return m.tex
}

// copyFromRDRAM imports the buffer containing address. Non-CFB imports
// need either recorded addresses or the copy-from-RDRAM setting. With cfb
// set every pixel is opaque.
func (m *importer) copyFromRDRAM(address uint32, cfb bool) {
	env := &m.reg.deps
	defer m.reset()

	t := m.reg.targets.get(m.target)
	if t == nil {
		if !cfb && !env.Config.FrameBufferEmulation.CopyFromRDRAM {
			return
		}
		t = m.reg.FindBuffer(address)
	} else if len(m.watched) == 0 {
		return
	}
	if t == nil || t.Size < pixel.Size16b || t.Width == 0 {
		return
	}
	if t.StartAddress == address && t.Changed {
		return
	}

	height := t.Height
	if address == t.StartAddress && env.VI.RealHeight > 0 {
		height = env.VI.RealHeight
	}
	stride := t.Stride()
	height = min(env.RDRAM.CutHeight(t.StartAddress, height, stride), env.VI.MaxBufferHeight(t.Width))
	if height == 0 {
		return
	}

	width := t.Width
	n := int(width * height * 4)
	if cap(m.pix) < n {
		m.pix = make([]byte, n)
	}
	pix := m.pix[:n]
	bpp := t.Size.Bytes(1)
	filter := len(m.watched) > 0
	drawn := false
	for y := uint32(0); y < height; y++ {
		row := t.StartAddress + y*stride
		for x := uint32(0); x < width; x++ {
			addr := row + x*bpp
			var c uint32
			if _, ok := m.watched[addr]; !filter || ok {
				if t.Size == pixel.Size32b {
					c = pixel.FromRGBA32(env.RDRAM.Word(addr), cfb)
				} else {
					c = pixel.FromRGBA16(env.RDRAM.Half(addr), cfb)
				}
			}
			if c>>24 == 0 {
				c = 0
			}
			drawn = drawn || c != 0
			binary.LittleEndian.PutUint32(pix[(y*width+x)*4:], c)
		}
	}
	if !drawn {
		return
	}

	tex := m.uploadTexture(int(width), int(height))
	env.GPU.UploadTexture(tex.ID, pix)

	prev := env.GPU.BoundFramebuffer(gpu.DrawFramebuffer)
	env.GPU.BindFramebuffer(gpu.DrawFramebuffer, t.main.fbo)
	env.GPU.DrawTexturedRect(gpu.DrawRectParams{
		Texture: tex.ID,
		Src:     image.Rect(0, 0, int(width), int(height)),
		Dst:     image.Rect(0, 0, t.scaled(width), t.scaled(height)),
		Filter:  gpu.FilterNearest,
		Blend:   true,
	})
	env.GPU.BindFramebuffer(gpu.DrawFramebuffer, prev)

	t.Resolved = false
	if cfb {
		t.CFB = true
	}
	m.reg.log().Debug("imported rdram", "address", t.StartAddress, "rows", height, "cfb", cfb)
}
