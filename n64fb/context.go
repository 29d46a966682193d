// Package n64fb wires the framebuffer emulation engines of one emulated
// machine together and exposes the calls the RDP interpreter makes.
package n64fb

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/valerio/go-n64fb/n64fb/config"
	"github.com/valerio/go-n64fb/n64fb/debug"
	"github.com/valerio/go-n64fb/n64fb/display"
	"github.com/valerio/go-n64fb/n64fb/framebuffer"
	"github.com/valerio/go-n64fb/n64fb/gpu"
	"github.com/valerio/go-n64fb/n64fb/pixel"
	"github.com/valerio/go-n64fb/n64fb/postprocess"
	"github.com/valerio/go-n64fb/n64fb/rdp"
	"github.com/valerio/go-n64fb/n64fb/rdram"
	"github.com/valerio/go-n64fb/n64fb/texcache"
	"github.com/valerio/go-n64fb/n64fb/video"
)

// DefaultRDRAMSize is the size of an expansion-pak RDRAM.
const DefaultRDRAMSize = 8 << 20

var (
	ErrNoGPU    = errors.New("no gpu context")
	ErrNoWindow = errors.New("no display window")
)

// Options configures a Context.
type Options struct {
	GPU    gpu.Context
	Window display.Window
	Config config.Config
	// RDRAM is the machine's memory. When nil a zeroed image of RDRAMSize
	// bytes (DefaultRDRAMSize when 0) is allocated.
	RDRAM     *rdram.Memory
	RDRAMSize int
	Log       *slog.Logger

	// SnapshotDir and SnapshotFormat are where Snapshot and Dump write.
	SnapshotDir    string
	SnapshotFormat debug.Format
}

// Context owns every engine of one emulated machine. Not safe for
// concurrent use; call it from the emulation thread.
type Context struct {
	cfg    config.Config
	gpu    gpu.Context
	window display.Window
	mem    *rdram.Memory
	vi     video.Interface
	rdp    *rdp.State
	cache  *texcache.Cache
	fb     *framebuffer.Registry
	post   *postprocess.PostProcessor
	log    *slog.Logger

	snapshotDir    string
	snapshotFormat debug.Format
	closed         bool
}

// New builds a Context. The config is validated and copied.
func New(opts Options) (*Context, error) {
	if opts.GPU == nil {
		return nil, ErrNoGPU
	}
	if opts.Window == nil {
		return nil, ErrNoWindow
	}
	c := &Context{
		cfg:            opts.Config,
		gpu:            opts.GPU,
		window:         opts.Window,
		mem:            opts.RDRAM,
		rdp:            rdp.NewState(),
		cache:          texcache.New(),
		log:            opts.Log,
		snapshotDir:    opts.SnapshotDir,
		snapshotFormat: opts.SnapshotFormat,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.snapshotFormat == "" {
		c.snapshotFormat = debug.FormatPNG
	}
	if c.mem == nil {
		size := opts.RDRAMSize
		if size <= 0 {
			size = DefaultRDRAMSize
		}
		c.mem = rdram.New(size)
	}
	c.cfg.Validate()

	c.fb = framebuffer.New(framebuffer.Deps{
		GPU:    c.gpu,
		Cache:  c.cache,
		RDRAM:  c.mem,
		Window: c.window,
		Config: &c.cfg,
		VI:     &c.vi,
		RDP:    c.rdp,
		Log:    c.log,
	})
	c.post = postprocess.New(c.gpu, c.fb, &c.cfg, &c.vi)
	c.fb.SetPostProcessor(c.post)
	c.log.Debug("emulation context ready", "rdram", c.mem.Len(), "fb_emulation", c.cfg.FrameBufferEmulation.Enable)
	return c, nil
}

func (c *Context) Config() *config.Config              { return &c.cfg }
func (c *Context) RDRAM() *rdram.Memory                { return c.mem }
func (c *Context) RDP() *rdp.State                     { return c.rdp }
func (c *Context) VI() *video.Interface                { return &c.vi }
func (c *Context) Cache() *texcache.Cache              { return c.cache }
func (c *Context) FrameBuffers() *framebuffer.Registry { return c.fb }

func (c *Context) PostProcessor() *postprocess.PostProcessor {
	return c.post
}

// UpdateVI decodes new VI registers. When the resolution or interlacing
// changed, buffers sized for the old mode are dropped and the window scale
// follows the new one.
func (c *Context) UpdateVI(regs video.Registers) bool {
	prevWidth := c.vi.Width
	if !c.vi.Update(regs) {
		return false
	}
	c.window.SetVIScale(c.vi.Width, c.vi.Height)
	c.fb.OnResolutionChanged(prevWidth)
	c.log.Debug("vi resolution changed", "width", c.vi.Width, "height", c.vi.Height, "interlaced", c.vi.Interlaced)
	return true
}

// SetColorImage points rendering at a colour image.
func (c *Context) SetColorImage(format pixel.Format, size pixel.Size, width, address uint32) {
	c.rdp.ColorImage = rdp.ColorImage{Address: address, Format: format, Size: size, Width: width}
	c.fb.SaveBuffer(address, format, size, width, false)
}

// SetDepthImage points the depth image at address.
func (c *Context) SetDepthImage(address uint32) {
	c.rdp.DepthImageAddress = address
	c.fb.Depth.SaveBuffer(address)
}

func (c *Context) SetFillColor(color uint32) {
	c.rdp.FillColor = color
}

func (c *Context) SetScissor(ulx, uly, lrx, lry float32) {
	c.rdp.Scissor = rdp.Scissor{ULX: ulx, ULY: uly, LRX: lrx, LRY: lry}
	c.rdp.MarkChanged(rdp.ChangedScissor)
}

// SetTile replaces texture tile index.
func (c *Context) SetTile(index int, tile rdp.Tile) {
	c.rdp.Tiles[index&(rdp.NumTiles-1)] = tile
}

// FillRect runs a fill-mode rectangle. A fill of the depth image clears
// the depth buffer; any other fill paints the current target and, when it
// covers the whole buffer, is mirrored into RDRAM.
func (c *Context) FillRect(ulx, uly, lrx, lry int32) {
	if lrx <= ulx || lry <= uly {
		return
	}
	if c.rdp.ColorImage.Address == c.rdp.DepthImageAddress {
		c.fb.Depth.ClearBuffer(uint32(max(ulx, 0)), uint32(max(uly, 0)), uint32(max(lrx, 0)), uint32(max(lry, 0)))
		c.fb.FillRDRAM(ulx, uly, lrx, lry)
		return
	}

	cur := c.fb.Current()
	if cur == nil {
		return
	}
	c.fb.SetBufferChanged(float32(lry))
	cur.Fill(ulx, uly, lrx, lry)
	if ulx <= 0 && uly <= 0 && uint32(lrx) >= cur.Width && uint32(lry) >= cur.Height {
		c.fb.FillRDRAM(ulx, uly, lrx, lry)
	}
}

func (c *Context) SetBufferChanged(maxY float32) { c.fb.SetBufferChanged(maxY) }
func (c *Context) ClearBuffersChanged()          { c.fb.ClearBuffersChanged() }

func (c *Context) SetBufferClearParams(fillColor uint32, ulx, uly, lrx, lry int32) {
	c.fb.SetBufferClearParams(fillColor, ulx, uly, lrx, lry)
}

func (c *Context) FillRDRAM(ulx, uly, lrx, lry int32) { c.fb.FillRDRAM(ulx, uly, lrx, lry) }

func (c *Context) ActivateBufferTexture(tile int, address uint32) bool {
	return c.fb.ActivateBufferTexture(tile, address)
}

func (c *Context) ActivateBufferTextureBG(tile int, address uint32) bool {
	return c.fb.ActivateBufferTextureBG(tile, address)
}

func (c *Context) CopyToRDRAM(address uint32, sync bool)    { c.fb.CopyToRDRAM(address, sync) }
func (c *Context) CopyChunkToRDRAM(address uint32)          { c.fb.CopyChunkToRDRAM(address) }
func (c *Context) CopyDepthBuffer(address uint32) bool      { return c.fb.CopyDepthBuffer(address) }
func (c *Context) CopyDepthBufferChunk(address uint32) bool { return c.fb.CopyDepthBufferChunk(address) }
func (c *Context) CopyFromRDRAM(address uint32, cfb bool)   { c.fb.CopyFromRDRAM(address, cfb) }
func (c *Context) AddAddress(address, size uint32)          { c.fb.AddAddress(address, size) }
func (c *Context) CopyAux()                                 { c.fb.CopyAux() }
func (c *Context) RemoveAux()                               { c.fb.RemoveAux() }
func (c *Context) DepthBufferCopyRdram()                    { c.fb.DepthBufferCopyRdram() }

func (c *Context) FillBufferInfo(limit int) []framebuffer.BufferInfo {
	return c.fb.FillBufferInfo(limit)
}

// UpdateScreen is the vsync entry point: the colour image (and depth, when
// configured) is written back to RDRAM, the scanned-out buffer is
// presented and per-frame change flags are dropped.
func (c *Context) UpdateScreen() {
	fb := c.cfg.FrameBufferEmulation
	if fb.Enable {
		if fb.CopyToRDRAM != config.CopyOff && c.rdp.ColorImage.Width > 0 {
			c.fb.CopyToRDRAM(c.rdp.ColorImage.Address, false)
		}
		if fb.CopyDepthToRDRAM == config.DepthCopyVideoCard && c.rdp.DepthImageAddress != 0 {
			c.fb.CopyDepthBuffer(c.rdp.DepthImageAddress)
		}
	}
	c.fb.RenderBuffer()
	c.fb.ClearBuffersChanged()
}

// Screen reads back what was last presented.
func (c *Context) Screen() (*image.NRGBA, error) {
	rect := image.Rect(0, 0, int(c.window.ScreenWidth()), int(c.window.ScreenHeight()))
	img, err := gpu.ReadImage(c.gpu, gpu.DefaultFramebuffer, rect)
	if err != nil {
		return nil, fmt.Errorf("failed to read screen: %v", err)
	}
	return img, nil
}

// Snapshot writes the presented screen to the snapshot directory.
func (c *Context) Snapshot(name string) error {
	img, err := c.Screen()
	if err != nil {
		return err
	}
	path, err := debug.SaveImageToDir(img, name, c.snapshotDir, c.snapshotFormat)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %v", name, err)
	}
	c.log.Info("Saved snapshot", "path", path)
	return nil
}

// SnapshotRDRAM writes the RDRAM image at address, decoded as the console
// would scan it out, to the snapshot directory.
func (c *Context) SnapshotRDRAM(name string, address, width, height uint32, size pixel.Size) error {
	img := debug.NewRDRAMImage(c.mem, address, int(width), int(height), size)
	path, err := debug.SaveImageToDir(img, name, c.snapshotDir, c.snapshotFormat)
	if err != nil {
		return fmt.Errorf("failed to save rdram snapshot %s: %v", name, err)
	}
	c.log.Info("Saved RDRAM snapshot", "path", path, "address", address)
	return nil
}

// Dump writes every render target to the snapshot directory.
func (c *Context) Dump() error {
	paths, err := c.fb.Dump(c.snapshotDir, c.snapshotFormat)
	if err != nil {
		return err
	}
	c.log.Info("Dumped render targets", "count", len(paths))
	return nil
}

// Close releases every GPU resource. It is safe to call more than once.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.post.Destroy()
	c.fb.Destroy()
}
