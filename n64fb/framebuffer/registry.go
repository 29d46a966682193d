// Package framebuffer tracks the GPU render targets that stand in for N64
// framebuffers in RDRAM. It keeps them consistent with RDRAM, exports them
// back when the CPU needs the pixels and presents the scanned-out buffer.
package framebuffer

import (
	"log/slog"

	"github.com/valerio/go-n64fb/n64fb/config"
	"github.com/valerio/go-n64fb/n64fb/display"
	"github.com/valerio/go-n64fb/n64fb/gpu"
	"github.com/valerio/go-n64fb/n64fb/pixel"
	"github.com/valerio/go-n64fb/n64fb/rdp"
	"github.com/valerio/go-n64fb/n64fb/rdram"
	"github.com/valerio/go-n64fb/n64fb/texcache"
	"github.com/valerio/go-n64fb/n64fb/video"
)

// Deps are the collaborators a Registry works against. All of them are
// owned by the caller and must outlive the Registry.
type Deps struct {
	GPU    gpu.Context
	Cache  *texcache.Cache
	RDRAM  *rdram.Memory
	Window display.Window
	Config *config.Config
	VI     *video.Interface
	RDP    *rdp.State
	Log    *slog.Logger
}

// PostProcessor filters the presented buffer before it reaches the screen.
type PostProcessor interface {
	Process(t *Target) *Target
}

// BufferInfo describes one displayable buffer for frontends that read
// framebuffers directly.
type BufferInfo struct {
	Address uint32
	Size    uint32 // bytes per pixel
	Width   uint32
	Height  uint32
}

// Registry is the ordered collection of render targets, most recent first.
type Registry struct {
	deps Deps

	targets    arena[Target]
	order      []Handle
	current    Handle
	copyBuffer Handle

	// Depth holds the depth buffers attached to the targets.
	Depth *DepthBufferList

	color    *colorExporter
	depthOut *depthExporter
	importer *importer
	post     PostProcessor
}

// New creates an empty registry.
func New(deps Deps) *Registry {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	r := &Registry{deps: deps}
	r.Depth = newDepthBufferList(r)
	r.color = newColorExporter(r)
	r.depthOut = newDepthExporter(r)
	r.importer = newImporter(r)
	return r
}

func (r *Registry) log() *slog.Logger {
	return r.deps.Log
}

// SetPostProcessor installs the filter pipeline run by RenderBuffer.
func (r *Registry) SetPostProcessor(p PostProcessor) {
	r.post = p
}

// Current returns the target the RDP is rendering into, or nil.
func (r *Registry) Current() *Target {
	return r.targets.get(r.current)
}

// CopyBuffer returns the target pending export at the next vsync, or nil.
func (r *Registry) CopyBuffer() *Target {
	return r.targets.get(r.copyBuffer)
}

// SetCopyBuffer schedules t for export at the next vsync. A nil t cancels.
func (r *Registry) SetCopyBuffer(t *Target) {
	if t == nil {
		r.copyBuffer = Handle{}
		return
	}
	r.copyBuffer = t.handle
}

// Targets returns the live targets, most recent first.
func (r *Registry) Targets() []*Target {
	out := make([]*Target, 0, len(r.order))
	for _, h := range r.order {
		if t := r.targets.get(h); t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of live targets.
func (r *Registry) Len() int {
	return r.targets.len()
}

func (r *Registry) resolveScale(width uint32) float32 {
	fb := r.deps.Config.FrameBufferEmulation
	if width != r.deps.VI.Width && fb.CopyAuxToRDRAM {
		return 1
	}
	if fb.NativeResFactor > 0 {
		return float32(fb.NativeResFactor)
	}
	return r.deps.Window.ScaleX()
}

func (r *Registry) initialHeight(width uint32) uint32 {
	vi := r.deps.VI
	maxHeight := vi.MaxBufferHeight(width)
	if width == vi.Width && vi.Height > 0 {
		return min(vi.Height, maxHeight)
	}
	if lry := r.deps.RDP.Scissor.LRY; lry > 0 {
		return min(max(uint32(lry), 1), maxHeight)
	}
	return maxHeight
}

// SaveBuffer is called whenever the colour image register is pointed at
// address. It reuses, reshapes or creates the target standing in for the
// buffer there and makes it current.
func (r *Registry) SaveBuffer(address uint32, format pixel.Format, size pixel.Size, width uint32, cfb bool) {
	env := &r.deps
	if width > maxWidth {
		if !env.Config.Hacks.Has(config.HackRE2) || env.VI.Regs.Width == 0 || env.VI.Regs.Width > maxWidth {
			return
		}
		width = env.VI.Regs.Width
	}
	if width == 0 || address > env.RDRAM.MaxAddress() {
		return
	}

	if !env.Config.FrameBufferEmulation.Enable {
		r.saveScreenBuffer(address, format, size, width)
		return
	}

	fbCfg := env.Config.FrameBufferEmulation
	if cur := r.Current(); cur != nil && cur.auxiliary && fbCfg.CopyAuxToRDRAM && !env.Config.Hacks.Has(config.HackSnap) {
		r.color.copyTarget(cur, true)
		r.removeTarget(cur.handle)
	}

	if cur := r.Current(); cur != nil {
		cur.Readable = true
		cur.updateEndAddress()
		if !cur.IsDepthBuffer && !cur.CopiedToRdram && !cur.CFB && !cur.Cleared && !cur.HasSnapshot() && cur.Height > 1 {
			cur.copyRdram()
		}
		r.RemoveIntersections()
	}

	if cur := r.Current(); cur == nil || cur.StartAddress != address || cur.Width != width {
		r.setCurrent(r.FindBuffer(address))
	}

	scale := r.resolveScale(width)
	swaps := env.Window.BuffersSwapCount()
	if cur := r.Current(); cur != nil {
		if cur.StartAddress != address || cur.Width != width {
			if r.classify(cur, address, size, width, swaps) {
				return
			}
		} else if cur.Size != size || cur.Scale != scale {
			cur.reformat(format, size, scale)
		}
	}

	cur := r.Current()
	if cur == nil {
		if t := r.GetBuffer(address); t != nil {
			if t.Width == width {
				cur = t
			} else {
				r.removeTarget(t.handle)
			}
		}
	}
	if cur == nil {
		cur = r.create(address, format, size, width, cfb)
	}
	r.setCurrent(cur)
	cur.Resolved = false
	cur.OriginX, cur.OriginY = 0, 0

	cur.IsDepthBuffer = address == env.RDP.DepthImageAddress
	r.attachDepthBuffer(cur)

	cur.SwapCount = swaps
	cur.CopiedToRdram = false
	cur.IsMainBuffer = false
	env.RDP.MarkChanged(rdp.ChangedViewport | rdp.ChangedScissor)

	r.RemoveIntersections()
	env.GPU.BindFramebuffer(gpu.DrawFramebuffer, cur.main.fbo)
	r.log().Debug("buffer saved", "address", address, "width", width, "size", size, "targets", r.Len())
}

// classify decides what a request at address means for cur, which
// contains address but does not start there. It returns true when the
// request was absorbed as a viewport origin shift inside cur.
func (r *Registry) classify(cur *Target, address uint32, size pixel.Size, width, swaps uint32) bool {
	stride := size.Stride(width)
	sameShape := cur.Width == width && cur.Size == size && stride > 0
	if !sameShape || address < cur.StartAddress {
		r.removeTarget(cur.handle)
		return false
	}

	offset := address - cur.StartAddress
	tail := cur.EndAddress + 1 - address
	nearEnd := tail < tailRows*stride

	if cur.SwapCount == swaps && !cur.CFB && (offset%stride != 0 || nearEnd) {
		cur.OriginX = size.Pixels(offset % stride)
		cur.OriginY = offset / stride
		r.deps.RDP.MarkChanged(rdp.ChangedViewport | rdp.ChangedScissor)
		r.log().Debug("buffer origin shift", "address", cur.StartAddress, "x", cur.OriginX, "y", cur.OriginY)
		return true
	}
	if nearEnd {
		cur.EndAddress = address - 1
		r.setCurrent(nil)
		r.log().Debug("buffer tail trimmed", "address", cur.StartAddress, "end", cur.EndAddress)
		return false
	}
	r.removeTarget(cur.handle)
	return false
}

func (r *Registry) create(address uint32, format pixel.Format, size pixel.Size, width uint32, cfb bool) *Target {
	env := &r.deps
	t := &Target{reg: r}
	t.init(address, format, size, width, r.initialHeight(width), cfb)
	t.handle = r.targets.insert(t)
	r.order = append([]Handle{t.handle}, r.order...)
	r.setCurrent(t)
	r.log().Debug("buffer created", "address", address, "end", t.EndAddress, "width", width, "height", t.Height, "scale", t.Scale)

	seedCFB := cfb || (env.Config.Hacks.Has(config.HackLegoRacers) && width == env.VI.Width)
	r.importer.copyFromRDRAM(address, seedCFB)
	return t
}

// saveScreenBuffer is SaveBuffer with emulation disabled: one target the
// size of the VI output receives all rendering.
func (r *Registry) saveScreenBuffer(address uint32, format pixel.Format, size pixel.Size, width uint32) {
	if cur := r.Current(); cur != nil {
		r.deps.GPU.BindFramebuffer(gpu.DrawFramebuffer, cur.main.fbo)
		return
	}
	if r.deps.VI.Width > 0 {
		width = r.deps.VI.Width
	}
	t := &Target{reg: r}
	t.init(address, format, size, width, r.initialHeight(width), false)
	t.handle = r.targets.insert(t)
	r.order = append([]Handle{t.handle}, r.order...)
	r.setCurrent(t)
	r.deps.GPU.BindFramebuffer(gpu.DrawFramebuffer, t.main.fbo)
}

func (r *Registry) setCurrent(t *Target) {
	if t == nil {
		r.current = Handle{}
		return
	}
	r.current = t.handle
}

func (r *Registry) attachDepthBuffer(t *Target) {
	d := r.Depth.Current()
	if d == nil || d.Width != t.Width {
		t.depth = Handle{}
		return
	}
	d.attach(t)
}

func overlaps(a, b *Target) bool {
	return a.StartAddress <= b.EndAddress && b.StartAddress <= a.EndAddress
}

// RemoveIntersections resolves every overlap between the current target
// and the rest. A target ending a few whole rows into the current one is
// the same logical buffer and is trimmed; anything else overlapping is
// evicted.
func (r *Registry) RemoveIntersections() {
	cur := r.Current()
	if cur == nil {
		return
	}
	for changed := true; changed; {
		changed = false
		for _, h := range r.order {
			t := r.targets.get(h)
			if t == nil || t == cur || !overlaps(t, cur) {
				continue
			}
			if r.trimmable(t, cur) {
				t.EndAddress = cur.StartAddress - 1
				r.log().Debug("buffer trimmed", "address", t.StartAddress, "end", t.EndAddress)
			} else {
				r.removeTarget(h)
			}
			changed = true
			break
		}
	}
}

func (r *Registry) trimmable(t, cur *Target) bool {
	if t.Width != cur.Width || t.Size != cur.Size || t.StartAddress >= cur.StartAddress {
		return false
	}
	stride := t.Stride()
	if stride == 0 {
		return false
	}
	diff := t.EndAddress + 1 - cur.StartAddress
	return diff > 0 && diff%stride == 0 && diff < tailRows*stride
}

func (r *Registry) removeTarget(h Handle) {
	t := r.targets.get(h)
	if t == nil {
		return
	}
	t.release()
	r.targets.remove(h)
	for i, oh := range r.order {
		if oh == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.copyBuffer == h {
		r.copyBuffer = Handle{}
	}
	if r.current == h {
		r.current = Handle{}
		r.deps.GPU.BindFramebuffer(gpu.DrawFramebuffer, gpu.DefaultFramebuffer)
	}
	r.log().Debug("buffer removed", "address", t.StartAddress, "width", t.Width)
}

func (r *Registry) removeWhere(match func(t *Target) bool) {
	for _, t := range r.Targets() {
		if match(t) {
			r.removeTarget(t.handle)
		}
	}
}

// isAuxRender reports whether t is an off-screen render: neither its
// width nor its height matches the VI output.
func (r *Registry) isAuxRender(t *Target) bool {
	return t.Width != r.deps.VI.Width && t.Height != r.deps.VI.Height
}

// RemoveAux evicts all off-screen targets.
func (r *Registry) RemoveAux() {
	r.removeWhere(r.isAuxRender)
}

// RemoveBuffers evicts every target of the given width.
func (r *Registry) RemoveBuffers(width uint32) {
	r.removeWhere(func(t *Target) bool { return t.Width == width })
}

// RemoveBuffer evicts the target starting at address.
func (r *Registry) RemoveBuffer(address uint32) {
	if t := r.GetBuffer(address); t != nil {
		r.removeTarget(t.handle)
	}
}

// FindBuffer returns the most recent target whose range contains address.
func (r *Registry) FindBuffer(address uint32) *Target {
	for _, h := range r.order {
		if t := r.targets.get(h); t != nil && t.Contains(address) {
			return t
		}
	}
	return nil
}

// GetBuffer returns the target starting exactly at address.
func (r *Registry) GetBuffer(address uint32) *Target {
	for _, h := range r.order {
		if t := r.targets.get(h); t != nil && t.StartAddress == address {
			return t
		}
	}
	return nil
}

// FindTmpBuffer returns the most recent target not containing address.
func (r *Registry) FindTmpBuffer(address uint32) *Target {
	for _, h := range r.order {
		if t := r.targets.get(h); t != nil && !t.Contains(address) {
			return t
		}
	}
	return nil
}

// SetBufferChanged records that the RDP drew into the current target down
// to row maxY.
func (r *Registry) SetBufferChanged(maxY float32) {
	env := &r.deps
	ci := &env.RDP.ColorImage
	if maxY > 0 {
		ci.Height = max(ci.Height, uint32(maxY))
	}
	if lry := env.RDP.Scissor.LRY; lry > 0 {
		ci.Height = min(ci.Height, uint32(lry))
	}

	cur := r.Current()
	if cur == nil {
		return
	}
	height := min(max(cur.Height, ci.Height), env.VI.MaxBufferHeight(cur.Width))
	if height != cur.Height {
		cur.Height = height
		cur.updateEndAddress()
	}
	cur.CFB = false
	cur.Changed = true
	cur.CopiedToRdram = false
	cur.Cleared = false
	cur.Resolved = false
}

// ClearBuffersChanged resets the changed flag of every target.
func (r *Registry) ClearBuffersChanged() {
	for _, t := range r.Targets() {
		t.Changed = false
	}
	r.deps.RDP.ColorImage.Height = 0
}

func toWords(x int32, size pixel.Size) uint32 {
	if x <= 0 {
		return 0
	}
	return uint32(x) << size >> 3
}

// SetBufferClearParams records a solid fill of the current target.
// Coordinates are in pixels, lower-right exclusive.
func (r *Registry) SetBufferClearParams(fillColor uint32, ulx, uly, lrx, lry int32) {
	cur := r.Current()
	if cur == nil {
		return
	}
	cur.setClearParams(fillColor,
		toWords(ulx, cur.Size), uint32(max(uly, 0)),
		toWords(lrx, cur.Size), uint32(max(lry, 0)))
}

// FillRDRAM writes the RDP fill colour straight into RDRAM over the given
// rectangle of the current target, clipped to the scissor box and to the
// tallest buffer the VI mode allows.
func (r *Registry) FillRDRAM(ulx, uly, lrx, lry int32) {
	env := &r.deps
	cur := r.Current()
	if cur == nil {
		return
	}
	sc := env.RDP.Scissor
	ulx = max(ulx, int32(sc.ULX))
	uly = max(uly, int32(sc.ULY))
	if sc.LRX > 0 {
		lrx = min(lrx, int32(sc.LRX))
	}
	if sc.LRY > 0 {
		lry = min(lry, int32(sc.LRY))
	}
	lrx = min(lrx, int32(cur.Width))
	lry = min(lry, int32(env.VI.MaxBufferHeight(cur.Width)))
	if lrx <= ulx || lry <= uly {
		return
	}

	x0, x1 := toWords(ulx, cur.Size), toWords(lrx, cur.Size)
	stride := cur.Stride()
	rows := env.RDRAM.CutHeight(cur.StartAddress, uint32(lry), stride)
	for y := uint32(uly); y < rows; y++ {
		row := cur.StartAddress + y*stride
		env.RDRAM.Fill(row+x0*4, (x1-x0)*4, env.RDP.FillColor)
	}
	cur.setClearParams(env.RDP.FillColor, x0, uint32(uly), x1, uint32(lry))
}

// ActivateBufferTexture makes the target containing address the texture
// source of tile. It reports whether such a target exists.
func (r *Registry) ActivateBufferTexture(tile int, address uint32) bool {
	t := r.FindBuffer(address)
	if t == nil {
		return false
	}
	r.deps.Cache.ActivateTexture(tile, t.GetTexture(tile))
	r.deps.RDP.MarkChanged(rdp.ChangedFBTexture)
	r.rebindCurrent()
	return true
}

// ActivateBufferTextureBG is ActivateBufferTexture for background images.
func (r *Registry) ActivateBufferTextureBG(tile int, address uint32) bool {
	t := r.FindBuffer(address)
	if t == nil {
		return false
	}
	r.deps.Cache.ActivateTexture(tile, t.GetTextureBG(tile))
	r.deps.RDP.MarkChanged(rdp.ChangedFBTexture)
	r.rebindCurrent()
	return true
}

func (r *Registry) rebindCurrent() {
	fbo := gpu.DefaultFramebuffer
	if cur := r.Current(); cur != nil {
		fbo = cur.main.fbo
	}
	r.deps.GPU.BindFramebuffer(gpu.DrawFramebuffer, fbo)
}

// CopyAux exports every off-screen target to RDRAM.
func (r *Registry) CopyAux() {
	for _, t := range r.Targets() {
		if r.isAuxRender(t) {
			r.color.copyTarget(t, true)
		}
	}
}

// DepthBufferCopyRdram snapshots the target at the depth image address.
func (r *Registry) DepthBufferCopyRdram() {
	if t := r.FindBuffer(r.deps.RDP.DepthImageAddress); t != nil {
		t.copyRdram()
	}
}

// FillBufferInfo returns up to limit displayable buffers.
func (r *Registry) FillBufferInfo(limit int) []BufferInfo {
	var out []BufferInfo
	for _, t := range r.Targets() {
		if len(out) >= limit {
			break
		}
		if t.Width != r.deps.VI.Width || t.CFB || t.IsDepthBuffer {
			continue
		}
		var bytes uint32
		if t.Size > pixel.Size4b {
			bytes = 1 << (t.Size - 1)
		}
		out = append(out, BufferInfo{Address: t.StartAddress, Size: bytes, Width: t.Width, Height: t.Height})
	}
	return out
}

// CopyToRDRAM exports the target containing address. With sync false and
// asynchronous copies configured the export is deferred to the next vsync.
func (r *Registry) CopyToRDRAM(address uint32, sync bool) {
	t := r.FindBuffer(address)
	if t == nil {
		return
	}
	if !sync && r.deps.Config.FrameBufferEmulation.CopyToRDRAM == config.CopyAsync {
		r.SetCopyBuffer(t)
		return
	}
	r.color.copyTarget(t, sync)
}

// CopyChunkToRDRAM exports the 4 KiB chunk of the target at address.
func (r *Registry) CopyChunkToRDRAM(address uint32) {
	r.color.copyChunk(address)
}

// CopyDepthBuffer exports the depth buffer at address.
func (r *Registry) CopyDepthBuffer(address uint32) bool {
	return r.depthOut.copyToRDRAM(address)
}

// CopyDepthBufferChunk exports the 4 KiB chunk of the depth buffer at address.
func (r *Registry) CopyDepthBufferChunk(address uint32) bool {
	return r.depthOut.copyChunk(address)
}

// CopyFromRDRAM imports the RDRAM image at address into the current target.
func (r *Registry) CopyFromRDRAM(address uint32, cfb bool) {
	r.importer.copyFromRDRAM(address, cfb)
}

// AddAddress restricts the next import to the listed pixels.
func (r *Registry) AddAddress(address, size uint32) {
	r.importer.addAddress(address, size)
}

// OnResolutionChanged drops buffers sized for the old and new VI widths
// and all depth buffers.
func (r *Registry) OnResolutionChanged(prevWidth uint32) {
	if !r.deps.Config.FrameBufferEmulation.Enable {
		r.removeWhere(func(*Target) bool { return true })
		return
	}
	r.RemoveBuffers(prevWidth)
	r.RemoveBuffers(r.deps.VI.Width)
	r.Depth.Reset()
}

// NewOffscreen creates an untracked target with the geometry of like, for
// post-processing output. Release it with ReleaseOffscreen.
func (r *Registry) NewOffscreen(like *Target) *Target {
	t := &Target{
		reg:          r,
		StartAddress: like.StartAddress,
		EndAddress:   like.EndAddress,
		Width:        like.Width,
		Height:       like.Height,
		Format:       like.Format,
		Size:         like.Size,
		Scale:        like.Scale,
		auxiliary:    like.auxiliary,
	}
	w, h := r.deps.GPU.TextureSize(like.main.tex.ID)
	t.main = t.newRenderTexture(w, h, 0)
	return t
}

// ReleaseOffscreen frees a target made by NewOffscreen.
func (r *Registry) ReleaseOffscreen(t *Target) {
	if t == nil || !t.handle.IsNil() {
		return
	}
	t.release()
}

// Destroy releases every target and depth buffer.
func (r *Registry) Destroy() {
	r.removeWhere(func(*Target) bool { return true })
	r.Depth.Reset()
	r.color.destroy()
	r.depthOut.destroy()
	r.importer.destroy()
	r.current = Handle{}
	r.copyBuffer = Handle{}
}
