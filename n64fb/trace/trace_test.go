package trace

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-n64fb/n64fb/framebuffer"
	"github.com/valerio/go-n64fb/n64fb/pixel"
	"github.com/valerio/go-n64fb/n64fb/rdp"
	"github.com/valerio/go-n64fb/n64fb/rdram"
	"github.com/valerio/go-n64fb/n64fb/video"
)

// recorder logs every call it receives.
type recorder struct {
	mem     *rdram.Memory
	calls   []string
	tiles   map[int]rdp.Tile
	regs    video.Registers
	snapErr error
	screen  *image.NRGBA
}

var _ Target = (*recorder)(nil)

func newRecorder() *recorder {
	return &recorder{mem: rdram.New(0x200000), tiles: map[int]rdp.Tile{}}
}

func (r *recorder) log(format string, a ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, a...))
}

func (r *recorder) RDRAM() *rdram.Memory { return r.mem }

func (r *recorder) UpdateVI(regs video.Registers) bool {
	r.regs = regs
	r.log("vi %x %d", regs.Origin, regs.Width)
	return true
}

func (r *recorder) SetColorImage(format pixel.Format, size pixel.Size, width, address uint32) {
	r.log("colorimage %x %d %s %s", address, width, size, format)
}

func (r *recorder) SetDepthImage(address uint32) { r.log("depthimage %x", address) }
func (r *recorder) SetFillColor(color uint32)    { r.log("fillcolor %x", color) }

func (r *recorder) SetScissor(ulx, uly, lrx, lry float32) {
	r.log("scissor %g %g %g %g", ulx, uly, lrx, lry)
}

func (r *recorder) SetTile(index int, tile rdp.Tile) {
	r.tiles[index] = tile
	r.log("tile %d", index)
}

func (r *recorder) FillRect(ulx, uly, lrx, lry int32) {
	r.log("fillrect %d %d %d %d", ulx, uly, lrx, lry)
}

func (r *recorder) FillRDRAM(ulx, uly, lrx, lry int32) {
	r.log("fillrdram %d %d %d %d", ulx, uly, lrx, lry)
}

func (r *recorder) SetBufferChanged(maxY float32) { r.log("changed %g", maxY) }

func (r *recorder) ActivateBufferTexture(tile int, address uint32) bool {
	r.log("activate %d %x", tile, address)
	return true
}

func (r *recorder) ActivateBufferTextureBG(tile int, address uint32) bool {
	r.log("activatebg %d %x", tile, address)
	return true
}

func (r *recorder) CopyToRDRAM(address uint32, sync bool) { r.log("copytordram %x %t", address, sync) }
func (r *recorder) CopyChunkToRDRAM(address uint32)       { r.log("copychunk %x", address) }

func (r *recorder) CopyDepthBuffer(address uint32) bool {
	r.log("copydepth %x", address)
	return true
}

func (r *recorder) CopyDepthBufferChunk(address uint32) bool {
	r.log("copydepthchunk %x", address)
	return true
}

func (r *recorder) CopyFromRDRAM(address uint32, cfb bool) { r.log("copyfromrdram %x %t", address, cfb) }
func (r *recorder) AddAddress(address, size uint32)        { r.log("addaddress %x %d", address, size) }
func (r *recorder) CopyAux()                               { r.log("copyaux") }
func (r *recorder) RemoveAux()                             { r.log("removeaux") }
func (r *recorder) DepthBufferCopyRdram()                  { r.log("depthcopy") }

func (r *recorder) FillBufferInfo(limit int) []framebuffer.BufferInfo {
	return make([]framebuffer.BufferInfo, min(limit, 2))
}

func (r *recorder) UpdateScreen() { r.log("vsync") }

func (r *recorder) Screen() (*image.NRGBA, error) {
	if r.screen == nil {
		return nil, errors.New("no screen")
	}
	return r.screen, nil
}

func (r *recorder) Snapshot(name string) error {
	r.log("snapshot %s", name)
	return r.snapErr
}

func (r *recorder) SnapshotRDRAM(name string, address, width, height uint32, size pixel.Size) error {
	r.log("rdramsnapshot %s %x %dx%d %s", name, address, width, height, size)
	return nil
}

func (r *recorder) Dump() error {
	r.log("dump")
	return nil
}

func mustParse(t *testing.T, src string) *Script {
	t.Helper()
	s, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	return s
}

func TestParseSkipsCommentsAndBlankLines(t *testing.T) {
	s := mustParse(t, `
# a full-line comment
vsync   # trailing comment

   dump
`)
	assert.Equal(t, 2, s.Len())
}

func TestRunDispatchesCommands(t *testing.T) {
	s := mustParse(t, `
vi ntsc 0x100000 320 240 bpp16
colorimage 0x100000 320 16
colorimage 0x200000 64 8 i
depthimage 0x180000
fillcolor 0xF801F801
scissor 0 0 320 240.5
fillrect 0 0 320 240
fillrdram -4 0 16 8
changed 120
activate 1 0x100000
activatebg 0 0x100000
copytordram 0x100000
copytordram 0x100000 async
copychunk 0x101000
copydepth 0x180000
copydepthchunk 0x181000
copyfromrdram 0x100000 cfb
addaddress 0x100010 2
copyaux
removeaux
depthcopy
vsync
snapshot "title screen"
rdramsnapshot cfb 0x100000 320 240 16
dump
`)
	r := newRecorder()
	require.NoError(t, s.Run(r))

	assert.Equal(t, []string{
		"vi 100000 320",
		"colorimage 100000 320 16b RGBA",
		"colorimage 200000 64 8b I",
		"depthimage 180000",
		"fillcolor f801f801",
		"scissor 0 0 320 240.5",
		"fillrect 0 0 320 240",
		"fillrdram -4 0 16 8",
		"changed 120",
		"activate 1 100000",
		"activatebg 0 100000",
		"copytordram 100000 true",
		"copytordram 100000 false",
		"copychunk 101000",
		"copydepth 180000",
		"copydepthchunk 181000",
		"copyfromrdram 100000 true",
		"addaddress 100010 2",
		"copyaux",
		"removeaux",
		"depthcopy",
		"vsync",
		"snapshot title screen",
		"rdramsnapshot cfb 100000 320x240 16b",
		"dump",
	}, r.calls)
	assert.Equal(t, video.BPP16, r.regs.Depth())
}

func TestRunVIPresets(t *testing.T) {
	tests := []struct {
		line string
		want video.Registers
	}{
		{"vi ntsc 0x100000 320 240 bpp16", video.NTSC(0x100000, 320, 240, video.BPP16)},
		{"vi pal 0x100000 640 480 bpp32", video.PAL(0x100000, 640, 480, video.BPP32)},
		{"vi ntsc 0 320 240 blank", video.NTSC(0, 320, 240, video.BPPBlank)},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			r := newRecorder()
			require.NoError(t, mustParse(t, tt.line).Run(r))
			assert.Equal(t, tt.want, r.regs)
		})
	}
}

func TestRunTile(t *testing.T) {
	r := newRecorder()
	require.NoError(t, mustParse(t, "tile 2 0x100000 16 0 0 31 15 clamp\ntile 3 0x100000 32 4 4 7 7").Run(r))

	assert.Equal(t, rdp.Tile{
		ImageAddress: 0x100000,
		Size:         pixel.Size16b,
		LRS:          31,
		LRT:          15,
		ClampS:       true,
		ClampT:       true,
	}, r.tiles[2])
	assert.False(t, r.tiles[3].ClampS)
	assert.Equal(t, pixel.Size32b, r.tiles[3].Size)
}

func TestRunMemoryCommands(t *testing.T) {
	r := newRecorder()
	s := mustParse(t, `
rdram fill 0x1000 16 0xDEADBEEF
poke16 0x2000 0xF801
poke32 0x3000 0x12345678
expect32 0x100C 0xDEADBEEF
expect16 0x2000 0xF801
expect32 0x3000 0x12345678
expectbuffers 2
`)
	require.NoError(t, s.Run(r))
	assert.Equal(t, uint32(0), r.mem.Word(0x1010))
}

func TestRunExpectationFailure(t *testing.T) {
	r := newRecorder()
	s := mustParse(t, "poke16 0x2000 0x0001\n\nexpect16 0x2000 0xF801\nvsync")

	err := s.Run(r)

	require.ErrorIs(t, err, ErrMismatch)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 3, e.Line)
	assert.Contains(t, err.Error(), "expect16 0x2000 0xF801")
	assert.NotContains(t, r.calls, "vsync", "run stops at the failure")
}

func TestRunExpectScreen(t *testing.T) {
	r := newRecorder()
	r.screen = image.NewNRGBA(image.Rect(0, 0, 4, 4))
	r.screen.SetNRGBA(1, 2, color.NRGBA{R: 0xFF, B: 0x3F, A: 0xFF})

	require.NoError(t, mustParse(t, "expectscreen 1 2 0xFF003FFF\nexpectscreen 0 0 0").Run(r))

	err := mustParse(t, "expectscreen 1 2 0xFF0000FF").Run(r)
	require.ErrorIs(t, err, ErrMismatch)
	assert.Contains(t, err.Error(), "got ff003fff")
}

func TestRunPropagatesSnapshotError(t *testing.T) {
	r := newRecorder()
	r.snapErr = errors.New("disk full")

	err := mustParse(t, "snapshot a").Run(r)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		is   error
	}{
		{"unknown command", "vsync\nwarp 9", 2, ErrUnknownCommand},
		{"too few", "fillrect 0 0 320", 1, ErrArgCount},
		{"too many", "vsync now", 1, ErrArgCount},
		{"bad number", "fillcolor red", 1, nil},
		{"bad size", "colorimage 0x100000 320 24", 1, nil},
		{"bad format", "colorimage 0x100000 320 16 rgb", 1, nil},
		{"bad standard", "vi secam 0 320 240 bpp16", 1, nil},
		{"bad depth", "vi ntsc 0 320 240 bpp8", 1, nil},
		{"bad flag", "copytordram 0x100000 later", 1, nil},
		{"bad tile index", "tile 8 0 16 0 0 1 1", 1, nil},
		{"bad rdram op", "rdram clear 0 4 0", 1, nil},
		{"unclosed quote", "\n\n\nsnapshot \"title", 4, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Nil(t, s)

			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.line, e.Line)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}
