// Package trace replays scripted RDP and VI events against an emulation
// context. A script is one command per line; arguments are split with
// POSIX shell rules and '#' starts a comment.
//
//	vi ntsc 0x100000 320 240 bpp16
//	colorimage 0x100000 320 16
//	fillcolor 0xF801F801
//	fillrect 0 0 320 240
//	vsync
//	expect16 0x100000 0xF801
//	expectscreen 160 120 0xFF0000FF
//	rdramsnapshot frame 0x100000 320 240 16
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"

	"github.com/buildkite/shellwords"

	"github.com/valerio/go-n64fb/n64fb/framebuffer"
	"github.com/valerio/go-n64fb/n64fb/pixel"
	"github.com/valerio/go-n64fb/n64fb/rdp"
	"github.com/valerio/go-n64fb/n64fb/rdram"
	"github.com/valerio/go-n64fb/n64fb/video"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrArgCount       = errors.New("wrong number of arguments")
	ErrMismatch       = errors.New("expectation failed")
)

// Target is what a script drives.
type Target interface {
	RDRAM() *rdram.Memory
	UpdateVI(regs video.Registers) bool
	SetColorImage(format pixel.Format, size pixel.Size, width, address uint32)
	SetDepthImage(address uint32)
	SetFillColor(color uint32)
	SetScissor(ulx, uly, lrx, lry float32)
	SetTile(index int, tile rdp.Tile)
	FillRect(ulx, uly, lrx, lry int32)
	FillRDRAM(ulx, uly, lrx, lry int32)
	SetBufferChanged(maxY float32)
	ActivateBufferTexture(tile int, address uint32) bool
	ActivateBufferTextureBG(tile int, address uint32) bool
	CopyToRDRAM(address uint32, sync bool)
	CopyChunkToRDRAM(address uint32)
	CopyDepthBuffer(address uint32) bool
	CopyDepthBufferChunk(address uint32) bool
	CopyFromRDRAM(address uint32, cfb bool)
	AddAddress(address, size uint32)
	CopyAux()
	RemoveAux()
	DepthBufferCopyRdram()
	FillBufferInfo(limit int) []framebuffer.BufferInfo
	UpdateScreen()
	Screen() (*image.NRGBA, error)
	Snapshot(name string) error
	SnapshotRDRAM(name string, address, width, height uint32, size pixel.Size) error
	Dump() error
}

// Error locates a failing script line.
type Error struct {
	Line int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type step struct {
	line int
	text string
	exec func(Target) error
}

// Script is a parsed trace.
type Script struct {
	steps []step
}

// Len returns the number of commands.
func (s *Script) Len() int { return len(s.steps) }

// Parse reads a whole script. Every command is checked here, so a script
// that parses only fails at run time on expectations and I/O.
func Parse(r io.Reader) (*Script, error) {
	s := &Script{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		if text == "" {
			continue
		}
		words, err := shellwords.SplitPosix(text)
		if err != nil {
			return nil, &Error{Line: line, Err: err}
		}
		exec, err := compile(words)
		if err != nil {
			return nil, &Error{Line: line, Err: err}
		}
		s.steps = append(s.steps, step{line: line, text: text, exec: exec})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %v", err)
	}
	return s, nil
}

// Run executes the script against t and stops at the first failure.
func (s *Script) Run(t Target) error {
	for _, st := range s.steps {
		if err := st.exec(t); err != nil {
			return &Error{Line: st.line, Err: fmt.Errorf("%s: %w", st.text, err)}
		}
	}
	return nil
}

type args struct {
	words []string
	err   error
}

func (a *args) u32(i int) uint32 {
	if a.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(a.words[i], 0, 32)
	if err != nil {
		a.err = fmt.Errorf("argument %d: %v", i+1, err)
	}
	return uint32(v)
}

func (a *args) i32(i int) int32 {
	if a.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(a.words[i], 0, 32)
	if err != nil {
		a.err = fmt.Errorf("argument %d: %v", i+1, err)
	}
	return int32(v)
}

func (a *args) f32(i int) float32 {
	if a.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(a.words[i], 32)
	if err != nil {
		a.err = fmt.Errorf("argument %d: %v", i+1, err)
	}
	return float32(v)
}

func (a *args) size(i int) pixel.Size {
	switch a.words[i] {
	case "4":
		return pixel.Size4b
	case "8":
		return pixel.Size8b
	case "16":
		return pixel.Size16b
	case "32":
		return pixel.Size32b
	}
	a.fail(i, "pixel size")
	return 0
}

var formats = map[string]pixel.Format{
	"rgba": pixel.FormatRGBA,
	"yuv":  pixel.FormatYUV,
	"ci":   pixel.FormatCI,
	"ia":   pixel.FormatIA,
	"i":    pixel.FormatI,
}

// format reads an optional image format, RGBA when absent.
func (a *args) format(i int) pixel.Format {
	if i >= len(a.words) {
		return pixel.FormatRGBA
	}
	f, ok := formats[a.words[i]]
	if !ok {
		a.fail(i, "image format")
	}
	return f
}

// flag reads an optional keyword argument.
func (a *args) flag(i int, name string) bool {
	if i >= len(a.words) {
		return false
	}
	if a.words[i] != name {
		a.fail(i, name)
		return false
	}
	return true
}

func (a *args) fail(i int, what string) {
	if a.err == nil {
		a.err = fmt.Errorf("argument %d: invalid %s %q", i+1, what, a.words[i])
	}
}

type command struct {
	min, max int
	build    func(a *args) func(Target) error
}

func run(f func(Target)) func(Target) error {
	return func(t Target) error {
		f(t)
		return nil
	}
}

var commands = map[string]command{
	"vi": {5, 5, func(a *args) func(Target) error {
		var preset func(origin, width, height uint32, depth video.ColorDepth) video.Registers
		switch a.words[0] {
		case "ntsc":
			preset = video.NTSC
		case "pal":
			preset = video.PAL
		default:
			a.fail(0, "tv standard")
		}
		origin, width, height := a.u32(1), a.u32(2), a.u32(3)
		var depth video.ColorDepth
		switch a.words[4] {
		case "bpp16":
			depth = video.BPP16
		case "bpp32":
			depth = video.BPP32
		case "blank":
			depth = video.BPPBlank
		default:
			a.fail(4, "colour depth")
		}
		return run(func(t Target) { t.UpdateVI(preset(origin, width, height, depth)) })
	}},
	"rdram": {4, 4, func(a *args) func(Target) error {
		if a.words[0] != "fill" {
			a.fail(0, "rdram operation")
		}
		addr, size, word := a.u32(1), a.u32(2), a.u32(3)
		return run(func(t Target) { t.RDRAM().Fill(addr, size, word) })
	}},
	"poke16": {2, 2, func(a *args) func(Target) error {
		addr, v := a.u32(0), a.u32(1)
		return run(func(t Target) { t.RDRAM().SetHalf(addr, uint16(v)) })
	}},
	"poke32": {2, 2, func(a *args) func(Target) error {
		addr, v := a.u32(0), a.u32(1)
		return run(func(t Target) { t.RDRAM().SetWord(addr, v) })
	}},
	"colorimage": {3, 4, func(a *args) func(Target) error {
		addr, width, size, format := a.u32(0), a.u32(1), a.size(2), a.format(3)
		return run(func(t Target) { t.SetColorImage(format, size, width, addr) })
	}},
	"depthimage": {1, 1, func(a *args) func(Target) error {
		addr := a.u32(0)
		return run(func(t Target) { t.SetDepthImage(addr) })
	}},
	"fillcolor": {1, 1, func(a *args) func(Target) error {
		c := a.u32(0)
		return run(func(t Target) { t.SetFillColor(c) })
	}},
	"scissor": {4, 4, func(a *args) func(Target) error {
		ulx, uly, lrx, lry := a.f32(0), a.f32(1), a.f32(2), a.f32(3)
		return run(func(t Target) { t.SetScissor(ulx, uly, lrx, lry) })
	}},
	"fillrect": {4, 4, func(a *args) func(Target) error {
		ulx, uly, lrx, lry := a.i32(0), a.i32(1), a.i32(2), a.i32(3)
		return run(func(t Target) { t.FillRect(ulx, uly, lrx, lry) })
	}},
	"fillrdram": {4, 4, func(a *args) func(Target) error {
		ulx, uly, lrx, lry := a.i32(0), a.i32(1), a.i32(2), a.i32(3)
		return run(func(t Target) { t.FillRDRAM(ulx, uly, lrx, lry) })
	}},
	"changed": {1, 1, func(a *args) func(Target) error {
		maxY := a.f32(0)
		return run(func(t Target) { t.SetBufferChanged(maxY) })
	}},
	"tile": {7, 8, func(a *args) func(Target) error {
		idx := a.u32(0)
		tile := rdp.Tile{
			ImageAddress: a.u32(1),
			Size:         a.size(2),
			ULS:          a.u32(3),
			ULT:          a.u32(4),
			LRS:          a.u32(5),
			LRT:          a.u32(6),
		}
		if a.flag(7, "clamp") {
			tile.ClampS, tile.ClampT = true, true
		}
		if a.err == nil && idx >= rdp.NumTiles {
			a.fail(0, "tile index")
		}
		return run(func(t Target) { t.SetTile(int(idx), tile) })
	}},
	"activate": {2, 2, func(a *args) func(Target) error {
		tile, addr := a.u32(0), a.u32(1)
		return run(func(t Target) { t.ActivateBufferTexture(int(tile), addr) })
	}},
	"activatebg": {2, 2, func(a *args) func(Target) error {
		tile, addr := a.u32(0), a.u32(1)
		return run(func(t Target) { t.ActivateBufferTextureBG(int(tile), addr) })
	}},
	"copytordram": {1, 2, func(a *args) func(Target) error {
		addr, async := a.u32(0), a.flag(1, "async")
		return run(func(t Target) { t.CopyToRDRAM(addr, !async) })
	}},
	"copychunk": {1, 1, func(a *args) func(Target) error {
		addr := a.u32(0)
		return run(func(t Target) { t.CopyChunkToRDRAM(addr) })
	}},
	"copydepth": {1, 1, func(a *args) func(Target) error {
		addr := a.u32(0)
		return run(func(t Target) { t.CopyDepthBuffer(addr) })
	}},
	"copydepthchunk": {1, 1, func(a *args) func(Target) error {
		addr := a.u32(0)
		return run(func(t Target) { t.CopyDepthBufferChunk(addr) })
	}},
	"copyfromrdram": {1, 2, func(a *args) func(Target) error {
		addr, cfb := a.u32(0), a.flag(1, "cfb")
		return run(func(t Target) { t.CopyFromRDRAM(addr, cfb) })
	}},
	"addaddress": {2, 2, func(a *args) func(Target) error {
		addr, size := a.u32(0), a.u32(1)
		return run(func(t Target) { t.AddAddress(addr, size) })
	}},
	"copyaux": {0, 0, func(a *args) func(Target) error {
		return run(func(t Target) { t.CopyAux() })
	}},
	"removeaux": {0, 0, func(a *args) func(Target) error {
		return run(func(t Target) { t.RemoveAux() })
	}},
	"depthcopy": {0, 0, func(a *args) func(Target) error {
		return run(func(t Target) { t.DepthBufferCopyRdram() })
	}},
	"vsync": {0, 0, func(a *args) func(Target) error {
		return run(func(t Target) { t.UpdateScreen() })
	}},
	"snapshot": {1, 1, func(a *args) func(Target) error {
		name := a.words[0]
		return func(t Target) error { return t.Snapshot(name) }
	}},
	"rdramsnapshot": {5, 5, func(a *args) func(Target) error {
		name := a.words[0]
		addr, width, height, size := a.u32(1), a.u32(2), a.u32(3), a.size(4)
		return func(t Target) error { return t.SnapshotRDRAM(name, addr, width, height, size) }
	}},
	"dump": {0, 0, func(a *args) func(Target) error {
		return func(t Target) error { return t.Dump() }
	}},
	"expect16": {2, 2, func(a *args) func(Target) error {
		addr, want := a.u32(0), a.u32(1)
		return func(t Target) error {
			if got := t.RDRAM().Half(addr); uint32(got) != want {
				return fmt.Errorf("%w at %08x: got %04x, want %04x", ErrMismatch, addr, got, want)
			}
			return nil
		}
	}},
	"expect32": {2, 2, func(a *args) func(Target) error {
		addr, want := a.u32(0), a.u32(1)
		return func(t Target) error {
			if got := t.RDRAM().Word(addr); got != want {
				return fmt.Errorf("%w at %08x: got %08x, want %08x", ErrMismatch, addr, got, want)
			}
			return nil
		}
	}},
	"expectscreen": {3, 3, func(a *args) func(Target) error {
		x, y, want := int(a.i32(0)), int(a.i32(1)), a.u32(2)
		return func(t Target) error {
			img, err := t.Screen()
			if err != nil {
				return err
			}
			c := img.NRGBAAt(x, y)
			got := uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
			if got != want {
				return fmt.Errorf("%w at (%d,%d): got %08x, want %08x", ErrMismatch, x, y, got, want)
			}
			return nil
		}
	}},
	"expectbuffers": {1, 1, func(a *args) func(Target) error {
		want := int(a.u32(0))
		return func(t Target) error {
			if got := len(t.FillBufferInfo(want + 1)); got != want {
				return fmt.Errorf("%w: %d displayable buffers, want %d", ErrMismatch, got, want)
			}
			return nil
		}
	}},
}

func compile(words []string) (func(Target) error, error) {
	name, rest := words[0], words[1:]
	cmd, ok := commands[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, name)
	}
	if len(rest) < cmd.min || len(rest) > cmd.max {
		return nil, fmt.Errorf("%w: %s takes %d to %d, got %d", ErrArgCount, name, cmd.min, cmd.max, len(rest))
	}
	a := &args{words: rest}
	exec := cmd.build(a)
	if a.err != nil {
		return nil, a.err
	}
	return exec, nil
}
