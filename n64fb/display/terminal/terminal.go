// Package terminal presents the emulated screen in a terminal with tcell,
// two screen rows per character cell using upper half blocks.
package terminal

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/image/draw"

	"github.com/valerio/go-n64fb/n64fb/display"
	"github.com/valerio/go-n64fb/n64fb/gpu"
)

var _ display.Window = (*Window)(nil)

const statusRows = 1

// Window renders every swapped frame to a tcell screen.
type Window struct {
	display.Base
	gpu     gpu.Context
	screen  tcell.Screen
	running bool
	status  string
}

// New opens the terminal. Close must be called to restore it.
func New(ctx gpu.Context, width, height uint32) (*Window, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %v", err)
	}
	return NewWithScreen(ctx, width, height, screen)
}

// NewWithScreen uses an existing screen, e.g. a tcell simulation screen.
func NewWithScreen(ctx gpu.Context, width, height uint32, screen tcell.Screen) (*Window, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %v", err)
	}
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	screen.Clear()
	slog.Info("Terminal window initialized", "width", width, "height", height)
	return &Window{
		Base:    display.NewBase(width, height),
		gpu:     ctx,
		screen:  screen,
		running: true,
	}, nil
}

// Running reports whether the user has not asked to quit.
func (w *Window) Running() bool {
	w.pollEvents()
	return w.running
}

// SetStatus sets the text of the bottom status line.
func (w *Window) SetStatus(s string) {
	w.status = s
}

func (w *Window) SwapBuffers() {
	w.Base.SwapBuffers()
	w.pollEvents()
	if !w.running {
		return
	}

	img, err := gpu.ReadImage(w.gpu, gpu.DefaultFramebuffer, image.Rect(0, 0, int(w.ScreenWidth()), int(w.ScreenHeight())))
	if err != nil {
		slog.Warn("Failed to read screen", "error", err)
		return
	}
	w.render(img)
	w.screen.Show()
}

func (w *Window) pollEvents() {
	for w.screen.HasPendingEvent() {
		switch ev := w.screen.PollEvent().(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
				w.running = false
			}
		case *tcell.EventResize:
			w.screen.Sync()
		}
	}
}

func (w *Window) render(img *image.NRGBA) {
	termWidth, termHeight := w.screen.Size()
	rows := termHeight - statusRows
	if termWidth <= 0 || rows <= 0 {
		return
	}
	w.screen.Clear()

	// fit the frame into termWidth x 2*rows dots keeping the aspect ratio
	b := img.Bounds()
	dw, dh := termWidth, b.Dy()*termWidth/max(b.Dx(), 1)
	if dh > rows*2 {
		dh = rows * 2
		dw = b.Dx() * dh / max(b.Dy(), 1)
	}
	if dw <= 0 || dh <= 0 {
		return
	}
	small := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, b, draw.Src, nil)

	for y := 0; y < dh; y += 2 {
		for x := 0; x < dw; x++ {
			top := small.NRGBAAt(x, y)
			bottom := top
			if y+1 < dh {
				bottom = small.NRGBAAt(x, y+1)
			}
			style := tcell.StyleDefault.
				Foreground(tcell.NewRGBColor(int32(top.R), int32(top.G), int32(top.B))).
				Background(tcell.NewRGBColor(int32(bottom.R), int32(bottom.G), int32(bottom.B)))
			w.screen.SetContent(x, y/2, '▀', nil, style)
		}
	}

	status := fmt.Sprintf("frame %d  %s", w.BuffersSwapCount(), w.status)
	style := tcell.StyleDefault.Foreground(tcell.ColorSilver)
	for i, ch := range status {
		if i >= termWidth {
			break
		}
		w.screen.SetContent(i, termHeight-1, ch, nil, style)
	}
}

// Close restores the terminal.
func (w *Window) Close() {
	if w.screen != nil {
		slog.Info("Cleaning up terminal window")
		w.screen.Fini()
		w.screen = nil
	}
}
