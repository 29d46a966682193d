// Package headless is a window without a screen, for tests, batch replays
// and CI. Presented frames can be captured and saved as snapshots.
package headless

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/valerio/go-n64fb/n64fb/debug"
	"github.com/valerio/go-n64fb/n64fb/display"
	"github.com/valerio/go-n64fb/n64fb/gpu"
)

var _ display.Window = (*Window)(nil)

// SnapshotConfig holds configuration for frame snapshots
type SnapshotConfig struct {
	Enabled   bool
	Interval  int    // Save snapshot every N frames
	Directory string // Directory to save snapshots
	Name      string // Base name for snapshot filenames
	Format    debug.Format
}

// Window counts swaps and optionally snapshots the default framebuffer.
type Window struct {
	display.Base
	gpu      gpu.Context
	snapshot SnapshotConfig
	capture  bool
	last     *image.NRGBA
}

func New(ctx gpu.Context, width, height uint32, snapshot SnapshotConfig) *Window {
	if snapshot.Format == "" {
		snapshot.Format = debug.FormatPNG
	}
	return &Window{
		Base:     display.NewBase(width, height),
		gpu:      ctx,
		snapshot: snapshot,
	}
}

// Capture keeps a copy of every presented frame, readable with LastFrame.
func (w *Window) Capture(enabled bool) {
	w.capture = enabled
}

// LastFrame returns the most recent captured frame, or nil.
func (w *Window) LastFrame() *image.NRGBA {
	return w.last
}

func (w *Window) SwapBuffers() {
	w.Base.SwapBuffers()
	frame := w.BuffersSwapCount()

	wantSnapshot := w.snapshot.Enabled && w.snapshot.Interval > 0 && int(frame)%w.snapshot.Interval == 0
	if !w.capture && !wantSnapshot {
		return
	}

	img, err := gpu.ReadImage(w.gpu, gpu.DefaultFramebuffer, image.Rect(0, 0, int(w.ScreenWidth()), int(w.ScreenHeight())))
	if err != nil {
		slog.Warn("Failed to read screen", "frame", frame, "error", err)
		return
	}
	if w.capture {
		w.last = img
	}
	if wantSnapshot {
		w.saveSnapshot(img, frame)
	}
}

// CreateSnapshotConfig creates a snapshot configuration from CLI parameters
func CreateSnapshotConfig(interval int, directory, tracePath string, format debug.Format) (SnapshotConfig, error) {
	config := SnapshotConfig{
		Enabled:  interval > 0,
		Interval: interval,
		Format:   format,
	}

	if !config.Enabled {
		return config, nil
	}

	if directory == "" {
		tempDir, err := os.MkdirTemp("", "n64fb-snapshots-*")
		if err != nil {
			return config, fmt.Errorf("failed to create snapshot directory: %v", err)
		}
		config.Directory = tempDir
	} else {
		if err := os.MkdirAll(directory, 0755); err != nil {
			return config, fmt.Errorf("failed to create snapshot directory: %v", err)
		}
		config.Directory = directory
	}

	config.Name = filepath.Base(tracePath)
	config.Name = strings.TrimSuffix(config.Name, filepath.Ext(config.Name))

	return config, nil
}

func (w *Window) saveSnapshot(img image.Image, frame uint32) {
	baseName := fmt.Sprintf("%s_frame_%d", w.snapshot.Name, frame)
	if _, err := debug.SaveImageToDir(img, baseName, w.snapshot.Directory, w.snapshot.Format); err != nil {
		slog.Error("Failed to save snapshot", "frame", frame, "error", err)
	}
}
