package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/valerio/go-n64fb/n64fb"
	"github.com/valerio/go-n64fb/n64fb/config"
	"github.com/valerio/go-n64fb/n64fb/debug"
	"github.com/valerio/go-n64fb/n64fb/display"
	"github.com/valerio/go-n64fb/n64fb/display/headless"
	"github.com/valerio/go-n64fb/n64fb/display/terminal"
	"github.com/valerio/go-n64fb/n64fb/gpu/soft"
	"github.com/valerio/go-n64fb/n64fb/rdram"
	"github.com/valerio/go-n64fb/n64fb/trace"
)

func main() {
	app := cli.NewApp()
	app.Name = "n64fb"
	app.Description = "Replays RDP framebuffer traces through the framebuffer emulation core"
	app.Usage = "n64fb [options] <trace file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "trace",
			Usage: "Path to the trace script",
		},
		cli.StringFlag{
			Name:  "rdram",
			Usage: "Big-endian RDRAM dump loaded before the trace runs",
		},
		cli.StringFlag{
			Name:  "rdram-out",
			Usage: "Write RDRAM to this file after the trace completes",
		},
		cli.IntFlag{
			Name:  "rdram-size",
			Usage: "RDRAM size in bytes",
			Value: n64fb.DefaultRDRAMSize,
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "JSON config file",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run without a terminal display",
		},
		cli.IntFlag{
			Name:  "loops",
			Usage: "Number of times to replay the trace (0 = until quit in the terminal)",
			Value: 1,
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn or error",
			Value: "info",
		},
		cli.IntFlag{
			Name:  "snapshot-interval",
			Usage: "Save frame snapshots every N frames in headless mode (0 = disabled)",
		},
		cli.StringFlag{
			Name:  "snapshot-dir",
			Usage: "Directory for snapshots and dumps (default: temp directory)",
		},
		cli.StringFlag{
			Name:  "snapshot-format",
			Usage: "Image format for snapshots: png, webp or tga",
			Value: "png",
		},
		cli.BoolFlag{
			Name:  "no-fb-emulation",
			Usage: "Disable framebuffer emulation",
		},
		cli.IntFlag{
			Name:  "native-res-factor",
			Usage: "Render at N times the native resolution (0 = window size)",
		},
		cli.IntFlag{
			Name:  "width",
			Usage: "Window width",
		},
		cli.IntFlag{
			Name:  "height",
			Usage: "Window height",
		},
		cli.IntFlag{
			Name:  "msaa",
			Usage: "Multisampling sample count",
		},
		cli.BoolFlag{
			Name:  "fxaa",
			Usage: "Enable the FXAA post-processing pass",
		},
		cli.StringFlag{
			Name:  "dithering",
			Usage: "Export dithering for 16-bit buffers: none or bayer",
		},
		cli.StringSliceFlag{
			Name:  "hack",
			Usage: "Enable a per-game hack (repeatable)",
		},
	}
	app.Action = runTrace

	err := app.Run(os.Args)
	if err != nil {
		slog.Error("Error running trace", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	err := cfg.Resolve(config.Flags{
		DisableEmulation: c.Bool("no-fb-emulation"),
		NativeResFactor:  c.Int("native-res-factor"),
		ScreenWidth:      c.Int("width"),
		ScreenHeight:     c.Int("height"),
		Multisampling:    c.Int("msaa"),
		FXAA:             c.Bool("fxaa"),
		Dithering:        c.String("dithering"),
		Hacks:            c.StringSlice("hack"),
	})
	return cfg, err
}

func loadTrace(path string) (*trace.Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %v", err)
	}
	defer f.Close()
	return trace.Parse(f)
}

func loadRDRAM(path string, size int) (*rdram.Memory, error) {
	mem := rdram.New(size)
	if path == "" {
		return mem, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rdram dump: %v", err)
	}
	defer f.Close()
	n, err := mem.Load(f)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded RDRAM dump", "path", path, "bytes", n)
	return mem, nil
}

func saveRDRAM(path string, mem *rdram.Memory) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create rdram dump: %v", err)
	}
	if err := mem.Dump(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runTrace(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	tracePath := c.String("trace")
	if tracePath == "" {
		if c.NArg() > 0 {
			tracePath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no trace path provided")
		}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	script, err := loadTrace(tracePath)
	if err != nil {
		return err
	}
	mem, err := loadRDRAM(c.String("rdram"), c.Int("rdram-size"))
	if err != nil {
		return err
	}
	format, err := debug.ParseFormat(c.String("snapshot-format"))
	if err != nil {
		return err
	}

	width, height := uint32(cfg.Screen.Width), uint32(cfg.Screen.Height)
	gpu := soft.New(int(width), int(height))

	var window display.Window
	var term *terminal.Window
	snapshotDir := c.String("snapshot-dir")
	if c.Bool("headless") {
		snapshots, err := headless.CreateSnapshotConfig(c.Int("snapshot-interval"), snapshotDir, tracePath, format)
		if err != nil {
			return err
		}
		if snapshots.Enabled {
			snapshotDir = snapshots.Directory
		}
		window = headless.New(gpu, width, height, snapshots)
	} else {
		term, err = terminal.New(gpu, width, height)
		if err != nil {
			return err
		}
		defer term.Close()
		window = term
	}

	emu, err := n64fb.New(n64fb.Options{
		GPU:            gpu,
		Window:         window,
		Config:         cfg,
		RDRAM:          mem,
		SnapshotDir:    snapshotDir,
		SnapshotFormat: format,
	})
	if err != nil {
		return err
	}
	defer emu.Close()

	loops := c.Int("loops")
	if loops <= 0 && term == nil {
		return errors.New("headless mode requires --loops with a positive value")
	}
	slog.Info("Replaying trace", "path", tracePath, "commands", script.Len(), "loops", loops, "headless", term == nil)

	start := time.Now()
	for i := 0; loops <= 0 || i < loops; i++ {
		if term != nil {
			if !term.Running() {
				break
			}
			term.SetStatus(fmt.Sprintf("%s  loop %d  frames %d  [q] quit", tracePath, i+1, window.BuffersSwapCount()))
		}
		if err := script.Run(emu); err != nil {
			return err
		}
	}
	slog.Info("Trace completed",
		"frames", window.BuffersSwapCount(),
		"buffers", emu.FrameBuffers().Len(),
		"elapsed", time.Since(start).String())

	if term != nil && loops > 0 {
		term.SetStatus(tracePath + "  done  [q] quit")
		for term.Running() {
			time.Sleep(50 * time.Millisecond)
		}
	}

	if path := c.String("rdram-out"); path != "" {
		if err := saveRDRAM(path, mem); err != nil {
			return err
		}
		slog.Info("Wrote RDRAM dump", "path", path)
	}
	return nil
}
