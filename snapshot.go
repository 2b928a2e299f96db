package main

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/image/bmp"
	"golang.org/x/sync/errgroup"

	"picohdmi/emu"
	"picohdmi/emu/script"
	"picohdmi/hw/hwdefs"
)

// snapshotMain captures one frame per requested mode. Each mode gets its own
// machine so they run in parallel.
func snapshotMain(args Snapshot, cfg emu.Config) {
	var todo []hwdefs.DisplayMode
	switch {
	case args.All:
		for m := range hwdefs.NumDisplayModes {
			todo = append(todo, m)
		}
	case len(args.Modes) > 0:
		for _, name := range args.Modes {
			m, err := hwdefs.ParseDisplayMode(name)
			checkf(err, "invalid display mode")
			todo = append(todo, m)
		}
	default:
		todo = append(todo, cfg.Video.Mode)
	}
	checkf(os.MkdirAll(args.Out, emu.DefaultFileMode), "failed to create output directory")

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, mode := range todo {
		g.Go(func() error {
			path := filepath.Join(args.Out, fmt.Sprintf("%s.%s", mode, args.Format))
			if err := snapshot(cfg, mode, args.Script, path, args.Format); err != nil {
				return fmt.Errorf("%s: %w", mode, err)
			}
			fmt.Println(path)
			return nil
		})
	}
	checkf(g.Wait(), "snapshot failed")
}

func snapshot(cfg emu.Config, mode hwdefs.DisplayMode, scriptPath, path, format string) error {
	cfg.Video.Mode = mode
	cfg.Watchdog.Enabled = false
	m, err := emu.NewMachine(cfg)
	if err != nil {
		return err
	}

	if scriptPath != "" {
		sc := script.New(m)
		defer sc.Close()
		if err := sc.RunFile(scriptPath); err != nil {
			return err
		}
	} else {
		m.LoadTestPattern()
	}

	if err := m.RunFrames(1); err != nil {
		return err
	}
	return writeImage(path, m.Monitor.Frame(), format)
}

func writeImage(path string, img image.Image, format string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	switch format {
	case "bmp":
		err = bmp.Encode(w, img)
	default:
		err = png.Encode(w, img)
	}
	if err != nil {
		return err
	}
	return w.Flush()
}
