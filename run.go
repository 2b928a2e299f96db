package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"time"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"

	"picohdmi/emu"
	"picohdmi/emu/log"
	"picohdmi/emu/report"
	"picohdmi/emu/rpc"
	"picohdmi/emu/script"
	"picohdmi/hw/hwdefs"
)

// runMain runs the machine for the requested number of frames, then prints a
// summary of what the monitor received.
func runMain(args Run, cfg emu.Config) {
	if args.Mode != "" {
		mode, err := hwdefs.ParseDisplayMode(args.Mode)
		checkf(err, "invalid display mode")
		cfg.Video.Mode = mode
	}

	m, err := emu.NewMachine(cfg)
	checkf(err, "failed to start machine")
	log.AddContext(m.Video)
	defer log.RemoveContext(m.Video)

	var sc *script.Script
	if args.Script != "" {
		sc = script.New(m)
		defer sc.Close()
		checkf(sc.RunFile(args.Script), "script failed")
	} else {
		m.LoadTestPattern()
	}

	if args.CPUProfile != "" {
		f, err := os.Create(args.CPUProfile)
		checkf(err, "failed to create cpu profile file")
		checkf(pprof.StartCPUProfile(f), "failed to start cpu profile")
		defer func() {
			pprof.StopCPUProfile()
			f.Close()
			fmt.Println("CPU profile written to", args.CPUProfile)
		}()
	}

	if args.StatsView != "" {
		viewer.SetConfiguration(viewer.WithAddr(args.StatsView))
		mgr := statsview.New()
		go mgr.Start()
		defer mgr.Stop()
		fmt.Printf("stats server available at http://%s/debug/statsview\n", args.StatsView)
	}

	if args.Port != 0 {
		server, err := rpc.NewServer(args.Port, m)
		checkf(err, "failed to start rpc server")
		defer server.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	runErr := m.Run(ctx, args.Frames)
	if sc != nil && runErr == nil {
		runErr = sc.Err()
	}
	r := report.New(m, time.Since(start))
	fmt.Println(r.Summary())

	if args.Report != nil {
		err := r.WriteJSON(args.Report)
		args.Report.Close()
		checkf(err, "failed to write report")
	}
	if args.PNG != "" {
		img := m.Monitor.Frame()
		if img == nil {
			fatalf("no frame received, nothing to save")
		}
		checkf(writeImage(args.PNG, img, "png"), "failed to save frame")
	}
	checkf(runErr, "emulation failed")
}
