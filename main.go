package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"picohdmi/emu"
	"picohdmi/hw/hwdefs"
	"picohdmi/hw/modes"
)

func main() {
	cli := parseArgs(os.Args[1:])

	switch cli.mode {
	case runMode:
		runMain(cli.Run, loadConfig(cli.Config))
	case snapshotMode:
		snapshotMain(cli.Snapshot, loadConfig(cli.Config))
	case modesMode:
		listModes()
	case saveConfigMode:
		path := cli.Config
		if path == "" {
			path = emu.DefaultConfigPath()
		}
		checkf(emu.SaveConfig(loadConfig(cli.Config), path), "failed to save configuration")
		fmt.Println("configuration written to", path)
	case versionMode:
		printVersion()
	}
}

// loadConfig loads the configuration at path. An empty path selects the
// default location, which may not exist yet.
func loadConfig(path string) emu.Config {
	if path == "" {
		return emu.LoadConfigOrDefault(emu.DefaultConfigPath())
	}
	cfg, err := emu.LoadConfig(path)
	checkf(err, "failed to load configuration")
	return cfg
}

func listModes() {
	for i, name := range hwdefs.DisplayModeNames() {
		m := hwdefs.DisplayMode(i)
		w, h := modes.Resolution(m)
		unit := "pixels"
		if m.IsText() {
			unit = "cells"
		}
		fmt.Printf("%-20s %4dx%-4d %s\n", name, w, h, unit)
	}
}

func printVersion() {
	version := "(devel)"
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		version = bi.Main.Version
	}
	fmt.Println("picohdmi", version)
}
