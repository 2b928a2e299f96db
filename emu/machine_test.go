package emu

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"picohdmi/hw/hwdefs"
	"picohdmi/hw/rp2"
	"picohdmi/hw/tmds"
)

func newMachine(t *testing.T, mode hwdefs.DisplayMode) *Machine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Video.Mode = mode
	cfg.Video.Background = 0x102030
	cfg.Watchdog.Enabled = false
	m, err := NewMachine(cfg)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

func wantRGB(t *testing.T, img *image.RGBA, x, y int, rgb uint32) {
	t.Helper()
	want := color.RGBA{R: uint8(rgb >> 16), G: uint8(rgb >> 8), B: uint8(rgb), A: 0xFF}
	if got := img.RGBAAt(x, y); got != want {
		t.Errorf("pixel (%d,%d) = %v, want %v", x, y, got, want)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	want := DefaultConfig()
	want.Video.Mode = hwdefs.EGA640x350x16
	want.Video.Palette = "cga"
	want.Pins.Order = hwdefs.BGR
	want.Pins.Invert = true
	want.Watchdog.Interval = Duration{250 * time.Millisecond}

	if err := SaveConfig(want, path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigCheck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Video.Mode = hwdefs.NumDisplayModes + 3
	cfg.Video.SysClock = 125_000_000
	cfg.Video.Palette = "nope"
	cfg.Pins.Base = 28
	cfg.Watchdog.Interval = Duration{}
	cfg.Check()

	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("checked config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigOrDefault(t *testing.T) {
	got := LoadConfigOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	if diff := cmp.Diff(DefaultConfig(), got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestWatchdog(t *testing.T) {
	t.Run("stalled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var stalls atomic.Int32
		wd := NewWatchdog(time.Millisecond, func() uint64 { return 42 }, func() {
			if stalls.Add(1) == 3 {
				cancel()
			}
		})
		if err := wd.Run(ctx); err != nil {
			t.Fatal(err)
		}
		if got := stalls.Load(); got < 3 {
			t.Errorf("stalls = %d, want at least 3", got)
		}
	})
	t.Run("progressing", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		var ticks atomic.Uint64
		var stalls atomic.Int32
		wd := NewWatchdog(time.Millisecond, func() uint64 { return ticks.Add(1) }, func() { stalls.Add(1) })
		if err := wd.Run(ctx); err != nil {
			t.Fatal(err)
		}
		if got := stalls.Load(); got != 0 {
			t.Errorf("stalls = %d, want 0", got)
		}
	})
}

func TestMachineFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("runs two full frames of emulation")
	}

	m := newMachine(t, hwdefs.VGA320x200x256)
	for i := range 320 * 200 {
		m.VRAM[i] = uint8(i % 200)
	}

	var got []int
	m.OnFrame(func(n int, _ *image.RGBA) { got = append(got, n) })
	if err := m.RunFrames(1); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1}, got); diff != "" {
		t.Errorf("frame hooks mismatch (-want +got):\n%s", diff)
	}

	st := m.Monitor.Stats()
	if st.PairErrors != 0 || st.LineErrors != 0 || st.FrameErrors != 0 {
		t.Errorf("link errors: %+v", st)
	}
	if st.LastLines != hwdefs.VTotal {
		t.Errorf("lines per frame = %d, want %d", st.LastLines, hwdefs.VTotal)
	}

	img := m.Monitor.Frame()
	pal := m.Video.Palette()
	wantRGB(t, img, 0, 0, 0x102030)
	wantRGB(t, img, 320, 460, 0x102030)
	for _, pt := range [][2]int{{0, 40}, {1, 41}, {100, 100}, {639, 439}} {
		x, y := pt[0], pt[1]
		wantRGB(t, img, x, y, pal.Color(m.VRAM[(y-40)/2*320+x/2]))
	}
	diffFrame(t, img, "vga320")
}

func TestMachineTextFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("runs two full frames of emulation")
	}

	m := newMachine(t, hwdefs.Text80x25Color)
	// Solid block in the top-left cell, light red on blue.
	m.Text[0], m.Text[1] = 0xDB, 0x1C
	m.Video.SetCursorShape(32, 0)

	if err := m.RunFrames(1); err != nil {
		t.Fatal(err)
	}
	img := m.Monitor.Frame()
	vga := tmds.VGA()
	wantRGB(t, img, 3, 45, vga[0xC])
	wantRGB(t, img, 12, 45, vga[0x0])
	diffFrame(t, img, "text80")
}

func TestMachineReinit(t *testing.T) {
	if testing.Short() {
		t.Skip("runs several frames of emulation")
	}

	m := newMachine(t, hwdefs.CGA320x200x4)
	if err := m.RunFrames(1); err != nil {
		t.Fatal(err)
	}

	// Pull the rug: with every channel stopped the scanline interrupt never
	// fires again.
	m.Chip.DMA.Abort(1<<rp2.NumDMAChannels - 1)
	for m.Chip.Bus.Read32(rp2.DMAChanAbort, false) != 0 {
	}
	ticks := m.Video.Ticks()
	m.Chip.Run(4 * m.CyclesPerLine())
	if got := m.Video.Ticks(); got != ticks {
		t.Fatalf("ticks moved from %d to %d with DMA stopped", ticks, got)
	}

	m.RequestReinit()
	if err := m.RunFrames(2); err != nil {
		t.Fatal(err)
	}
	if got := m.Reinits(); got != 1 {
		t.Errorf("reinits = %d, want 1", got)
	}
	if got := m.Video.Ticks(); got <= ticks {
		t.Errorf("ticks = %d after reinit, want more than %d", got, ticks)
	}
}

func TestRunCancel(t *testing.T) {
	m := newMachine(t, hwdefs.Text40x25Mono)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, 0) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if m.Chip.Cycles == 0 {
		t.Error("no cycles executed")
	}
}

func TestStop(t *testing.T) {
	m := newMachine(t, hwdefs.Text40x25Mono)
	m.Stop()
	if err := m.RunFrames(100); err != nil {
		t.Fatal(err)
	}
	if m.Chip.Cycles != 0 {
		t.Errorf("ran %d cycles after Stop", m.Chip.Cycles)
	}
}

func TestLoadTestPattern(t *testing.T) {
	m := newMachine(t, hwdefs.Text80x25Color)
	m.LoadTestPattern()

	tests := []struct {
		cell     int
		ch, attr uint8
	}{
		{0, 0x00, 0x00},
		{1, 0x01, 0x01},
		{17, 0x11, 0x11},
		{130, 0x82, 0x02},
		{255, 0xFF, 0x7F},
	}
	for _, tt := range tests {
		if got := m.Text[2*tt.cell]; got != tt.ch {
			t.Errorf("cell %d: char = %#02x, want %#02x", tt.cell, got, tt.ch)
		}
		if got := m.Text[2*tt.cell+1]; got != tt.attr {
			t.Errorf("cell %d: attr = %#02x, want %#02x", tt.cell, got, tt.attr)
		}
	}
	if got := m.VRAM[321]; got != 2 {
		t.Errorf("VRAM[321] = %d, want 2", got)
	}
}
