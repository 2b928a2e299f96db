package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	lua "github.com/yuin/gopher-lua"

	"picohdmi/emu"
	"picohdmi/hw/hwdefs"
)

func newScript(t *testing.T) (*emu.Machine, *Script) {
	t.Helper()
	cfg := emu.DefaultConfig()
	cfg.Watchdog.Enabled = false
	m, err := emu.NewMachine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s := New(m)
	t.Cleanup(s.Close)
	return m, s
}

func TestMemory(t *testing.T) {
	m, s := newScript(t)
	err := s.RunString(`
		poke(0, 0x12)
		poke(1, peek(0) + 1)
		fill(10, 4, 0xAA)
		tpoke(0, 65)
		tpoke(1, tpeek(0) - 58)
	`)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x12, 0x13}, m.VRAM[:2]); diff != "" {
		t.Errorf("vram mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{0, 0xAA, 0xAA, 0xAA, 0xAA, 0}, m.VRAM[9:15]); diff != "" {
		t.Errorf("fill mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{'A', 7}, m.Text[:2]); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintAt(t *testing.T) {
	tests := []struct {
		mode string
		off  int
	}{
		{"text80", (2*80 + 3) * 2},
		{"text40", (2*40 + 3) * 2},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			m, s := newScript(t)
			if err := s.RunString(`set_mode("` + tt.mode + `") print_at(3, 2, "Hi", 0x1F)`); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]byte{'H', 0x1F, 'i', 0x1F}, m.Text[tt.off:tt.off+4]); diff != "" {
				t.Errorf("text mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDriverCalls(t *testing.T) {
	m, s := newScript(t)
	err := s.RunString(`
		set_mode("ega640x350")
		set_palette(3, 0x123456)
		set_background(0x000080)
		set_blinking(false)
		status = inb(0x3DA)
		line = scanline()
	`)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Video.Mode(); got != hwdefs.EGA640x350x16 {
		t.Errorf("mode = %s, want %s", got, hwdefs.EGA640x350x16)
	}
	if got := m.Video.Palette().Color(3); got != 0x123456 {
		t.Errorf("palette[3] = %06x, want 123456", got)
	}
	if got := m.Video.Palette().Color(hwdefs.BackgroundIndex); got != 0x000080 {
		t.Errorf("background = %06x, want 000080", got)
	}
	if got := int(s.L.GetGlobal("status").(lua.LNumber)); got != int(m.Video.Status()) {
		t.Errorf("inb(0x3DA) = %02x, want %02x", got, m.Video.Status())
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`set_mode("hercules")`, "unknown display mode"},
		{`poke(0x20000, 1)`, "out of range"},
		{`set_palette(251, 0)`, "out of range"},
		{`inb(-1)`, "out of range"},
		{`undefined_function()`, "non-function"},
	}
	for _, tt := range tests {
		_, s := newScript(t)
		err := s.RunString(tt.src)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %v, want it to contain %q", tt.src, err, tt.want)
		}
	}
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lua")
	if err := os.WriteFile(path, []byte(`set_offset(8, 1)`), 0644); err != nil {
		t.Fatal(err)
	}
	_, s := newScript(t)
	if err := s.RunFile(path); err != nil {
		t.Fatal(err)
	}
	if err := s.RunFile(path + ".missing"); err == nil {
		t.Error("missing file: want error")
	}
}

func TestOnFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("runs full frames of emulation")
	}

	m, s := newScript(t)
	err := s.RunString(`
		function on_frame(n)
			poke(n, n)
		end
		run_frames(2)
	`)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0, 1, 2}, m.VRAM[:3]); diff != "" {
		t.Errorf("vram mismatch (-want +got):\n%s", diff)
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v", s.Err())
	}
}

func TestOnFrameError(t *testing.T) {
	if testing.Short() {
		t.Skip("runs full frames of emulation")
	}

	_, s := newScript(t)
	err := s.RunString(`
		function on_frame(n) error("boom") end
		run_frames(3)
	`)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("error = %v, want boom", err)
	}
	if s.Err() == nil {
		t.Error("Err() = nil, want callback error")
	}
}
