package hwdefs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDisplayModeText(t *testing.T) {
	for _, name := range DisplayModeNames() {
		m, err := ParseDisplayMode(name)
		if err != nil {
			t.Fatal(err)
		}
		buf, err := m.MarshalText()
		if err != nil || string(buf) != name {
			t.Errorf("%s: MarshalText = %q, %v", name, buf, err)
		}
	}
	if m, err := ParseDisplayMode("VGA320"); err != nil || m != VGA320x200x256 {
		t.Errorf("case insensitive parse = %v, %v", m, err)
	}
	if _, err := ParseDisplayMode("hercules"); err == nil {
		t.Error("unknown mode: want error")
	}
	if _, err := NumDisplayModes.MarshalText(); err == nil {
		t.Error("invalid mode: want error")
	}
}

func TestTextModes(t *testing.T) {
	var got []DisplayMode
	for m := range NumDisplayModes {
		if m.IsText() {
			got = append(got, m)
		}
	}
	want := []DisplayMode{Text80x25Color, Text80x25Mono, Text40x25Color, Text40x25Mono}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("text modes mismatch (-want +got):\n%s", diff)
	}
}

func TestChannelOrder(t *testing.T) {
	var o ChannelOrder
	if err := o.UnmarshalText([]byte("BGR")); err != nil || o != BGR {
		t.Errorf("UnmarshalText(BGR) = %v, %v", o, err)
	}
	if err := o.UnmarshalText([]byte("grb")); err == nil {
		t.Error("unknown order: want error")
	}
}

func TestTiming(t *testing.T) {
	if HTotal != 800 || VTotal != 525 || HActiveStart != 160 {
		t.Errorf("timing %dx%d, active start %d", HTotal, VTotal, HActiveStart)
	}
	if CtrlVSync != 254 || BackgroundIndex != 250 {
		t.Errorf("reserved indices: vsync %d background %d", CtrlVSync, BackgroundIndex)
	}
}
