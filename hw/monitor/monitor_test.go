package monitor

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"

	"picohdmi/hw/hwdefs"
	"picohdmi/hw/modes"
	"picohdmi/hw/tmds"
)

var testConfig = Config{DataPin: 6, ClockPin: 12}

// feed drives the pins with serialized word w, one unit per sample, the way
// the serializer program shifts it out.
func feed(m *Monitor, w uint64) {
	for k := range 10 {
		shift := 6 * k
		clk := uint32(2)
		if k >= 5 {
			shift += 2
			clk = 1
		}
		u := uint32(w>>shift) & 0x3F
		m.Sample(u<<m.cfg.DataPin | clk<<m.cfg.ClockPin)
	}
}

func newPalette(t *testing.T, l tmds.PinLayout) *tmds.Palette {
	t.Helper()
	p := tmds.NewPalette(make([]byte, tmds.TableSize), l)
	p.LoadPreset(tmds.VGA())
	p.SetBackground(0x102030)
	return p
}

func feedFrame(m *Monitor, p *tmds.Palette, mode hwdefs.DisplayMode, src *modes.Source) {
	line := make([]byte, hwdefs.HTotal)
	for y := range hwdefs.VTotal {
		modes.Render(line, mode, src, y)
		for _, idx := range line {
			w, _ := p.Words(idx)
			feed(m, w)
		}
	}
}

func testSource() *modes.Source {
	gfx := make([]byte, 320*200)
	for i := range gfx {
		gfx[i] = uint8(i*7 + i/320)
	}
	return &modes.Source{Graphics: gfx}
}

func TestFrameAssembly(t *testing.T) {
	for _, l := range []tmds.PinLayout{
		{},
		{Order: hwdefs.BGR},
		{Invert: true},
	} {
		m := New(Config{DataPin: 6, ClockPin: 12, Layout: l})
		p := newPalette(t, l)
		src := testSource()

		var got int
		m.OnFrame(func(*image.RGBA) { got++ })
		feedFrame(m, p, hwdefs.VGA320x200x256, src)
		feedFrame(m, p, hwdefs.VGA320x200x256, src)

		st := m.Stats()
		if st.Frames != 1 || got != 1 {
			t.Fatalf("%+v: %d frames (%d callbacks), want 1", l, st.Frames, got)
		}
		if st.LineErrors != 0 || st.FrameErrors != 0 || st.PairErrors != 0 {
			t.Errorf("%+v: errors in %+v", l, st)
		}
		if st.LastLines != hwdefs.VTotal {
			t.Errorf("%+v: %d lines per frame, want %d", l, st.LastLines, hwdefs.VTotal)
		}
		if st.VSyncs != 2 || st.HSyncs != 2*hwdefs.VTotal {
			t.Errorf("%+v: %d vsyncs %d hsyncs", l, st.VSyncs, st.HSyncs)
		}

		img := m.Frame()
		check := func(x, y int, rgb uint32) {
			t.Helper()
			want := color.RGBA{R: uint8(rgb >> 16), G: uint8(rgb >> 8), B: uint8(rgb), A: 0xFF}
			if got := img.RGBAAt(x, y); got != want {
				t.Errorf("%+v: pixel (%d,%d) = %v, want %v", l, x, y, got, want)
			}
		}
		check(0, 0, 0x102030)
		check(639, 39, 0x102030)
		check(10, 440, 0x102030)
		for _, pt := range [][2]int{{0, 40}, {1, 41}, {2, 42}, {639, 439}, {321, 250}} {
			x, y := pt[0], pt[1]
			idx := src.Graphics[(y-40)/2*320+x/2]
			if idx >= hwdefs.CtrlBase {
				idx = 0
			}
			check(x, y, p.Color(idx))
		}
	}
}

func TestResyncMidPixel(t *testing.T) {
	m := New(testConfig)
	p := newPalette(t, tmds.PinLayout{})
	idle, _ := p.Words(hwdefs.CtrlIdle)

	// Half a pixel of garbage before the link comes up.
	for range 4 {
		m.Sample(0x3F<<6 | 1<<12)
	}
	feed(m, idle)
	feed(m, idle)
	if st := m.Stats(); st.Pixels != 2 || st.PairErrors != 0 {
		t.Errorf("got %+v, want 2 clean pixels", st)
	}
}

func TestPairErrors(t *testing.T) {
	m := New(testConfig)
	// Both pins of every pair high.
	for k := range 10 {
		clk := uint32(2)
		if k >= 5 {
			clk = 1
		}
		m.Sample(0x3F<<6 | clk<<12)
	}
	if got := m.Stats().PairErrors; got != 10 {
		t.Errorf("pair errors = %d, want 10", got)
	}
}

func TestSyncPositions(t *testing.T) {
	m := New(testConfig)
	p := newPalette(t, tmds.PinLayout{})
	line := make([]byte, hwdefs.HTotal)

	var ys []int
	for _, y := range []int{488, 489, 490, 491, 492} {
		modes.RenderBlank(line, y)
		for i, idx := range line {
			w, _ := p.Words(idx)
			feed(m, w)
			if i == hwdefs.HActiveStart-1 && m.synced {
				_, my := m.Position()
				ys = append(ys, my)
			}
		}
	}
	if diff := cmp.Diff([]int{490, 491, 492}, ys); diff != "" {
		t.Errorf("line numbers mismatch (-want +got):\n%s", diff)
	}
	if x, _ := m.Position(); x != hwdefs.HActive {
		t.Errorf("x at end of line = %d, want %d", x, hwdefs.HActive)
	}
}
