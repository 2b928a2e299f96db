package hdmi

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"picohdmi/hw/hwdefs"
	"picohdmi/hw/hwio"
	"picohdmi/hw/modes"
	"picohdmi/hw/rp2"
	"picohdmi/hw/tmds"
)

const cyclesPerLine = hwdefs.HTotal * hwdefs.BitsPerWord

func newDriver(t *testing.T) (*rp2.Chip, *Driver) {
	t.Helper()
	chip := rp2.NewChip(hwdefs.BitClock)
	d := New(chip, DefaultConfig())
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return chip, d
}

func wantNoAbort(t *testing.T, chip *rp2.Chip) {
	t.Helper()
	if got := chip.Bus.Read32(rp2.DMAChanAbort, false); got != 0 {
		t.Errorf("CHAN_ABORT = %x, want 0", got)
	}
}

func TestInit(t *testing.T) {
	chip, d := newDriver(t)
	wantNoAbort(t, chip)

	if d.paletteBase%tmds.TableSize != 0 {
		t.Errorf("palette base %08x not aligned", d.paletteBase)
	}
	if got := chip.PIO[0].SM[d.smConv].X(); got != d.paletteBase>>12 {
		t.Errorf("converter X = %x, want %x", got, d.paletteBase>>12)
	}
	for _, sm := range []int{d.smVideo, d.smConv} {
		if !chip.PIO[0].SM[sm].Enabled() {
			t.Errorf("state machine %d not enabled", sm)
		}
	}
	if !chip.NVIC.Enabled(rp2.IRQDMA0) || chip.NVIC.Handler(rp2.IRQDMA0) == nil {
		t.Error("scanline interrupt not installed")
	}
	if got := chip.Bus.Read32(rp2.DMAInte0, false); got != 1<<d.chCtrl {
		t.Errorf("INTE0 = %x, want %x", got, 1<<d.chCtrl)
	}
}

func TestInitExhaustion(t *testing.T) {
	chip := rp2.NewChip(hwdefs.BitClock)
	for range rp2.NumStateMachines - 1 {
		chip.PIO[0].ClaimUnusedSM()
	}
	if err := New(chip, DefaultConfig()).Init(); !errors.Is(err, rp2.ErrNoFreeStateMachine) {
		t.Errorf("got %v, want ErrNoFreeStateMachine", err)
	}

	chip = rp2.NewChip(hwdefs.BitClock)
	for range rp2.NumDMAChannels - 3 {
		chip.DMA.ClaimUnused()
	}
	if err := New(chip, DefaultConfig()).Init(); !errors.Is(err, rp2.ErrNoFreeChannel) {
		t.Errorf("got %v, want ErrNoFreeChannel", err)
	}

	chip = rp2.NewChip(hwdefs.BitClock)
	chip.PIO[0].AddProgram(&rp2.Program{Name: "filler", Instructions: make([]uint16, 25), Origin: 0})
	if err := New(chip, DefaultConfig()).Init(); !errors.Is(err, rp2.ErrNoProgramSpace) {
		t.Errorf("got %v, want ErrNoProgramSpace", err)
	}
}

func TestScanlineProgress(t *testing.T) {
	chip, d := newDriver(t)
	chip.Run(5 * cyclesPerLine)

	ticks := d.Ticks()
	if ticks < 4 || ticks > 6 {
		t.Errorf("%d scanline interrupts in 5 lines", ticks)
	}
	if got := d.Scanline(); got != int(ticks)%hwdefs.VTotal {
		t.Errorf("scanline = %d after %d ticks", got, ticks)
	}
	if sm := &chip.PIO[0].SM[d.smVideo]; sm.Executed < 4*cyclesPerLine {
		t.Errorf("serializer executed %d instructions, want >= %d", sm.Executed, 4*cyclesPerLine)
	}
}

func TestReinitMidFrame(t *testing.T) {
	chip, d := newDriver(t)
	chip.Run(2*cyclesPerLine + 1234)

	for range 3 {
		if err := d.Reinit(); err != nil {
			t.Fatalf("Reinit: %v", err)
		}
		wantNoAbort(t, chip)
	}
	if !chip.PIO[0].CanAddProgram(&rp2.Program{Instructions: make([]uint16, 18), Origin: -1}) {
		t.Error("reinit leaked instruction memory")
	}

	before := d.Ticks()
	chip.Run(3 * cyclesPerLine)
	if got := d.Ticks() - before; got < 2 {
		t.Errorf("%d interrupts after reinit, stream did not resume", got)
	}
}

func TestReservedPaletteSlots(t *testing.T) {
	_, d := newDriver(t)
	want := tmds.ControlSymbols(d.cfg.Layout)
	for i := hwdefs.CtrlBase; i < 256; i++ {
		d.SetPalette(uint8(i), 0xFFFFFF)
	}
	for i, w := range want {
		got, _ := d.Palette().Words(uint8(hwdefs.CtrlBase + i))
		if got != w {
			t.Errorf("slot %d = %016x, want %016x", hwdefs.CtrlBase+i, got, w)
		}
	}
}

// stepLine runs the scanline handler as if the line before line had just
// been handed to the data channel.
func stepLine(d *Driver, line int) {
	d.scanline = line - 1
	if line == 0 {
		d.scanline = hwdefs.LastLine
	}
	d.handleScanline()
}

func TestLineDoubling(t *testing.T) {
	tests := []struct {
		mode  hwdefs.DisplayMode
		line  int
		reuse bool
	}{
		{hwdefs.EGA320x200x16, 40, false},
		{hwdefs.EGA320x200x16, 41, true},
		{hwdefs.CGA320x200x4, 491, true},
		{hwdefs.Text80x25Color, 41, false},
		{hwdefs.VGA640x480x16, 1, false},
		{hwdefs.EGA640x350x16, 101, false},
	}
	_, d := newDriver(t)
	for _, tt := range tests {
		d.SetMode(tt.mode)
		idx := d.bufIdx
		stepLine(d, tt.line)
		if reused := d.bufIdx == idx; reused != tt.reuse {
			t.Errorf("%v line %d: reuse = %t, want %t", tt.mode, tt.line, reused, tt.reuse)
		}
		ctrl := d.chip.Bus.Read32(rp2.ChannelAddr(d.chCtrl, rp2.ChReadAddr), false)
		if want := d.lineAddrs + 4*uint32(d.bufIdx); ctrl != want {
			t.Errorf("%v line %d: control READ_ADDR = %08x, want %08x", tt.mode, tt.line, ctrl, want)
		}
	}
}

func TestStatusRegister(t *testing.T) {
	tests := []struct {
		line int
		want uint8
	}{
		{0, 0},
		{1, statusOdd},
		{489, statusOdd},
		{490, statusRetrace},
		{491, statusRetrace | statusOdd},
		{492, 0},
		{524, 0},
	}
	_, d := newDriver(t)
	ports := hwio.NewTable("io")
	d.MapPorts(ports)
	for _, tt := range tests {
		stepLine(d, tt.line)
		if got := d.Status(); got != tt.want {
			t.Errorf("line %d: status = %02x, want %02x", tt.line, got, tt.want)
		}
		if got := ports.Read8(0x3DA); got != tt.want {
			t.Errorf("line %d: port 3DA = %02x, want %02x", tt.line, got, tt.want)
		}
	}
}

func TestRenderedLine(t *testing.T) {
	_, d := newDriver(t)
	text := make([]byte, 80*25*2)
	for i := 0; i < len(text); i += 2 {
		text[i], text[i+1] = 'A'+byte(i/2%26), 0x1E
	}
	d.SetTextBuffer(text)
	d.SetMode(hwdefs.Text80x25Color)
	d.SetMode(hwdefs.Text80x25Color)

	stepLine(d, 100)
	want := make([]byte, hwdefs.HTotal)
	src := modes.Source{Text: text, Cursor: d.src.Cursor, BlinkPhase: d.src.BlinkPhase}
	modes.Render(want, hwdefs.Text80x25Color, &src, 100)
	if diff := cmp.Diff(want, d.lines[d.bufIdx]); diff != "" {
		t.Errorf("line buffer mismatch (-want +got):\n%s", diff)
	}
}

func TestOffset(t *testing.T) {
	_, d := newDriver(t)
	d.SetMode(hwdefs.VGA320x200x256)
	d.SetBuffer(make([]byte, 320*200), 320, 200)
	d.SetOffset(8, 2)
	if d.src.Start != 2*320+8 {
		t.Errorf("start = %d, want %d", d.src.Start, 2*320+8)
	}
	d.SetBuffer(make([]byte, 640*480/8), 80, 480)
	if d.src.Start != 2*80+8 {
		t.Errorf("start after SetBuffer = %d, want %d", d.src.Start, 2*80+8)
	}
}

func TestTextOffset(t *testing.T) {
	_, d := newDriver(t)
	text := make([]byte, 80*25*2)
	for i := 160; i < 320; i += 2 {
		text[i], text[i+1] = 'A'+uint8(i/2%26), 0x1F
	}
	d.SetTextBuffer(text)
	d.SetCursorShape(1, 0)
	d.SetMode(hwdefs.Text80x25Color)
	d.SetBuffer(make([]byte, 320*200), 80, 25)
	d.SetOffset(0, 1)
	if d.src.Start != 160 {
		t.Fatalf("start = %d, want one text row (160 bytes)", d.src.Start)
	}

	row1 := d.src
	row1.Text, row1.Start = text[160:], 0
	got, want := make([]byte, 640), make([]byte, 640)
	for y := range 16 {
		modes.Decode(got, hwdefs.Text80x25Color, &d.src, y)
		modes.Decode(want, hwdefs.Text80x25Color, &row1, y)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("glyph line %d mismatch (-want +got):\n%s", y, diff)
		}
	}

	d.SetMode(hwdefs.Text40x25Color)
	d.SetOffset(1, 1)
	if d.src.Start != 2*(40+1) {
		t.Errorf("40-column start = %d, want %d", d.src.Start, 2*(40+1))
	}
}

func TestSettersBeforeInit(t *testing.T) {
	chip := rp2.NewChip(hwdefs.BitClock)
	d := New(chip, DefaultConfig())
	d.SetPalette(1, 0xFF0000)
	d.SetBackground(0x0000FF)
	d.LoadPalette([]uint32{0x000000, 0xFF0000, 0x00FF00})
	d.SetOffset(0, 2)
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	l := d.cfg.Layout
	red := tmds.Serialize(tmds.EncodeChannel(0xFF), tmds.EncodeChannel(0), tmds.EncodeChannel(0), l)
	blue := tmds.Serialize(tmds.EncodeChannel(0), tmds.EncodeChannel(0), tmds.EncodeChannel(0xFF), l)
	tests := []struct {
		index uint8
		want  uint64
	}{
		{1, red},
		{hwdefs.BackgroundIndex, blue},
	}
	for _, tt := range tests {
		// read back through the bus, as the palette DMA channel does
		addr := d.paletteBase + uint32(tt.index)*tmds.EntrySize
		got := uint64(chip.Bus.Read32(addr, false)) | uint64(chip.Bus.Read32(addr+4, false))<<32
		if got != tt.want {
			t.Errorf("slot %d in SRAM = %016x, want %016x", tt.index, got, tt.want)
		}
	}
}

func TestReinitRestartsOnFirstBuffer(t *testing.T) {
	chip, d := newDriver(t)
	d.bufIdx = 1
	if err := d.Reinit(); err != nil {
		t.Fatalf("Reinit: %v", err)
	}
	if d.bufIdx != 0 {
		t.Fatalf("buffer index = %d after Reinit, want 0", d.bufIdx)
	}

	chip.Run(cyclesPerLine / 2)
	addr := chip.Bus.Read32(rp2.ChannelAddr(d.chData, rp2.ChReadAddr), false)
	streaming := int((addr - d.lineBase[0]) / lineBufSize)
	if d.bufIdx == streaming {
		t.Errorf("rendering into buffer %d while it is streamed", streaming)
	}
}

func TestBlinkClock(t *testing.T) {
	_, d := newDriver(t)
	d.SetBlinkPeriod(2)
	var phases []bool
	for range 6 {
		stepLine(d, 0)
		phases = append(phases, d.src.BlinkPhase)
	}
	want := []bool{true, false, false, true, true, false}
	if diff := cmp.Diff(want, phases); diff != "" {
		t.Errorf("blink phases mismatch (-want +got):\n%s", diff)
	}
}
