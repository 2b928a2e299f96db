// Package hdmi drives a 640x480@60 DVI signal out of two PIO state machines
// and four chained DMA channels. Software only runs once per scanline, in the
// DMA interrupt, to prepare the next line of palette indices; every pixel is
// translated to its pre-encoded TMDS words by the hardware.
package hdmi

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"picohdmi/emu/log"
	"picohdmi/hw/hwdefs"
	"picohdmi/hw/hwio"
	"picohdmi/hw/modes"
	"picohdmi/hw/rp2"
	"picohdmi/hw/tmds"
)

// Config describes the board wiring and the video defaults.
type Config struct {
	BasePin     uint8 // first of the 8 consecutive pins
	Layout      tmds.PinLayout
	BlinkFrames int // frames per blink half-period
}

func DefaultConfig() Config {
	return Config{BasePin: 6, BlinkFrames: 16}
}

// DataPin is the first of the 6 data pins. RGB boards put the clock pair
// after the data pairs, BGR boards before.
func (c Config) DataPin() uint8 {
	if c.Layout.Order == hwdefs.BGR {
		return c.BasePin + 2
	}
	return c.BasePin
}

// ClockPin is the first of the 2 clock pins.
func (c Config) ClockPin() uint8 {
	if c.Layout.Order == hwdefs.BGR {
		return c.BasePin
	}
	return c.BasePin + 6
}

const (
	lineBufSize = hwdefs.HTotal
	// palette table followed by the two line buffers
	videoMemSize = tmds.TableSize + 2*lineBufSize
	// two 32-bit words of each palette entry are streamed per pixel
	wordsPerPixel = 2
)

// Driver owns the video pipeline resources of a chip.
type Driver struct {
	// Port3DA is the CGA/VGA input status register: bit 3 is set during
	// vertical retrace, bit 0 on odd scanlines.
	Port3DA hwio.Reg8 `hwio:"offset=0x3DA,readonly"`

	chip *rp2.Chip
	pio  *rp2.PIO
	cfg  Config

	smVideo, smConv              int
	chData, chCtrl               int
	chPaletteData, chPaletteCtrl int
	offVideo, offConv            uint8
	loaded                       bool

	paletteBase uint32
	lineBase    [2]uint32
	lineAddrs   uint32 // 2 words: lineBase[0], lineBase[1]
	lines       [2][]byte
	palette     *tmds.Palette

	mode   hwdefs.DisplayMode
	src    modes.Source
	width  int
	height int
	offX   int
	offY   int

	scanline int
	bufIdx   int
	frames   uint64

	ticks atomic.Uint64
	line  atomic.Int32
}

// New returns a driver for chip. Resources are only claimed by Init.
func New(chip *rp2.Chip, cfg Config) *Driver {
	if cfg.BlinkFrames <= 0 {
		cfg.BlinkFrames = DefaultConfig().BlinkFrames
	}
	d := &Driver{
		chip: chip,
		pio:  &chip.PIO[0],
		cfg:  cfg,
		mode: hwdefs.Text80x25Color,
	}
	d.src.Cursor = modes.DefaultCursor
	d.palette = tmds.NewPalette(make([]byte, tmds.TableSize), cfg.Layout)
	hwio.MustInitRegs(d)
	return d
}

// Init claims two state machines and four DMA channels, allocates the palette
// table and line buffers, and starts the output. Running out of any resource
// is returned as an error.
func (d *Driver) Init() error {
	var err error
	if d.smVideo, err = d.pio.ClaimUnusedSM(); err != nil {
		return fmt.Errorf("hdmi: claim serializer: %w", err)
	}
	if d.smConv, err = d.pio.ClaimUnusedSM(); err != nil {
		return fmt.Errorf("hdmi: claim address converter: %w", err)
	}
	for _, ch := range []*int{&d.chCtrl, &d.chData, &d.chPaletteCtrl, &d.chPaletteData} {
		if *ch, err = d.chip.DMA.ClaimUnused(); err != nil {
			return fmt.Errorf("hdmi: claim DMA channel: %w", err)
		}
	}

	base, err := d.chip.Alloc(videoMemSize, tmds.TableSize)
	if err != nil {
		return fmt.Errorf("hdmi: palette table: %w", err)
	}
	d.paletteBase = base
	d.palette.Attach(d.chip.Mem(base, tmds.TableSize))
	for i := range d.lines {
		d.lineBase[i] = base + tmds.TableSize + uint32(i*lineBufSize)
		d.lines[i] = d.chip.Mem(d.lineBase[i], lineBufSize)
	}

	if d.lineAddrs, err = d.chip.Alloc(8, 4); err != nil {
		return fmt.Errorf("hdmi: line table: %w", err)
	}
	tbl := d.chip.Mem(d.lineAddrs, 8)
	binary.LittleEndian.PutUint32(tbl[0:], d.lineBase[0])
	binary.LittleEndian.PutUint32(tbl[4:], d.lineBase[1])

	log.ModHDMI.InfoZ("video resources claimed").
		Int("sm-video", d.smVideo).
		Int("sm-conv", d.smConv).
		Int("ch-data", d.chData).
		Int("ch-ctrl", d.chCtrl).
		Int("ch-pal-data", d.chPaletteData).
		Int("ch-pal-ctrl", d.chPaletteCtrl).
		Hex32("palette", d.paletteBase).
		End()
	return d.Reinit()
}

func (d *Driver) channelMask() uint32 {
	return 1<<d.chCtrl | 1<<d.chData | 1<<d.chPaletteData | 1<<d.chPaletteCtrl
}

// Reinit tears the pipeline down and rebuilds it from scratch: programs,
// palette table, state machines and DMA chain. It is safe to call at any
// time, including with the pipeline stalled; the scanline interrupt is
// disabled for the whole sequence.
func (d *Driver) Reinit() error {
	dma, nvic := &d.chip.DMA, &d.chip.NVIC

	dma.SetIRQ0Enabled(d.chCtrl, false)
	nvic.SetEnabled(rp2.IRQDMA0, false)
	nvic.RemoveHandler(rp2.IRQDMA0)

	dma.Abort(d.channelMask())
	for d.chip.Bus.Read32(rp2.DMAChanAbort, false) != 0 {
	}

	d.pio.SetEnabled(d.smVideo, false)
	d.pio.SetEnabled(d.smConv, false)

	if d.loaded {
		d.pio.RemoveProgram(converterProgram, d.offConv)
		d.pio.RemoveProgram(serializerProgram, d.offVideo)
		d.loaded = false
	}
	var err error
	if d.offConv, err = d.pio.AddProgram(converterProgram); err != nil {
		return fmt.Errorf("hdmi: %w", err)
	}
	if d.offVideo, err = d.pio.AddProgram(serializerProgram); err != nil {
		d.pio.RemoveProgram(converterProgram, d.offConv)
		return fmt.Errorf("hdmi: %w", err)
	}
	d.loaded = true

	loadX(d.pio, d.smConv, d.paletteBase>>12)

	d.palette.SetLayout(d.cfg.Layout)
	d.palette.Rebuild()

	d.initConverter()
	d.initSerializer()
	for i, buf := range d.lines {
		modes.RenderBlank(buf, hwdefs.VActive+i)
	}
	// the chain restarts on buffer 0
	d.bufIdx = 0
	d.initChain()

	dma.AckIRQ0(d.chCtrl)
	dma.SetIRQ0Enabled(d.chCtrl, true)
	nvic.SetHandler(rp2.IRQDMA0, d.handleScanline)
	nvic.SetEnabled(rp2.IRQDMA0, true)

	dma.Start(1 << d.chCtrl)

	log.ModHDMI.DebugZ("pipeline started").
		Stringer("mode", d.mode).
		Int("off-video", int(d.offVideo)).
		Int("off-conv", int(d.offConv)).
		End()
	return nil
}

func (d *Driver) initConverter() {
	cfg := rp2.DefaultSMConfig()
	cfg.SetWrap(d.offConv, d.offConv+uint8(converterProgram.Len())-1)
	cfg.SetInShift(true, false, 32)
	d.pio.SMInit(d.smConv, d.offConv, cfg)
	d.pio.SetEnabled(d.smConv, true)
}

func (d *Driver) initSerializer() {
	clk, data := d.cfg.ClockPin(), d.cfg.DataPin()

	cfg := rp2.DefaultSMConfig()
	cfg.SetWrap(d.offVideo, d.offVideo+uint8(serializerProgram.Len())-1)
	cfg.SetSideset(clk, 2, false, false)

	clkMask := uint32(3) << clk
	d.pio.SetPins(clkMask, clkMask)
	d.pio.SetPindirs(clkMask, clkMask)
	d.pio.SetPindirs(0x3F<<data, 0x3F<<data)

	cfg.SetOutPins(data, 6)
	cfg.SetOutShift(true, true, 30)
	cfg.Join = rp2.JoinTX
	cfg.SetClkDiv(float64(d.chip.SysClock) / hwdefs.BitClock)

	d.pio.SMInit(d.smVideo, d.offVideo, cfg)
	d.pio.SetEnabled(d.smVideo, true)
}

// initChain wires the four channels:
//
//	data:            line buffer -> converter TX, 800 bytes, then control
//	control:         line table  -> data READ_ADDR, 1 word, then data
//	palette-control: converter RX -> palette-data READ_ADDR, then palette-data
//	palette-data:    palette entry -> serializer TX, 2 words, then palette-control
func (d *Driver) initChain() {
	dma := &d.chip.DMA

	cfg := rp2.DefaultChannelConfig(d.chData)
	cfg.SetDataSize(rp2.Size8)
	cfg.SetChainTo(d.chCtrl)
	cfg.SetReadIncrement(true)
	cfg.SetWriteIncrement(false)
	cfg.SetDREQ(d.pio.DreqTX(d.smConv))
	dma.Configure(d.chData, cfg, d.pio.TXF(d.smConv), d.lineBase[0], lineBufSize, false)

	cfg = rp2.DefaultChannelConfig(d.chCtrl)
	cfg.SetDataSize(rp2.Size32)
	cfg.SetChainTo(d.chData)
	cfg.SetReadIncrement(false)
	cfg.SetWriteIncrement(false)
	dma.Configure(d.chCtrl, cfg, rp2.ChannelAddr(d.chData, rp2.ChReadAddr), d.lineAddrs, 1, false)

	cfg = rp2.DefaultChannelConfig(d.chPaletteData)
	cfg.SetDataSize(rp2.Size32)
	cfg.SetChainTo(d.chPaletteCtrl)
	cfg.SetReadIncrement(true)
	cfg.SetWriteIncrement(false)
	cfg.SetDREQ(d.pio.DreqTX(d.smVideo))
	dma.Configure(d.chPaletteData, cfg, d.pio.TXF(d.smVideo), d.paletteBase, wordsPerPixel, false)

	cfg = rp2.DefaultChannelConfig(d.chPaletteCtrl)
	cfg.SetDataSize(rp2.Size32)
	cfg.SetChainTo(d.chPaletteData)
	cfg.SetReadIncrement(false)
	cfg.SetWriteIncrement(false)
	cfg.SetDREQ(d.pio.DreqRX(d.smConv))
	dma.Configure(d.chPaletteCtrl, cfg, rp2.ChannelAddr(d.chPaletteData, rp2.ChReadAddr), d.pio.RXF(d.smConv), 1, true)
}

// MapPorts maps the status register in an I/O port space.
func (d *Driver) MapPorts(t *hwio.Table) {
	t.MapBank(0, d, 0)
}

func (d *Driver) AddLogContext(z *log.EntryZ) {
	z.Int("line", int(d.line.Load()))
	z.Stringer("mode", d.mode)
}
