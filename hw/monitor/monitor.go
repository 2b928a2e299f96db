// Package monitor is a model of a DVI sink attached to the video pins. It
// samples the pins after every serializer instruction, recovers pixels from
// the clock pair, decodes the TMDS symbols and assembles 640x480 frames
// positioned by the sync signals.
package monitor

import (
	"image"
	"image/color"

	"picohdmi/emu/log"
	"picohdmi/hw/hwdefs"
	"picohdmi/hw/tmds"
)

// Config describes the wiring seen by the monitor.
type Config struct {
	DataPin  uint8
	ClockPin uint8
	Layout   tmds.PinLayout
}

// Stats counts what was seen on the link.
type Stats struct {
	Frames     int
	Pixels     uint64
	HSyncs     int
	VSyncs     int
	PairErrors int // units whose pairs were not differential
	LineErrors int // hsync periods other than a full line
	// FrameErrors counts vsync periods not lasting exactly one frame of lines.
	FrameErrors int
	LastLines   int // lines in the last vsync period
}

const (
	clockHigh     = 2
	unitsPerPixel = hwdefs.BitsPerWord
	// x of the pixel carrying the hsync leading edge
	hsyncX = hwdefs.HFrontPorch - hwdefs.HActiveStart
)

type Monitor struct {
	cfg Config

	lastClock uint8
	units     [unitsPerPixel]uint8
	n         int

	x, y         int
	hsync, vsync bool
	synced       bool
	sinceHSync   int
	linesInFrame int

	cur, last *image.RGBA
	onFrame   func(*image.RGBA)

	stats Stats
}

func New(cfg Config) *Monitor {
	r := image.Rect(0, 0, hwdefs.HActive, hwdefs.VActive)
	return &Monitor{
		cfg:  cfg,
		n:    unitsPerPixel,
		cur:  image.NewRGBA(r),
		last: image.NewRGBA(r),
	}
}

// OnFrame registers fn to be called with each completed frame. The image is
// only valid during the call.
func (m *Monitor) OnFrame(fn func(*image.RGBA)) { m.onFrame = fn }

// Frame returns a copy of the last completed frame, or nil if none was.
func (m *Monitor) Frame() *image.RGBA {
	if m.stats.Frames == 0 {
		return nil
	}
	img := image.NewRGBA(m.last.Rect)
	copy(img.Pix, m.last.Pix)
	return img
}

func (m *Monitor) Stats() Stats { return m.stats }

// Position returns the coordinates of the next pixel, x relative to the start
// of active video.
func (m *Monitor) Position() (x, y int) { return m.x, m.y }

// Sample takes the pin levels after one serializer step.
func (m *Monitor) Sample(pins uint32) {
	clk := uint8(pins>>m.cfg.ClockPin) & 3
	if clk == clockHigh && m.lastClock != clockHigh {
		m.n = 0
	}
	m.lastClock = clk
	if m.n >= unitsPerPixel {
		return
	}
	m.units[m.n] = uint8(pins>>m.cfg.DataPin) & 0x3F
	m.n++
	if m.n == unitsPerPixel {
		m.pixel()
	}
}

func (m *Monitor) pixel() {
	var r, g, b uint16
	for k, u := range m.units {
		ur, ug, ub, ok := m.cfg.Layout.Unit(u)
		if !ok {
			m.stats.PairErrors++
		}
		r |= ur << k
		g |= ug << k
		b |= ub << k
	}
	m.stats.Pixels++
	m.sinceHSync++

	if c0, c1, ok := tmds.IsControl(b); ok {
		m.control(!c0, !c1)
	} else if m.synced && m.x >= 0 && m.x < hwdefs.HActive && m.y >= 0 && m.y < hwdefs.VActive {
		m.cur.SetRGBA(m.x, m.y, color.RGBA{
			R: tmds.DecodeChannel(r),
			G: tmds.DecodeChannel(g),
			B: tmds.DecodeChannel(b),
			A: 0xFF,
		})
	}
	m.x++
}

// control handles a blanking pixel carrying the given sync levels (true
// means asserted).
func (m *Monitor) control(hsync, vsync bool) {
	if vsync && !m.vsync {
		m.vsyncEdge()
	}
	if hsync && !m.hsync {
		m.hsyncEdge()
	}
	m.hsync, m.vsync = hsync, vsync
}

func (m *Monitor) vsyncEdge() {
	m.stats.VSyncs++
	if m.synced {
		m.stats.LastLines = m.linesInFrame
		if m.linesInFrame != hwdefs.VTotal {
			m.stats.FrameErrors++
			log.ModMonitor.WarnZ("bad frame length").Int("lines", m.linesInFrame).End()
		}
		m.stats.Frames++
		m.cur, m.last = m.last, m.cur
		if m.onFrame != nil {
			m.onFrame(m.last)
		}
	}
	m.synced = true
	m.linesInFrame = 0
	// The line of the vsync edge gets numbered at its hsync edge.
	m.y = hwdefs.VSyncStart - 1
}

func (m *Monitor) hsyncEdge() {
	m.stats.HSyncs++
	if m.stats.HSyncs > 1 && m.sinceHSync != hwdefs.HTotal {
		m.stats.LineErrors++
		log.ModMonitor.DebugZ("bad line length").Int("pixels", m.sinceHSync).Int("y", m.y).End()
	}
	m.sinceHSync = 0
	m.linesInFrame++
	m.y++
	if m.y >= hwdefs.VTotal {
		m.y = 0
	}
	m.x = hsyncX
}
