package emu

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"picohdmi/emu/log"
	"picohdmi/hw/hdmi"
	"picohdmi/hw/hwdefs"
	"picohdmi/hw/hwio"
	"picohdmi/hw/modes"
	"picohdmi/hw/monitor"
	"picohdmi/hw/rp2"
	"picohdmi/hw/tmds"
)

// Sizes of the memory shared with the video driver.
const (
	VRAMSize = 0x20000
	TextSize = 0x8000
)

var ErrNoFrame = errors.New("no frame received")

// Machine is a chip running the video driver, with a monitor on its pins and
// the memory an emulated computer would draw into.
type Machine struct {
	Chip    *rp2.Chip
	Video   *hdmi.Driver
	Monitor *monitor.Monitor
	IO      *hwio.Table // I/O port space

	VRAM []byte
	Text []byte

	cfg Config

	// These are accessed concurrently by the emulation loop and the watchdog.
	quit    atomic.Bool
	reinit  atomic.Bool
	reinits atomic.Int64
	stalls  atomic.Int64

	frameHooks []func(n int, img *image.RGBA)
	cmds       chan command
}

type command struct {
	fn   func()
	done chan struct{}
}

// NewMachine powers up a chip and starts the video output.
func NewMachine(cfg Config) (*Machine, error) {
	cfg.Check()

	chip := rp2.NewChip(cfg.Video.SysClock)
	hcfg := cfg.hdmiConfig()
	drv := hdmi.New(chip, hcfg)
	if err := drv.Init(); err != nil {
		return nil, fmt.Errorf("video init failed: %w", err)
	}

	m := &Machine{
		Chip:  chip,
		Video: drv,
		Monitor: monitor.New(monitor.Config{
			DataPin:  hcfg.DataPin(),
			ClockPin: hcfg.ClockPin(),
			Layout:   hcfg.Layout,
		}),
		IO:   hwio.NewTable("io"),
		VRAM: make([]byte, VRAMSize),
		Text: make([]byte, TextSize),
		cfg:  cfg,
		cmds: make(chan command, 16),
	}
	chip.GPIO.Observe(m.Monitor.Sample)
	m.Monitor.OnFrame(m.frameDone)
	drv.MapPorts(m.IO)

	preset, _ := tmds.PresetByName(cfg.Video.Palette)
	drv.LoadPalette(preset)
	drv.SetBackground(cfg.Video.Background)
	drv.SetTextBuffer(m.Text)
	m.SetMode(cfg.Video.Mode)

	log.ModEmu.InfoZ("Machine powered up").
		Stringer("mode", cfg.Video.Mode).
		Uint("sysclk", uint(cfg.Video.SysClock)).
		Stringer("order", cfg.Pins.Order).
		End()
	return m, nil
}

// SetMode switches the display mode and points the driver at the matching
// framebuffer geometry.
func (m *Machine) SetMode(mode hwdefs.DisplayMode) {
	w, h := modes.Resolution(mode)
	m.Video.SetBuffer(m.VRAM, w, h)
	m.Video.SetMode(mode)
}

// OnFrame registers fn to be called on the emulation goroutine with each
// frame received by the monitor.
func (m *Machine) OnFrame(fn func(n int, img *image.RGBA)) {
	m.frameHooks = append(m.frameHooks, fn)
}

func (m *Machine) frameDone(img *image.RGBA) {
	n := m.Monitor.Stats().Frames
	log.ModVideo.DebugZ("frame").Int("n", n).Uint("ticks", uint(m.Video.Ticks())).End()
	for _, fn := range m.frameHooks {
		fn(n, img)
	}
}

// CyclesPerLine is the number of system clock cycles taken by one scanline.
func (m *Machine) CyclesPerLine() int {
	return int(uint64(hwdefs.HTotal) * uint64(m.cfg.Video.SysClock) / hwdefs.PixelClock)
}

func (m *Machine) cyclesPerFrame() uint64 {
	return uint64(m.CyclesPerLine()) * hwdefs.VTotal
}

// Stop, RequestReinit allow to control the emulation loop in a
// concurrent-safe way.

func (m *Machine) Stop()          { m.quit.Store(true) }
func (m *Machine) RequestReinit() { m.reinit.Store(true) }

// Reinits returns the number of pipeline reinitializations performed.
func (m *Machine) Reinits() int64 { return m.reinits.Load() }

// Stalls returns the number of stalls detected by the watchdog.
func (m *Machine) Stalls() int64 { return m.stalls.Load() }

func (m *Machine) Config() Config { return m.cfg }

// Exec runs fn on the emulation goroutine, between two scanlines, and waits
// for it to return. The loop must be running.
func (m *Machine) Exec(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case m.cmds <- command{fn: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) runCommands() {
	for {
		select {
		case c := <-m.cmds:
			c.fn()
			close(c.done)
		default:
			return
		}
	}
}

func (m *Machine) handleReinit() error {
	if !m.reinit.CompareAndSwap(true, false) {
		return nil
	}
	log.ModEmu.InfoZ("Reinitializing video pipeline").Uint("ticks", uint(m.Video.Ticks())).End()
	if err := m.Video.Reinit(); err != nil {
		return fmt.Errorf("video reinit failed: %w", err)
	}
	m.reinits.Add(1)
	return nil
}

// RunFrames runs the machine until the monitor has received n more frames.
// It gives up with ErrNoFrame if the link does not deliver them in time.
func (m *Machine) RunFrames(n int) error {
	return m.loop(context.Background(), n)
}

func (m *Machine) loop(ctx context.Context, frames int) error {
	target := m.Monitor.Stats().Frames + frames
	// Locking onto the signal takes up to one frame, plus one more for the
	// first complete frame.
	budget := uint64(frames+2) * m.cyclesPerFrame()
	start := m.Chip.Cycles
	line := m.CyclesPerLine()

	for frames <= 0 || m.Monitor.Stats().Frames < target {
		if m.quit.Load() || ctx.Err() != nil {
			return nil
		}
		m.runCommands()
		if err := m.handleReinit(); err != nil {
			return err
		}
		m.Chip.Run(line)
		if frames > 0 && m.Chip.Cycles-start > budget {
			return fmt.Errorf("%w after %d cycles (%d frames)", ErrNoFrame, m.Chip.Cycles-start, m.Monitor.Stats().Frames)
		}
	}
	return nil
}

// Run runs the emulation loop until frames frames have been received (forever
// if frames <= 0), ctx is done or Stop is called. If enabled, a watchdog
// requests a pipeline reinitialization whenever the scanline interrupt stops
// firing.
func (m *Machine) Run(ctx context.Context, frames int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if m.cfg.Watchdog.Enabled {
		wd := NewWatchdog(m.cfg.Watchdog.Interval.Duration, m.Video.Ticks, func() {
			m.stalls.Add(1)
			m.RequestReinit()
		})
		g.Go(func() error { return wd.Run(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		return m.loop(gctx, frames)
	})

	err := g.Wait()
	log.ModEmu.InfoZ("Emulation loop exited").
		Int("frames", m.Monitor.Stats().Frames).
		Int("reinits", int(m.Reinits())).
		End()
	return err
}
