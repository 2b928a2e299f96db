// Package report summarizes an emulation run, as JSON for tooling and as a
// colored summary for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-faster/jx"

	"picohdmi/emu"
	"picohdmi/hw/monitor"
	"picohdmi/hw/rp2"
)

type StateMachine struct {
	PIO, SM  int
	Executed uint64
	Stalls   uint64
	TxDrops  uint64
}

type Channel struct {
	Num       int
	Transfers uint64
}

type Report struct {
	Mode     string
	SysClock uint32
	Cycles   uint64
	Elapsed  time.Duration

	Ticks   uint64 // scanline interrupts
	Reinits int64
	Stalls  int64 // watchdog detections

	Link monitor.Stats

	StateMachines []StateMachine
	Channels      []Channel
}

// New collects the counters of m.
func New(m *emu.Machine, elapsed time.Duration) Report {
	r := Report{
		Mode:     m.Video.Mode().String(),
		SysClock: m.Chip.SysClock,
		Cycles:   m.Chip.Cycles,
		Elapsed:  elapsed,
		Ticks:    m.Video.Ticks(),
		Reinits:  m.Reinits(),
		Stalls:   m.Stalls(),
		Link:     m.Monitor.Stats(),
	}
	for pio := range m.Chip.PIO {
		for i := range m.Chip.PIO[pio].SM {
			sm := &m.Chip.PIO[pio].SM[i]
			if !sm.Enabled() {
				continue
			}
			r.StateMachines = append(r.StateMachines, StateMachine{
				PIO:      pio,
				SM:       i,
				Executed: sm.Executed,
				Stalls:   sm.Stalls,
				TxDrops:  sm.TxDrops,
			})
		}
	}
	for i := range rp2.NumDMAChannels {
		if m.Chip.DMA.Claimed(i) {
			r.Channels = append(r.Channels, Channel{Num: i, Transfers: m.Chip.DMA.Channels[i].Transfers})
		}
	}
	return r
}

// Speed is the emulated time over the elapsed wall time.
func (r Report) Speed() float64 {
	if r.Elapsed <= 0 || r.SysClock == 0 {
		return 0
	}
	emulated := float64(r.Cycles) / float64(r.SysClock)
	return emulated / r.Elapsed.Seconds()
}

func (r Report) Errors() int {
	return r.Link.PairErrors + r.Link.LineErrors + r.Link.FrameErrors
}

func (r Report) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("mode", func(e *jx.Encoder) { e.Str(r.Mode) })
		e.Field("sysclock", func(e *jx.Encoder) { e.UInt32(r.SysClock) })
		e.Field("cycles", func(e *jx.Encoder) { e.UInt64(r.Cycles) })
		e.Field("elapsed_ms", func(e *jx.Encoder) { e.Int64(r.Elapsed.Milliseconds()) })
		e.Field("speed", func(e *jx.Encoder) { e.Float64(r.Speed()) })
		e.Field("ticks", func(e *jx.Encoder) { e.UInt64(r.Ticks) })
		e.Field("reinits", func(e *jx.Encoder) { e.Int64(r.Reinits) })
		e.Field("stalls", func(e *jx.Encoder) { e.Int64(r.Stalls) })
		e.Field("link", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("frames", func(e *jx.Encoder) { e.Int(r.Link.Frames) })
				e.Field("pixels", func(e *jx.Encoder) { e.UInt64(r.Link.Pixels) })
				e.Field("hsyncs", func(e *jx.Encoder) { e.Int(r.Link.HSyncs) })
				e.Field("vsyncs", func(e *jx.Encoder) { e.Int(r.Link.VSyncs) })
				e.Field("pair_errors", func(e *jx.Encoder) { e.Int(r.Link.PairErrors) })
				e.Field("line_errors", func(e *jx.Encoder) { e.Int(r.Link.LineErrors) })
				e.Field("frame_errors", func(e *jx.Encoder) { e.Int(r.Link.FrameErrors) })
				e.Field("last_lines", func(e *jx.Encoder) { e.Int(r.Link.LastLines) })
			})
		})
		e.Field("state_machines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, sm := range r.StateMachines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("pio", func(e *jx.Encoder) { e.Int(sm.PIO) })
						e.Field("sm", func(e *jx.Encoder) { e.Int(sm.SM) })
						e.Field("executed", func(e *jx.Encoder) { e.UInt64(sm.Executed) })
						e.Field("stalls", func(e *jx.Encoder) { e.UInt64(sm.Stalls) })
						e.Field("tx_drops", func(e *jx.Encoder) { e.UInt64(sm.TxDrops) })
					})
				}
			})
		})
		e.Field("dma", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, ch := range r.Channels {
					e.Obj(func(e *jx.Encoder) {
						e.Field("channel", func(e *jx.Encoder) { e.Int(ch.Num) })
						e.Field("transfers", func(e *jx.Encoder) { e.UInt64(ch.Transfers) })
					})
				}
			})
		})
	})
}

// WriteJSON writes r as an indented JSON document.
func (r Report) WriteJSON(w io.Writer) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.SetIdent(2)
	r.Encode(e)
	_, err := w.Write(append(e.Bytes(), '\n'))
	return err
}

// ANSI colors: 1 red, 2 green, 3 yellow, 6 cyan, 8 gray.
var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(6))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(8))
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(2))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(3))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(7)).Background(lipgloss.ANSIColor(1))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Summary renders r for a terminal.
func (r Report) Summary() string {
	var sb strings.Builder
	row := func(key, val string) {
		fmt.Fprintf(&sb, "%s %s\n", keyStyle.Render(fmt.Sprintf("%-10s", key)), val)
	}

	sb.WriteString(titleStyle.Render("picohdmi "+r.Mode) + "\n")
	row("frames", fmt.Sprintf("%d (%d lines last frame)", r.Link.Frames, r.Link.LastLines))
	row("cycles", fmt.Sprintf("%d @ %.1f MHz", r.Cycles, float64(r.SysClock)/1e6))
	row("speed", fmt.Sprintf("%.3fx in %s", r.Speed(), r.Elapsed.Round(time.Millisecond)))
	row("scanlines", fmt.Sprint(r.Ticks))

	switch {
	case r.Errors() > 0:
		row("link", errStyle.Render(fmt.Sprintf("%d pair, %d line, %d frame errors",
			r.Link.PairErrors, r.Link.LineErrors, r.Link.FrameErrors)))
	case r.Link.Frames == 0:
		row("link", warnStyle.Render("no signal"))
	default:
		row("link", okStyle.Render("ok"))
	}
	if r.Reinits > 0 || r.Stalls > 0 {
		row("recovery", warnStyle.Render(fmt.Sprintf("%d stalls, %d reinits", r.Stalls, r.Reinits)))
	}
	for _, sm := range r.StateMachines {
		row(fmt.Sprintf("pio%d.sm%d", sm.PIO, sm.SM), fmt.Sprintf("%d instr, %d stalled", sm.Executed, sm.Stalls))
	}
	for _, ch := range r.Channels {
		row(fmt.Sprintf("dma%d", ch.Num), fmt.Sprintf("%d transfers", ch.Transfers))
	}
	return boxStyle.Render(strings.TrimSuffix(sb.String(), "\n"))
}
