package hdmi

import (
	"picohdmi/hw/hwdefs"
	"picohdmi/hw/modes"
)

const (
	statusOdd     = 1 << 0
	statusRetrace = 1 << 3
)

// handleScanline runs when the control channel has handed a line buffer to
// the data channel. While that line streams out, it prepares the next one in
// the other buffer and points the control channel at it. Lines repeating the
// previous one (line doubling) keep the same buffer.
func (d *Driver) handleScanline() {
	d.ticks.Add(1)
	d.chip.DMA.AckIRQ0(d.chCtrl)

	line := d.scanline + 1
	if d.scanline >= hwdefs.LastLine {
		line = 0
		d.frames++
		d.src.BlinkPhase = (d.frames/uint64(d.cfg.BlinkFrames))&1 == 0
	}
	d.scanline = line
	d.line.Store(int32(line))

	status := uint8(line & 1)
	if line >= hwdefs.VSyncStart && line < hwdefs.VSyncEnd {
		status |= statusRetrace
	}
	d.Port3DA.Value = status

	mode := d.mode
	if modes.Reuses(mode, line) {
		d.chip.DMA.SetReadAddr(d.chCtrl, d.lineAddrs+4*uint32(d.bufIdx), false)
		return
	}

	d.bufIdx ^= 1
	d.chip.DMA.SetReadAddr(d.chCtrl, d.lineAddrs+4*uint32(d.bufIdx), false)
	modes.Render(d.lines[d.bufIdx], mode, &d.src, line)
}
