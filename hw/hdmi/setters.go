package hdmi

import (
	"picohdmi/emu/log"
	"picohdmi/hw/hwdefs"
	"picohdmi/hw/modes"
	"picohdmi/hw/tmds"
)

// SetMode selects the display mode. It takes effect at the next scanline.
func (d *Driver) SetMode(m hwdefs.DisplayMode) {
	if m >= hwdefs.NumDisplayModes {
		log.ModHDMI.WarnZ("ignoring unknown display mode").Int("mode", int(m)).End()
		return
	}
	if m != d.mode {
		log.ModHDMI.DebugZ("mode change").Stringer("from", d.mode).Stringer("to", m).End()
	}
	d.mode = m
	d.updateStart()
}

func (d *Driver) Mode() hwdefs.DisplayMode { return d.mode }

// SetPalette programs palette slot index with a 0xRRGGBB color. Reserved
// slots are left untouched. It may be called before Init.
func (d *Driver) SetPalette(index uint8, rgb uint32) {
	d.palette.Set(index, rgb)
}

// SetBackground programs the overscan color.
func (d *Driver) SetBackground(rgb uint32) {
	d.palette.SetBackground(rgb)
}

// LoadPalette programs consecutive slots from 0.
func (d *Driver) LoadPalette(colors []uint32) {
	d.palette.LoadPreset(colors)
}

func (d *Driver) Palette() *tmds.Palette { return d.palette }

// SetBuffer sets the graphics framebuffer. The driver only reads it.
func (d *Driver) SetBuffer(buf []byte, width, height int) {
	d.src.Graphics = buf
	d.width, d.height = width, height
	d.updateStart()
}

// SetTextBuffer sets the character/attribute buffer used by text modes.
func (d *Driver) SetTextBuffer(buf []byte) {
	d.src.Text = buf
}

// SetOffset sets the display start address to y*width + x bytes, width being
// the one given to SetBuffer. In text modes x and y count character cells.
func (d *Driver) SetOffset(x, y int) {
	d.offX, d.offY = x, y
	d.updateStart()
}

func (d *Driver) updateStart() {
	if d.mode.IsText() {
		cols, _ := modes.Resolution(d.mode)
		d.src.Start = 2 * (d.offY*cols + d.offX)
		return
	}
	d.src.Start = d.offY*d.width + d.offX
}

func (d *Driver) SetCursor(col, row int) {
	d.src.Cursor.Col, d.src.Cursor.Row = col, row
}

// SetCursorShape sets the first and last glyph lines covered by the cursor.
// A start line past the end hides it.
func (d *Driver) SetCursorShape(start, end int) {
	d.src.Cursor.Top, d.src.Cursor.Bottom = start, end
	d.src.Cursor.Hidden = start > end
}

// SetBlinking selects whether attribute bit 7 blinks the character or
// selects a bright background.
func (d *Driver) SetBlinking(on bool) {
	d.src.Blinking = on
}

func (d *Driver) SetBlinkPeriod(frames int) {
	if frames > 0 {
		d.cfg.BlinkFrames = frames
	}
}

// Ticks returns the number of scanline interrupts served. It is safe to call
// from any goroutine; a value that stops moving means the pipeline stalled.
func (d *Driver) Ticks() uint64 { return d.ticks.Load() }

// Scanline returns the line being prepared. Safe from any goroutine.
func (d *Driver) Scanline() int { return int(d.line.Load()) }

// Status returns the value of the input status register.
func (d *Driver) Status() uint8 { return d.Port3DA.Peek8() }

func (d *Driver) Frames() uint64 { return d.frames }

func (d *Driver) Config() Config { return d.cfg }

// SetLayout changes the pin layout. Call Reinit to apply it.
func (d *Driver) SetLayout(l tmds.PinLayout) {
	d.cfg.Layout = l
}
