// Package modes turns legacy PC video memory layouts into lines of palette
// indices. Decoders are pure functions of the mode, the logical row and the
// source buffers; they never write to the sources.
package modes

import (
	"picohdmi/hw/hwdefs"
)

// Cursor describes the hardware text cursor.
type Cursor struct {
	Col, Row    int
	Top, Bottom int // glyph lines covered, inclusive
	Hidden      bool
}

// DefaultCursor is an underline cursor in the top-left cell.
var DefaultCursor = Cursor{Top: 14, Bottom: 15}

// Source is the memory seen by the decoders.
type Source struct {
	Graphics []byte
	Text     []byte
	Start    int // display start address, in bytes

	Cursor     Cursor
	Blinking   bool // attribute bit 7 blinks instead of selecting a bright background
	BlinkPhase bool // shared blink clock; the cursor shows while set

	scratch [maxFetch]byte
}

const maxFetch = 320

// row returns n bytes of buf starting at off. Bytes outside buf read as zero.
// The returned slice may alias an internal scratch buffer, valid until the
// next call.
func (s *Source) row(buf []byte, off, n int) []byte {
	if off >= 0 && off+n <= len(buf) {
		return buf[off : off+n]
	}
	z := s.scratch[:n]
	clear(z)
	if off < len(buf) && off+n > 0 {
		lo := max(off, 0)
		hi := min(off+n, len(buf))
		copy(z[lo-off:], buf[lo:hi])
	}
	return z
}

func (s *Source) byteAt(buf []byte, off int) uint8 {
	if off < 0 || off >= len(buf) {
		return 0
	}
	return buf[off]
}

// Geometry is the vertical placement of a mode within the 480 visible lines.
type Geometry struct {
	Top     int  // first scanline of the window
	Lines   int  // number of scanlines covered
	Doubled bool // each source row is shown on two consecutive scanlines
}

// Row maps a scanline to the logical source row. ok is false if the scanline
// is outside the window.
func (g Geometry) Row(line int) (y int, ok bool) {
	if line < g.Top || line >= g.Top+g.Lines {
		return 0, false
	}
	y = line - g.Top
	if g.Doubled {
		y >>= 1
	}
	return y, true
}

type decodeFunc func(dst []byte, s *Source, y int)

type modeInfo struct {
	geo    Geometry
	decode decodeFunc
}

var (
	window400 = Geometry{Top: 40, Lines: 400}
	window200 = Geometry{Top: 40, Lines: 400, Doubled: true}
	window350 = Geometry{Top: 65, Lines: 350}
	window480 = Geometry{Top: 0, Lines: 480}
)

var modeTable = [hwdefs.NumDisplayModes]modeInfo{
	hwdefs.Text80x25Color:           {window400, decodeText(80, 1)},
	hwdefs.Text80x25Mono:            {window400, decodeText(80, 1)},
	hwdefs.Text40x25Color:           {window400, decodeText(40, 2)},
	hwdefs.Text40x25Mono:            {window400, decodeText(40, 2)},
	hwdefs.CGA320x200x4:             {window200, decodeCGA4},
	hwdefs.CGA320x200x4Mono:         {window200, decodeCGA4},
	hwdefs.CGA640x200x2:             {window200, decodeCGA2},
	hwdefs.TGA160x200x16:            {window200, decodeTGA160},
	hwdefs.Composite160x200x16:      {window200, decodeTGA160},
	hwdefs.Composite160x200x16Force: {window200, decodeTGA160},
	hwdefs.TGA320x200x16:            {window200, decodeTGA320},
	hwdefs.TGA640x200x16:            {window200, decodeTGA640},
	hwdefs.EGA320x200x16:            {window200, decodePlanar(160, 2)},
	hwdefs.EGA640x200x16:            {window200, decodePlanar(320, 1)},
	hwdefs.EGA640x350x16:            {window350, decodePlanar(320, 1)},
	hwdefs.VGA640x480x2:             {window480, decodeMono640},
	hwdefs.VGA640x480x16:            {window480, decodePlanar(320, 1)},
	hwdefs.VGA320x200x256:           {window200, decodeVGA256},
	hwdefs.VGA320x200x256x4:         {window200, decodeUnchained},
}

func info(m hwdefs.DisplayMode) modeInfo {
	if m >= hwdefs.NumDisplayModes {
		m = hwdefs.VGA320x200x256
	}
	return modeTable[m]
}

// GeometryOf returns the vertical placement of m.
func GeometryOf(m hwdefs.DisplayMode) Geometry {
	return info(m).geo
}

// Reuses reports whether scanline repeats the previous line's buffer in mode
// m, rather than being decoded again.
func Reuses(m hwdefs.DisplayMode, line int) bool {
	return GeometryOf(m).Doubled && line&1 == 1
}

// Decode writes the 640 active pixels of logical row y of mode m into dst.
func Decode(dst []byte, m hwdefs.DisplayMode, s *Source, y int) {
	info(m).decode(dst[:hwdefs.HActive], s, y)
}

func fill(dst []byte, v uint8) {
	for i := range dst {
		dst[i] = v
	}
}

// Render writes a complete line buffer (sync, porches and active video) for
// scanline into buf, which must hold hwdefs.HTotal bytes.
func Render(buf []byte, m hwdefs.DisplayMode, s *Source, line int) {
	buf = buf[:hwdefs.HTotal]

	if line >= hwdefs.VActive {
		RenderBlank(buf, line)
		return
	}

	fill(buf[:hwdefs.HFrontPorch], hwdefs.CtrlIdle)
	fill(buf[hwdefs.HFrontPorch:hwdefs.HFrontPorch+hwdefs.HSyncWidth], hwdefs.CtrlHSync)
	fill(buf[hwdefs.HFrontPorch+hwdefs.HSyncWidth:hwdefs.HActiveStart], hwdefs.CtrlIdle)

	active := buf[hwdefs.HActiveStart:]
	src := s.Graphics
	if m.IsText() {
		src = s.Text
	}
	y, ok := GeometryOf(m).Row(line)
	if !ok || src == nil {
		fill(active, hwdefs.BackgroundIndex)
		return
	}
	Decode(active, m, s, y)
}

// RenderBlank writes a vertical blanking line. Lines of the sync window carry
// VSYNC for the whole line.
func RenderBlank(buf []byte, line int) {
	porch, sync := uint8(hwdefs.CtrlIdle), uint8(hwdefs.CtrlHSync)
	if line >= hwdefs.VSyncStart && line < hwdefs.VSyncEnd {
		porch, sync = hwdefs.CtrlVSync, hwdefs.CtrlHVSync
	}
	fill(buf[:hwdefs.HFrontPorch], porch)
	fill(buf[hwdefs.HFrontPorch:hwdefs.HFrontPorch+hwdefs.HSyncWidth], sync)
	fill(buf[hwdefs.HFrontPorch+hwdefs.HSyncWidth:hwdefs.HTotal], porch)
}

// Resolution returns the logical size of m: pixels for graphics modes,
// character cells for text modes.
func Resolution(m hwdefs.DisplayMode) (w, h int) {
	switch m {
	case hwdefs.Text80x25Color, hwdefs.Text80x25Mono:
		return 80, 25
	case hwdefs.Text40x25Color, hwdefs.Text40x25Mono:
		return 40, 25
	case hwdefs.TGA160x200x16, hwdefs.Composite160x200x16, hwdefs.Composite160x200x16Force:
		return 160, 200
	case hwdefs.CGA640x200x2, hwdefs.TGA640x200x16, hwdefs.EGA640x200x16:
		return 640, 200
	case hwdefs.EGA640x350x16:
		return 640, 350
	case hwdefs.VGA640x480x2, hwdefs.VGA640x480x16:
		return 640, 480
	}
	return 320, 200
}
