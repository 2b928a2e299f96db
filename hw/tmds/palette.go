package tmds

import (
	"encoding/binary"

	"picohdmi/emu/log"
	"picohdmi/hw/hwdefs"
)

const (
	// EntrySize is the byte stride of a palette entry: the primary word
	// followed by its balance complement.
	EntrySize = 16

	// TableSize is the size of the full 256-entry table. The table base must
	// be aligned on TableSize, since the address converter ORs the index in.
	TableSize = 256 * EntrySize
)

// Palette is the pre-encoded lookup table translating a palette index into the
// serialized words streamed to the pins. It lives in memory shared with the
// DMA engine and is written in place.
type Palette struct {
	buf    []byte
	layout PinLayout

	// RGB of every programmable slot, to rebuild the table after the pin
	// layout changes or the table memory is reset.
	shadow [hwdefs.NumPaletteSlots]uint32
}

// NewPalette returns a palette backed by buf, which must be at least TableSize
// bytes long. All slots start black.
func NewPalette(buf []byte, l PinLayout) *Palette {
	if len(buf) < TableSize {
		panic("palette buffer too small")
	}
	p := &Palette{buf: buf[:TableSize:TableSize], layout: l}
	p.Rebuild()
	return p
}

// Attach moves the table to buf and re-encodes it there from the RGB shadow.
func (p *Palette) Attach(buf []byte) {
	if len(buf) < TableSize {
		panic("palette buffer too small")
	}
	p.buf = buf[:TableSize:TableSize]
	p.Rebuild()
}

func (p *Palette) Layout() PinLayout { return p.layout }

// SetLayout changes the pin layout. Call Rebuild to re-encode the table.
func (p *Palette) SetLayout(l PinLayout) { p.layout = l }

func (p *Palette) store(index int, primary uint64) {
	off := index * EntrySize
	binary.LittleEndian.PutUint64(p.buf[off:], primary)
	binary.LittleEndian.PutUint64(p.buf[off+8:], primary^DataMask)
}

func (p *Palette) encode(index int, rgb uint32) {
	r := EncodeChannel(uint8(rgb >> 16))
	g := EncodeChannel(uint8(rgb >> 8))
	b := EncodeChannel(uint8(rgb))
	p.store(index, Serialize(r, g, b, p.layout))
}

// Set encodes rgb (0xRRGGBB) into slot index. Indices reserved for control
// symbols are silently ignored.
func (p *Palette) Set(index uint8, rgb uint32) {
	if index >= hwdefs.CtrlBase {
		return
	}
	rgb &= 0xFFFFFF
	p.shadow[index] = rgb
	p.encode(int(index), rgb)
}

// SetBackground sets the colour used for the overscan area.
func (p *Palette) SetBackground(rgb uint32) {
	p.Set(hwdefs.BackgroundIndex, rgb)
}

// Color returns the RGB last set for index, or 0 for reserved indices.
func (p *Palette) Color(index uint8) uint32 {
	if index >= hwdefs.CtrlBase {
		return 0
	}
	return p.shadow[index]
}

// Words returns the two words stored for index.
func (p *Palette) Words(index uint8) (primary, secondary uint64) {
	off := int(index) * EntrySize
	return binary.LittleEndian.Uint64(p.buf[off:]), binary.LittleEndian.Uint64(p.buf[off+8:])
}

// InstallControlSymbols writes the four sync patterns in the reserved slots.
// Both words of a control slot hold the same symbol.
func (p *Palette) InstallControlSymbols() {
	for i, w := range ControlSymbols(p.layout) {
		off := (hwdefs.CtrlBase + i) * EntrySize
		binary.LittleEndian.PutUint64(p.buf[off:], w)
		binary.LittleEndian.PutUint64(p.buf[off+8:], w)
	}
}

// Rebuild re-encodes every slot from the RGB shadow, and the control symbols.
func (p *Palette) Rebuild() {
	for i, rgb := range p.shadow {
		p.encode(i, rgb)
	}
	p.InstallControlSymbols()
	log.ModTMDS.DebugZ("palette rebuilt").
		Stringer("order", p.layout.Order).
		Bool("invert", p.layout.Invert).
		End()
}

// LoadPreset sets slots from colors, starting at 0.
func (p *Palette) LoadPreset(colors []uint32) {
	for i, c := range colors {
		if i >= hwdefs.NumPaletteSlots {
			break
		}
		p.Set(uint8(i), c)
	}
}
