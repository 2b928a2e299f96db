package emu

// LoadTestPattern fills video memory with content visible in every mode: the
// full character set over all attribute combinations in the text buffer, and
// diagonal bands cycling through the palette in the framebuffer.
func (m *Machine) LoadTestPattern() {
	for i := 0; i+1 < len(m.Text); i += 2 {
		cell := i / 2
		fg, bg := uint8(cell%16), uint8(cell/16%8)
		m.Text[i] = uint8(cell)
		m.Text[i+1] = bg<<4 | fg
	}
	for i := range m.VRAM {
		m.VRAM[i] = uint8(i%320 + i/320)
	}
	m.Video.SetCursor(0, 24)
}
