package modes

// Character codes above 127 are not in the font table, they show as a block.
const blockGlyph = 0x7E

func glyphRow(ch uint8, line int) uint8 {
	if int(ch) < len(glyphs)/16 {
		return glyphs[int(ch)*16+line]
	}
	if line >= 2 && line < 14 {
		return blockGlyph
	}
	return 0
}

// decodeText returns a decoder for a text mode of cols columns of
// (character, attribute) pairs. scale is the horizontal pixel repeat.
func decodeText(cols, scale int) decodeFunc {
	return func(dst []byte, s *Source, y int) {
		row, line := y/16, y%16
		cells := s.row(s.Text, s.Start+row*cols*2, cols*2)

		cur := s.Cursor
		onCursorLine := s.BlinkPhase && !cur.Hidden &&
			row == cur.Row && line >= cur.Top && line <= cur.Bottom

		x := 0
		for col := range cols {
			ch, attr := cells[2*col], cells[2*col+1]
			bits := glyphRow(ch, line)
			fg, bg := attr&0x0F, attr>>4

			switch {
			case s.Blinking && attr&0x80 != 0:
				bg &= 0x07
				if s.BlinkPhase {
					bits = 0
				}
			case onCursorLine && col == cur.Col:
				bits = 0xFF
			}

			for bit := 7; bit >= 0; bit-- {
				c := bg
				if bits>>bit&1 != 0 {
					c = fg
				}
				for range scale {
					dst[x] = c
					x++
				}
			}
		}
	}
}
