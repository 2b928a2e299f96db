package modes

// glyphs holds the 8x16 VGA font for codes 0-127, one byte per glyph line,
// leftmost pixel in the most significant bit.
var glyphs = [...]uint8{
	// Character 0 (null)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 1 (smiley)
	0x00, 0x00, 0x7E, 0x81, 0xA5, 0x81, 0x81, 0xBD,
	0x99, 0x81, 0x81, 0x7E, 0x00, 0x00, 0x00, 0x00,
	// Character 2 (inverse smiley)
	0x00, 0x00, 0x7E, 0xFF, 0xDB, 0xFF, 0xFF, 0xC3,
	0xE7, 0xFF, 0xFF, 0x7E, 0x00, 0x00, 0x00, 0x00,
	// Character 3 (heart)
	0x00, 0x00, 0x00, 0x00, 0x6C, 0xFE, 0xFE, 0xFE,
	0xFE, 0x7C, 0x38, 0x10, 0x00, 0x00, 0x00, 0x00,
	// Character 4 (diamond)
	0x00, 0x00, 0x00, 0x00, 0x10, 0x38, 0x7C, 0xFE,
	0x7C, 0x38, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 5 (club)
	0x00, 0x00, 0x00, 0x18, 0x3C, 0x3C, 0xE7, 0xE7,
	0xE7, 0x18, 0x18, 0x3C, 0x00, 0x00, 0x00, 0x00,
	// Character 6 (spade)
	0x00, 0x00, 0x00, 0x18, 0x3C, 0x7E, 0xFF, 0xFF,
	0x7E, 0x18, 0x18, 0x3C, 0x00, 0x00, 0x00, 0x00,
	// Character 7 (bullet)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x18, 0x3C,
	0x3C, 0x18, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 8 (inverse bullet)
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xE7, 0xC3,
	0xC3, 0xE7, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	// Character 9 (ring)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x3C, 0x66, 0x42,
	0x42, 0x66, 0x3C, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 10 (inverse ring)
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xC3, 0x99, 0xBD,
	0xBD, 0x99, 0xC3, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	// Character 11 (male)
	0x00, 0x00, 0x1E, 0x0E, 0x1A, 0x32, 0x78, 0xCC,
	0xCC, 0xCC, 0xCC, 0x78, 0x00, 0x00, 0x00, 0x00,
	// Character 12 (female)
	0x00, 0x00, 0x3C, 0x66, 0x66, 0x66, 0x66, 0x3C,
	0x18, 0x7E, 0x18, 0x18, 0x00, 0x00, 0x00, 0x00,
	// Character 13 (note)
	0x00, 0x00, 0x3F, 0x33, 0x3F, 0x30, 0x30, 0x30,
	0x30, 0x70, 0xF0, 0xE0, 0x00, 0x00, 0x00, 0x00,
	// Character 14 (double note)
	0x00, 0x00, 0x7F, 0x63, 0x7F, 0x63, 0x63, 0x63,
	0x63, 0x67, 0xE7, 0xE6, 0xC0, 0x00, 0x00, 0x00,
	// Character 15 (sun)
	0x00, 0x00, 0x00, 0x18, 0x18, 0xDB, 0x3C, 0xE7,
	0x3C, 0xDB, 0x18, 0x18, 0x00, 0x00, 0x00, 0x00,
	// Character 16 (right triangle)
	0x00, 0x80, 0xC0, 0xE0, 0xF0, 0xF8, 0xFE, 0xF8,
	0xF0, 0xE0, 0xC0, 0x80, 0x00, 0x00, 0x00, 0x00,
	// Character 17 (left triangle)
	0x00, 0x02, 0x06, 0x0E, 0x1E, 0x3E, 0xFE, 0x3E,
	0x1E, 0x0E, 0x06, 0x02, 0x00, 0x00, 0x00, 0x00,
	// Character 18 (up/down arrow)
	0x00, 0x00, 0x18, 0x3C, 0x7E, 0x18, 0x18, 0x18,
	0x7E, 0x3C, 0x18, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 19 (double exclaim)
	0x00, 0x00, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
	0x66, 0x00, 0x66, 0x66, 0x00, 0x00, 0x00, 0x00,
	// Character 20 (paragraph)
	0x00, 0x00, 0x7F, 0xDB, 0xDB, 0xDB, 0x7B, 0x1B,
	0x1B, 0x1B, 0x1B, 0x1B, 0x00, 0x00, 0x00, 0x00,
	// Character 21 (section)
	0x00, 0x7C, 0xC6, 0x60, 0x38, 0x6C, 0xC6, 0xC6,
	0x6C, 0x38, 0x0C, 0xC6, 0x7C, 0x00, 0x00, 0x00,
	// Character 22 (thick underline)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xFE, 0xFE, 0xFE, 0xFE, 0x00, 0x00, 0x00, 0x00,
	// Character 23 (up/down arrow underline)
	0x00, 0x00, 0x18, 0x3C, 0x7E, 0x18, 0x18, 0x18,
	0x7E, 0x3C, 0x18, 0x7E, 0x00, 0x00, 0x00, 0x00,
	// Character 24 (up arrow)
	0x00, 0x00, 0x18, 0x3C, 0x7E, 0x18, 0x18, 0x18,
	0x18, 0x18, 0x18, 0x18, 0x00, 0x00, 0x00, 0x00,
	// Character 25 (down arrow)
	0x00, 0x00, 0x18, 0x18, 0x18, 0x18, 0x18, 0x18,
	0x18, 0x7E, 0x3C, 0x18, 0x00, 0x00, 0x00, 0x00,
	// Character 26 (right arrow)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x18, 0x0C, 0xFE,
	0x0C, 0x18, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 27 (left arrow)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x30, 0x60, 0xFE,
	0x60, 0x30, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 28 (right angle)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC0, 0xC0,
	0xC0, 0xFE, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 29 (left-right arrow)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x24, 0x66, 0xFF,
	0x66, 0x24, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 30 (up triangle)
	0x00, 0x00, 0x00, 0x00, 0x10, 0x38, 0x38, 0x7C,
	0x7C, 0xFE, 0xFE, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 31 (down triangle)
	0x00, 0x00, 0x00, 0x00, 0xFE, 0xFE, 0x7C, 0x7C,
	0x38, 0x38, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 32 (space)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 33 (!)
	0x00, 0x00, 0x18, 0x3C, 0x3C, 0x3C, 0x18, 0x18,
	0x18, 0x00, 0x18, 0x18, 0x00, 0x00, 0x00, 0x00,
	// Character 34 (")
	0x00, 0x66, 0x66, 0x66, 0x24, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 35 (#)
	0x00, 0x00, 0x00, 0x6C, 0x6C, 0xFE, 0x6C, 0x6C,
	0x6C, 0xFE, 0x6C, 0x6C, 0x00, 0x00, 0x00, 0x00,
	// Character 36 ($)
	0x18, 0x18, 0x7C, 0xC6, 0xC2, 0xC0, 0x7C, 0x06,
	0x06, 0x86, 0xC6, 0x7C, 0x18, 0x18, 0x00, 0x00,
	// Character 37 (%)
	0x00, 0x00, 0x00, 0x00, 0xC2, 0xC6, 0x0C, 0x18,
	0x30, 0x60, 0xC6, 0x86, 0x00, 0x00, 0x00, 0x00,
	// Character 38 (&)
	0x00, 0x00, 0x38, 0x6C, 0x6C, 0x38, 0x76, 0xDC,
	0xCC, 0xCC, 0xCC, 0x76, 0x00, 0x00, 0x00, 0x00,
	// Character 39 (')
	0x00, 0x30, 0x30, 0x30, 0x60, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 40 (()
	0x00, 0x00, 0x0C, 0x18, 0x30, 0x30, 0x30, 0x30,
	0x30, 0x30, 0x18, 0x0C, 0x00, 0x00, 0x00, 0x00,
	// Character 41 ())
	0x00, 0x00, 0x30, 0x18, 0x0C, 0x0C, 0x0C, 0x0C,
	0x0C, 0x0C, 0x18, 0x30, 0x00, 0x00, 0x00, 0x00,
	// Character 42 (*)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x66, 0x3C, 0xFF,
	0x3C, 0x66, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 43 (+)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x18, 0x18, 0x7E,
	0x18, 0x18, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 44 (,)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x18, 0x18, 0x18, 0x30, 0x00, 0x00, 0x00,
	// Character 45 (-)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFE,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 46 (.)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x18, 0x18, 0x00, 0x00, 0x00, 0x00,
	// Character 47 (/)
	0x00, 0x00, 0x00, 0x00, 0x02, 0x06, 0x0C, 0x18,
	0x30, 0x60, 0xC0, 0x80, 0x00, 0x00, 0x00, 0x00,
	// Character 48 (0)
	0x00, 0x00, 0x3C, 0x66, 0xC3, 0xC3, 0xDB, 0xDB,
	0xC3, 0xC3, 0x66, 0x3C, 0x00, 0x00, 0x00, 0x00,
	// Character 49 (1)
	0x00, 0x00, 0x18, 0x38, 0x78, 0x18, 0x18, 0x18,
	0x18, 0x18, 0x18, 0x7E, 0x00, 0x00, 0x00, 0x00,
	// Character 50 (2)
	0x00, 0x00, 0x7C, 0xC6, 0x06, 0x0C, 0x18, 0x30,
	0x60, 0xC0, 0xC6, 0xFE, 0x00, 0x00, 0x00, 0x00,
	// Character 51 (3)
	0x00, 0x00, 0x7C, 0xC6, 0x06, 0x06, 0x3C, 0x06,
	0x06, 0x06, 0xC6, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 52 (4)
	0x00, 0x00, 0x0C, 0x1C, 0x3C, 0x6C, 0xCC, 0xFE,
	0x0C, 0x0C, 0x0C, 0x1E, 0x00, 0x00, 0x00, 0x00,
	// Character 53 (5)
	0x00, 0x00, 0xFE, 0xC0, 0xC0, 0xC0, 0xFC, 0x06,
	0x06, 0x06, 0xC6, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 54 (6)
	0x00, 0x00, 0x38, 0x60, 0xC0, 0xC0, 0xFC, 0xC6,
	0xC6, 0xC6, 0xC6, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 55 (7)
	0x00, 0x00, 0xFE, 0xC6, 0x06, 0x06, 0x0C, 0x18,
	0x30, 0x30, 0x30, 0x30, 0x00, 0x00, 0x00, 0x00,
	// Character 56 (8)
	0x00, 0x00, 0x7C, 0xC6, 0xC6, 0xC6, 0x7C, 0xC6,
	0xC6, 0xC6, 0xC6, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 57 (9)
	0x00, 0x00, 0x7C, 0xC6, 0xC6, 0xC6, 0x7E, 0x06,
	0x06, 0x06, 0x0C, 0x78, 0x00, 0x00, 0x00, 0x00,
	// Character 58 (:)
	0x00, 0x00, 0x00, 0x00, 0x18, 0x18, 0x00, 0x00,
	0x00, 0x18, 0x18, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 59 (;)
	0x00, 0x00, 0x00, 0x00, 0x18, 0x18, 0x00, 0x00,
	0x00, 0x18, 0x18, 0x30, 0x00, 0x00, 0x00, 0x00,
	// Character 60 (<)
	0x00, 0x00, 0x00, 0x06, 0x0C, 0x18, 0x30, 0x60,
	0x30, 0x18, 0x0C, 0x06, 0x00, 0x00, 0x00, 0x00,
	// Character 61 (=)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x7E, 0x00, 0x00,
	0x7E, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 62 (>)
	0x00, 0x00, 0x00, 0x60, 0x30, 0x18, 0x0C, 0x06,
	0x0C, 0x18, 0x30, 0x60, 0x00, 0x00, 0x00, 0x00,
	// Character 63 (?)
	0x00, 0x00, 0x7C, 0xC6, 0xC6, 0x0C, 0x18, 0x18,
	0x18, 0x00, 0x18, 0x18, 0x00, 0x00, 0x00, 0x00,
	// Character 64 (@)
	0x00, 0x00, 0x00, 0x7C, 0xC6, 0xC6, 0xDE, 0xDE,
	0xDE, 0xDC, 0xC0, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 65 (A)
	0x00, 0x00, 0x10, 0x38, 0x6C, 0xC6, 0xC6, 0xFE,
	0xC6, 0xC6, 0xC6, 0xC6, 0x00, 0x00, 0x00, 0x00,
	// Character 66 (B)
	0x00, 0x00, 0xFC, 0x66, 0x66, 0x66, 0x7C, 0x66,
	0x66, 0x66, 0x66, 0xFC, 0x00, 0x00, 0x00, 0x00,
	// Character 67 (C)
	0x00, 0x00, 0x3C, 0x66, 0xC2, 0xC0, 0xC0, 0xC0,
	0xC0, 0xC2, 0x66, 0x3C, 0x00, 0x00, 0x00, 0x00,
	// Character 68 (D)
	0x00, 0x00, 0xF8, 0x6C, 0x66, 0x66, 0x66, 0x66,
	0x66, 0x66, 0x6C, 0xF8, 0x00, 0x00, 0x00, 0x00,
	// Character 69 (E)
	0x00, 0x00, 0xFE, 0x66, 0x62, 0x68, 0x78, 0x68,
	0x60, 0x62, 0x66, 0xFE, 0x00, 0x00, 0x00, 0x00,
	// Character 70 (F)
	0x00, 0x00, 0xFE, 0x66, 0x62, 0x68, 0x78, 0x68,
	0x60, 0x60, 0x60, 0xF0, 0x00, 0x00, 0x00, 0x00,
	// Character 71 (G)
	0x00, 0x00, 0x3C, 0x66, 0xC2, 0xC0, 0xC0, 0xDE,
	0xC6, 0xC6, 0x66, 0x3A, 0x00, 0x00, 0x00, 0x00,
	// Character 72 (H)
	0x00, 0x00, 0xC6, 0xC6, 0xC6, 0xC6, 0xFE, 0xC6,
	0xC6, 0xC6, 0xC6, 0xC6, 0x00, 0x00, 0x00, 0x00,
	// Character 73 (I)
	0x00, 0x00, 0x3C, 0x18, 0x18, 0x18, 0x18, 0x18,
	0x18, 0x18, 0x18, 0x3C, 0x00, 0x00, 0x00, 0x00,
	// Character 74 (J)
	0x00, 0x00, 0x1E, 0x0C, 0x0C, 0x0C, 0x0C, 0x0C,
	0xCC, 0xCC, 0xCC, 0x78, 0x00, 0x00, 0x00, 0x00,
	// Character 75 (K)
	0x00, 0x00, 0xE6, 0x66, 0x66, 0x6C, 0x78, 0x78,
	0x6C, 0x66, 0x66, 0xE6, 0x00, 0x00, 0x00, 0x00,
	// Character 76 (L)
	0x00, 0x00, 0xF0, 0x60, 0x60, 0x60, 0x60, 0x60,
	0x60, 0x62, 0x66, 0xFE, 0x00, 0x00, 0x00, 0x00,
	// Character 77 (M)
	0x00, 0x00, 0xC3, 0xE7, 0xFF, 0xFF, 0xDB, 0xC3,
	0xC3, 0xC3, 0xC3, 0xC3, 0x00, 0x00, 0x00, 0x00,
	// Character 78 (N)
	0x00, 0x00, 0xC6, 0xE6, 0xF6, 0xFE, 0xDE, 0xCE,
	0xC6, 0xC6, 0xC6, 0xC6, 0x00, 0x00, 0x00, 0x00,
	// Character 79 (O)
	0x00, 0x00, 0x7C, 0xC6, 0xC6, 0xC6, 0xC6, 0xC6,
	0xC6, 0xC6, 0xC6, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 80 (P)
	0x00, 0x00, 0xFC, 0x66, 0x66, 0x66, 0x7C, 0x60,
	0x60, 0x60, 0x60, 0xF0, 0x00, 0x00, 0x00, 0x00,
	// Character 81 (Q)
	0x00, 0x00, 0x7C, 0xC6, 0xC6, 0xC6, 0xC6, 0xC6,
	0xC6, 0xD6, 0xDE, 0x7C, 0x0C, 0x0E, 0x00, 0x00,
	// Character 82 (R)
	0x00, 0x00, 0xFC, 0x66, 0x66, 0x66, 0x7C, 0x6C,
	0x66, 0x66, 0x66, 0xE6, 0x00, 0x00, 0x00, 0x00,
	// Character 83 (S)
	0x00, 0x00, 0x7C, 0xC6, 0xC6, 0x60, 0x38, 0x0C,
	0x06, 0xC6, 0xC6, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 84 (T)
	0x00, 0x00, 0xFF, 0xDB, 0x99, 0x18, 0x18, 0x18,
	0x18, 0x18, 0x18, 0x3C, 0x00, 0x00, 0x00, 0x00,
	// Character 85 (U)
	0x00, 0x00, 0xC6, 0xC6, 0xC6, 0xC6, 0xC6, 0xC6,
	0xC6, 0xC6, 0xC6, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 86 (V)
	0x00, 0x00, 0xC3, 0xC3, 0xC3, 0xC3, 0xC3, 0xC3,
	0xC3, 0x66, 0x3C, 0x18, 0x00, 0x00, 0x00, 0x00,
	// Character 87 (W)
	0x00, 0x00, 0xC3, 0xC3, 0xC3, 0xC3, 0xC3, 0xDB,
	0xDB, 0xFF, 0x66, 0x66, 0x00, 0x00, 0x00, 0x00,
	// Character 88 (X)
	0x00, 0x00, 0xC3, 0xC3, 0x66, 0x3C, 0x18, 0x18,
	0x3C, 0x66, 0xC3, 0xC3, 0x00, 0x00, 0x00, 0x00,
	// Character 89 (Y)
	0x00, 0x00, 0xC3, 0xC3, 0xC3, 0x66, 0x3C, 0x18,
	0x18, 0x18, 0x18, 0x3C, 0x00, 0x00, 0x00, 0x00,
	// Character 90 (Z)
	0x00, 0x00, 0xFF, 0xC3, 0x86, 0x0C, 0x18, 0x30,
	0x60, 0xC1, 0xC3, 0xFF, 0x00, 0x00, 0x00, 0x00,
	// Character 91 ([)
	0x00, 0x00, 0x3C, 0x30, 0x30, 0x30, 0x30, 0x30,
	0x30, 0x30, 0x30, 0x3C, 0x00, 0x00, 0x00, 0x00,
	// Character 92 (\)
	0x00, 0x00, 0x00, 0x80, 0xC0, 0xE0, 0x70, 0x38,
	0x1C, 0x0E, 0x06, 0x02, 0x00, 0x00, 0x00, 0x00,
	// Character 93 (])
	0x00, 0x00, 0x3C, 0x0C, 0x0C, 0x0C, 0x0C, 0x0C,
	0x0C, 0x0C, 0x0C, 0x3C, 0x00, 0x00, 0x00, 0x00,
	// Character 94 (^)
	0x10, 0x38, 0x6C, 0xC6, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 95 (_)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x00, 0x00,
	// Character 96 (`)
	0x30, 0x30, 0x18, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 97 (a)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x78, 0x0C, 0x7C,
	0xCC, 0xCC, 0xCC, 0x76, 0x00, 0x00, 0x00, 0x00,
	// Character 98 (b)
	0x00, 0x00, 0xE0, 0x60, 0x60, 0x78, 0x6C, 0x66,
	0x66, 0x66, 0x66, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 99 (c)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x7C, 0xC6, 0xC0,
	0xC0, 0xC0, 0xC6, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 100 (d)
	0x00, 0x00, 0x1C, 0x0C, 0x0C, 0x3C, 0x6C, 0xCC,
	0xCC, 0xCC, 0xCC, 0x76, 0x00, 0x00, 0x00, 0x00,
	// Character 101 (e)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x7C, 0xC6, 0xFE,
	0xC0, 0xC0, 0xC6, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 102 (f)
	0x00, 0x00, 0x38, 0x6C, 0x64, 0x60, 0xF0, 0x60,
	0x60, 0x60, 0x60, 0xF0, 0x00, 0x00, 0x00, 0x00,
	// Character 103 (g)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x76, 0xCC, 0xCC,
	0xCC, 0xCC, 0xCC, 0x7C, 0x0C, 0xCC, 0x78, 0x00,
	// Character 104 (h)
	0x00, 0x00, 0xE0, 0x60, 0x60, 0x6C, 0x76, 0x66,
	0x66, 0x66, 0x66, 0xE6, 0x00, 0x00, 0x00, 0x00,
	// Character 105 (i)
	0x00, 0x00, 0x18, 0x18, 0x00, 0x38, 0x18, 0x18,
	0x18, 0x18, 0x18, 0x3C, 0x00, 0x00, 0x00, 0x00,
	// Character 106 (j)
	0x00, 0x00, 0x06, 0x06, 0x00, 0x0E, 0x06, 0x06,
	0x06, 0x06, 0x06, 0x06, 0x66, 0x66, 0x3C, 0x00,
	// Character 107 (k)
	0x00, 0x00, 0xE0, 0x60, 0x60, 0x66, 0x6C, 0x78,
	0x78, 0x6C, 0x66, 0xE6, 0x00, 0x00, 0x00, 0x00,
	// Character 108 (l)
	0x00, 0x00, 0x38, 0x18, 0x18, 0x18, 0x18, 0x18,
	0x18, 0x18, 0x18, 0x3C, 0x00, 0x00, 0x00, 0x00,
	// Character 109 (m)
	0x00, 0x00, 0x00, 0x00, 0x00, 0xE6, 0xFF, 0xDB,
	0xDB, 0xDB, 0xDB, 0xDB, 0x00, 0x00, 0x00, 0x00,
	// Character 110 (n)
	0x00, 0x00, 0x00, 0x00, 0x00, 0xDC, 0x66, 0x66,
	0x66, 0x66, 0x66, 0x66, 0x00, 0x00, 0x00, 0x00,
	// Character 111 (o)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x7C, 0xC6, 0xC6,
	0xC6, 0xC6, 0xC6, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 112 (p)
	0x00, 0x00, 0x00, 0x00, 0x00, 0xDC, 0x66, 0x66,
	0x66, 0x66, 0x66, 0x7C, 0x60, 0x60, 0xF0, 0x00,
	// Character 113 (q)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x76, 0xCC, 0xCC,
	0xCC, 0xCC, 0xCC, 0x7C, 0x0C, 0x0C, 0x1E, 0x00,
	// Character 114 (r)
	0x00, 0x00, 0x00, 0x00, 0x00, 0xDC, 0x76, 0x66,
	0x60, 0x60, 0x60, 0xF0, 0x00, 0x00, 0x00, 0x00,
	// Character 115 (s)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x7C, 0xC6, 0x60,
	0x38, 0x0C, 0xC6, 0x7C, 0x00, 0x00, 0x00, 0x00,
	// Character 116 (t)
	0x00, 0x00, 0x10, 0x30, 0x30, 0xFC, 0x30, 0x30,
	0x30, 0x30, 0x36, 0x1C, 0x00, 0x00, 0x00, 0x00,
	// Character 117 (u)
	0x00, 0x00, 0x00, 0x00, 0x00, 0xCC, 0xCC, 0xCC,
	0xCC, 0xCC, 0xCC, 0x76, 0x00, 0x00, 0x00, 0x00,
	// Character 118 (v)
	0x00, 0x00, 0x00, 0x00, 0x00, 0xC3, 0xC3, 0xC3,
	0xC3, 0x66, 0x3C, 0x18, 0x00, 0x00, 0x00, 0x00,
	// Character 119 (w)
	0x00, 0x00, 0x00, 0x00, 0x00, 0xC3, 0xC3, 0xC3,
	0xDB, 0xDB, 0xFF, 0x66, 0x00, 0x00, 0x00, 0x00,
	// Character 120 (x)
	0x00, 0x00, 0x00, 0x00, 0x00, 0xC3, 0x66, 0x3C,
	0x18, 0x3C, 0x66, 0xC3, 0x00, 0x00, 0x00, 0x00,
	// Character 121 (y)
	0x00, 0x00, 0x00, 0x00, 0x00, 0xC6, 0xC6, 0xC6,
	0xC6, 0xC6, 0xC6, 0x7E, 0x06, 0x0C, 0xF8, 0x00,
	// Character 122 (z)
	0x00, 0x00, 0x00, 0x00, 0x00, 0xFE, 0xCC, 0x18,
	0x30, 0x60, 0xC6, 0xFE, 0x00, 0x00, 0x00, 0x00,
	// Character 123 ({)
	0x00, 0x00, 0x0E, 0x18, 0x18, 0x18, 0x70, 0x18,
	0x18, 0x18, 0x18, 0x0E, 0x00, 0x00, 0x00, 0x00,
	// Character 124 (|)
	0x00, 0x00, 0x18, 0x18, 0x18, 0x18, 0x00, 0x18,
	0x18, 0x18, 0x18, 0x18, 0x00, 0x00, 0x00, 0x00,
	// Character 125 (})
	0x00, 0x00, 0x70, 0x18, 0x18, 0x18, 0x0E, 0x18,
	0x18, 0x18, 0x18, 0x70, 0x00, 0x00, 0x00, 0x00,
	// Character 126 (~)
	0x00, 0x00, 0x76, 0xDC, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	// Character 127 (DEL - block)
	0x00, 0x00, 0x00, 0x00, 0x10, 0x38, 0x6C, 0xC6,
	0xC6, 0xC6, 0xFE, 0x00, 0x00, 0x00, 0x00, 0x00,
}
