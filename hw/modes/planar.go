package modes

import "encoding/binary"

// Plane de-interleave.
//
// EGA/VGA 16-colour memory stores four bit-planes side by side: each 32-bit
// little-endian word holds one byte of each plane, plane 0 in the low byte.
// The colour of pixel i (0 = leftmost) is bit 7-i of each plane byte, plane 0
// being the least significant bit of the colour.
//
// PackPlanes computes the eight colours of a word at once: Spread8 moves bit i
// of a byte to bit 4*i, so that the four spread planes can be ORed with a
// shift of 0 to 3 into eight nibbles, leftmost pixel in the top nibble.

// Spread8 moves bit i of the low byte of p to bit 4*i.
func Spread8(p uint32) uint32 {
	p = (p | p<<12) & 0x000F000F
	p = (p | p<<6) & 0x03030303
	p = (p | p<<3) & 0x11111111
	return p
}

// PackPlanes converts a word of 4 plane bytes into 8 packed 4-bit colours.
func PackPlanes(w uint32) uint32 {
	return Spread8(w&0xFF) |
		Spread8(w>>8&0xFF)<<1 |
		Spread8(w>>16&0xFF)<<2 |
		Spread8(w>>24)<<3
}

// gatherPlanes is the straightforward version of PackPlanes.
func gatherPlanes(w uint32) uint32 {
	var out uint32
	for i := range 8 {
		var c uint32
		for plane := range 4 {
			c |= (w >> (8*plane + i) & 1) << plane
		}
		out |= c << (4 * i)
	}
	return out
}

// decodePlanar returns a decoder for 4-plane memory with stride bytes per row.
func decodePlanar(stride, scale int) decodeFunc {
	return func(dst []byte, s *Source, y int) {
		src := s.row(s.Graphics, s.Start+y*stride, stride)
		x := 0
		for off := 0; off+4 <= len(src); off += 4 {
			px := PackPlanes(binary.LittleEndian.Uint32(src[off:]))
			for shift := 28; shift >= 0; shift -= 4 {
				c := uint8(px >> shift & 0x0F)
				for range scale {
					dst[x] = c
					x++
				}
			}
		}
	}
}
