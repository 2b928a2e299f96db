package modes

import (
	"encoding/binary"

	"picohdmi/hw/hwdefs"
)

// Odd rows of CGA-style framebuffers live in a second 8K bank.
const cgaBank = 8192

func cgaRowOffset(y, stride int) int {
	return (y>>1)*stride + (y&1)*cgaBank
}

// 320x200, 2 bits per pixel, leftmost pixel in the high bits.
func decodeCGA4(dst []byte, s *Source, y int) {
	src := s.row(s.Graphics, s.Start+cgaRowOffset(y, 80), 80)
	x := 0
	for _, b := range src {
		for shift := 6; shift >= 0; shift -= 2 {
			c := b >> shift & 3
			dst[x], dst[x+1] = c, c
			x += 2
		}
	}
}

// 640x200, 1 bit per pixel. Set pixels use the brightest of the 16 colours.
func decodeCGA2(dst []byte, s *Source, y int) {
	src := s.row(s.Graphics, s.Start+cgaRowOffset(y, 80), 80)
	expandMono(dst, src)
}

// 640x480, 1 bit per pixel.
func decodeMono640(dst []byte, s *Source, y int) {
	src := s.row(s.Graphics, s.Start+y*80, 80)
	expandMono(dst, src)
}

func expandMono(dst, src []byte) {
	x := 0
	for _, b := range src {
		for bit := 7; bit >= 0; bit-- {
			var c uint8
			if b>>bit&1 != 0 {
				c = 15
			}
			dst[x] = c
			x++
		}
	}
}

// nibbles expands 4-bit pixels, high nibble first, each repeated scale times.
func nibbles(dst, src []byte, scale int) {
	x := 0
	for _, b := range src {
		hi, lo := b>>4, b&0x0F
		for range scale {
			dst[x] = hi
			x++
		}
		for range scale {
			dst[x] = lo
			x++
		}
	}
}

// 160x200, 4 bits per pixel, CGA bank interleave. Each pixel covers 4 columns.
func decodeTGA160(dst []byte, s *Source, y int) {
	src := s.row(s.Graphics, s.Start+cgaRowOffset(y, 80), 80)
	nibbles(dst, src, 4)
}

// 320x200, 4 bits per pixel, four 8K banks selected by the low row bits.
func decodeTGA320(dst []byte, s *Source, y int) {
	src := s.row(s.Graphics, s.Start+(y&3)*cgaBank+(y>>2)*160, 160)
	nibbles(dst, src, 2)
}

// 640x200, 4 bits per pixel, linear.
func decodeTGA640(dst []byte, s *Source, y int) {
	src := s.row(s.Graphics, s.Start+y*320, 320)
	nibbles(dst, src, 1)
}

func clampIndex(c uint8) uint8 {
	if c >= hwdefs.CtrlBase {
		return 0
	}
	return c
}

// 320x200, one byte per pixel.
func decodeVGA256(dst []byte, s *Source, y int) {
	src := s.row(s.Graphics, s.Start+y*320, 320)
	for i, c := range src {
		c = clampIndex(c)
		dst[2*i], dst[2*i+1] = c, c
	}
}

// Unchained 320x200x256: 80 words per row, each word packing 4 consecutive
// pixels with the leftmost in the low byte.
func decodeUnchained(dst []byte, s *Source, y int) {
	src := s.row(s.Graphics, s.Start+y*320, 320)
	for i := range 80 {
		w := binary.LittleEndian.Uint32(src[4*i:])
		for j := range 4 {
			c := clampIndex(uint8(w >> (8 * j)))
			x := 4*i + j
			dst[2*x], dst[2*x+1] = c, c
		}
	}
}
