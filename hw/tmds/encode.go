// Package tmds implements the 8b/10b transition-minimized encoding used on
// DVI links, and the packing of three encoded lanes into the 6-bit parallel
// units shifted out to the differential pin pairs.
package tmds

import (
	"math/bits"

	"picohdmi/hw/hwdefs"
)

// EncodeChannel encodes one 8-bit colour component into a 10-bit symbol.
//
// Running disparity is assumed to be zero before every symbol: each symbol is
// always followed on the wire by its exact complement, so the link is balanced
// over every pair of symbols.
func EncodeChannel(b uint8) uint16 {
	ones := bits.OnesCount8(b)
	xnor := ones > 4 || ones == 4 && b&1 == 0

	q := uint16(b & 1)
	prev := q
	for i := 1; i < 8; i++ {
		cur := uint16(b>>i) & 1
		enc := prev ^ cur
		if xnor {
			enc ^= 1
		}
		q |= enc << i
		prev = enc
	}

	if xnor {
		return q ^ 0xFF | 1<<9
	}
	return q | 1<<8
}

// DecodeChannel is the receiver side of EncodeChannel. It does not recognize
// control symbols, see ControlCode for that.
func DecodeChannel(sym uint16) uint8 {
	q := sym & 0xFF
	if sym&(1<<9) != 0 {
		q ^= 0xFF
	}
	xor := sym&(1<<8) != 0

	d := q & 1
	for i := 1; i < 8; i++ {
		b := (q>>i ^ q>>(i-1)) & 1
		if !xor {
			b ^= 1
		}
		d |= b << i
	}
	return uint8(d)
}

// PinLayout describes how the three lanes are wired to the data pins.
type PinLayout struct {
	Order  hwdefs.ChannelOrder
	Invert bool // swap the two pins of every differential pair
}

// DataMask covers the 60 data bits of a serialized word. Bits 30, 31, 62 and
// 63 are never shifted out and always read as zero.
const DataMask uint64 = 0x3FFFFFFF_3FFFFFFF

func (l PinLayout) pair(bit uint16) uint64 {
	p := uint64(bit | (bit^1)<<1)
	if l.Invert {
		p ^= 0b11
	}
	return p
}

func (l PinLayout) unit(r, g, b uint16) uint64 {
	if l.Order == hwdefs.BGR {
		r, b = b, r
	}
	return l.pair(r)<<4 | l.pair(g)<<2 | l.pair(b)
}

// Serialize interleaves three 10-bit symbols into the 64-bit word consumed by
// the serializer state machine, two 30-bit halves of five 6-bit units each.
// With the state machine shifting right, symbol bit 0 is output first.
func Serialize(r, g, b uint16, l PinLayout) uint64 {
	var w uint64
	for i := range 10 {
		w <<= 6
		if i == 5 {
			w <<= 2
		}
		n := 9 - i
		w |= l.unit(r>>n&1, g>>n&1, b>>n&1)
	}
	return w
}

// Unit decodes one 6-bit unit as sampled on the data pins into one bit per
// lane. ok is false if any pair is not complementary.
func (l PinLayout) Unit(u uint8) (r, g, b uint16, ok bool) {
	lane := func(p uint8) (uint16, bool) {
		if l.Invert {
			p ^= 0b11
		}
		return uint16(p & 1), p == 0b01 || p == 0b10
	}
	var okr, okg, okb bool
	r, okr = lane(u >> 4 & 3)
	g, okg = lane(u >> 2 & 3)
	b, okb = lane(u & 3)
	if l.Order == hwdefs.BGR {
		r, b = b, r
	}
	return r, g, b, okr && okg && okb
}

// Deserialize is the inverse of Serialize.
func Deserialize(w uint64, l PinLayout) (r, g, b uint16, ok bool) {
	ok = w&^DataMask == 0
	for k := range 10 {
		// symbol bit k sits in the (9-k)th unit
		i := 9 - k
		shift := 6 * (9 - i)
		if i < 5 {
			shift += 2
		}
		ur, ug, ub, uok := l.Unit(uint8(w >> shift & 0x3F))
		ok = ok && uok
		r |= ur << k
		g |= ug << k
		b |= ub << k
	}
	return r, g, b, ok
}
