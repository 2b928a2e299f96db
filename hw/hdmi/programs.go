package hdmi

import "picohdmi/hw/rp2"

// Side-set values on the two clock pins.
const (
	clockHigh = 2
	clockLow  = 1
)

// serializerProgram shifts out one 10-bit symbol on the three lanes per
// pixel: ten 6-bit units, the clock pair high for the first five.
var serializerProgram = func() *rp2.Program {
	p := &rp2.Program{Name: "tmds-serializer", Origin: -1}
	for i := range 10 {
		side := uint8(clockHigh)
		if i >= 5 {
			side = clockLow
		}
		p.Instructions = append(p.Instructions, rp2.EncodeOut(rp2.SrcDstPins, 6)|rp2.EncodeSideSet(2, side))
	}
	return p
}()

// converterProgram turns a palette index into the address of its table entry:
// X holds the table base >> 12, so each pushed word is base | index<<4.
var converterProgram = &rp2.Program{
	Name: "palette-address",
	Instructions: []uint16{
		rp2.EncodePull(false, true),
		rp2.EncodeIn(rp2.SrcDstOSR, 8),
		rp2.EncodeIn(rp2.SrcDstX, 20),
		rp2.EncodePush(false, true),
	},
	Origin: -1,
}

// loadX preloads the X register of a state machine through its TX FIFO.
func loadX(p *rp2.PIO, sm int, v uint32) {
	p.Exec(sm, rp2.EncodeSet(rp2.SrcDstX, 0))
	p.Exec(sm, rp2.EncodeMov(rp2.SrcDstISR, rp2.SrcDstNull))
	p.ClearFIFOs(sm)
	p.Put(sm, v)
	p.Exec(sm, rp2.EncodePull(false, false))
	p.Exec(sm, rp2.EncodeMov(rp2.SrcDstX, rp2.SrcDstOSR))
}
