package rp2

// PIO opcodes, in bits 15:13 of an instruction.
const (
	opJMP  = 0
	opWAIT = 1
	opIN   = 2
	opOUT  = 3
	opPUSH = 4 // PUSH and PULL share the opcode, bit 7 selects
	opMOV  = 5
	opIRQ  = 6
	opSET  = 7
)

// Source and destination operands.
const (
	SrcDstPins    = 0
	SrcDstX       = 1
	SrcDstY       = 2
	SrcDstNull    = 3
	SrcDstPindirs = 4
	SrcDstExec    = 4 // mov destination
	SrcDstPC      = 5
	SrcDstStatus  = 5 // mov source
	SrcDstISR     = 6
	SrcDstOSR     = 7
	OutDstExec    = 7
)

// JMP conditions.
const (
	JmpAlways = iota
	JmpNotX
	JmpXDec
	JmpNotY
	JmpYDec
	JmpXNotY
	JmpPin
	JmpNotOSRE
)

// MOV operations.
const (
	MovNone = iota
	MovInvert
	MovReverse
)

func encode(op, arg1, arg2 uint16) uint16 {
	return op<<13 | arg1<<5 | arg2&0x1F
}

func bitCount(n uint8) uint16 { return uint16(n) & 0x1F }

func EncodeJmp(cond uint8, addr uint8) uint16 { return encode(opJMP, uint16(cond), uint16(addr)) }

func EncodeIn(src uint8, n uint8) uint16 { return encode(opIN, uint16(src), bitCount(n)) }

func EncodeOut(dst uint8, n uint8) uint16 { return encode(opOUT, uint16(dst), bitCount(n)) }

func EncodePush(ifFull, block bool) uint16 {
	return encode(opPUSH, b2u(ifFull)<<1|b2u(block), 0)
}

func EncodePull(ifEmpty, block bool) uint16 {
	return encode(opPUSH, 4|b2u(ifEmpty)<<1|b2u(block), 0)
}

func EncodeMov(dst, src uint8) uint16 { return encode(opMOV, uint16(dst), uint16(src)) }

func EncodeMovNot(dst, src uint8) uint16 {
	return encode(opMOV, uint16(dst), MovInvert<<3|uint16(src))
}

func EncodeSet(dst uint8, v uint8) uint16 { return encode(opSET, uint16(dst), uint16(v)) }

func EncodeNop() uint16 { return EncodeMov(SrcDstY, SrcDstY) }

// EncodeSideSet returns the delay/side-set field bits for side-set value v
// with count side-set bits (the enable bit included, if optional).
func EncodeSideSet(count, v uint8) uint16 {
	return uint16(v) << (13 - uint16(count))
}

// EncodeDelay returns the delay field bits for a delay of n cycles.
func EncodeDelay(n uint8) uint16 { return uint16(n) << 8 }

func b2u(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// Program is a relocatable PIO program.
type Program struct {
	Name         string
	Instructions []uint16
	Origin       int // fixed load offset, or -1
}

func (p *Program) Len() int { return len(p.Instructions) }
