package rp2

import (
	"errors"
	"fmt"

	"picohdmi/emu/log"
	"picohdmi/hw/hwio"
)

const (
	NumStateMachines = 4
	InstrMemSize     = 32
	fifoDepth        = 4
)

var (
	ErrNoProgramSpace     = errors.New("no PIO program space")
	ErrNoFreeStateMachine = errors.New("no free PIO state machine")
)

// Register offsets relative to the PIO block base.
const (
	PIOCtrl  = 0x000
	PIOFstat = 0x004
	PIOFlvl  = 0x00C
	PIOTxf0  = 0x010
	PIORxf0  = 0x020
	PIOIrq   = 0x030
)

type FIFOJoin uint8

const (
	JoinNone FIFOJoin = iota
	JoinTX
	JoinRX
)

// SMConfig holds the execution and pin configuration of a state machine.
type SMConfig struct {
	ClkDivInt  uint16
	ClkDivFrac uint8

	WrapTarget, Wrap uint8

	SidesetBase  uint8
	SidesetCount uint8 // including the enable bit when optional
	SidesetOpt   bool
	SidesetDirs  bool

	OutBase, OutCount uint8
	SetBase, SetCount uint8
	InBase            uint8
	JmpPin            uint8

	InShiftRight  bool
	Autopush      bool
	PushThreshold uint8 // 0 means 32

	OutShiftRight bool
	Autopull      bool
	PullThreshold uint8 // 0 means 32

	Join FIFOJoin
}

// DefaultSMConfig returns the reset configuration: full speed, wrapping over
// the whole instruction memory, right shifts with 32-bit thresholds.
func DefaultSMConfig() SMConfig {
	return SMConfig{
		ClkDivInt:     1,
		Wrap:          InstrMemSize - 1,
		InShiftRight:  true,
		OutShiftRight: true,
		SetCount:      5,
	}
}

func (c *SMConfig) SetWrap(target, wrap uint8) { c.WrapTarget, c.Wrap = target, wrap }

func (c *SMConfig) SetSideset(base, count uint8, optional, pindirs bool) {
	c.SidesetBase, c.SidesetCount, c.SidesetOpt, c.SidesetDirs = base, count, optional, pindirs
}

func (c *SMConfig) SetOutPins(base, count uint8) { c.OutBase, c.OutCount = base, count }

func (c *SMConfig) SetInShift(right, autopush bool, threshold uint8) {
	c.InShiftRight, c.Autopush, c.PushThreshold = right, autopush, threshold&31
}

func (c *SMConfig) SetOutShift(right, autopull bool, threshold uint8) {
	c.OutShiftRight, c.Autopull, c.PullThreshold = right, autopull, threshold&31
}

// SetClkDiv sets a fractional clock divider, 1 <= div < 65536.
func (c *SMConfig) SetClkDiv(div float64) {
	if div < 1 {
		div = 1
	}
	c.ClkDivInt = uint16(div)
	c.ClkDivFrac = uint8((div - float64(c.ClkDivInt)) * 256)
}

func (c *SMConfig) divider() uint32 {
	return uint32(c.ClkDivInt)<<8 | uint32(c.ClkDivFrac)
}

func threshold(t uint8) uint8 {
	if t == 0 {
		return 32
	}
	return t
}

// PIO is a programmable I/O block with four state machines sharing 32
// instruction slots.
type PIO struct {
	CTRL   hwio.Reg32 `hwio:"offset=0x000,rwmask=0xF,wcb"`
	FSTAT  hwio.Reg32 `hwio:"offset=0x004,readonly,rcb"`
	FLEVEL hwio.Reg32 `hwio:"offset=0x00C,readonly,rcb"`
	TXF0   hwio.Reg32 `hwio:"offset=0x010,writeonly,wcb"`
	TXF1   hwio.Reg32 `hwio:"offset=0x014,writeonly,wcb"`
	TXF2   hwio.Reg32 `hwio:"offset=0x018,writeonly,wcb"`
	TXF3   hwio.Reg32 `hwio:"offset=0x01C,writeonly,wcb"`
	RXF0   hwio.Reg32 `hwio:"offset=0x020,readonly,rcb"`
	RXF1   hwio.Reg32 `hwio:"offset=0x024,readonly,rcb"`
	RXF2   hwio.Reg32 `hwio:"offset=0x028,readonly,rcb"`
	RXF3   hwio.Reg32 `hwio:"offset=0x02C,readonly,rcb"`
	IRQ    hwio.Reg32 `hwio:"offset=0x030,rcb,wcb"`

	SM [NumStateMachines]StateMachine

	num      int
	gpio     *GPIO
	instr    [InstrMemSize]uint16
	used     uint32
	claimed  uint8
	irqFlags uint8
}

func (p *PIO) init(num int, gpio *GPIO) {
	p.num, p.gpio = num, gpio
	hwio.MustInitRegs(p)
	for i := range p.SM {
		p.SM[i] = StateMachine{pio: p, num: i, cfg: DefaultSMConfig()}
		p.SM[i].ClearFIFOs()
		p.SM[i].restart()
	}
}

func (p *PIO) Base() uint32 {
	if p.num == 0 {
		return PIO0Base
	}
	return PIO1Base
}

func (p *PIO) Num() int { return p.num }

// TXF returns the bus address of the TX FIFO of state machine sm.
func (p *PIO) TXF(sm int) uint32 { return p.Base() + PIOTxf0 + 4*uint32(sm) }

// RXF returns the bus address of the RX FIFO of state machine sm.
func (p *PIO) RXF(sm int) uint32 { return p.Base() + PIORxf0 + 4*uint32(sm) }

// DreqTX returns the DREQ number pacing writes to the TX FIFO of sm.
func (p *PIO) DreqTX(sm int) uint32 { return uint32(p.num*8 + sm) }

// DreqRX returns the DREQ number pacing reads from the RX FIFO of sm.
func (p *PIO) DreqRX(sm int) uint32 { return uint32(p.num*8 + 4 + sm) }

// dreq reports the level of local DREQ line n (0-3 TX, 4-7 RX).
func (p *PIO) dreq(n uint32) bool {
	if n < 4 {
		return !p.SM[n].tx.full()
	}
	return !p.SM[n-4].rx.empty()
}

func (p *PIO) WriteCTRL(_, val uint32) {
	for i := range p.SM {
		sm := &p.SM[i]
		on := val&(1<<i) != 0
		if on != sm.enabled {
			log.ModPIO.DebugZ("state machine").
				Int("pio", p.num).
				Int("sm", i).
				Bool("enabled", on).
				End()
		}
		sm.enabled = on
	}
}

func (p *PIO) ReadFSTAT(uint32) uint32 {
	var v uint32
	for i := range p.SM {
		sm := &p.SM[i]
		if sm.rx.full() {
			v |= 1 << i
		}
		if sm.rx.empty() {
			v |= 1 << (8 + i)
		}
		if sm.tx.full() {
			v |= 1 << (16 + i)
		}
		if sm.tx.empty() {
			v |= 1 << (24 + i)
		}
	}
	return v
}

func (p *PIO) ReadFLEVEL(uint32) uint32 {
	var v uint32
	for i := range p.SM {
		v |= uint32(p.SM[i].tx.n&0xF) << (8 * i)
		v |= uint32(p.SM[i].rx.n&0xF) << (8*i + 4)
	}
	return v
}

func (p *PIO) WriteTXF0(_, val uint32) { p.SM[0].push(val) }
func (p *PIO) WriteTXF1(_, val uint32) { p.SM[1].push(val) }
func (p *PIO) WriteTXF2(_, val uint32) { p.SM[2].push(val) }
func (p *PIO) WriteTXF3(_, val uint32) { p.SM[3].push(val) }

func (p *PIO) ReadRXF0(uint32) uint32 { return p.SM[0].pop() }
func (p *PIO) ReadRXF1(uint32) uint32 { return p.SM[1].pop() }
func (p *PIO) ReadRXF2(uint32) uint32 { return p.SM[2].pop() }
func (p *PIO) ReadRXF3(uint32) uint32 { return p.SM[3].pop() }

func (p *PIO) ReadIRQ(uint32) uint32 { return uint32(p.irqFlags) }

func (p *PIO) WriteIRQ(_, val uint32) { p.irqFlags &^= uint8(val) }

func (p *PIO) tick() {
	for i := range p.SM {
		if sm := &p.SM[i]; sm.enabled {
			sm.clock()
		}
	}
}

func programMask(prog *Program) uint32 {
	return uint32(1)<<prog.Len() - 1
}

func (p *PIO) findOffset(prog *Program) int {
	mask := programMask(prog)
	if prog.Origin >= 0 {
		if prog.Origin+prog.Len() <= InstrMemSize && p.used&(mask<<prog.Origin) == 0 {
			return prog.Origin
		}
		return -1
	}
	for off := InstrMemSize - prog.Len(); off >= 0; off-- {
		if p.used&(mask<<off) == 0 {
			return off
		}
	}
	return -1
}

// CanAddProgram reports whether prog fits in the free instruction slots.
func (p *PIO) CanAddProgram(prog *Program) bool {
	return prog.Len() <= InstrMemSize && p.findOffset(prog) >= 0
}

// AddProgram loads prog into instruction memory, relocating its jumps, and
// returns the load offset.
func (p *PIO) AddProgram(prog *Program) (uint8, error) {
	if prog.Len() > InstrMemSize {
		return 0, fmt.Errorf("%w: %s is %d instructions", ErrNoProgramSpace, prog.Name, prog.Len())
	}
	off := p.findOffset(prog)
	if off < 0 {
		return 0, fmt.Errorf("%w: %s (%d instructions) in pio%d", ErrNoProgramSpace, prog.Name, prog.Len(), p.num)
	}
	for i, in := range prog.Instructions {
		if in>>13 == opJMP {
			in = in&^0x1F | (in+uint16(off))&0x1F
		}
		p.instr[off+i] = in
	}
	p.used |= programMask(prog) << off
	log.ModPIO.DebugZ("program added").
		Int("pio", p.num).
		String("name", prog.Name).
		Int("offset", off).
		End()
	return uint8(off), nil
}

// RemoveProgram frees the slots used by prog loaded at offset.
func (p *PIO) RemoveProgram(prog *Program, offset uint8) {
	p.used &^= programMask(prog) << offset
}

// ClaimUnusedSM reserves a free state machine.
func (p *PIO) ClaimUnusedSM() (int, error) {
	for i := range NumStateMachines {
		if p.claimed&(1<<i) == 0 {
			p.claimed |= 1 << i
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w in pio%d", ErrNoFreeStateMachine, p.num)
}

func (p *PIO) UnclaimSM(sm int) { p.claimed &^= 1 << sm }

// SMInit disables sm, applies cfg, clears its FIFOs and shift counters and
// points it at pc. X and Y are preserved.
func (p *PIO) SMInit(sm int, pc uint8, cfg SMConfig) {
	p.SetEnabled(sm, false)
	s := &p.SM[sm]
	s.cfg = cfg
	s.ClearFIFOs()
	s.restart()
	s.pc = pc
}

// SetEnabled starts or stops sm through the CTRL register.
func (p *PIO) SetEnabled(sm int, on bool) {
	if on {
		p.CTRL.SetBits(1 << sm)
	} else {
		p.CTRL.ClearBits(1 << sm)
	}
}

// Exec executes instr immediately on sm.
func (p *PIO) Exec(sm int, instr uint16) {
	p.SM[sm].exec(instr)
}

// Put pushes v into the TX FIFO of sm. It reports false if the FIFO is full.
func (p *PIO) Put(sm int, v uint32) bool {
	s := &p.SM[sm]
	if s.tx.full() {
		return false
	}
	s.push(v)
	return true
}

func (p *PIO) ClearFIFOs(sm int) { p.SM[sm].ClearFIFOs() }

// Instr returns the instruction stored at slot i.
func (p *PIO) Instr(i uint8) uint16 { return p.instr[i&31] }

// SetPins drives the pins in mask directly, as done before a state machine
// takes them over.
func (p *PIO) SetPins(values, mask uint32) { p.gpio.drive(values, mask) }

// SetPindirs sets the output enables of the pins in mask.
func (p *PIO) SetPindirs(values, mask uint32) { p.gpio.setDirs(values, mask) }
