package hwio

import (
	"fmt"

	"picohdmi/emu/log"
)

type RWFlags uint8

const (
	ReadWriteFlag RWFlags = 0
	ReadOnlyFlag  RWFlags = (1 << iota)
	WriteOnlyFlag
)

type Reg8 struct {
	Name   string
	Value  uint8
	RoMask uint8

	Flags   RWFlags
	ReadCb  func(val uint8) uint8
	PeekCb  func(val uint8) uint8
	WriteCb func(old uint8, val uint8)
}

func (reg Reg8) String() string {
	s := fmt.Sprintf("%s{%02x", reg.Name, reg.Value)
	if reg.ReadCb != nil {
		s += ",r!"
	}
	if reg.PeekCb != nil {
		s += ",p!"
	}
	if reg.WriteCb != nil {
		s += ",w!"
	}
	return s + "}"
}

func (reg *Reg8) write(val uint8) {
	old := reg.Value
	reg.Value = (reg.Value & reg.RoMask) | (val &^ reg.RoMask)
	if reg.WriteCb != nil {
		reg.WriteCb(old, reg.Value)
	}
}

// Write32 implements BankIO32. Only the byte lane selected by addr is used.
func (reg *Reg8) Write32(addr uint32, val uint32) {
	if reg.Flags&ReadOnlyFlag != 0 {
		log.ModHwIo.ErrorZ("invalid Write8 to readonly reg").
			String("name", reg.Name).
			Hex32("addr", addr).
			End()
		return
	}
	reg.write(uint8(val >> (8 * (addr & 3))))
}

// Read32 implements BankIO32. The value is replicated on all byte lanes.
func (reg *Reg8) Read32(addr uint32, peek bool) uint32 {
	v := reg.read8(addr, peek)
	return uint32(v) * 0x01010101
}

func (reg *Reg8) read8(addr uint32, peek bool) uint8 {
	if peek {
		if reg.PeekCb != nil {
			return reg.PeekCb(reg.Value)
		}
		return reg.Value
	}
	if reg.Flags&WriteOnlyFlag != 0 {
		log.ModHwIo.ErrorZ("invalid Read8 from writeonly reg").
			String("name", reg.Name).
			Hex32("addr", addr).
			End()
		return 0
	}
	if reg.ReadCb != nil {
		return reg.ReadCb(reg.Value)
	}
	return reg.Value
}

// Read8 reads the register as the CPU would, callbacks included.
func (reg *Reg8) Read8() uint8 { return reg.read8(0, false) }

// Peek8 reads the register without side effects.
func (reg *Reg8) Peek8() uint8 { return reg.read8(0, true) }

type Reg32 struct {
	Name   string
	Value  uint32
	RoMask uint32

	Flags   RWFlags
	ReadCb  func(val uint32) uint32
	PeekCb  func(val uint32) uint32
	WriteCb func(old uint32, val uint32)
}

func (reg Reg32) String() string {
	s := fmt.Sprintf("%s{%08x", reg.Name, reg.Value)
	if reg.ReadCb != nil {
		s += ",r!"
	}
	if reg.PeekCb != nil {
		s += ",p!"
	}
	if reg.WriteCb != nil {
		s += ",w!"
	}
	return s + "}"
}

func (reg *Reg32) write(val uint32) {
	old := reg.Value
	reg.Value = (reg.Value & reg.RoMask) | (val &^ reg.RoMask)
	if reg.WriteCb != nil {
		reg.WriteCb(old, reg.Value)
	}
}

func (reg *Reg32) Write32(addr uint32, val uint32) {
	if reg.Flags&ReadOnlyFlag != 0 {
		log.ModHwIo.ErrorZ("invalid Write32 to readonly reg").
			String("name", reg.Name).
			Hex32("addr", addr).
			Hex32("val", val).
			End()
		return
	}
	reg.write(val)
}

func (reg *Reg32) Read32(addr uint32, peek bool) uint32 {
	if peek {
		if reg.PeekCb != nil {
			return reg.PeekCb(reg.Value)
		}
		return reg.Value
	}
	if reg.Flags&WriteOnlyFlag != 0 {
		log.ModHwIo.ErrorZ("invalid Read32 from writeonly reg").
			String("name", reg.Name).
			Hex32("addr", addr).
			End()
		return 0
	}
	if reg.ReadCb != nil {
		return reg.ReadCb(reg.Value)
	}
	return reg.Value
}

// SetBits is an atomic-alias style write (as in RP2040 +0x2000 aliases): only
// bits set in mask are set.
func (reg *Reg32) SetBits(mask uint32) { reg.write(reg.Value | mask) }

// ClearBits is the clear-alias counterpart of SetBits.
func (reg *Reg32) ClearBits(mask uint32) { reg.write(reg.Value &^ mask) }
