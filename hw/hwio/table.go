package hwio

import (
	"fmt"
	"slices"

	"picohdmi/emu/log"
)

// log unmapped accesses (useful when bringing up a new memory map).
const logUnmapped = true

type BankIO32 interface {
	// Read32 reads a word from the given address. If peek is true, the read
	// shouldn't have any side effects (debugging/tracing).
	Read32(addr uint32, peek bool) uint32
	Write32(addr uint32, val uint32)
}

type mapping struct {
	begin, end uint32 // inclusive
	io         BankIO32
}

// Table is a 32-bit address decoder. Devices are looked up by binary search
// over non-overlapping ranges.
type Table struct {
	Name string

	ranges []mapping
}

func NewTable(name string) *Table {
	t := new(Table)
	t.Name = name
	t.Reset()
	return t
}

func (t *Table) Reset() {
	t.ranges = nil
}

// Map a register bank (that is, a structure containing mulitple Reg* fields).
// For this function to work, registers must have a struct tag "hwio", containing
// the following fields:
//
//	offset=0x12     Byte-offset within the register bank at which this
//	                register is mapped. There is no default value: if this
//	                option is missing, the register is assumed not to be
//	                part of the bank, and is ignored by this call.
//
//	bank=NN         Ordinal bank number (if not specified, default to zero).
//	                This option allows for a structure to expose multiple
//	                banks, as regs can be grouped by bank by specified the
//	                bank number.
func (t *Table) MapBank(addr uint32, bank any, bankNum int) {
	regs, err := bankGetRegs(bank, bankNum)
	if err != nil {
		panic(err)
	}

	for _, reg := range regs {
		switch r := reg.regPtr.(type) {
		case *Mem:
			t.MapMem(addr+reg.offset, r)
		case *Reg32:
			t.MapReg(addr+reg.offset, 4, r)
		case *Reg8:
			t.MapReg(addr+reg.offset, 1, r)
		default:
			panic(fmt.Errorf("invalid reg type: %T", r))
		}
	}
}

func (t *Table) UnmapBank(addr uint32, bank any, bankNum int) {
	regs, err := bankGetRegs(bank, bankNum)
	if err != nil {
		panic(err)
	}

	for _, reg := range regs {
		switch r := reg.regPtr.(type) {
		case *Mem:
			t.Unmap(addr+reg.offset, addr+reg.offset+uint32(r.VSize)-1)
		case *Reg32:
			t.Unmap(addr+reg.offset, addr+reg.offset+3)
		case *Reg8:
			t.Unmap(addr+reg.offset, addr+reg.offset)
		default:
			panic(fmt.Errorf("invalid reg type: %T", r))
		}
	}
}

func (t *Table) insert(begin, end uint32, io BankIO32) error {
	i, _ := slices.BinarySearchFunc(t.ranges, begin, func(m mapping, a uint32) int {
		switch {
		case m.begin < a:
			return -1
		case m.begin > a:
			return 1
		}
		return 0
	})
	if i > 0 && t.ranges[i-1].end >= begin {
		return fmt.Errorf("range [%08x-%08x] overlaps [%08x-%08x]", begin, end, t.ranges[i-1].begin, t.ranges[i-1].end)
	}
	if i < len(t.ranges) && t.ranges[i].begin <= end {
		return fmt.Errorf("range [%08x-%08x] overlaps [%08x-%08x]", begin, end, t.ranges[i].begin, t.ranges[i].end)
	}
	t.ranges = slices.Insert(t.ranges, i, mapping{begin: begin, end: end, io: io})
	return nil
}

func (t *Table) search(addr uint32) BankIO32 {
	i, found := slices.BinarySearchFunc(t.ranges, addr, func(m mapping, a uint32) int {
		switch {
		case m.end < a:
			return -1
		case m.begin > a:
			return 1
		}
		return 0
	})
	if !found {
		return nil
	}
	return t.ranges[i].io
}

// MapReg maps a register of the given byte size at addr.
func (t *Table) MapReg(addr uint32, size uint32, io BankIO32) {
	if err := t.insert(addr, addr+size-1, io); err != nil {
		panic(err)
	}
}

func (t *Table) MapMem(addr uint32, m *Mem) {
	log.ModHwIo.DebugZ("mapping mem").
		Hex32("addr", addr).
		Hex32("size", uint32(m.VSize)).
		String("area", m.Name).
		String("bus", t.Name).
		End()

	if m.VSize == 0 {
		m.VSize = len(m.Data)
	}
	if err := t.insert(addr, addr+uint32(m.VSize)-1, newMem(m)); err != nil {
		panic(err)
	}
}

func (t *Table) Unmap(begin, end uint32) {
	t.ranges = slices.DeleteFunc(t.ranges, func(m mapping) bool {
		return m.begin >= begin && m.end <= end
	})
}

// Read32 searches in the table for the device mapped at the given address and
// forward the read to it. Accesses to unmapped addresses are logged as errors
// if peek is false.
func (t *Table) Read32(addr uint32, peek bool) uint32 {
	io := t.search(addr)
	if io == nil {
		if logUnmapped && !peek {
			log.ModHwIo.ErrorZ("unmapped Read32").
				String("name", t.Name).
				Hex32("addr", addr).
				End()
		}
		return 0
	}
	return io.Read32(addr, peek)
}

// Peek32 is a convenience function.
func (t *Table) Peek32(addr uint32) uint32 {
	return t.Read32(addr, true)
}

func (t *Table) Write32(addr uint32, val uint32) {
	io := t.search(addr)
	if io == nil {
		if logUnmapped {
			log.ModHwIo.ErrorZ("unmapped Write32").
				String("name", t.Name).
				Hex32("addr", addr).
				Hex32("val", val).
				End()
		}
		return
	}
	io.Write32(addr, val)
}

// Read8 reads a byte. Memory is byte addressable, registers return the byte
// lane of their 32-bit value.
func (t *Table) Read8(addr uint32) uint8 {
	io := t.search(addr)
	switch io := io.(type) {
	case *mem:
		return io.Read8(addr)
	case nil:
		return uint8(t.Read32(addr, false))
	default:
		return uint8(io.Read32(addr, false) >> (8 * (addr & 3)))
	}
}

// Write8 writes a byte. Like the RP2040 bus fabric, narrow writes to registers
// are replicated across all byte lanes.
func (t *Table) Write8(addr uint32, val uint8) {
	io := t.search(addr)
	if m, ok := io.(*mem); ok {
		if !m.Write8(addr, val) {
			log.ModHwIo.ErrorZ("Write8 to read-only address").
				String("name", t.Name).
				Hex32("addr", addr).
				Hex8("val", val).
				End()
		}
		return
	}
	if io == nil {
		t.Write32(addr, uint32(val))
		return
	}
	io.Write32(addr, uint32(val)*0x01010101)
}

// FetchPointer returns the memory slice starting at addr, or nil if addr is
// not backed by linear memory.
func (t *Table) FetchPointer(addr uint32) []uint8 {
	if m, ok := t.search(addr).(*mem); ok {
		return m.FetchPointer(addr)
	}
	return nil
}
