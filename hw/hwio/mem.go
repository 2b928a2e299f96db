package hwio

import (
	"encoding/binary"

	"picohdmi/emu/log"
)

type MemFlags int

const (
	MemFlagReadWrite MemFlags = 0
	MemFlagReadOnly  MemFlags = (1 << iota) // read-only accesses
	MemFlagNoROLog                          // skip logging attempts to write when configured to readonly
)

// Linear memory area that can be mapped into a Table.
//
// Mem does not implement BankIO32 itself; Table.MapMem builds an adaptor whose
// hot path does not need to look at the flags.
type Mem struct {
	Name    string              // name of the memory area (for debugging)
	Data    []byte              // actual memory buffer
	VSize   int                 // virtual size of the memory (can be bigger than physical size)
	Flags   MemFlags            // flags determining how the memory can be accessed
	WriteCb func(uint32, uint8) // optional write callback, called after the write
}

// mem is the adaptor stored in a Table for linear memory. It is used by pointer
// so that Table can type-switch on it for byte accesses.
type mem struct {
	name string
	buf  []byte
	mask uint32
	wcb  func(uint32, uint8)
	ro   MemFlags
}

func newMem(m *Mem) *mem {
	if len(m.Data)&(len(m.Data)-1) != 0 {
		panic("memory buffer size is not pow2")
	}
	return &mem{
		name: m.Name,
		buf:  m.Data,
		mask: uint32(len(m.Data) - 1),
		wcb:  m.WriteCb,
		ro:   m.Flags,
	}
}

func (m *mem) FetchPointer(addr uint32) []byte {
	off := addr & m.mask
	return m.buf[off:]
}

func (m *mem) Read8(addr uint32) uint8 {
	return m.buf[addr&m.mask]
}

func (m *mem) Write8(addr uint32, val uint8) bool {
	if m.ro != MemFlagReadWrite {
		return m.ro&MemFlagNoROLog != 0
	}
	m.buf[addr&m.mask] = val
	if m.wcb != nil {
		m.wcb(addr, val)
	}
	return true
}

func (m *mem) Read32(addr uint32, _ bool) uint32 {
	off := addr & m.mask &^ 3
	return binary.LittleEndian.Uint32(m.buf[off:])
}

func (m *mem) Write32(addr uint32, val uint32) {
	if m.ro != MemFlagReadWrite {
		if m.ro&MemFlagNoROLog == 0 {
			log.ModHwIo.ErrorZ("Write32 to readonly memory").
				String("name", m.name).
				Hex32("addr", addr).
				Hex32("val", val).
				End()
		}
		return
	}
	off := addr & m.mask &^ 3
	binary.LittleEndian.PutUint32(m.buf[off:], val)
	if m.wcb != nil {
		for i := range uint32(4) {
			m.wcb(addr&^3+i, uint8(val>>(8*i)))
		}
	}
}
