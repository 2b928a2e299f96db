// Package rp2 models the parts of an RP2040-class microcontroller needed to
// generate video: a bus with SRAM, the DMA controller, two PIO blocks, the
// interrupt controller and GPIO outputs.
//
// The model is stepped one system clock cycle at a time from a single
// goroutine. Interrupt handlers run synchronously at the end of the cycle that
// raised them.
package rp2

import (
	"errors"
	"fmt"

	"picohdmi/emu/log"
	"picohdmi/hw/hwio"
)

// Memory map.
const (
	SRAMBase = 0x2000_0000
	SRAMSize = 0x4_0000
	DMABase  = 0x5000_0000
	PIO0Base = 0x5020_0000
	PIO1Base = 0x5030_0000
)

// Interrupt numbers.
const (
	IRQPIO0_0 = 7
	IRQPIO0_1 = 8
	IRQPIO1_0 = 9
	IRQPIO1_1 = 10
	IRQDMA0   = 11
	IRQDMA1   = 12
)

var ErrOutOfMemory = errors.New("out of SRAM")

type Chip struct {
	Bus  *hwio.Table
	SRAM hwio.Mem `hwio:"offset=0x20000000,size=0x40000"`

	DMA  DMA
	PIO  [2]PIO
	NVIC NVIC
	GPIO GPIO

	SysClock uint32 // Hz
	Cycles   uint64

	heap uint32
}

// NewChip returns a powered-up chip clocked at sysclk Hz.
func NewChip(sysclk uint32) *Chip {
	c := &Chip{
		Bus:      hwio.NewTable("sys"),
		SysClock: sysclk,
	}
	hwio.MustInitRegs(c)
	c.Bus.MapBank(0, c, 0)

	c.DMA.init(c.Bus)
	c.Bus.MapBank(DMABase, &c.DMA, 0)
	for i := range c.DMA.Channels {
		c.Bus.MapBank(DMABase+uint32(i)*channelStride, &c.DMA.Channels[i], 0)
	}

	for i := range c.PIO {
		c.PIO[i].init(i, &c.GPIO)
		c.Bus.MapBank(c.PIO[i].Base(), &c.PIO[i], 0)
	}
	c.DMA.dreq = c.dreq

	c.heap = SRAMBase
	log.ModEmu.DebugZ("chip powered up").Uint("sysclk", uint(sysclk)).End()
	return c
}

// Alloc reserves size bytes of SRAM aligned on align (a power of 2).
func (c *Chip) Alloc(size, align uint32) (uint32, error) {
	addr := (c.heap + align - 1) &^ (align - 1)
	if addr+size > SRAMBase+SRAMSize {
		return 0, fmt.Errorf("%w: %d bytes requested, %d left", ErrOutOfMemory, size, SRAMBase+SRAMSize-c.heap)
	}
	c.heap = addr + size
	return addr, nil
}

// Mem returns the SRAM bytes in [addr, addr+size).
func (c *Chip) Mem(addr, size uint32) []byte {
	return c.Bus.FetchPointer(addr)[:size:size]
}

// dreq reports whether the data request line n is asserted.
func (c *Chip) dreq(n uint32) bool {
	switch {
	case n == TreqPermanent:
		return true
	case n < DreqPIO1TX0:
		return c.PIO[0].dreq(n - DreqPIO0TX0)
	case n < DreqPIO1TX0+8:
		return c.PIO[1].dreq(n - DreqPIO1TX0)
	}
	return false
}

// Step advances the chip by one system clock cycle.
func (c *Chip) Step() {
	c.Cycles++
	c.DMA.tick()
	c.PIO[0].tick()
	c.PIO[1].tick()

	if c.DMA.pending(0) {
		c.NVIC.raise(IRQDMA0)
	}
	if c.DMA.pending(1) {
		c.NVIC.raise(IRQDMA1)
	}
}

// Run steps the chip for n cycles.
func (c *Chip) Run(n int) {
	for range n {
		c.Step()
	}
}
