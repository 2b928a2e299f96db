package rp2

import (
	"errors"
	"fmt"

	"picohdmi/emu/log"
	"picohdmi/hw/hwio"
)

const (
	NumDMAChannels = 12
	channelStride  = 0x40
)

// Channel register offsets, relative to the channel base.
const (
	ChReadAddr        = 0x00
	ChWriteAddr       = 0x04
	ChTransCount      = 0x08
	ChCtrlTrig        = 0x0C
	ChAl1Ctrl         = 0x10
	ChAl3ReadAddrTrig = 0x3C
)

// Global register addresses.
const (
	DMAIntr             = DMABase + 0x400
	DMAInte0            = DMABase + 0x404
	DMAIntf0            = DMABase + 0x408
	DMAInts0            = DMABase + 0x40C
	DMAInte1            = DMABase + 0x414
	DMAInts1            = DMABase + 0x41C
	DMAMultiChanTrigger = DMABase + 0x430
	DMAChanAbort        = DMABase + 0x444
)

// CTRL register fields.
const (
	ctrlEN          = 1 << 0
	ctrlDataSizeLo  = 2
	ctrlIncrRead    = 1 << 4
	ctrlIncrWrite   = 1 << 5
	ctrlChainToLo   = 11
	ctrlTreqSelLo   = 15
	ctrlIRQQuiet    = 1 << 21
	ctrlBusy        = 1 << 24
	ctrlWritableMsk = 0x00FF_FFFF
)

// DREQ numbers.
const (
	DreqPIO0TX0   = 0
	DreqPIO0RX0   = 4
	DreqPIO1TX0   = 8
	DreqPIO1RX0   = 12
	TreqPermanent = 0x3F
)

type DataSize uint32

const (
	Size8 DataSize = iota
	Size16
	Size32
)

func (s DataSize) bytes() uint32 { return 1 << s }

var ErrNoFreeChannel = errors.New("no free DMA channel")

// ChannelAddr returns the bus address of register reg of channel ch.
func ChannelAddr(ch int, reg uint32) uint32 {
	return DMABase + uint32(ch)*channelStride + reg
}

// Channel is a single DMA channel. Its registers are mapped at
// DMABase + n*0x40.
type Channel struct {
	READADDR        hwio.Reg32 `hwio:"offset=0x00"`
	WRITEADDR       hwio.Reg32 `hwio:"offset=0x04"`
	TRANSCOUNT      hwio.Reg32 `hwio:"offset=0x08,rcb"`
	CTRLTRIG        hwio.Reg32 `hwio:"offset=0x0C,rwmask=0xFFFFFF,rcb,wcb"`
	AL1CTRL         hwio.Reg32 `hwio:"offset=0x10,rcb,wcb"`
	AL3READADDRTRIG hwio.Reg32 `hwio:"offset=0x3C,rcb,wcb"`

	num       int
	dma       *DMA
	remaining uint32
	busy      bool
	Transfers uint64 // completed bus transfers
}

func (ch *Channel) ReadTRANSCOUNT(uint32) uint32 {
	if ch.busy {
		return ch.remaining
	}
	return ch.TRANSCOUNT.Value
}

func (ch *Channel) ReadCTRLTRIG(val uint32) uint32 {
	if ch.busy {
		val |= ctrlBusy
	}
	return val
}

func (ch *Channel) WriteCTRLTRIG(_, val uint32) {
	ch.trigger()
}

func (ch *Channel) ReadAL1CTRL(uint32) uint32 { return ch.ReadCTRLTRIG(ch.CTRLTRIG.Value) }

func (ch *Channel) WriteAL1CTRL(_, val uint32) {
	ch.CTRLTRIG.Value = val & ctrlWritableMsk
}

func (ch *Channel) ReadAL3READADDRTRIG(uint32) uint32 { return ch.READADDR.Value }

func (ch *Channel) WriteAL3READADDRTRIG(_, val uint32) {
	ch.READADDR.Value = val
	ch.trigger()
}

func (ch *Channel) ctrl() uint32      { return ch.CTRLTRIG.Value }
func (ch *Channel) enabled() bool     { return ch.ctrl()&ctrlEN != 0 }
func (ch *Channel) size() DataSize    { return DataSize(hwio.Field32(ch.ctrl(), ctrlDataSizeLo, 2)) }
func (ch *Channel) chainTo() int      { return int(hwio.Field32(ch.ctrl(), ctrlChainToLo, 4)) }
func (ch *Channel) treq() uint32      { return hwio.Field32(ch.ctrl(), ctrlTreqSelLo, 6) }
func (ch *Channel) Busy() bool        { return ch.busy }
func (ch *Channel) Remaining() uint32 { return ch.remaining }

func (ch *Channel) trigger() {
	if !ch.enabled() {
		ch.busy = false
		return
	}
	ch.remaining = ch.TRANSCOUNT.Value
	ch.busy = ch.remaining != 0
	log.ModDMA.DebugZ("channel triggered").
		Int("ch", ch.num).
		Hex32("read", ch.READADDR.Value).
		Hex32("write", ch.WRITEADDR.Value).
		Uint("count", uint(ch.remaining)).
		End()
}

// transfer moves one data item and handles completion.
func (ch *Channel) transfer(bus *hwio.Table) {
	ctrl := ch.ctrl()
	size := ch.size()
	src, dst := ch.READADDR.Value, ch.WRITEADDR.Value
	switch size {
	case Size8:
		bus.Write8(dst, bus.Read8(src))
	case Size16:
		v := bus.Read32(src&^3, false) >> (8 * (src & 2))
		bus.Write32(dst&^3, (v&0xFFFF)*0x10001)
	default:
		bus.Write32(dst, bus.Read32(src, false))
	}
	if ctrl&ctrlIncrRead != 0 {
		ch.READADDR.Value += size.bytes()
	}
	if ctrl&ctrlIncrWrite != 0 {
		ch.WRITEADDR.Value += size.bytes()
	}
	ch.Transfers++
	ch.remaining--
	if ch.remaining != 0 {
		return
	}

	ch.busy = false
	if ctrl&ctrlIRQQuiet == 0 {
		ch.dma.intr |= 1 << ch.num
	}
	if next := ch.chainTo(); next != ch.num {
		ch.dma.Channels[next].trigger()
	}
}

// DMA is the DMA controller. Transfers are performed one per system clock
// cycle, arbitrated round robin among the channels whose DREQ is asserted.
type DMA struct {
	INTR             hwio.Reg32 `hwio:"offset=0x400,rcb,wcb"`
	INTE0            hwio.Reg32 `hwio:"offset=0x404,rwmask=0xFFFF"`
	INTF0            hwio.Reg32 `hwio:"offset=0x408,rwmask=0xFFFF"`
	INTS0            hwio.Reg32 `hwio:"offset=0x40C,rcb,wcb"`
	INTE1            hwio.Reg32 `hwio:"offset=0x414,rwmask=0xFFFF"`
	INTF1            hwio.Reg32 `hwio:"offset=0x418,rwmask=0xFFFF"`
	INTS1            hwio.Reg32 `hwio:"offset=0x41C,rcb,wcb"`
	MULTICHANTRIGGER hwio.Reg32 `hwio:"offset=0x430,wcb"`
	CHANABORT        hwio.Reg32 `hwio:"offset=0x444,rcb,wcb"`

	Channels [NumDMAChannels]Channel

	bus      *hwio.Table
	dreq     func(uint32) bool
	intr     uint32
	aborting uint32
	claimed  uint32
	next     int
}

func (d *DMA) init(bus *hwio.Table) {
	d.bus = bus
	hwio.MustInitRegs(d)
	for i := range d.Channels {
		ch := &d.Channels[i]
		hwio.MustInitRegs(ch)
		ch.num, ch.dma = i, d
		// CHAIN_TO resets to the channel itself, which disables chaining.
		ch.CTRLTRIG.Value = uint32(i) << ctrlChainToLo
	}
}

func (d *DMA) ReadINTR(uint32) uint32 { return d.intr }

func (d *DMA) WriteINTR(_, val uint32) { d.intr &^= val }

func (d *DMA) ints(irq int) uint32 {
	if irq == 0 {
		return (d.intr | d.INTF0.Value) & d.INTE0.Value
	}
	return (d.intr | d.INTF1.Value) & d.INTE1.Value
}

func (d *DMA) ReadINTS0(uint32) uint32 { return d.ints(0) }
func (d *DMA) ReadINTS1(uint32) uint32 { return d.ints(1) }

func (d *DMA) WriteINTS0(_, val uint32) { d.intr &^= val }
func (d *DMA) WriteINTS1(_, val uint32) { d.intr &^= val }

func (d *DMA) WriteMULTICHANTRIGGER(_, val uint32) {
	for i := range d.Channels {
		if val&(1<<i) != 0 {
			d.Channels[i].trigger()
		}
	}
}

// ReadCHANABORT reports channels with an abort still in flight. Each read
// retires one of them, so a polling loop always terminates.
func (d *DMA) ReadCHANABORT(uint32) uint32 {
	v := d.aborting
	d.aborting &= d.aborting - 1
	return v
}

func (d *DMA) WriteCHANABORT(_, val uint32) {
	for i := range d.Channels {
		if val&(1<<i) == 0 {
			continue
		}
		ch := &d.Channels[i]
		if ch.busy {
			d.aborting |= 1 << i
		}
		ch.busy = false
		ch.remaining = 0
	}
	log.ModDMA.DebugZ("abort").Hex32("mask", val).End()
}

func (d *DMA) pending(irq int) bool { return d.ints(irq) != 0 }

func (d *DMA) tick() {
	for i := range NumDMAChannels {
		n := (d.next + i) % NumDMAChannels
		ch := &d.Channels[n]
		if !ch.busy || !d.dreq(ch.treq()) {
			continue
		}
		d.next = (n + 1) % NumDMAChannels
		ch.transfer(d.bus)
		return
	}
}

// ClaimUnused reserves a free channel.
func (d *DMA) ClaimUnused() (int, error) {
	for i := range NumDMAChannels {
		if !hwio.GetBit32(d.claimed, uint(i)) {
			hwio.SetBit32(&d.claimed, uint(i))
			return i, nil
		}
	}
	return -1, ErrNoFreeChannel
}

func (d *DMA) Unclaim(ch int) { hwio.ClearBit32(&d.claimed, uint(ch)) }

func (d *DMA) Claimed(ch int) bool { return hwio.GetBit32(d.claimed, uint(ch)) }

// ChannelConfig is the value of a channel CTRL register being built.
type ChannelConfig struct {
	ctrl uint32
}

// DefaultChannelConfig returns an enabled configuration for channel ch: 32-bit
// transfers, incrementing reads, no chaining, unpaced.
func DefaultChannelConfig(ch int) ChannelConfig {
	c := ChannelConfig{ctrl: ctrlEN | ctrlIncrRead}
	c.SetDataSize(Size32)
	c.SetChainTo(ch)
	c.SetDREQ(TreqPermanent)
	return c
}

func (c *ChannelConfig) SetDataSize(s DataSize) { hwio.SetField32(&c.ctrl, ctrlDataSizeLo, 2, uint32(s)) }
func (c *ChannelConfig) SetChainTo(ch int)      { hwio.SetField32(&c.ctrl, ctrlChainToLo, 4, uint32(ch)) }
func (c *ChannelConfig) SetDREQ(n uint32)       { hwio.SetField32(&c.ctrl, ctrlTreqSelLo, 6, n) }

func (c *ChannelConfig) SetReadIncrement(on bool)  { c.set(ctrlIncrRead, on) }
func (c *ChannelConfig) SetWriteIncrement(on bool) { c.set(ctrlIncrWrite, on) }
func (c *ChannelConfig) SetIRQQuiet(on bool)       { c.set(ctrlIRQQuiet, on) }
func (c *ChannelConfig) SetEnabled(on bool)        { c.set(ctrlEN, on) }

func (c *ChannelConfig) set(bit uint32, on bool) {
	if on {
		c.ctrl |= bit
	} else {
		c.ctrl &^= bit
	}
}

func (c ChannelConfig) Ctrl() uint32 { return c.ctrl }

// Configure programs channel ch through its registers and optionally starts
// it.
func (d *DMA) Configure(ch int, cfg ChannelConfig, write, read, count uint32, trigger bool) {
	d.bus.Write32(ChannelAddr(ch, ChReadAddr), read)
	d.bus.Write32(ChannelAddr(ch, ChWriteAddr), write)
	d.bus.Write32(ChannelAddr(ch, ChTransCount), count)
	if trigger {
		d.bus.Write32(ChannelAddr(ch, ChCtrlTrig), cfg.ctrl)
	} else {
		d.bus.Write32(ChannelAddr(ch, ChAl1Ctrl), cfg.ctrl)
	}
}

// SetReadAddr sets the read address of channel ch, optionally starting it.
func (d *DMA) SetReadAddr(ch int, addr uint32, trigger bool) {
	if trigger {
		d.bus.Write32(ChannelAddr(ch, ChAl3ReadAddrTrig), addr)
	} else {
		d.bus.Write32(ChannelAddr(ch, ChReadAddr), addr)
	}
}

// Start triggers every channel in mask at once.
func (d *DMA) Start(mask uint32) {
	d.bus.Write32(DMAMultiChanTrigger, mask)
}

// Abort requests abortion of the channels in mask. The caller polls
// DMAChanAbort until it reads zero.
func (d *DMA) Abort(mask uint32) {
	d.bus.Write32(DMAChanAbort, mask)
}

// SetIRQ0Enabled routes completion of channel ch to DMA_IRQ_0.
func (d *DMA) SetIRQ0Enabled(ch int, on bool) {
	v := d.bus.Read32(DMAInte0, false)
	if on {
		v |= 1 << ch
	} else {
		v &^= 1 << ch
	}
	d.bus.Write32(DMAInte0, v)
}

// AckIRQ0 clears the DMA_IRQ_0 status of channel ch.
func (d *DMA) AckIRQ0(ch int) {
	d.bus.Write32(DMAInts0, 1<<ch)
}

func (d *DMA) String() string {
	s := "DMA{"
	for i := range d.Channels {
		if ch := &d.Channels[i]; ch.busy {
			s += fmt.Sprintf(" ch%d:%d", i, ch.remaining)
		}
	}
	return s + " }"
}
