package rp2

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		got  uint16
		want uint16
	}{
		{"pull block", EncodePull(false, true), 0x80A0},
		{"pull noblock", EncodePull(false, false), 0x8080},
		{"push block", EncodePush(false, true), 0x8020},
		{"in osr, 8", EncodeIn(SrcDstOSR, 8), 0x40E8},
		{"in x, 20", EncodeIn(SrcDstX, 20), 0x4034},
		{"out pins, 6 side 2", EncodeOut(SrcDstPins, 6) | EncodeSideSet(2, 2), 0x7006},
		{"out pins, 6 side 1", EncodeOut(SrcDstPins, 6) | EncodeSideSet(2, 1), 0x6806},
		{"set x, 0", EncodeSet(SrcDstX, 0), 0xE020},
		{"mov isr, null", EncodeMov(SrcDstISR, SrcDstNull), 0xA0C3},
		{"mov x, osr", EncodeMov(SrcDstX, SrcDstOSR), 0xA027},
		{"nop", EncodeNop(), 0xA042},
		{"jmp x-- 3", EncodeJmp(JmpXDec, 3), 0x0043},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %04x, want %04x", tt.name, tt.got, tt.want)
		}
	}
}

func TestAddProgram(t *testing.T) {
	c := NewChip(125_000_000)
	p := &c.PIO[0]

	loop := &Program{Name: "loop", Instructions: []uint16{EncodeNop(), EncodeJmp(JmpAlways, 0)}, Origin: -1}
	off, err := p.AddProgram(loop)
	if err != nil {
		t.Fatal(err)
	}
	if off != 30 {
		t.Errorf("offset = %d, want 30", off)
	}
	if got := p.Instr(31); got != EncodeJmp(JmpAlways, 30) {
		t.Errorf("jmp not relocated: %04x", got)
	}

	big := &Program{Name: "big", Instructions: make([]uint16, 31), Origin: -1}
	if p.CanAddProgram(big) {
		t.Error("CanAddProgram reported room for 31 instructions with 2 used")
	}
	if _, err := p.AddProgram(big); !errors.Is(err, ErrNoProgramSpace) {
		t.Errorf("got %v, want ErrNoProgramSpace", err)
	}
	p.RemoveProgram(loop, off)
	if _, err := p.AddProgram(big); err != nil {
		t.Errorf("after remove: %v", err)
	}

	fixed := &Program{Name: "fixed", Instructions: []uint16{EncodeNop()}, Origin: 5}
	if _, err := p.AddProgram(fixed); !errors.Is(err, ErrNoProgramSpace) {
		t.Errorf("fixed origin over used slot: got %v", err)
	}
}

func TestClaimSM(t *testing.T) {
	c := NewChip(125_000_000)
	for range NumStateMachines {
		if _, err := c.PIO[1].ClaimUnusedSM(); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.PIO[1].ClaimUnusedSM(); !errors.Is(err, ErrNoFreeStateMachine) {
		t.Errorf("got %v, want ErrNoFreeStateMachine", err)
	}
	if _, err := c.PIO[0].ClaimUnusedSM(); err != nil {
		t.Errorf("pio0 affected by pio1 claims: %v", err)
	}
}

// setX loads X through the TX FIFO, the way a stopped state machine's
// scratch register is preloaded.
func setX(p *PIO, sm int, v uint32) {
	p.Exec(sm, EncodeSet(SrcDstX, 0))
	p.Exec(sm, EncodeMov(SrcDstISR, SrcDstNull))
	p.Put(sm, v)
	p.Exec(sm, EncodePull(false, false))
	p.Exec(sm, EncodeMov(SrcDstX, SrcDstOSR))
}

func TestSetX(t *testing.T) {
	c := NewChip(125_000_000)
	p := &c.PIO[0]
	setX(p, 2, 0x20001)
	if got := p.SM[2].X(); got != 0x20001 {
		t.Errorf("X = %x, want 20001", got)
	}
	if got := p.SM[2].TxLevel(); got != 0 {
		t.Errorf("TX level = %d, want 0", got)
	}

	// SMInit keeps X.
	p.SMInit(2, 0, DefaultSMConfig())
	if got := p.SM[2].X(); got != 0x20001 {
		t.Errorf("X after init = %x, want 20001", got)
	}

	// pull noblock on an empty FIFO copies X.
	p.Exec(2, EncodePull(false, false))
	p.Exec(2, EncodeMov(SrcDstY, SrcDstOSR))
	if got := p.SM[2].Y(); got != 0x20001 {
		t.Errorf("Y = %x, want 20001", got)
	}
}

func TestIndexToAddress(t *testing.T) {
	c := NewChip(125_000_000)
	p := &c.PIO[1]
	prog := &Program{
		Name: "idx",
		Instructions: []uint16{
			EncodePull(false, true),
			EncodeIn(SrcDstOSR, 8),
			EncodeIn(SrcDstX, 20),
			EncodePush(false, true),
		},
		Origin: -1,
	}
	off, err := p.AddProgram(prog)
	if err != nil {
		t.Fatal(err)
	}
	const base = 0x20010000
	setX(p, 0, base>>12)
	cfg := DefaultSMConfig()
	cfg.SetWrap(off, off+3)
	cfg.SetInShift(true, false, 32)
	p.SMInit(0, off, cfg)
	p.SetEnabled(0, true)

	var got []uint32
	for _, idx := range []uint32{0, 5, 255} {
		p.Put(0, idx)
		c.Run(4)
		got = append(got, c.Bus.Read32(p.RXF(0), false))
	}
	want := []uint32{base, base + 5*16, base + 255*16}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("addresses mismatch (-want +got):\n%s", diff)
	}
	c.Run(1)
	if !p.SM[0].Stalled() {
		t.Error("state machine should stall on an empty TX FIFO")
	}
}

func TestOutAutopullSideset(t *testing.T) {
	c := NewChip(125_000_000)
	p := &c.PIO[0]
	var ins []uint16
	for range 3 {
		ins = append(ins, EncodeOut(SrcDstPins, 6)|EncodeSideSet(2, 2))
	}
	for range 2 {
		ins = append(ins, EncodeOut(SrcDstPins, 6)|EncodeSideSet(2, 1))
	}
	prog := &Program{Name: "out", Instructions: ins, Origin: -1}
	off, err := p.AddProgram(prog)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultSMConfig()
	cfg.SetWrap(off, off+uint8(len(ins))-1)
	cfg.SetSideset(6, 2, false, false)
	cfg.SetOutPins(0, 6)
	cfg.SetOutShift(true, true, 30)
	cfg.Join = JoinTX
	p.SMInit(0, off, cfg)

	var pins []uint32
	c.GPIO.Observe(func(v uint32) { pins = append(pins, v) })

	// Units 1..5 then 6..10 in consecutive 6-bit fields.
	var w1, w2 uint32
	for i := range 5 {
		w1 |= uint32(i+1) << (6 * i)
		w2 |= uint32(i+6) << (6 * i)
	}
	p.Put(0, w1)
	p.Put(0, w2)
	p.SetEnabled(0, true)
	c.Run(12)

	want := []uint32{
		2<<6 | 1, 2<<6 | 2, 2<<6 | 3, 1<<6 | 4, 1<<6 | 5,
		2<<6 | 6, 2<<6 | 7, 2<<6 | 8, 1<<6 | 9, 1<<6 | 10,
	}
	if diff := cmp.Diff(want, pins); diff != "" {
		t.Errorf("pins mismatch (-want +got):\n%s", diff)
	}
	if got := p.SM[0].Stalls; got != 2 {
		t.Errorf("stalls = %d, want 2", got)
	}
}

func TestClockDivider(t *testing.T) {
	c := NewChip(125_000_000)
	p := &c.PIO[0]
	prog := &Program{Name: "nop", Instructions: []uint16{EncodeNop()}, Origin: -1}
	off, _ := p.AddProgram(prog)
	cfg := DefaultSMConfig()
	cfg.SetWrap(off, off)
	cfg.SetClkDiv(2.5)
	p.SMInit(3, off, cfg)
	p.SetEnabled(3, true)
	c.Run(100)
	if got := p.SM[3].Executed; got != 40 {
		t.Errorf("executed %d instructions in 100 cycles at div 2.5, want 40", got)
	}
}

func TestJmpLoop(t *testing.T) {
	c := NewChip(125_000_000)
	p := &c.PIO[0]
	prog := &Program{
		Name: "count",
		Instructions: []uint16{
			EncodeSet(SrcDstX, 3) | EncodeDelay(1),
			EncodeJmp(JmpXDec, 1),
			EncodeSet(SrcDstY, 31),
			EncodeJmp(JmpAlways, 3),
		},
		Origin: 0,
	}
	if _, err := p.AddProgram(prog); err != nil {
		t.Fatal(err)
	}
	p.SMInit(0, 0, DefaultSMConfig())
	p.SetEnabled(0, true)
	// set (2 cycles), jmp x-- taken 3 times then falls through, set y.
	c.Run(2 + 4 + 1)
	if got := p.SM[0].Y(); got != 31 {
		t.Errorf("Y = %d, want 31", got)
	}
	if got := p.SM[0].X(); got != 0xFFFFFFFF {
		t.Errorf("X = %x, want ffffffff", got)
	}
	if got := p.SM[0].PC(); got != 3 {
		t.Errorf("PC = %d, want 3", got)
	}
}

func TestFIFOStatus(t *testing.T) {
	c := NewChip(125_000_000)
	p := &c.PIO[0]
	for i := range 4 {
		c.Bus.Write32(p.TXF(1), uint32(i))
	}
	fstat := c.Bus.Read32(p.Base()+PIOFstat, false)
	if fstat&(1<<(16+1)) == 0 {
		t.Errorf("TXFULL1 not set: %08x", fstat)
	}
	if p.dreq(1) {
		t.Error("TX DREQ asserted on a full FIFO")
	}
	if fstat&(1<<(8+1)) == 0 {
		t.Errorf("RXEMPTY1 not set: %08x", fstat)
	}
	if got := c.Bus.Read32(p.Base()+PIOFlvl, false); got != 4<<8 {
		t.Errorf("FLEVEL = %08x, want %08x", got, 4<<8)
	}
}
