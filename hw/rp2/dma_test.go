package rp2

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func allocWords(t *testing.T, c *Chip, words ...uint32) uint32 {
	t.Helper()
	addr, err := c.Alloc(uint32(4*len(words)), 4)
	if err != nil {
		t.Fatal(err)
	}
	buf := c.Mem(addr, uint32(4*len(words)))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return addr
}

func readWords(c *Chip, addr uint32, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = c.Bus.Read32(addr+uint32(4*i), false)
	}
	return out
}

func TestDMACopy(t *testing.T) {
	c := NewChip(125_000_000)
	src := allocWords(t, c, 1, 2, 3, 4)
	dst := allocWords(t, c, 0, 0, 0, 0)

	cfg := DefaultChannelConfig(0)
	cfg.SetWriteIncrement(true)
	c.DMA.Configure(0, cfg, dst, src, 4, true)

	if !c.DMA.Channels[0].Busy() {
		t.Fatal("channel not busy after trigger")
	}
	c.Run(4)
	if c.DMA.Channels[0].Busy() {
		t.Fatal("channel still busy after 4 cycles")
	}
	if diff := cmp.Diff([]uint32{1, 2, 3, 4}, readWords(c, dst, 4)); diff != "" {
		t.Errorf("dst mismatch (-want +got):\n%s", diff)
	}
	if got := c.Bus.Read32(ChannelAddr(0, ChReadAddr), false); got != src+16 {
		t.Errorf("READ_ADDR = %08x, want %08x", got, src+16)
	}
	if got := c.Bus.Read32(DMAIntr, false); got != 1 {
		t.Errorf("INTR = %x, want 1", got)
	}
}

func TestDMAByteTransfers(t *testing.T) {
	c := NewChip(125_000_000)
	src, _ := c.Alloc(4, 4)
	copy(c.Mem(src, 4), []byte{0x11, 0x22, 0x33, 0x44})
	dst := allocWords(t, c, 0)

	cfg := DefaultChannelConfig(0)
	cfg.SetDataSize(Size8)
	c.DMA.Configure(0, cfg, dst, src, 3, true)
	c.Run(3)

	// Writes do not increment: the last byte lands at dst.
	if got := c.Mem(dst, 4); got[0] != 0x33 {
		t.Errorf("dst byte = %02x, want 33", got[0])
	}
}

func TestDMAChainReload(t *testing.T) {
	c := NewChip(125_000_000)
	src := allocWords(t, c, 7, 8)
	dst := allocWords(t, c, 0, 0)
	ctl := allocWords(t, c, src)

	// ch0 copies 2 words and chains to ch1, which rewrites ch0's read
	// address and chains back, forever.
	data := DefaultChannelConfig(0)
	data.SetWriteIncrement(false)
	data.SetChainTo(1)
	c.DMA.Configure(0, data, dst, src, 2, false)

	ctrl := DefaultChannelConfig(1)
	ctrl.SetReadIncrement(false)
	ctrl.SetChainTo(0)
	ctrl.SetIRQQuiet(true)
	c.DMA.Configure(1, ctrl, ChannelAddr(0, ChReadAddr), ctl, 1, false)

	c.DMA.Start(1 << 1)
	c.Run(30)

	ch0 := &c.DMA.Channels[0]
	if ch0.Transfers < 10 {
		t.Errorf("data channel made %d transfers, want >= 10", ch0.Transfers)
	}
	if got := ch0.TRANSCOUNT.Value; got != 2 {
		t.Errorf("TRANS_COUNT reload = %d, want 2", got)
	}
	if got := c.DMA.Channels[1].Transfers; got < 5 {
		t.Errorf("control channel made %d transfers, want >= 5", got)
	}
	if got := c.Bus.Read32(DMAIntr, false); got&2 != 0 {
		t.Errorf("quiet channel raised INTR: %x", got)
	}
}

func TestDMAAbort(t *testing.T) {
	c := NewChip(125_000_000)
	src, _ := c.Alloc(1024, 4)
	dst := allocWords(t, c, 0)

	for ch := range 3 {
		cfg := DefaultChannelConfig(ch)
		cfg.SetReadIncrement(false)
		c.DMA.Configure(ch, cfg, dst, src, 1000, true)
	}
	c.Run(10)
	c.DMA.Abort(0b111)

	reads := 0
	for c.Bus.Read32(DMAChanAbort, false) != 0 {
		reads++
		if reads > NumDMAChannels {
			t.Fatal("CHAN_ABORT never cleared")
		}
	}
	for ch := range 3 {
		if c.DMA.Channels[ch].Busy() {
			t.Errorf("channel %d busy after abort", ch)
		}
	}
	if got := c.Bus.Read32(DMAIntr, false); got != 0 {
		t.Errorf("abort raised INTR: %x", got)
	}
}

func TestDMAIRQ(t *testing.T) {
	c := NewChip(125_000_000)
	src := allocWords(t, c, 1)
	dst := allocWords(t, c, 0)

	calls := 0
	c.NVIC.SetHandler(IRQDMA0, func() {
		calls++
		c.DMA.AckIRQ0(2)
	})
	c.NVIC.SetEnabled(IRQDMA0, true)
	c.DMA.SetIRQ0Enabled(2, true)

	c.DMA.Configure(2, DefaultChannelConfig(2), dst, src, 1, true)
	c.Run(5)

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if got := c.Bus.Read32(DMAInts0, false); got != 0 {
		t.Errorf("INTS0 = %x after ack, want 0", got)
	}
}

func TestDMAClaim(t *testing.T) {
	c := NewChip(125_000_000)
	for i := range NumDMAChannels {
		ch, err := c.DMA.ClaimUnused()
		if err != nil || ch != i {
			t.Fatalf("claim %d: got %d, %v", i, ch, err)
		}
	}
	if _, err := c.DMA.ClaimUnused(); !errors.Is(err, ErrNoFreeChannel) {
		t.Errorf("got %v, want ErrNoFreeChannel", err)
	}
	c.DMA.Unclaim(5)
	if ch, err := c.DMA.ClaimUnused(); err != nil || ch != 5 {
		t.Errorf("reclaim: got %d, %v", ch, err)
	}
}

func TestAlloc(t *testing.T) {
	c := NewChip(125_000_000)
	a, err := c.Alloc(3, 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Alloc(16, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if a != SRAMBase || b != SRAMBase+4096 {
		t.Errorf("got %08x %08x", a, b)
	}
	if _, err := c.Alloc(SRAMSize, 4); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("got %v, want ErrOutOfMemory", err)
	}
}
