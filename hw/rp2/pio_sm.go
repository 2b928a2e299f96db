package rp2

import (
	"math/bits"

	"picohdmi/emu/log"
	"picohdmi/hw/hwio"
)

type fifo struct {
	buf  [2 * fifoDepth]uint32
	head int
	n    int
	cap  int
}

func (f *fifo) full() bool  { return f.n >= f.cap }
func (f *fifo) empty() bool { return f.n == 0 }

func (f *fifo) push(v uint32) bool {
	if f.full() {
		return false
	}
	f.buf[(f.head+f.n)%len(f.buf)] = v
	f.n++
	return true
}

func (f *fifo) pop() (uint32, bool) {
	if f.empty() {
		return 0, false
	}
	v := f.buf[f.head]
	f.head = (f.head + 1) % len(f.buf)
	f.n--
	return v, true
}

// StateMachine is one PIO state machine.
type StateMachine struct {
	pio     *PIO
	num     int
	cfg     SMConfig
	enabled bool

	pc       uint8
	x, y     uint32
	osr, isr uint32
	osrCount uint8 // bits shifted out of OSR since the last pull
	isrCount uint8 // bits shifted into ISR since the last push
	delay    uint8
	stalled  bool
	clkAcc   uint32

	drovePins bool

	tx, rx fifo

	Executed uint64 // completed instructions
	Stalls   uint64 // cycles spent stalled
	TxDrops  uint64 // writes to a full TX FIFO
}

func (sm *StateMachine) PC() uint8        { return sm.pc }
func (sm *StateMachine) X() uint32        { return sm.x }
func (sm *StateMachine) Y() uint32        { return sm.y }
func (sm *StateMachine) Enabled() bool    { return sm.enabled }
func (sm *StateMachine) Config() SMConfig { return sm.cfg }
func (sm *StateMachine) TxLevel() int     { return sm.tx.n }
func (sm *StateMachine) RxLevel() int     { return sm.rx.n }
func (sm *StateMachine) Stalled() bool    { return sm.stalled }

// ClearFIFOs empties both FIFOs and applies the current join setting.
func (sm *StateMachine) ClearFIFOs() {
	sm.tx, sm.rx = fifo{cap: fifoDepth}, fifo{cap: fifoDepth}
	switch sm.cfg.Join {
	case JoinTX:
		sm.tx.cap, sm.rx.cap = 2*fifoDepth, 0
	case JoinRX:
		sm.tx.cap, sm.rx.cap = 0, 2*fifoDepth
	}
}

func (sm *StateMachine) restart() {
	sm.osrCount = 32
	sm.isrCount = 0
	sm.isr = 0
	sm.delay = 0
	sm.stalled = false
	sm.clkAcc = 0
}

func (sm *StateMachine) push(v uint32) {
	if !sm.tx.push(v) {
		sm.TxDrops++
		log.ModPIO.WarnZ("TX FIFO overflow").Int("pio", sm.pio.num).Int("sm", sm.num).End()
	}
}

func (sm *StateMachine) pop() uint32 {
	v, _ := sm.rx.pop()
	return v
}

// clock is called once per system cycle and advances the state machine by as
// many instruction cycles as its divider allows.
func (sm *StateMachine) clock() {
	sm.clkAcc += 256
	div := sm.cfg.divider()
	for sm.clkAcc >= div {
		sm.clkAcc -= div
		sm.cycle()
	}
}

func (sm *StateMachine) cycle() {
	if sm.delay > 0 {
		sm.delay--
		return
	}
	in := sm.pio.instr[sm.pc]
	side, hasSide, delay := sm.decodeDelaySide(in)
	if hasSide {
		sm.sideset(side)
	}
	jumped, done := sm.execute(in)
	if !done {
		sm.stalled = true
		sm.Stalls++
		return
	}
	sm.stalled = false
	sm.Executed++
	if hasSide || sm.drovePins {
		sm.drovePins = false
		sm.pio.gpio.notify()
	}
	sm.delay = delay
	if !jumped {
		sm.advance()
	}
}

func (sm *StateMachine) advance() {
	if sm.pc == sm.cfg.Wrap {
		sm.pc = sm.cfg.WrapTarget
	} else {
		sm.pc = (sm.pc + 1) & 31
	}
}

// exec runs a forced instruction immediately. Delays are ignored.
func (sm *StateMachine) exec(in uint16) {
	side, hasSide, _ := sm.decodeDelaySide(in)
	if hasSide {
		sm.sideset(side)
	}
	sm.execute(in)
	sm.drovePins = false
}

func (sm *StateMachine) decodeDelaySide(in uint16) (side uint8, hasSide bool, delay uint8) {
	field := uint8(in>>8) & 0x1F
	n := sm.cfg.SidesetCount
	if n == 0 {
		return 0, false, field
	}
	delay = field & (1<<(5-n) - 1)
	side = field >> (5 - n)
	if sm.cfg.SidesetOpt {
		if side&(1<<(n-1)) == 0 {
			return 0, false, delay
		}
		side &= 1<<(n-1) - 1
	}
	return side, true, delay
}

func (sm *StateMachine) sidesetBits() uint8 {
	if sm.cfg.SidesetOpt {
		return sm.cfg.SidesetCount - 1
	}
	return sm.cfg.SidesetCount
}

func (sm *StateMachine) sideset(v uint8) {
	mask := pinMask(sm.cfg.SidesetBase, sm.sidesetBits())
	val := rotl(uint32(v), sm.cfg.SidesetBase)
	if sm.cfg.SidesetDirs {
		sm.pio.gpio.setDirs(val, mask)
	} else {
		sm.pio.gpio.drive(val, mask)
	}
}

func (sm *StateMachine) writePins(v uint32, base, count uint8) {
	sm.pio.gpio.drive(rotl(v, base), pinMask(base, count))
	sm.drovePins = true
}

func (sm *StateMachine) writeDirs(v uint32, base, count uint8) {
	sm.pio.gpio.setDirs(rotl(v, base), pinMask(base, count))
}

func (sm *StateMachine) readPins() uint32 {
	b := sm.cfg.InBase & 31
	p := sm.pio.gpio.out
	return p>>b | p<<(32-b)
}

// execute runs one instruction. It reports whether the program counter was
// written and whether the instruction completed (false means stalled).
func (sm *StateMachine) execute(in uint16) (jumped, done bool) {
	arg1 := uint8(in>>5) & 7
	arg2 := uint8(in) & 0x1F
	switch in >> 13 {
	case opJMP:
		if sm.jmpCond(arg1) {
			sm.pc = arg2
			return true, true
		}
		return false, true
	case opWAIT:
		return false, sm.wait(arg1>>2 != 0, arg1&3, arg2)
	case opIN:
		return false, sm.in(arg1, arg2)
	case opOUT:
		return sm.out(arg1, arg2)
	case opPUSH:
		if arg1&4 != 0 {
			return false, sm.pull(arg1&2 != 0, arg1&1 != 0)
		}
		return false, sm.pushISR(arg1&2 != 0, arg1&1 != 0)
	case opMOV:
		return sm.mov(arg1, (arg2>>3)&3, arg2&7), true
	case opIRQ:
		return false, sm.irq(arg1&2 != 0, arg1&1 != 0, arg2)
	case opSET:
		sm.set(arg1, uint32(arg2))
		return false, true
	}
	return false, true
}

func (sm *StateMachine) jmpCond(cond uint8) bool {
	switch cond {
	case JmpAlways:
		return true
	case JmpNotX:
		return sm.x == 0
	case JmpXDec:
		x := sm.x
		sm.x--
		return x != 0
	case JmpNotY:
		return sm.y == 0
	case JmpYDec:
		y := sm.y
		sm.y--
		return y != 0
	case JmpXNotY:
		return sm.x != sm.y
	case JmpPin:
		return hwio.GetBit32(sm.pio.gpio.out, uint(sm.cfg.JmpPin&31))
	case JmpNotOSRE:
		return sm.osrCount < threshold(sm.cfg.PullThreshold)
	}
	return false
}

func (sm *StateMachine) wait(polarity bool, src, index uint8) bool {
	var level bool
	switch src {
	case 0:
		level = sm.pio.gpio.out&(1<<index) != 0
	case 1:
		level = sm.readPins()&(1<<index) != 0
	case 2:
		n := sm.irqIndex(index)
		level = sm.pio.irqFlags&(1<<n) != 0
		if level && polarity {
			sm.pio.irqFlags &^= 1 << n
			return true
		}
	}
	return level == polarity
}

func (sm *StateMachine) irqIndex(index uint8) uint8 {
	if index&0x10 != 0 {
		return (index&3+uint8(sm.num))&3 | index&4
	}
	return index & 7
}

func (sm *StateMachine) source(src uint8) uint32 {
	switch src {
	case SrcDstPins:
		return sm.readPins()
	case SrcDstX:
		return sm.x
	case SrcDstY:
		return sm.y
	case SrcDstISR:
		return sm.isr
	case SrcDstOSR:
		return sm.osr
	}
	return 0
}

func (sm *StateMachine) in(src, n uint8) bool {
	if n == 0 {
		n = 32
	}
	thresh := threshold(sm.cfg.PushThreshold)
	if sm.cfg.Autopush && sm.isrCount >= thresh {
		if sm.rx.full() {
			return false
		}
		sm.rx.push(sm.isr)
		sm.isr, sm.isrCount = 0, 0
	}
	data := sm.source(src)
	if n < 32 {
		data &= 1<<n - 1
	}
	if sm.cfg.InShiftRight {
		if n == 32 {
			sm.isr = data
		} else {
			sm.isr = sm.isr>>n | data<<(32-n)
		}
	} else {
		if n == 32 {
			sm.isr = data
		} else {
			sm.isr = sm.isr<<n | data
		}
	}
	sm.isrCount = min(32, sm.isrCount+n)
	if sm.cfg.Autopush && sm.isrCount >= thresh && sm.rx.push(sm.isr) {
		sm.isr, sm.isrCount = 0, 0
	}
	return true
}

func (sm *StateMachine) out(dst, n uint8) (jumped, done bool) {
	if n == 0 {
		n = 32
	}
	if sm.cfg.Autopull && sm.osrCount >= threshold(sm.cfg.PullThreshold) {
		v, ok := sm.tx.pop()
		if !ok {
			return false, false
		}
		sm.osr, sm.osrCount = v, 0
	}
	var data uint32
	switch {
	case n == 32:
		data, sm.osr = sm.osr, 0
	case sm.cfg.OutShiftRight:
		data = sm.osr & (1<<n - 1)
		sm.osr >>= n
	default:
		data = sm.osr >> (32 - n)
		sm.osr <<= n
	}
	sm.osrCount = min(32, sm.osrCount+n)

	switch dst {
	case SrcDstPins:
		sm.writePins(data, sm.cfg.OutBase, sm.cfg.OutCount)
	case SrcDstX:
		sm.x = data
	case SrcDstY:
		sm.y = data
	case SrcDstPindirs:
		sm.writeDirs(data, sm.cfg.OutBase, sm.cfg.OutCount)
	case SrcDstPC:
		sm.pc = uint8(data) & 31
		return true, true
	case SrcDstISR:
		sm.isr, sm.isrCount = data, n
	case OutDstExec:
		sm.exec(uint16(data))
	}
	return false, true
}

func (sm *StateMachine) pushISR(ifFull, block bool) bool {
	if ifFull && sm.isrCount < threshold(sm.cfg.PushThreshold) {
		return true
	}
	if !sm.rx.push(sm.isr) && block {
		return false
	}
	sm.isr, sm.isrCount = 0, 0
	return true
}

func (sm *StateMachine) pull(ifEmpty, block bool) bool {
	if ifEmpty && sm.osrCount < threshold(sm.cfg.PullThreshold) {
		return true
	}
	v, ok := sm.tx.pop()
	if !ok {
		if block {
			return false
		}
		v = sm.x
	}
	sm.osr, sm.osrCount = v, 0
	return true
}

func (sm *StateMachine) mov(dst, op, src uint8) (jumped bool) {
	var v uint32
	if src == SrcDstStatus {
		// STATUS reads all-ones while the TX FIFO level is below N, with N
		// fixed at 1 in this model.
		if sm.tx.empty() {
			v = ^uint32(0)
		}
	} else {
		v = sm.source(src)
	}
	switch op {
	case MovInvert:
		v = ^v
	case MovReverse:
		v = bits.Reverse32(v)
	}
	switch dst {
	case SrcDstPins:
		sm.writePins(v, sm.cfg.OutBase, sm.cfg.OutCount)
	case SrcDstX:
		sm.x = v
	case SrcDstY:
		sm.y = v
	case SrcDstExec:
		sm.exec(uint16(v))
	case SrcDstPC:
		sm.pc = uint8(v) & 31
		return true
	case SrcDstISR:
		sm.isr, sm.isrCount = v, 0
	case SrcDstOSR:
		sm.osr, sm.osrCount = v, 0
	}
	return false
}

func (sm *StateMachine) irq(clear, wait bool, index uint8) bool {
	n := sm.irqIndex(index)
	if clear {
		sm.pio.irqFlags &^= 1 << n
		return true
	}
	if !sm.stalled {
		sm.pio.irqFlags |= 1 << n
	}
	if wait {
		return sm.pio.irqFlags&(1<<n) == 0
	}
	return true
}

func (sm *StateMachine) set(dst uint8, v uint32) {
	switch dst {
	case SrcDstPins:
		sm.writePins(v, sm.cfg.SetBase, sm.cfg.SetCount)
	case SrcDstX:
		sm.x = v
	case SrcDstY:
		sm.y = v
	case SrcDstPindirs:
		sm.writeDirs(v, sm.cfg.SetBase, sm.cfg.SetCount)
	}
}
