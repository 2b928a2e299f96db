package rp2

const NumPins = 30

// GPIO holds the output levels driven by the PIO blocks.
type GPIO struct {
	out uint32
	oe  uint32

	observers []func(pins uint32)
}

func (g *GPIO) drive(values, mask uint32) {
	g.out = g.out&^mask | values&mask
}

func (g *GPIO) setDirs(values, mask uint32) {
	g.oe = g.oe&^mask | values&mask
}

// Pins returns the current output levels.
func (g *GPIO) Pins() uint32 { return g.out }

// Dirs returns the current output enables.
func (g *GPIO) Dirs() uint32 { return g.oe }

// Observe registers fn to be called with the pin levels each time a state
// machine completes an instruction that drives pins.
func (g *GPIO) Observe(fn func(pins uint32)) {
	g.observers = append(g.observers, fn)
}

func (g *GPIO) notify() {
	for _, fn := range g.observers {
		fn(g.out)
	}
}

// pinMask returns the mask of count consecutive pins from base, wrapping
// around at 32.
func pinMask(base, count uint8) uint32 {
	if count == 0 {
		return 0
	}
	m := uint32(1)<<count - 1
	if count >= 32 {
		m = ^uint32(0)
	}
	return m<<(base&31) | m>>(32-base&31)
}

// rotl places the count low bits of v at pin base, wrapping around at 32.
func rotl(v uint32, base uint8) uint32 {
	b := base & 31
	return v<<b | v>>(32-b)
}
