package rp2

import "picohdmi/emu/log"

const numIRQs = 32

// NVIC dispatches level-triggered interrupts to registered handlers.
type NVIC struct {
	handlers [numIRQs]func()
	enabled  uint32
	Fired    [numIRQs]uint64 // per-IRQ dispatch count
}

func (n *NVIC) SetHandler(irq int, h func()) {
	if n.handlers[irq] != nil {
		log.ModEmu.WarnZ("replacing exclusive interrupt handler").Int("irq", irq).End()
	}
	n.handlers[irq] = h
}

func (n *NVIC) RemoveHandler(irq int) {
	n.handlers[irq] = nil
}

func (n *NVIC) Handler(irq int) func() {
	return n.handlers[irq]
}

func (n *NVIC) SetEnabled(irq int, enabled bool) {
	if enabled {
		n.enabled |= 1 << irq
	} else {
		n.enabled &^= 1 << irq
	}
}

func (n *NVIC) Enabled(irq int) bool {
	return n.enabled&(1<<irq) != 0
}

// raise runs the handler for irq if it is enabled. The line is level
// triggered: if the handler does not acknowledge the source, it runs again
// on the next cycle.
func (n *NVIC) raise(irq int) {
	if !n.Enabled(irq) || n.handlers[irq] == nil {
		return
	}
	n.Fired[irq]++
	n.handlers[irq]()
}
