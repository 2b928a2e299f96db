package tmds

import "picohdmi/hw/hwdefs"

// Control codes sent during blanking, indexed by C1C0.
var controlCodes = [4]uint16{
	0b1101010100,
	0b0010101011,
	0b0101010100,
	0b1010101011,
}

// ControlCode returns the 10-bit control symbol for the C0/C1 levels.
func ControlCode(c0, c1 bool) uint16 {
	i := 0
	if c0 {
		i |= 1
	}
	if c1 {
		i |= 2
	}
	return controlCodes[i]
}

// IsControl reports whether sym is one of the four control symbols, and if so
// returns the levels it carries.
func IsControl(sym uint16) (c0, c1, ok bool) {
	for i, c := range controlCodes {
		if c == sym {
			return i&1 != 0, i&2 != 0, true
		}
	}
	return false, false, false
}

// SyncSymbol serializes a blanking period with the given sync state. Sync is
// active low: the blue lane carries HSYNC on C0 and VSYNC on C1, red and green
// carry C0=C1=0.
func SyncSymbol(hsync, vsync bool, l PinLayout) uint64 {
	idle := ControlCode(false, false)
	return Serialize(idle, idle, ControlCode(!hsync, !vsync), l)
}

// ControlSymbols returns the words for palette slots CtrlBase..CtrlBase+3.
func ControlSymbols(l PinLayout) [4]uint64 {
	return [4]uint64{
		hwdefs.CtrlHSync - hwdefs.CtrlBase:  SyncSymbol(true, false, l),
		hwdefs.CtrlIdle - hwdefs.CtrlBase:   SyncSymbol(false, false, l),
		hwdefs.CtrlHVSync - hwdefs.CtrlBase: SyncSymbol(true, true, l),
		hwdefs.CtrlVSync - hwdefs.CtrlBase:  SyncSymbol(false, true, l),
	}
}
