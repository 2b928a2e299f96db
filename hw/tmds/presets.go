package tmds

// CGA is the 16-colour RGBI palette, with the usual brown fix on slot 6.
var CGA = []uint32{
	0x000000, 0x0000AA, 0x00AA00, 0x00AAAA,
	0xAA0000, 0xAA00AA, 0xAA5500, 0xAAAAAA,
	0x555555, 0x5555FF, 0x55FF55, 0x55FFFF,
	0xFF5555, 0xFF55FF, 0xFFFF55, 0xFFFFFF,
}

// Mono maps the 16 text attributes to shades of a green phosphor.
var Mono = []uint32{
	0x000000, 0x001800, 0x003000, 0x004800,
	0x006000, 0x007800, 0x009000, 0x00A800,
	0x005000, 0x006800, 0x008000, 0x009800,
	0x00B000, 0x00C800, 0x00E000, 0x00FF00,
}

// VGA returns the default 256-colour VGA palette: the 16 CGA colours, a 16
// step grey ramp, then a 6x6x6 colour cube. Only the first 251 slots are
// programmable.
func VGA() []uint32 {
	pal := make([]uint32, 0, 256)
	pal = append(pal, CGA...)
	for i := range 16 {
		v := uint32(i * 0x11)
		pal = append(pal, v<<16|v<<8|v)
	}
	for r := range 6 {
		for g := range 6 {
			for b := range 6 {
				pal = append(pal, uint32(r*51)<<16|uint32(g*51)<<8|uint32(b*51))
			}
		}
	}
	return pal
}

// PresetByName returns a named palette preset.
func PresetByName(name string) ([]uint32, bool) {
	switch name {
	case "cga", "":
		return CGA, true
	case "mono":
		return Mono, true
	case "vga":
		return VGA(), true
	}
	return nil, false
}
