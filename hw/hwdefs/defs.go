package hwdefs

import (
	"fmt"
	"strings"
)

// 640x480@60Hz timing, in pixels and lines.
const (
	HActive     = 640
	HFrontPorch = 16
	HSyncWidth  = 96
	HBackPorch  = 48
	HTotal      = HFrontPorch + HSyncWidth + HBackPorch + HActive // 800

	// Start of active video within a line buffer.
	HActiveStart = HFrontPorch + HSyncWidth + HBackPorch // 160

	VActive     = 480
	VSyncStart  = 490
	VSyncWidth  = 2
	VTotal      = 525
	LastLine    = VTotal - 1
	VSyncEnd    = VSyncStart + VSyncWidth
	BitsPerWord = 10

	// PixelClock is the 640x480@60 dot clock, in Hz. The serial bit clock is
	// ten times that.
	PixelClock = 25_200_000
	BitClock   = PixelClock * BitsPerWord
)

// Reserved palette indices.
const (
	CtrlBase        = 251
	CtrlHSync       = CtrlBase + 0 // hsync asserted, vsync released
	CtrlIdle        = CtrlBase + 1 // both released
	CtrlHVSync      = CtrlBase + 2 // both asserted
	CtrlVSync       = CtrlBase + 3 // hsync released, vsync asserted
	BackgroundIndex = 250
	NumPaletteSlots = CtrlBase
)

type DisplayMode uint8

const (
	Text80x25Color DisplayMode = iota
	Text80x25Mono
	Text40x25Color
	Text40x25Mono
	CGA320x200x4
	CGA320x200x4Mono
	CGA640x200x2
	TGA160x200x16
	Composite160x200x16
	Composite160x200x16Force
	TGA320x200x16
	TGA640x200x16
	EGA320x200x16
	EGA640x200x16
	EGA640x350x16
	VGA640x480x2
	VGA640x480x16
	VGA320x200x256
	VGA320x200x256x4

	NumDisplayModes
)

var modeNames = [NumDisplayModes]string{
	"text80",
	"text80-mono",
	"text40",
	"text40-mono",
	"cga320",
	"cga320-mono",
	"cga640",
	"tga160",
	"composite160",
	"composite160-force",
	"tga320",
	"tga640",
	"ega320",
	"ega640",
	"ega640x350",
	"vga640x2",
	"vga640x16",
	"vga320",
	"vga320-unchained",
}

func (m DisplayMode) String() string {
	if m < NumDisplayModes {
		return modeNames[m]
	}
	return fmt.Sprintf("DisplayMode(%d)", uint8(m))
}

// IsText reports whether m reads the character/attribute buffer rather than
// the graphics framebuffer.
func (m DisplayMode) IsText() bool {
	return m <= Text40x25Mono
}

// ParseDisplayMode returns the mode with the given name (case insensitive).
func ParseDisplayMode(s string) (DisplayMode, error) {
	for i, n := range modeNames {
		if strings.EqualFold(n, s) {
			return DisplayMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown display mode %q", s)
}

// DisplayModeNames returns the names of all display modes, in order.
func DisplayModeNames() []string {
	return append([]string(nil), modeNames[:]...)
}

func (m DisplayMode) MarshalText() ([]byte, error) {
	if m >= NumDisplayModes {
		return nil, fmt.Errorf("invalid display mode %d", m)
	}
	return []byte(m.String()), nil
}

func (m *DisplayMode) UnmarshalText(text []byte) error {
	mode, err := ParseDisplayMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ChannelOrder is the order in which the three TMDS lanes are wired to the
// six data pins, most significant pin pair first.
type ChannelOrder uint8

const (
	RGB ChannelOrder = iota
	BGR
)

func (o ChannelOrder) String() string {
	if o == BGR {
		return "bgr"
	}
	return "rgb"
}

func (o ChannelOrder) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *ChannelOrder) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "rgb":
		*o = RGB
	case "bgr":
		*o = BGR
	default:
		return fmt.Errorf("unknown channel order %q", text)
	}
	return nil
}
