// Package script drives a machine from Lua: writing video memory, switching
// modes, reading the status port and reacting to frames.
package script

import (
	"fmt"
	"image"

	lua "github.com/yuin/gopher-lua"

	"picohdmi/emu"
	"picohdmi/emu/log"
	"picohdmi/hw/hwdefs"
	"picohdmi/hw/modes"
)

// Name of the optional global function called with the frame number after
// each received frame.
const onFrameFunc = "on_frame"

type Script struct {
	L *lua.LState
	m *emu.Machine

	err error
}

// New creates a Lua state exposing m.
func New(m *emu.Machine) *Script {
	s := &Script{L: lua.NewState(), m: m}
	for name, fn := range map[string]lua.LGFunction{
		"poke":             s.poke,
		"peek":             s.peek,
		"tpoke":            s.tpoke,
		"tpeek":            s.tpeek,
		"fill":             s.fill,
		"print_at":         s.printAt,
		"set_mode":         s.setMode,
		"set_palette":      s.setPalette,
		"set_background":   s.setBackground,
		"set_offset":       s.setOffset,
		"set_cursor":       s.setCursor,
		"set_cursor_shape": s.setCursorShape,
		"set_blinking":     s.setBlinking,
		"inb":              s.inb,
		"frame":            s.frame,
		"scanline":         s.scanline,
		"run_frames":       s.runFrames,
		"log":              s.log,
	} {
		s.L.SetGlobal(name, s.L.NewFunction(fn))
	}
	m.OnFrame(s.frameHook)
	return s
}

func (s *Script) Close() { s.L.Close() }

// RunFile executes the Lua file at path.
func (s *Script) RunFile(path string) error {
	if err := s.L.DoFile(path); err != nil {
		return fmt.Errorf("script %s: %w", path, err)
	}
	return nil
}

// RunString executes a Lua chunk.
func (s *Script) RunString(src string) error {
	if err := s.L.DoString(src); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	return nil
}

// Err returns the first error raised by the frame callback. The machine is
// stopped when that happens.
func (s *Script) Err() error { return s.err }

func (s *Script) frameHook(n int, _ *image.RGBA) {
	fn, ok := s.L.GetGlobal(onFrameFunc).(*lua.LFunction)
	if !ok || s.err != nil {
		return
	}
	err := s.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, lua.LNumber(n))
	if err != nil {
		s.err = fmt.Errorf("%s(%d): %w", onFrameFunc, n, err)
		log.ModScript.ErrorZ("Frame callback failed").Int("frame", n).Error("err", err).End()
		s.m.Stop()
	}
}

func checkIndex(L *lua.LState, n int, buf []byte) int {
	i := L.CheckInt(n)
	if i < 0 || i >= len(buf) {
		L.ArgError(n, fmt.Sprintf("address %#x out of range [0, %#x)", i, len(buf)))
	}
	return i
}

// poke(addr, val)
func (s *Script) poke(L *lua.LState) int {
	i := checkIndex(L, 1, s.m.VRAM)
	s.m.VRAM[i] = uint8(L.CheckInt(2))
	return 0
}

// peek(addr) -> val
func (s *Script) peek(L *lua.LState) int {
	L.Push(lua.LNumber(s.m.VRAM[checkIndex(L, 1, s.m.VRAM)]))
	return 1
}

func (s *Script) tpoke(L *lua.LState) int {
	i := checkIndex(L, 1, s.m.Text)
	s.m.Text[i] = uint8(L.CheckInt(2))
	return 0
}

func (s *Script) tpeek(L *lua.LState) int {
	L.Push(lua.LNumber(s.m.Text[checkIndex(L, 1, s.m.Text)]))
	return 1
}

// fill(addr, count, val)
func (s *Script) fill(L *lua.LState) int {
	i := checkIndex(L, 1, s.m.VRAM)
	n := L.CheckInt(2)
	v := uint8(L.CheckInt(3))
	end := min(i+max(n, 0), len(s.m.VRAM))
	for j := i; j < end; j++ {
		s.m.VRAM[j] = v
	}
	return 0
}

// print_at(col, row, str [, attr])
func (s *Script) printAt(L *lua.LState) int {
	col, row := L.CheckInt(1), L.CheckInt(2)
	str := L.CheckString(3)
	attr := uint8(L.OptInt(4, 0x07))

	cols, _ := modes.Resolution(s.m.Video.Mode())
	if !s.m.Video.Mode().IsText() {
		cols = 80
	}
	off := (row*cols + col) * 2
	for i := 0; i < len(str) && off+1 < len(s.m.Text); i++ {
		if off >= 0 {
			s.m.Text[off], s.m.Text[off+1] = str[i], attr
		}
		off += 2
	}
	return 0
}

// set_mode(name)
func (s *Script) setMode(L *lua.LState) int {
	mode, err := hwdefs.ParseDisplayMode(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
	}
	s.m.SetMode(mode)
	return 0
}

// set_palette(index, rgb)
func (s *Script) setPalette(L *lua.LState) int {
	idx := L.CheckInt(1)
	if idx < 0 || idx >= hwdefs.NumPaletteSlots {
		L.ArgError(1, fmt.Sprintf("palette index %d out of range [0, %d)", idx, hwdefs.NumPaletteSlots))
	}
	s.m.Video.SetPalette(uint8(idx), uint32(L.CheckInt(2)))
	return 0
}

func (s *Script) setBackground(L *lua.LState) int {
	s.m.Video.SetBackground(uint32(L.CheckInt(1)))
	return 0
}

func (s *Script) setOffset(L *lua.LState) int {
	s.m.Video.SetOffset(L.CheckInt(1), L.CheckInt(2))
	return 0
}

func (s *Script) setCursor(L *lua.LState) int {
	s.m.Video.SetCursor(L.CheckInt(1), L.CheckInt(2))
	return 0
}

func (s *Script) setCursorShape(L *lua.LState) int {
	s.m.Video.SetCursorShape(L.CheckInt(1), L.CheckInt(2))
	return 0
}

func (s *Script) setBlinking(L *lua.LState) int {
	s.m.Video.SetBlinking(L.CheckBool(1))
	return 0
}

// inb(port) -> val
func (s *Script) inb(L *lua.LState) int {
	port := L.CheckInt(1)
	if port < 0 || port > 0xFFFF {
		L.ArgError(1, fmt.Sprintf("port %#x out of range", port))
	}
	L.Push(lua.LNumber(s.m.IO.Read8(uint32(port))))
	return 1
}

func (s *Script) frame(L *lua.LState) int {
	L.Push(lua.LNumber(s.m.Monitor.Stats().Frames))
	return 1
}

func (s *Script) scanline(L *lua.LState) int {
	L.Push(lua.LNumber(s.m.Video.Scanline()))
	return 1
}

// run_frames(n) runs the machine until n more frames are received.
func (s *Script) runFrames(L *lua.LState) int {
	err := s.m.RunFrames(L.CheckInt(1))
	if err == nil {
		err = s.err
	}
	if err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (s *Script) log(L *lua.LState) int {
	log.ModScript.InfoZ(L.CheckString(1)).End()
	return 0
}
