// Package rpc exposes a running machine over net/rpc, so that tools and
// tests can poke video memory and watch the link from another process.
package rpc

import (
	"net"

	"picohdmi/emu/log"
)

var modRPC = log.NewModule("rpc")

const serviceName = "machine"

func UnusedPort() int {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		panic("pickUnusedPort failed: " + err.Error())
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		panic("pickUnusedPort failed: " + err.Error())
	}
	return port
}

type PokeArgs struct {
	Addr int
	Data []byte
	Text bool // write the text buffer rather than the framebuffer
}

type Status struct {
	Mode     string
	Frames   int
	Ticks    uint64
	Scanline int
	Port3DA  uint8
	Reinits  int64
	Errors   int
}
