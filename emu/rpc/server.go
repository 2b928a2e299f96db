package rpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/rpc"
	"strconv"
	"time"

	"picohdmi/emu"
	"picohdmi/hw/hwdefs"
)

// Calls not served by the emulation loop within this delay fail.
const execTimeout = 5 * time.Second

type machineProxy struct {
	m *emu.Machine
}

func (mp *machineProxy) exec(fn func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()
	return mp.m.Exec(ctx, fn)
}

func (mp *machineProxy) Stop(_, _ *struct{}) error   { mp.m.Stop(); return nil }
func (mp *machineProxy) Reinit(_, _ *struct{}) error { mp.m.RequestReinit(); return nil }

func (mp *machineProxy) Poke(args PokeArgs, _ *struct{}) error {
	var err error
	xerr := mp.exec(func() {
		buf := mp.m.VRAM
		if args.Text {
			buf = mp.m.Text
		}
		if args.Addr < 0 || args.Addr+len(args.Data) > len(buf) {
			err = fmt.Errorf("poke [%#x, %#x) out of range", args.Addr, args.Addr+len(args.Data))
			return
		}
		copy(buf[args.Addr:], args.Data)
	})
	if xerr != nil {
		return xerr
	}
	return err
}

func (mp *machineProxy) SetMode(name string, _ *struct{}) error {
	mode, err := hwdefs.ParseDisplayMode(name)
	if err != nil {
		return err
	}
	return mp.exec(func() { mp.m.SetMode(mode) })
}

func (mp *machineProxy) Status(_ *struct{}, reply *Status) error {
	return mp.exec(func() {
		st := mp.m.Monitor.Stats()
		*reply = Status{
			Mode:     mp.m.Video.Mode().String(),
			Frames:   st.Frames,
			Ticks:    mp.m.Video.Ticks(),
			Scanline: mp.m.Video.Scanline(),
			Port3DA:  mp.m.Video.Status(),
			Reinits:  mp.m.Reinits(),
			Errors:   st.PairErrors + st.LineErrors + st.FrameErrors,
		}
	})
}

type Server struct {
	io.Closer
}

// NewServer serves m on port. Calls are only answered while the machine
// emulation loop is running.
func NewServer(port int, m *emu.Machine) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(serviceName, &machineProxy{m: m}); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, srv)

	l, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, err
	}

	modRPC.InfoZ("rpc server listening").Int("port", port).End()
	go http.Serve(l, mux)
	return &Server{Closer: l}, nil
}
