package emu

import (
	"context"
	"time"

	"picohdmi/emu/log"
)

// Watchdog calls onStall whenever the counter returned by ticks did not move
// during a whole interval.
type Watchdog struct {
	interval time.Duration
	ticks    func() uint64
	onStall  func()
}

func NewWatchdog(interval time.Duration, ticks func() uint64, onStall func()) *Watchdog {
	return &Watchdog{interval: interval, ticks: ticks, onStall: onStall}
}

// Run polls until ctx is done.
func (w *Watchdog) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	last := w.ticks()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			cur := w.ticks()
			if cur == last {
				log.ModEmu.ErrorZ("Video pipeline stalled").
					Uint("ticks", uint(cur)).
					Duration("interval", w.interval).
					End()
				w.onStall()
			}
			last = cur
		}
	}
}
