package sysinfo

import (
	"sync"
	"time"
)

type netSample struct {
	recv uint64
	sent uint64
	at   time.Time
}

// netWindow keeps a bounded trail of interface counters and derives average
// throughput from the oldest and newest samples still inside the span.
type netWindow struct {
	mu      sync.Mutex
	span    time.Duration
	max     int
	samples []netSample
}

func newNetWindow(max int, span time.Duration) *netWindow {
	if max <= 0 {
		max = 10
	}
	if span <= 0 {
		span = 6 * time.Second
	}
	return &netWindow{max: max, span: span}
}

func (w *netWindow) add(s netSample) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, s)
	if len(w.samples) > w.max {
		w.samples = w.samples[len(w.samples)-w.max:]
	}
}

// speeds returns bytes per second received and sent. It needs two in-window
// samples; counter resets (interface bounce) read as zero rather than a
// huge unsigned wraparound.
func (w *netWindow) speeds(now time.Time) (recvPerSec float64, sentPerSec float64) {
	if w == nil {
		return 0, 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	first := -1
	for i, s := range w.samples {
		if now.Sub(s.at) <= w.span {
			first = i
			break
		}
	}
	if first < 0 || first == len(w.samples)-1 {
		return 0, 0
	}

	oldest := w.samples[first]
	newest := w.samples[len(w.samples)-1]
	dt := newest.at.Sub(oldest.at).Seconds()
	if dt <= 0 {
		return 0, 0
	}
	if newest.recv < oldest.recv || newest.sent < oldest.sent {
		return 0, 0
	}

	return float64(newest.recv-oldest.recv) / dt, float64(newest.sent-oldest.sent) / dt
}
