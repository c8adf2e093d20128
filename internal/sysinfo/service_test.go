package sysinfo

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func Test_netWindow_speeds_windowedAverage(t *testing.T) {
	w := newNetWindow(10, 6*time.Second)
	now := time.Now()

	// A sample outside the span must not distort the result.
	w.add(netSample{recv: 0, sent: 0, at: now.Add(-10 * time.Second)})

	// +200 bytes over 2s in both directions => 100 B/s.
	w.add(netSample{recv: 1000, sent: 500, at: now.Add(-2 * time.Second)})
	w.add(netSample{recv: 1200, sent: 700, at: now})

	recv, sent := w.speeds(now)
	if recv < 99 || recv > 101 {
		t.Fatalf("recv speed = %v, want ~= 100", recv)
	}
	if sent < 99 || sent > 101 {
		t.Fatalf("sent speed = %v, want ~= 100", sent)
	}

	recv2, sent2 := w.speeds(now)
	if recv2 != recv || sent2 != sent {
		t.Fatalf("speed changed between calls: got (%v,%v) want (%v,%v)", recv2, sent2, recv, sent)
	}
}

func Test_netWindow_speeds_needsTwoSamples(t *testing.T) {
	w := newNetWindow(10, 6*time.Second)
	now := time.Now()

	if recv, sent := w.speeds(now); recv != 0 || sent != 0 {
		t.Fatalf("empty window produced speeds (%v,%v)", recv, sent)
	}

	w.add(netSample{recv: 1000, sent: 500, at: now})
	if recv, sent := w.speeds(now); recv != 0 || sent != 0 {
		t.Fatalf("single sample produced speeds (%v,%v)", recv, sent)
	}
}

func Test_netWindow_speeds_counterReset(t *testing.T) {
	w := newNetWindow(10, 6*time.Second)
	now := time.Now()

	w.add(netSample{recv: 5000, sent: 5000, at: now.Add(-2 * time.Second)})
	w.add(netSample{recv: 100, sent: 100, at: now})

	if recv, sent := w.speeds(now); recv != 0 || sent != 0 {
		t.Fatalf("counter reset produced speeds (%v,%v), want zeros", recv, sent)
	}
}

func Test_netWindow_trimsToMax(t *testing.T) {
	w := newNetWindow(3, time.Minute)
	now := time.Now()
	for i := 0; i < 10; i++ {
		w.add(netSample{recv: uint64(i * 100), at: now.Add(time.Duration(i) * time.Second)})
	}
	if len(w.samples) != 3 {
		t.Fatalf("samples = %d, want trimmed to 3", len(w.samples))
	}
}

func Test_average(t *testing.T) {
	if got := average(nil); got != 0 {
		t.Fatalf("average(nil) = %v", got)
	}
	if got := average([]float64{10, 20, 30}); got != 20 {
		t.Fatalf("average = %v, want 20", got)
	}
}

func TestSnapshotAlwaysProduced(t *testing.T) {
	s := NewService(t.TempDir(), discardLogger())
	snap := s.Snapshot(context.Background())

	if snap.Platform != runtime.GOOS {
		t.Fatalf("platform = %q, want %q", snap.Platform, runtime.GOOS)
	}
	if snap.TimestampMs <= 0 {
		t.Fatalf("timestamp = %d", snap.TimestampMs)
	}
}

func TestSnapshotCachedWithinTTL(t *testing.T) {
	s := NewService(t.TempDir(), discardLogger())
	ctx := context.Background()

	first := s.Snapshot(ctx)
	second := s.Snapshot(ctx)
	if first.TimestampMs != second.TimestampMs {
		t.Fatalf("snapshot recollected inside TTL: %d then %d", first.TimestampMs, second.TimestampMs)
	}
}

func TestSnapshotDegradesOnBadDiskPath(t *testing.T) {
	s := NewService("/does/not/exist/anywhere", discardLogger())
	snap := s.Snapshot(context.Background())

	if snap.DiskTotalBytes != 0 || snap.DiskUsedBytes != 0 {
		t.Fatalf("disk stats for a missing path: total=%d used=%d", snap.DiskTotalBytes, snap.DiskUsedBytes)
	}
	if snap.TimestampMs <= 0 {
		t.Fatal("snapshot missing despite collection failure")
	}
}
