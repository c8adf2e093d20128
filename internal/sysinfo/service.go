// Package sysinfo collects host metrics for the status endpoint: CPU,
// load, memory, disk usage of the project root, and network throughput.
package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	gopsutilNet "github.com/shirou/gopsutil/v4/net"
)

const (
	snapshotTTL        = 2 * time.Second
	networkSpeedWindow = 6 * time.Second
	networkSampleMax   = 10
)

// Snapshot is one point-in-time view of the host. Collection failures leave
// the affected fields at their zero values; a snapshot is always produced.
type Snapshot struct {
	CPUUsagePercent float64   `json:"cpu_usage_percent"`
	CPUCores        int       `json:"cpu_cores"`
	LoadAverage     []float64 `json:"load_average,omitempty"`

	MemoryTotalBytes uint64 `json:"memory_total_bytes"`
	MemoryUsedBytes  uint64 `json:"memory_used_bytes"`

	DiskTotalBytes uint64 `json:"disk_total_bytes"`
	DiskUsedBytes  uint64 `json:"disk_used_bytes"`

	NetworkBytesReceived uint64  `json:"network_bytes_received"`
	NetworkBytesSent     uint64  `json:"network_bytes_sent"`
	NetworkSpeedReceived float64 `json:"network_speed_received"`
	NetworkSpeedSent     float64 `json:"network_speed_sent"`

	Platform    string `json:"platform"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Service caches snapshots for a short TTL so a polling client never turns
// into a metrics-collection loop.
type Service struct {
	log         *slog.Logger
	projectRoot string

	mu      sync.Mutex
	hasSnap bool
	takenAt time.Time
	snap    Snapshot

	netWindow *netWindow
}

// NewService reports disk usage for the filesystem holding projectRoot.
func NewService(projectRoot string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		log:         log,
		projectRoot: projectRoot,
		netWindow:   newNetWindow(networkSampleMax, networkSpeedWindow),
	}
}

func (s *Service) Snapshot(ctx context.Context) Snapshot {
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()

	s.mu.Lock()
	if s.hasSnap && now.Sub(s.takenAt) < snapshotTTL {
		out := s.snap
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	snap := s.collect(ctx)

	s.mu.Lock()
	s.snap = snap
	s.takenAt = now
	s.hasSnap = true
	s.mu.Unlock()

	return snap
}

func (s *Service) collect(ctx context.Context) Snapshot {
	collectedAt := time.Now()
	snap := Snapshot{
		Platform:    runtime.GOOS,
		TimestampMs: collectedAt.UnixMilli(),
	}

	if usage, err := readCPUUsage(ctx); err == nil {
		snap.CPUUsagePercent = usage
	} else {
		s.log.Warn("sysinfo: cpu percent failed", "error", err)
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPUCores = cores
	} else {
		s.log.Warn("sysinfo: cpu cores failed", "error", err)
	}

	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		snap.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	} else if err != nil {
		s.log.Warn("sysinfo: load average failed", "error", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		snap.MemoryTotalBytes = vm.Total
		snap.MemoryUsedBytes = vm.Used
	} else if err != nil {
		s.log.Warn("sysinfo: memory stats failed", "error", err)
	}

	if du, err := disk.UsageWithContext(ctx, s.projectRoot); err == nil && du != nil {
		snap.DiskTotalBytes = du.Total
		snap.DiskUsedBytes = du.Used
	} else if err != nil {
		s.log.Warn("sysinfo: disk usage failed", "path", s.projectRoot, "error", err)
	}

	if counters, err := gopsutilNet.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		snap.NetworkBytesReceived = counters[0].BytesRecv
		snap.NetworkBytesSent = counters[0].BytesSent

		s.netWindow.add(netSample{
			recv: counters[0].BytesRecv,
			sent: counters[0].BytesSent,
			at:   collectedAt,
		})
		snap.NetworkSpeedReceived, snap.NetworkSpeedSent = s.netWindow.speeds(collectedAt)
	} else if err != nil {
		s.log.Warn("sysinfo: network io failed", "error", err)
	}

	return snap
}

// readCPUUsage prefers non-blocking sampling (diff from the previous call);
// a short blocking interval only bootstraps the first reading. Per-CPU
// sampling comes first since aggregated ticks update coarsely on some
// platforms and read as 0%.
func readCPUUsage(ctx context.Context) (float64, error) {
	var errs []error

	if p, err := cpu.PercentWithContext(ctx, 0, true); err == nil && len(p) > 0 {
		return average(p), nil
	} else if err != nil {
		errs = append(errs, err)
	}
	if p, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(p) > 0 {
		return p[0], nil
	} else if err != nil {
		errs = append(errs, err)
	}

	if p, err := cpu.PercentWithContext(ctx, 250*time.Millisecond, true); err == nil && len(p) > 0 {
		return average(p), nil
	} else if err != nil {
		errs = append(errs, err)
	}
	if p, err := cpu.PercentWithContext(ctx, 250*time.Millisecond, false); err == nil && len(p) > 0 {
		return p[0], nil
	} else if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return 0, fmt.Errorf("cpu percent unavailable")
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
