// Package sysmetrics tracks process-level CPU and memory usage for the
// telemetry relay daemon's own lifecycle logging — startup/shutdown
// figures logged by internal/daemon, not the application-submitted
// metrics reservoirs in internal/reservoir.
package sysmetrics

import (
	"runtime"
	"sync"
	"syscall"
	"time"
)

var (
	mu       sync.Mutex
	lastWall time.Time
	lastUser time.Duration
	lastSys  time.Duration
	lastCPU  float64
)

func init() {
	now := time.Now()
	utime, stime := getrusageTimes()
	mu.Lock()
	lastWall = now
	lastUser = utime
	lastSys = stime
	mu.Unlock()
}

// CPUPercent returns the process CPU usage as a percentage (0–100+)
// since the last call. Multi-core processes can exceed 100%.
func CPUPercent() float64 {
	now := time.Now()
	utime, stime := getrusageTimes()

	mu.Lock()
	defer mu.Unlock()

	wall := now.Sub(lastWall)
	if wall <= 0 {
		return lastCPU
	}

	cpuDelta := (utime - lastUser) + (stime - lastSys)
	pct := float64(cpuDelta) / float64(wall) * 100.0

	lastWall = now
	lastUser = utime
	lastSys = stime
	lastCPU = pct

	return pct
}

// MemoryInuse returns the memory actively in use by the Go runtime, in
// bytes. This is HeapInuse (live heap spans) plus StackInuse (goroutine
// stacks), excluding virtual address space reserved but not committed.
func MemoryInuse() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.HeapInuse + m.StackInuse)
}

// Goroutines returns the current number of live goroutines. The worker
// spawns one goroutine per accepted connection (internal/listener), so this
// figure is the cheapest signal of connection-driven goroutine leaks between
// harvest cycles.
func Goroutines() int {
	return runtime.NumGoroutine()
}

// Snapshot is a point-in-time bundle of the figures the worker logs at its
// startup/shutdown lifecycle boundaries, so callers take one consistent
// reading instead of three independent calls racing against GC and
// scheduler activity in between.
type Snapshot struct {
	CPUPercent  float64
	MemoryInuse int64
	Goroutines  int
}

// Take captures a Snapshot.
func Take() Snapshot {
	return Snapshot{
		CPUPercent:  CPUPercent(),
		MemoryInuse: MemoryInuse(),
		Goroutines:  Goroutines(),
	}
}

// LogAttrs renders the snapshot as a flat key/value argument list, the shape
// internal/daemon passes straight into logger.Info/Warn calls.
func (s Snapshot) LogAttrs() []any {
	return []any{
		"cpu_percent", s.CPUPercent,
		"memory_inuse_bytes", s.MemoryInuse,
		"goroutines", s.Goroutines,
	}
}

func getrusageTimes() (user, sys time.Duration) {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0, 0
	}
	user = time.Duration(rusage.Utime.Nano())
	sys = time.Duration(rusage.Stime.Nano())
	return user, sys
}
