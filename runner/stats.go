// Resource sampling for spawned subprocesses.
//
// This file samples a running child process using gopsutil v4,
// recording peak resident memory and the last observed CPU percentage.
// Sampling is best effort: a process that exits between samples simply
// stops producing readings, and a process we cannot inspect yields nil.
package runner

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// sampleInterval is how often the child process is inspected.
const sampleInterval = 100 * time.Millisecond

// ProcessStats contains sampled resource usage of one subprocess.
type ProcessStats struct {
	// PeakRSSBytes is the highest resident set size observed.
	PeakRSSBytes uint64 `json:"peak_rss_bytes"`

	// CPUPercent is the last observed CPU usage percentage.
	CPUPercent float64 `json:"cpu_percent"`

	// Samples is how many readings were taken.
	Samples int `json:"samples"`
}

// sampleProcess polls the process with the given PID until ctx is
// canceled or the process disappears. Short-lived processes may exit
// before the first tick; the zero-valued stats are still returned so
// callers can distinguish "sampled nothing" from "sampling disabled".
func sampleProcess(ctx context.Context, pid int32) *ProcessStats {
	stats := &ProcessStats{}

	p, err := process.NewProcess(pid)
	if err != nil {
		return stats
	}

	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return stats
		case <-ticker.C:
			mem, err := p.MemoryInfoWithContext(ctx)
			if err != nil {
				// Process exited (or became inaccessible); stop sampling.
				return stats
			}
			if mem.RSS > stats.PeakRSSBytes {
				stats.PeakRSSBytes = mem.RSS
			}
			if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
				stats.CPUPercent = cpu
			}
			stats.Samples++
		}
	}
}
