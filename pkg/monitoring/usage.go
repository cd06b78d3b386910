package monitoring

import (
	"context"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	gopsprocess "github.com/shirou/gopsutil/v4/process"
)

// ProcessUsage is the resource footprint of one worker process.
type ProcessUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryRSS     uint64  `json:"memory_rss"`
	MemoryPercent float32 `json:"memory_percent"`
	NumThreads    int32   `json:"num_threads,omitempty"`
}

type UsageProbe interface {
	Usage(ctx context.Context, pid int) (ProcessUsage, error)
}

type processUsageProbe struct {
	logger logging.Logger
}

func NewProcessUsageProbe(logger logging.Logger) UsageProbe {
	return &processUsageProbe{logger: logger}
}

// Usage reads the process counters. CPU is averaged over the process lifetime.
func (p *processUsageProbe) Usage(ctx context.Context, pid int) (ProcessUsage, error) {
	if pid <= 0 {
		return ProcessUsage{}, errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}
	proc, err := gopsprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ProcessUsage{}, errors.NewProbeError("process not found", err).WithContext("pid", pid)
	}

	var usage ProcessUsage
	if usage.CPUPercent, err = proc.CPUPercentWithContext(ctx); err != nil {
		return ProcessUsage{}, errors.NewProbeError("failed to read process CPU", err).WithContext("pid", pid)
	}
	memory, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcessUsage{}, errors.NewProbeError("failed to read process memory", err).WithContext("pid", pid)
	}
	usage.MemoryRSS = memory.RSS

	// Optional counters
	if percent, err := proc.MemoryPercentWithContext(ctx); err == nil {
		usage.MemoryPercent = percent
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		usage.NumThreads = threads
	}
	return usage, nil
}
