package monitoring

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// SystemSnapshot is one sample of host resource usage.
type SystemSnapshot struct {
	CPUPercent     float64   `json:"cpu_percent"`
	MemUsedBytes   uint64    `json:"mem_used_bytes"`
	MemTotalBytes  uint64    `json:"mem_total_bytes"`
	DiskUsedBytes  uint64    `json:"disk_used_bytes"`
	DiskTotalBytes uint64    `json:"disk_total_bytes"`
	SampledAt      time.Time `json:"sampled_at"`

	// Optional extras; zero when the host does not expose them
	TemperatureC float64       `json:"temperature_c,omitempty"`
	NetBytesSent uint64        `json:"net_bytes_sent,omitempty"`
	NetBytesRecv uint64        `json:"net_bytes_recv,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
}

func percent(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}

func (s SystemSnapshot) MemPercent() float64 {
	return percent(s.MemUsedBytes, s.MemTotalBytes)
}

func (s SystemSnapshot) DiskPercent() float64 {
	return percent(s.DiskUsedBytes, s.DiskTotalBytes)
}

type Sampler interface {
	Sample(ctx context.Context) (SystemSnapshot, error)
}

type HostSamplerConfig struct {
	DiskPath    string        `yaml:"disk_path,omitempty"`
	CPUInterval time.Duration `yaml:"cpu_interval,omitempty"`
	ThermalPath string        `yaml:"thermal_path,omitempty"`
}

func DefaultHostSamplerConfig() HostSamplerConfig {
	return HostSamplerConfig{
		DiskPath:    "/",
		CPUInterval: 500 * time.Millisecond,
		ThermalPath: "/sys/class/thermal/thermal_zone0/temp",
	}
}

type hostSampler struct {
	config HostSamplerConfig
	logger logging.Logger
}

func NewHostSampler(config HostSamplerConfig, logger logging.Logger) Sampler {
	defaults := DefaultHostSamplerConfig()
	if config.DiskPath == "" {
		config.DiskPath = defaults.DiskPath
	}
	if config.CPUInterval <= 0 {
		config.CPUInterval = defaults.CPUInterval
	}
	if config.ThermalPath == "" {
		config.ThermalPath = defaults.ThermalPath
	}
	return &hostSampler{
		config: config,
		logger: logger,
	}
}

// Sample fails only if one of CPU, memory or disk cannot be read.
func (h *hostSampler) Sample(ctx context.Context) (SystemSnapshot, error) {
	snapshot := SystemSnapshot{SampledAt: time.Now()}

	cpuPercents, err := cpu.PercentWithContext(ctx, h.config.CPUInterval, false)
	if err != nil || len(cpuPercents) == 0 {
		return SystemSnapshot{}, errors.NewIOError("failed to sample CPU usage", err)
	}
	snapshot.CPUPercent = cpuPercents[0]

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SystemSnapshot{}, errors.NewIOError("failed to sample memory usage", err)
	}
	snapshot.MemUsedBytes = vm.Used
	snapshot.MemTotalBytes = vm.Total

	usage, err := disk.UsageWithContext(ctx, h.config.DiskPath)
	if err != nil {
		return SystemSnapshot{}, errors.NewIOError("failed to sample disk usage", err).WithContext("path", h.config.DiskPath)
	}
	snapshot.DiskUsedBytes = usage.Used
	snapshot.DiskTotalBytes = usage.Total

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		snapshot.Uptime = time.Duration(uptime) * time.Second
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		snapshot.NetBytesSent = counters[0].BytesSent
		snapshot.NetBytesRecv = counters[0].BytesRecv
	}

	if temperature, ok := h.readTemperature(); ok {
		snapshot.TemperatureC = temperature
	}

	return snapshot, nil
}

// readTemperature parses a sysfs thermal zone, which reports millidegrees Celsius.
func (h *hostSampler) readTemperature() (float64, bool) {
	data, err := os.ReadFile(h.config.ThermalPath)
	if err != nil {
		return 0, false
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		h.logger.Debugf("Unparseable thermal reading, path: %s, data: %q", h.config.ThermalPath, data)
		return 0, false
	}
	return milli / 1000, true
}
