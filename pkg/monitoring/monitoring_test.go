package monitoring

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/supervisor"
	"github.com/core-tools/hsu-supervisor/pkg/workers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	defs  []workers.Definition
	infos map[string]supervisor.WorkerInfo
	errs  map[string]error
}

func (f *fakeSource) Definitions() []workers.Definition {
	return f.defs
}

func (f *fakeSource) Inspect(ctx context.Context, id string) (supervisor.WorkerInfo, error) {
	if err, ok := f.errs[id]; ok {
		return supervisor.WorkerInfo{}, err
	}
	return f.infos[id], nil
}

type fakeSampler struct {
	snapshot SystemSnapshot
	err      error
}

func (f *fakeSampler) Sample(ctx context.Context) (SystemSnapshot, error) {
	return f.snapshot, f.err
}

func newSource() *fakeSource {
	return &fakeSource{
		defs: []workers.Definition{
			{ID: "bot", DisplayName: "Trading Bot", ExecutablePath: "/opt/bot.py", Enabled: true},
			{ID: "api", ExecutablePath: "/opt/api", Enabled: true},
			{ID: "old", ExecutablePath: "/opt/old", Enabled: false},
			{ID: "sync", ExecutablePath: "/opt/sync.sh", Enabled: true},
			{ID: "ghost", ExecutablePath: "/opt/ghost", Enabled: true},
		},
		infos: map[string]supervisor.WorkerInfo{
			"bot": {
				Phase:     supervisor.PhaseRunning,
				Liveness:  workers.Liveness{Status: workers.LivenessAlive, PID: 4242, Owned: true},
				StartedAt: time.Now().Add(-time.Minute),
			},
			"api":  {Phase: supervisor.PhaseStopped, Liveness: workers.Liveness{Status: workers.LivenessDead}},
			"sync": {Phase: supervisor.PhaseStopping, Liveness: workers.Liveness{Status: workers.LivenessAlive, PID: 7}},
		},
		errs: map[string]error{
			"ghost": errors.NewNotFoundError("unknown worker: ghost", nil),
		},
	}
}

func TestRenderWorkers(t *testing.T) {
	reporter := NewStatusReporter(newSource(), nil, DefaultThresholds(), logging.NewNopLogger())

	view := reporter.Render(context.Background(), false)

	require.Len(t, view.Workers, 4)
	assert.Equal(t, []string{"bot", "api", "sync", "ghost"}, []string{view.Workers[0].ID, view.Workers[1].ID, view.Workers[2].ID, view.Workers[3].ID})

	assert.Equal(t, StateRunning, view.Workers[0].State)
	assert.Equal(t, "Trading Bot", view.Workers[0].DisplayName)
	assert.Equal(t, 4242, view.Workers[0].PID)
	assert.True(t, view.Workers[0].Owned)
	assert.GreaterOrEqual(t, view.Workers[0].Uptime, time.Minute)

	assert.Equal(t, StateStopped, view.Workers[1].State)
	assert.Equal(t, "api", view.Workers[1].DisplayName)
	assert.Zero(t, view.Workers[1].PID)

	assert.Equal(t, StateStopping, view.Workers[2].State)
	assert.Equal(t, StateUnknown, view.Workers[3].State)

	assert.Equal(t, 1, view.Running)
	assert.Equal(t, 4, view.Total)
	assert.Nil(t, view.System)
	assert.Empty(t, view.SystemErr)
}

func TestRenderSystemFailureKeepsWorkers(t *testing.T) {
	sampler := &fakeSampler{err: errors.NewIOError("failed to sample CPU usage", nil)}
	reporter := NewStatusReporter(newSource(), sampler, DefaultThresholds(), logging.NewNopLogger())

	view := reporter.Render(context.Background(), true)

	assert.Len(t, view.Workers, 4)
	assert.Nil(t, view.System)
	assert.Nil(t, view.Health)
	assert.Equal(t, "failed to sample CPU usage", view.SystemErr)
}

func TestRenderSystem(t *testing.T) {
	sampler := &fakeSampler{snapshot: SystemSnapshot{
		CPUPercent:     95,
		MemUsedBytes:   2 << 30,
		MemTotalBytes:  8 << 30,
		DiskUsedBytes:  10,
		DiskTotalBytes: 100,
	}}
	reporter := NewStatusReporter(newSource(), sampler, DefaultThresholds(), logging.NewNopLogger())

	view := reporter.Render(context.Background(), true)

	require.NotNil(t, view.System)
	require.NotNil(t, view.Health)
	assert.Equal(t, HealthWarning, view.Health.Level)
	assert.Len(t, view.Health.Breaches, 1)
	assert.Contains(t, view.Health.Breaches[0], "CPU")
}

func TestRenderWithoutSampler(t *testing.T) {
	reporter := NewStatusReporter(newSource(), nil, DefaultThresholds(), logging.NewNopLogger())

	view := reporter.Render(context.Background(), true)

	assert.Equal(t, "system sampling is not configured", view.SystemErr)
	assert.Len(t, view.Workers, 4)
}

func TestThresholdsEvaluate(t *testing.T) {
	thresholds := DefaultThresholds()

	tests := []struct {
		name     string
		snapshot SystemSnapshot
		level    HealthLevel
		breaches int
	}{
		{"all ok", SystemSnapshot{CPUPercent: 10, MemUsedBytes: 1, MemTotalBytes: 10, DiskUsedBytes: 1, DiskTotalBytes: 10}, HealthOK, 0},
		{"memory high", SystemSnapshot{MemUsedBytes: 9, MemTotalBytes: 10}, HealthWarning, 1},
		{"disk and cpu", SystemSnapshot{CPUPercent: 80, DiskUsedBytes: 95, DiskTotalBytes: 100}, HealthWarning, 2},
		{"hot", SystemSnapshot{TemperatureC: 75}, HealthWarning, 1},
		{"zero totals", SystemSnapshot{}, HealthOK, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			health := thresholds.Evaluate(tt.snapshot)
			assert.Equal(t, tt.level, health.Level)
			assert.Len(t, health.Breaches, tt.breaches)
		})
	}

	disabled := Thresholds{}
	assert.Equal(t, HealthOK, disabled.Evaluate(SystemSnapshot{CPUPercent: 100}).Level)
}

func TestValidateThresholds(t *testing.T) {
	assert.NoError(t, ValidateThresholds(DefaultThresholds()))
	assert.Error(t, ValidateThresholds(Thresholds{CPUPercent: 120}))
	assert.Error(t, ValidateThresholds(Thresholds{DiskPercent: -1}))
	assert.Error(t, ValidateThresholds(Thresholds{TemperatureC: -5}))
}

func TestHostSamplerTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	require.NoError(t, os.WriteFile(path, []byte("48500\n"), 0644))

	sampler := NewHostSampler(HostSamplerConfig{ThermalPath: path}, logging.NewNopLogger()).(*hostSampler)
	temperature, ok := sampler.readTemperature()
	assert.True(t, ok)
	assert.InDelta(t, 48.5, temperature, 0.001)

	sampler.config.ThermalPath = filepath.Join(t.TempDir(), "missing")
	_, ok = sampler.readTemperature()
	assert.False(t, ok)
}

func TestHostSamplerSample(t *testing.T) {
	sampler := NewHostSampler(HostSamplerConfig{CPUInterval: 50 * time.Millisecond}, logging.NewNopLogger())

	snapshot, err := sampler.Sample(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, snapshot.MemTotalBytes)
	assert.NotZero(t, snapshot.DiskTotalBytes)
	assert.False(t, snapshot.SampledAt.IsZero())
	assert.GreaterOrEqual(t, snapshot.CPUPercent, 0.0)
}

type fakeUsage struct {
	calls []int
}

func (f *fakeUsage) Usage(ctx context.Context, pid int) (ProcessUsage, error) {
	f.calls = append(f.calls, pid)
	return ProcessUsage{CPUPercent: 12.5, MemoryRSS: 64 << 20}, nil
}

func TestRenderUsageOnlyForRunningWorkers(t *testing.T) {
	usage := &fakeUsage{}
	reporter := NewStatusReporter(newSource(), nil, DefaultThresholds(), logging.NewNopLogger()).WithUsage(usage)

	view := reporter.Render(context.Background(), false)

	assert.Equal(t, []int{4242}, usage.calls, "stopping and stopped workers are not probed")
	require.NotNil(t, view.Workers[0].Usage)
	assert.Equal(t, 12.5, view.Workers[0].Usage.CPUPercent)
	assert.Nil(t, view.Workers[2].Usage)
}

func TestProcessUsageProbe(t *testing.T) {
	probe := NewProcessUsageProbe(logging.NewNopLogger())

	usage, err := probe.Usage(context.Background(), os.Getpid())
	require.NoError(t, err)
	assert.Greater(t, usage.MemoryRSS, uint64(0))
	assert.GreaterOrEqual(t, usage.CPUPercent, 0.0)

	_, err = probe.Usage(context.Background(), 0)
	assert.True(t, errors.IsValidationError(err))
}
