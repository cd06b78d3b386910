package monitoring

import (
	"context"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/supervisor"
	"github.com/core-tools/hsu-supervisor/pkg/workers"
)

// RuntimeState is derived on every render and never cached.
type RuntimeState string

const (
	StateRunning  RuntimeState = "running"
	StateStopped  RuntimeState = "stopped"
	StateStarting RuntimeState = "starting"
	StateStopping RuntimeState = "stopping"
	StateUnknown  RuntimeState = "unknown"
)

type WorkerStatus struct {
	ID          string        `json:"id"`
	DisplayName string        `json:"display_name"`
	State       RuntimeState  `json:"state"`
	PID         int           `json:"pid,omitempty"`
	Owned       bool          `json:"owned,omitempty"`
	Uptime      time.Duration `json:"uptime,omitempty"`
	Usage       *ProcessUsage `json:"usage,omitempty"`
}

type StatusView struct {
	Workers    []WorkerStatus  `json:"workers"`
	Running    int             `json:"running"`
	Total      int             `json:"total"`
	System     *SystemSnapshot `json:"system,omitempty"`
	Health     *Health         `json:"health,omitempty"`
	SystemErr  string          `json:"system_error,omitempty"`
	RenderedAt time.Time       `json:"rendered_at"`
}

// WorkerSource is the part of the supervisor the reporter reads.
type WorkerSource interface {
	Definitions() []workers.Definition
	Inspect(ctx context.Context, id string) (supervisor.WorkerInfo, error)
}

type StatusReporter struct {
	source     WorkerSource
	sampler    Sampler
	thresholds Thresholds
	usage      UsageProbe
	logger     logging.Logger
}

// NewStatusReporter builds a reporter; sampler may be nil, which disables the system section.
func NewStatusReporter(source WorkerSource, sampler Sampler, thresholds Thresholds, logger logging.Logger) *StatusReporter {
	return &StatusReporter{
		source:     source,
		sampler:    sampler,
		thresholds: thresholds,
		logger:     logger,
	}
}

// WithUsage adds per-worker CPU and memory figures to running workers.
func (r *StatusReporter) WithUsage(probe UsageProbe) *StatusReporter {
	r.usage = probe
	return r
}

// Render builds the status of every enabled worker in configuration order.
// A failing system sample is reported in SystemErr and never hides the worker section.
func (r *StatusReporter) Render(ctx context.Context, includeSystem bool) StatusView {
	view := StatusView{
		Workers:    []WorkerStatus{},
		RenderedAt: time.Now(),
	}

	for _, def := range r.source.Definitions() {
		if !def.Enabled {
			continue
		}
		status := WorkerStatus{ID: def.ID, DisplayName: def.Name(), State: StateUnknown}

		info, err := r.source.Inspect(ctx, def.ID)
		if err != nil {
			r.logger.Warnf("Failed to inspect worker, id: %s, error: %v", def.ID, err)
		} else {
			status.State = deriveState(info)
			if info.Liveness.Alive() {
				status.PID = info.Liveness.PID
				status.Owned = info.Liveness.Owned
			}
			if !info.StartedAt.IsZero() {
				status.Uptime = time.Since(info.StartedAt).Round(time.Second)
			}
		}
		if r.usage != nil && status.State == StateRunning && status.PID > 0 {
			if usage, err := r.usage.Usage(ctx, status.PID); err == nil {
				status.Usage = &usage
			} else {
				r.logger.Debugf("No usage for worker, id: %s, error: %v", def.ID, err)
			}
		}

		if status.State == StateRunning {
			view.Running++
		}
		view.Total++
		view.Workers = append(view.Workers, status)
	}

	if includeSystem {
		snapshot, health, err := r.System(ctx)
		if err != nil {
			view.SystemErr = errors.ReasonOf(err)
		} else {
			view.System = &snapshot
			view.Health = &health
		}
	}

	return view
}

// System samples the host and evaluates the thresholds.
func (r *StatusReporter) System(ctx context.Context) (SystemSnapshot, Health, error) {
	if r.sampler == nil {
		return SystemSnapshot{}, Health{}, errors.NewInternalError("system sampling is not configured", nil)
	}
	snapshot, err := r.sampler.Sample(ctx)
	if err != nil {
		r.logger.Warnf("System sample failed: %v", err)
		return SystemSnapshot{}, Health{}, err
	}
	return snapshot, r.thresholds.Evaluate(snapshot), nil
}

func deriveState(info supervisor.WorkerInfo) RuntimeState {
	switch info.Phase {
	case supervisor.PhaseStarting:
		return StateStarting
	case supervisor.PhaseStopping:
		return StateStopping
	}
	switch info.Liveness.Status {
	case workers.LivenessAlive:
		return StateRunning
	case workers.LivenessDead:
		return StateStopped
	}
	return StateUnknown
}
