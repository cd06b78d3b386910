package domain

import (
	"context"

	"github.com/core-tools/hsu-supervisor/pkg/monitoring"
)

// WorkerResult is the outcome of one worker command.
type WorkerResult struct {
	WorkerID string `json:"worker_id"`
	Outcome  string `json:"outcome"`
	PID      int    `json:"pid,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type Failure struct {
	WorkerID string `json:"worker_id"`
	Reason   string `json:"reason"`
}

// BatchSummary tallies a command applied to many workers.
type BatchSummary struct {
	Succeeded int            `json:"succeeded"`
	Skipped   int            `json:"skipped"`
	Failures  []Failure      `json:"failures"`
	Results   []WorkerResult `json:"results,omitempty"`
}

type SystemInfo struct {
	Snapshot monitoring.SystemSnapshot `json:"snapshot"`
	Health   monitoring.Health         `json:"health"`
}

// Contract is the structured control surface shared by the HTTP handler and
// its client gateway.
type Contract interface {
	Status(ctx context.Context) (monitoring.StatusView, error)
	SystemInfo(ctx context.Context) (SystemInfo, error)

	StartWorker(ctx context.Context, id string) (WorkerResult, error)
	StopWorker(ctx context.Context, id string) (WorkerResult, error)
	RestartWorker(ctx context.Context, id string) (WorkerResult, error)

	StartAll(ctx context.Context) (BatchSummary, error)
	StopAll(ctx context.Context) (BatchSummary, error)
	RestartAll(ctx context.Context) (BatchSummary, error)
}
