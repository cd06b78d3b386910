package supervisor

import (
	"github.com/core-tools/hsu-supervisor/pkg/errors"
)

// Outcome is the terminal result of a single-worker operation.
type Outcome string

const (
	OutcomeStarted           Outcome = "started"
	OutcomeStopped           Outcome = "stopped"
	OutcomeAlreadyRunning    Outcome = "already_running"
	OutcomeNotRunning        Outcome = "not_running"
	OutcomeAlreadyInProgress Outcome = "already_in_progress"
	OutcomeFailed            Outcome = "failed"
)

// Result is returned by every Supervisor operation instead of an error.
// Err carries the classified cause for Failed and benign outcomes.
type Result struct {
	WorkerID string  `json:"worker_id"`
	Outcome  Outcome `json:"outcome"`
	PID      int     `json:"pid,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Err      error   `json:"-"`
}

func (r Result) Failed() bool {
	return r.Outcome == OutcomeFailed
}

func started(id string, pid int) Result {
	return Result{WorkerID: id, Outcome: OutcomeStarted, PID: pid}
}

func stopped(id string, pid int) Result {
	return Result{WorkerID: id, Outcome: OutcomeStopped, PID: pid}
}

func alreadyRunning(id string, pid int) Result {
	err := errors.NewConflictError("worker is already running", nil).WithContext("id", id).WithContext("pid", pid)
	return Result{WorkerID: id, Outcome: OutcomeAlreadyRunning, PID: pid, Reason: err.Reason(), Err: err}
}

func notRunning(id string, reason string) Result {
	err := errors.NewNotRunningError(reason, nil).WithContext("id", id)
	return Result{WorkerID: id, Outcome: OutcomeNotRunning, Reason: err.Reason(), Err: err}
}

func inProgress(id string, phase Phase) Result {
	err := errors.NewInProgressError("operation already in progress: "+string(phase), nil).WithContext("id", id)
	return Result{WorkerID: id, Outcome: OutcomeAlreadyInProgress, Reason: err.Reason(), Err: err}
}

func failed(id string, err error) Result {
	return Result{WorkerID: id, Outcome: OutcomeFailed, Reason: errors.ReasonOf(err), Err: err}
}

// Failure is one entry of a batch failure list.
type Failure struct {
	WorkerID string `json:"worker_id"`
	Reason   string `json:"reason"`
}

// BatchResult tallies a bulk operation. Succeeded counts workers that changed
// state, Skipped counts benign outcomes, Failures keeps definition order.
type BatchResult struct {
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Failures  []Failure `json:"failures"`
	Results   []Result  `json:"results"`
}

func (b *BatchResult) add(r Result, success Outcome) {
	b.Results = append(b.Results, r)
	switch r.Outcome {
	case success:
		b.Succeeded++
	case OutcomeFailed:
		b.Failures = append(b.Failures, Failure{WorkerID: r.WorkerID, Reason: r.Reason})
	default:
		b.Skipped++
	}
}

func (b BatchResult) HasFailures() bool {
	return len(b.Failures) > 0
}
