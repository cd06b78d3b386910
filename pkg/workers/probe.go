package workers

import (
	"context"

	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/process"
)

type LivenessStatus string

const (
	LivenessDead    LivenessStatus = "dead"
	LivenessAlive   LivenessStatus = "alive"
	LivenessUnknown LivenessStatus = "unknown"
)

// Liveness is a probe verdict. PID is set for Alive; Owned tells whether it
// came from a held handle or from a process-table scan.
type Liveness struct {
	Status LivenessStatus
	PID    int
	Owned  bool
}

func (l Liveness) Alive() bool {
	return l.Status == LivenessAlive
}

// LivenessProbe decides whether a worker is running. A held handle is
// trusted; without one, the process table is scanned for a command line
// containing the worker's executable path.
type LivenessProbe struct {
	scanner process.Scanner
	logger  logging.Logger
}

func NewLivenessProbe(scanner process.Scanner, logger logging.Logger) *LivenessProbe {
	return &LivenessProbe{
		scanner: scanner,
		logger:  logger,
	}
}

// IsAlive never removes anything from the registry: a Dead verdict for a held
// handle means the caller must remove the stale handle.
func (p *LivenessProbe) IsAlive(ctx context.Context, def Definition, registry *Registry) Liveness {
	if handle, ok := registry.Get(def.ID); ok {
		if handle.Exited() {
			p.logger.Debugf("Handle exited, id: %s, PID: %d, err: %v", def.ID, handle.PID, handle.ExitErr())
			return Liveness{Status: LivenessDead}
		}
		return Liveness{Status: LivenessAlive, PID: handle.PID, Owned: true}
	}

	return p.Discover(ctx, def)
}

// Discover runs only the process-table scan.
func (p *LivenessProbe) Discover(ctx context.Context, def Definition) Liveness {
	if p.scanner == nil {
		return Liveness{Status: LivenessUnknown}
	}

	// The match is a plain substring of the command line; a longer path that
	// shares the same prefix will also match.
	pid, found, err := p.scanner.FindByCommandLine(ctx, def.ExecutablePath)
	if err != nil {
		p.logger.Warnf("Scan inconclusive, id: %s, error: %v", def.ID, err)
		return Liveness{Status: LivenessUnknown}
	}
	if !found {
		return Liveness{Status: LivenessDead}
	}

	p.logger.Debugf("Discovered unowned process, id: %s, PID: %d", def.ID, pid)
	return Liveness{Status: LivenessAlive, PID: pid, Owned: false}
}
