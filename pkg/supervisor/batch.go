package supervisor

import (
	"context"
	"slices"
	"sync"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/workers"
)

// StartAll starts every enabled worker. One worker's failure never affects the others.
func (s *Supervisor) StartAll(ctx context.Context) BatchResult {
	return s.batch(ctx, s.enabledIDs(), s.Start, OutcomeStarted)
}

// StopAll stops every configured worker, owned or discovered.
func (s *Supervisor) StopAll(ctx context.Context) BatchResult {
	ids := make([]string, 0, len(s.definitions))
	for _, def := range s.definitions {
		ids = append(ids, def.ID)
	}
	return s.batch(ctx, ids, s.Stop, OutcomeStopped)
}

func (s *Supervisor) RestartAll(ctx context.Context) BatchResult {
	return s.batch(ctx, s.enabledIDs(), s.Restart, OutcomeStarted)
}

func (s *Supervisor) enabledIDs() []string {
	ids := make([]string, 0, len(s.definitions))
	for _, def := range s.definitions {
		if def.Enabled {
			ids = append(ids, def.ID)
		}
	}
	return ids
}

// batch runs op for every id concurrently and tallies results in id order.
func (s *Supervisor) batch(ctx context.Context, ids []string, op func(context.Context, string) Result, success Outcome) BatchResult {
	results := make([]Result, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = op(ctx, id)
		}(i, id)
	}
	wg.Wait()

	batch := BatchResult{Failures: []Failure{}}
	for _, result := range results {
		batch.add(result, success)
	}

	logging.ForContext(ctx, s.logger).Infof("Batch %s finished, succeeded: %d, skipped: %d, failed: %d",
		success, batch.Succeeded, batch.Skipped, len(batch.Failures))
	return batch
}

// KillStale terminates leftover processes of enabled workers that this
// supervisor does not own, typically survivors of a previous run. It returns
// how many processes were stopped.
func (s *Supervisor) KillStale(ctx context.Context) int {
	killed := 0
	for _, def := range s.definitions {
		if !def.Enabled {
			continue
		}
		killed += s.killStaleWorker(ctx, def)
	}
	return killed
}

func (s *Supervisor) killStaleWorker(ctx context.Context, def workers.Definition) int {
	guard := s.guards[def.ID]
	prior, ok := guard.begin(PhaseStopping)
	if !ok {
		return 0
	}
	defer guard.finish(prior)

	logger := s.workerLogger(def.ID)

	pids, err := s.scanner.FindAllByCommandLine(ctx, def.ExecutablePath)
	if err != nil {
		logger.Warnf("Stale process scan failed: %v", err)
		return 0
	}

	s.registryMutex.Lock()
	handle, owned := s.registry.Get(def.ID)
	s.registryMutex.Unlock()

	killed := 0
	for _, pid := range pids {
		if owned && handle.PID == pid {
			continue
		}
		logger.Infof("Stopping leftover process, PID: %d", pid)
		if err := s.terminateDiscovered(ctx, pid, logger); err != nil {
			logger.Warnf("Failed to stop leftover process, PID: %d, error: %v", pid, err)
			continue
		}
		killed++
	}

	if !owned {
		s.clearStalePIDFile(ctx, def.ID, pids, logger)
	}
	return killed
}

// clearStalePIDFile removes the PID file a previous run left behind. A
// recorded pid that is alive but was not matched by the command line scan
// belongs to some other process now and is never signalled.
func (s *Supervisor) clearStalePIDFile(ctx context.Context, id string, matched []int, logger logging.Logger) {
	if s.files == nil {
		return
	}
	pid, err := s.files.ReadPIDFile(id)
	if err != nil {
		if !errors.IsNotFoundError(err) {
			logger.Warnf("Ignoring unreadable PID file: %v", err)
			s.removePIDFile(id)
		}
		return
	}

	switch {
	case slices.Contains(matched, pid):
		logger.Debugf("PID file matched a leftover process, PID: %d", pid)
	case s.scanner.IsAlive(ctx, pid):
		logger.Warnf("PID file points at an unrelated live process, leaving it alone, PID: %d", pid)
	default:
		logger.Debugf("PID file points at an exited process, PID: %d", pid)
	}
	s.removePIDFile(id)
}
