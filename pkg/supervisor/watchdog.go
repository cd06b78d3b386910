package supervisor

import (
	"context"
	"fmt"
	"time"
)

// watchdogLoop restarts auto-restart workers whose owned process exited
// without being asked to. Attempts are capped per worker; a manual start
// resets the count. The delay between attempts is the fixed interval.
func (s *Supervisor) watchdogLoop(ctx context.Context) {
	defer s.watchdogWG.Done()

	ticker := time.NewTicker(s.options.WatchdogInterval)
	defer ticker.Stop()

	s.logger.Infof("Watchdog started, interval: %v, max attempts: %d", s.options.WatchdogInterval, s.options.MaxRestartAttempts)

	for {
		select {
		case <-ticker.C:
			s.watchdogTick(ctx)
		case <-s.watchdogStop:
			s.logger.Infof("Watchdog stopped")
			return
		case <-ctx.Done():
			s.logger.Infof("Watchdog stopped, context done")
			return
		}
	}
}

func (s *Supervisor) watchdogTick(ctx context.Context) {
	for _, def := range s.definitions {
		if !def.Enabled || !def.AutoRestart {
			continue
		}

		// Surfaces exits that no status render has noticed yet
		s.liveness(ctx, def)

		guard := s.guards[def.ID]
		attempt, crashed, allowed := guard.takeCrash(s.options.MaxRestartAttempts)
		if !crashed {
			continue
		}

		logger := s.workerLogger(def.ID)
		if !allowed {
			logger.Errorf("Not restarting, %d automatic restarts already attempted", attempt)
			s.notify(ctx, fmt.Sprintf("Worker %s crashed and will not be restarted automatically (%d attempts used)", def.Name(), attempt))
			continue
		}

		logger.Warnf("Restarting after unexpected exit, attempt: %d/%d", attempt, s.options.MaxRestartAttempts)
		result := s.start(ctx, def.ID)
		switch result.Outcome {
		case OutcomeStarted:
			s.notify(ctx, fmt.Sprintf("Worker %s crashed and was restarted (attempt %d/%d, PID %d)", def.Name(), attempt, s.options.MaxRestartAttempts, result.PID))
		case OutcomeFailed:
			s.notify(ctx, fmt.Sprintf("Worker %s crashed and could not be restarted: %s", def.Name(), result.Reason))
			// retry on a later tick while attempts remain
			guard.markCrashed()
		}
	}
}
