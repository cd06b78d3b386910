package supervisor

import (
	"context"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/process"
	"github.com/core-tools/hsu-supervisor/pkg/processstate"
	"github.com/core-tools/hsu-supervisor/pkg/workers"
)

// terminateOwned stops a process this supervisor spawned. Its whole process
// group is signalled and exit is observed through the handle's waiter.
// The grace period always runs to completion; cancelling ctx never turns a
// graceful stop into a SIGKILL.
func (s *Supervisor) terminateOwned(ctx context.Context, handle *workers.ProcessHandle, logger logging.Logger) error {
	handle.MarkStopping()

	if err := process.SendTerminationSignal(handle.PID, true); err != nil {
		logger.Warnf("Failed to send SIGTERM, PID: %d, error: %v", handle.PID, err)
	} else {
		logger.Debugf("Sent SIGTERM, PID: %d, grace: %v", handle.PID, s.options.GracePeriod)
	}

	graceTimer := time.NewTimer(s.options.GracePeriod)
	defer graceTimer.Stop()

	select {
	case <-handle.Done():
		logger.Infof("Exited gracefully, PID: %d", handle.PID)
		return nil
	case <-graceTimer.C:
		logger.Warnf("%v", errors.NewTimeoutError("graceful termination timed out, sending SIGKILL", nil).
			WithContext("pid", handle.PID).WithContext("grace", s.options.GracePeriod))
	}

	if err := process.SendKillSignal(handle.PID, true); err != nil {
		logger.Errorf("Failed to send SIGKILL, PID: %d, error: %v", handle.PID, err)
	}

	killTimer := time.NewTimer(s.options.KillTimeout)
	defer killTimer.Stop()

	select {
	case <-handle.Done():
		logger.Infof("Killed, PID: %d", handle.PID)
		return nil
	case <-killTimer.C:
		return errors.NewTimeoutError("process did not exit after SIGKILL", nil).WithContext("pid", handle.PID)
	}
}

// terminateDiscovered stops a process found by scanning. It is not our child,
// so only the pid itself is signalled and exit is observed by polling.
func (s *Supervisor) terminateDiscovered(ctx context.Context, pid int, logger logging.Logger) error {
	alive := func(pid int) bool {
		return s.scanner.IsAlive(context.Background(), pid)
	}

	if err := process.SendTerminationSignal(pid, false); err != nil {
		return errors.NewPermissionError("failed to signal discovered process", err).WithContext("pid", pid)
	}
	logger.Debugf("Sent SIGTERM to discovered process, PID: %d", pid)

	graceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.options.GracePeriod)
	exited := processstate.WaitForExit(graceCtx, pid, s.options.PollInterval, alive)
	cancel()
	if exited {
		logger.Infof("Discovered process exited gracefully, PID: %d", pid)
		return nil
	}

	logger.Warnf("Discovered process ignored SIGTERM for %v, sending SIGKILL, PID: %d", s.options.GracePeriod, pid)
	if err := process.SendKillSignal(pid, false); err != nil {
		return errors.NewPermissionError("failed to kill discovered process", err).WithContext("pid", pid)
	}

	killCtx, cancel := context.WithTimeout(context.Background(), s.options.KillTimeout)
	defer cancel()
	if !processstate.WaitForExit(killCtx, pid, s.options.PollInterval, alive) {
		return errors.NewTimeoutError("discovered process did not exit after SIGKILL", nil).WithContext("pid", pid)
	}
	return nil
}
