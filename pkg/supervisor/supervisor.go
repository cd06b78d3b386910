package supervisor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/process"
	"github.com/core-tools/hsu-supervisor/pkg/processfile"
	"github.com/core-tools/hsu-supervisor/pkg/workers"
)

// Notifier receives messages meant for every operator.
type Notifier interface {
	NotifyOperators(ctx context.Context, message string)
}

// WorkerInfo is a point-in-time view of one worker.
type WorkerInfo struct {
	Definition workers.Definition
	Phase      Phase
	Liveness   workers.Liveness
	StartedAt  time.Time // zero unless the process is owned
}

// Supervisor starts, stops and restarts worker processes. Operations on the
// same worker are serialized by a per-worker phase guard; operations on
// different workers run concurrently.
type Supervisor struct {
	definitions []workers.Definition
	byID        map[string]workers.Definition
	guards      map[string]*workerGuard

	registry      *workers.Registry
	registryMutex sync.Mutex

	probe   *workers.LivenessProbe
	scanner process.Scanner
	files   *processfile.FileManager

	notifier      Notifier
	notifierMutex sync.RWMutex

	options Options
	logger  logging.Logger

	watchdogStop chan struct{}
	watchdogWG   sync.WaitGroup
	closeOnce    sync.Once
}

// New builds a supervisor for defs. files may be nil, in which case no PID
// files or worker output logs are written.
func New(defs []workers.Definition, scanner process.Scanner, files *processfile.FileManager, options Options, logger logging.Logger) (*Supervisor, error) {
	if err := workers.ValidateDefinitions(defs); err != nil {
		return nil, err
	}
	if err := ValidateOptions(options); err != nil {
		return nil, err
	}

	s := &Supervisor{
		definitions: append([]workers.Definition(nil), defs...),
		byID:        make(map[string]workers.Definition, len(defs)),
		guards:      make(map[string]*workerGuard, len(defs)),
		registry:    workers.NewRegistry(),
		probe:       workers.NewLivenessProbe(scanner, logging.WithPrefix(logger, logging.ModulePrefix("probe"))),
		scanner:     scanner,
		files:       files,
		options:     options.withDefaults(),
		logger:      logger,
	}
	for _, def := range defs {
		s.byID[def.ID] = def
		s.guards[def.ID] = newWorkerGuard()
	}
	return s, nil
}

func (s *Supervisor) SetNotifier(notifier Notifier) {
	s.notifierMutex.Lock()
	defer s.notifierMutex.Unlock()
	s.notifier = notifier
}

func (s *Supervisor) notify(ctx context.Context, message string) {
	s.notifierMutex.RLock()
	notifier := s.notifier
	s.notifierMutex.RUnlock()
	if notifier != nil {
		notifier.NotifyOperators(ctx, message)
	}
}

// Definitions returns all definitions in configuration order.
func (s *Supervisor) Definitions() []workers.Definition {
	return append([]workers.Definition(nil), s.definitions...)
}

func (s *Supervisor) Definition(id string) (workers.Definition, bool) {
	def, ok := s.byID[id]
	return def, ok
}

func (s *Supervisor) Phase(id string) (Phase, bool) {
	guard, ok := s.guards[id]
	if !ok {
		return "", false
	}
	return guard.current(), true
}

// Inspect probes one worker. Stale handles found along the way are removed.
func (s *Supervisor) Inspect(ctx context.Context, id string) (WorkerInfo, error) {
	def, ok := s.byID[id]
	if !ok {
		return WorkerInfo{}, errors.NewNotFoundError("unknown worker: "+id, nil)
	}
	liveness, handle := s.liveness(ctx, def)
	info := WorkerInfo{
		Definition: def,
		Phase:      s.guards[id].current(),
		Liveness:   liveness,
	}
	if handle != nil {
		info.StartedAt = handle.StartedAt
	}
	return info, nil
}

// liveness consults the handle first and falls back to a process scan.
// The scan runs without the registry lock.
func (s *Supervisor) liveness(ctx context.Context, def workers.Definition) (workers.Liveness, *workers.ProcessHandle) {
	s.registryMutex.Lock()
	handle, held := s.registry.Get(def.ID)
	if held {
		liveness := s.probe.IsAlive(ctx, def, s.registry)
		if liveness.Alive() {
			s.registryMutex.Unlock()
			return liveness, handle
		}
		s.registry.Remove(def.ID)
		s.registryMutex.Unlock()
		s.handleExited(def, handle)
		return liveness, nil
	}
	s.registryMutex.Unlock()

	return s.probe.Discover(ctx, def), nil
}

// handleExited runs once for every handle removed because its process died on its own.
func (s *Supervisor) handleExited(def workers.Definition, handle *workers.ProcessHandle) {
	s.removePIDFile(def.ID)
	if handle.StopRequested() {
		return
	}
	s.workerLogger(def.ID).Warnf("Process exited unexpectedly, PID: %d, uptime: %v, err: %v",
		handle.PID, handle.Uptime().Round(time.Second), handle.ExitErr())
	s.guards[def.ID].markCrashed()
}

func (s *Supervisor) workerLogger(id string) logging.Logger {
	return logging.WithPrefix(s.logger, logging.WorkerPrefix(id))
}

// Start launches the worker unless it is already alive.
func (s *Supervisor) Start(ctx context.Context, id string) Result {
	result := s.start(ctx, id)
	if result.Outcome == OutcomeStarted {
		if guard, ok := s.guards[id]; ok {
			guard.resetRestarts()
		}
	}
	return result
}

func (s *Supervisor) start(ctx context.Context, id string) Result {
	def, ok := s.byID[id]
	if !ok {
		return failed(id, errors.NewNotFoundError("unknown worker: "+id, nil))
	}
	if !def.Enabled {
		return failed(id, errors.NewValidationError("worker is disabled", nil).WithContext("id", id))
	}

	guard := s.guards[id]
	prior, ok := guard.begin(PhaseStarting)
	if !ok {
		return inProgress(id, prior)
	}

	ctx, cancel := context.WithTimeout(ctx, s.options.StartTimeout)
	defer cancel()

	result := s.doStart(ctx, def)
	switch {
	case result.Outcome == OutcomeStarted || result.Outcome == OutcomeAlreadyRunning:
		guard.finish(PhaseRunning)
	case errors.IsTimeoutError(result.Err) || errors.IsCancelledError(result.Err):
		guard.finish(prior)
	default:
		guard.finish(PhaseStopped)
	}
	return result
}

func (s *Supervisor) doStart(ctx context.Context, def workers.Definition) Result {
	logger := logging.ForContext(ctx, s.workerLogger(def.ID))

	liveness, _ := s.liveness(ctx, def)
	if liveness.Alive() {
		logger.Infof("Already running, PID: %d, owned: %v", liveness.PID, liveness.Owned)
		return alreadyRunning(def.ID, liveness.PID)
	}

	launch := def.LaunchConfig()
	var closers []func()
	if output := s.openWorkerLog(def.ID, logger); output != nil {
		launch.Output = output
		closers = append(closers, func() { _ = output.Close() })
	}

	cmd, err := process.Launch(launch, s.options.Launchers, def.ID, logger)
	if err != nil {
		for _, closeFn := range closers {
			closeFn()
		}
		logger.Errorf("Failed to start: %v", err)
		return failed(def.ID, errors.NewSpawnError("failed to start worker", err).WithContext("id", def.ID))
	}

	handle := workers.NewProcessHandle(def.ID, cmd.Process.Pid, cmd.Wait, closers...)

	// A worker that dies during launch (bad interpreter, import error, port in
	// use) must not be reported as started.
	timer := time.NewTimer(s.options.StartupCheckDelay)
	defer timer.Stop()
	select {
	case <-handle.Done():
		logger.Errorf("Exited immediately after launch, PID: %d, err: %v", handle.PID, handle.ExitErr())
		reason := "process exited immediately after launch"
		return failed(def.ID, errors.NewSpawnError(reason, handle.ExitErr()).WithContext("id", def.ID))
	case <-ctx.Done():
		handle.MarkStopping()
		_ = process.SendKillSignal(handle.PID, true)
		select {
		case <-handle.Done():
		case <-time.After(s.options.KillTimeout):
		}
		logger.Errorf("Start aborted, PID: %d, err: %v", handle.PID, ctx.Err())
		if ctx.Err() == context.DeadlineExceeded {
			return failed(def.ID, errors.NewTimeoutError("start timed out", ctx.Err()))
		}
		return failed(def.ID, errors.NewCancelledError("start cancelled", ctx.Err()))
	case <-timer.C:
	}

	s.registryMutex.Lock()
	s.registry.Put(def.ID, handle)
	s.registryMutex.Unlock()

	if s.files != nil {
		if err := s.files.WritePIDFile(def.ID, handle.PID); err != nil {
			logger.Warnf("Failed to write PID file: %v", err)
		}
	}

	logger.Infof("Started, PID: %d", handle.PID)
	return started(def.ID, handle.PID)
}

func (s *Supervisor) openWorkerLog(id string, logger logging.Logger) io.WriteCloser {
	if s.files == nil || !s.options.CaptureOutput {
		return nil
	}
	file, err := s.files.OpenWorkerLog(id)
	if err != nil {
		logger.Warnf("Worker output will be discarded: %v", err)
		return nil
	}
	return file
}

func (s *Supervisor) removePIDFile(id string) {
	if s.files == nil {
		return
	}
	if err := s.files.RemovePIDFile(id); err != nil {
		s.workerLogger(id).Warnf("Failed to remove PID file: %v", err)
	}
}

// Stop terminates the worker: SIGTERM, then SIGKILL after the grace period.
// Unknown workers and workers that are not running yield NotRunning.
func (s *Supervisor) Stop(ctx context.Context, id string) Result {
	def, ok := s.byID[id]
	if !ok {
		return notRunning(id, "unknown worker: "+id)
	}

	guard := s.guards[id]
	prior, ok := guard.begin(PhaseStopping)
	if !ok {
		return inProgress(id, prior)
	}

	result := s.doStop(ctx, def)
	if result.Failed() {
		guard.finish(prior)
	} else {
		guard.finish(PhaseStopped)
		guard.clearCrash()
	}
	return result
}

func (s *Supervisor) doStop(ctx context.Context, def workers.Definition) Result {
	logger := logging.ForContext(ctx, s.workerLogger(def.ID))

	liveness, handle := s.liveness(ctx, def)
	if !liveness.Alive() {
		logger.Debugf("Stop requested but not running, liveness: %s", liveness.Status)
		return notRunning(def.ID, "worker is not running")
	}

	var err error
	if handle != nil {
		err = s.terminateOwned(ctx, handle, logger)
	} else {
		err = s.terminateDiscovered(ctx, liveness.PID, logger)
	}
	if err != nil {
		logger.Errorf("Failed to stop, PID: %d, error: %v", liveness.PID, err)
		return failed(def.ID, err)
	}

	if handle != nil {
		s.registryMutex.Lock()
		if current, ok := s.registry.Get(def.ID); ok && current == handle {
			s.registry.Remove(def.ID)
		}
		s.registryMutex.Unlock()
	}
	s.removePIDFile(def.ID)

	logger.Infof("Stopped, PID: %d", liveness.PID)
	return stopped(def.ID, liveness.PID)
}

// Restart stops the worker, waits the settle delay and starts it again.
// The delay is fixed; a worker that binds a port may still race its
// predecessor's socket release.
func (s *Supervisor) Restart(ctx context.Context, id string) Result {
	stopResult := s.Stop(ctx, id)
	switch stopResult.Outcome {
	case OutcomeFailed, OutcomeAlreadyInProgress:
		return stopResult
	case OutcomeStopped:
		if err := sleepContext(ctx, s.options.RestartDelay); err != nil {
			return failed(id, errors.NewCancelledError("restart cancelled", err))
		}
	}
	return s.Start(ctx, id)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the watchdog. It returns immediately.
func (s *Supervisor) Run(ctx context.Context) {
	if s.options.WatchdogInterval <= 0 || s.watchdogStop != nil {
		return
	}
	s.watchdogStop = make(chan struct{})
	s.watchdogWG.Add(1)
	go s.watchdogLoop(ctx)
}

// Close stops the watchdog and, if configured, every worker this supervisor owns.
func (s *Supervisor) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		if s.watchdogStop != nil {
			close(s.watchdogStop)
			s.watchdogWG.Wait()
		}
		if !s.options.StopWorkersOnExit {
			return
		}

		s.registryMutex.Lock()
		ids := s.registry.ListIDs()
		s.registryMutex.Unlock()

		collection := errors.NewErrorCollection()
		for _, id := range ids {
			if result := s.Stop(ctx, id); result.Failed() {
				collection.Add(result.Err)
			}
		}
		closeErr = collection.ToError()
	})
	return closeErr
}
