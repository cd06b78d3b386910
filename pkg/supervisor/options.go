package supervisor

import (
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/process"
)

const (
	DefaultGracePeriod        = 5 * time.Second
	DefaultKillTimeout        = 5 * time.Second
	DefaultRestartDelay       = 2 * time.Second
	DefaultStartupCheckDelay  = 500 * time.Millisecond
	DefaultStartTimeout       = 10 * time.Second
	DefaultWatchdogInterval   = 30 * time.Second
	DefaultMaxRestartAttempts = 3
	DefaultPollInterval       = 100 * time.Millisecond
)

type Options struct {
	// GracePeriod is how long a worker gets to exit after SIGTERM before SIGKILL.
	GracePeriod time.Duration
	// KillTimeout bounds the wait for exit after SIGKILL.
	KillTimeout time.Duration
	// RestartDelay separates stop and start in Restart.
	RestartDelay time.Duration
	// StartupCheckDelay is how long a fresh process must survive to count as started.
	StartupCheckDelay time.Duration
	// StartTimeout bounds the whole Starting phase.
	StartTimeout time.Duration
	// PollInterval is used while waiting for processes the supervisor did not spawn.
	PollInterval time.Duration

	Launchers process.Launchers

	// WatchdogInterval of zero disables automatic restarts.
	WatchdogInterval   time.Duration
	MaxRestartAttempts int

	// StopWorkersOnExit stops owned workers in Close.
	StopWorkersOnExit bool
	// CaptureOutput appends worker stdout/stderr to per-worker log files.
	CaptureOutput bool
}

func DefaultOptions() Options {
	return Options{
		GracePeriod:        DefaultGracePeriod,
		KillTimeout:        DefaultKillTimeout,
		RestartDelay:       DefaultRestartDelay,
		StartupCheckDelay:  DefaultStartupCheckDelay,
		StartTimeout:       DefaultStartTimeout,
		PollInterval:       DefaultPollInterval,
		Launchers:          process.DefaultLaunchers(),
		WatchdogInterval:   DefaultWatchdogInterval,
		MaxRestartAttempts: DefaultMaxRestartAttempts,
		StopWorkersOnExit:  true,
		CaptureOutput:      true,
	}
}

// withDefaults fills zero durations; a zero WatchdogInterval stays disabled.
func (o Options) withDefaults() Options {
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.KillTimeout <= 0 {
		o.KillTimeout = DefaultKillTimeout
	}
	if o.RestartDelay < 0 {
		o.RestartDelay = 0
	}
	if o.StartupCheckDelay <= 0 {
		o.StartupCheckDelay = DefaultStartupCheckDelay
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = DefaultStartTimeout
	}
	if o.StartTimeout <= o.StartupCheckDelay {
		o.StartTimeout = o.StartupCheckDelay + DefaultStartTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Launchers == nil {
		o.Launchers = process.DefaultLaunchers()
	}
	if o.MaxRestartAttempts <= 0 {
		o.MaxRestartAttempts = DefaultMaxRestartAttempts
	}
	return o
}

func ValidateOptions(o Options) error {
	if o.GracePeriod < 0 || o.KillTimeout < 0 || o.RestartDelay < 0 || o.StartupCheckDelay < 0 ||
		o.StartTimeout < 0 || o.WatchdogInterval < 0 || o.PollInterval < 0 {
		return errors.NewValidationError("supervisor durations cannot be negative", nil)
	}
	if o.MaxRestartAttempts < 0 {
		return errors.NewValidationError("max restart attempts cannot be negative", nil)
	}
	return process.ValidateLaunchers(o.Launchers)
}
