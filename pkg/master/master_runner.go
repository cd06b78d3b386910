package master

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/control"
	"github.com/core-tools/hsu-supervisor/pkg/control/rest"
	"github.com/core-tools/hsu-supervisor/pkg/control/slackbot"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/monitoring"
	"github.com/core-tools/hsu-supervisor/pkg/process"
	"github.com/core-tools/hsu-supervisor/pkg/processfile"
	"github.com/core-tools/hsu-supervisor/pkg/supervisor"

	"github.com/slack-go/slack"
)

const supervisorPIDName = "supervisor"

type RunOptions struct {
	ConfigFile string
	// LogLevel overrides the configured level when set.
	LogLevel    string
	RunDuration time.Duration
}

// Run loads the configuration, starts every enabled worker and serves the
// operator transports until a signal arrives or RunDuration elapses.
func Run(options RunOptions) error {
	config, created, err := LoadOrCreateConfig(options.ConfigFile)
	if err != nil {
		return errors.NewIOError("failed to load configuration", err).WithContext("config_file", options.ConfigFile)
	}
	if options.LogLevel != "" {
		config.Logging.Level = options.LogLevel
	}
	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", options.ConfigFile)
	}

	backend, err := logging.NewZapBackend(config.Logging)
	if err != nil {
		return errors.NewInternalError("failed to create logger", err)
	}
	defer backend.Sync()

	logger := backend.Logger(logging.ModulePrefix("runner"))
	logger.Infof("Supervisor runner starting...")
	if created {
		logger.Warnf("No configuration found, wrote defaults to %s", options.ConfigFile)
	} else {
		logger.Infof("Using CONFIGURATION FILE: %s", options.ConfigFile)
	}
	summary := GetConfigSummary(config)
	logger.Infof("Workers: %d configured, %d enabled, %d auto-restart", summary.TotalWorkers, summary.EnabledWorkers, summary.AutoRestart)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if options.RunDuration > 0 {
		logger.Infof("Using RUN DURATION of %v", options.RunDuration)
		ctx, cancel = context.WithTimeout(ctx, options.RunDuration)
		defer cancel()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		select {
		case received := <-sig:
			logger.Infof("Supervisor runner received signal: %v", received)
			cancel()
		case <-ctx.Done():
		}
	}()

	rt, err := newRuntime(config, backend)
	if err != nil {
		return err
	}
	return rt.run(ctx)
}

// runtime is the assembled object graph of one supervisor process.
type runtime struct {
	config     *Config
	files      *processfile.FileManager
	supervisor *supervisor.Supervisor
	refresh    *control.AutoRefreshLoop
	router     *control.CommandRouter
	server     *rest.Server
	bot        *slackbot.Bot
	logger     logging.Logger

	transports     sync.WaitGroup
	stopTransports context.CancelFunc
}

func newRuntime(config *Config, backend *logging.ZapBackend) (*runtime, error) {
	module := func(name string) logging.Logger {
		return backend.Logger(logging.ModulePrefix(name))
	}

	files := processfile.NewFileManager(config.Files, module("files"))
	scanner := process.NewSystemScanner(module("scanner"))

	sup, err := supervisor.New(config.Definitions(), scanner, files, config.SupervisorOptions(), module("supervisor"))
	if err != nil {
		return nil, errors.NewValidationError("failed to create supervisor", err)
	}

	sampler := monitoring.NewHostSampler(config.Monitoring.Sampler, module("sampler"))
	reporter := monitoring.NewStatusReporter(sup, sampler, config.Monitoring.Thresholds, module("status")).
		WithUsage(monitoring.NewProcessUsageProbe(module("usage")))
	refresh := control.NewAutoRefreshLoop(reporter, config.RefreshConfig(), module("refresh"))

	notifiers := control.Broadcast{control.NewLogNotifier(module("notify"))}

	// The Slack client exists before the router so the notifier can share it.
	var slackClient *slack.Client
	if config.Slack.IsEnabled() {
		slackClient, err = slackbot.NewClient(config.Slack)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, slackbot.NewNotifier(slackClient, config.Slack.AdminUsers, config.Slack.NotifyChannel, module("slack-notify")))
	}

	router := control.NewCommandRouter(sup, reporter, control.RouterOptions{
		AllowList: control.NewAllowList(config.Slack.AllowedUsers...),
		Notifier:  notifiers,
		Refresh:   refresh,
		Settings:  func() []control.Setting { return ConfigSettings(config) },
	}, module("router"))
	sup.SetNotifier(notifiers)

	rt := &runtime{
		config:     config,
		files:      files,
		supervisor: sup,
		refresh:    refresh,
		router:     router,
		logger:     module("runner"),
	}
	if config.HTTP.IsEnabled() {
		handler := rest.NewHandler(router, control.NewAllowList(config.HTTP.AllowedOperators...), module("http"))
		rt.server = rest.NewServer(config.HTTP.Listen, handler, module("http"))
	}
	if slackClient != nil {
		rt.bot = slackbot.New(slackClient, config.Slack, router, module("slack"))
	}
	return rt, nil
}

func (rt *runtime) run(ctx context.Context) error {
	if err := rt.files.WritePIDFile(supervisorPIDName, os.Getpid()); err != nil {
		rt.logger.Warnf("Failed to write supervisor PID file: %v", err)
	} else {
		defer rt.files.RemovePIDFile(supervisorPIDName)
	}

	if rt.config.Supervisor.CleanStart {
		killed := rt.supervisor.KillStale(ctx)
		rt.logger.Infof("Clean start: terminated %d stale worker process(es)", killed)
	}

	rt.supervisor.Run(ctx)

	var startWG sync.WaitGroup
	startWG.Add(1)
	go func() {
		defer startWG.Done()

		rt.logger.Infof("Supervisor is ready, starting workers...")
		summary, err := rt.router.StartAll(ctx)
		if err != nil {
			rt.logger.Errorf("Failed to start workers: %v", err)
			return
		}
		rt.logger.Infof("Workers started: %d succeeded, %d skipped, %d failed",
			summary.Succeeded, summary.Skipped, len(summary.Failures))
	}()

	if err := rt.refresh.Start(ctx); err != nil {
		rt.logger.Warnf("Auto-refresh not started: %v", err)
	}

	transportErr := rt.startTransports(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		rt.logger.Infof("Supervisor runner stopping: %v", ctx.Err())
	case runErr = <-transportErr:
		rt.logger.Errorf("Transport failed, shutting down: %v", runErr)
	}

	rt.logger.Infof("Stopping transports...")
	rt.stopTransports()
	rt.transports.Wait()
	rt.refresh.Stop()

	rt.logger.Infof("Waiting for workers start to finish...")
	startWG.Wait()

	// The run context is already done; stopping workers gets a fresh deadline.
	closeCtx, cancel := context.WithTimeout(context.Background(), rt.shutdownTimeout())
	defer cancel()
	if err := rt.supervisor.Close(closeCtx); err != nil {
		rt.logger.Errorf("Some workers did not stop cleanly: %v", err)
		if runErr == nil {
			runErr = err
		}
	}

	rt.logger.Infof("Supervisor runner stopped")
	return runErr
}

func (rt *runtime) startTransports(ctx context.Context) <-chan error {
	errs := make(chan error, 2)
	transportCtx, cancel := context.WithCancel(ctx)
	rt.stopTransports = cancel

	if rt.server != nil {
		rt.transports.Add(1)
		go func() {
			defer rt.transports.Done()
			if err := rt.server.Run(transportCtx); err != nil {
				errs <- err
			}
		}()
	}
	if rt.bot != nil {
		rt.transports.Add(1)
		go func() {
			defer rt.transports.Done()
			if err := rt.bot.Run(transportCtx); err != nil {
				errs <- err
			}
		}()
	}
	return errs
}

// shutdownTimeout bounds Close: workers stop one after another, each within
// its grace period plus kill timeout.
func (rt *runtime) shutdownTimeout() time.Duration {
	options := rt.config.SupervisorOptions()
	perWorker := options.GracePeriod + options.KillTimeout
	return time.Duration(len(rt.config.Workers)+1) * perWorker
}

// ValidateConfigFile validates a configuration file without running it.
func ValidateConfigFile(configFile string) (*Config, error) {
	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		return nil, errors.NewIOError("failed to load configuration", err).WithContext("config_file", configFile)
	}
	if err := ValidateConfig(config); err != nil {
		return nil, errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}
	return config, nil
}
