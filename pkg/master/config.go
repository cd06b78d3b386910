package master

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
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
	"github.com/core-tools/hsu-supervisor/pkg/workers"

	"gopkg.in/yaml.v3"
)

const (
	EnvSlackBotToken = "SUPERVISOR_SLACK_BOT_TOKEN"
	EnvSlackAppToken = "SUPERVISOR_SLACK_APP_TOKEN"
)

// Config represents the top-level configuration file structure
type Config struct {
	Supervisor SupervisorConfig   `yaml:"supervisor"`
	Logging    logging.ZapConfig  `yaml:"logging"`
	Monitoring MonitoringConfig   `yaml:"monitoring"`
	Slack      slackbot.Config    `yaml:"slack"`
	HTTP       rest.Config        `yaml:"http"`
	Files      processfile.Config `yaml:"files,omitempty"`
	Workers    []WorkerConfig     `yaml:"workers"`

	// Directory relative worker paths are resolved against; set by the loader.
	baseDir string
}

type SupervisorConfig struct {
	GracePeriod        time.Duration     `yaml:"grace_period,omitempty"`
	KillTimeout        time.Duration     `yaml:"kill_timeout,omitempty"`
	RestartDelay       time.Duration     `yaml:"restart_delay,omitempty"`
	StartupCheckDelay  time.Duration     `yaml:"startup_check_delay,omitempty"`
	StartTimeout       time.Duration     `yaml:"start_timeout,omitempty"`
	WatchdogInterval   time.Duration     `yaml:"watchdog_interval,omitempty"`
	MaxRestartAttempts int               `yaml:"max_restart_attempts,omitempty"`
	CleanStart         bool              `yaml:"clean_start,omitempty"`
	StopWorkersOnExit  *bool             `yaml:"stop_workers_on_exit,omitempty"`
	CaptureOutput      *bool             `yaml:"capture_output,omitempty"`
	Launchers          process.Launchers `yaml:"launchers,omitempty"`
}

type MonitoringConfig struct {
	RefreshInterval time.Duration                `yaml:"refresh_interval,omitempty"`
	AutoRefresh     *bool                        `yaml:"auto_refresh,omitempty"`
	Thresholds      monitoring.Thresholds        `yaml:"thresholds"`
	Sampler         monitoring.HostSamplerConfig `yaml:"sampler,omitempty"`
}

// WorkerConfig represents a single worker configuration
type WorkerConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name,omitempty"`
	Path        string   `yaml:"path"`
	Args        []string `yaml:"args,omitempty"`
	Environment []string `yaml:"environment,omitempty"`
	Enabled     *bool    `yaml:"enabled,omitempty"` // Pointer to distinguish unset from false
	AutoRestart *bool    `yaml:"auto_restart,omitempty"`
}

func boolPtr(b bool) *bool {
	return &b
}

// DefaultConfig is what gets written when no configuration file exists yet.
func DefaultConfig() *Config {
	config := &Config{
		Logging: logging.DefaultZapConfig(),
		Slack: slackbot.Config{
			Enabled:      boolPtr(false),
			SlashCommand: slackbot.DefaultSlashCommand,
		},
		HTTP: rest.Config{
			Enabled:          boolPtr(true),
			Listen:           rest.DefaultListenAddress,
			AllowedOperators: []string{control.Wildcard},
		},
		Workers: []WorkerConfig{
			{
				ID:      "example",
				Name:    "Example Worker",
				Path:    "./workers/example.sh",
				Enabled: boolPtr(false),
			},
		},
	}
	setConfigDefaults(config)
	return config
}

// LoadConfigFromFile loads configuration from a YAML (or JSON) file
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("configuration file does not exist", err).WithContext("filename", filename)
		}
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	var config Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && err != io.EOF {
		return nil, errors.NewValidationError("failed to parse configuration", err).WithContext("filename", filename)
	}

	config.baseDir = configDir(filename)
	setConfigDefaults(&config)
	applyEnvironment(&config)

	return &config, nil
}

// LoadOrCreateConfig loads filename, or writes DefaultConfig there if it does
// not exist. created reports the latter.
func LoadOrCreateConfig(filename string) (config *Config, created bool, err error) {
	config, err = LoadConfigFromFile(filename)
	if err == nil {
		return config, false, nil
	}
	if !errors.IsNotFoundError(err) {
		return nil, false, err
	}

	config = DefaultConfig()
	if err := SaveConfigToFile(config, filename); err != nil {
		return nil, false, err
	}
	config.baseDir = configDir(filename)
	applyEnvironment(config)
	return config, true, nil
}

func SaveConfigToFile(config *Config, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.NewInternalError("failed to encode configuration", err)
	}
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewIOError("failed to create configuration directory", err).WithContext("dir", dir)
		}
	}
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.NewIOError("failed to write configuration file", err).WithContext("filename", filename)
	}
	return nil
}

func configDir(filename string) string {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return filepath.Dir(filename)
	}
	return filepath.Dir(abs)
}

// applyEnvironment lets secrets stay out of the file.
func applyEnvironment(config *Config) {
	if token := os.Getenv(EnvSlackBotToken); token != "" {
		config.Slack.BotToken = token
	}
	if token := os.Getenv(EnvSlackAppToken); token != "" {
		config.Slack.AppToken = token
	}
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *Config) {
	s := &config.Supervisor
	if s.GracePeriod == 0 {
		s.GracePeriod = supervisor.DefaultGracePeriod
	}
	if s.KillTimeout == 0 {
		s.KillTimeout = supervisor.DefaultKillTimeout
	}
	if s.RestartDelay == 0 {
		s.RestartDelay = supervisor.DefaultRestartDelay
	}
	if s.StartupCheckDelay == 0 {
		s.StartupCheckDelay = supervisor.DefaultStartupCheckDelay
	}
	if s.StartTimeout == 0 {
		s.StartTimeout = supervisor.DefaultStartTimeout
	}
	if s.WatchdogInterval == 0 {
		s.WatchdogInterval = supervisor.DefaultWatchdogInterval
	}
	if s.MaxRestartAttempts == 0 {
		s.MaxRestartAttempts = supervisor.DefaultMaxRestartAttempts
	}
	if s.StopWorkersOnExit == nil {
		s.StopWorkersOnExit = boolPtr(true)
	}
	if s.CaptureOutput == nil {
		s.CaptureOutput = boolPtr(true)
	}

	defaults := logging.DefaultZapConfig()
	if config.Logging.Level == "" {
		config.Logging.Level = defaults.Level
	}
	if config.Logging.Format == "" {
		config.Logging.Format = defaults.Format
	}
	if config.Logging.Output == "" {
		config.Logging.Output = defaults.Output
	}

	m := &config.Monitoring
	if m.RefreshInterval == 0 {
		m.RefreshInterval = control.DefaultRefreshInterval
	}
	if m.AutoRefresh == nil {
		m.AutoRefresh = boolPtr(true)
	}
	if m.Thresholds == (monitoring.Thresholds{}) {
		m.Thresholds = monitoring.DefaultThresholds()
	}
	if m.Sampler == (monitoring.HostSamplerConfig{}) {
		m.Sampler = monitoring.DefaultHostSamplerConfig()
	}

	if config.Slack.SlashCommand == "" {
		config.Slack.SlashCommand = slackbot.DefaultSlashCommand
	}
	if config.HTTP.Listen == "" {
		config.HTTP.Listen = rest.DefaultListenAddress
	}
	if len(config.HTTP.AllowedOperators) == 0 {
		config.HTTP.AllowedOperators = []string{control.Wildcard}
	}

	for i := range config.Workers {
		worker := &config.Workers[i]
		// Default enabled to true if not specified
		if worker.Enabled == nil {
			worker.Enabled = boolPtr(true)
		}
		if worker.AutoRestart == nil {
			worker.AutoRestart = boolPtr(false)
		}
	}
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := ValidateLogLevel(config.Logging.Level); err != nil {
		return errors.NewValidationError("invalid logging configuration", err)
	}
	if err := ValidateLogFormat(config.Logging.Format); err != nil {
		return errors.NewValidationError("invalid logging configuration", err)
	}

	if err := validateSupervisorConfig(&config.Supervisor); err != nil {
		return errors.NewValidationError("invalid supervisor configuration", err)
	}

	if err := ValidateDuration(config.Monitoring.RefreshInterval, "refresh interval"); err != nil {
		return errors.NewValidationError("invalid monitoring configuration", err)
	}
	if err := monitoring.ValidateThresholds(config.Monitoring.Thresholds); err != nil {
		return errors.NewValidationError("invalid monitoring configuration", err)
	}

	if err := slackbot.ValidateConfig(config.Slack); err != nil {
		return errors.NewValidationError("invalid slack configuration", err)
	}
	if err := rest.ValidateConfig(config.HTTP); err != nil {
		return errors.NewValidationError("invalid http configuration", err)
	}

	if err := validateWorkersConfig(config.Workers); err != nil {
		return errors.NewValidationError("invalid workers configuration", err)
	}
	return workers.ValidateDefinitions(config.Definitions())
}

func validateSupervisorConfig(s *SupervisorConfig) error {
	durations := []struct {
		value time.Duration
		name  string
	}{
		{s.GracePeriod, "grace period"},
		{s.KillTimeout, "kill timeout"},
		{s.RestartDelay, "restart delay"},
		{s.StartupCheckDelay, "startup check delay"},
		{s.StartTimeout, "start timeout"},
		{s.WatchdogInterval, "watchdog interval"},
	}
	for _, d := range durations {
		if err := ValidateDuration(d.value, d.name); err != nil {
			return err
		}
	}
	if s.MaxRestartAttempts < 0 {
		return errors.NewValidationError("max restart attempts cannot be negative", nil)
	}
	if s.Launchers != nil {
		return process.ValidateLaunchers(s.Launchers)
	}
	return nil
}

func validateWorkersConfig(workers []WorkerConfig) error {
	// Allow empty workers list
	seenIDs := make(map[string]int)
	for i, worker := range workers {
		if err := ValidateWorkerID(worker.ID); err != nil {
			return errors.NewValidationError(
				fmt.Sprintf("invalid worker ID at index %d", i),
				err,
			).WithContext("worker_id", worker.ID)
		}

		if prevIndex, exists := seenIDs[worker.ID]; exists {
			return errors.NewValidationError(
				fmt.Sprintf("duplicate worker ID '%s' found at indices %d and %d", worker.ID, prevIndex, i),
				nil,
			)
		}
		seenIDs[worker.ID] = i

		if worker.Path == "" {
			return errors.NewValidationError(
				fmt.Sprintf("worker at index %d has no path", i),
				nil,
			).WithContext("worker_id", worker.ID)
		}
	}
	return nil
}

// Definitions converts worker entries, in file order, with relative paths
// resolved against the configuration file's directory.
func (c *Config) Definitions() []workers.Definition {
	defs := make([]workers.Definition, 0, len(c.Workers))
	for _, w := range c.Workers {
		path := w.Path
		if path != "" && !filepath.IsAbs(path) && c.baseDir != "" {
			path = filepath.Join(c.baseDir, path)
		}
		defs = append(defs, workers.Definition{
			ID:             w.ID,
			DisplayName:    w.Name,
			ExecutablePath: path,
			Args:           w.Args,
			Environment:    w.Environment,
			Enabled:        w.Enabled == nil || *w.Enabled,
			AutoRestart:    w.AutoRestart != nil && *w.AutoRestart,
		})
	}
	return defs
}

func (c *Config) SupervisorOptions() supervisor.Options {
	s := c.Supervisor
	options := supervisor.DefaultOptions()
	options.GracePeriod = s.GracePeriod
	options.KillTimeout = s.KillTimeout
	options.RestartDelay = s.RestartDelay
	options.StartupCheckDelay = s.StartupCheckDelay
	options.StartTimeout = s.StartTimeout
	options.WatchdogInterval = s.WatchdogInterval
	options.MaxRestartAttempts = s.MaxRestartAttempts
	options.StopWorkersOnExit = s.StopWorkersOnExit == nil || *s.StopWorkersOnExit
	options.CaptureOutput = s.CaptureOutput == nil || *s.CaptureOutput
	if s.Launchers != nil {
		options.Launchers = s.Launchers
	}
	return options
}

func (c *Config) RefreshConfig() control.RefreshConfig {
	refresh := control.DefaultRefreshConfig()
	refresh.Interval = c.Monitoring.RefreshInterval
	refresh.Enabled = c.Monitoring.AutoRefresh == nil || *c.Monitoring.AutoRefresh
	return refresh
}

// ConfigSummary provides a high-level overview of configuration
type ConfigSummary struct {
	TotalWorkers   int    `json:"total_workers"`
	EnabledWorkers int    `json:"enabled_workers"`
	AutoRestart    int    `json:"auto_restart_workers"`
	LogLevel       string `json:"log_level"`
	SlackEnabled   bool   `json:"slack_enabled"`
	HTTPListen     string `json:"http_listen,omitempty"`
}

func GetConfigSummary(config *Config) ConfigSummary {
	summary := ConfigSummary{
		TotalWorkers: len(config.Workers),
		LogLevel:     config.Logging.Level,
		SlackEnabled: config.Slack.IsEnabled(),
	}
	if config.HTTP.IsEnabled() {
		summary.HTTPListen = config.HTTP.Listen
	}
	for _, def := range config.Definitions() {
		if def.Enabled {
			summary.EnabledWorkers++
		}
		if def.AutoRestart {
			summary.AutoRestart++
		}
	}
	return summary
}

// ConfigSettings renders the effective configuration for operators. Tokens
// and other secrets are never included.
func ConfigSettings(config *Config) []control.Setting {
	summary := GetConfigSummary(config)
	options := config.SupervisorOptions()
	refresh := config.RefreshConfig()

	onOff := func(enabled bool) string {
		if enabled {
			return "on"
		}
		return "off"
	}
	httpListen := "off"
	if summary.HTTPListen != "" {
		httpListen = summary.HTTPListen
	}
	thresholds := config.Monitoring.Thresholds

	return []control.Setting{
		{Name: "Workers", Value: fmt.Sprintf("%d of %d enabled, %d with auto-restart", summary.EnabledWorkers, summary.TotalWorkers, summary.AutoRestart)},
		{Name: "Grace period", Value: options.GracePeriod.String()},
		{Name: "Kill timeout", Value: options.KillTimeout.String()},
		{Name: "Restart delay", Value: options.RestartDelay.String()},
		{Name: "Startup check", Value: options.StartupCheckDelay.String()},
		{Name: "Watchdog", Value: fmt.Sprintf("every %s, up to %d restarts", options.WatchdogInterval, options.MaxRestartAttempts)},
		{Name: "Auto-refresh", Value: fmt.Sprintf("%s, every %s", onOff(refresh.Enabled), refresh.Interval)},
		{Name: "Alert thresholds", Value: fmt.Sprintf("CPU %.0f%%, memory %.0f%%, disk %.0f%%, temperature %.0f°C",
			thresholds.CPUPercent, thresholds.MemoryPercent, thresholds.DiskPercent, thresholds.TemperatureC)},
		{Name: "Log level", Value: summary.LogLevel},
		{Name: "Slack", Value: onOff(summary.SlackEnabled)},
		{Name: "HTTP", Value: httpListen},
	}
}
