package master

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/monitoring"
	"github.com/core-tools/hsu-supervisor/pkg/supervisor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "supervisor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		validate    func(*testing.T, *Config)
	}{
		{
			name: "valid comprehensive config",
			configYAML: `
supervisor:
  grace_period: 3s
  kill_timeout: 4s
  restart_delay: 1s
  watchdog_interval: 15s
  max_restart_attempts: 5
  clean_start: true
logging:
  level: debug
  format: console
monitoring:
  refresh_interval: 1m
  auto_refresh: false
  thresholds:
    cpu: 70
    memory: 75
    disk: 95
    temperature: 65
http:
  listen: "127.0.0.1:9000"
  allowed_operators: ["alice"]
workers:
  - id: trading-bot
    name: "Trading Bot"
    path: /bin/echo
    args: ["hello"]
    environment: ["MODE=live"]
    auto_restart: true
  - id: reporter
    path: /bin/echo
    enabled: false
`,
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, 3*time.Second, config.Supervisor.GracePeriod)
				assert.Equal(t, 4*time.Second, config.Supervisor.KillTimeout)
				assert.Equal(t, 5, config.Supervisor.MaxRestartAttempts)
				assert.True(t, config.Supervisor.CleanStart)
				assert.Equal(t, "debug", config.Logging.Level)
				assert.Equal(t, time.Minute, config.Monitoring.RefreshInterval)
				assert.False(t, *config.Monitoring.AutoRefresh)
				assert.Equal(t, 65.0, config.Monitoring.Thresholds.TemperatureC)
				assert.Equal(t, []string{"alice"}, config.HTTP.AllowedOperators)
				require.Len(t, config.Workers, 2)

				bot := config.Workers[0]
				assert.Equal(t, "trading-bot", bot.ID)
				assert.Equal(t, "Trading Bot", bot.Name)
				assert.True(t, *bot.Enabled) // Should default to true
				assert.True(t, *bot.AutoRestart)
				assert.False(t, *config.Workers[1].Enabled)
			},
		},
		{
			name: "minimal valid config",
			configYAML: `
workers:
  - id: simple-worker
    path: /bin/echo
`,
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, supervisor.DefaultGracePeriod, config.Supervisor.GracePeriod)
				assert.Equal(t, supervisor.DefaultMaxRestartAttempts, config.Supervisor.MaxRestartAttempts)
				assert.True(t, *config.Supervisor.StopWorkersOnExit)
				assert.Equal(t, "info", config.Logging.Level)
				assert.True(t, *config.Monitoring.AutoRefresh)
				assert.Equal(t, monitoring.DefaultThresholds(), config.Monitoring.Thresholds)
				assert.Equal(t, "/supervisor", config.Slack.SlashCommand)
				assert.False(t, config.Slack.IsEnabled())
				assert.True(t, config.HTTP.IsEnabled())
				assert.Equal(t, []string{"*"}, config.HTTP.AllowedOperators)
				assert.False(t, *config.Workers[0].AutoRestart)
			},
		},
		{
			name: "invalid YAML",
			configYAML: `
workers:
  - id: [unclosed
`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfigFromFile(writeConfig(t, tt.configYAML))
			if tt.expectError {
				assert.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			require.NoError(t, ValidateConfig(config))
			tt.validate(t, config)
		})
	}
}

func TestLoadConfigFromFile_Missing(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLoadConfigFromFile_EnvironmentTokens(t *testing.T) {
	t.Setenv(EnvSlackBotToken, "xoxb-from-env")
	t.Setenv(EnvSlackAppToken, "xapp-from-env")

	config, err := LoadConfigFromFile(writeConfig(t, `
slack:
  enabled: true
  bot_token: xoxb-from-file
  allowed_users: [U1]
workers: []
`))
	require.NoError(t, err)
	assert.Equal(t, "xoxb-from-env", config.Slack.BotToken)
	assert.Equal(t, "xapp-from-env", config.Slack.AppToken)
	assert.NoError(t, ValidateConfig(config))
}

func TestLoadOrCreateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "supervisor.yaml")

	config, created, err := LoadOrCreateConfig(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.FileExists(t, path)
	require.NoError(t, ValidateConfig(config))
	require.Len(t, config.Workers, 1)
	assert.False(t, *config.Workers[0].Enabled, "example worker must not start")

	reloaded, created, err := LoadOrCreateConfig(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, config.Workers, reloaded.Workers)
	assert.Equal(t, config.Supervisor.GracePeriod, reloaded.Supervisor.GracePeriod)
}

func TestLoadOrCreateConfig_ParseErrorIsNotOverwritten(t *testing.T) {
	path := writeConfig(t, "workers: [")

	_, created, err := LoadOrCreateConfig(path)
	assert.Error(t, err)
	assert.False(t, created)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "workers: [", string(data))
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		config := DefaultConfig()
		config.Workers = []WorkerConfig{{ID: "bot", Path: "/bin/echo"}}
		setConfigDefaults(config)
		return config
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"valid", func(*Config) {}, false},
		{"no workers", func(c *Config) { c.Workers = nil }, false},
		{"duplicate ids", func(c *Config) {
			c.Workers = append(c.Workers, WorkerConfig{ID: "bot", Path: "/bin/true"})
		}, true},
		{"invalid id", func(c *Config) { c.Workers[0].ID = "bad id" }, true},
		{"missing path", func(c *Config) { c.Workers[0].Path = "" }, true},
		{"bad environment", func(c *Config) { c.Workers[0].Environment = []string{"NOEQUALS"} }, true},
		{"negative grace", func(c *Config) { c.Supervisor.GracePeriod = -time.Second }, true},
		{"negative attempts", func(c *Config) { c.Supervisor.MaxRestartAttempts = -1 }, true},
		{"bad launcher", func(c *Config) { c.Supervisor.Launchers = map[string][]string{"py": {"python3"}} }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad threshold", func(c *Config) { c.Monitoring.Thresholds.CPUPercent = 150 }, true},
		{"slack enabled without tokens", func(c *Config) { c.Slack.Enabled = boolPtr(true) }, true},
		{"bad listen", func(c *Config) { c.HTTP.Listen = "nohost" }, true},
		{"http disabled ignores listen", func(c *Config) {
			c.HTTP.Enabled = boolPtr(false)
			c.HTTP.Listen = "nohost"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)
			err := ValidateConfig(config)
			if tt.expectError {
				assert.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, ValidateConfig(nil))
}

func TestConfigDefinitions(t *testing.T) {
	path := writeConfig(t, `
workers:
  - id: relative
    name: "Relative Worker"
    path: bin/worker.sh
  - id: absolute
    path: /usr/bin/env
    enabled: false
    auto_restart: true
`)
	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	defs := config.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "bin", "worker.sh"), defs[0].ExecutablePath)
	assert.Equal(t, "Relative Worker", defs[0].Name())
	assert.True(t, defs[0].Enabled)
	assert.False(t, defs[0].AutoRestart)

	assert.Equal(t, "/usr/bin/env", defs[1].ExecutablePath)
	assert.False(t, defs[1].Enabled)
	assert.True(t, defs[1].AutoRestart)
	assert.Equal(t, "absolute", defs[1].Name())
}

func TestConfigSupervisorOptions(t *testing.T) {
	config := DefaultConfig()
	config.Supervisor.GracePeriod = 7 * time.Second
	config.Supervisor.StopWorkersOnExit = boolPtr(false)

	options := config.SupervisorOptions()
	assert.Equal(t, 7*time.Second, options.GracePeriod)
	assert.Equal(t, supervisor.DefaultKillTimeout, options.KillTimeout)
	assert.False(t, options.StopWorkersOnExit)
	assert.True(t, options.CaptureOutput)
	assert.NotEmpty(t, options.Launchers)
	assert.NoError(t, supervisor.ValidateOptions(options))

	refresh := config.RefreshConfig()
	assert.Equal(t, config.Monitoring.RefreshInterval, refresh.Interval)
	assert.True(t, refresh.Enabled)
}

func TestGetConfigSummary(t *testing.T) {
	config := DefaultConfig()
	config.Workers = []WorkerConfig{
		{ID: "a", Path: "/bin/echo"},
		{ID: "b", Path: "/bin/echo", Enabled: boolPtr(false)},
		{ID: "c", Path: "/bin/echo", AutoRestart: boolPtr(true)},
	}
	setConfigDefaults(config)

	summary := GetConfigSummary(config)
	assert.Equal(t, 3, summary.TotalWorkers)
	assert.Equal(t, 2, summary.EnabledWorkers)
	assert.Equal(t, 1, summary.AutoRestart)
	assert.Equal(t, "info", summary.LogLevel)
	assert.False(t, summary.SlackEnabled)
	assert.Equal(t, "127.0.0.1:8088", summary.HTTPListen)
}

func TestConfigSettings(t *testing.T) {
	config := DefaultConfig()
	config.Workers = []WorkerConfig{
		{ID: "a", Path: "/bin/echo"},
		{ID: "b", Path: "/bin/echo", Enabled: boolPtr(false)},
	}
	config.Supervisor.GracePeriod = 7 * time.Second
	config.Slack.BotToken = "xoxb-secret"
	config.Slack.AppToken = "xapp-secret"
	setConfigDefaults(config)

	values := make(map[string]string)
	for _, setting := range ConfigSettings(config) {
		values[setting.Name] = setting.Value
		assert.NotContains(t, setting.Value, "secret")
	}
	assert.Equal(t, "1 of 2 enabled, 0 with auto-restart", values["Workers"])
	assert.Equal(t, "7s", values["Grace period"])
	assert.Equal(t, "off", values["Slack"])
	assert.Equal(t, "127.0.0.1:8088", values["HTTP"])
	assert.Equal(t, "info", values["Log level"])
	assert.Contains(t, values["Auto-refresh"], "on, every")
}

func TestLoadConfigFromFile_UnknownField(t *testing.T) {
	_, err := LoadConfigFromFile(writeConfig(t, `
workers:
  - id: bot
    path: /bin/echo
    restart_policy: always
`))
	assert.True(t, errors.IsValidationError(err))
}
