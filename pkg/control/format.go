package control

import (
	"fmt"
	"strings"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/monitoring"
	"github.com/core-tools/hsu-supervisor/pkg/supervisor"
)

const (
	megabyte = 1 << 20
	gigabyte = 1 << 30
)

var stateIcons = map[monitoring.RuntimeState]string{
	monitoring.StateRunning:  "🟢",
	monitoring.StateStopped:  "🔴",
	monitoring.StateStarting: "🟡",
	monitoring.StateStopping: "🟠",
	monitoring.StateUnknown:  "❓",
}

func bold(s string) string {
	return "*" + s + "*"
}

func gb(bytes uint64) float64 {
	return float64(bytes) / gigabyte
}

// StatusMessage renders the status board together with its control buttons.
func StatusMessage(view monitoring.StatusView, autoRefresh bool) Message {
	var b strings.Builder

	b.WriteString(bold("Workers:") + "\n")
	for _, w := range view.Workers {
		fmt.Fprintf(&b, "%s %s %s", stateIcons[w.State], bold(w.DisplayName), w.State)
		if w.PID != 0 {
			fmt.Fprintf(&b, " (PID: %d", w.PID)
			if w.Uptime > 0 {
				fmt.Fprintf(&b, ", up %s", w.Uptime)
			}
			if w.Usage != nil {
				fmt.Fprintf(&b, ", CPU %.1f%%, RSS %.0f MB", w.Usage.CPUPercent, float64(w.Usage.MemoryRSS)/megabyte)
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n%s %d/%d workers running\n", bold("Stats:"), view.Running, view.Total)

	level := LevelInfo
	switch {
	case view.System != nil:
		b.WriteString("\n" + systemText(*view.System, view.Health))
		if view.Health != nil && view.Health.Level == monitoring.HealthWarning {
			level = LevelWarning
		}
	case view.SystemErr != "":
		fmt.Fprintf(&b, "\n%s unavailable (%s)\n", bold("System:"), view.SystemErr)
	}

	fmt.Fprintf(&b, "\n%s %s", bold("Updated:"), view.RenderedAt.Format("15:04:05"))

	autoLabel, autoArg := "Auto-refresh: off", "on"
	if autoRefresh {
		autoLabel, autoArg = "Auto-refresh: on", "off"
	}

	actions := [][]Action{
		{
			{Label: "Refresh", Command: Command{Name: CommandStatus}},
			{Label: autoLabel, Command: Command{Name: CommandAuto, Arg: autoArg}},
			{Label: "System info", Command: Command{Name: CommandSystemInfo}},
		},
		{
			{Label: "Start all", Command: Command{Name: CommandStartAll}},
			{Label: "Stop all", Command: Command{Name: CommandStopAll}, Danger: true},
			{Label: "Restart all", Command: Command{Name: CommandRestartAll}},
		},
	}
	for _, w := range view.Workers {
		actions = append(actions, workerActions(w))
	}

	return Message{
		Title:   "Worker monitor",
		Body:    b.String(),
		Level:   level,
		Actions: actions,
	}
}

func workerActions(w monitoring.WorkerStatus) []Action {
	if w.State == monitoring.StateRunning {
		return []Action{
			{Label: "Stop " + w.DisplayName, Command: Command{Name: CommandStop, WorkerID: w.ID}, Danger: true},
			{Label: "Restart " + w.DisplayName, Command: Command{Name: CommandRestart, WorkerID: w.ID}},
		}
	}
	return []Action{
		{Label: "Start " + w.DisplayName, Command: Command{Name: CommandStart, WorkerID: w.ID}},
	}
}

func systemText(s monitoring.SystemSnapshot, health *monitoring.Health) string {
	var b strings.Builder
	b.WriteString(bold("System:") + "\n")
	fmt.Fprintf(&b, "CPU: %.1f%%\n", s.CPUPercent)
	fmt.Fprintf(&b, "RAM: %.1f%% (%.1fGB / %.1fGB)\n", s.MemPercent(), gb(s.MemUsedBytes), gb(s.MemTotalBytes))
	fmt.Fprintf(&b, "Disk: %.1f%% (%.1fGB / %.1fGB)\n", s.DiskPercent(), gb(s.DiskUsedBytes), gb(s.DiskTotalBytes))
	if s.TemperatureC > 0 {
		fmt.Fprintf(&b, "Temperature: %.1f°C\n", s.TemperatureC)
	}
	if s.Uptime > 0 {
		fmt.Fprintf(&b, "Uptime: %s\n", s.Uptime.Round(time.Minute))
	}
	if health != nil {
		for _, breach := range health.Breaches {
			fmt.Fprintf(&b, "⚠️ %s\n", breach)
		}
	}
	return b.String()
}

func SystemMessage(s monitoring.SystemSnapshot, health monitoring.Health) Message {
	level := LevelInfo
	body := systemText(s, &health)
	if health.Level == monitoring.HealthWarning {
		level = LevelWarning
	}
	if s.NetBytesSent > 0 || s.NetBytesRecv > 0 {
		body += fmt.Sprintf("Network: sent %.2fGB, received %.2fGB\n", gb(s.NetBytesSent), gb(s.NetBytesRecv))
	}
	return Message{
		Title: "System info",
		Body:  body,
		Level: level,
		Actions: [][]Action{{
			{Label: "Back", Command: Command{Name: CommandStatus}},
		}},
	}
}

// Setting is one read-only configuration entry.
type Setting struct {
	Name  string
	Value string
}

func SettingsMessage(settings []Setting) Message {
	var b strings.Builder
	for _, setting := range settings {
		fmt.Fprintf(&b, "%s %s\n", bold(setting.Name+":"), setting.Value)
	}
	if len(settings) == 0 {
		b.WriteString("No settings to show\n")
	}
	return Message{
		Title: "Settings",
		Body:  b.String(),
		Level: LevelInfo,
		Actions: [][]Action{{
			{Label: "Back", Command: Command{Name: CommandStatus}},
		}},
	}
}

// ResultMessage describes a single-worker outcome; benign conflicts are not errors.
func ResultMessage(name string, r supervisor.Result) Message {
	var text string
	level := LevelInfo
	switch r.Outcome {
	case supervisor.OutcomeStarted:
		text = fmt.Sprintf("✅ %s started (PID: %d)", name, r.PID)
	case supervisor.OutcomeStopped:
		text = fmt.Sprintf("⏹ %s stopped", name)
	case supervisor.OutcomeAlreadyRunning:
		text = fmt.Sprintf("ℹ️ %s is already running (PID: %d)", name, r.PID)
	case supervisor.OutcomeNotRunning:
		text = fmt.Sprintf("ℹ️ %s is not running", name)
	case supervisor.OutcomeAlreadyInProgress:
		text = fmt.Sprintf("⏳ %s: %s", name, r.Reason)
		level = LevelWarning
	default:
		text = fmt.Sprintf("❌ %s failed: %s", name, r.Reason)
		level = LevelError
	}
	return Message{
		Body:  text,
		Level: level,
		Actions: [][]Action{{
			{Label: "Status", Command: Command{Name: CommandStatus}},
		}},
	}
}

func BatchMessage(operation string, b supervisor.BatchResult) Message {
	var text strings.Builder
	fmt.Fprintf(&text, "%s: %d succeeded", operation, b.Succeeded)
	if b.Skipped > 0 {
		fmt.Fprintf(&text, ", %d unchanged", b.Skipped)
	}
	level := LevelInfo
	if b.HasFailures() {
		level = LevelError
		fmt.Fprintf(&text, ", %d failed\n%s", len(b.Failures), FailureList(b.Failures))
	}
	return Message{
		Body:  text.String(),
		Level: level,
		Actions: [][]Action{{
			{Label: "Status", Command: Command{Name: CommandStatus}},
		}},
	}
}

// FailureList renders one "id: reason" line per failure.
func FailureList(failures []supervisor.Failure) string {
	lines := make([]string, 0, len(failures))
	for _, f := range failures {
		lines = append(lines, fmt.Sprintf("• %s: %s", f.WorkerID, f.Reason))
	}
	return strings.Join(lines, "\n")
}

func HelpMessage() Message {
	return Message{
		Title: "Commands",
		Body: strings.Join([]string{
			"status: show all workers and the host",
			"start-all | stop-all | restart-all",
			"start <id> | stop <id> | restart <id>",
			"system-info: CPU, memory, disk and temperature",
			"settings: the effective configuration (read-only)",
			"auto on | auto off: periodic status refresh",
			"help: this message",
		}, "\n"),
	}
}

func RefusalMessage() Message {
	return Message{Body: "⛔ You are not allowed to control this supervisor.", Level: LevelError}
}

func ErrorMessage(err error) Message {
	return Message{Body: "❌ " + errors.ReasonOf(err), Level: LevelError}
}
