package control

import (
	"context"
	"fmt"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/monitoring"
	"github.com/core-tools/hsu-supervisor/pkg/supervisor"
	"github.com/core-tools/hsu-supervisor/pkg/workers"

	"github.com/google/uuid"
)

// WorkerControl is the part of the supervisor the router drives.
type WorkerControl interface {
	Start(ctx context.Context, id string) supervisor.Result
	Stop(ctx context.Context, id string) supervisor.Result
	Restart(ctx context.Context, id string) supervisor.Result
	StartAll(ctx context.Context) supervisor.BatchResult
	StopAll(ctx context.Context) supervisor.BatchResult
	RestartAll(ctx context.Context) supervisor.BatchResult
	Definition(id string) (workers.Definition, bool)
}

type Reporter interface {
	StatusSource
	System(ctx context.Context) (monitoring.SystemSnapshot, monitoring.Health, error)
}

type RouterOptions struct {
	AllowList *AllowList
	Notifier  supervisor.Notifier
	Refresh   *AutoRefreshLoop
	// Settings lists the effective configuration for the settings command.
	Settings func() []Setting
}

// CommandRouter maps operator commands onto supervisor and reporter calls and
// renders exactly one reply per command.
type CommandRouter struct {
	control  WorkerControl
	reporter Reporter
	allow    *AllowList
	notifier supervisor.Notifier
	refresh  *AutoRefreshLoop
	settings func() []Setting
	logger   logging.Logger
}

func NewCommandRouter(control WorkerControl, reporter Reporter, options RouterOptions, logger logging.Logger) *CommandRouter {
	return &CommandRouter{
		control:  control,
		reporter: reporter,
		allow:    options.AllowList,
		notifier: options.Notifier,
		refresh:  options.Refresh,
		settings: options.Settings,
		logger:   logger,
	}
}

var _ domain.Contract = (*CommandRouter)(nil)

// Dispatch authorizes and runs cmd, then renders the outcome through out.
// A status reply becomes the auto-refresh sink when out supports editing.
func (r *CommandRouter) Dispatch(ctx context.Context, cmd Command, out Renderer) error {
	ctx = logging.ContextWithRequestID(ctx, uuid.NewString())
	logger := logging.ForContext(ctx, r.logger)

	if !r.allow.Allowed(cmd.Operator) {
		logger.Warnf("Command refused, operator: %s, command: %s", cmd.Operator, cmd)
		if _, err := out.Render(ctx, RefusalMessage()); err != nil {
			logger.Errorf("Failed to render refusal: %v", err)
		}
		return errors.NewPermissionError("operator is not allowed: "+cmd.Operator, nil)
	}

	logger.Infof("Command received, operator: %s, command: %s", cmd.Operator, cmd)

	message := r.execute(ctx, cmd)
	ack, err := out.Render(ctx, message)
	if err != nil {
		logger.Errorf("Failed to render reply, command: %s, error: %v", cmd, err)
		return errors.NewNetworkError("failed to render reply", err)
	}

	if cmd.Name == CommandStatus && r.refresh != nil && ack.Editor != nil {
		r.refresh.SetSink(ack.Editor)
		logger.Debugf("Refresh sink recorded, location: %s", ack.Location)
	}
	return nil
}

func (r *CommandRouter) execute(ctx context.Context, cmd Command) Message {
	switch cmd.Name {
	case CommandStatus:
		return StatusMessage(r.reporter.Render(ctx, true), r.autoRefreshEnabled())
	case CommandSystemInfo:
		snapshot, health, err := r.reporter.System(ctx)
		if err != nil {
			return ErrorMessage(err)
		}
		return SystemMessage(snapshot, health)
	case CommandSettings:
		if r.settings == nil {
			return ErrorMessage(errors.NewNotFoundError("settings are not available", nil))
		}
		return SettingsMessage(r.settings())
	case CommandStart:
		return ResultMessage(r.displayName(cmd.WorkerID), r.control.Start(ctx, cmd.WorkerID))
	case CommandStop:
		return ResultMessage(r.displayName(cmd.WorkerID), r.control.Stop(ctx, cmd.WorkerID))
	case CommandRestart:
		return ResultMessage(r.displayName(cmd.WorkerID), r.control.Restart(ctx, cmd.WorkerID))
	case CommandStartAll:
		return BatchMessage("Start all", r.batch(ctx, "Start all", r.control.StartAll))
	case CommandStopAll:
		return BatchMessage("Stop all", r.batch(ctx, "Stop all", r.control.StopAll))
	case CommandRestartAll:
		return BatchMessage("Restart all", r.batch(ctx, "Restart all", r.control.RestartAll))
	case CommandAuto:
		return r.toggleAuto(cmd.Arg)
	case CommandHelp:
		return HelpMessage()
	}
	return ErrorMessage(errors.NewValidationError("unknown command: "+string(cmd.Name), nil))
}

func (r *CommandRouter) displayName(id string) string {
	if def, ok := r.control.Definition(id); ok {
		return def.Name()
	}
	return id
}

func (r *CommandRouter) autoRefreshEnabled() bool {
	return r.refresh != nil && r.refresh.Enabled()
}

// toggleAuto flips auto-refresh for an empty argument.
func (r *CommandRouter) toggleAuto(arg string) Message {
	if r.refresh == nil {
		return ErrorMessage(errors.NewValidationError("auto-refresh is not configured", nil))
	}
	enabled := !r.refresh.Enabled()
	switch arg {
	case "on":
		enabled = true
	case "off":
		enabled = false
	}
	r.refresh.SetEnabled(enabled)

	text := "❌ Auto-refresh disabled."
	if enabled {
		text = "✅ Auto-refresh enabled. The last status message will be updated automatically."
	}
	return Message{
		Body: text,
		Actions: [][]Action{{
			{Label: "Status", Command: Command{Name: CommandStatus}},
		}},
	}
}

// batch runs a bulk operation and tells every operator about its failures.
// Like single, it outlives the caller's context.
func (r *CommandRouter) batch(ctx context.Context, operation string, run func(context.Context) supervisor.BatchResult) supervisor.BatchResult {
	result := run(context.WithoutCancel(ctx))
	if result.HasFailures() && r.notifier != nil {
		r.notifier.NotifyOperators(ctx, fmt.Sprintf("%s finished with %d failure(s):\n%s",
			operation, len(result.Failures), FailureList(result.Failures)))
	}
	return result
}

func (r *CommandRouter) Status(ctx context.Context) (monitoring.StatusView, error) {
	return r.reporter.Render(ctx, true), nil
}

func (r *CommandRouter) SystemInfo(ctx context.Context) (domain.SystemInfo, error) {
	snapshot, health, err := r.reporter.System(ctx)
	if err != nil {
		return domain.SystemInfo{}, err
	}
	return domain.SystemInfo{Snapshot: snapshot, Health: health}, nil
}

func (r *CommandRouter) StartWorker(ctx context.Context, id string) (domain.WorkerResult, error) {
	return r.single(ctx, id, r.control.Start)
}

func (r *CommandRouter) StopWorker(ctx context.Context, id string) (domain.WorkerResult, error) {
	return r.single(ctx, id, r.control.Stop)
}

func (r *CommandRouter) RestartWorker(ctx context.Context, id string) (domain.WorkerResult, error) {
	return r.single(ctx, id, r.control.Restart)
}

func (r *CommandRouter) StartAll(ctx context.Context) (domain.BatchSummary, error) {
	return ToBatchSummary(r.batch(ctx, "Start all", r.control.StartAll)), nil
}

func (r *CommandRouter) StopAll(ctx context.Context) (domain.BatchSummary, error) {
	return ToBatchSummary(r.batch(ctx, "Stop all", r.control.StopAll)), nil
}

func (r *CommandRouter) RestartAll(ctx context.Context) (domain.BatchSummary, error) {
	return ToBatchSummary(r.batch(ctx, "Restart all", r.control.RestartAll)), nil
}

// single reports unknown ids as NotFound, in-progress conflicts as InProgress
// and failures with their classified cause. Other outcomes are not errors.
// The operation runs detached from ctx cancellation: a client that hangs up
// mid-stop must not cut the worker's grace period short.
func (r *CommandRouter) single(ctx context.Context, id string, op func(context.Context, string) supervisor.Result) (domain.WorkerResult, error) {
	if _, ok := r.control.Definition(id); !ok {
		return domain.WorkerResult{}, errors.NewNotFoundError("unknown worker: "+id, nil)
	}
	result := op(context.WithoutCancel(ctx), id)
	logging.ForContext(ctx, r.logger).Infof("Worker command done, id: %s, outcome: %s", id, result.Outcome)

	switch result.Outcome {
	case supervisor.OutcomeAlreadyInProgress, supervisor.OutcomeFailed:
		if result.Err != nil {
			return ToWorkerResult(result), result.Err
		}
		return ToWorkerResult(result), errors.NewInternalError(result.Reason, nil)
	}
	return ToWorkerResult(result), nil
}

func ToWorkerResult(r supervisor.Result) domain.WorkerResult {
	return domain.WorkerResult{
		WorkerID: r.WorkerID,
		Outcome:  string(r.Outcome),
		PID:      r.PID,
		Reason:   r.Reason,
	}
}

func ToBatchSummary(b supervisor.BatchResult) domain.BatchSummary {
	summary := domain.BatchSummary{
		Succeeded: b.Succeeded,
		Skipped:   b.Skipped,
		Failures:  make([]domain.Failure, 0, len(b.Failures)),
		Results:   make([]domain.WorkerResult, 0, len(b.Results)),
	}
	for _, f := range b.Failures {
		summary.Failures = append(summary.Failures, domain.Failure{WorkerID: f.WorkerID, Reason: f.Reason})
	}
	for _, r := range b.Results {
		summary.Results = append(summary.Results, ToWorkerResult(r))
	}
	return summary
}
