package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/control/rest"
	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	URL      string `long:"url" default:"http://127.0.0.1:8088" description:"base URL of the supervisor HTTP control API"`
	Operator string `long:"operator" env:"SUPERVISOR_OPERATOR" description:"operator identity sent with every request"`
	Timeout  int    `long:"timeout" default:"120" description:"request timeout in seconds"`
	JSON     bool   `long:"json" description:"print raw JSON responses"`
	Verbose  bool   `short:"v" long:"verbose" description:"log requests"`

	Args struct {
		Command  string `positional-arg-name:"command" description:"status | system-info | start-all | stop-all | restart-all | start | stop | restart"`
		WorkerID string `positional-arg-name:"worker"`
	} `positional-args:"yes"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-client , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewNopLogger()
	if opts.Verbose {
		backend, err := logging.NewZapBackend(logging.ZapConfig{Level: "debug", Format: "console", Output: "stderr"})
		if err != nil {
			fmt.Printf("Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer backend.Sync()
		logger = backend.Logger(logPrefix("supervisor"))
	}

	gateway := rest.NewClientGateway(opts.URL, opts.Operator, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.Timeout)*time.Second)
	defer cancel()

	failed, err := execute(ctx, gateway, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errors.ReasonOf(err))
		os.Exit(1)
	}
	if failed {
		os.Exit(2)
	}
}

// execute runs one command and reports whether any worker failed.
func execute(ctx context.Context, gateway domain.Contract, opts flagOptions) (bool, error) {
	command := strings.ToLower(opts.Args.Command)
	if command == "" {
		command = "status"
	}
	id := opts.Args.WorkerID

	switch command {
	case "status":
		view, err := gateway.Status(ctx)
		if err != nil {
			return false, err
		}
		if opts.JSON {
			return false, printJSON(view)
		}
		fmt.Printf("Workers running: %d/%d\n", view.Running, view.Total)
		for _, w := range view.Workers {
			line := fmt.Sprintf("  %-20s %-9s", w.ID, w.State)
			if w.PID > 0 {
				line += fmt.Sprintf(" pid=%d", w.PID)
			}
			if w.Uptime > 0 {
				line += fmt.Sprintf(" uptime=%s", w.Uptime.Round(time.Second))
			}
			fmt.Println(line)
		}
		if view.System != nil {
			fmt.Printf("CPU %.1f%%  MEM %.1f%%  DISK %.1f%%\n", view.System.CPUPercent, view.System.MemPercent(), view.System.DiskPercent())
		} else if view.SystemErr != "" {
			fmt.Printf("System info unavailable: %s\n", view.SystemErr)
		}
		return false, nil

	case "system-info", "system":
		info, err := gateway.SystemInfo(ctx)
		if err != nil {
			return false, err
		}
		if opts.JSON {
			return false, printJSON(info)
		}
		s := info.Snapshot
		fmt.Printf("CPU:    %.1f%%\n", s.CPUPercent)
		fmt.Printf("Memory: %.1f%% (%d/%d MB)\n", s.MemPercent(), s.MemUsedBytes>>20, s.MemTotalBytes>>20)
		fmt.Printf("Disk:   %.1f%% (%d/%d GB)\n", s.DiskPercent(), s.DiskUsedBytes>>30, s.DiskTotalBytes>>30)
		if s.TemperatureC > 0 {
			fmt.Printf("Temp:   %.1f°C\n", s.TemperatureC)
		}
		fmt.Printf("Health: %s\n", info.Health.Level)
		for _, breach := range info.Health.Breaches {
			fmt.Printf("  ! %s\n", breach)
		}
		return false, nil

	case "start-all", "stop-all", "restart-all":
		run := map[string]func(context.Context) (domain.BatchSummary, error){
			"start-all":   gateway.StartAll,
			"stop-all":    gateway.StopAll,
			"restart-all": gateway.RestartAll,
		}[command]
		summary, err := run(ctx)
		if err != nil {
			return false, err
		}
		if opts.JSON {
			return len(summary.Failures) > 0, printJSON(summary)
		}
		fmt.Printf("%s: %d succeeded, %d skipped, %d failed\n", command, summary.Succeeded, summary.Skipped, len(summary.Failures))
		for _, f := range summary.Failures {
			fmt.Printf("  %s: %s\n", f.WorkerID, f.Reason)
		}
		return len(summary.Failures) > 0, nil

	case "start", "stop", "restart":
		if id == "" {
			return false, errors.NewValidationError(command+" requires a worker id", nil)
		}
		run := map[string]func(context.Context, string) (domain.WorkerResult, error){
			"start":   gateway.StartWorker,
			"stop":    gateway.StopWorker,
			"restart": gateway.RestartWorker,
		}[command]
		result, err := run(ctx, id)
		if err != nil {
			return false, err
		}
		if opts.JSON {
			return false, printJSON(result)
		}
		fmt.Printf("%s: %s", result.WorkerID, result.Outcome)
		if result.PID > 0 {
			fmt.Printf(" (pid %d)", result.PID)
		}
		fmt.Println()
		return false, nil
	}

	return false, errors.NewValidationError("unknown command: "+command, nil)
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
