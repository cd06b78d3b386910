package main

import (
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/master"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" default:"supervisor.yaml" description:"path to the configuration file, created with defaults if missing"`
	LogLevel    string `long:"log-level" description:"override the configured log level (debug, info, warn, error)"`
	RunDuration int    `long:"run-duration" description:"Duration in seconds to run the supervisor (debug feature)"`
	CheckConfig bool   `long:"check-config" description:"validate the configuration file and exit"`
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

	if opts.CheckConfig {
		config, err := master.ValidateConfigFile(opts.Config)
		if err != nil {
			fmt.Printf("Configuration is invalid: %v\n", err)
			os.Exit(1)
		}
		summary := master.GetConfigSummary(config)
		fmt.Printf("Configuration OK: %d workers (%d enabled)\n", summary.TotalWorkers, summary.EnabledWorkers)
		return
	}

	err = master.Run(master.RunOptions{
		ConfigFile:  opts.Config,
		LogLevel:    opts.LogLevel,
		RunDuration: time.Duration(opts.RunDuration) * time.Second,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Supervisor failed: %v\n", err)
		os.Exit(1)
	}
}
