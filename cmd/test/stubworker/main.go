package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// stubworker stands in for a supervised program in manual and integration runs.
type flagOptions struct {
	RunDuration int  `long:"run-duration" description:"Duration in seconds to run before exiting on its own"`
	ExitCode    int  `long:"exit-code" description:"Exit code used when the run duration elapses"`
	FailFast    bool `long:"fail-fast" description:"Exit with code 1 immediately, to exercise startup checks"`
	IgnoreTerm  bool `long:"ignore-term" description:"Ignore SIGTERM so the supervisor has to escalate to SIGKILL"`
	MemoryMB    int  `long:"memory-mb" description:"Memory in Megabytes to allocate (debug feature)"`
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

	fmt.Printf("Running stubworker pid %d, opts: %+v...\n", os.Getpid(), opts)

	if opts.FailFast {
		fmt.Printf("Stubworker failing fast\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if opts.RunDuration > 0 {
		fmt.Printf("Using RUN DURATION of %d seconds\n", opts.RunDuration)
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.RunDuration)*time.Second)
		defer cancel()
	}

	var s []byte
	if opts.MemoryMB > 0 {
		fmt.Printf("Using MEMORY MB of %d Megabytes\n", opts.MemoryMB)
		s = make([]byte, opts.MemoryMB*1024*1024)
	}
	for i := 0; i < len(s); i++ {
		s[i] = 1
	}

	sig := make(chan os.Signal, 1)
	if opts.IgnoreTerm {
		signal.Ignore(syscall.SIGTERM)
		signal.Notify(sig, os.Interrupt)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	fmt.Printf("Stubworker is fully operational\n")
	for {
		select {
		case receivedSignal := <-sig:
			fmt.Printf("Stubworker received signal: %v\n", receivedSignal)
			fmt.Printf("Stubworker stopped\n")
			return
		case <-ctx.Done():
			fmt.Printf("Stubworker timed out\n")
			os.Exit(opts.ExitCode)
		case now := <-ticker.C:
			fmt.Printf("Stubworker heartbeat %s\n", now.Format(time.RFC3339))
		}
	}
}
