package process

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/processstate"

	gopsprocess "github.com/shirou/gopsutil/v4/process"
)

// Scanner looks at processes the supervisor does not own.
type Scanner interface {
	// FindByCommandLine returns the lowest pid whose command line contains fragment.
	// An error means the process table itself could not be read.
	FindByCommandLine(ctx context.Context, fragment string) (int, bool, error)
	// FindAllByCommandLine returns every matching pid in ascending order.
	FindAllByCommandLine(ctx context.Context, fragment string) ([]int, error)
	// IsAlive reports whether pid exists and is not a zombie.
	IsAlive(ctx context.Context, pid int) bool
}

type systemScanner struct {
	selfPID int
	logger  logging.Logger
}

// NewSystemScanner reads the host process table. The calling process is never matched.
func NewSystemScanner(logger logging.Logger) Scanner {
	return &systemScanner{
		selfPID: os.Getpid(),
		logger:  logger,
	}
}

func (s *systemScanner) FindByCommandLine(ctx context.Context, fragment string) (int, bool, error) {
	pids, err := s.scan(ctx, fragment, true)
	if err != nil || len(pids) == 0 {
		return 0, false, err
	}
	return pids[0], true, nil
}

func (s *systemScanner) FindAllByCommandLine(ctx context.Context, fragment string) ([]int, error) {
	return s.scan(ctx, fragment, false)
}

func (s *systemScanner) scan(ctx context.Context, fragment string, firstOnly bool) ([]int, error) {
	if fragment == "" {
		return nil, nil
	}

	pids, err := gopsprocess.PidsWithContext(ctx)
	if err != nil {
		s.logger.Warnf("Process scan failed: %v", err)
		return nil, errors.NewProbeError("failed to list processes", err)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	var matches []int
	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelledError("process scan cancelled", err)
		}
		if int(pid) == s.selfPID {
			continue
		}
		proc, err := gopsprocess.NewProcessWithContext(ctx, pid)
		if err != nil {
			// exited between listing and opening
			continue
		}
		cmdline, err := proc.CmdlineWithContext(ctx)
		if err != nil {
			s.logger.Debugf("Process scan inconclusive, pid: %d, error: %v", pid, err)
			continue
		}
		if !strings.Contains(cmdline, fragment) {
			continue
		}
		if isZombie(ctx, proc) {
			s.logger.Debugf("Ignoring zombie match, pid: %d", pid)
			continue
		}
		matches = append(matches, int(pid))
		if firstOnly {
			break
		}
	}
	return matches, nil
}

func (s *systemScanner) IsAlive(ctx context.Context, pid int) bool {
	running, err := processstate.IsProcessRunning(pid)
	if err != nil || !running {
		return false
	}
	proc, err := gopsprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	return !isZombie(ctx, proc)
}

func isZombie(ctx context.Context, proc *gopsprocess.Process) bool {
	status, err := proc.StatusWithContext(ctx)
	if err != nil {
		return false
	}
	for _, st := range status {
		if st == gopsprocess.Zombie {
			return true
		}
	}
	return false
}
