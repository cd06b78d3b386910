//go:build !windows

package processstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// IsProcessRunning reports whether pid names an existing process.
// A zombie still counts as running here; callers that need to exclude
// zombies must inspect the process status.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}

	err := unix.Kill(pid, unix.Signal(0))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	case errors.Is(err, unix.EPERM):
		// Exists, owned by another user
		return true, nil
	}
	return false, err
}

// WaitForExit polls pid until it is gone, the alive check says so, or ctx ends.
// alive may be nil, in which case IsProcessRunning is used.
func WaitForExit(ctx context.Context, pid int, pollInterval time.Duration, alive func(int) bool) bool {
	if alive == nil {
		alive = func(pid int) bool {
			running, err := IsProcessRunning(pid)
			return err == nil && running
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if !alive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return !alive(pid)
		case <-ticker.C:
		}
	}
}
