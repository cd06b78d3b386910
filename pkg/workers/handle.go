package workers

import (
	"sync/atomic"
	"time"
)

// ProcessHandle is the supervisor's record of a process it spawned itself.
// A waiter goroutine reaps the child, so exit is observed without polling
// and the child never lingers as a zombie.
type ProcessHandle struct {
	WorkerID  string
	PID       int
	StartedAt time.Time

	done         chan struct{}
	exitErr      error
	exitObserved atomic.Bool
	stopping     atomic.Bool
}

// NewProcessHandle starts waiting on wait (typically exec.Cmd.Wait) in the background.
// onExit callbacks run after the process has been reaped.
func NewProcessHandle(workerID string, pid int, wait func() error, onExit ...func()) *ProcessHandle {
	h := &ProcessHandle{
		WorkerID:  workerID,
		PID:       pid,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
	go func() {
		h.exitErr = wait()
		h.exitObserved.Store(true)
		for _, fn := range onExit {
			fn()
		}
		close(h.done)
	}()
	return h
}

// Done is closed once the process has exited and been reaped.
func (h *ProcessHandle) Done() <-chan struct{} {
	return h.done
}

// Exited reports, without blocking, whether the process has exited.
func (h *ProcessHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *ProcessHandle) ExitObserved() bool {
	return h.exitObserved.Load()
}

// ExitErr is the wait result; only meaningful after Done is closed.
func (h *ProcessHandle) ExitErr() error {
	if !h.Exited() {
		return nil
	}
	return h.exitErr
}

// MarkStopping records that the exit was requested by the supervisor,
// so the watchdog does not treat it as a crash.
func (h *ProcessHandle) MarkStopping() {
	h.stopping.Store(true)
}

func (h *ProcessHandle) StopRequested() bool {
	return h.stopping.Load()
}

func (h *ProcessHandle) Uptime() time.Duration {
	return time.Since(h.StartedAt)
}
