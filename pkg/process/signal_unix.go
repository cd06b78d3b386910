//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setupProcessAttributes puts the child in its own process group so that
// the whole tree can be signalled at once and terminal signals sent to the
// supervisor do not reach it.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// SendTerminationSignal asks the process (or its whole group) to shut down.
// A process that no longer exists is not an error.
func SendTerminationSignal(pid int, group bool) error {
	return signal(pid, group, unix.SIGTERM)
}

// SendKillSignal force-kills the process (or its whole group).
func SendKillSignal(pid int, group bool) error {
	return signal(pid, group, unix.SIGKILL)
}

func signal(pid int, group bool, sig unix.Signal) error {
	target := pid
	if group {
		target = -pid
	}
	err := unix.Kill(target, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
