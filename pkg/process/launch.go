package process

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
)

// Launchers maps a file extension to the interpreter command that runs it.
// An empty command means the file is executed directly.
type Launchers map[string][]string

func DefaultLaunchers() Launchers {
	return Launchers{
		".py":  {"python3", "-u"},
		".sh":  {"/bin/sh"},
		".jar": {"java", "-jar"},
		"":     nil,
	}
}

type LaunchConfig struct {
	ExecutablePath string   `yaml:"executable_path"`
	Args           []string `yaml:"args,omitempty"`
	Environment    []string `yaml:"environment,omitempty"`
	// Output receives the child's stdout and stderr; nil discards them.
	Output io.Writer `yaml:"-"`
}

// ResolveExecutable turns path into an absolute path and checks that it exists,
// is a regular file and has a launchable extension. It returns the absolute path
// and the interpreter prefix to run it with.
func ResolveExecutable(path string, launchers Launchers) (string, []string, error) {
	if path == "" {
		return "", nil, errors.NewValidationError("executable path is required", nil)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", nil, errors.NewIOError("failed to resolve absolute path", err).WithContext("executable_path", path)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, errors.NewNotFoundError("executable not found: "+absPath, err)
		}
		return "", nil, errors.NewIOError("executable not accessible: "+absPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, errors.NewValidationError("executable is not a regular file: "+absPath, nil)
	}

	if launchers == nil {
		launchers = DefaultLaunchers()
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	prefix, ok := launchers[ext]
	if !ok {
		return "", nil, errors.NewValidationError("unsupported executable type: "+ext, nil).
			WithContext("executable_path", absPath)
	}

	if len(prefix) == 0 {
		if err := ensureExecutable(absPath, info); err != nil {
			return "", nil, err
		}
	}

	return absPath, prefix, nil
}

// Launch starts the worker detached from the supervisor's process group,
// with its working directory set to the executable's own directory.
func Launch(config LaunchConfig, launchers Launchers, id string, logger logging.Logger) (*exec.Cmd, error) {
	if err := ValidateLaunchConfig(config); err != nil {
		return nil, err
	}

	absPath, prefix, err := ResolveExecutable(config.ExecutablePath, launchers)
	if err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	if len(prefix) > 0 {
		argv := append(append(append([]string{}, prefix[1:]...), absPath), config.Args...)
		cmd = exec.Command(prefix[0], argv...)
	} else {
		cmd = exec.Command(absPath, config.Args...)
	}
	cmd.Dir = filepath.Dir(absPath)
	cmd.Env = append(os.Environ(), config.Environment...)
	cmd.Stdin = nil
	cmd.Stdout = config.Output
	cmd.Stderr = config.Output

	setupProcessAttributes(cmd)

	logger.Debugf("Launching process, id: %s, argv: %v, dir: %s", id, cmd.Args, cmd.Dir)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewSpawnError("failed to start the process", err).
			WithContext("id", id).WithContext("executable_path", absPath)
	}

	logger.Infof("Launched process, id: %s, PID: %d", id, cmd.Process.Pid)
	return cmd, nil
}

// ensureExecutable rejects a directly launched file without any execute bit.
// The file's mode is never changed.
func ensureExecutable(path string, info os.FileInfo) error {
	if info.Mode()&0111 != 0 {
		return nil
	}
	return errors.NewValidationError("executable is not executable", nil).
		WithContext("executable_path", path).WithContext("mode", info.Mode().String())
}
