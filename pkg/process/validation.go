package process

import (
	"strconv"
	"strings"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
)

// ValidatePID parses and validates a PID string
func ValidatePID(pidStr string) (int, error) {
	pidStr = strings.TrimSpace(pidStr)
	if pidStr == "" {
		return 0, errors.NewValidationError("PID cannot be empty", nil)
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, errors.NewValidationError("invalid PID format: "+pidStr, err)
	}

	if pid <= 0 {
		return 0, errors.NewValidationError("PID must be positive: "+pidStr, nil)
	}

	return pid, nil
}

// ValidateLaunchConfig checks the static part of a launch configuration;
// file existence is checked at launch time by ResolveExecutable.
func ValidateLaunchConfig(config LaunchConfig) error {
	if strings.TrimSpace(config.ExecutablePath) == "" {
		return errors.NewValidationError("executable path is required", nil)
	}

	for _, env := range config.Environment {
		if !strings.Contains(env, "=") {
			return errors.NewValidationError("invalid environment variable format: "+env, nil)
		}
	}

	return nil
}

// ValidateLaunchers rejects interpreter entries without a command
func ValidateLaunchers(launchers Launchers) error {
	for ext, command := range launchers {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			return errors.NewValidationError("launcher extension must start with a dot: "+ext, nil)
		}
		if len(command) > 0 && strings.TrimSpace(command[0]) == "" {
			return errors.NewValidationError("launcher command cannot be empty for extension: "+ext, nil)
		}
	}
	return nil
}
