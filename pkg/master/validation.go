package master

import (
	"fmt"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
)

// ValidateWorkerID validates worker ID format and constraints
func ValidateWorkerID(id string) error {
	if id == "" {
		return errors.NewValidationError("worker ID cannot be empty", nil)
	}

	if len(id) > 64 {
		return errors.NewValidationError("worker ID cannot exceed 64 characters", nil)
	}

	for _, char := range id {
		if !isValidIDChar(char) {
			return errors.NewValidationError("worker ID contains invalid characters: only letters, numbers, hyphens, and underscores are allowed", nil).WithContext("worker_id", id)
		}
	}

	return nil
}

// ValidateDuration rejects negative durations; zero means "use the default".
func ValidateDuration(d time.Duration, name string) error {
	if d < 0 {
		return errors.NewValidationError(name+" cannot be negative", nil).WithContext("value", d.String())
	}
	return nil
}

func ValidateLogLevel(level string) error {
	if level == "" {
		return nil
	}
	if _, err := logging.ParseLevel(level); err != nil {
		return errors.NewValidationError(fmt.Sprintf("invalid log level: %s", level), nil).
			WithContext("valid_levels", "debug, info, warn, error")
	}
	return nil
}

func ValidateLogFormat(format string) error {
	switch format {
	case "", "json", "console":
		return nil
	}
	return errors.NewValidationError(fmt.Sprintf("invalid log format: %s", format), nil).
		WithContext("valid_formats", "json, console")
}

func isValidIDChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '-' || char == '_'
}
