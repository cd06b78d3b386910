package workers

import (
	"strings"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/process"
)

// Definition describes one supervised worker. It is built once from
// configuration and never mutated afterwards.
type Definition struct {
	ID             string
	DisplayName    string
	ExecutablePath string
	Args           []string
	Environment    []string
	Enabled        bool
	AutoRestart    bool
}

// Name is the display name, falling back to the ID.
func (d Definition) Name() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.ID
}

func (d Definition) LaunchConfig() process.LaunchConfig {
	return process.LaunchConfig{
		ExecutablePath: d.ExecutablePath,
		Args:           append([]string(nil), d.Args...),
		Environment:    append([]string(nil), d.Environment...),
	}
}

// ValidateDefinition checks a single definition.
func ValidateDefinition(d Definition) error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.NewValidationError("worker ID is required", nil)
	}
	if strings.ContainsAny(d.ID, " \t/\\") {
		return errors.NewValidationError("worker ID cannot contain whitespace or path separators", nil).WithContext("id", d.ID)
	}
	if err := process.ValidateLaunchConfig(d.LaunchConfig()); err != nil {
		return errors.NewValidationError("invalid launch configuration", err).WithContext("id", d.ID)
	}
	return nil
}

// ValidateDefinitions checks every definition and that IDs are unique.
func ValidateDefinitions(defs []Definition) error {
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if err := ValidateDefinition(d); err != nil {
			return err
		}
		if seen[d.ID] {
			return errors.NewValidationError("duplicate worker ID: "+d.ID, nil)
		}
		seen[d.ID] = true
	}
	return nil
}
