package monitoring

import (
	"fmt"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
)

// Thresholds are warning levels; zero disables a check.
type Thresholds struct {
	CPUPercent    float64 `yaml:"cpu" json:"cpu"`
	MemoryPercent float64 `yaml:"memory" json:"memory"`
	DiskPercent   float64 `yaml:"disk" json:"disk"`
	TemperatureC  float64 `yaml:"temperature" json:"temperature"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUPercent:    80,
		MemoryPercent: 85,
		DiskPercent:   90,
		TemperatureC:  70,
	}
}

func ValidateThresholds(t Thresholds) error {
	for name, value := range map[string]float64{"cpu": t.CPUPercent, "memory": t.MemoryPercent, "disk": t.DiskPercent} {
		if value < 0 || value > 100 {
			return errors.NewValidationError(fmt.Sprintf("%s threshold must be between 0 and 100", name), nil)
		}
	}
	if t.TemperatureC < 0 {
		return errors.NewValidationError("temperature threshold cannot be negative", nil)
	}
	return nil
}

type HealthLevel string

const (
	HealthOK      HealthLevel = "ok"
	HealthWarning HealthLevel = "warning"
)

type Health struct {
	Level    HealthLevel `json:"level"`
	Breaches []string    `json:"breaches,omitempty"`
}

// Evaluate compares a snapshot against the thresholds.
func (t Thresholds) Evaluate(s SystemSnapshot) Health {
	var breaches []string
	check := func(name string, value, limit float64, unit string) {
		if limit > 0 && value >= limit {
			breaches = append(breaches, fmt.Sprintf("%s %.1f%s >= %.0f%s", name, value, unit, limit, unit))
		}
	}
	check("CPU", s.CPUPercent, t.CPUPercent, "%")
	check("memory", s.MemPercent(), t.MemoryPercent, "%")
	check("disk", s.DiskPercent(), t.DiskPercent, "%")
	if s.TemperatureC > 0 {
		check("temperature", s.TemperatureC, t.TemperatureC, "°C")
	}

	if len(breaches) == 0 {
		return Health{Level: HealthOK}
	}
	return Health{Level: HealthWarning, Breaches: breaches}
}
