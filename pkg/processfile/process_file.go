package processfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/process"
)

const DefaultAppName = "hsu-supervisor"

// Config holds the locations of PID files and worker output logs
type Config struct {
	// Base directory for PID files and logs. If empty, uses the user runtime directory.
	BaseDirectory string `yaml:"base_directory,omitempty"`

	// Application name used for the subdirectory under the default base
	AppName string `yaml:"app_name,omitempty"`
}

// FileManager owns PID files (the supervisor's and its workers') and worker output logs.
type FileManager struct {
	config Config
	logger logging.Logger
}

func NewFileManager(config Config, logger logging.Logger) *FileManager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	return &FileManager{
		config: config,
		logger: logger,
	}
}

func (m *FileManager) BaseDirectory() string {
	if m.config.BaseDirectory != "" {
		return m.config.BaseDirectory
	}
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, m.config.AppName)
	}
	return filepath.Join(os.TempDir(), m.config.AppName)
}

func (m *FileManager) PIDFilePath(name string) string {
	return filepath.Join(m.BaseDirectory(), "run", name+".pid")
}

func (m *FileManager) WorkerLogPath(workerID string) string {
	return filepath.Join(m.BaseDirectory(), "logs", "workers", workerID+".log")
}

func (m *FileManager) WritePIDFile(name string, pid int) error {
	path := m.PIDFilePath(name)
	if err := ensureDirectory(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", path).WithContext("pid", pid)
	}
	m.logger.Debugf("PID file written, name: %s, pid: %d, path: %s", name, pid, path)
	return nil
}

func (m *FileManager) ReadPIDFile(name string) (int, error) {
	path := m.PIDFilePath(name)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFoundError("PID file not found", err).WithContext("pid_file", path)
		}
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", path)
	}
	return process.ValidatePID(string(content))
}

func (m *FileManager) RemovePIDFile(name string) error {
	path := m.PIDFilePath(name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", path)
	}
	return nil
}

// OpenWorkerLog opens the worker's output log for appending, creating directories as needed.
func (m *FileManager) OpenWorkerLog(workerID string) (*os.File, error) {
	path := m.WorkerLogPath(workerID)
	if err := ensureDirectory(filepath.Dir(path)); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.NewIOError("failed to open worker log", err).WithContext("log_file", path)
	}
	return file, nil
}

func ensureDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.NewValidationError("path is not a directory", nil).WithContext("path", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.NewIOError("failed to access directory", err).WithContext("directory", dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIOError("failed to create directory", err).WithContext("directory", dir)
	}
	return nil
}
