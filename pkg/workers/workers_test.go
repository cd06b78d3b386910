package workers

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockScanner struct {
	mock.Mock
}

func (m *MockScanner) FindByCommandLine(ctx context.Context, fragment string) (int, bool, error) {
	args := m.Called(ctx, fragment)
	return args.Int(0), args.Bool(1), args.Error(2)
}

func (m *MockScanner) FindAllByCommandLine(ctx context.Context, fragment string) ([]int, error) {
	args := m.Called(ctx, fragment)
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockScanner) IsAlive(ctx context.Context, pid int) bool {
	return m.Called(ctx, pid).Bool(0)
}

// blockingWait returns a wait func and a function that makes it return.
func blockingWait() (func() error, func()) {
	release := make(chan struct{})
	return func() error {
			<-release
			return nil
		}, func() {
			close(release)
		}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	_, ok := registry.Get("a")
	assert.False(t, ok)

	waitA, releaseA := blockingWait()
	defer releaseA()
	handle := NewProcessHandle("a", 100, waitA)

	registry.Put("b", NewProcessHandle("b", 200, func() error { return nil }))
	registry.Put("a", handle)

	got, ok := registry.Get("a")
	require.True(t, ok)
	assert.Same(t, handle, got)
	assert.Equal(t, []string{"a", "b"}, registry.ListIDs())

	registry.Remove("a")
	registry.Remove("missing")
	assert.Equal(t, []string{"b"}, registry.ListIDs())
	assert.Equal(t, 1, registry.Len())
}

func TestProcessHandle(t *testing.T) {
	wait, release := blockingWait()
	exitCalled := make(chan struct{})
	handle := NewProcessHandle("bot", 42, wait, func() { close(exitCalled) })

	assert.False(t, handle.Exited())
	assert.False(t, handle.ExitObserved())
	assert.NoError(t, handle.ExitErr())

	release()
	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("handle did not observe exit")
	}
	<-exitCalled
	assert.True(t, handle.Exited())
	assert.True(t, handle.ExitObserved())

	failed := NewProcessHandle("bot", 43, func() error { return errors.New("exit status 1") })
	<-failed.Done()
	assert.EqualError(t, failed.ExitErr(), "exit status 1")

	assert.False(t, handle.StopRequested())
	handle.MarkStopping()
	assert.True(t, handle.StopRequested())
}

func TestLivenessProbe_HandlePath(t *testing.T) {
	scanner := &MockScanner{}
	probe := NewLivenessProbe(scanner, logging.NewNopLogger())
	registry := NewRegistry()
	def := Definition{ID: "bot", ExecutablePath: "/opt/bot/main.py"}

	wait, release := blockingWait()
	registry.Put("bot", NewProcessHandle("bot", 321, wait))

	liveness := probe.IsAlive(context.Background(), def, registry)
	assert.Equal(t, Liveness{Status: LivenessAlive, PID: 321, Owned: true}, liveness)

	release()
	handle, _ := registry.Get("bot")
	<-handle.Done()

	liveness = probe.IsAlive(context.Background(), def, registry)
	assert.Equal(t, LivenessDead, liveness.Status)
	_, stillThere := registry.Get("bot")
	assert.True(t, stillThere, "probe leaves stale handle removal to the caller")

	scanner.AssertNotCalled(t, "FindByCommandLine", mock.Anything, mock.Anything)
}

func TestLivenessProbe_ScanPath(t *testing.T) {
	def := Definition{ID: "bot", ExecutablePath: "/opt/bot/main.py"}

	tests := []struct {
		name     string
		pid      int
		found    bool
		err      error
		expected Liveness
	}{
		{name: "discovered", pid: 777, found: true, expected: Liveness{Status: LivenessAlive, PID: 777}},
		{name: "no match", expected: Liveness{Status: LivenessDead}},
		{name: "table unreadable", err: errors.New("permission denied"), expected: Liveness{Status: LivenessUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := &MockScanner{}
			scanner.On("FindByCommandLine", mock.Anything, "/opt/bot/main.py").Return(tt.pid, tt.found, tt.err)

			probe := NewLivenessProbe(scanner, logging.NewNopLogger())
			assert.Equal(t, tt.expected, probe.IsAlive(context.Background(), def, NewRegistry()))
			scanner.AssertExpectations(t)
		})
	}
}

func TestLivenessProbe_FallbackFindsExternalProcess(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "external.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 30\n"), 0755))

	cmd := exec.Command("/bin/sh", script)
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	probe := NewLivenessProbe(process.NewSystemScanner(logging.NewNopLogger()), logging.NewNopLogger())
	def := Definition{ID: "external", ExecutablePath: script}

	liveness := probe.IsAlive(context.Background(), def, NewRegistry())
	assert.True(t, liveness.Alive())
	assert.Equal(t, cmd.Process.Pid, liveness.PID)
	assert.False(t, liveness.Owned)
}

func TestValidateDefinitions(t *testing.T) {
	valid := Definition{ID: "bot", ExecutablePath: "/opt/bot/main.py"}

	tests := []struct {
		name      string
		defs      []Definition
		shouldErr bool
	}{
		{name: "valid", defs: []Definition{valid, {ID: "other", ExecutablePath: "/opt/other.sh"}}},
		{name: "empty id", defs: []Definition{{ExecutablePath: "/x"}}, shouldErr: true},
		{name: "id with slash", defs: []Definition{{ID: "a/b", ExecutablePath: "/x"}}, shouldErr: true},
		{name: "missing path", defs: []Definition{{ID: "bot"}}, shouldErr: true},
		{name: "duplicate", defs: []Definition{valid, valid}, shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefinitions(tt.defs)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefinitionName(t *testing.T) {
	assert.Equal(t, "bot", Definition{ID: "bot"}.Name())
	assert.Equal(t, "Main Bot", Definition{ID: "bot", DisplayName: "Main Bot"}.Name())
}
