package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/monitoring"
)

const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultRefreshBackoff  = 5 * time.Second
)

// StatusSource renders a status view; monitoring.StatusReporter implements it.
type StatusSource interface {
	Render(ctx context.Context, includeSystem bool) monitoring.StatusView
}

type RefreshConfig struct {
	Interval      time.Duration
	ErrorBackoff  time.Duration
	Enabled       bool
	IncludeSystem bool
}

func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval:      DefaultRefreshInterval,
		ErrorBackoff:  DefaultRefreshBackoff,
		Enabled:       true,
		IncludeSystem: true,
	}
}

// AutoRefreshLoop periodically re-renders the status board into the last
// status message an operator asked for.
type AutoRefreshLoop struct {
	source StatusSource
	config RefreshConfig
	logger logging.Logger

	mutex   sync.Mutex
	enabled bool
	sink    Renderer
	running bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewAutoRefreshLoop(source StatusSource, config RefreshConfig, logger logging.Logger) *AutoRefreshLoop {
	if config.Interval <= 0 {
		config.Interval = DefaultRefreshInterval
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = DefaultRefreshBackoff
	}
	return &AutoRefreshLoop{
		source:  source,
		config:  config,
		logger:  logger,
		enabled: config.Enabled,
	}
}

// SetSink replaces the message the loop keeps up to date.
func (l *AutoRefreshLoop) SetSink(sink Renderer) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.sink = sink
}

func (l *AutoRefreshLoop) HasSink() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.sink != nil
}

func (l *AutoRefreshLoop) SetEnabled(enabled bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.enabled = enabled
	l.logger.Infof("Auto-refresh enabled: %v", enabled)
}

func (l *AutoRefreshLoop) Enabled() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.enabled
}

func (l *AutoRefreshLoop) Start(ctx context.Context) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.running {
		return errors.NewConflictError("auto-refresh loop is already running", nil)
	}
	l.running = true
	l.stopChan = make(chan struct{})

	l.wg.Add(1)
	go l.loop(ctx, l.stopChan)

	l.logger.Infof("Auto-refresh loop started, interval: %v", l.config.Interval)
	return nil
}

// Stop returns once the loop goroutine has exited. A tick in flight is
// allowed to finish.
func (l *AutoRefreshLoop) Stop() {
	l.mutex.Lock()
	if !l.running {
		l.mutex.Unlock()
		return
	}
	l.running = false
	close(l.stopChan)
	l.mutex.Unlock()

	l.wg.Wait()
	l.logger.Infof("Auto-refresh loop stopped")
}

func (l *AutoRefreshLoop) loop(ctx context.Context, stopChan chan struct{}) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := l.tick(ctx); err != nil {
			l.logger.Errorf("Auto-refresh tick failed, backing off %v: %v", l.config.ErrorBackoff, err)
			select {
			case <-stopChan:
				return
			case <-ctx.Done():
				return
			case <-time.After(l.config.ErrorBackoff):
			}
		}
	}
}

// tick runs detached from ctx cancellation so shutdown never cuts a render short.
func (l *AutoRefreshLoop) tick(ctx context.Context) (err error) {
	l.mutex.Lock()
	enabled, sink := l.enabled, l.sink
	l.mutex.Unlock()

	if !enabled || sink == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternalError(fmt.Sprintf("panic during refresh: %v", r), nil)
		}
	}()

	tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.config.Interval)
	defer cancel()

	view := l.source.Render(tickCtx, l.config.IncludeSystem)
	if _, err := sink.Render(tickCtx, StatusMessage(view, true)); err != nil {
		return errors.NewNetworkError("failed to push status", err)
	}
	l.logger.Debugf("Status refreshed, running: %d/%d", view.Running, view.Total)
	return nil
}
