package control

import (
	"context"

	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/supervisor"
)

// Broadcast fans a notification out to every registered notifier.
type Broadcast []supervisor.Notifier

func (b Broadcast) NotifyOperators(ctx context.Context, message string) {
	for _, n := range b {
		if n != nil {
			n.NotifyOperators(ctx, message)
		}
	}
}

type logNotifier struct {
	logger logging.Logger
}

// NewLogNotifier writes operator notifications to the log, so they are kept
// even when no chat transport is configured.
func NewLogNotifier(logger logging.Logger) supervisor.Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) NotifyOperators(ctx context.Context, message string) {
	logging.ForContext(ctx, n.logger).Warnf("Operator notification: %s", message)
}
