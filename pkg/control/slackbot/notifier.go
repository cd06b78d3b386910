package slackbot

import (
	"context"

	"github.com/core-tools/hsu-supervisor/pkg/control"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/supervisor"

	"github.com/slack-go/slack"
)

type dmNotifier struct {
	api     ChatAPI
	admins  []string
	channel string
	logger  logging.Logger
}

// NewNotifier sends operator notifications as direct messages to every
// admin, and to channel when it is set.
func NewNotifier(api ChatAPI, admins []string, channel string, logger logging.Logger) supervisor.Notifier {
	return &dmNotifier{
		api:     api,
		admins:  append([]string(nil), admins...),
		channel: channel,
		logger:  logger,
	}
}

func (n *dmNotifier) NotifyOperators(ctx context.Context, text string) {
	logger := logging.ForContext(ctx, n.logger)
	message := control.Message{Body: text, Level: control.LevelWarning}

	for _, admin := range n.admins {
		channel, _, _, err := n.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{Users: []string{admin}})
		if err != nil {
			logger.Errorf("Failed to open DM, user: %s, error: %v", admin, err)
			continue
		}
		if _, err := NewMessageRenderer(n.api, channel.ID).Render(ctx, message); err != nil {
			logger.Errorf("Failed to notify admin, user: %s, error: %v", admin, err)
		}
	}

	if n.channel != "" {
		if _, err := NewMessageRenderer(n.api, n.channel).Render(ctx, message); err != nil {
			logger.Errorf("Failed to notify channel, channel: %s, error: %v", n.channel, err)
		}
	}
}
