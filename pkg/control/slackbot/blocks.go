package slackbot

import (
	"fmt"

	"github.com/core-tools/hsu-supervisor/pkg/control"

	"github.com/slack-go/slack"
)

const (
	actionPrefix = "supervisor_cmd"

	// Section text is truncated past this length by the Slack API.
	maxSectionText = 3000
)

var levelIcons = map[control.Level]string{
	control.LevelWarning: "⚠️ ",
	control.LevelError:   "🚨 ",
}

// BuildBlocks lays a message out as Block Kit: header, body, then one actions
// block per row of buttons. Button values hold the command text.
func BuildBlocks(message control.Message) []slack.Block {
	var blocks []slack.Block

	if message.Title != "" {
		title := levelIcons[message.Level] + message.Title
		blocks = append(blocks, slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, title, true, false),
		))
	}

	body := message.Body
	if len(body) > maxSectionText {
		body = body[:maxSectionText-3] + "..."
	}
	if body != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, body, false, false),
			nil, nil,
		))
	}

	for row, actions := range message.Actions {
		if len(actions) == 0 {
			continue
		}
		elements := make([]slack.BlockElement, 0, len(actions))
		for i, action := range actions {
			button := slack.NewButtonBlockElement(
				fmt.Sprintf("%s_%d_%d", actionPrefix, row, i),
				action.Command.String(),
				slack.NewTextBlockObject(slack.PlainTextType, action.Label, true, false),
			)
			if action.Danger {
				button = button.WithStyle(slack.StyleDanger)
			}
			elements = append(elements, button)
		}
		blocks = append(blocks, slack.NewActionBlock(fmt.Sprintf("%s_row_%d", actionPrefix, row), elements...))
	}

	return blocks
}

// fallbackText is shown in notifications where blocks are not rendered.
func fallbackText(message control.Message) string {
	if message.Title != "" {
		return message.Title
	}
	if len(message.Body) > 150 {
		return message.Body[:147] + "..."
	}
	return message.Body
}

func messageOptions(message control.Message) []slack.MsgOption {
	return []slack.MsgOption{
		slack.MsgOptionText(fallbackText(message), false),
		slack.MsgOptionBlocks(BuildBlocks(message)...),
	}
}
