package slackbot

import (
	"context"

	"github.com/core-tools/hsu-supervisor/pkg/control"
	"github.com/core-tools/hsu-supervisor/pkg/errors"

	"github.com/slack-go/slack"
)

// ChatAPI is the subset of the Slack Web API the bot uses; *slack.Client implements it.
type ChatAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
}

// NewMessageRenderer posts every message as a new chat message.
func NewMessageRenderer(api ChatAPI, channelID string) control.Renderer {
	return &postRenderer{api: api, channelID: channelID}
}

// NewEditRenderer rewrites one existing chat message in place.
func NewEditRenderer(api ChatAPI, channelID, timestamp string) control.Renderer {
	return &updateRenderer{api: api, channelID: channelID, timestamp: timestamp}
}

type postRenderer struct {
	api       ChatAPI
	channelID string
}

func (r *postRenderer) Render(ctx context.Context, message control.Message) (control.Ack, error) {
	channelID, timestamp, err := r.api.PostMessageContext(ctx, r.channelID, messageOptions(message)...)
	if err != nil {
		return control.Ack{}, errors.NewNetworkError("chat.postMessage failed", err).WithContext("channel", r.channelID)
	}
	return control.Ack{
		Location: channelID + "/" + timestamp,
		Editor:   NewEditRenderer(r.api, channelID, timestamp),
	}, nil
}

type updateRenderer struct {
	api       ChatAPI
	channelID string
	timestamp string
}

func (r *updateRenderer) Render(ctx context.Context, message control.Message) (control.Ack, error) {
	_, _, _, err := r.api.UpdateMessageContext(ctx, r.channelID, r.timestamp, messageOptions(message)...)
	if err != nil {
		return control.Ack{}, errors.NewNetworkError("chat.update failed", err).WithContext("channel", r.channelID)
	}
	return control.Ack{
		Location: r.channelID + "/" + r.timestamp,
		Editor:   r,
	}, nil
}

// ephemeralRenderer replies only to one user; such messages cannot be edited later.
type ephemeralRenderer struct {
	api       ChatAPI
	channelID string
	userID    string
}

func (r *ephemeralRenderer) Render(ctx context.Context, message control.Message) (control.Ack, error) {
	if _, err := r.api.PostEphemeralContext(ctx, r.channelID, r.userID, messageOptions(message)...); err != nil {
		return control.Ack{}, errors.NewNetworkError("chat.postEphemeral failed", err).WithContext("channel", r.channelID)
	}
	return control.Ack{}, nil
}
