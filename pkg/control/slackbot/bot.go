// Package slackbot exposes the command router over Slack Socket Mode: a slash
// command, Block Kit buttons and direct-message notifications.
package slackbot

import (
	"context"
	"strings"
	"sync"

	"github.com/core-tools/hsu-supervisor/pkg/control"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// Dispatcher runs one operator command; control.CommandRouter implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd control.Command, out control.Renderer) error
}

type Bot struct {
	api          ChatAPI
	socketMode   *socketmode.Client
	dispatcher   Dispatcher
	allow        *control.AllowList
	slashCommand string
	logger       logging.Logger

	handlers sync.WaitGroup
}

// NewClient validates cfg and builds the Web API client shared by the bot and
// the notifier.
func NewClient(cfg Config) (*slack.Client, error) {
	if !cfg.IsEnabled() {
		return nil, errors.NewValidationError("slack transport is disabled", nil)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return slack.New(
		cfg.BotToken,
		slack.OptionDebug(cfg.Debug),
		slack.OptionAppLevelToken(cfg.AppToken),
	), nil
}

func New(client *slack.Client, cfg Config, dispatcher Dispatcher, logger logging.Logger) *Bot {
	bot := newBot(client, cfg, dispatcher, logger)
	bot.socketMode = socketmode.New(
		client,
		socketmode.OptionDebug(cfg.Debug),
	)
	return bot
}

func newBot(api ChatAPI, cfg Config, dispatcher Dispatcher, logger logging.Logger) *Bot {
	slashCommand := cfg.SlashCommand
	if slashCommand == "" {
		slashCommand = DefaultSlashCommand
	}
	return &Bot{
		api:          api,
		dispatcher:   dispatcher,
		allow:        control.NewAllowList(cfg.AllowedUsers...),
		slashCommand: slashCommand,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled or the socket connection fails for good.
// Command handlers still in flight are waited for before it returns.
func (b *Bot) Run(ctx context.Context) error {
	if b.socketMode == nil {
		return errors.NewInternalError("socket mode client is not configured", nil)
	}

	err := b.serve(ctx, b.socketMode.RunContext, b.socketMode.Events)

	if ctx.Err() != nil {
		b.logger.Infof("Slack bot stopped")
		return nil
	}
	return errors.NewNetworkError("slack socket mode terminated", err)
}

// serve runs the connection alongside the event loop. The loop is joined
// before the handler wait starts, so no handler is spawned during the wait.
func (b *Bot) serve(ctx context.Context, run func(context.Context) error, events <-chan socketmode.Event) error {
	stop := make(chan struct{})
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		b.eventLoop(ctx, stop, events)
	}()

	err := run(ctx)
	close(stop)
	<-loopDone
	b.handlers.Wait()
	return err
}

func (b *Bot) eventLoop(ctx context.Context, stop <-chan struct{}, events <-chan socketmode.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			b.handleEvent(ctx, evt)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.logger.Infof("Slack: connecting to Socket Mode")

	case socketmode.EventTypeConnected:
		b.logger.Infof("Slack: connected to Socket Mode")

	case socketmode.EventTypeConnectionError:
		b.logger.Warnf("Slack: connection error: %v", evt.Data)

	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			return
		}
		b.ack(evt.Request)
		b.spawn(func() { b.handleSlashCommand(ctx, cmd) })

	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		b.ack(evt.Request)
		b.spawn(func() { b.handleInteraction(ctx, callback) })
	}
}

func (b *Bot) ack(req *socketmode.Request) {
	if b.socketMode == nil || req == nil {
		return
	}
	b.socketMode.Ack(*req)
}

// spawn runs a handler off the event loop; Slack expects the ack within 3s
// and bulk commands take longer than that.
func (b *Bot) spawn(handler func()) {
	b.handlers.Add(1)
	go func() {
		defer b.handlers.Done()
		handler()
	}()
}

func (b *Bot) handleSlashCommand(ctx context.Context, slash slack.SlashCommand) {
	reply := &ephemeralRenderer{api: b.api, channelID: slash.ChannelID, userID: slash.UserID}

	if slash.Command != b.slashCommand {
		b.render(ctx, reply, control.ErrorMessage(errors.NewValidationError("unknown command: "+slash.Command, nil)))
		return
	}
	if !b.allow.Allowed(slash.UserID) {
		b.logger.Warnf("Slack: refused user, user: %s, text: %q", slash.UserID, slash.Text)
		b.render(ctx, reply, control.RefusalMessage())
		return
	}

	cmd, err := control.ParseCommand(slash.Text)
	if err != nil {
		help := control.HelpMessage()
		help.Body = errors.ReasonOf(err) + "\n\n" + help.Body
		b.render(ctx, reply, help)
		return
	}
	cmd.Operator = slash.UserID

	b.dispatch(ctx, cmd, NewMessageRenderer(b.api, slash.ChannelID))
}

func (b *Bot) handleInteraction(ctx context.Context, callback slack.InteractionCallback) {
	if callback.Type != slack.InteractionTypeBlockActions {
		return
	}

	channelID := callback.Channel.ID
	if channelID == "" {
		channelID = callback.Container.ChannelID
	}
	timestamp := callback.Message.Timestamp
	if timestamp == "" {
		timestamp = callback.Container.MessageTs
	}

	for _, action := range callback.ActionCallback.BlockActions {
		if !strings.HasPrefix(action.ActionID, actionPrefix) {
			continue
		}
		if !b.allow.Allowed(callback.User.ID) {
			b.logger.Warnf("Slack: refused button, user: %s, value: %q", callback.User.ID, action.Value)
			b.render(ctx, &ephemeralRenderer{api: b.api, channelID: channelID, userID: callback.User.ID}, control.RefusalMessage())
			return
		}

		cmd, err := control.ParseCommand(action.Value)
		if err != nil {
			b.logger.Warnf("Slack: malformed button value %q: %v", action.Value, err)
			continue
		}
		cmd.Operator = callback.User.ID

		b.dispatch(ctx, cmd, b.buttonRenderer(cmd, channelID, timestamp))
	}
}

// buttonRenderer edits the pressed message for views and posts a new message
// for anything that changes worker state, so results stay in the history.
func (b *Bot) buttonRenderer(cmd control.Command, channelID, timestamp string) control.Renderer {
	switch cmd.Name {
	case control.CommandStatus, control.CommandSystemInfo, control.CommandSettings, control.CommandHelp:
		if timestamp != "" {
			return NewEditRenderer(b.api, channelID, timestamp)
		}
	}
	return NewMessageRenderer(b.api, channelID)
}

func (b *Bot) dispatch(ctx context.Context, cmd control.Command, out control.Renderer) {
	if err := b.dispatcher.Dispatch(ctx, cmd, out); err != nil {
		b.logger.Errorf("Slack: command failed, command: %s, error: %v", cmd, err)
	}
}

func (b *Bot) render(ctx context.Context, out control.Renderer, message control.Message) {
	if _, err := out.Render(ctx, message); err != nil {
		b.logger.Errorf("Slack: failed to reply: %v", err)
	}
}
