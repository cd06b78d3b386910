package slackbot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/control"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiCall struct {
	method    string
	channelID string
	timestamp string
	userID    string
}

type fakeChatAPI struct {
	mutex   sync.Mutex
	calls   []apiCall
	postErr error
}

func (f *fakeChatAPI) record(call apiCall) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeChatAPI) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.record(apiCall{method: "postMessage", channelID: channelID})
	if f.postErr != nil {
		return "", "", f.postErr
	}
	return channelID, "1700000000.000100", nil
}

func (f *fakeChatAPI) UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
	f.record(apiCall{method: "update", channelID: channelID, timestamp: timestamp})
	return channelID, timestamp, "", nil
}

func (f *fakeChatAPI) PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error) {
	f.record(apiCall{method: "postEphemeral", channelID: channelID, userID: userID})
	return "1700000000.000200", nil
}

func (f *fakeChatAPI) OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	f.record(apiCall{method: "openConversation", userID: params.Users[0]})
	channel := &slack.Channel{}
	channel.ID = "D-" + params.Users[0]
	return channel, false, false, nil
}

type dispatched struct {
	cmd control.Command
	ack control.Ack
}

type fakeDispatcher struct {
	mutex sync.Mutex
	seen  []dispatched
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, cmd control.Command, out control.Renderer) error {
	ack, err := out.Render(ctx, control.Message{Body: "done: " + cmd.String()})
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.seen = append(f.seen, dispatched{cmd: cmd, ack: ack})
	return err
}

func testConfig() Config {
	enabled := true
	return Config{
		Enabled:      &enabled,
		BotToken:     "xoxb-test",
		AppToken:     "xapp-test",
		AllowedUsers: []string{"U1"},
	}
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(Config{}), "disabled config is valid")
	assert.NoError(t, ValidateConfig(testConfig()))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing bot token", func(c *Config) { c.BotToken = "" }},
		{"wrong bot token", func(c *Config) { c.BotToken = "xapp-1" }},
		{"missing app token", func(c *Config) { c.AppToken = "" }},
		{"wrong app token", func(c *Config) { c.AppToken = "invalid-token" }},
		{"bad slash command", func(c *Config) { c.SlashCommand = "supervisor" }},
		{"no allowed users", func(c *Config) { c.AllowedUsers = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			assert.True(t, errors.IsValidationError(ValidateConfig(cfg)))
		})
	}
}

func TestNewBot(t *testing.T) {
	client, err := NewClient(testConfig())
	require.NoError(t, err)

	bot := New(client, testConfig(), &fakeDispatcher{}, logging.NewNopLogger())
	assert.NotNil(t, bot.socketMode)
	assert.Equal(t, DefaultSlashCommand, bot.slashCommand)

	_, err = NewClient(Config{})
	assert.Error(t, err)
}

func TestBuildBlocks(t *testing.T) {
	message := control.Message{
		Title: "Worker monitor",
		Body:  "*Workers:*\n🟢 *bot* running",
		Level: control.LevelWarning,
		Actions: [][]control.Action{
			{
				{Label: "Refresh", Command: control.Command{Name: control.CommandStatus}},
				{Label: "Stop bot", Command: control.Command{Name: control.CommandStop, WorkerID: "bot"}, Danger: true},
			},
			{},
		},
	}

	blocks := BuildBlocks(message)
	require.Len(t, blocks, 3)

	header, ok := blocks[0].(*slack.HeaderBlock)
	require.True(t, ok)
	assert.Equal(t, "⚠️ Worker monitor", header.Text.Text)

	section, ok := blocks[1].(*slack.SectionBlock)
	require.True(t, ok)
	assert.Equal(t, slack.MarkdownType, section.Text.Type)

	actions, ok := blocks[2].(*slack.ActionBlock)
	require.True(t, ok)
	require.Len(t, actions.Elements.ElementSet, 2)
	stop, ok := actions.Elements.ElementSet[1].(*slack.ButtonBlockElement)
	require.True(t, ok)
	assert.Equal(t, "stop bot", stop.Value)
	assert.Equal(t, slack.StyleDanger, stop.Style)
	assert.NotEqual(t, actions.Elements.ElementSet[0].(*slack.ButtonBlockElement).ActionID, stop.ActionID)
}

func TestRenderers(t *testing.T) {
	api := &fakeChatAPI{}
	ctx := context.Background()

	ack, err := NewMessageRenderer(api, "C1").Render(ctx, control.Message{Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "C1/1700000000.000100", ack.Location)
	require.NotNil(t, ack.Editor)

	_, err = ack.Editor.Render(ctx, control.Message{Body: "edited"})
	require.NoError(t, err)

	assert.Equal(t, []apiCall{
		{method: "postMessage", channelID: "C1"},
		{method: "update", channelID: "C1", timestamp: "1700000000.000100"},
	}, api.calls)

	api.postErr = fmt.Errorf("channel_not_found")
	_, err = NewMessageRenderer(api, "C2").Render(ctx, control.Message{Body: "hello"})
	assert.True(t, errors.IsNetworkError(err))
}

func TestSlashCommand(t *testing.T) {
	api := &fakeChatAPI{}
	dispatcher := &fakeDispatcher{}
	bot := newBot(api, testConfig(), dispatcher, logging.NewNopLogger())
	ctx := context.Background()

	bot.handleSlashCommand(ctx, slack.SlashCommand{Command: "/supervisor", Text: "restart bot", UserID: "U1", ChannelID: "C1"})
	require.Len(t, dispatcher.seen, 1)
	assert.Equal(t, control.Command{Name: control.CommandRestart, WorkerID: "bot", Operator: "U1"}, dispatcher.seen[0].cmd)
	assert.NotNil(t, dispatcher.seen[0].ack.Editor, "slash replies are editable")

	bot.handleSlashCommand(ctx, slack.SlashCommand{Command: "/supervisor", Text: "stop-all", UserID: "U9", ChannelID: "C1"})
	bot.handleSlashCommand(ctx, slack.SlashCommand{Command: "/supervisor", Text: "launch bot", UserID: "U1", ChannelID: "C1"})
	bot.handleSlashCommand(ctx, slack.SlashCommand{Command: "/other", Text: "status", UserID: "U1", ChannelID: "C1"})

	assert.Len(t, dispatcher.seen, 1, "refused, malformed and foreign commands never reach the router")
	ephemeral := 0
	for _, call := range api.calls {
		if call.method == "postEphemeral" {
			ephemeral++
		}
	}
	assert.Equal(t, 3, ephemeral)
}

func blockAction(user, value string) slack.InteractionCallback {
	callback := slack.InteractionCallback{Type: slack.InteractionTypeBlockActions}
	callback.User.ID = user
	callback.Channel.ID = "C1"
	callback.Message.Timestamp = "1700000000.000300"
	callback.ActionCallback.BlockActions = []*slack.BlockAction{
		{ActionID: actionPrefix + "_0_0", Value: value},
	}
	return callback
}

func TestInteraction(t *testing.T) {
	api := &fakeChatAPI{}
	dispatcher := &fakeDispatcher{}
	bot := newBot(api, testConfig(), dispatcher, logging.NewNopLogger())
	ctx := context.Background()

	bot.handleInteraction(ctx, blockAction("U1", "status"))
	bot.handleInteraction(ctx, blockAction("U1", "start api"))
	bot.handleInteraction(ctx, blockAction("U2", "stop-all"))

	require.Len(t, dispatcher.seen, 2)
	assert.Equal(t, control.CommandStatus, dispatcher.seen[0].cmd.Name)
	assert.Equal(t, "api", dispatcher.seen[1].cmd.WorkerID)

	require.Len(t, api.calls, 3)
	assert.Equal(t, apiCall{method: "update", channelID: "C1", timestamp: "1700000000.000300"}, api.calls[0])
	assert.Equal(t, "postMessage", api.calls[1].method)
	assert.Equal(t, apiCall{method: "postEphemeral", channelID: "C1", userID: "U2"}, api.calls[2])
}

func TestNotifier(t *testing.T) {
	api := &fakeChatAPI{}
	notifier := NewNotifier(api, []string{"U1", "U2"}, "C-ops", logging.NewNopLogger())

	notifier.NotifyOperators(context.Background(), "Start all finished with 1 failure(s)")

	assert.Equal(t, []apiCall{
		{method: "openConversation", userID: "U1"},
		{method: "postMessage", channelID: "D-U1"},
		{method: "openConversation", userID: "U2"},
		{method: "postMessage", channelID: "D-U2"},
		{method: "postMessage", channelID: "C-ops"},
	}, api.calls)
}

type slowDispatcher struct {
	finished atomic.Int32
}

func (d *slowDispatcher) Dispatch(ctx context.Context, cmd control.Command, out control.Renderer) error {
	time.Sleep(100 * time.Millisecond)
	d.finished.Add(1)
	return nil
}

func TestServeWaitsForHandlers(t *testing.T) {
	dispatcher := &slowDispatcher{}
	bot := newBot(&fakeChatAPI{}, testConfig(), dispatcher, logging.NewNopLogger())

	events := make(chan socketmode.Event)
	slash := socketmode.Event{
		Type: socketmode.EventTypeSlashCommand,
		Data: slack.SlashCommand{Command: DefaultSlashCommand, Text: "stop-all", UserID: "U1", ChannelID: "C1"},
	}
	connectionLost := errors.NewNetworkError("connection lost", nil)

	// The connection drops right after the last event is handed over, while
	// the handler it spawned is still running.
	run := func(ctx context.Context) error {
		events <- socketmode.Event{Type: socketmode.EventTypeConnected}
		events <- slash
		return connectionLost
	}

	err := bot.serve(context.Background(), run, events)
	assert.Equal(t, connectionLost, err)
	assert.Equal(t, int32(1), dispatcher.finished.Load(), "serve returned before the command handler finished")
}

func TestEventLoopStops(t *testing.T) {
	bot := newBot(&fakeChatAPI{}, testConfig(), &fakeDispatcher{}, logging.NewNopLogger())

	tests := []struct {
		name  string
		setup func(stop chan struct{}, events chan socketmode.Event) context.Context
	}{
		{"stop", func(stop chan struct{}, events chan socketmode.Event) context.Context {
			close(stop)
			return context.Background()
		}},
		{"closed events", func(stop chan struct{}, events chan socketmode.Event) context.Context {
			close(events)
			return context.Background()
		}},
		{"cancelled", func(stop chan struct{}, events chan socketmode.Event) context.Context {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stop := make(chan struct{})
			events := make(chan socketmode.Event)
			ctx := tt.setup(stop, events)

			done := make(chan struct{})
			go func() {
				defer close(done)
				bot.eventLoop(ctx, stop, events)
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("event loop did not return")
			}
		})
	}
}
