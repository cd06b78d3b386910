package control

import (
	"context"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Action is a button offered with a message; pressing it issues Command.
type Action struct {
	Label   string
	Command Command
	Danger  bool
}

// Message is a transport-neutral reply. Rows of actions render as button rows.
type Message struct {
	Title   string
	Body    string
	Level   Level
	Actions [][]Action
}

// Ack identifies a rendered message. Editor, when set, re-renders into the
// same message and becomes the auto-refresh sink.
type Ack struct {
	Location string
	Editor   Renderer
}

// Renderer delivers a Message to one surface. Transports provide one renderer
// that posts a new message and one that edits an existing message in place.
type Renderer interface {
	Render(ctx context.Context, message Message) (Ack, error)
}

type RendererFunc func(ctx context.Context, message Message) (Ack, error)

func (f RendererFunc) Render(ctx context.Context, message Message) (Ack, error) {
	return f(ctx, message)
}
