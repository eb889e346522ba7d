package live

import (
	"context"
	"io"

	"github.com/rbright/conversa/internal/audio"
	"github.com/rbright/conversa/internal/playback"
)

// EventKind names one inbound occurrence on a conversation connection.
type EventKind string

const (
	EventAudio            EventKind = "audio"
	EventInputTranscript  EventKind = "input_transcription"
	EventOutputTranscript EventKind = "output_transcription"
	EventModelTurn        EventKind = "model_turn"
	EventThinking         EventKind = "thinking"
	EventTurnComplete     EventKind = "turn_complete"
	EventInterrupted      EventKind = "interrupted"
	EventError            EventKind = "error"
	EventClose            EventKind = "close"
)

// Event is one decoded inbound message. Adapters split a remote message into
// several events in the order they must be applied.
type Event struct {
	Kind  EventKind   `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Audio audio.Frame `json:"-"`
	Err   error       `json:"-"`
}

// Setup is the static configuration sent when a connection opens.
type Setup struct {
	Model             string
	Voice             string
	SystemInstruction string
	InputSampleRate   int
	OutputSampleRate  int
	Encoding          audio.Encoding
}

// Conn is one open conversation connection.
//
// Receive blocks until at least one event arrives. It returns io.EOF when the
// remote side closes cleanly. Send and Receive must return promptly once ctx is
// cancelled or Close is called.
type Conn interface {
	Send(ctx context.Context, frame audio.Frame) error
	Receive(ctx context.Context) ([]Event, error)
	Close() error
}

// Dialer opens conversation connections.
type Dialer interface {
	Dial(ctx context.Context, setup Setup) (Conn, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc func(context.Context, Setup) (Conn, error)

func (f DialFunc) Dial(ctx context.Context, setup Setup) (Conn, error) {
	return f(ctx, setup)
}

// Devices opens the local audio endpoints for one session run.
type Devices interface {
	OpenInput(ctx context.Context) (audio.Source, error)
	OpenOutput(ctx context.Context) (playback.Output, error)
}

// isRemoteClose reports whether a receive error means a clean remote close.
func isRemoteClose(err error) bool {
	return err == io.EOF
}
