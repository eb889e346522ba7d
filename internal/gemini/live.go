package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/rbright/conversa/internal/audio"
	"github.com/rbright/conversa/internal/live"
)

// Dialer opens Gemini Live sessions.
type Dialer struct {
	client *genai.Client
}

// NewDialer builds a dialer bound to one API key.
func NewDialer(ctx context.Context, cfg Config) (*Dialer, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Dialer{client: client}, nil
}

// Dial connects a Live session with audio responses and both transcriptions enabled.
func (d *Dialer) Dial(ctx context.Context, setup live.Setup) (live.Conn, error) {
	model := strings.TrimSpace(setup.Model)
	if model == "" {
		model = DefaultLiveModel
	}

	session, err := d.client.Live.Connect(ctx, model, connectConfig(setup))
	if err != nil {
		return nil, fmt.Errorf("connect gemini live %q: %w", model, err)
	}

	outputRate := setup.OutputSampleRate
	if outputRate <= 0 {
		outputRate = audio.PlaybackSampleRate
	}
	return &conn{session: session, outputRate: outputRate}, nil
}

func connectConfig(setup live.Setup) *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		SpeechConfig:             speechConfig(setup.Voice),
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if instruction := strings.TrimSpace(setup.SystemInstruction); instruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
	}
	return cfg
}

// conn wraps one genai Live session.
type conn struct {
	session    *genai.Session
	outputRate int

	closeOnce sync.Once
	closeErr  error
}

func (c *conn) Send(ctx context.Context, frame audio.Frame) error {
	pcm, err := frame.PCM()
	if err != nil {
		return err
	}
	rate := frame.SampleRate
	if rate <= 0 {
		rate = audio.CaptureSampleRate
	}

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	if err := c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: audio.MIMEType(rate)},
	}); err != nil {
		return fmt.Errorf("send realtime audio: %w", err)
	}
	return nil
}

func (c *conn) Receive(ctx context.Context) ([]live.Event, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		msg, err := c.session.Receive()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("receive gemini live message: %w", err)
		}
		if events := eventsFromMessage(msg, c.outputRate); len(events) > 0 {
			return events, nil
		}
	}
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.session.Close()
		if errors.Is(c.closeErr, websocket.ErrCloseSent) {
			c.closeErr = nil
		}
	})
	return c.closeErr
}

// eventsFromMessage splits one server message into ordered session events.
// Barge-in is applied before any new audio; turn completion comes last.
func eventsFromMessage(msg *genai.LiveServerMessage, outputRate int) []live.Event {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	content := msg.ServerContent

	var events []live.Event
	if content.Interrupted {
		events = append(events, live.Event{Kind: live.EventInterrupted})
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			events = append(events, live.Event{
				Kind:  live.EventAudio,
				Audio: audio.Frame{Data: part.InlineData.Data, Encoding: audio.EncodingPCM16, SampleRate: outputRate},
			})
		}
		events = append(events, live.Event{Kind: live.EventModelTurn})
	}
	if t := content.InputTranscription; t != nil {
		if t.Text != "" {
			events = append(events, live.Event{Kind: live.EventInputTranscript, Text: t.Text})
		}
		if t.Finished {
			events = append(events, live.Event{Kind: live.EventThinking})
		}
	}
	if t := content.OutputTranscription; t != nil && t.Text != "" {
		events = append(events, live.Event{Kind: live.EventOutputTranscript, Text: t.Text})
	}
	if content.TurnComplete {
		events = append(events, live.Event{Kind: live.EventTurnComplete})
	}
	return events
}
