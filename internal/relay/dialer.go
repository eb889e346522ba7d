package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/rbright/conversa/internal/audio"
	"github.com/rbright/conversa/internal/live"
)

const readLimit = 8 << 20

// Dialer connects to a relay endpoint such as ws://host:port/v1/conversation.
type Dialer struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// Dial performs the websocket handshake and the setup exchange.
func (d Dialer) Dial(ctx context.Context, setup live.Setup) (live.Conn, error) {
	endpoint := strings.TrimSpace(d.Endpoint)
	if endpoint == "" {
		return nil, errors.New("relay endpoint is empty")
	}

	header := http.Header{}
	if key := strings.TrimSpace(d.APIKey); key != "" {
		header.Set("Authorization", "Bearer "+key)
	}

	ws, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPClient: d.Client,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial relay %q: %w", endpoint, err)
	}
	ws.SetReadLimit(readLimit)

	if err := writeJSON(ctx, ws, setupMessage(setup)); err != nil {
		_ = ws.CloseNow()
		return nil, fmt.Errorf("send relay setup: %w", err)
	}
	if err := awaitSetupComplete(ctx, ws); err != nil {
		_ = ws.CloseNow()
		return nil, err
	}

	outputRate := setup.OutputSampleRate
	if outputRate <= 0 {
		outputRate = audio.PlaybackSampleRate
	}
	return &conn{ws: ws, outputRate: outputRate}, nil
}

func awaitSetupComplete(ctx context.Context, ws *websocket.Conn) error {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			return fmt.Errorf("await relay setup: %w", err)
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode relay setup reply: %w", err)
		}
		switch msg.Type {
		case TypeSetupComplete:
			return nil
		case TypeError:
			return fmt.Errorf("relay rejected setup: %s", msg.Message)
		}
	}
}

type conn struct {
	ws         *websocket.Conn
	outputRate int

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *conn) Send(ctx context.Context, frame audio.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if frame.Encoding == audio.EncodingPCM16 {
		return c.ws.Write(ctx, websocket.MessageBinary, frame.Data)
	}
	return writeJSON(ctx, c.ws, Message{Type: TypeAudio, Data: string(frame.Data)})
}

func (c *conn) Receive(ctx context.Context) ([]live.Event, error) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil, io.EOF
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("read relay message: %w", err)
		}

		if typ == websocket.MessageBinary {
			return []live.Event{{
				Kind:  live.EventAudio,
				Audio: audio.Frame{Data: data, Encoding: audio.EncodingPCM16, SampleRate: c.outputRate},
			}}, nil
		}

		events, err := decodeText(data, c.outputRate)
		if err != nil {
			return nil, err
		}
		if len(events) > 0 {
			return events, nil
		}
	}
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close(websocket.StatusNormalClosure, "conversation closed")
		if err != nil {
			// Cancelling a read context already tears the socket down.
			_ = c.ws.CloseNow()
		}
	})
	return err
}

func writeJSON(ctx context.Context, ws *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
