// Package relay speaks conversa's JSON-over-websocket conversation protocol.
//
// The client opens a websocket, sends one setup message and waits for
// setup_complete. Audio then flows both ways either as base64 inside JSON
// text messages or as raw PCM16 LE binary messages.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/rbright/conversa/internal/audio"
	"github.com/rbright/conversa/internal/live"
)

// Message types.
const (
	TypeSetup               = "setup"
	TypeSetupComplete       = "setup_complete"
	TypeAudio               = "audio"
	TypeInputTranscription  = "input_transcription"
	TypeOutputTranscription = "output_transcription"
	TypeModelTurn           = "model_turn"
	TypeThinking            = "thinking"
	TypeInterrupted         = "interrupted"
	TypeTurnComplete        = "turn_complete"
	TypeError               = "error"
	TypeClose               = "close"
)

// Message is the envelope for every JSON frame in both directions.
type Message struct {
	Type string `json:"type"`

	// setup
	Model             string `json:"model,omitempty"`
	Voice             string `json:"voice,omitempty"`
	SystemInstruction string `json:"system_instruction,omitempty"`
	InputSampleRate   int    `json:"input_sample_rate,omitempty"`
	OutputSampleRate  int    `json:"output_sample_rate,omitempty"`
	Encoding          string `json:"encoding,omitempty"`

	// audio (base64 PCM16 LE)
	Data string `json:"data,omitempty"`

	// transcriptions, errors and close reasons
	Text     string `json:"text,omitempty"`
	Finished bool   `json:"finished,omitempty"`
	Message  string `json:"message,omitempty"`
}

func setupMessage(setup live.Setup) Message {
	encoding := setup.Encoding
	if encoding == "" {
		encoding = audio.EncodingBase64
	}
	return Message{
		Type:              TypeSetup,
		Model:             setup.Model,
		Voice:             setup.Voice,
		SystemInstruction: setup.SystemInstruction,
		InputSampleRate:   setup.InputSampleRate,
		OutputSampleRate:  setup.OutputSampleRate,
		Encoding:          string(encoding),
	}
}

// decodeText parses one JSON frame into session events.
func decodeText(data []byte, outputRate int) ([]live.Event, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode relay message: %w", err)
	}

	switch msg.Type {
	case TypeAudio:
		return []live.Event{{
			Kind:  live.EventAudio,
			Audio: audio.Frame{Data: []byte(msg.Data), Encoding: audio.EncodingBase64, SampleRate: outputRate},
		}}, nil
	case TypeInputTranscription:
		events := []live.Event{{Kind: live.EventInputTranscript, Text: msg.Text}}
		if msg.Finished {
			events = append(events, live.Event{Kind: live.EventThinking})
		}
		return events, nil
	case TypeOutputTranscription:
		return []live.Event{{Kind: live.EventOutputTranscript, Text: msg.Text}}, nil
	case TypeModelTurn:
		return []live.Event{{Kind: live.EventModelTurn}}, nil
	case TypeThinking:
		return []live.Event{{Kind: live.EventThinking}}, nil
	case TypeInterrupted:
		return []live.Event{{Kind: live.EventInterrupted}}, nil
	case TypeTurnComplete:
		return []live.Event{{Kind: live.EventTurnComplete}}, nil
	case TypeError:
		text := msg.Message
		if text == "" {
			text = msg.Text
		}
		return []live.Event{{Kind: live.EventError, Text: text}}, nil
	case TypeClose:
		return []live.Event{{Kind: live.EventClose, Text: msg.Message}}, nil
	default:
		return nil, nil
	}
}
