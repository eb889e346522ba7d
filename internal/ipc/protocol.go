// Package ipc carries newline-delimited JSON commands between the conversa
// CLI and the process that owns the running conversation.
package ipc

import "encoding/json"

// Commands understood by the session owner.
const (
	CommandStatus     = "status"
	CommandTranscript = "transcript"
	CommandClose      = "close"
	CommandToggle     = "toggle"
	CommandNote       = "note"
	CommandLocate     = "locate"
)

type Request struct {
	Command string `json:"command"`

	// note
	Text string `json:"text,omitempty"`

	// locate
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`
}

type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	// Data carries command-specific payloads such as the transcript.
	Data json.RawMessage `json:"data,omitempty"`
}

// Failure builds an error response that still reports the current state.
func Failure(state string, err error) Response {
	return Response{OK: false, State: state, Error: err.Error()}
}

// WithData marshals payload into resp.Data.
func WithData(resp Response, payload any) (Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}
	resp.Data = data
	return resp, nil
}
