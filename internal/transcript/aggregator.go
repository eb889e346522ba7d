// Package transcript turns streamed transcription deltas into an ordered conversation record.
package transcript

import (
	"fmt"
	"strings"
	"sync"
)

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerUser         Speaker = "user"
	SpeakerAssistant    Speaker = "assistant"
	SpeakerProfessional Speaker = "professional"
)

// ParseSpeaker validates a speaker name.
func ParseSpeaker(raw string) (Speaker, error) {
	switch Speaker(strings.ToLower(strings.TrimSpace(raw))) {
	case SpeakerUser:
		return SpeakerUser, nil
	case SpeakerAssistant:
		return SpeakerAssistant, nil
	case SpeakerProfessional:
		return SpeakerProfessional, nil
	default:
		return "", fmt.Errorf("unknown speaker %q", raw)
	}
}

// Entry is one speaker turn in the conversation.
type Entry struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Aggregator folds incremental deltas into entries.
//
// Each streamed speaker has a buffer for the current turn. While a speaker's
// entry is the newest and still open, deltas replace its text with the trimmed
// buffer. CloseTurn locks every open entry and clears the buffers.
type Aggregator struct {
	mu      sync.Mutex
	entries []Entry
	open    []bool
	buffers map[Speaker]string
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{buffers: make(map[Speaker]string, 2)}
}

// Delta applies one streamed fragment for speaker. Empty fragments are ignored.
func (a *Aggregator) Delta(speaker Speaker, text string) {
	if text == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.buffers[speaker] += text
	current := strings.TrimSpace(a.buffers[speaker])

	last := len(a.entries) - 1
	if last >= 0 && a.open[last] && a.entries[last].Speaker == speaker {
		a.entries[last].Text = current
		return
	}
	a.entries = append(a.entries, Entry{Speaker: speaker, Text: current})
	a.open = append(a.open, true)
}

// CloseTurn locks every open entry and clears the per-speaker buffers.
func (a *Aggregator) CloseTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.open {
		a.open[i] = false
	}
	clear(a.buffers)
}

// Append adds a complete entry that never receives deltas.
func (a *Aggregator) Append(speaker Speaker, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, Entry{Speaker: speaker, Text: strings.TrimSpace(text)})
	a.open = append(a.open, false)
}

// ResetBuffers drops in-progress buffers and locks open entries, keeping history.
func (a *Aggregator) ResetBuffers() {
	a.CloseTurn()
}

// Reset clears history and buffers.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = nil
	a.open = nil
	clear(a.buffers)
}

// Snapshot returns a copy of the ordered entries.
func (a *Aggregator) Snapshot() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Len reports the number of entries.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
