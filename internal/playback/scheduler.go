// Package playback schedules decoded assistant audio back to back on an output clock.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/conversa/internal/audio"
)

// Output is an audio sink with its own monotonic clock.
type Output interface {
	Now() time.Duration
	Schedule(samples []float32, at time.Duration, onEnded func()) (audio.Voice, error)
	Close() error
}

// Placement records where one buffer landed on the output clock.
type Placement struct {
	Start    time.Duration
	Duration time.Duration
}

// End returns the clock position right after the buffer finishes.
func (p Placement) End() time.Duration {
	return p.Start + p.Duration
}

// Scheduler keeps a single cursor so consecutive buffers play without gaps or overlap.
//
// For a buffer lasting d: start = max(cursor, output clock), cursor = start + d.
type Scheduler struct {
	out        Output
	sampleRate int
	logger     *slog.Logger

	mu        sync.Mutex
	nextStart time.Duration
	active    map[uint64]audio.Voice
	seq       uint64
}

// New builds a scheduler that renders at sampleRate onto out.
func New(out Output, sampleRate int, logger *slog.Logger) *Scheduler {
	if sampleRate <= 0 {
		sampleRate = audio.PlaybackSampleRate
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		out:        out,
		sampleRate: sampleRate,
		logger:     logger,
		active:     make(map[uint64]audio.Voice),
	}
}

// Enqueue decodes one inbound chunk and schedules it.
// Malformed chunks are logged and skipped; the cursor is untouched.
func (s *Scheduler) Enqueue(frame audio.Frame) (Placement, error) {
	samples, err := audio.DecodeFrame(frame)
	if err != nil {
		s.logger.Warn("skipping malformed audio chunk", "error", err)
		return Placement{}, err
	}
	return s.EnqueueSamples(samples)
}

// EnqueueSamples schedules already-decoded samples.
func (s *Scheduler) EnqueueSamples(samples []float32) (Placement, error) {
	if len(samples) == 0 {
		return Placement{}, &audio.DecodeError{Reason: "empty payload"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out == nil {
		return Placement{}, errors.New("playback output released")
	}

	start := s.nextStart
	if now := s.out.Now(); now > start {
		start = now
	}
	placement := Placement{Start: start, Duration: audio.Duration(len(samples), s.sampleRate)}

	s.seq++
	id := s.seq
	voice, err := s.out.Schedule(samples, start, func() { s.release(id) })
	if err != nil {
		return Placement{}, fmt.Errorf("schedule playback: %w", err)
	}
	s.active[id] = voice
	s.nextStart = placement.End()
	return placement, nil
}

// StopAll force-stops every scheduled buffer and resets the cursor to zero.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	voices := make([]audio.Voice, 0, len(s.active))
	for id, voice := range s.active {
		voices = append(voices, voice)
		delete(s.active, id)
	}
	s.nextStart = 0
	s.mu.Unlock()

	for _, voice := range voices {
		voice.Stop()
	}
}

// Close stops everything and releases the output. Safe to call repeatedly.
func (s *Scheduler) Close() error {
	s.StopAll()

	s.mu.Lock()
	out := s.out
	s.out = nil
	s.mu.Unlock()

	if out == nil {
		return nil
	}
	return out.Close()
}

// Active reports how many buffers are scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart reports the cursor.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}
