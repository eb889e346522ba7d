package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrOutputClosed is returned when scheduling on a released output.
var ErrOutputClosed = errors.New("audio output closed")

// Voice is one scheduled buffer on an output clock.
type Voice interface {
	Stop()
}

// Mixer sums scheduled buffers onto a sample clock that advances as audio is rendered.
// The clock starts at zero when the mixer is created.
type Mixer struct {
	sampleRate int

	mu       sync.Mutex
	rendered int64
	voices   []*mixVoice
	closed   bool
}

type mixVoice struct {
	mixer   *Mixer
	samples []float32
	start   int64
	onEnded func()
}

// NewMixer returns a mixer rendering mono audio at sampleRate.
func NewMixer(sampleRate int) *Mixer {
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRate
	}
	return &Mixer{sampleRate: sampleRate}
}

// SampleRate reports the render rate.
func (m *Mixer) SampleRate() int {
	return m.sampleRate
}

// Now returns the output clock: the amount of audio rendered so far.
func (m *Mixer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Duration(int(m.rendered), m.sampleRate)
}

// Schedule queues samples to begin at clock position at.
// Positions already rendered start immediately. onEnded fires once the buffer plays out.
func (m *Mixer) Schedule(samples []float32, at time.Duration, onEnded func()) (Voice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrOutputClosed
	}

	start := m.sampleAt(at)
	if start < m.rendered {
		start = m.rendered
	}
	voice := &mixVoice{mixer: m, samples: samples, start: start, onEnded: onEnded}
	m.voices = append(m.voices, voice)
	return voice, nil
}

// Render fills out with the mix for the next len(out) samples and advances the clock.
func (m *Mixer) Render(out []float32) int {
	for i := range out {
		out[i] = 0
	}

	m.mu.Lock()
	from := m.rendered
	to := from + int64(len(out))
	var ended []func()
	kept := m.voices[:0]
	for _, voice := range m.voices {
		end := voice.start + int64(len(voice.samples))
		lo := max(voice.start, from)
		hi := min(end, to)
		for pos := lo; pos < hi; pos++ {
			out[pos-from] += voice.samples[pos-voice.start]
		}
		if end <= to {
			if voice.onEnded != nil {
				ended = append(ended, voice.onEnded)
			}
			continue
		}
		kept = append(kept, voice)
	}
	for i := len(kept); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = kept
	m.rendered = to
	m.mu.Unlock()

	for i := range out {
		if out[i] > 1 {
			out[i] = 1
		} else if out[i] < -1 {
			out[i] = -1
		}
	}
	for _, fn := range ended {
		fn()
	}
	return len(out)
}

// Pending reports how many voices are still queued or playing.
func (m *Mixer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Close drops every voice without firing their end callbacks.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.voices = nil
	return nil
}

func (m *Mixer) sampleAt(at time.Duration) int64 {
	if at <= 0 {
		return 0
	}
	return (int64(at)*int64(m.sampleRate) + int64(time.Second)/2) / int64(time.Second)
}

// Stop removes the voice from the mix. Its end callback does not fire.
func (v *mixVoice) Stop() {
	m := v.mixer
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, voice := range m.voices {
		if voice == v {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			return
		}
	}
}
