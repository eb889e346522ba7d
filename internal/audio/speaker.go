package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
)

// Speaker plays a Mixer through a Pulse playback stream.
type Speaker struct {
	mixer *Mixer

	client *pulse.Client
	stream *pulse.PlaybackStream

	closeOnce sync.Once
}

// OpenSpeaker connects to Pulse and starts a mono float32 playback stream at sampleRate.
func OpenSpeaker(sampleRate int) (*Speaker, error) {
	client, err := newClient("audio-speakers")
	if err != nil {
		return nil, err
	}

	mixer := NewMixer(sampleRate)
	reader := pulse.Float32Reader(func(buf []float32) (int, error) {
		return mixer.Render(buf), nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(mixer.SampleRate()),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName("conversa assistant voice"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse playback stream: %w", err)
	}
	stream.Start()

	return &Speaker{mixer: mixer, client: client, stream: stream}, nil
}

// Now returns how much audio the speaker has rendered.
func (s *Speaker) Now() time.Duration {
	return s.mixer.Now()
}

// Schedule queues samples on the speaker clock.
func (s *Speaker) Schedule(samples []float32, at time.Duration, onEnded func()) (Voice, error) {
	return s.mixer.Schedule(samples, at, onEnded)
}

// Close stops the playback stream and releases the Pulse connection.
func (s *Speaker) Close() error {
	s.closeOnce.Do(func() {
		_ = s.mixer.Close()
		if s.stream != nil {
			s.stream.Stop()
			s.stream.Close()
		}
		if s.client != nil {
			s.client.Close()
		}
	})
	return nil
}
