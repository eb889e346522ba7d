//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures from the default PortAudio input device.
type PortAudioSource struct {
	sampleRate int
	blockSize  int

	mu       sync.Mutex
	stream   *portaudio.Stream
	onBlock  BlockFunc
	started  bool
	stopped  bool
	inflight sync.WaitGroup
}

func NewPortAudioSource(sampleRate int, blockSize int) *PortAudioSource {
	return &PortAudioSource{sampleRate: sampleRate, blockSize: blockSize}
}

func (s *PortAudioSource) Device() Device {
	return Device{ID: "portaudio-default", Description: "PortAudio default input", Available: true, Default: true}
}

func (s *PortAudioSource) Start(ctx context.Context, onBlock BlockFunc) error {
	if onBlock == nil {
		return errors.New("portaudio source requires a block handler")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return errors.New("portaudio source already used")
	}
	s.started = true
	s.onBlock = onBlock

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.sampleRate), s.blockSize, s.callback)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting stream: %w", err)
	}
	s.stream = stream

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()
	return nil
}

func (s *PortAudioSource) callback(in []float32) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	onBlock := s.onBlock
	s.mu.Unlock()
	defer s.inflight.Done()

	block := make([]float32, len(in))
	copy(block, in)
	onBlock(block)
}

func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	stream := s.stream
	s.mu.Unlock()

	if stream != nil {
		_ = stream.Stop()
		_ = stream.Close()
		portaudio.Terminate()
	}
	s.inflight.Wait()
	return nil
}
