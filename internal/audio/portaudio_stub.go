//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"errors"
)

// PortAudioSource stub when portaudio is not available.
type PortAudioSource struct{}

func NewPortAudioSource(int, int) *PortAudioSource {
	return &PortAudioSource{}
}

func (s *PortAudioSource) Device() Device {
	return Device{ID: "portaudio-default", Description: "PortAudio default input"}
}

func (s *PortAudioSource) Start(context.Context, BlockFunc) error {
	return errors.New("portaudio source not available: rebuild with -tags portaudio")
}

func (s *PortAudioSource) Stop() error {
	return nil
}
