package audio

import (
	"context"
	"fmt"
	"strings"
)

// BlockFunc receives one fixed-size block of mono float samples in [-1, 1].
// It runs on the device callback and must not block.
type BlockFunc func(samples []float32)

// Source is a microphone handle that delivers fixed-size sample blocks.
// Stop releases the device; once it returns no further blocks are delivered.
type Source interface {
	Start(ctx context.Context, onBlock BlockFunc) error
	Stop() error
	Device() Device
}

// Backend names a capture implementation.
type Backend string

const (
	BackendPulse     Backend = "pulse"
	BackendPortAudio Backend = "portaudio"
)

// SourceConfig describes how to open a capture source.
type SourceConfig struct {
	Backend    Backend
	Input      string
	Fallback   string
	SampleRate int
	BlockSize  int
}

// OpenSource resolves the configured backend into an unstarted Source.
// The returned warning is non-empty when device selection fell back.
func OpenSource(ctx context.Context, cfg SourceConfig) (Source, string, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = CaptureSampleRate
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}

	switch Backend(strings.ToLower(string(cfg.Backend))) {
	case "", BackendPulse:
		selection, err := SelectDevice(ctx, cfg.Input, cfg.Fallback)
		if err != nil {
			return nil, "", err
		}
		return NewPulseSource(selection.Device, cfg.SampleRate, cfg.BlockSize), selection.Warning, nil
	case BackendPortAudio:
		return NewPortAudioSource(cfg.SampleRate, cfg.BlockSize), "", nil
	default:
		return nil, "", fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

// blockAssembler cuts an arbitrary sample stream into fixed-size blocks.
type blockAssembler struct {
	size    int
	pending []float32
}

func (b *blockAssembler) push(samples []float32) [][]float32 {
	b.pending = append(b.pending, samples...)
	if len(b.pending) < b.size {
		return nil
	}
	blocks := make([][]float32, 0, len(b.pending)/b.size)
	for len(b.pending) >= b.size {
		block := make([]float32, b.size)
		copy(block, b.pending[:b.size])
		b.pending = b.pending[b.size:]
		blocks = append(blocks, block)
	}
	return blocks
}

func (b *blockAssembler) reset() {
	b.pending = nil
}
