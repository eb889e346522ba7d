// Package capture turns device sample blocks into encoded frames without ever blocking the device callback.
package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/rbright/conversa/internal/audio"
)

const defaultQueueFrames = 32

// ErrStopped is returned when starting a pipeline that was already stopped.
var ErrStopped = errors.New("capture pipeline stopped")

// Options configures framing and hand-off.
type Options struct {
	Encoding    audio.Encoding
	SampleRate  int
	QueueFrames int
	Logger      *slog.Logger
	// OnDrop is called from the device callback each time a frame is discarded.
	OnDrop func()
	// Record keeps a copy of every captured block as PCM16 for debug dumps.
	Record bool
}

// Pipeline owns one Source and hands encoded frames to a single consumer.
type Pipeline struct {
	source audio.Source
	opts   Options
	logger *slog.Logger

	frames chan audio.Frame

	mu      sync.RWMutex
	started bool
	stopped bool
	raw     []byte

	emitted atomic.Int64
	dropped atomic.Int64
	dropLog rate.Sometimes
}

// New wraps source. Nothing is opened until Start.
func New(source audio.Source, opts Options) *Pipeline {
	if opts.Encoding == "" {
		opts.Encoding = audio.EncodingBase64
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.CaptureSampleRate
	}
	if opts.QueueFrames <= 0 {
		opts.QueueFrames = defaultQueueFrames
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Pipeline{
		source:  source,
		opts:    opts,
		logger:  logger,
		frames:  make(chan audio.Frame, opts.QueueFrames),
		dropLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// Start connects the source. Frames become available on Frames.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	return p.source.Start(ctx, p.onBlock)
}

// Frames is closed by Stop.
func (p *Pipeline) Frames() <-chan audio.Frame {
	return p.frames
}

// Stop disconnects the source and waits for in-flight callbacks.
// Once Stop returns the frame channel is closed and empty. Safe to call repeatedly.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	err := p.source.Stop()

	close(p.frames)
	for range p.frames {
	}

	if dropped := p.dropped.Load(); dropped > 0 {
		p.logger.Warn("capture dropped frames", "frames_dropped", dropped, "frames_emitted", p.emitted.Load())
	}
	return err
}

// Emitted reports frames handed to the consumer.
func (p *Pipeline) Emitted() int64 {
	return p.emitted.Load()
}

// Dropped reports frames discarded because the consumer fell behind.
func (p *Pipeline) Dropped() int64 {
	return p.dropped.Load()
}

// RawPCM returns a copy of recorded PCM16 audio when Options.Record is set.
func (p *Pipeline) RawPCM() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]byte, len(p.raw))
	copy(out, p.raw)
	return out
}

// Device reports the underlying capture device.
func (p *Pipeline) Device() audio.Device {
	return p.source.Device()
}

// onBlock runs on the device callback: encode, then try once to hand off.
func (p *Pipeline) onBlock(samples []float32) {
	frame := audio.EncodeFrame(samples, p.opts.SampleRate, p.opts.Encoding)

	if p.opts.Record {
		p.mu.Lock()
		if !p.stopped {
			p.raw = append(p.raw, audio.FloatToPCM16(samples)...)
		}
		p.mu.Unlock()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return
	}

	select {
	case p.frames <- frame:
		p.emitted.Add(1)
	default:
		dropped := p.dropped.Add(1)
		if p.opts.OnDrop != nil {
			p.opts.OnDrop()
		}
		p.dropLog.Do(func() {
			p.logger.Warn("capture queue full; dropping frame", "frames_dropped", dropped)
		})
	}
}
