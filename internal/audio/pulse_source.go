package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// PulseSource captures float32 mono blocks from one selected Pulse source.
type PulseSource struct {
	device     Device
	sampleRate int

	mu        sync.Mutex
	// teardown for opened Pulse handles, run by Stop in reverse order
	releases  []func()
	onBlock   BlockFunc
	assembler blockAssembler
	tail      []byte
	started   bool
	stopped   bool
	stopCh    chan struct{}

	inflight sync.WaitGroup
	samples  atomic.Int64
}

// NewPulseSource prepares a capture handle; the device is opened on Start.
func NewPulseSource(selected Device, sampleRate int, blockSize int) *PulseSource {
	return &PulseSource{
		device:     selected,
		sampleRate: sampleRate,
		assembler:  blockAssembler{size: blockSize},
		stopCh:     make(chan struct{}),
	}
}

// Device returns capture metadata for logging and diagnostics.
func (s *PulseSource) Device() Device {
	return s.device
}

// SamplesCaptured reports total samples accepted from Pulse.
func (s *PulseSource) SamplesCaptured() int64 {
	return s.samples.Load()
}

// Start opens the record stream and begins delivering blocks to onBlock.
func (s *PulseSource) Start(ctx context.Context, onBlock BlockFunc) error {
	if onBlock == nil {
		return errors.New("pulse source requires a block handler")
	}

	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return errors.New("pulse source already used")
	}
	s.started = true
	s.onBlock = onBlock
	s.mu.Unlock()

	client, err := newClient("audio-input-microphone")
	if err != nil {
		return err
	}
	if !s.hold(client.Close) {
		return errors.New("pulse source stopped while starting")
	}

	source, err := client.SourceByID(s.device.ID)
	if err != nil {
		_ = s.Stop()
		return fmt.Errorf("resolve source %q: %w", s.device.ID, err)
	}

	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatFloat32LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(s.sampleRate),
		pulse.RecordBufferFragmentSize(uint32(s.assembler.size*4)),
		pulse.RecordMediaName("conversa microphone"),
	)
	if err != nil {
		_ = s.Stop()
		return fmt.Errorf("create pulse record stream: %w", err)
	}

	stream.Start()
	if !s.hold(func() {
		stream.Stop()
		stream.Close()
	}) {
		return errors.New("pulse source stopped while starting")
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.stopCh:
		}
	}()

	return nil
}

// Stop halts the stream and waits for in-flight callbacks. Safe to call repeatedly.
func (s *PulseSource) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()

	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}

	s.inflight.Wait()

	s.mu.Lock()
	s.assembler.reset()
	s.tail = nil
	s.mu.Unlock()
	return nil
}

// hold registers release for Stop. Once Stop has run it releases
// immediately instead and reports false.
func (s *PulseSource) hold(release func()) bool {
	s.mu.Lock()
	if !s.stopped {
		s.releases = append(s.releases, release)
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()
	release()
	return false
}

// onPCM receives raw float32 LE bytes from Pulse and emits fixed-size blocks.
func (s *PulseSource) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-s.stopCh:
		return 0, io.EOF
	default:
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as s.stopped to avoid Add/Wait races.
	s.inflight.Add(1)

	raw := append(s.tail, buffer...)
	whole := len(raw) / 4 * 4
	samples := make([]float32, whole/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	s.tail = append([]byte(nil), raw[whole:]...)
	blocks := s.assembler.push(samples)
	onBlock := s.onBlock
	s.mu.Unlock()
	defer s.inflight.Done()

	s.samples.Add(int64(len(samples)))

	for _, block := range blocks {
		select {
		case <-s.stopCh:
			return 0, io.EOF
		default:
		}
		onBlock(block)
	}

	return len(buffer), nil
}
