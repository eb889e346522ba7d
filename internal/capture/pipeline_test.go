package capture

import (
	"context"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rbright/conversa/internal/audio"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	onBlock  audio.BlockFunc
	stopped  bool
	stops    atomic.Int32
	startErr error
}

func (s *fakeSource) Start(_ context.Context, onBlock audio.BlockFunc) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.onBlock = onBlock
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.stops.Add(1)
	return nil
}

func (s *fakeSource) Device() audio.Device {
	return audio.Device{ID: "fake-mic"}
}

// emit delivers a block the way a device callback would, even after stop.
func (s *fakeSource) emit(samples []float32) {
	s.mu.Lock()
	fn := s.onBlock
	s.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

func TestPipelineEncodesBase64PCM16(t *testing.T) {
	source := &fakeSource{}
	pipe := New(source, Options{QueueFrames: 4})
	require.NoError(t, pipe.Start(context.Background()))

	source.emit([]float32{0, 0.5, -1})

	frame := <-pipe.Frames()
	require.Equal(t, audio.EncodingBase64, frame.Encoding)
	require.Equal(t, audio.CaptureSampleRate, frame.SampleRate)
	raw, err := base64.StdEncoding.DecodeString(string(frame.Data))
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x40, 0x00, 0x80}, raw)
	require.Equal(t, int64(1), pipe.Emitted())
}

func TestPipelineDropsWhenQueueFull(t *testing.T) {
	source := &fakeSource{}
	var drops atomic.Int32
	pipe := New(source, Options{QueueFrames: 2, Encoding: audio.EncodingPCM16, OnDrop: func() { drops.Add(1) }})
	require.NoError(t, pipe.Start(context.Background()))

	for i := 0; i < 5; i++ {
		source.emit([]float32{0.1})
	}

	require.Equal(t, int64(2), pipe.Emitted())
	require.Equal(t, int64(3), pipe.Dropped())
	require.Equal(t, int32(3), drops.Load())
	require.Len(t, pipe.Frames(), 2)
}

func TestPipelineNoFrameAfterStop(t *testing.T) {
	source := &fakeSource{}
	pipe := New(source, Options{QueueFrames: 8})
	require.NoError(t, pipe.Start(context.Background()))

	source.emit([]float32{0.1})
	require.NoError(t, pipe.Stop())

	// A late device callback must not reach the consumer or panic on a closed channel.
	source.emit([]float32{0.2})

	_, ok := <-pipe.Frames()
	require.False(t, ok)
	require.Equal(t, int64(1), pipe.Emitted())
}

func TestPipelineStopIsIdempotent(t *testing.T) {
	source := &fakeSource{}
	pipe := New(source, Options{})
	require.NoError(t, pipe.Start(context.Background()))

	require.NoError(t, pipe.Stop())
	require.NoError(t, pipe.Stop())
	require.Equal(t, int32(1), source.stops.Load())

	require.ErrorIs(t, pipe.Start(context.Background()), ErrStopped)
}

func TestPipelineStopWithoutStart(t *testing.T) {
	source := &fakeSource{}
	pipe := New(source, Options{})
	require.NoError(t, pipe.Stop())
	require.Equal(t, int32(1), source.stops.Load())
}

func TestPipelineRecordsRawPCM(t *testing.T) {
	source := &fakeSource{}
	pipe := New(source, Options{Record: true, QueueFrames: 1})
	require.NoError(t, pipe.Start(context.Background()))

	source.emit([]float32{0.5})
	source.emit([]float32{0.5})

	require.Equal(t, []byte{0x00, 0x40, 0x00, 0x40}, pipe.RawPCM())
	require.Equal(t, "fake-mic", pipe.Device().ID)
}

func TestPipelineConcurrentEmitAndStop(t *testing.T) {
	source := &fakeSource{}
	pipe := New(source, Options{QueueFrames: 4})
	require.NoError(t, pipe.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				source.emit([]float32{0.1, 0.2})
			}
		}()
	}

	go func() {
		for range pipe.Frames() {
		}
	}()

	require.NoError(t, pipe.Stop())
	emitted, dropped := pipe.Emitted(), pipe.Dropped()
	wg.Wait()
	require.Equal(t, emitted, pipe.Emitted())
	require.Equal(t, dropped, pipe.Dropped())
}
