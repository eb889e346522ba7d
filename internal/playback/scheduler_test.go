package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbright/conversa/internal/audio"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testRate = 1000

type fakeVoice struct {
	out     *fakeOutput
	stopped bool
}

func (v *fakeVoice) Stop() {
	v.out.mu.Lock()
	defer v.out.mu.Unlock()
	if !v.stopped {
		v.stopped = true
		v.out.stops++
	}
}

type scheduled struct {
	at      time.Duration
	samples int
	onEnded func()
	voice   *fakeVoice
}

type fakeOutput struct {
	mu       sync.Mutex
	now      time.Duration
	calls    []scheduled
	closes   int
	stops    int
	failNext bool
}

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) advance(d time.Duration) {
	o.mu.Lock()
	o.now += d
	o.mu.Unlock()
}

func (o *fakeOutput) Schedule(samples []float32, at time.Duration, onEnded func()) (audio.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failNext {
		o.failNext = false
		return nil, errors.New("device gone")
	}
	voice := &fakeVoice{out: o}
	o.calls = append(o.calls, scheduled{at: at, samples: len(samples), onEnded: onEnded, voice: voice})
	return voice, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closes++
	return nil
}

func chunk(n int) audio.Frame {
	return audio.EncodeFrame(make([]float32, n), testRate, audio.EncodingBase64)
}

func TestSchedulerQueuesChunksBackToBack(t *testing.T) {
	out := &fakeOutput{}
	sched := New(out, testRate, nil)

	for _, want := range []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond} {
		placement, err := sched.Enqueue(chunk(100))
		require.NoError(t, err)
		require.Equal(t, want, placement.Start)
		require.Equal(t, 100*time.Millisecond, placement.Duration)
	}
	require.Equal(t, 300*time.Millisecond, sched.NextStart())
	require.Equal(t, 3, sched.Active())
}

func TestSchedulerMalformedChunkLeavesCursorAlone(t *testing.T) {
	out := &fakeOutput{}
	sched := New(out, testRate, nil)

	for i := 0; i < 3; i++ {
		_, err := sched.Enqueue(chunk(100))
		require.NoError(t, err)
	}

	_, err := sched.Enqueue(audio.Frame{Data: []byte("not base64!"), Encoding: audio.EncodingBase64})
	require.ErrorIs(t, err, audio.ErrMalformedChunk)
	_, err = sched.Enqueue(audio.Frame{Data: []byte{1, 2, 3}, Encoding: audio.EncodingPCM16})
	require.ErrorIs(t, err, audio.ErrMalformedChunk)
	require.Equal(t, 300*time.Millisecond, sched.NextStart())

	out.advance(50 * time.Millisecond)
	placement, err := sched.Enqueue(chunk(100))
	require.NoError(t, err)
	require.Equal(t, 300*time.Millisecond, placement.Start)
	require.Len(t, out.calls, 4)
}

func TestSchedulerLateChunkStartsAtClock(t *testing.T) {
	out := &fakeOutput{}
	sched := New(out, testRate, nil)

	_, err := sched.Enqueue(chunk(100))
	require.NoError(t, err)

	out.advance(time.Second)
	placement, err := sched.Enqueue(chunk(50))
	require.NoError(t, err)
	require.Equal(t, time.Second, placement.Start)
	require.Equal(t, time.Second+50*time.Millisecond, sched.NextStart())
}

func TestSchedulerEndedBufferLeavesActiveSet(t *testing.T) {
	out := &fakeOutput{}
	sched := New(out, testRate, nil)

	_, err := sched.Enqueue(chunk(10))
	require.NoError(t, err)
	_, err = sched.Enqueue(chunk(10))
	require.NoError(t, err)

	out.calls[0].onEnded()
	require.Equal(t, 1, sched.Active())
	out.calls[0].onEnded()
	require.Equal(t, 1, sched.Active())
}

func TestSchedulerStopAllResetsCursor(t *testing.T) {
	out := &fakeOutput{}
	sched := New(out, testRate, nil)

	for i := 0; i < 3; i++ {
		_, err := sched.Enqueue(chunk(100))
		require.NoError(t, err)
	}

	sched.StopAll()
	require.Zero(t, sched.Active())
	require.Zero(t, sched.NextStart())
	require.Equal(t, 3, out.stops)

	out.advance(20 * time.Millisecond)
	placement, err := sched.Enqueue(chunk(10))
	require.NoError(t, err)
	require.Equal(t, 20*time.Millisecond, placement.Start)
}

func TestSchedulerCloseReleasesOutputOnce(t *testing.T) {
	out := &fakeOutput{}
	sched := New(out, testRate, nil)
	_, err := sched.Enqueue(chunk(10))
	require.NoError(t, err)

	require.NoError(t, sched.Close())
	require.NoError(t, sched.Close())
	require.Equal(t, 1, out.closes)
	require.Equal(t, 1, out.stops)

	_, err = sched.Enqueue(chunk(10))
	require.Error(t, err)
}

func TestSchedulerOutputFailureKeepsCursor(t *testing.T) {
	out := &fakeOutput{failNext: true}
	sched := New(out, testRate, nil)

	_, err := sched.Enqueue(chunk(10))
	require.Error(t, err)
	require.Zero(t, sched.NextStart())
	require.Zero(t, sched.Active())
}

func TestSchedulerWithMixerPlaysGapless(t *testing.T) {
	mixer := audio.NewMixer(testRate)
	sched := New(mixer, testRate, nil)

	first := make([]float32, 3)
	second := make([]float32, 2)
	for i := range first {
		first[i] = 0.25
	}
	for i := range second {
		second[i] = 0.5
	}
	_, err := sched.EnqueueSamples(first)
	require.NoError(t, err)
	_, err = sched.EnqueueSamples(second)
	require.NoError(t, err)

	out := make([]float32, 6)
	mixer.Render(out)
	require.Equal(t, []float32{0.25, 0.25, 0.25, 0.5, 0.5, 0}, out)
	require.Zero(t, sched.Active())
}

func TestSchedulerNeverOverlapsOrGapsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		out := &fakeOutput{}
		sched := New(out, testRate, nil)

		var prev Placement
		n := rapid.IntRange(1, 40).Draw(rt, "chunks")
		for i := 0; i < n; i++ {
			out.advance(time.Duration(rapid.IntRange(0, 200).Draw(rt, "advance_ms")) * time.Millisecond)
			clock := out.Now()

			placement, err := sched.Enqueue(chunk(rapid.IntRange(1, 500).Draw(rt, "samples")))
			if err != nil {
				rt.Fatalf("enqueue: %v", err)
			}
			if i > 0 {
				if placement.Start < prev.End() {
					rt.Fatalf("chunk %d overlaps: start %v < previous end %v", i, placement.Start, prev.End())
				}
				if clock <= prev.End() && placement.Start != prev.End() {
					rt.Fatalf("chunk %d left a gap: start %v previous end %v clock %v", i, placement.Start, prev.End(), clock)
				}
			}
			if placement.Start < clock {
				rt.Fatalf("chunk %d scheduled in the past: %v < %v", i, placement.Start, clock)
			}
			prev = placement
		}
	})
}
