package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMixerRendersScheduledVoicesBackToBack(t *testing.T) {
	mixer := NewMixer(1000)

	var ended []string
	_, err := mixer.Schedule([]float32{0.1, 0.1}, 0, func() { ended = append(ended, "a") })
	require.NoError(t, err)
	_, err = mixer.Schedule([]float32{0.2, 0.2, 0.2}, 2*time.Millisecond, func() { ended = append(ended, "b") })
	require.NoError(t, err)

	out := make([]float32, 4)
	mixer.Render(out)
	require.Equal(t, []float32{0.1, 0.1, 0.2, 0.2}, out)
	require.Equal(t, []string{"a"}, ended)
	require.Equal(t, 4*time.Millisecond, mixer.Now())

	mixer.Render(out)
	require.Equal(t, []float32{0.2, 0, 0, 0}, out)
	require.Equal(t, []string{"a", "b"}, ended)
	require.Equal(t, 0, mixer.Pending())
}

func TestMixerLateScheduleStartsAtClock(t *testing.T) {
	mixer := NewMixer(1000)
	mixer.Render(make([]float32, 5))

	_, err := mixer.Schedule([]float32{0.5}, time.Millisecond, nil)
	require.NoError(t, err)

	out := make([]float32, 2)
	mixer.Render(out)
	require.Equal(t, []float32{0.5, 0}, out)
}

func TestMixerStoppedVoiceIsSilentAndDoesNotEnd(t *testing.T) {
	mixer := NewMixer(1000)
	endedCalls := 0
	voice, err := mixer.Schedule([]float32{0.3, 0.3}, 0, func() { endedCalls++ })
	require.NoError(t, err)

	voice.Stop()
	voice.Stop()

	out := make([]float32, 3)
	mixer.Render(out)
	require.Equal(t, []float32{0, 0, 0}, out)
	require.Zero(t, endedCalls)
}

func TestMixerClampsSum(t *testing.T) {
	mixer := NewMixer(1000)
	_, _ = mixer.Schedule([]float32{0.8}, 0, nil)
	_, _ = mixer.Schedule([]float32{0.8}, 0, nil)

	out := make([]float32, 1)
	mixer.Render(out)
	require.Equal(t, float32(1), out[0])
}

func TestMixerRejectsScheduleAfterClose(t *testing.T) {
	mixer := NewMixer(1000)
	require.NoError(t, mixer.Close())
	_, err := mixer.Schedule([]float32{0.1}, 0, nil)
	require.ErrorIs(t, err, ErrOutputClosed)
}

func TestWritePCM16WAVHeader(t *testing.T) {
	var buf bytes.Buffer
	pcm := []byte{1, 2, 3, 4}
	require.NoError(t, WritePCM16WAV(&buf, pcm, CaptureSampleRate, 1))

	data := buf.Bytes()
	require.Len(t, data, 48)
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, uint32(40), binary.LittleEndian.Uint32(data[4:8]))
	require.Equal(t, "WAVE", string(data[8:12]))
	require.Equal(t, uint32(CaptureSampleRate), binary.LittleEndian.Uint32(data[24:28]))
	require.Equal(t, uint32(4), binary.LittleEndian.Uint32(data[40:44]))
	require.Equal(t, pcm, data[44:])
}
