package audio

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeFrameClampsAndOrdersLittleEndian(t *testing.T) {
	frame := EncodeFrame([]float32{0, 1.5, -2, 0.5}, CaptureSampleRate, EncodingPCM16)
	require.Equal(t, EncodingPCM16, frame.Encoding)
	require.Equal(t, CaptureSampleRate, frame.SampleRate)
	require.Equal(t, []byte{
		0x00, 0x00,
		0xff, 0x7f,
		0x00, 0x80,
		0x00, 0x40,
	}, frame.Data)
}

func TestEncodeFrameBase64(t *testing.T) {
	frame := EncodeFrame([]float32{0, 0.5}, CaptureSampleRate, EncodingBase64)
	require.Equal(t, EncodingBase64, frame.Encoding)

	raw, err := base64.StdEncoding.DecodeString(string(frame.Data))
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x40}, raw)
}

func TestDecodeFrameRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name   string
		frame  Frame
		reason string
	}{
		{name: "empty", frame: Frame{Encoding: EncodingPCM16}, reason: "empty payload"},
		{name: "odd length", frame: Frame{Data: []byte{1, 2, 3}, Encoding: EncodingPCM16}, reason: "odd byte length"},
		{name: "bad base64", frame: Frame{Data: []byte("%%%"), Encoding: EncodingBase64}, reason: "invalid base64"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeFrame(tc.frame)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrMalformedChunk)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			require.Equal(t, tc.reason, decodeErr.Reason)
		})
	}
}

func TestDecodeFrameRoundTripsWithinQuantization(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		samples := rapid.SliceOfN(rapid.Float32Range(-1, 0.999), 1, 512).Draw(rt, "samples")
		encoding := rapid.SampledFrom([]Encoding{EncodingBase64, EncodingPCM16}).Draw(rt, "encoding")

		decoded, err := DecodeFrame(EncodeFrame(samples, CaptureSampleRate, encoding))
		if err != nil {
			rt.Fatalf("decode: %v", err)
		}
		if len(decoded) != len(samples) {
			rt.Fatalf("length %d != %d", len(decoded), len(samples))
		}
		for i := range samples {
			diff := decoded[i] - samples[i]
			if diff < -1.0/16384 || diff > 1.0/16384 {
				rt.Fatalf("sample %d drifted: %f vs %f", i, decoded[i], samples[i])
			}
		}
	})
}

func TestParseEncoding(t *testing.T) {
	enc, err := ParseEncoding("")
	require.NoError(t, err)
	require.Equal(t, EncodingBase64, enc)

	enc, err = ParseEncoding("Binary")
	require.NoError(t, err)
	require.Equal(t, EncodingPCM16, enc)

	_, err = ParseEncoding("opus")
	require.Error(t, err)
}

func TestDurationAndMIMEType(t *testing.T) {
	require.Equal(t, time.Second, Duration(24000, PlaybackSampleRate))
	require.Equal(t, 256*time.Millisecond, Duration(4096, CaptureSampleRate))
	require.Equal(t, time.Duration(0), Duration(10, 0))
	require.Equal(t, "audio/pcm;rate=16000", MIMEType(CaptureSampleRate))
}
