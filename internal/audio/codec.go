package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Encoding names how a Frame's payload bytes are laid out.
type Encoding string

const (
	// EncodingBase64 is PCM16 LE wrapped in standard base64 text.
	EncodingBase64 Encoding = "base64"
	// EncodingPCM16 is raw PCM16 LE bytes.
	EncodingPCM16 Encoding = "pcm16"
)

const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
	DefaultBlockSize   = 4096
)

// ErrMalformedChunk marks audio payloads that cannot be turned into samples.
var ErrMalformedChunk = errors.New("malformed audio chunk")

// Frame is one encoded block of mono PCM16 audio.
type Frame struct {
	Data       []byte
	Encoding   Encoding
	SampleRate int
}

// MIMEType returns the media type remote services expect for PCM16 at rate.
func MIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// ParseEncoding normalizes a configured frame encoding name.
func ParseEncoding(raw string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(raw))) {
	case "", EncodingBase64:
		return EncodingBase64, nil
	case EncodingPCM16, "binary":
		return EncodingPCM16, nil
	default:
		return "", fmt.Errorf("unknown frame encoding %q", raw)
	}
}

// DecodeError reports a chunk that was rejected during decode.
type DecodeError struct {
	Size   int
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode audio chunk (%d bytes): %s: %v", e.Size, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode audio chunk (%d bytes): %s", e.Size, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMalformedChunk
}

// Is lets errors.Is match ErrMalformedChunk for every DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedChunk
}

// EncodeFrame converts float samples in [-1, 1] to a PCM16 LE frame.
// Out-of-range samples are clamped.
func EncodeFrame(samples []float32, sampleRate int, encoding Encoding) Frame {
	pcm := FloatToPCM16(samples)
	if encoding == EncodingBase64 {
		encoded := make([]byte, base64.StdEncoding.EncodedLen(len(pcm)))
		base64.StdEncoding.Encode(encoded, pcm)
		return Frame{Data: encoded, Encoding: EncodingBase64, SampleRate: sampleRate}
	}
	return Frame{Data: pcm, Encoding: EncodingPCM16, SampleRate: sampleRate}
}

// FloatToPCM16 converts float samples to little-endian signed 16-bit PCM.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(sample)))
	}
	return out
}

func floatToInt16(sample float32) int16 {
	if math.IsNaN(float64(sample)) {
		return 0
	}
	if sample >= 1 {
		return math.MaxInt16
	}
	if sample <= -1 {
		return math.MinInt16
	}
	return int16(sample * 32768)
}

// PCM returns the frame payload as raw PCM16 LE.
func (f Frame) PCM() ([]byte, error) {
	if f.Encoding != EncodingBase64 {
		return f.Data, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(f.Data))
	if err != nil {
		return nil, &DecodeError{Size: len(f.Data), Reason: "invalid base64", Err: err}
	}
	return decoded, nil
}

// DecodeFrame turns an inbound frame into float samples in [-1, 1).
func DecodeFrame(frame Frame) ([]float32, error) {
	pcm, err := frame.PCM()
	if err != nil {
		return nil, err
	}
	return PCM16ToFloat(pcm)
}

// PCM16ToFloat converts little-endian signed 16-bit PCM to float samples.
func PCM16ToFloat(pcm []byte) ([]float32, error) {
	if len(pcm) == 0 {
		return nil, &DecodeError{Size: 0, Reason: "empty payload"}
	}
	if len(pcm)%2 != 0 {
		return nil, &DecodeError{Size: len(pcm), Reason: "odd byte length"}
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out, nil
}

// Duration returns how long n mono samples last at sampleRate.
func Duration(samples int, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
