package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/rbright/conversa/internal/audio"
)

// Synthesizer turns short sentences into 24 kHz mono speech.
type Synthesizer struct {
	client *genai.Client
	model  string
	voice  string
}

// NewSynthesizer builds a speech generator; empty model and voice use defaults.
func NewSynthesizer(ctx context.Context, cfg Config, model string, voice string) (*Synthesizer, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultTTSModel
	}
	return &Synthesizer{client: client, model: model, voice: voice}, nil
}

// Synthesize returns decoded samples for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig:       speechConfig(s.voice),
	})
	if err != nil {
		return nil, fmt.Errorf("generate speech: %w", err)
	}

	pcm, err := speechPayload(resp)
	if err != nil {
		return nil, err
	}
	return audio.PCM16ToFloat(pcm)
}

func speechPayload(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil {
		return nil, errors.New("empty speech response")
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, errors.New("speech response contained no audio")
}
