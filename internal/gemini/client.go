// Package gemini adapts the Gemini Live and speech generation APIs to conversa's transport interfaces.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	DefaultLiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultTTSModel  = "gemini-2.5-flash-preview-tts"
	DefaultVoice     = "Zephyr"
)

// Config identifies the Gemini API account and endpoint.
type Config struct {
	APIKey     string
	Endpoint   string
	APIVersion string
}

func newClient(ctx context.Context, cfg Config) (*genai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimSpace(cfg.Endpoint),
			APIVersion: strings.TrimSpace(cfg.APIVersion),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

func speechConfig(voice string) *genai.SpeechConfig {
	if strings.TrimSpace(voice) == "" {
		voice = DefaultVoice
	}
	return &genai.SpeechConfig{
		VoiceConfig: &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
		},
	}
}
