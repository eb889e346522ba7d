package config

const (
	ProviderGemini = "gemini"
	ProviderRelay  = "relay"

	defaultCuePlayer = "pw-play --media-role Notification"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Live: LiveConfig{
			Provider:      ProviderGemini,
			Model:         "gemini-2.5-flash-native-audio-preview-09-2025",
			Voice:         "Zephyr",
			APIKeyEnv:     "GEMINI_API_KEY",
			DialTimeoutMS: 15000,
			TTSModel:      "gemini-2.5-flash-preview-tts",
		},
		Audio: AudioConfig{
			Backend:            "pulse",
			Input:              "default",
			Fallback:           "default",
			CaptureSampleRate:  16000,
			PlaybackSampleRate: 24000,
			FrameSamples:       4096,
			FrameEncoding:      "base64",
			QueueFrames:        32,
		},
		Profile:  ProfileTriage,
		Profiles: builtinProfiles(),
		History: HistoryConfig{
			Enable:     true,
			MinEntries: 2,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			DesktopAppName: "conversa",
			SoundEnable:    true,
			CuePlayer:      mustParseCommand(defaultCuePlayer),
			ErrorTimeoutMS: 4000,
		},
		Geocode: GeocodeConfig{
			Endpoint: "https://nominatim.openstreetmap.org",
		},
		Debug: DebugConfig{},
	}
}
