package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch strings.ToLower(cfg.Live.Provider) {
	case ProviderGemini:
	case ProviderRelay:
		if cfg.Live.Endpoint == "" {
			return nil, fmt.Errorf("live.endpoint must be set when live.provider=relay")
		}
	default:
		return nil, fmt.Errorf("live.provider must be one of: gemini, relay")
	}
	if cfg.Live.Endpoint != "" {
		u, err := url.Parse(cfg.Live.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("live.endpoint: %w", err)
		}
		if strings.EqualFold(cfg.Live.Provider, ProviderRelay) && u.Scheme != "ws" && u.Scheme != "wss" {
			return nil, fmt.Errorf("live.endpoint must use ws:// or wss:// for the relay provider")
		}
	}
	if cfg.Live.Model == "" {
		return nil, fmt.Errorf("live.model must not be empty")
	}
	if cfg.Live.APIKeyEnv == "" {
		return nil, fmt.Errorf("live.api_key_env must not be empty")
	}
	if cfg.Live.DialTimeoutMS <= 0 {
		return nil, fmt.Errorf("live.dial_timeout_ms must be > 0")
	}

	switch strings.ToLower(cfg.Audio.Backend) {
	case "pulse", "portaudio":
	default:
		return nil, fmt.Errorf("audio.backend must be one of: pulse, portaudio")
	}
	if cfg.Audio.CaptureSampleRate <= 0 {
		return nil, fmt.Errorf("audio.capture_sample_rate must be > 0")
	}
	if cfg.Audio.PlaybackSampleRate <= 0 {
		return nil, fmt.Errorf("audio.playback_sample_rate must be > 0")
	}
	if cfg.Audio.FrameSamples <= 0 {
		return nil, fmt.Errorf("audio.frame_samples must be > 0")
	}
	switch strings.ToLower(cfg.Audio.FrameEncoding) {
	case "base64", "pcm16", "binary":
	default:
		return nil, fmt.Errorf("audio.frame_encoding must be one of: base64, pcm16")
	}
	if strings.EqualFold(cfg.Audio.FrameEncoding, "pcm16") || strings.EqualFold(cfg.Audio.FrameEncoding, "binary") {
		if !strings.EqualFold(cfg.Live.Provider, ProviderRelay) {
			warnings = append(warnings, Warning{Message: "audio.frame_encoding=pcm16 only changes the relay wire format; gemini always receives PCM"})
		}
	}
	if cfg.Audio.QueueFrames <= 0 {
		return nil, fmt.Errorf("audio.queue_frames must be > 0")
	}
	if cfg.Audio.CaptureSampleRate != 16000 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("audio.capture_sample_rate=%d; realtime models expect 16000", cfg.Audio.CaptureSampleRate)})
	}

	if _, err := cfg.ActiveProfile(); err != nil {
		return nil, err
	}
	for _, name := range profileNames(cfg.Profiles) {
		profile := cfg.Profiles[name]
		if profile.Role != RolePatient && profile.Role != RoleProfessional {
			return nil, fmt.Errorf("profiles.%s.role must be one of: patient, professional", name)
		}
		if profile.SystemInstruction == "" {
			return nil, fmt.Errorf("profiles.%s.system_instruction must not be empty", name)
		}
	}

	if cfg.History.MinEntries < 0 {
		return nil, fmt.Errorf("history.min_entries must be >= 0")
	}

	if cfg.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			return nil, fmt.Errorf("metrics.addr: %w", err)
		}
	}

	if cfg.Indicator.Enable && cfg.Indicator.DesktopAppName == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	// "#..." disables the player on purpose; anything else must parse to argv.
	if raw := strings.TrimSpace(cfg.Indicator.CuePlayer.Raw); raw != "" && !strings.HasPrefix(raw, "#") && !cfg.Indicator.CuePlayer.Enabled() {
		return nil, fmt.Errorf("indicator.cue_player is configured but empty")
	}
	for _, file := range []struct{ key, path string }{
		{"indicator.sound_start_file", cfg.Indicator.SoundStartFile},
		{"indicator.sound_stop_file", cfg.Indicator.SoundStopFile},
		{"indicator.sound_error_file", cfg.Indicator.SoundErrorFile},
	} {
		if file.path == "" {
			continue
		}
		if _, err := os.Stat(ExpandHome(file.path)); err != nil {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("%s %q is not readable; using the synthesized cue", file.key, file.path)})
		}
	}

	if cfg.Geocode.Endpoint != "" {
		if _, err := url.ParseRequestURI(cfg.Geocode.Endpoint); err != nil {
			return nil, fmt.Errorf("geocode.endpoint: %w", err)
		}
	}

	return warnings, nil
}

// ActiveProfile returns the profile selected by cfg.Profile.
func (cfg Config) ActiveProfile() (Profile, error) {
	name := strings.TrimSpace(cfg.Profile)
	if name == "" {
		return Profile{}, fmt.Errorf("profile must not be empty")
	}
	profile, ok := cfg.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(profileNames(cfg.Profiles), ", "))
	}
	if profile.Name == "" {
		profile.Name = name
	}
	return profile, nil
}

// APIKey reads the credential from the environment variable named by live.api_key_env.
func (cfg Config) APIKey() string {
	return strings.TrimSpace(os.Getenv(cfg.Live.APIKeyEnv))
}

func profileNames(profiles map[string]Profile) []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
