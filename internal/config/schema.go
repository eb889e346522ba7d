package config

import (
	"fmt"
	"strings"
)

// fileConfig is the on-disk shape shared by the JSONC and YAML parsers.
// Pointer fields distinguish "unset" from zero values so defaults survive.
type fileConfig struct {
	Live      *fileLive              `json:"live" yaml:"live"`
	Audio     *fileAudio             `json:"audio" yaml:"audio"`
	Profile   *string                `json:"profile" yaml:"profile"`
	Profiles  map[string]fileProfile `json:"profiles" yaml:"profiles"`
	History   *fileHistory           `json:"history" yaml:"history"`
	Metrics   *fileMetrics           `json:"metrics" yaml:"metrics"`
	Indicator *fileIndicator         `json:"indicator" yaml:"indicator"`
	Geocode   *fileGeocode           `json:"geocode" yaml:"geocode"`
	Debug     *fileDebug             `json:"debug" yaml:"debug"`
}

type fileLive struct {
	Provider      *string `json:"provider" yaml:"provider"`
	Endpoint      *string `json:"endpoint" yaml:"endpoint"`
	Model         *string `json:"model" yaml:"model"`
	Voice         *string `json:"voice" yaml:"voice"`
	APIKeyEnv     *string `json:"api_key_env" yaml:"api_key_env"`
	DialTimeoutMS *int    `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
	TTSModel      *string `json:"tts_model" yaml:"tts_model"`
}

type fileAudio struct {
	Backend            *string `json:"backend" yaml:"backend"`
	Input              *string `json:"input" yaml:"input"`
	Fallback           *string `json:"fallback" yaml:"fallback"`
	CaptureSampleRate  *int    `json:"capture_sample_rate" yaml:"capture_sample_rate"`
	PlaybackSampleRate *int    `json:"playback_sample_rate" yaml:"playback_sample_rate"`
	FrameSamples       *int    `json:"frame_samples" yaml:"frame_samples"`
	FrameEncoding      *string `json:"frame_encoding" yaml:"frame_encoding"`
	QueueFrames        *int    `json:"queue_frames" yaml:"queue_frames"`
}

type fileProfile struct {
	Label             *string `json:"label" yaml:"label"`
	Role              *string `json:"role" yaml:"role"`
	SystemInstruction *string `json:"system_instruction" yaml:"system_instruction"`
}

type fileHistory struct {
	Enable     *bool   `json:"enable" yaml:"enable"`
	Path       *string `json:"path" yaml:"path"`
	MinEntries *int    `json:"min_entries" yaml:"min_entries"`
}

type fileMetrics struct {
	Addr *string `json:"addr" yaml:"addr"`
}

type fileIndicator struct {
	Enable         *bool   `json:"enable" yaml:"enable"`
	DesktopAppName *string `json:"desktop_app_name" yaml:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable" yaml:"sound_enable"`
	SoundStartFile *string `json:"sound_start_file" yaml:"sound_start_file"`
	SoundStopFile  *string `json:"sound_stop_file" yaml:"sound_stop_file"`
	SoundErrorFile *string `json:"sound_error_file" yaml:"sound_error_file"`
	CuePlayer      *string `json:"cue_player" yaml:"cue_player"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms" yaml:"error_timeout_ms"`
}

type fileGeocode struct {
	Endpoint  *string `json:"endpoint" yaml:"endpoint"`
	UserAgent *string `json:"user_agent" yaml:"user_agent"`
}

type fileDebug struct {
	AudioDump *bool `json:"audio_dump" yaml:"audio_dump"`
	EventDump *bool `json:"event_dump" yaml:"event_dump"`
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func (payload fileConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if live := payload.Live; live != nil {
		setString(&cfg.Live.Provider, live.Provider)
		setString(&cfg.Live.Endpoint, live.Endpoint)
		setString(&cfg.Live.Model, live.Model)
		setString(&cfg.Live.Voice, live.Voice)
		setString(&cfg.Live.APIKeyEnv, live.APIKeyEnv)
		setInt(&cfg.Live.DialTimeoutMS, live.DialTimeoutMS)
		setString(&cfg.Live.TTSModel, live.TTSModel)
	}

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Backend, a.Backend)
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
		setInt(&cfg.Audio.CaptureSampleRate, a.CaptureSampleRate)
		setInt(&cfg.Audio.PlaybackSampleRate, a.PlaybackSampleRate)
		setInt(&cfg.Audio.FrameSamples, a.FrameSamples)
		setString(&cfg.Audio.FrameEncoding, a.FrameEncoding)
		setInt(&cfg.Audio.QueueFrames, a.QueueFrames)
	}

	setString(&cfg.Profile, payload.Profile)

	if payload.Profiles != nil {
		profiles := make(map[string]Profile, len(cfg.Profiles)+len(payload.Profiles))
		for name, profile := range cfg.Profiles {
			profiles[name] = profile
		}
		for rawName, override := range payload.Profiles {
			name := strings.TrimSpace(rawName)
			if name == "" {
				return nil, fmt.Errorf("profiles contains an empty profile name")
			}
			profile, builtin := profiles[name]
			if !builtin {
				profile = Profile{Name: name, Label: "Paciente", Role: RolePatient}
			}
			setString(&profile.Label, override.Label)
			setString(&profile.Role, override.Role)
			if override.SystemInstruction != nil {
				profile.SystemInstruction = strings.TrimSpace(*override.SystemInstruction)
			} else if !builtin {
				return nil, fmt.Errorf("profiles.%s.system_instruction is required", name)
			}
			if builtin && override.SystemInstruction != nil {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("profiles.%s overrides the built-in system instruction", name)})
			}
			profiles[name] = profile
		}
		cfg.Profiles = profiles
	}

	if h := payload.History; h != nil {
		setBool(&cfg.History.Enable, h.Enable)
		setString(&cfg.History.Path, h.Path)
		setInt(&cfg.History.MinEntries, h.MinEntries)
	}

	if m := payload.Metrics; m != nil {
		setString(&cfg.Metrics.Addr, m.Addr)
	}

	if ind := payload.Indicator; ind != nil {
		setBool(&cfg.Indicator.Enable, ind.Enable)
		setString(&cfg.Indicator.DesktopAppName, ind.DesktopAppName)
		setBool(&cfg.Indicator.SoundEnable, ind.SoundEnable)
		setString(&cfg.Indicator.SoundStartFile, ind.SoundStartFile)
		setString(&cfg.Indicator.SoundStopFile, ind.SoundStopFile)
		setString(&cfg.Indicator.SoundErrorFile, ind.SoundErrorFile)
		setInt(&cfg.Indicator.ErrorTimeoutMS, ind.ErrorTimeoutMS)
		if ind.CuePlayer != nil {
			cmd, err := ParseCommand(*ind.CuePlayer)
			if err != nil {
				return nil, fmt.Errorf("invalid indicator.cue_player: %w", err)
			}
			cfg.Indicator.CuePlayer = cmd
		}
	}

	if g := payload.Geocode; g != nil {
		setString(&cfg.Geocode.Endpoint, g.Endpoint)
		setString(&cfg.Geocode.UserAgent, g.UserAgent)
	}

	if d := payload.Debug; d != nil {
		setBool(&cfg.Debug.AudioDump, d.AudioDump)
		setBool(&cfg.Debug.EventDump, d.EventDump)
	}

	return warnings, nil
}
