// Package pipeline composes runtime config into a ready-to-start conversation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/conversa/internal/announce"
	"github.com/rbright/conversa/internal/audio"
	"github.com/rbright/conversa/internal/capture"
	"github.com/rbright/conversa/internal/config"
	"github.com/rbright/conversa/internal/fsm"
	"github.com/rbright/conversa/internal/gemini"
	"github.com/rbright/conversa/internal/live"
	"github.com/rbright/conversa/internal/playback"
	"github.com/rbright/conversa/internal/relay"
)

// Options selects the collaborators of one conversation. Dialer and Devices
// default to the configured provider and the local sound server.
type Options struct {
	Config  config.Config
	Profile config.Profile
	Metrics live.Metrics
	Logger  *slog.Logger
	OnState func(fsm.State)

	Dialer  live.Dialer
	Devices live.Devices
}

// Conversation is a live session plus the debug sinks attached to it.
type Conversation struct {
	*live.Session

	debug *debugSinks
}

// Build wires a live session from config. Nothing is opened until Start.
func Build(ctx context.Context, opts Options) (*Conversation, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	encoding, err := audio.ParseEncoding(cfg.Audio.FrameEncoding)
	if err != nil {
		return nil, err
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer, err = NewDialer(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	devices := opts.Devices
	if devices == nil {
		devices = NewDevices(cfg.Audio, logger)
	}

	debug, err := openDebugSinks(cfg.Debug, cfg.Audio.CaptureSampleRate, logger)
	if err != nil {
		return nil, err
	}

	session := live.New(live.Options{
		Dialer:  dialer,
		Devices: devices,
		Setup:   SetupFor(cfg, opts.Profile, encoding),
		Capture: capture.Options{
			Encoding:    encoding,
			SampleRate:  cfg.Audio.CaptureSampleRate,
			QueueFrames: cfg.Audio.QueueFrames,
			Record:      cfg.Debug.AudioDump,
		},
		PlaybackRate:     cfg.Audio.PlaybackSampleRate,
		DialTimeout:      time.Duration(cfg.Live.DialTimeoutMS) * time.Millisecond,
		Logger:           logger,
		Metrics:          opts.Metrics,
		OnState:          opts.OnState,
		OnEvent:          debug.recordEvent,
		OnCaptureStopped: debug.writeCapture,
	})

	return &Conversation{Session: session, debug: debug}, nil
}

// Release closes debug sinks. The session itself must already be closed.
func (c *Conversation) Release() {
	c.debug.close()
}

// SetupFor builds the connection setup for profile.
func SetupFor(cfg config.Config, profile config.Profile, encoding audio.Encoding) live.Setup {
	return live.Setup{
		Model:             cfg.Live.Model,
		Voice:             cfg.Live.Voice,
		SystemInstruction: strings.TrimSpace(profile.SystemInstruction),
		InputSampleRate:   cfg.Audio.CaptureSampleRate,
		OutputSampleRate:  cfg.Audio.PlaybackSampleRate,
		Encoding:          encoding,
	}
}

// NewDialer returns the transport for the configured provider.
func NewDialer(ctx context.Context, cfg config.Config) (live.Dialer, error) {
	switch cfg.Live.Provider {
	case config.ProviderRelay:
		return relay.Dialer{Endpoint: cfg.Live.Endpoint, APIKey: cfg.APIKey()}, nil
	case config.ProviderGemini, "":
		dialer, err := gemini.NewDialer(ctx, gemini.Config{APIKey: cfg.APIKey(), Endpoint: cfg.Live.Endpoint})
		if err != nil {
			return nil, fmt.Errorf("%w (set %s)", err, cfg.Live.APIKeyEnv)
		}
		return dialer, nil
	default:
		return nil, fmt.Errorf("unknown live provider %q", cfg.Live.Provider)
	}
}

// NewAnnouncer builds the location announcer. It returns nil without an API
// key since speech synthesis always goes through Gemini.
func NewAnnouncer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*announce.Announcer, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, nil
	}
	var endpoint string
	if cfg.Live.Provider != config.ProviderRelay {
		endpoint = cfg.Live.Endpoint
	}
	speech, err := gemini.NewSynthesizer(ctx, gemini.Config{APIKey: key, Endpoint: endpoint}, cfg.Live.TTSModel, cfg.Live.Voice)
	if err != nil {
		return nil, err
	}
	return &announce.Announcer{
		Geocoder: announce.NewGeocoder(cfg.Geocode.Endpoint, cfg.Geocode.UserAgent, nil),
		Speech:   speech,
		Logger:   logger,
	}, nil
}

// Devices opens the configured microphone and the Pulse speaker.
type Devices struct {
	cfg    config.AudioConfig
	logger *slog.Logger
}

// NewDevices returns the local device opener for cfg.
func NewDevices(cfg config.AudioConfig, logger *slog.Logger) *Devices {
	return &Devices{cfg: cfg, logger: logger}
}

func (d *Devices) OpenInput(ctx context.Context) (audio.Source, error) {
	source, warning, err := audio.OpenSource(ctx, audio.SourceConfig{
		Backend:    audio.Backend(d.cfg.Backend),
		Input:      d.cfg.Input,
		Fallback:   d.cfg.Fallback,
		SampleRate: d.cfg.CaptureSampleRate,
		BlockSize:  d.cfg.FrameSamples,
	})
	if err != nil {
		return nil, err
	}
	if warning != "" && d.logger != nil {
		d.logger.Warn(warning)
	}
	if d.logger != nil {
		d.logger.Info("capture device selected", "device", audio.Describe(source.Device()))
	}
	return source, nil
}

func (d *Devices) OpenOutput(context.Context) (playback.Output, error) {
	return audio.OpenSpeaker(d.cfg.PlaybackSampleRate)
}
