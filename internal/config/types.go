// Package config resolves, parses, validates, and defaults conversa configuration.
package config

// Config is the fully materialized runtime configuration used by conversa.
type Config struct {
	Live      LiveConfig
	Audio     AudioConfig
	Profile   string
	Profiles  map[string]Profile
	History   HistoryConfig
	Metrics   MetricsConfig
	Indicator IndicatorConfig
	Geocode   GeocodeConfig
	Debug     DebugConfig
}

// LiveConfig selects the remote conversation model and how to reach it.
type LiveConfig struct {
	Provider      string
	Endpoint      string
	Model         string
	Voice         string
	APIKeyEnv     string
	DialTimeoutMS int
	TTSModel      string
}

// AudioConfig controls device selection and the capture/playback formats.
type AudioConfig struct {
	Backend            string
	Input              string
	Fallback           string
	CaptureSampleRate  int
	PlaybackSampleRate int
	FrameSamples       int
	FrameEncoding      string
	QueueFrames        int
}

// Profile is one named conversation persona.
type Profile struct {
	Name              string
	Label             string
	Role              string
	SystemInstruction string
}

// HistoryConfig controls transcript persistence.
type HistoryConfig struct {
	Enable     bool
	Path       string
	MinEntries int
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string
}

// IndicatorConfig controls desktop notifications and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	DesktopAppName string
	SoundEnable    bool
	SoundStartFile string
	SoundStopFile  string
	SoundErrorFile string
	CuePlayer      CommandConfig
	ErrorTimeoutMS int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// GeocodeConfig points at a Nominatim-compatible reverse geocoder.
type GeocodeConfig struct {
	Endpoint  string
	UserAgent string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	AudioDump bool
	EventDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
