package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rbright/conversa/internal/audio"
	"github.com/rbright/conversa/internal/capture"
	"github.com/rbright/conversa/internal/config"
	"github.com/rbright/conversa/internal/live"
)

// debugSinks writes optional troubleshooting artifacts. A nil receiver is a no-op.
type debugSinks struct {
	audioDump  bool
	sampleRate int
	logger     *slog.Logger

	mu     sync.Mutex
	events *os.File
	enc    *json.Encoder
}

type eventRecord struct {
	At    time.Time `json:"at"`
	Kind  string    `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Bytes int       `json:"bytes,omitempty"`
	Error string    `json:"error,omitempty"`
}

func openDebugSinks(cfg config.DebugConfig, sampleRate int, logger *slog.Logger) (*debugSinks, error) {
	if !cfg.AudioDump && !cfg.EventDump {
		return nil, nil
	}
	sinks := &debugSinks{audioDump: cfg.AudioDump, sampleRate: sampleRate, logger: logger}
	if cfg.EventDump {
		file, err := createDebugFile("events", "jsonl")
		if err != nil {
			return nil, err
		}
		sinks.events = file
		sinks.enc = json.NewEncoder(file)
	}
	return sinks, nil
}

// recordEvent appends one inbound event to the JSONL dump.
func (d *debugSinks) recordEvent(event live.Event) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enc == nil {
		return
	}
	rec := eventRecord{At: time.Now().UTC(), Kind: string(event.Kind), Text: event.Text, Bytes: len(event.Audio.Data)}
	if event.Err != nil {
		rec.Error = event.Err.Error()
	}
	if err := d.enc.Encode(rec); err != nil {
		d.logger.Warn("unable to write debug event dump", "error", err)
	}
}

// writeCapture dumps everything the microphone captured during one run.
func (d *debugSinks) writeCapture(pipe *capture.Pipeline) {
	if d == nil || !d.audioDump || pipe == nil {
		return
	}
	rawPCM := pipe.RawPCM()
	if len(rawPCM) == 0 {
		return
	}

	file, err := createDebugFile("audio", "wav")
	if err != nil {
		d.logger.Warn(fmt.Sprintf("unable to create debug audio dump: %v", err))
		return
	}
	defer file.Close()

	if err := audio.WritePCM16WAV(file, rawPCM, d.sampleRate, 1); err != nil {
		d.logger.Warn(fmt.Sprintf("unable to write debug audio dump: %v", err))
		return
	}
	d.logger.Debug("debug audio dump written", "path", file.Name(), "bytes", len(rawPCM))
}

func (d *debugSinks) close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.events != nil {
		_ = d.events.Close()
		d.events = nil
		d.enc = nil
	}
}

// createDebugFile creates timestamped debug artifacts under state/conversa/debug.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	debugDir := filepath.Join(stateDir, "conversa", "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// resolveStateDir returns XDG_STATE_HOME fallback path for debug artifacts.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}
