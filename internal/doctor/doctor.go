// Package doctor runs readiness diagnostics for config, credentials, audio, and the conversation endpoint.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/conversa/internal/audio"
	"github.com/rbright/conversa/internal/config"
	"github.com/rbright/conversa/internal/version"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com"

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("using defaults (%q not found)", loaded.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkProfile(cfg))
	checks = append(checks, checkEnv(cfg.Live.APIKeyEnv, func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "API key is set", fmt.Sprintf("%s is empty", cfg.Live.APIKeyEnv)))

	if cfg.Indicator.Enable {
		checks = append(checks, checkBinary("busctl", "desktop notifications"))
	}
	if cfg.Indicator.SoundEnable && hasCueFiles(cfg.Indicator) {
		checks = append(checks, checkCommand(cfg.Indicator.CuePlayer.Argv, "indicator.cue_player"))
	}
	if cfg.History.Enable {
		checks = append(checks, checkHistoryPath(cfg))
	}

	checks = append(checks, checkAudioSelection(ctx, cfg))
	checks = append(checks, checkEndpoint(ctx, cfg, &http.Client{Timeout: 3 * time.Second}))

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkProfile(cfg config.Config) Check {
	profile, err := cfg.ActiveProfile()
	if err != nil {
		return Check{Name: "profile", Pass: false, Message: err.Error()}
	}
	return Check{Name: "profile", Pass: true, Message: fmt.Sprintf("%s (%s)", profile.Name, profile.Role)}
}

func hasCueFiles(cfg config.IndicatorConfig) bool {
	return strings.TrimSpace(cfg.SoundStartFile+cfg.SoundStopFile+cfg.SoundErrorFile) != ""
}

// checkHistoryPath verifies the history directory can be created.
func checkHistoryPath(cfg config.Config) Check {
	path, err := cfg.HistoryPath()
	if err != nil {
		return Check{Name: "history", Pass: false, Message: err.Error()}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Check{Name: "history", Pass: false, Message: fmt.Sprintf("cannot create %s: %v", filepath.Dir(path), err)}
	}
	return Check{Name: "history", Pass: true, Message: path}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	if audio.Backend(cfg.Audio.Backend) == audio.BackendPortAudio {
		return Check{Name: "audio.device", Pass: true, Message: "portaudio default input"}
	}
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkEndpoint verifies the conversation endpoint answers HTTP at all.
// Any status counts: the websocket upgrade itself needs credentials.
func checkEndpoint(ctx context.Context, cfg config.Config, client *http.Client) Check {
	target, err := endpointURL(cfg)
	if err != nil {
		return Check{Name: "live.endpoint", Pass: false, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Check{Name: "live.endpoint", Pass: false, Message: err.Error()}
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := client.Do(req)
	if err != nil {
		return Check{Name: "live.endpoint", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	return Check{Name: "live.endpoint", Pass: true, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, target)}
}

func endpointURL(cfg config.Config) (string, error) {
	raw := strings.TrimSpace(cfg.Live.Endpoint)
	if raw == "" {
		if cfg.Live.Provider == config.ProviderRelay {
			return "", fmt.Errorf("live.endpoint is empty")
		}
		return geminiEndpoint, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse live.endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported live.endpoint scheme %q", u.Scheme)
	}
	return u.String(), nil
}
