// Package app dispatches CLI commands: it forwards them to a running
// conversation over IPC or owns a new conversation itself.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/rbright/conversa/internal/audio"
	"github.com/rbright/conversa/internal/cli"
	"github.com/rbright/conversa/internal/config"
	"github.com/rbright/conversa/internal/doctor"
	"github.com/rbright/conversa/internal/ipc"
	"github.com/rbright/conversa/internal/live"
	"github.com/rbright/conversa/internal/logging"
	"github.com/rbright/conversa/internal/session"
	"github.com/rbright/conversa/internal/version"
)

const (
	forwardTimeout = 220 * time.Millisecond
	// locate waits for geocoding and speech synthesis in the owner.
	locateForwardTimeout = 35 * time.Second
)

// Runner executes one CLI invocation.
//
// Dialer and Devices replace the configured provider and the local sound
// server when set.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	Dialer  live.Dialer
	Devices live.Devices
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("conversa"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("conversa"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	loadDotEnv(parsed.ConfigPath, logger)

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}
	if parsed.Profile != "" {
		cfgLoaded.Config.Profile = parsed.Profile
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"profile", cfgLoaded.Config.Profile,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandHistory:
		return r.commandHistory(cfgLoaded.Config, parsed.HistoryID)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandClose:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandClose})
	case cli.CommandTranscript:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandTranscript})
	case cli.CommandNote:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandNote, Text: parsed.Text})
	case cli.CommandLocate:
		lat, lon := parsed.Lat, parsed.Lon
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandLocate, Lat: &lat, Lon: &lon})
	case cli.CommandToggle:
		return r.commandToggle(ctx, cfgLoaded.Config, logger)
	case cli.CommandStart:
		return r.commandStart(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// loadDotEnv reads .env next to the config file without overriding the
// environment. A missing file is not an error.
func loadDotEnv(explicitPath string, logger *slog.Logger) {
	configPath, err := config.ResolvePath(explicitPath)
	if err != nil {
		return
	}
	path := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("load .env failed", "path", path, "error", err.Error())
		}
		return
	}
	logger.Debug("loaded .env", "path", path)
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s %s | state=%s | available=%s | muted=%s\n",
			defaultMark,
			audio.Describe(device),
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, forwardTimeout)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	status, err := session.DecodeStatus(resp)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if status.State == "" {
		status.State = "idle"
	}
	fmt.Fprintln(r.Stdout, status.State)
	if status.Error != "" {
		fmt.Fprintf(r.Stdout, "error: %s\n", status.Error)
	}
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	timeout := forwardTimeout
	if req.Command == ipc.CommandLocate {
		timeout = locateForwardTimeout
	}

	resp, handled, err := tryForward(ctx, socketPath, req, timeout)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active conversa session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"session_id", result.SessionID,
		"profile", result.Profile,
		"state", result.State,
		"closed", result.Closed,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"entries", len(result.Entries),
		"frames_sent", result.Stats.FramesSent,
		"frames_dropped", result.Stats.FramesDropped,
		"chunks_played", result.Stats.ChunksPlayed,
		"chunks_rejected", result.Stats.ChunksRejected,
		"record_id", result.RecordID,
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.Unavailable(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}
