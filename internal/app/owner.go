package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/conversa/internal/config"
	"github.com/rbright/conversa/internal/fsm"
	"github.com/rbright/conversa/internal/history"
	"github.com/rbright/conversa/internal/indicator"
	"github.com/rbright/conversa/internal/ipc"
	"github.com/rbright/conversa/internal/metrics"
	"github.com/rbright/conversa/internal/pipeline"
	"github.com/rbright/conversa/internal/session"
	"github.com/rbright/conversa/internal/transcript"
)

const (
	acquireProbeTimeout = 180 * time.Millisecond
	acquireRetries      = 8
)

var errAlreadyRunning = errors.New("a conversa session is already running")

func (r Runner) commandToggle(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandToggle}, forwardTimeout)
	if handled {
		return r.printForwarded(resp, err)
	}

	code, err := r.own(ctx, socketPath, cfg, logger)
	if errors.Is(err, ipc.ErrAlreadyRunning) {
		// Lost the race for the socket; the winner owns the conversation.
		resp, _, forwardErr := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandToggle}, forwardTimeout)
		return r.printForwarded(resp, forwardErr)
	}
	return code
}

func (r Runner) commandStart(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if _, handled, _ := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, forwardTimeout); handled {
		fmt.Fprintf(r.Stderr, "error: %v\n", errAlreadyRunning)
		return 1
	}

	code, err := r.own(ctx, socketPath, cfg, logger)
	if errors.Is(err, ipc.ErrAlreadyRunning) {
		fmt.Fprintf(r.Stderr, "error: %v\n", errAlreadyRunning)
		return 1
	}
	return code
}

func (r Runner) printForwarded(resp ipc.Response, err error) int {
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// own takes the runtime socket and runs one conversation until it ends.
// ipc.ErrAlreadyRunning is returned unprinted so callers can decide.
func (r Runner) own(ctx context.Context, socketPath string, cfg config.Config, logger *slog.Logger) (int, error) {
	profile, err := cfg.ActiveProfile()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1, err
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		ProbeTimeout: acquireProbeTimeout,
		Retries:      acquireRetries,
	})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			return 1, err
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1, err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	m := metrics.New()
	notifier := indicator.New(cfg.Indicator, logger)
	defer notifier.Close()

	opts := session.Options{
		Profile:    profile,
		MinEntries: cfg.History.MinEntries,
		Indicator:  notifier,
		Logger:     logger,
	}

	if cfg.History.Enable {
		store, err := openHistory(cfg)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1, err
		}
		defer func() { _ = store.Close() }()
		opts.Committer = session.StoreCommitter{Store: store}
	}

	announcer, err := pipeline.NewAnnouncer(ctx, cfg, logger)
	if err != nil {
		logger.Warn("location announcements disabled", "error", err.Error())
	} else if announcer != nil {
		opts.Locator = announcer
	}

	// The controller observes states emitted by the conversation it drives.
	var controller *session.Controller
	conv, err := pipeline.Build(ctx, pipeline.Options{
		Config:  cfg,
		Profile: profile,
		Metrics: m,
		Logger:  logger,
		OnState: func(state fsm.State) {
			if controller != nil {
				controller.ObserveState(state)
			}
		},
		Dialer:  r.Dialer,
		Devices: r.Devices,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1, err
	}
	defer conv.Release()

	opts.Conversation = conv
	controller = session.NewController(opts)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(runCtx)

	var result session.Result
	group.Go(func() error {
		return ipc.Serve(groupCtx, listener, controller)
	})
	group.Go(func() error {
		return serveMetrics(groupCtx, cfg.Metrics.Addr, m, logger)
	})
	group.Go(func() error {
		result = controller.Run(groupCtx)
		cancel()
		return nil
	})
	serveErr := group.Wait()

	logSessionResult(logger, result)

	if serveErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", serveErr)
		return 1, serveErr
	}

	if text := strings.TrimSpace(transcript.Render(result.Entries, transcript.Options{})); text != "" {
		fmt.Fprintln(r.Stdout, text)
	}
	if result.RecordID != 0 {
		fmt.Fprintf(r.Stdout, "saved as #%d\n", result.RecordID)
	}

	if result.Err != nil {
		if errors.Is(result.Err, context.Canceled) && ctx.Err() != nil {
			fmt.Fprintln(r.Stdout, "closed")
			return 0, nil
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1, result.Err
	}
	return 0, nil
}

func openHistory(cfg config.Config) (*history.Store, error) {
	path, err := cfg.HistoryPath()
	if err != nil {
		return nil, err
	}
	return history.Open(path)
}

// serveMetrics keeps the conversation alive when the scrape endpoint fails.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) error {
	if err := metrics.Serve(ctx, addr, m, logger); err != nil {
		logger.Warn("metrics endpoint disabled", "addr", addr, "error", err.Error())
	}
	return nil
}
