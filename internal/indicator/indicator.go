// Package indicator mirrors conversation state through desktop notifications and audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/conversa/internal/config"
	"github.com/rbright/conversa/internal/fsm"
)

const (
	dispatchTimeout = 400 * time.Millisecond
	queueSize       = 16
	// Notifications for open states stay until replaced or dismissed.
	persistentTimeoutMS = 0
)

// Notifier is the runtime indicator. State changes arrive from the
// conversation's goroutines and are dispatched on a single worker so callers
// never block on busctl or audio playback.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	ops  chan func(context.Context)
	done chan struct{}
	once sync.Once

	mu                    sync.Mutex
	closed                bool
	last                  fsm.State
	desktopNotificationID uint32

	soundMu sync.Mutex
	cues    sync.WaitGroup
}

// New creates a notifier from config and starts its dispatch worker.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	n := &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		ops:      make(chan func(context.Context), queueSize),
		done:     make(chan struct{}),
		last:     fsm.StateIdle,
	}
	go n.loop()
	return n
}

// ShowState updates the notification for state and plays the matching cue.
func (n *Notifier) ShowState(ctx context.Context, state fsm.State) {
	n.mu.Lock()
	prev := n.last
	n.last = state
	n.mu.Unlock()

	if kind, ok := cueFor(prev, state); ok {
		n.playCue(kind)
	}
	if !n.cfg.Enable || prev == state {
		return
	}

	switch state {
	case fsm.StateIdle:
		n.enqueue(n.dismiss)
	case fsm.StateError:
		n.ShowError(ctx, "")
	default:
		text := n.messages.text(state)
		n.enqueue(func(ctx context.Context) error {
			return n.notifyDesktop(ctx, notification{
				icon:      iconActive,
				summary:   text,
				urgency:   urgencyNormal,
				timeoutMS: persistentTimeoutMS,
			})
		})
	}
}

// ShowError displays an error message that expires after the configured timeout.
func (n *Notifier) ShowError(_ context.Context, text string) {
	if !n.cfg.Enable {
		return
	}
	if strings.TrimSpace(text) == "" {
		text = n.messages.text(fsm.StateError)
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	n.enqueue(func(ctx context.Context) error {
		return n.notifyDesktop(ctx, notification{
			icon:      iconError,
			summary:   text,
			urgency:   urgencyCritical,
			timeoutMS: timeout,
		})
	})
}

// Hide dismisses the active notification.
func (n *Notifier) Hide(context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.enqueue(n.dismiss)
}

// Close drains queued notifications and waits for cues still playing.
func (n *Notifier) Close() {
	n.once.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.ops)
		n.mu.Unlock()
		<-n.done
		n.cues.Wait()
	})
}

func (n *Notifier) loop() {
	defer close(n.done)
	for op := range n.ops {
		op(context.Background())
	}
}

// enqueue hands fn to the worker, dropping it when the queue is full.
func (n *Notifier) enqueue(fn func(context.Context) error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.ops <- func(ctx context.Context) { n.run(ctx, fn) }:
	default:
		n.log("indicator queue full", errQueueFull)
	}
}

// notifyDesktop sends note in place of the current notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, note notification) error {
	n.mu.Lock()
	note.replaceID = n.desktopNotificationID
	n.mu.Unlock()

	note.appName = strings.TrimSpace(n.cfg.DesktopAppName)
	if note.appName == "" {
		note.appName = "conversa"
	}

	id, err := desktopNotify(ctx, note)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

// dismiss closes the current desktop notification ID when present.
func (n *Notifier) dismiss(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.cues.Add(1)
	go func() {
		defer n.cues.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), cueTimeout)
		defer cancel()
		if err := emitCue(ctx, kind, n.cfg); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// cueFor picks the cue for a state change, if any.
func cueFor(prev fsm.State, next fsm.State) (cueKind, bool) {
	switch {
	case prev == next:
		return 0, false
	case prev == fsm.StateConnecting && next == fsm.StateListening:
		return cueStart, true
	case next == fsm.StateError:
		return cueError, true
	case next == fsm.StateIdle && (fsm.Active(prev) || prev == fsm.StateConnecting):
		return cueStop, true
	default:
		return 0, false
	}
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
