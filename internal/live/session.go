// Package live owns one realtime voice conversation: capture out, speech and transcription in.
package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/conversa/internal/audio"
	"github.com/rbright/conversa/internal/capture"
	"github.com/rbright/conversa/internal/fsm"
	"github.com/rbright/conversa/internal/playback"
	"github.com/rbright/conversa/internal/transcript"
)

const defaultDialTimeout = 15 * time.Second

// Options wires a Session to its transport, devices and observers.
type Options struct {
	Dialer  Dialer
	Devices Devices
	Setup   Setup

	Capture          capture.Options
	PlaybackRate     int
	DialTimeout      time.Duration
	Logger           *slog.Logger
	Metrics          Metrics
	OnState          func(fsm.State)
	OnEvent          func(Event)
	OnCaptureStopped func(*capture.Pipeline)
}

// Stats summarizes traffic for the current or last run.
type Stats struct {
	FramesSent     int64
	FramesDropped  int64
	ChunksPlayed   int64
	ChunksRejected int64
}

// Session is the single owner of a conversation's connection, devices and transcript.
// All methods are safe for concurrent use.
type Session struct {
	opts    Options
	logger  *slog.Logger
	metrics Metrics
	agg     *transcript.Aggregator

	mu    sync.Mutex
	state fsm.State
	err   error
	run   *run
	gen   uint64

	framesSent     atomic.Int64
	framesDropped  atomic.Int64
	chunksPlayed   atomic.Int64
	chunksRejected atomic.Int64
}

// run holds the resources of one Start..teardown cycle.
type run struct {
	gen       uint64
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time

	closing atomic.Bool
	sendMu  sync.RWMutex
	// held while an inbound event mutates the transcript or playback
	recvMu  sync.Mutex

	// guarded by Session.mu
	conn  Conn
	pipe  *capture.Pipeline
	sched *playback.Scheduler

	once  sync.Once
	ended chan struct{}
}

// New builds an idle session.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.PlaybackRate <= 0 {
		opts.PlaybackRate = audio.PlaybackSampleRate
	}
	opts.Capture.Logger = logger

	return &Session{
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		agg:     transcript.NewAggregator(),
		state:   fsm.StateIdle,
	}
}

// Status returns the current state.
func (s *Session) Status() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Transcript returns a copy of the ordered conversation so far.
func (s *Session) Transcript() []transcript.Entry {
	return s.agg.Snapshot()
}

// Stats returns traffic counters for the current or last run.
func (s *Session) Stats() Stats {
	return Stats{
		FramesSent:     s.framesSent.Load(),
		FramesDropped:  s.framesDropped.Load(),
		ChunksPlayed:   s.chunksPlayed.Load(),
		ChunksRejected: s.chunksRejected.Load(),
	}
}

// Done is closed when the current run has been torn down.
// With no run in progress the returned channel is already closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.run.ended
}

// AddNote appends a closed professional entry to the transcript.
func (s *Session) AddNote(text string) {
	s.agg.Append(transcript.SpeakerProfessional, text)
}

// Play schedules locally produced samples on the running conversation's output.
func (s *Session) Play(samples []float32) error {
	s.mu.Lock()
	r := s.run
	var sched *playback.Scheduler
	if r != nil && !r.closing.Load() {
		sched = r.sched
	}
	s.mu.Unlock()

	if sched == nil {
		return ErrNotActive
	}
	placement, err := sched.EnqueueSamples(samples)
	if err != nil {
		return err
	}
	s.metrics.ChunkScheduled(placement.Duration)
	return nil
}

// Start opens the conversation and blocks until it is listening or has failed.
//
// A run that is already connecting or open is left untouched and
// ErrAlreadyActive is returned. Close may be called concurrently to abort a
// pending Start, in which case ErrClosed is returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.run != nil {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	if _, err := s.transitionLocked(fsm.EventStart); err != nil {
		s.mu.Unlock()
		return err
	}
	s.gen++
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		gen:       s.gen,
		ctx:       runCtx,
		cancel:    cancel,
		startedAt: time.Now(),
		ended:     make(chan struct{}),
	}
	s.run = r
	s.err = nil
	s.mu.Unlock()

	s.agg.Reset()
	s.resetStats()
	s.metrics.SessionStarted()
	s.notifyState(fsm.StateConnecting)
	s.logger.Info("conversation connecting", "model", s.opts.Setup.Model, "generation", r.gen)

	go func() {
		select {
		case <-runCtx.Done():
			s.closeRun(r, fsm.EventClose, nil)
		case <-r.ended:
		}
	}()

	output, err := s.opts.Devices.OpenOutput(runCtx)
	if err != nil {
		return s.abortStart(r, "output", err)
	}
	sched := playback.New(output, s.opts.PlaybackRate, s.logger)
	if !s.attach(r, func() { r.sched = sched }) {
		_ = sched.Close()
		return ErrClosed
	}

	dialCtx, dialCancel := context.WithTimeout(runCtx, s.opts.DialTimeout)
	conn, err := s.opts.Dialer.Dial(dialCtx, s.opts.Setup)
	dialCancel()
	if err != nil {
		return s.abortStart(r, "dial", err)
	}

	var opened bool
	if !s.attach(r, func() {
		r.conn = conn
		_, terr := s.transitionLocked(fsm.EventOpen)
		opened = terr == nil
	}) {
		_ = conn.Close()
		return ErrClosed
	}
	if opened {
		s.notifyState(fsm.StateListening)
	}
	s.logger.Info("conversation open", "generation", r.gen)

	go s.receiveLoop(r, conn)

	source, err := s.opts.Devices.OpenInput(runCtx)
	if err != nil {
		return s.abortStart(r, "input", err)
	}
	captureOpts := s.opts.Capture
	captureOpts.OnDrop = func() {
		s.framesDropped.Add(1)
		s.metrics.FrameDropped()
	}
	pipe := capture.New(source, captureOpts)
	if !s.attach(r, func() { r.pipe = pipe }) {
		_ = pipe.Stop()
		return ErrClosed
	}
	if err := pipe.Start(runCtx); err != nil {
		return s.abortStart(r, "capture", err)
	}
	if r.closing.Load() {
		// closeRun stops the pipe it took from r
		return ErrClosed
	}

	go s.sendLoop(r, conn, pipe)
	return nil
}

// Close tears the conversation down and returns once every resource is released.
// It is a no-op when nothing is running. Safe to call from any goroutine, any number of times.
func (s *Session) Close() error {
	s.mu.Lock()
	r := s.run
	if r == nil {
		var changed bool
		if s.state == fsm.StateError {
			s.state = fsm.StateIdle
			changed = true
		}
		s.mu.Unlock()
		if changed {
			s.notifyState(fsm.StateIdle)
		}
		return nil
	}
	s.mu.Unlock()

	s.closeRun(r, fsm.EventClose, nil)
	return nil
}

// attach runs set under the session lock if r is still the live, non-closing run.
func (s *Session) attach(r *run, set func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != r || r.closing.Load() {
		return false
	}
	set()
	return true
}

// abortStart fails the run unless Close already claimed it.
func (s *Session) abortStart(r *run, stage string, err error) error {
	if r.closing.Load() {
		return ErrClosed
	}
	connErr := &ConnectionError{Stage: stage, Err: err}
	s.logger.Error("conversation failed to open", "stage", stage, "error", err)
	s.closeRun(r, fsm.EventFail, connErr)
	if s.claimedBy(r, connErr) {
		return connErr
	}
	return ErrClosed
}

// claimedBy reports whether cause is the error recorded for r's teardown.
func (s *Session) claimedBy(r *run, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != r && s.err == cause
}

// sendLoop forwards captured frames until capture stops or the run closes.
func (s *Session) sendLoop(r *run, conn Conn, pipe *capture.Pipeline) {
	for frame := range pipe.Frames() {
		if r.closing.Load() {
			return
		}

		r.sendMu.RLock()
		if r.closing.Load() {
			r.sendMu.RUnlock()
			return
		}
		err := conn.Send(r.ctx, frame)
		r.sendMu.RUnlock()

		if err != nil {
			if r.closing.Load() {
				return
			}
			s.logger.Error("send audio frame", "error", err)
			s.closeRun(r, fsm.EventFail, &MidSessionError{Err: err})
			return
		}
		s.framesSent.Add(1)
		s.metrics.FrameSent(len(frame.Data))
	}
}

// receiveLoop applies inbound events strictly in arrival order.
func (s *Session) receiveLoop(r *run, conn Conn) {
	for {
		events, err := conn.Receive(r.ctx)
		if err != nil {
			if r.closing.Load() {
				return
			}
			if isRemoteClose(err) {
				s.logger.Info("conversation closed by remote")
				s.closeRun(r, fsm.EventClose, nil)
				return
			}
			s.logger.Error("receive from conversation", "error", err)
			s.closeRun(r, fsm.EventFail, &MidSessionError{Err: err})
			return
		}

		for _, event := range events {
			if !s.dispatch(r, event) {
				return
			}
		}
	}
}

type dispatchOutcome int

const (
	dispatchContinue dispatchOutcome = iota
	dispatchStop
	dispatchFail
	dispatchRemoteClose
)

// dispatch applies one event. It returns false once the run is over.
// Mutations happen under r.recvMu after a final closing check, so nothing
// from r lands in the transcript once closeRun has claimed it.
func (s *Session) dispatch(r *run, event Event) bool {
	if r.closing.Load() {
		return false
	}
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(event)
	}

	r.recvMu.Lock()
	if r.closing.Load() {
		r.recvMu.Unlock()
		return false
	}
	outcome, cause := s.applyEvent(r, event)
	r.recvMu.Unlock()

	switch outcome {
	case dispatchFail:
		s.logger.Error("conversation error from remote", "error", cause)
		s.closeRun(r, fsm.EventFail, &MidSessionError{Err: cause})
		return false
	case dispatchRemoteClose:
		s.logger.Info("conversation closed by remote", "reason", event.Text)
		s.closeRun(r, fsm.EventClose, nil)
		return false
	case dispatchStop:
		return false
	default:
		return true
	}
}

// applyEvent runs with r.recvMu held. Teardown is left to the caller.
func (s *Session) applyEvent(r *run, event Event) (dispatchOutcome, error) {
	switch event.Kind {
	case EventAudio:
		s.mu.Lock()
		sched := r.sched
		s.mu.Unlock()
		if sched == nil {
			return dispatchContinue, nil
		}
		placement, err := sched.Enqueue(event.Audio)
		if err != nil {
			s.chunksRejected.Add(1)
			s.metrics.ChunkRejected()
			return dispatchContinue, nil
		}
		s.chunksPlayed.Add(1)
		s.metrics.ChunkScheduled(placement.Duration)
		return dispatchContinue, nil
	case EventInputTranscript:
		s.agg.Delta(transcript.SpeakerUser, event.Text)
		s.metrics.TranscriptDelta(transcript.SpeakerUser)
		return s.applyState(r, fsm.EventUserSpeech), nil
	case EventOutputTranscript:
		s.agg.Delta(transcript.SpeakerAssistant, event.Text)
		s.metrics.TranscriptDelta(transcript.SpeakerAssistant)
		return dispatchContinue, nil
	case EventModelTurn:
		return s.applyState(r, fsm.EventModelTurn), nil
	case EventThinking:
		return s.applyState(r, fsm.EventThinking), nil
	case EventTurnComplete:
		s.agg.CloseTurn()
		return s.applyState(r, fsm.EventTurnComplete), nil
	case EventInterrupted:
		s.mu.Lock()
		sched := r.sched
		s.mu.Unlock()
		if sched != nil {
			sched.StopAll()
		}
		return s.applyState(r, fsm.EventInterrupted), nil
	case EventError:
		err := event.Err
		if err == nil {
			err = errors.New(event.Text)
		}
		return dispatchFail, err
	case EventClose:
		return dispatchRemoteClose, nil
	default:
		s.logger.Debug("ignoring unknown conversation event", "kind", string(event.Kind))
		return dispatchContinue, nil
	}
}

func (s *Session) applyState(r *run, event fsm.Event) dispatchOutcome {
	if !s.apply(r, event) {
		return dispatchStop
	}
	return dispatchContinue
}

// apply moves the state machine for r. Invalid pairs are logged and ignored.
func (s *Session) apply(r *run, event fsm.Event) bool {
	s.mu.Lock()
	if s.run != r || r.closing.Load() {
		s.mu.Unlock()
		return false
	}
	prev := s.state
	next, err := s.transitionLocked(event)
	s.mu.Unlock()

	if err != nil {
		s.logger.Debug("ignoring state event", "state", string(prev), "event", string(event), "error", err)
		return true
	}
	if next != prev {
		s.notifyState(next)
	}
	return true
}

// closeRun releases r's resources exactly once; concurrent callers wait for the first.
func (s *Session) closeRun(r *run, final fsm.Event, cause error) {
	r.once.Do(func() {
		r.closing.Store(true)
		r.cancel()

		s.mu.Lock()
		pipe, conn, sched := r.pipe, r.conn, r.sched
		r.pipe, r.conn, r.sched = nil, nil, nil
		s.mu.Unlock()

		if pipe != nil {
			if err := pipe.Stop(); err != nil {
				s.logger.Warn("stop capture", "error", err)
			}
			if s.opts.OnCaptureStopped != nil {
				s.opts.OnCaptureStopped(pipe)
			}
		}
		if conn != nil {
			if err := conn.Close(); err != nil {
				s.logger.Debug("close conversation connection", "error", err)
			}
		}

		// No Send or event mutation begins after closing is set; wait out any
		// that already began.
		r.sendMu.Lock()
		r.sendMu.Unlock()
		r.recvMu.Lock()
		r.recvMu.Unlock()

		if sched != nil {
			if err := sched.Close(); err != nil {
				s.logger.Warn("release playback output", "error", err)
			}
		}
		s.agg.ResetBuffers()

		s.mu.Lock()
		next, _ := fsm.Transition(s.state, final)
		s.state = next
		if cause != nil {
			s.err = cause
		}
		if s.run == r {
			s.run = nil
		}
		s.mu.Unlock()

		close(r.ended)
		s.notifyState(next)

		elapsed := time.Since(r.startedAt)
		s.metrics.SessionEnded(next, elapsed)
		stats := s.Stats()
		attrs := []any{
			"state", string(next),
			"generation", r.gen,
			"duration_ms", elapsed.Milliseconds(),
			"entries", s.agg.Len(),
			"frames_sent", stats.FramesSent,
			"frames_dropped", stats.FramesDropped,
			"chunks_played", stats.ChunksPlayed,
			"chunks_rejected", stats.ChunksRejected,
		}
		if cause != nil {
			s.logger.Error("conversation ended with error", append(attrs, "error", cause)...)
			return
		}
		s.logger.Info("conversation ended", attrs...)
	})
}

func (s *Session) transitionLocked(event fsm.Event) (fsm.State, error) {
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		return s.state, err
	}
	s.state = next
	return next, nil
}

func (s *Session) notifyState(state fsm.State) {
	s.metrics.StateChanged(state)
	if s.opts.OnState != nil {
		s.opts.OnState(state)
	}
}

func (s *Session) resetStats() {
	s.framesSent.Store(0)
	s.framesDropped.Store(0)
	s.chunksPlayed.Store(0)
	s.chunksRejected.Store(0)
}
