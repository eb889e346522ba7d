// Package metrics exposes conversation counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rbright/conversa/internal/fsm"
	"github.com/rbright/conversa/internal/transcript"
)

// Metrics implements live.Metrics on top of a Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted  prometheus.Counter
	sessionsEnded    *prometheus.CounterVec
	sessionDuration  prometheus.Histogram
	state            *prometheus.GaugeVec
	transitions      *prometheus.CounterVec
	framesSent       prometheus.Counter
	bytesSent        prometheus.Counter
	framesDropped    prometheus.Counter
	chunksScheduled  prometheus.Counter
	playbackSeconds  prometheus.Counter
	chunksRejected   prometheus.Counter
	transcriptDeltas *prometheus.CounterVec
}

// New registers all conversa metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversa_sessions_started_total",
			Help: "Conversation sessions started",
		}),
		sessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conversa_sessions_ended_total",
			Help: "Conversation sessions ended, by final state",
		}, []string{"state"}),
		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "conversa_session_duration_seconds",
			Help:    "Wall time of a conversation session",
			Buckets: prometheus.ExponentialBuckets(5, 2, 9), // 5s to ~21 minutes
		}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conversa_state",
			Help: "1 for the current session state, 0 otherwise",
		}, []string{"state"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conversa_state_transitions_total",
			Help: "State changes, by target state",
		}, []string{"state"}),
		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversa_capture_frames_sent_total",
			Help: "Microphone frames sent to the remote model",
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversa_capture_bytes_sent_total",
			Help: "Encoded microphone bytes sent to the remote model",
		}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversa_capture_frames_dropped_total",
			Help: "Microphone frames dropped because the send queue was full",
		}),
		chunksScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversa_playback_chunks_scheduled_total",
			Help: "Model audio chunks scheduled for playback",
		}),
		playbackSeconds: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversa_playback_seconds_total",
			Help: "Seconds of model audio scheduled for playback",
		}),
		chunksRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "conversa_playback_chunks_rejected_total",
			Help: "Model audio chunks skipped as malformed",
		}),
		transcriptDeltas: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conversa_transcript_deltas_total",
			Help: "Transcription deltas received, by speaker",
		}, []string{"speaker"}),
	}
}

func (m *Metrics) SessionStarted() {
	m.sessionsStarted.Inc()
}

func (m *Metrics) SessionEnded(final fsm.State, elapsed time.Duration) {
	m.sessionsEnded.WithLabelValues(string(final)).Inc()
	m.sessionDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) StateChanged(state fsm.State) {
	for _, known := range fsm.States() {
		value := 0.0
		if known == state {
			value = 1
		}
		m.state.WithLabelValues(string(known)).Set(value)
	}
	m.transitions.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) FrameSent(bytes int) {
	m.framesSent.Inc()
	m.bytesSent.Add(float64(bytes))
}

func (m *Metrics) FrameDropped() {
	m.framesDropped.Inc()
}

func (m *Metrics) ChunkScheduled(d time.Duration) {
	m.chunksScheduled.Inc()
	m.playbackSeconds.Add(d.Seconds())
}

func (m *Metrics) ChunkRejected() {
	m.chunksRejected.Inc()
}

func (m *Metrics) TranscriptDelta(speaker transcript.Speaker) {
	m.transcriptDeltas.WithLabelValues(string(speaker)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, m *Metrics, logger *slog.Logger) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics %q: %w", addr, err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", listener.Addr().String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}
