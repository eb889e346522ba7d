package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/rbright/conversa/internal/fsm"
	"github.com/rbright/conversa/internal/live"
	"github.com/rbright/conversa/internal/transcript"
)

var _ live.Metrics = (*Metrics)(nil)

func TestStateGaugeTracksCurrentState(t *testing.T) {
	m := New()
	m.StateChanged(fsm.StateConnecting)
	m.StateChanged(fsm.StateListening)

	require.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues(string(fsm.StateListening))))
	require.Equal(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues(string(fsm.StateConnecting))))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues(string(fsm.StateConnecting))))
}

func TestCountersAccumulate(t *testing.T) {
	m := New()
	m.SessionStarted()
	m.FrameSent(100)
	m.FrameSent(28)
	m.FrameDropped()
	m.ChunkScheduled(250 * time.Millisecond)
	m.ChunkScheduled(250 * time.Millisecond)
	m.ChunkRejected()
	m.TranscriptDelta(transcript.SpeakerUser)
	m.TranscriptDelta(transcript.SpeakerUser)
	m.SessionEnded(fsm.StateIdle, time.Minute)

	require.Equal(t, 1.0, testutil.ToFloat64(m.sessionsStarted))
	require.Equal(t, 2.0, testutil.ToFloat64(m.framesSent))
	require.Equal(t, 128.0, testutil.ToFloat64(m.bytesSent))
	require.Equal(t, 1.0, testutil.ToFloat64(m.framesDropped))
	require.Equal(t, 2.0, testutil.ToFloat64(m.chunksScheduled))
	require.InDelta(t, 0.5, testutil.ToFloat64(m.playbackSeconds), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(m.chunksRejected))
	require.Equal(t, 2.0, testutil.ToFloat64(m.transcriptDeltas.WithLabelValues("user")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sessionsEnded.WithLabelValues("idle")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.SessionStarted()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "conversa_sessions_started_total 1")
}

func TestServeWithoutAddrIsNoop(t *testing.T) {
	require.NoError(t, Serve(t.Context(), "", New(), nil))
}
