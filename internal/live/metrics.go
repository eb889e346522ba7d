package live

import (
	"time"

	"github.com/rbright/conversa/internal/fsm"
	"github.com/rbright/conversa/internal/transcript"
)

// Metrics receives session counters. Implementations must be safe for concurrent use.
type Metrics interface {
	SessionStarted()
	SessionEnded(final fsm.State, elapsed time.Duration)
	StateChanged(state fsm.State)
	FrameSent(bytes int)
	FrameDropped()
	ChunkScheduled(d time.Duration)
	ChunkRejected()
	TranscriptDelta(speaker transcript.Speaker)
}

type noopMetrics struct{}

func (noopMetrics) SessionStarted()                       {}
func (noopMetrics) SessionEnded(fsm.State, time.Duration) {}
func (noopMetrics) StateChanged(fsm.State)                {}
func (noopMetrics) FrameSent(int)                         {}
func (noopMetrics) FrameDropped()                         {}
func (noopMetrics) ChunkScheduled(time.Duration)          {}
func (noopMetrics) ChunkRejected()                        {}
func (noopMetrics) TranscriptDelta(transcript.Speaker)    {}
