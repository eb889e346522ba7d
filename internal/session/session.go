// Package session owns one conversation for the lifetime of a start command:
// it serves IPC commands against it and stores the transcript when it ends.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/conversa/internal/announce"
	"github.com/rbright/conversa/internal/config"
	"github.com/rbright/conversa/internal/fsm"
	"github.com/rbright/conversa/internal/history"
	"github.com/rbright/conversa/internal/ipc"
	"github.com/rbright/conversa/internal/live"
	"github.com/rbright/conversa/internal/transcript"
)

// ErrNotRunning is returned for commands that need an open conversation.
var ErrNotRunning = errors.New("no conversation is running")

const (
	commitTimeout = 5 * time.Second
	locateTimeout = 30 * time.Second
)

// Conversation is the subset of *live.Session the controller drives.
type Conversation interface {
	Start(context.Context) error
	Close() error
	Status() fsm.State
	Err() error
	Transcript() []transcript.Entry
	Stats() live.Stats
	Done() <-chan struct{}
	AddNote(string)
	Play([]float32) error
}

// Locator speaks a resolved address into the conversation.
type Locator interface {
	Announce(ctx context.Context, role announce.Role, lat float64, lon float64, player announce.Player) (announce.Result, error)
}

// Indicator mirrors conversation state on the desktop. Calls must not block.
type Indicator interface {
	ShowState(context.Context, fsm.State)
	ShowError(context.Context, string)
	Hide(context.Context)
}

type noopIndicator struct{}

func (noopIndicator) ShowState(context.Context, fsm.State) {}
func (noopIndicator) ShowError(context.Context, string)    {}
func (noopIndicator) Hide(context.Context)                 {}

// Options configures a Controller. Conversation is required.
type Options struct {
	Conversation Conversation
	Profile      config.Profile
	MinEntries   int
	Committer    Committer
	Locator      Locator
	Indicator    Indicator
	Logger       *slog.Logger
	Now          func() time.Time
}

// Result is the outcome of one Run.
type Result struct {
	SessionID  string
	Profile    string
	State      fsm.State
	Err        error
	Closed     bool
	Entries    []transcript.Entry
	Stats      live.Stats
	RecordID   uint
	StartedAt  time.Time
	FinishedAt time.Time
}

// Controller runs one conversation and answers IPC commands about it.
type Controller struct {
	conv      Conversation
	profile   config.Profile
	min       int
	commit    Committer
	locator   Locator
	indicator Indicator
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	sessionID string
	running   bool
}

// NewController builds a controller with safe defaults for optional collaborators.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	indicator := opts.Indicator
	if indicator == nil {
		indicator = noopIndicator{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		conv:      opts.Conversation,
		profile:   opts.Profile,
		min:       opts.MinEntries,
		commit:    opts.Committer,
		locator:   opts.Locator,
		indicator: indicator,
		logger:    logger,
		now:       now,
	}
}

// State returns the conversation state.
func (c *Controller) State() fsm.State {
	return c.conv.Status()
}

// ObserveState forwards conversation state changes to the indicator.
func (c *Controller) ObserveState(state fsm.State) {
	c.logger.Debug("conversation state", "state", string(state))
	c.indicator.ShowState(context.Background(), state)
}

// Run opens the conversation and blocks until it ends.
//
// The conversation ends when ctx is cancelled, a close/toggle command
// arrives, or the remote side hangs up. Transcripts with at least MinEntries
// entries are committed afterwards.
func (c *Controller) Run(ctx context.Context) Result {
	sessionID := uuid.NewString()
	c.mu.Lock()
	c.sessionID = sessionID
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	result := Result{SessionID: sessionID, Profile: c.profile.Name, StartedAt: c.now()}
	logger := c.logger.With("session_id", sessionID, "profile", c.profile.Name)

	if err := c.conv.Start(ctx); err != nil {
		result.FinishedAt = c.now()
		result.Entries = c.conv.Transcript()
		result.Stats = c.conv.Stats()
		result.State = c.conv.Status()
		if errors.Is(err, live.ErrClosed) {
			result.Closed = true
			logger.Info("conversation closed while connecting")
			return result
		}
		result.Err = err
		c.indicator.ShowError(context.Background(), "")
		logger.Error("conversation failed to start", "error", err)
		return result
	}

	select {
	case <-ctx.Done():
		_ = c.conv.Close()
		result.Err = ctx.Err()
	case <-c.conv.Done():
		result.Closed = true
	}

	result.FinishedAt = c.now()
	result.State = c.conv.Status()
	result.Entries = c.conv.Transcript()
	result.Stats = c.conv.Stats()
	if err := c.conv.Err(); err != nil && result.Err == nil {
		result.Err = err
		result.Closed = false
	}

	if result.State == fsm.StateError {
		c.indicator.ShowError(context.Background(), "")
	} else {
		c.indicator.Hide(context.Background())
	}

	if id, err := c.save(result); err != nil {
		logger.Error("save conversation history", "error", err)
		if result.Err == nil {
			result.Err = err
		}
	} else {
		result.RecordID = id
	}

	return result
}

func (c *Controller) save(result Result) (uint, error) {
	if c.commit == nil {
		return 0, nil
	}
	if len(result.Entries) == 0 || len(result.Entries) < c.min {
		c.logger.Debug("conversation too short to keep", "entries", len(result.Entries), "min_entries", c.min)
		return 0, nil
	}

	rec := &history.Record{
		SessionID: result.SessionID,
		Profile:   result.Profile,
		Label:     history.NewLabel(c.profile.Label),
		StartedAt: result.StartedAt,
		EndedAt:   result.FinishedAt,
		Entries:   result.Entries,
	}

	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	if err := c.commit.Commit(ctx, rec); err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// Status is the payload of the status command.
type Status struct {
	SessionID     string `json:"session_id,omitempty"`
	Profile       string `json:"profile"`
	State         string `json:"state"`
	Entries       int    `json:"entries"`
	FramesSent    int64  `json:"frames_sent"`
	FramesDropped int64  `json:"frames_dropped"`
	ChunksPlayed  int64  `json:"chunks_played"`
	Error         string `json:"error,omitempty"`
}

// Handle serves IPC commands for the running conversation.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch strings.ToLower(strings.TrimSpace(req.Command)) {
	case ipc.CommandStatus:
		return c.handleStatus()
	case ipc.CommandTranscript:
		return c.handleTranscript()
	case ipc.CommandClose, ipc.CommandToggle, "stop":
		return c.handleClose()
	case ipc.CommandNote:
		return c.handleNote(req.Text)
	case ipc.CommandLocate:
		return c.handleLocate(ctx, req)
	default:
		return ipc.Failure(string(c.State()), fmt.Errorf("unknown command: %s", req.Command))
	}
}

func (c *Controller) handleStatus() ipc.Response {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	state := c.State()
	stats := c.conv.Stats()
	status := Status{
		SessionID:     sessionID,
		Profile:       c.profile.Name,
		State:         string(state),
		Entries:       len(c.conv.Transcript()),
		FramesSent:    stats.FramesSent,
		FramesDropped: stats.FramesDropped,
		ChunksPlayed:  stats.ChunksPlayed,
	}
	if err := c.conv.Err(); err != nil {
		status.Error = err.Error()
	}
	return respond(ipc.Response{OK: true, State: string(state), Message: "status"}, status)
}

func (c *Controller) handleTranscript() ipc.Response {
	entries := c.conv.Transcript()
	text := transcript.Render(entries, transcript.Options{})
	return respond(ipc.Response{OK: true, State: string(c.State()), Message: text}, entries)
}

func (c *Controller) handleClose() ipc.Response {
	state := c.State()
	if state == fsm.StateIdle {
		return ipc.Failure(string(state), ErrNotRunning)
	}
	if err := c.conv.Close(); err != nil {
		return ipc.Failure(string(c.State()), err)
	}
	return ipc.Response{OK: true, State: string(c.State()), Message: "conversation closed"}
}

func (c *Controller) handleNote(text string) ipc.Response {
	state := c.State()
	text = strings.TrimSpace(text)
	if text == "" {
		return ipc.Failure(string(state), errors.New("note text is empty"))
	}
	if !fsm.Active(state) {
		return ipc.Failure(string(state), ErrNotRunning)
	}
	c.conv.AddNote(text)
	return ipc.Response{OK: true, State: string(state), Message: "note added"}
}

func (c *Controller) handleLocate(ctx context.Context, req ipc.Request) ipc.Response {
	state := c.State()
	if req.Lat == nil || req.Lon == nil {
		return ipc.Failure(string(state), errors.New("locate requires lat and lon"))
	}
	if c.locator == nil {
		return ipc.Failure(string(state), errors.New("location announcements are not configured"))
	}
	if !fsm.Active(state) {
		return ipc.Failure(string(state), ErrNotRunning)
	}

	role := announce.RolePatient
	if c.profile.Role == config.RoleProfessional {
		role = announce.RoleProfessional
	}

	ctx, cancel := context.WithTimeout(ctx, locateTimeout)
	defer cancel()

	result, err := c.locator.Announce(ctx, role, *req.Lat, *req.Lon, c.conv)
	if err != nil {
		// The conversation carries on; only the announcement is lost.
		c.logger.Warn("location announcement failed", "error", err)
		resp, _ := ipc.WithData(ipc.Failure(string(c.State()), err), result)
		return resp
	}
	return respond(ipc.Response{OK: true, State: string(c.State()), Message: result.Sentence}, result)
}

func respond(resp ipc.Response, payload any) ipc.Response {
	out, err := ipc.WithData(resp, payload)
	if err != nil {
		return ipc.Failure(resp.State, fmt.Errorf("encode response: %w", err))
	}
	return out
}

// DecodeStatus parses the payload of a status response.
func DecodeStatus(resp ipc.Response) (Status, error) {
	var status Status
	if len(resp.Data) == 0 {
		return Status{State: resp.State}, nil
	}
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return Status{}, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}
