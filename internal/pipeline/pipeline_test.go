package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rbright/conversa/internal/audio"
	"github.com/rbright/conversa/internal/config"
	"github.com/rbright/conversa/internal/fsm"
	"github.com/rbright/conversa/internal/live"
	"github.com/rbright/conversa/internal/playback"
	"github.com/rbright/conversa/internal/relay"
	"github.com/rbright/conversa/internal/transcript"
	"github.com/stretchr/testify/require"
)

type scriptedConn struct {
	inbound chan []live.Event
	done    chan struct{}
	once    sync.Once
}

func (c *scriptedConn) Send(context.Context, audio.Frame) error { return nil }

func (c *scriptedConn) Receive(ctx context.Context) ([]live.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, context.Canceled
	case events := <-c.inbound:
		return events, nil
	}
}

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type silentSource struct{}

func (silentSource) Start(_ context.Context, onBlock audio.BlockFunc) error {
	onBlock(make([]float32, 160))
	return nil
}
func (silentSource) Stop() error          { return nil }
func (silentSource) Device() audio.Device { return audio.Device{ID: "test-mic"} }

type testDevices struct{}

func (testDevices) OpenInput(context.Context) (audio.Source, error) { return silentSource{}, nil }
func (testDevices) OpenOutput(context.Context) (playback.Output, error) {
	return audio.NewMixer(audio.PlaybackSampleRate), nil
}

func TestSetupForUsesProfileAndAudioRates(t *testing.T) {
	cfg := config.Default()
	cfg.Live.Voice = "Puck"
	cfg.Audio.CaptureSampleRate = 16000
	profile, err := cfg.ActiveProfile()
	require.NoError(t, err)

	setup := SetupFor(cfg, profile, audio.EncodingPCM16)
	require.Equal(t, cfg.Live.Model, setup.Model)
	require.Equal(t, "Puck", setup.Voice)
	require.Equal(t, 16000, setup.InputSampleRate)
	require.Equal(t, 24000, setup.OutputSampleRate)
	require.Equal(t, audio.EncodingPCM16, setup.Encoding)
	require.Contains(t, setup.SystemInstruction, "triagem")
}

func TestNewDialerByProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Live.APIKeyEnv = "CONVERSA_PIPELINE_TEST_KEY"
	t.Setenv("CONVERSA_PIPELINE_TEST_KEY", "")

	_, err := NewDialer(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "CONVERSA_PIPELINE_TEST_KEY")

	cfg.Live.Provider = config.ProviderRelay
	cfg.Live.Endpoint = "wss://relay.example.com/v1/conversation"
	t.Setenv("CONVERSA_PIPELINE_TEST_KEY", "secret")
	dialer, err := NewDialer(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, relay.Dialer{Endpoint: cfg.Live.Endpoint, APIKey: "secret"}, dialer)

	cfg.Live.Provider = "openai"
	_, err = NewDialer(context.Background(), cfg)
	require.Error(t, err)
}

func TestNewAnnouncerWithoutKeyIsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Live.APIKeyEnv = "CONVERSA_PIPELINE_TEST_KEY"
	t.Setenv("CONVERSA_PIPELINE_TEST_KEY", "")

	announcer, err := NewAnnouncer(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Nil(t, announcer)
}

func TestBuildRejectsUnknownEncoding(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.FrameEncoding = "opus"

	_, err := Build(context.Background(), Options{Config: cfg, Dialer: live.DialFunc(nil), Devices: testDevices{}})
	require.Error(t, err)
}

func TestBuildRunsConversationAndDumpsEvents(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	cfg := config.Default()
	cfg.Debug.EventDump = true
	cfg.Debug.AudioDump = true
	profile, err := cfg.ActiveProfile()
	require.NoError(t, err)

	conn := &scriptedConn{inbound: make(chan []live.Event, 4), done: make(chan struct{})}
	var setups []live.Setup
	dialer := live.DialFunc(func(_ context.Context, setup live.Setup) (live.Conn, error) {
		setups = append(setups, setup)
		return conn, nil
	})

	var mu sync.Mutex
	var states []fsm.State
	conv, err := Build(context.Background(), Options{
		Config:  cfg,
		Profile: profile,
		Dialer:  dialer,
		Devices: testDevices{},
		OnState: func(state fsm.State) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, state)
		},
	})
	require.NoError(t, err)
	defer conv.Release()

	require.NoError(t, conv.Start(context.Background()))
	require.Equal(t, fsm.StateListening, conv.Status())
	require.Len(t, setups, 1)
	require.Equal(t, profile.SystemInstruction, setups[0].SystemInstruction)

	conn.inbound <- []live.Event{
		{Kind: live.EventInputTranscript, Text: "Estou com tosse."},
		{Kind: live.EventModelTurn},
		{Kind: live.EventOutputTranscript, Text: "Há quanto tempo?"},
		{Kind: live.EventTurnComplete},
	}

	require.Eventually(t, func() bool {
		return len(conv.Transcript()) == 2 && conv.Status() == fsm.StateListening
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conv.Close())
	<-conv.Done()
	conv.Release()

	entries := conv.Transcript()
	require.Equal(t, transcript.SpeakerUser, entries[0].Speaker)
	require.Equal(t, "Há quanto tempo?", entries[1].Text)

	mu.Lock()
	require.Equal(t, fsm.StateConnecting, states[0])
	require.Equal(t, fsm.StateIdle, states[len(states)-1])
	mu.Unlock()

	debugDir := filepath.Join(os.Getenv("XDG_STATE_HOME"), "conversa", "debug")
	events, err := filepath.Glob(filepath.Join(debugDir, "events-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, events, 1)

	file, err := os.Open(events[0])
	require.NoError(t, err)
	defer file.Close()

	var kinds []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec eventRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		kinds = append(kinds, rec.Kind)
	}
	require.Equal(t, []string{"input_transcription", "model_turn", "output_transcription", "turn_complete"}, kinds)

	wavs, err := filepath.Glob(filepath.Join(debugDir, "audio-*.wav"))
	require.NoError(t, err)
	require.Len(t, wavs, 1)
}

func TestDebugSinksDisabledAreNil(t *testing.T) {
	sinks, err := openDebugSinks(config.DebugConfig{}, 16000, nil)
	require.NoError(t, err)
	require.Nil(t, sinks)

	// nil sinks accept every call
	sinks.recordEvent(live.Event{Kind: live.EventAudio})
	sinks.writeCapture(nil)
	sinks.close()
}

func TestResolveStateDirUsesXDGStateHome(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("HOME", t.TempDir())

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, xdgStateHome, dir)
}

func TestResolveStateDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state"), dir)
}

func TestCreateDebugFileCreatesExpectedPath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	file, err := createDebugFile("events", "jsonl")
	require.NoError(t, err)
	path := file.Name()
	require.NoError(t, file.Close())

	require.FileExists(t, path)
	require.Contains(t, path, string(filepath.Separator)+"conversa"+string(filepath.Separator)+"debug"+string(filepath.Separator))
	require.Contains(t, filepath.Base(path), "events-")
	require.Equal(t, ".jsonl", filepath.Ext(path))

	stat, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}
