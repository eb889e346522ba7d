package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbright/conversa/internal/config"
	"github.com/stretchr/testify/require"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_KEY", "abc")

	check := checkEnv(
		"TEST_DOCTOR_KEY",
		func(v string) bool { return strings.TrimSpace(v) != "" },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "indicator.cue_player")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-player")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-player", "--arg"}, "indicator.cue_player")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "indicator.cue_player command is available")
}

func TestCheckProfile(t *testing.T) {
	cfg := config.Default()
	check := checkProfile(cfg)
	require.True(t, check.Pass)
	require.Equal(t, "triage (patient)", check.Message)

	cfg.Profile = "cardio"
	check = checkProfile(cfg)
	require.False(t, check.Pass)
}

func TestCheckHistoryPathCreatesDirectory(t *testing.T) {
	cfg := config.Default()
	cfg.History.Path = filepath.Join(t.TempDir(), "nested", "history.db")

	check := checkHistoryPath(cfg)
	require.True(t, check.Pass)
	require.DirExists(t, filepath.Dir(cfg.History.Path))
}

func TestCheckEndpointAcceptsAnyHTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/conversation", r.URL.Path)
		w.WriteHeader(http.StatusUpgradeRequired)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Live.Provider = config.ProviderRelay
	cfg.Live.Endpoint = "ws://" + strings.TrimPrefix(server.URL, "http://") + "/v1/conversation"

	check := checkEndpoint(context.Background(), cfg, server.Client())
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 426")
}

func TestCheckEndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	cfg := config.Default()
	cfg.Live.Endpoint = url

	check := checkEndpoint(context.Background(), cfg, http.DefaultClient)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "request failed")
}

func TestEndpointURL(t *testing.T) {
	cfg := config.Default()
	got, err := endpointURL(cfg)
	require.NoError(t, err)
	require.Equal(t, geminiEndpoint, got)

	cfg.Live.Endpoint = "wss://relay.example.com/v1"
	got, err = endpointURL(cfg)
	require.NoError(t, err)
	require.Equal(t, "https://relay.example.com/v1", got)

	cfg.Live.Endpoint = "ftp://relay.example.com"
	_, err = endpointURL(cfg)
	require.Error(t, err)

	cfg.Live.Provider = config.ProviderRelay
	cfg.Live.Endpoint = ""
	_, err = endpointURL(cfg)
	require.Error(t, err)
}

func TestRunReportsMissingAPIKey(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	cfg := config.Default()
	cfg.Live.APIKeyEnv = "CONVERSA_DOCTOR_TEST_KEY"
	cfg.Indicator.Enable = false
	cfg.History.Enable = false
	t.Setenv("CONVERSA_DOCTOR_TEST_KEY", "")

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	t.Cleanup(server.Close)
	cfg.Live.Endpoint = server.URL

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg})
	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] config: using defaults")
	require.Contains(t, text, "[FAIL] CONVERSA_DOCTOR_TEST_KEY: CONVERSA_DOCTOR_TEST_KEY is empty")
	require.Contains(t, text, "[FAIL] audio.device")
	require.Contains(t, text, "[OK] live.endpoint")
}
