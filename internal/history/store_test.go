package history

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rbright/conversa/internal/transcript"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	rec := &Record{
		SessionID: uuid.NewString(),
		Profile:   "triage",
		Label:     "Paciente #1234",
		StartedAt: started,
		EndedAt:   started.Add(3 * time.Minute),
		Entries: []transcript.Entry{
			{Speaker: transcript.SpeakerUser, Text: "Estou com dor de cabeça."},
			{Speaker: transcript.SpeakerAssistant, Text: "Há quanto tempo?"},
			{Speaker: transcript.SpeakerProfessional, Text: "Verificar pressão."},
		},
	}
	require.NoError(t, store.Save(context.Background(), rec))
	require.NotZero(t, rec.ID)

	got, err := store.Get(rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.SessionID, got.SessionID)
	require.Equal(t, "triage", got.Profile)
	require.Equal(t, "Paciente #1234", got.Label)
	require.True(t, got.StartedAt.Equal(started))
	require.Equal(t, rec.Entries, got.Entries)
}

func TestGetUnknownID(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirstWithLimit(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(context.Background(), &Record{
			SessionID: uuid.NewString(),
			Profile:   "onboarding-patient",
			Label:     NewLabel("Paciente"),
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			EndedAt:   base.Add(time.Duration(i)*time.Hour + time.Minute),
		}))
	}

	all, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, all[0].StartedAt.After(all[1].StartedAt))
	require.True(t, all[1].StartedAt.After(all[2].StartedAt))

	limited, err := store.List(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, all[0].ID, limited[0].ID)
}

func TestSaveRejectsMissingSessionID(t *testing.T) {
	store := openTestStore(t)
	require.Error(t, store.Save(context.Background(), &Record{Profile: "triage"}))
	require.Error(t, store.Save(context.Background(), nil))
}

func TestSaveHonorsCanceledContext(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Save(ctx, &Record{
		SessionID: uuid.NewString(),
		Profile:   "triage",
		Label:     "Paciente #2000",
		StartedAt: time.Now(),
		EndedAt:   time.Now(),
	})
	require.Error(t, err)

	records, err := store.List(0)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), &Record{
		SessionID: uuid.NewString(),
		Profile:   "triage",
		Label:     "Paciente #1000",
		StartedAt: time.Now(),
		EndedAt:   time.Now(),
	}))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()
	records, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestNewLabel(t *testing.T) {
	pattern := regexp.MustCompile(`^Profissional #[1-9][0-9]{3}$`)
	for i := 0; i < 50; i++ {
		require.Regexp(t, pattern, NewLabel("Profissional"))
	}
	require.Regexp(t, `^Paciente #\d{4}$`, NewLabel(""))
}
