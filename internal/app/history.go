package app

import (
	"fmt"

	"github.com/rbright/conversa/internal/config"
	"github.com/rbright/conversa/internal/transcript"
)

const historyListLimit = 20

// commandHistory lists recent conversations, or prints one when id is set.
func (r Runner) commandHistory(cfg config.Config, id uint) int {
	store, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	if id != 0 {
		rec, err := store.Get(id)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintf(r.Stdout, "#%d %s (%s) %s\n", rec.ID, rec.Label, rec.Profile, rec.StartedAt.Local().Format("2006-01-02 15:04"))
		fmt.Fprintln(r.Stdout, transcript.Render(rec.Entries, transcript.Options{}))
		return 0
	}

	records, err := store.List(historyListLimit)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(records) == 0 {
		fmt.Fprintln(r.Stdout, "no conversations recorded")
		return 0
	}
	for _, rec := range records {
		fmt.Fprintf(
			r.Stdout,
			"#%d | %s | %s | %s | %d entries\n",
			rec.ID,
			rec.StartedAt.Local().Format("2006-01-02 15:04"),
			rec.Profile,
			rec.Label,
			len(rec.Entries),
		)
	}
	return 0
}
