package session

import (
	"context"

	"github.com/rbright/conversa/internal/history"
)

// Committer persists a finished conversation.
type Committer interface {
	Commit(context.Context, *history.Record) error
}

// CommitFunc adapts a function to the Committer interface.
type CommitFunc func(context.Context, *history.Record) error

func (f CommitFunc) Commit(ctx context.Context, rec *history.Record) error {
	return f(ctx, rec)
}

// StoreCommitter saves records into a history store.
type StoreCommitter struct {
	Store *history.Store
}

func (c StoreCommitter) Commit(ctx context.Context, rec *history.Record) error {
	return c.Store.Save(ctx, rec)
}
