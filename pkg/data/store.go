// Package data abstracts the storage collaborator: named statements
// executed against a backing store, with per-alias transaction
// handles. Each alias is opened and closed at most once per open/close
// pair; callers never hold the handle directly.
package data

import (
	"context"
	"errors"
)

// Store executes named statements and manages transaction handles.
// Begin/Commit/Rollback are each safe to call at most once per
// open/close pair for a given alias.
type Store interface {
	// Begin opens a transaction under alias. Opening an alias that is
	// already open is an error.
	Begin(ctx context.Context, alias string) error
	// Commit closes the alias's transaction, keeping its writes.
	Commit(ctx context.Context, alias string) error
	// Rollback closes the alias's transaction, discarding its writes.
	Rollback(ctx context.Context, alias string) error

	// Query runs a named read statement. An empty alias runs outside
	// any transaction.
	Query(ctx context.Context, alias, stmt string, args map[string]string) ([]map[string]any, error)
	// Exec runs a named write statement and reports affected rows.
	Exec(ctx context.Context, alias, stmt string, args map[string]string) (int64, error)
}

var (
	// ErrTxOpen is returned by Begin when the alias already has an
	// open transaction.
	ErrTxOpen = errors.New("transaction already open for alias")
	// ErrTxNotOpen is returned by Commit/Rollback when the alias has
	// no open transaction.
	ErrTxNotOpen = errors.New("no open transaction for alias")
	// ErrUnknownStatement is returned for statement names the store
	// has no definition for.
	ErrUnknownStatement = errors.New("unknown statement")
)
