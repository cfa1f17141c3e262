package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ormasoftchile/stanza/pkg/data"
	"github.com/ormasoftchile/stanza/pkg/schema"
)

// txnCoordinator owns the run's single transaction handle. Only the
// coordinator talks to the store's Begin/Commit/Rollback; action
// handlers see the open alias but never close it themselves. A handle
// is opened at most once per alias per run and closed exactly once —
// commit at a clean run end, rollback from the error boundary.
type txnCoordinator struct {
	store   data.Store
	enabled bool
	log     *slog.Logger

	alias string // open alias, "" when none
	seen  map[string]bool
}

func newTxnCoordinator(store data.Store, enabled bool, log *slog.Logger) *txnCoordinator {
	return &txnCoordinator{
		store:   store,
		enabled: enabled,
		log:     log,
		seen:    map[string]bool{},
	}
}

// maybeBegin opens a transaction if the step's directive references a
// transactional alias and none is open yet. Returns the alias the
// step should execute under ("" for none). A request for a second
// alias while the first is open is a TransactionError.
func (t *txnCoordinator) maybeBegin(ctx context.Context, d *schema.Directive) (string, error) {
	if !t.enabled || t.store == nil || d == nil {
		return "", nil
	}
	alias, _, ok := d.TxAlias()
	if !ok {
		return t.alias, nil
	}
	if t.alias == alias {
		// Already open — later steps join it.
		return alias, nil
	}
	if t.alias != "" {
		return "", &TransactionError{
			Alias: alias,
			Op:    "begin",
			Err:   fmt.Errorf("%w (open: %q)", ErrTxAliasBusy, t.alias),
		}
	}
	if t.seen[alias] {
		return "", &TransactionError{
			Alias: alias,
			Op:    "begin",
			Err:   fmt.Errorf("alias %q was already opened this run", alias),
		}
	}
	if err := t.store.Begin(ctx, alias); err != nil {
		return "", &TransactionError{Alias: alias, Op: "begin", Err: err}
	}
	t.alias = alias
	t.seen[alias] = true
	t.log.Debug("transaction opened", "alias", alias)
	return alias, nil
}

// open reports the currently open alias, "" when none.
func (t *txnCoordinator) open() string {
	return t.alias
}

// commit closes the open handle keeping its writes. No-op when
// nothing is open.
func (t *txnCoordinator) commit(ctx context.Context) error {
	if t.alias == "" {
		return nil
	}
	alias := t.alias
	t.alias = ""
	if err := t.store.Commit(ctx, alias); err != nil {
		return &TransactionError{Alias: alias, Op: "commit", Err: err}
	}
	t.log.Debug("transaction committed", "alias", alias)
	return nil
}

// rollback closes the open handle discarding its writes, recording
// cause in the log. No-op when nothing is open.
func (t *txnCoordinator) rollback(ctx context.Context, cause error) {
	if t.alias == "" {
		return
	}
	alias := t.alias
	t.alias = ""
	if err := t.store.Rollback(ctx, alias); err != nil {
		t.log.Error("rollback failed", "alias", alias, "error", err)
		return
	}
	t.log.Warn("transaction rolled back", "alias", alias, "cause", cause)
}
