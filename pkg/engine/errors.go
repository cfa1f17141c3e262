package engine

import (
	"errors"
	"fmt"
)

// StructuralError marks a malformed document or scope: fatal, surfaced
// to the caller and logged.
type StructuralError struct {
	Detail string
}

func (e *StructuralError) Error() string {
	return "structural error: " + e.Detail
}

func structuralf(format string, args ...any) error {
	return &StructuralError{Detail: fmt.Sprintf(format, args...)}
}

// TransactionError wraps a failure in the transaction lifecycle. Any
// open handle is rolled back before it propagates.
type TransactionError struct {
	Alias string
	Op    string // begin, commit, rollback
	Err   error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %q %s: %v", e.Alias, e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// ActionError wraps an error raised by a step's action. It is never
// swallowed: transactional cleanup runs, the full context is logged,
// and the run terminates as Errored.
type ActionError struct {
	StepKey string
	Err     error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("step %q: %v", e.StepKey, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// ErrTxAliasBusy rejects a request to open a second transaction alias
// while one is still open. One alias is tracked per run; asking for
// another before the first closes is a caller bug, so it fails loudly
// instead of being silently ignored.
var ErrTxAliasBusy = errors.New("another transaction alias is already open")
