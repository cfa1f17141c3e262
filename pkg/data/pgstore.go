package data

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is a Postgres-backed Store. Statement names are mapped to
// SQL at construction; directive args bind as named arguments
// (@name placeholders).
type PGStore struct {
	pool  *pgxpool.Pool
	stmts map[string]string

	mu  sync.Mutex
	txs map[string]pgx.Tx
}

// NewPool opens a pgx pool from dsn, falling back to the STANZA_DB_URL
// environment variable.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		dsn = os.Getenv("STANZA_DB_URL")
	}
	if dsn == "" {
		return nil, fmt.Errorf("no database DSN (set STANZA_DB_URL or --db)")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// NewPGStore wraps a pool with a named-statement map.
func NewPGStore(pool *pgxpool.Pool, stmts map[string]string) *PGStore {
	return &PGStore{
		pool:  pool,
		stmts: stmts,
		txs:   map[string]pgx.Tx{},
	}
}

// Begin implements Store.
func (s *PGStore) Begin(ctx context.Context, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, open := s.txs[alias]; open {
		return fmt.Errorf("alias %q: %w", alias, ErrTxOpen)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %q: %w", alias, err)
	}
	s.txs[alias] = tx
	return nil
}

// Commit implements Store.
func (s *PGStore) Commit(ctx context.Context, alias string) error {
	tx, err := s.take(alias)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %q: %w", alias, err)
	}
	return nil
}

// Rollback implements Store.
func (s *PGStore) Rollback(ctx context.Context, alias string) error {
	tx, err := s.take(alias)
	if err != nil {
		return err
	}
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("rollback %q: %w", alias, err)
	}
	return nil
}

func (s *PGStore) take(alias string) (pgx.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, open := s.txs[alias]
	if !open {
		return nil, fmt.Errorf("alias %q: %w", alias, ErrTxNotOpen)
	}
	delete(s.txs, alias)
	return tx, nil
}

// Query implements Store.
func (s *PGStore) Query(ctx context.Context, alias, stmt string, args map[string]string) ([]map[string]any, error) {
	sql, ok := s.stmts[stmt]
	if !ok {
		return nil, fmt.Errorf("%q: %w", stmt, ErrUnknownStatement)
	}

	var rows pgx.Rows
	var err error
	if tx := s.tx(alias); tx != nil {
		rows, err = tx.Query(ctx, sql, namedArgs(args))
	} else {
		rows, err = s.pool.Query(ctx, sql, namedArgs(args))
	}
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", stmt, err)
	}
	defer rows.Close()

	var out []map[string]any
	fields := rows.FieldDescriptions()
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", stmt, err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %q: %w", stmt, err)
	}
	return out, nil
}

// Exec implements Store.
func (s *PGStore) Exec(ctx context.Context, alias, stmt string, args map[string]string) (int64, error) {
	sql, ok := s.stmts[stmt]
	if !ok {
		return 0, fmt.Errorf("%q: %w", stmt, ErrUnknownStatement)
	}

	if tx := s.tx(alias); tx != nil {
		tag, err := tx.Exec(ctx, sql, namedArgs(args))
		if err != nil {
			return 0, fmt.Errorf("exec %q: %w", stmt, err)
		}
		return tag.RowsAffected(), nil
	}
	tag, err := s.pool.Exec(ctx, sql, namedArgs(args))
	if err != nil {
		return 0, fmt.Errorf("exec %q: %w", stmt, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) tx(alias string) pgx.Tx {
	if alias == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[alias]
}

func namedArgs(args map[string]string) pgx.NamedArgs {
	na := pgx.NamedArgs{}
	for k, v := range args {
		na[k] = v
	}
	return na
}
