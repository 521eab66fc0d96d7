// Package store is the SQLite-backed schema store and repository layer for
// libraries, groups, categories and tags.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/tagshelf/internal/apperr"
)

var errNotOpen = errors.New("store: not open")

// DB is the process-wide store handle. Open is idempotent; Close releases the
// connection and allows a later Open.
type DB struct {
	dsn    string
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *sql.DB
	reader *sql.DB

	// cascadeHook, when set, runs before every delete step of a cascade.
	cascadeHook func(table string) error
}

// New creates a store handle for the SQLite file at dsn. No I/O happens until Open.
func New(dsn string, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{dsn: dsn, logger: logger}
}

// Open connects to the database and migrates it to LatestVersion.
// Calling Open on an open handle is a no-op.
func (db *DB) Open(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn != nil {
		return nil
	}

	conn, err := sql.Open("sqlite3", connString(db.dsn, writerParams))
	if err != nil {
		return fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("store: ping: %w", err)
	}
	if err := migrate(ctx, conn, db.logger); err != nil {
		conn.Close()
		return err
	}

	// Readers begin deferred transactions so they never take the write lock.
	reader, err := sql.Open("sqlite3", connString(db.dsn, readerParams))
	if err != nil {
		conn.Close()
		return fmt.Errorf("store: open reader: %w", err)
	}
	if err := reader.PingContext(ctx); err != nil {
		reader.Close()
		conn.Close()
		return fmt.Errorf("store: ping reader: %w", err)
	}

	db.conn = conn
	db.reader = reader
	return nil
}

// Close closes the underlying connection. Closing a closed handle is a no-op.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return nil
	}
	err := errors.Join(db.reader.Close(), db.conn.Close())
	db.conn = nil
	db.reader = nil
	return err
}

// SchemaVersion returns the version recorded in the open database.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	conn, err := db.handle()
	if err != nil {
		return 0, err
	}
	return detectVersion(ctx, conn)
}

// Repos returns autocommit repositories. Multi-row operations on them still
// run in their own transaction.
func (db *DB) Repos() *Repos {
	return &Repos{db: db}
}

// InTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise; fn's error is returned unchanged.
func (db *DB) InTx(ctx context.Context, fn func(r *Repos) error) error {
	conn, err := db.handle()
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Persistence(err, "store: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&Repos{db: db, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Persistence(err, "store: commit")
	}
	return nil
}

// InReadTx runs fn inside a read-only deferred transaction. It sees one
// consistent snapshot and does not block writers.
func (db *DB) InReadTx(ctx context.Context, fn func(r *Repos) error) error {
	db.mu.RLock()
	reader := db.reader
	db.mu.RUnlock()
	if reader == nil {
		return apperr.Persistence(errNotOpen, "store")
	}
	tx, err := reader.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return apperr.Persistence(err, "store: begin read tx")
	}
	defer tx.Rollback() //nolint:errcheck

	return fn(&Repos{db: db, tx: tx})
}

func (db *DB) handle() (*sql.DB, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.conn == nil {
		return nil, apperr.Persistence(errNotOpen, "store")
	}
	return db.conn, nil
}

const (
	writerParams = "_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	readerParams = "_busy_timeout=5000&_txlock=deferred&_query_only=1"
)

func connString(dsn, params string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + params
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type closedQuerier struct{}

func (closedQuerier) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errNotOpen
}

func (closedQuerier) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errNotOpen
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// queryRow runs a single-row query and scans it into dest.
// It returns sql.ErrNoRows when nothing matches.
func queryRow(ctx context.Context, q querier, query string, args []any, dest ...any) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return rows.Scan(dest...)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
