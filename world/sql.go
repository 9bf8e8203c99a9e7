package world

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aatuh/scenario"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver registered as "pgx".
	_ "modernc.org/sqlite"             // Pure-Go SQLite driver.
)

// stateSchema is valid for both SQLite and Postgres.
const stateSchema = `
CREATE TABLE IF NOT EXISTS world_state (
    namespace TEXT NOT NULL,
    state_key TEXT NOT NULL,
    value     TEXT NOT NULL,
    PRIMARY KEY (namespace, state_key)
)`

type sqlDialect struct {
	name   string
	get    string
	upsert string
	del    string
	all    string
	drop   string
	// forget is formatted with a ledger table name.
	forget string
	ledger scenario.LedgerDialect
}

var sqliteDialect = sqlDialect{
	name:   "sqlite",
	get:    `SELECT value FROM world_state WHERE namespace = ? AND state_key = ?`,
	upsert: `INSERT INTO world_state (namespace, state_key, value) VALUES (?, ?, ?) ON CONFLICT (namespace, state_key) DO UPDATE SET value = excluded.value`,
	del:    `DELETE FROM world_state WHERE namespace = ? AND state_key = ?`,
	all:    `SELECT state_key, value FROM world_state WHERE namespace = ?`,
	drop:   `DELETE FROM world_state WHERE namespace = ?`,
	forget: `DELETE FROM %s WHERE namespace = ?`,
	ledger: scenario.SQLiteLedger{},
}

var postgresDialect = sqlDialect{
	name:   "postgres",
	get:    `SELECT value FROM world_state WHERE namespace = $1 AND state_key = $2`,
	upsert: `INSERT INTO world_state (namespace, state_key, value) VALUES ($1, $2, $3) ON CONFLICT (namespace, state_key) DO UPDATE SET value = excluded.value`,
	del:    `DELETE FROM world_state WHERE namespace = $1 AND state_key = $2`,
	all:    `SELECT state_key, value FROM world_state WHERE namespace = $1`,
	drop:   `DELETE FROM world_state WHERE namespace = $1`,
	forget: `DELETE FROM %s WHERE namespace = $1`,
	ledger: scenario.PostgresLedger{},
}

// SQLBackend keeps world state in a SQL table, one row per namespace/key.
type SQLBackend struct {
	db      *sql.DB
	dialect sqlDialect

	mu      sync.Mutex
	ledgers []string
}

// NewSQLiteBackend opens (or creates) a SQLite database at dbPath, enables
// WAL mode and busy timeout, and creates the state table.
func NewSQLiteBackend(ctx context.Context, dbPath string) (*SQLBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("world: open sqlite: %w", err)
	}
	// SQLite has a single writer; one connection avoids SQLITE_BUSY between
	// pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("world: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("world: set busy timeout: %w", err)
	}
	return newSQLBackend(ctx, db, sqliteDialect)
}

// NewPostgresBackend connects to Postgres through the pgx stdlib driver and
// creates the state table.
func NewPostgresBackend(ctx context.Context, dsn string) (*SQLBackend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("world: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("world: ping postgres: %w", err)
	}
	return newSQLBackend(ctx, db, postgresDialect)
}

func newSQLBackend(ctx context.Context, db *sql.DB, d sqlDialect) (*SQLBackend, error) {
	if _, err := db.ExecContext(ctx, stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("world: create %s schema: %w", d.name, err)
	}
	return &SQLBackend{db: db, dialect: d}, nil
}

// DB exposes the underlying connection, e.g. for an enactment ledger.
func (b *SQLBackend) DB() *sql.DB { return b.db }

// History returns an enactment ledger stored in the same database. Drop
// clears a namespace's rows from every ledger handed out here.
func (b *SQLBackend) History(table string) *scenario.History {
	b.mu.Lock()
	if !slices.Contains(b.ledgers, table) {
		b.ledgers = append(b.ledgers, table)
	}
	b.mu.Unlock()
	return scenario.NewHistory(b.db, table, b.dialect.ledger)
}

// Store returns the rows of namespace as a Store.
func (b *SQLBackend) Store(namespace string) Store {
	return &sqlStore{db: b.db, d: b.dialect, ns: namespace}
}

// Drop deletes the state and ledger rows of namespace in one transaction.
func (b *SQLBackend) Drop(ctx context.Context, namespace string) error {
	b.mu.Lock()
	ledgers := slices.Clone(b.ledgers)
	b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("world: drop %s: %w", namespace, err)
	}
	if _, err := tx.ExecContext(ctx, b.dialect.drop, namespace); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("world: drop %s: %w", namespace, err)
	}
	for _, table := range ledgers {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(b.dialect.forget, table), namespace); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("world: drop %s from ledger %s: %w", namespace, table, err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (b *SQLBackend) Close() error { return b.db.Close() }

type sqlStore struct {
	db *sql.DB
	d  sqlDialect
	ns string
}

func (s *sqlStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, s.d.get, s.ns, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("world: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *sqlStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.d.upsert, s.ns, key, value); err != nil {
		return fmt.Errorf("world: set %s: %w", key, err)
	}
	return nil
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.d.del, s.ns, key); err != nil {
		return fmt.Errorf("world: delete %s: %w", key, err)
	}
	return nil
}

func (s *sqlStore) Snapshot(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, s.d.all, s.ns)
	if err != nil {
		return nil, fmt.Errorf("world: snapshot: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
