package scenario

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Executor is an interface that both *sql.DB and *sql.Tx implement.
type Executor interface {
	ExecContext(
		ctx context.Context, query string, args ...any,
	) (sql.Result, error)
}

// LedgerDialect defines the SQL used to keep the enactment ledger.
type LedgerDialect interface {
	// EnsureLedgerTable creates the ledger table if it does not exist.
	EnsureLedgerTable(ctx context.Context, db *sql.DB, tableName string) error
	// RecordEnactment inserts a record for an enacted migration.
	RecordEnactment(
		ctx context.Context,
		exec Executor,
		tableName string,
		namespace string,
		migration string,
	) error
	// RemoveEnactment deletes the record for the given migration.
	RemoveEnactment(
		ctx context.Context,
		exec Executor,
		tableName string,
		namespace string,
		migration string,
	) error
	// Enactments retrieves the enacted migrations of a namespace as a set.
	Enactments(
		ctx context.Context, db *sql.DB, tableName string, namespace string,
	) (map[string]bool, error)
}

// PostgresLedger implements LedgerDialect for Postgres.
type PostgresLedger struct{}

// NewPostgresLedger returns a new PostgresLedger.
//
// Returns:
//   - *PostgresLedger: A new PostgresLedger instance.
func NewPostgresLedger() *PostgresLedger {
	return &PostgresLedger{}
}

// EnsureLedgerTable creates the ledger table in Postgres.
//
// Parameters:
//   - ctx: Context to use.
//   - db: The database connection.
//   - tableName: The name of the ledger table.
//
// Returns:
//   - error: An error if the table creation fails.
func (p PostgresLedger) EnsureLedgerTable(
	ctx context.Context, db *sql.DB, tableName string,
) error {
	query := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
		namespace VARCHAR(255) NOT NULL,
		migration VARCHAR(255) NOT NULL,
		enacted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (namespace, migration))`,
		tableName,
	)
	_, err := db.ExecContext(ctx, query)
	return err
}

// RecordEnactment inserts an enactment record in Postgres. Recording the
// same migration twice is a no-op.
func (p PostgresLedger) RecordEnactment(
	ctx context.Context,
	exec Executor,
	tableName string,
	namespace string,
	migration string,
) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (namespace, migration, enacted_at) VALUES ($1, $2, $3)
		ON CONFLICT (namespace, migration) DO NOTHING`,
		tableName,
	)
	_, err := exec.ExecContext(ctx, query, namespace, migration, time.Now().UTC())
	return err
}

// RemoveEnactment deletes the enactment record in Postgres.
func (p PostgresLedger) RemoveEnactment(
	ctx context.Context,
	exec Executor,
	tableName string,
	namespace string,
	migration string,
) error {
	query := fmt.Sprintf(
		`DELETE FROM %s WHERE namespace = $1 AND migration = $2`,
		tableName,
	)
	_, err := exec.ExecContext(ctx, query, namespace, migration)
	return err
}

// Enactments retrieves the enacted migrations of a namespace from Postgres.
func (p PostgresLedger) Enactments(
	ctx context.Context, db *sql.DB, tableName string, namespace string,
) (map[string]bool, error) {
	query := fmt.Sprintf(
		`SELECT migration FROM %s WHERE namespace = $1`, tableName,
	)
	return scanEnactments(ctx, db, query, namespace)
}

// SQLiteLedger implements LedgerDialect for SQLite.
type SQLiteLedger struct{}

// NewSQLiteLedger returns a new SQLiteLedger.
//
// Returns:
//   - *SQLiteLedger: A new SQLiteLedger instance.
func NewSQLiteLedger() *SQLiteLedger {
	return &SQLiteLedger{}
}

// EnsureLedgerTable creates the ledger table in SQLite.
//
// Parameters:
//   - ctx: Context to use.
//   - db: The database connection.
//   - tableName: The name of the ledger table.
//
// Returns:
//   - error: An error if the table creation fails.
func (s SQLiteLedger) EnsureLedgerTable(
	ctx context.Context, db *sql.DB, tableName string,
) error {
	query := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
		namespace TEXT NOT NULL,
		migration TEXT NOT NULL,
		enacted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (namespace, migration))`,
		tableName,
	)
	_, err := db.ExecContext(ctx, query)
	return err
}

// RecordEnactment inserts an enactment record in SQLite. Recording the same
// migration twice is a no-op.
//
// Parameters:
//   - ctx: Context to use.
//   - exec: The executor to use.
//   - tableName: The name of the ledger table.
//   - namespace: The world namespace the migration was enacted in.
//   - migration: The migration name.
//
// Returns:
//   - error: An error if the record insertion fails.
func (s SQLiteLedger) RecordEnactment(
	ctx context.Context,
	exec Executor,
	tableName string,
	namespace string,
	migration string,
) error {
	query := fmt.Sprintf(
		`INSERT OR IGNORE INTO %s (namespace, migration, enacted_at) VALUES (?, ?, ?)`,
		tableName,
	)
	_, err := exec.ExecContext(ctx, query, namespace, migration, time.Now().UTC())
	return err
}

// RemoveEnactment deletes the enactment record in SQLite.
func (s SQLiteLedger) RemoveEnactment(
	ctx context.Context,
	exec Executor,
	tableName string,
	namespace string,
	migration string,
) error {
	query := fmt.Sprintf(
		`DELETE FROM %s WHERE namespace = ? AND migration = ?`,
		tableName,
	)
	_, err := exec.ExecContext(ctx, query, namespace, migration)
	return err
}

// Enactments retrieves the enacted migrations of a namespace from SQLite.
func (s SQLiteLedger) Enactments(
	ctx context.Context, db *sql.DB, tableName string, namespace string,
) (map[string]bool, error) {
	query := fmt.Sprintf(
		`SELECT migration FROM %s WHERE namespace = ?`, tableName,
	)
	return scanEnactments(ctx, db, query, namespace)
}

func scanEnactments(
	ctx context.Context, db *sql.DB, query string, namespace string,
) (map[string]bool, error) {
	enacted := make(map[string]bool)
	rows, err := db.QueryContext(ctx, query, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		enacted[name] = true
	}
	return enacted, rows.Err()
}

// History binds a ledger dialect to a database and table.
type History struct {
	DB      *sql.DB
	Table   string
	Dialect LedgerDialect
}

// NewHistory returns a new History. If dialect is nil, it defaults to
// SQLiteLedger.
//
// Parameters:
//   - db: A connection to the ledger database.
//   - table: The name of the ledger table.
//   - dialect: Optional LedgerDialect. Defaults to SQLiteLedger.
//
// Returns:
//   - *History: A new History.
func NewHistory(db *sql.DB, table string, dialect LedgerDialect) *History {
	if dialect == nil {
		dialect = SQLiteLedger{}
	}
	return &History{DB: db, Table: table, Dialect: dialect}
}

// Ensure creates the ledger table if needed.
func (h *History) Ensure(ctx context.Context) error {
	if err := h.Dialect.EnsureLedgerTable(ctx, h.DB, h.Table); err != nil {
		return fmt.Errorf("ensure ledger table %s: %w", h.Table, err)
	}
	return nil
}

// Record marks migration as enacted in env's namespace.
func (h *History) Record(ctx context.Context, env DeploymentManager, migration string) error {
	return h.Dialect.RecordEnactment(ctx, h.DB, h.Table, NamespaceOf(env), migration)
}

// Remove forgets the enactment of migration in env's namespace.
func (h *History) Remove(ctx context.Context, env DeploymentManager, migration string) error {
	return h.Dialect.RemoveEnactment(ctx, h.DB, h.Table, NamespaceOf(env), migration)
}

// Enacted returns the migrations recorded for env's namespace.
func (h *History) Enacted(ctx context.Context, env DeploymentManager) (map[string]bool, error) {
	return h.Dialect.Enactments(ctx, h.DB, h.Table, NamespaceOf(env))
}

// EnactedFn returns a predicate reporting whether migration is recorded in
// the ledger for the environment it is evaluated against.
func (h *History) EnactedFn(migration string) EnactedFn {
	return func(ctx context.Context, env DeploymentManager) (bool, error) {
		enacted, err := h.Enacted(ctx, env)
		if err != nil {
			return false, err
		}
		return enacted[migration], nil
	}
}

// Track wraps src so that its migrations without an enacted predicate are
// reported enacted once the ledger records them.
//
// Parameters:
//   - src: The source to wrap.
//
// Returns:
//   - MigrationSource: The wrapped source. It keeps src's label.
func (h *History) Track(src MigrationSource) MigrationSource {
	return &trackedSource{src: src, history: h}
}

type trackedSource struct {
	src     MigrationSource
	history *History
}

func (t *trackedSource) LoadMigrations() ([]Migration, error) {
	migs, err := t.src.LoadMigrations()
	if err != nil {
		return nil, err
	}
	for i := range migs {
		if migs[i].Actions.Enacted == nil {
			migs[i].Actions.Enacted = t.history.EnactedFn(migs[i].Name)
		}
	}
	return migs, nil
}

func (t *trackedSource) String() string {
	return sourceLabel(t.src)
}
