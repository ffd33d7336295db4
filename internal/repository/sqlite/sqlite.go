// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// Execution history is small, append-only and local to one server. An
// embedded database keeps it in a single file next to the binary with no
// database server to run, and ":memory:" gives every test a fresh store.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the service still cross-compiles
// without a C toolchain. That matters here more than usual: the hosts this
// runs on have compilers installed for the submissions, not for us.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/executions.db" → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database. Pin the
	// pool to one connection so all queries see the same tables.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets the history listing read while an execution is being recorded.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	// Concurrent executions finish at the same time; wait for the write
	// lock instead of failing with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id          TEXT PRIMARY KEY,
			language    TEXT NOT NULL,
			stage       TEXT NOT NULL,
			exit_code   INTEGER,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			code_size   INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_executions_created_at ON executions(created_at);
		CREATE INDEX IF NOT EXISTS idx_executions_language ON executions(language);
	`)
	if err != nil {
		return fmt.Errorf("creating executions table: %w", err)
	}
	return nil
}
