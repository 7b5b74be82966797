// Package store persists notes as flat per-fragment rows in SQLite.
//
// Every operation holds one exclusive lock around the single shared
// connection for its full duration, and every multi-statement write runs in
// one transaction.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS note_text_elements (
	note_id INTEGER NOT NULL,
	content TEXT    NOT NULL,
	num     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS note_image_elements (
	note_id INTEGER NOT NULL,
	path    TEXT    NOT NULL,
	num     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_text_note  ON note_text_elements(note_id);
CREATE INDEX IF NOT EXISTS idx_image_note ON note_image_elements(note_id);
`

// DB wraps the SQLite connection with note row operations.
type DB struct {
	mu   sync.Mutex
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
