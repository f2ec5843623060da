// Package index provides the SQLite-backed attribute index shared by all
// cached models, with optional FTS5 search over attribute names.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS catalogs (
	model_id       TEXT PRIMARY KEY,
	schema_version INTEGER NOT NULL DEFAULT 0,
	checksum       TEXT NOT NULL DEFAULT '',
	attr_count     INTEGER NOT NULL DEFAULT 0,
	skipped        INTEGER NOT NULL DEFAULT 0,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS attributes (
	model_id  TEXT NOT NULL REFERENCES catalogs(model_id) ON DELETE CASCADE,
	attr_id   TEXT NOT NULL,
	name      TEXT NOT NULL DEFAULT '',
	category  TEXT NOT NULL DEFAULT '',
	data_type INTEGER NOT NULL DEFAULT 0,
	flags     INTEGER NOT NULL DEFAULT 0,
	family    TEXT NOT NULL DEFAULT '',
	col       TEXT NOT NULL DEFAULT '',
	hash      TEXT NOT NULL DEFAULT '',
	scheme    TEXT NOT NULL DEFAULT '',
	native    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (model_id, attr_id)
);

CREATE INDEX IF NOT EXISTS idx_attributes_hash ON attributes(hash);
CREATE INDEX IF NOT EXISTS idx_attributes_name ON attributes(category, name);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
