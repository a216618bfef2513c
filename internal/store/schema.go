// Package store хранит результаты разбора в sqlite
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const SchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    name TEXT,
    file_name TEXT,
    parsed_at TEXT,
    total_clauses INTEGER,
    summary TEXT,
    metadata TEXT
);

CREATE TABLE IF NOT EXISTS clauses (
    document_id TEXT NOT NULL,
    clause_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    title TEXT,
    risk_level TEXT,
    risk_score INTEGER,
    non_analyzable INTEGER,
    payload TEXT,
    PRIMARY KEY (document_id, clause_id)
);

CREATE INDEX IF NOT EXISTS idx_clauses_document ON clauses(document_id, position);
`

func openDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite не любит параллельных писателей
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(SchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
