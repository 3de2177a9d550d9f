// Package sqlite implements the file-based, zero-dependency-server session
// and MCP-server stores backed by modernc.org/sqlite (a pure-Go driver, so
// the runtime never needs cgo to run with a local database).
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                  TEXT PRIMARY KEY,
	session_key         TEXT NOT NULL UNIQUE,
	messages            TEXT NOT NULL DEFAULT '[]',
	summary             TEXT,
	model               TEXT,
	backend             TEXT,
	project_root        TEXT,
	input_tokens        INTEGER NOT NULL DEFAULT 0,
	output_tokens       INTEGER NOT NULL DEFAULT 0,
	rotation_count      INTEGER NOT NULL DEFAULT 0,
	label               TEXT,
	context_window      INTEGER NOT NULL DEFAULT 0,
	last_prompt_tokens  INTEGER NOT NULL DEFAULT 0,
	last_message_count  INTEGER NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions (updated_at DESC);

CREATE TABLE IF NOT EXISTS mcp_servers (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	display_name  TEXT,
	transport     TEXT NOT NULL,
	command       TEXT,
	args          TEXT,
	url           TEXT,
	headers       TEXT,
	env           TEXT,
	api_key       TEXT,
	tool_prefix   TEXT,
	timeout_sec   INTEGER NOT NULL DEFAULT 30,
	enabled       INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);
`

// OpenDB opens (creating if absent) a sqlite database file at path and
// ensures the schema exists.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid lock contention
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}
