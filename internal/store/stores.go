package store

import "time"

// Stores is the top-level container for the runtime's persistence layer.
// A workspace wires exactly one backend (file, sqlite, or postgres)
// into both fields; the agentic loop and tool server only
// ever depend on the interfaces below, never on a concrete backend.
type Stores struct {
	Sessions SessionStore
	MCP      MCPServerStore
}

// StoreConfig selects and configures a storage backend.
type StoreConfig struct {
	Backend     string // "file" | "sqlite" | "postgres"
	FileDir     string // backend=file: directory holding one JSON file per session
	SQLitePath  string // backend=sqlite: path to the database file
	PostgresDSN string // backend=postgres: connection string

	// EncryptionKey, when set, is used by every backend (file, sqlite and
	// postgres) to encrypt MCP server API keys at rest; when empty, keys
	// are stored as given.
	EncryptionKey string
}

// BaseModel holds the id and timestamp fields common to stored records.
// No record type in the backends embeds it; each declares its own fields.
type BaseModel struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
