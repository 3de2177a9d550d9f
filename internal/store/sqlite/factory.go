package sqlite

import (
	"database/sql"

	"github.com/nextlevelbuilder/agentrt/internal/store"
)

// New opens the sqlite file at path and assembles the full store.Stores
// bundle backed by it.
func New(path, encryptionKey string) (*store.Stores, *sql.DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, nil, err
	}
	stores := &store.Stores{
		Sessions: NewSessionStore(db),
		MCP:      NewMCPServerStore(db, encryptionKey),
	}
	return stores, db, nil
}
