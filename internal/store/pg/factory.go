package pg

import (
	"database/sql"

	"github.com/nextlevelbuilder/agentrt/internal/store"
)

// New opens a Postgres connection (applying migrations) and assembles the
// full store.Stores bundle backed by it.
func New(dsn, encryptionKey string) (*store.Stores, *sql.DB, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, nil, err
	}
	stores := &store.Stores{
		Sessions: NewPGSessionStore(db),
		MCP:      NewPGMCPServerStore(db, encryptionKey),
	}
	return stores, db, nil
}
