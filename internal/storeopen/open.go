// Package storeopen selects and wires a store.Stores implementation from a
// store.StoreConfig. It is kept separate from internal/store to avoid an
// import cycle: the file/sqlite/pg backends all depend on internal/store's
// interfaces, so whatever assembles them can't live inside that package.
package storeopen

import (
	"database/sql"
	"fmt"

	"github.com/nextlevelbuilder/agentrt/internal/store"
	"github.com/nextlevelbuilder/agentrt/internal/store/file"
	"github.com/nextlevelbuilder/agentrt/internal/store/pg"
	"github.com/nextlevelbuilder/agentrt/internal/store/sqlite"
)

// Open wires the backend named in cfg.Backend ("file", "sqlite", or
// "postgres"). The returned *sql.DB is nil for the file backend, which has
// no single underlying connection to close.
func Open(cfg store.StoreConfig) (*store.Stores, *sql.DB, error) {
	switch cfg.Backend {
	case "", "file":
		dir := cfg.FileDir
		if dir == "" {
			dir = "."
		}
		return file.New(dir, cfg.EncryptionKey), nil, nil
	case "sqlite":
		return sqlite.New(cfg.SQLitePath, cfg.EncryptionKey)
	case "postgres":
		return pg.New(cfg.PostgresDSN, cfg.EncryptionKey)
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
