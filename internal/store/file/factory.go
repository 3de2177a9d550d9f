package file

import (
	"path/filepath"

	"github.com/nextlevelbuilder/agentrt/internal/sessions"
	"github.com/nextlevelbuilder/agentrt/internal/store"
)

// New assembles the default file-backed store.Stores: sessions persisted as
// one JSON file per session under dir/sessions, MCP server registrations in
// a single dir/mcp_servers.json.
func New(dir, encryptionKey string) *store.Stores {
	mgr := sessions.NewManager(filepath.Join(dir, "sessions"))
	return &store.Stores{
		Sessions: NewFileSessionStore(mgr),
		MCP:      NewMCPServerStore(filepath.Join(dir, "mcp_servers.json"), encryptionKey),
	}
}
