package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentrt/internal/crypto"
	"github.com/nextlevelbuilder/agentrt/internal/store"
)

// MCPServerStore is the default backend for store.MCPServerStore: a single
// JSON file under the workspace's data directory, written with the same
// atomic temp-file-plus-rename approach the tool package's memory store
// uses, so a crash mid-save never leaves a truncated file.
type MCPServerStore struct {
	path   string
	encKey string

	mu      sync.Mutex
	servers map[string]*store.MCPServerData // keyed by ID
}

func NewMCPServerStore(path, encryptionKey string) *MCPServerStore {
	s := &MCPServerStore{path: path, encKey: encryptionKey, servers: make(map[string]*store.MCPServerData)}
	s.load()
	return s
}

func (s *MCPServerStore) load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var list []store.MCPServerData
	if err := json.Unmarshal(raw, &list); err != nil {
		return
	}
	for i := range list {
		srv := list[i]
		srv.APIKey = decryptOrRaw(srv.APIKey, s.encKey, srv.Name)
		s.servers[srv.ID] = &srv
	}
}

func (s *MCPServerStore) saveLocked() error {
	list := make([]store.MCPServerData, 0, len(s.servers))
	for _, srv := range s.servers {
		snapshot := *srv
		if s.encKey != "" && snapshot.APIKey != "" {
			if encrypted, err := crypto.Encrypt(snapshot.APIKey, s.encKey); err == nil {
				snapshot.APIKey = encrypted
			}
		}
		list = append(list, snapshot)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(s.path, data)
}

func decryptOrRaw(apiKey, encKey, name string) string {
	if apiKey == "" || encKey == "" {
		return apiKey
	}
	decrypted, err := crypto.Decrypt(apiKey, encKey)
	if err != nil {
		return apiKey // stored plaintext (e.g. encryption key rotated)
	}
	return decrypted
}

func (s *MCPServerStore) CreateServer(ctx context.Context, srv *store.MCPServerData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if srv.ID == "" {
		srv.ID = uuid.NewString()
	}
	now := time.Now()
	srv.CreatedAt = now
	srv.UpdatedAt = now
	cp := *srv
	s.servers[srv.ID] = &cp
	return s.saveLocked()
}

func (s *MCPServerStore) GetServer(ctx context.Context, id string) (*store.MCPServerData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[id]
	if !ok {
		return nil, fmt.Errorf("mcp server %q not found", id)
	}
	cp := *srv
	return &cp, nil
}

func (s *MCPServerStore) GetServerByName(ctx context.Context, name string) (*store.MCPServerData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, srv := range s.servers {
		if srv.Name == name {
			cp := *srv
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("mcp server %q not found", name)
}

func (s *MCPServerStore) ListServers(ctx context.Context) ([]store.MCPServerData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]store.MCPServerData, 0, len(s.servers))
	for _, srv := range s.servers {
		list = append(list, *srv)
	}
	return list, nil
}

func (s *MCPServerStore) UpdateServer(ctx context.Context, id string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[id]
	if !ok {
		return fmt.Errorf("mcp server %q not found", id)
	}
	applyUpdates(srv, updates)
	srv.UpdatedAt = time.Now()
	return s.saveLocked()
}

func (s *MCPServerStore) DeleteServer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.servers, id)
	return s.saveLocked()
}

func applyUpdates(srv *store.MCPServerData, updates map[string]any) {
	for k, v := range updates {
		switch k {
		case "display_name":
			srv.DisplayName, _ = v.(string)
		case "transport":
			srv.Transport, _ = v.(string)
		case "command":
			srv.Command, _ = v.(string)
		case "url":
			srv.URL, _ = v.(string)
		case "api_key":
			srv.APIKey, _ = v.(string)
		case "tool_prefix":
			srv.ToolPrefix, _ = v.(string)
		case "timeout_sec":
			if n, ok := v.(int); ok {
				srv.TimeoutSec = n
			}
		case "enabled":
			if b, ok := v.(bool); ok {
				srv.Enabled = b
			}
		}
	}
}
