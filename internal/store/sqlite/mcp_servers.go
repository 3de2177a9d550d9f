package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentrt/internal/crypto"
	"github.com/nextlevelbuilder/agentrt/internal/store"
)

// MCPServerStore implements store.MCPServerStore backed by a sqlite file.
type MCPServerStore struct {
	db     *sql.DB
	encKey string
}

func NewMCPServerStore(db *sql.DB, encryptionKey string) *MCPServerStore {
	return &MCPServerStore{db: db, encKey: encryptionKey}
}

func (s *MCPServerStore) CreateServer(ctx context.Context, srv *store.MCPServerData) error {
	if srv.ID == "" {
		srv.ID = uuid.NewString()
	}
	apiKey := srv.APIKey
	if s.encKey != "" && apiKey != "" {
		encrypted, err := crypto.Encrypt(apiKey, s.encKey)
		if err != nil {
			return fmt.Errorf("encrypt api key: %w", err)
		}
		apiKey = encrypted
	}
	now := time.Now()
	srv.CreatedAt = now
	srv.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mcp_servers (id, name, display_name, transport, command, args, url, headers, env,
		 api_key, tool_prefix, timeout_sec, enabled, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		srv.ID, srv.Name, nilStr(srv.DisplayName), srv.Transport, nilStr(srv.Command),
		jsonOrNil(srv.Args), nilStr(srv.URL), jsonOrNil(srv.Headers), jsonOrNil(srv.Env),
		nilStr(apiKey), nilStr(srv.ToolPrefix), srv.TimeoutSec, boolToInt(srv.Enabled), now, now,
	)
	return err
}

func (s *MCPServerStore) GetServer(ctx context.Context, id string) (*store.MCPServerData, error) {
	return s.scanServer(s.db.QueryRowContext(ctx,
		`SELECT id, name, display_name, transport, command, args, url, headers, env,
		 api_key, tool_prefix, timeout_sec, enabled, created_at, updated_at
		 FROM mcp_servers WHERE id = ?`, id))
}

func (s *MCPServerStore) GetServerByName(ctx context.Context, name string) (*store.MCPServerData, error) {
	return s.scanServer(s.db.QueryRowContext(ctx,
		`SELECT id, name, display_name, transport, command, args, url, headers, env,
		 api_key, tool_prefix, timeout_sec, enabled, created_at, updated_at
		 FROM mcp_servers WHERE name = ?`, name))
}

func (s *MCPServerStore) scanServer(row *sql.Row) (*store.MCPServerData, error) {
	var srv store.MCPServerData
	var displayName, command, url, headers, env, args, apiKey, toolPrefix *string
	var enabledInt int
	err := row.Scan(
		&srv.ID, &srv.Name, &displayName, &srv.Transport, &command,
		&args, &url, &headers, &env,
		&apiKey, &toolPrefix, &srv.TimeoutSec,
		&enabledInt, &srv.CreatedAt, &srv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	srv.DisplayName = derefStr(displayName)
	srv.Command = derefStr(command)
	srv.URL = derefStr(url)
	srv.ToolPrefix = derefStr(toolPrefix)
	srv.Enabled = enabledInt != 0
	if args != nil {
		srv.Args = []byte(*args)
	}
	if headers != nil {
		srv.Headers = []byte(*headers)
	}
	if env != nil {
		srv.Env = []byte(*env)
	}
	srv.APIKey = decryptOrRaw(apiKey, s.encKey, srv.Name)
	return &srv, nil
}

func decryptOrRaw(apiKey *string, encKey, serverName string) string {
	if apiKey == nil || *apiKey == "" {
		return ""
	}
	if encKey == "" {
		return *apiKey
	}
	decrypted, err := crypto.Decrypt(*apiKey, encKey)
	if err != nil {
		slog.Warn("mcp: failed to decrypt server api key", "server", serverName, "error", err)
		return ""
	}
	return decrypted
}

func (s *MCPServerStore) ListServers(ctx context.Context) ([]store.MCPServerData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, display_name, transport, command, args, url, headers, env,
		 api_key, tool_prefix, timeout_sec, enabled, created_at, updated_at
		 FROM mcp_servers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.MCPServerData
	for rows.Next() {
		var srv store.MCPServerData
		var displayName, command, url, headers, env, args, apiKey, toolPrefix *string
		var enabledInt int
		if err := rows.Scan(
			&srv.ID, &srv.Name, &displayName, &srv.Transport, &command,
			&args, &url, &headers, &env,
			&apiKey, &toolPrefix, &srv.TimeoutSec,
			&enabledInt, &srv.CreatedAt, &srv.UpdatedAt,
		); err != nil {
			continue
		}
		srv.DisplayName = derefStr(displayName)
		srv.Command = derefStr(command)
		srv.URL = derefStr(url)
		srv.ToolPrefix = derefStr(toolPrefix)
		srv.Enabled = enabledInt != 0
		if args != nil {
			srv.Args = []byte(*args)
		}
		if headers != nil {
			srv.Headers = []byte(*headers)
		}
		if env != nil {
			srv.Env = []byte(*env)
		}
		srv.APIKey = decryptOrRaw(apiKey, s.encKey, srv.Name)
		result = append(result, srv)
	}
	return result, nil
}

func (s *MCPServerStore) UpdateServer(ctx context.Context, id string, updates map[string]any) error {
	if key, ok := updates["api_key"]; ok {
		if keyStr, isStr := key.(string); isStr && keyStr != "" && s.encKey != "" {
			encrypted, err := crypto.Encrypt(keyStr, s.encKey)
			if err != nil {
				return fmt.Errorf("encrypt api key: %w", err)
			}
			updates["api_key"] = encrypted
		}
	}
	if v, ok := updates["enabled"]; ok {
		if b, isBool := v.(bool); isBool {
			updates["enabled"] = boolToInt(b)
		}
	}
	updates["updated_at"] = time.Now()

	cols := make([]string, 0, len(updates))
	args := make([]any, 0, len(updates)+1)
	for col, val := range updates {
		cols = append(cols, col+" = ?")
		args = append(args, val)
	}
	args = append(args, id)
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE mcp_servers SET %s WHERE id = ?", strings.Join(cols, ", ")), args...)
	return err
}

func (s *MCPServerStore) DeleteServer(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM mcp_servers WHERE id = ?", id)
	return err
}

func jsonOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
