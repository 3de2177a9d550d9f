// Package config owns the runtime's persisted settings: project root,
// engine model/GPU preference, federated MCP servers, session-store backend
// selection, and telemetry. API keys never live in the file itself — they
// are kept in the OS keychain and referenced by entry name.
package config

import (
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/nextlevelbuilder/agentrt/internal/store"
)

// keyringService namespaces every secret this runtime stores in the
// platform keychain, so a shared machine keychain never collides with an
// unrelated app's entries under the same key name.
const keyringService = "agentrt"

// Config is the full persisted settings document, round-tripped through
// JSON5 (comments and trailing commas tolerated) by Load/Save.
type Config struct {
	Project    ProjectConfig               `json:"project"`
	Engine     EngineConfig                `json:"engine"`
	Store      store.StoreConfig           `json:"store"`
	Telemetry  TelemetryConfig             `json:"telemetry"`
	MCPServers map[string]*MCPServerConfig `json:"mcp_servers,omitempty"`

	// ChatWrapperCache remembers the auto-detected chat-template family for
	// a given model path (internal/engine.detectWrapperFamily result),
	// keyed by absolute model path, so a restart doesn't need to re-sniff.
	ChatWrapperCache map[string]string `json:"chat_wrapper_cache,omitempty"`

	mu sync.RWMutex
}

// ProjectConfig is the active workspace the Path & Command Sanitizer and
// every file/terminal/git tool canonicalize against.
type ProjectConfig struct {
	Root string `json:"root"`
}

// EngineConfig selects the model the LLM Engine loads and how aggressively
// it offloads to GPU. APIKeyRef names a keyring entry rather than holding a
// secret directly — the local-GGUF-server client usually needs no key at
// all, but a remote OpenAI-compatible endpoint might.
type EngineConfig struct {
	ModelPath         string `json:"model_path"`
	BaseURL           string `json:"base_url"` // e.g. http://127.0.0.1:8080/v1
	GPUPreference     string `json:"gpu_preference"` // "auto" | "cpu"
	ThinkingSupported bool   `json:"thinking_supported"`
	APIKeyRef         string `json:"api_key_ref,omitempty"`
}

// TelemetryConfig configures the OTel exporter backing RunTrace/Span
//.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" | "http"
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// MCPServerConfig is a statically configured federated tool server
// (internal/mcp.Manager's WithConfigs source). Mirrors store.MCPServerData
// for the runtime-registered equivalent.
type MCPServerConfig struct {
	Enabled    bool              `json:"enabled"`
	Transport  string            `json:"transport"` // "stdio" | "sse" | "streamable-http"
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	ToolPrefix string            `json:"tool_prefix,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty"`
}

// IsEnabled reports whether this server should be connected at startup.
func (c *MCPServerConfig) IsEnabled() bool { return c != nil && c.Enabled }

// ResolveAPIKey reads the engine's API key from the platform keychain by
// the configured reference name. Returns "" with no error when no key is
// configured — a local server legitimately needs none.
func (c *Config) ResolveAPIKey() (string, error) {
	c.mu.RLock()
	ref := c.Engine.APIKeyRef
	c.mu.RUnlock()
	if ref == "" {
		return "", nil
	}
	key, err := keyring.Get(keyringService, ref)
	if err != nil {
		return "", fmt.Errorf("keyring lookup %q: %w", ref, err)
	}
	return key, nil
}

// StoreAPIKey writes a secret into the platform keychain under ref and
// points EngineConfig.APIKeyRef at it, so Save never persists the secret
// itself to disk.
func (c *Config) StoreAPIKey(ref, value string) error {
	if err := keyring.Set(keyringService, ref, value); err != nil {
		return fmt.Errorf("keyring store %q: %w", ref, err)
	}
	c.mu.Lock()
	c.Engine.APIKeyRef = ref
	c.mu.Unlock()
	return nil
}

// WrapperFamilyFor returns the cached chat-template family for modelPath,
// if one was recorded on a previous load.
func (c *Config) WrapperFamilyFor(modelPath string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ChatWrapperCache[modelPath]
}

// RememberWrapperFamily records the auto-detected chat-template family for
// modelPath for reuse on the next Load.
func (c *Config) RememberWrapperFamily(modelPath, family string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ChatWrapperCache == nil {
		c.ChatWrapperCache = make(map[string]string)
	}
	c.ChatWrapperCache[modelPath] = family
}

// SetProjectRoot updates the active workspace root.
func (c *Config) SetProjectRoot(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Project.Root = root
}

// ProjectRoot returns the active workspace root.
func (c *Config) ProjectRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Project.Root
}
