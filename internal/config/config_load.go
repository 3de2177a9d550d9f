package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/agentrt/internal/store"
)

// Default returns a Config with sensible defaults for a freshly initialized
// workspace: file-backed sessions under ~/.agentrt/sessions in the user's
// home directory, no model loaded yet, telemetry off.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			BaseURL:       "http://127.0.0.1:8080/v1",
			GPUPreference: "auto",
		},
		Store: store.StoreConfig{
			Backend: "file",
			FileDir: "~/.agentrt/sessions",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error — Default() plus env overrides is a valid config
// for a first run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config; env vars take
// precedence over file values so secrets and per-machine settings never
// need to round-trip through the config file.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("AGENTRT_PROJECT_ROOT", &c.Project.Root)
	envStr("AGENTRT_MODEL_PATH", &c.Engine.ModelPath)
	envStr("AGENTRT_ENGINE_BASE_URL", &c.Engine.BaseURL)
	envStr("AGENTRT_GPU_PREFERENCE", &c.Engine.GPUPreference)
	envStr("AGENTRT_API_KEY_REF", &c.Engine.APIKeyRef)

	envStr("AGENTRT_STORE_BACKEND", &c.Store.Backend)
	envStr("AGENTRT_STORE_FILE_DIR", &c.Store.FileDir)
	envStr("AGENTRT_STORE_SQLITE_PATH", &c.Store.SQLitePath)
	envStr("AGENTRT_STORE_POSTGRES_DSN", &c.Store.PostgresDSN)

	envStr("AGENTRT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("AGENTRT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("AGENTRT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("AGENTRT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTRT_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTRT_THINKING_SUPPORTED"); v != "" {
		c.Engine.ThinkingSupported = v == "true" || v == "1"
	}
}

// Save writes the config to a JSON file. Secrets never reach this file —
// EngineConfig.APIKeyRef is a keyring entry name, not the key itself.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a short SHA-256 digest of the config's JSON encoding (the
// first 8 bytes, hex-encoded), so two configs can be compared cheaply.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}

// resolveTimeoutSec parses a timeout in whole seconds from v, returning
// fallback when v is empty or not a positive integer.
func resolveTimeoutSec(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
		return sec
	}
	return fallback
}
