package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const memoryValueMaxBytes = 10 * 1024

// MemoryStore is a small append-only key/value store, persisted as JSON
// via the same atomic temp-file-plus-rename write used for workspace
// files, so a crash mid-save never corrupts the store.
type MemoryStore struct {
	path string
	mu   sync.Mutex
	data map[string]string
}

func NewMemoryStore(path string) *MemoryStore {
	s := &MemoryStore{path: path, data: make(map[string]string)}
	s.load()
	return s
}

func (s *MemoryStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, &s.data)
}

func (s *MemoryStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(s.path, data)
}

// Render formats the whole store as a prompt-injectable block ("" when
// empty). Keys are listed with values truncated to one line each.
func (s *MemoryStore) Render() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		v := s.data[k]
		if nl := strings.IndexByte(v, '\n'); nl >= 0 {
			v = v[:nl] + " …"
		}
		if len(v) > 200 {
			v = v[:200] + "…"
		}
		b.WriteString("- " + k + ": " + v + "\n")
	}
	return b.String()
}

// MemorySetTool persists a key/value note across turns.
type MemorySetTool struct{ store *MemoryStore }

func NewMemorySetTool(store *MemoryStore) *MemorySetTool { return &MemorySetTool{store: store} }

func (t *MemorySetTool) Name() string        { return "memory_set" }
func (t *MemorySetTool) Description() string { return "Store a key/value note that persists across turns." }
func (t *MemorySetTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key":   map[string]interface{}{"type": "string"},
			"value": map[string]interface{}{"type": "string"},
		},
		"required": []string{"key", "value"},
	}
}
func (t *MemorySetTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	key, _ := args["key"].(string)
	value, _ := args["value"].(string)
	if key == "" {
		return ErrorResult("key is required")
	}
	if len(value) > memoryValueMaxBytes {
		return ErrorResult(fmt.Sprintf("value exceeds %d byte limit", memoryValueMaxBytes))
	}
	t.store.mu.Lock()
	t.store.data[key] = value
	err := t.store.save()
	t.store.mu.Unlock()
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to persist memory: %v", err))
	}
	return NewResult(fmt.Sprintf("stored %q", key))
}

// MemoryGetTool retrieves a previously stored note.
type MemoryGetTool struct{ store *MemoryStore }

func NewMemoryGetTool(store *MemoryStore) *MemoryGetTool { return &MemoryGetTool{store: store} }

func (t *MemoryGetTool) Name() string        { return "memory_get" }
func (t *MemoryGetTool) Description() string { return "Retrieve a previously stored note by key." }
func (t *MemoryGetTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"key": map[string]interface{}{"type": "string"}},
		"required":   []string{"key"},
	}
}
func (t *MemoryGetTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	key, _ := args["key"].(string)
	if key == "" {
		return ErrorResult("key is required")
	}
	t.store.mu.Lock()
	value, ok := t.store.data[key]
	t.store.mu.Unlock()
	if !ok {
		return ErrorResult(fmt.Sprintf("no memory stored for %q", key))
	}
	return SilentResult(value)
}

// MemoryListTool enumerates all stored keys.
type MemoryListTool struct{ store *MemoryStore }

func NewMemoryListTool(store *MemoryStore) *MemoryListTool { return &MemoryListTool{store: store} }

func (t *MemoryListTool) Name() string        { return "memory_list" }
func (t *MemoryListTool) Description() string { return "List all stored memory keys." }
func (t *MemoryListTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *MemoryListTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	t.store.mu.Lock()
	keys := make([]string, 0, len(t.store.data))
	for k := range t.store.data {
		keys = append(keys, k)
	}
	t.store.mu.Unlock()
	sort.Strings(keys)
	if len(keys) == 0 {
		return SilentResult("no memory stored")
	}
	return SilentResult(strings.Join(keys, "\n"))
}
