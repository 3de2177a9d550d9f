package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/agentrt/internal/config"
	"github.com/nextlevelbuilder/agentrt/internal/engine"
	"github.com/nextlevelbuilder/agentrt/internal/rag"
	"github.com/nextlevelbuilder/agentrt/internal/store"
	"github.com/nextlevelbuilder/agentrt/internal/tools"
)

// Runtime is the caller-facing surface: it owns the
// engine, the tool registry, and the session table, and hands out event
// streams per user message. The host (CLI REPL or websocket transport)
// holds exactly one Runtime.
type Runtime struct {
	cfg      *config.Config
	engine   *engine.Engine
	registry *tools.Registry
	stores   *store.Stores
	index    *rag.Index         // nil when workspace indexing is off
	memory   *tools.MemoryStore // nil when the memory family isn't registered
	approval tools.ApprovalFunc // destructive-op permission hook (nil = allow)

	mu       sync.Mutex
	sessions map[string]*Session
}

// RuntimeConfig bundles the collaborators a Runtime needs.
type RuntimeConfig struct {
	Config   *config.Config
	Engine   *engine.Engine
	Registry *tools.Registry
	Stores   *store.Stores
	Index    *rag.Index
	Memory   *tools.MemoryStore
	Approval tools.ApprovalFunc
}

func NewRuntime(rc RuntimeConfig) *Runtime {
	return &Runtime{
		cfg:      rc.Config,
		engine:   rc.Engine,
		registry: rc.Registry,
		stores:   rc.Stores,
		index:    rc.Index,
		memory:   rc.Memory,
		approval: rc.Approval,
		sessions: make(map[string]*Session),
	}
}

// Session returns (creating if needed) the session handle for key.
func (r *Runtime) Session(key string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s
	}
	s := newSession(key)
	r.sessions[key] = s
	return s
}

// Cancel aborts the in-flight run on a session, if any. The run's event
// stream ends with Finish{status: cancelled} within one second.
func (r *Runtime) Cancel(key string) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	r.mu.Unlock()
	if ok {
		s.Cancel()
		r.engine.Cancel()
	}
}

// ResetSession clears a session's history, summary, todos, and execution
// state, and resets the engine's chat-wrapper session.
func (r *Runtime) ResetSession(key string) error {
	r.mu.Lock()
	s, ok := r.sessions[key]
	r.mu.Unlock()

	r.stores.Sessions.Reset(key)
	if ok {
		s.todos.Clear()
		s.execState.Reset()
		s.ctxmgr.Invalidate()
		s.findings = nil
		s.stuck.reset()
	}
	return r.engine.ResetSession()
}

// LoadModel swaps the loaded model. History survives the swap; the next
// assembly re-tokenizes from scratch since the KV cache died with the old
// context.
func (r *Runtime) LoadModel(ctx context.Context, modelPath string, gpuPref engine.GPUPreference, thinkingSupported bool) error {
	if err := r.engine.Load(ctx, modelPath, gpuPref, thinkingSupported); err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	r.mu.Lock()
	for _, s := range r.sessions {
		s.ctxmgr.Invalidate()
	}
	r.mu.Unlock()

	if fam := r.cfg.WrapperFamilyFor(modelPath); fam == "" {
		r.cfg.RememberWrapperFamily(modelPath, r.engine.WrapperFamily())
	}
	return nil
}

// SetProjectRoot changes the active project root that the sanitizer and
// all file tools canonicalize against. The BM25 index is bound to one
// root; on a root change the host wires a fresh index.
func (r *Runtime) SetProjectRoot(path string) {
	r.cfg.SetProjectRoot(path)
}
