package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// Tool is the interface every tool family implements.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// AsyncCallback delivers the result of a tool that returned AsyncResult
// once its background work completes, so the loop can surface it on a
// later iteration instead of blocking the current one.
type AsyncCallback func(toolName string, result *Result)

// Registry holds every registered tool, keyed by canonical name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

// ToProviderDef renders a tool's schema as a protocol.ToolDefinition.
func ToProviderDef(t Tool) protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Type: "function",
		Function: protocol.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// Dispatch executes a single ToolCall against the registry, resolving
// aliases first. Unknown tool names are reported as an error Result
// rather than a Go error, since the caller always owes the model a
// ToolResult envelope.
func (r *Registry) Dispatch(ctx context.Context, call protocol.ToolCall) *Result {
	name := resolveAlias(call.Name)
	t, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool: %s", call.Name))
	}
	return t.Execute(ctx, call.Arguments)
}
