package tools

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// toolGroups map group names to tool names. The "mcp" and "mcp:<server>"
// groups are registered dynamically by the MCP manager (internal/mcp) as
// external servers connect.
var toolGroups = map[string][]string{
	"file":     {"read_file", "write_file", "edit_file", "list_directory", "delete_file", "undo_edit", "search_files", "glob"},
	"terminal": {"run_command"},
	"git":      {"git_status", "git_diff", "git_log", "git_commit"},
	"web":      {"web_search", "fetch_webpage"},
	"browser":  {"browser_navigate", "browser_click", "browser_type", "browser_snapshot", "browser_screenshot"},
	"memory":   {"memory_set", "memory_get", "memory_list"},
}

var toolGroupsMu sync.RWMutex

// RegisterToolGroup adds or replaces a dynamic tool group (used by the MCP
// manager to register "mcp" and "mcp:<server>" groups as servers connect).
func RegisterToolGroup(name string, members []string) {
	toolGroupsMu.Lock()
	defer toolGroupsMu.Unlock()
	toolGroups[name] = members
}

func UnregisterToolGroup(name string) {
	toolGroupsMu.Lock()
	defer toolGroupsMu.Unlock()
	delete(toolGroups, name)
}

// toolProfiles are coarse presets selected by task classification (see
// internal/agent's progressive disclosure step) rather than by config.
var toolProfiles = map[string][]string{
	"chat":    {}, // chat tasks get no tools (hard gate, see evaluator/parser)
	"coding":  {"group:file", "group:terminal", "group:git", "group:memory"},
	"browser": {"group:browser", "group:web", "group:memory"},
	"general": {}, // empty spec = no restriction beyond caps applied elsewhere
}

// toolAliases map alternative/legacy names to canonical names.
var toolAliases = map[string]string{
	"bash":       "run_command",
	"list_files": "list_directory",
	"shell":      "run_command",
	"read":       "read_file",
	"write":      "write_file",
}

// PolicyEngine filters a registry's tools down to what a given task type
// and iteration are allowed to see. Progressive disclosure starts from a
// per-task base profile and expands as the model demonstrates it can use
// related capabilities (handled by the agent package, which calls Unlock).
type PolicyEngine struct {
	mu       sync.Mutex
	unlocked map[string]bool
}

func NewPolicyEngine() *PolicyEngine {
	return &PolicyEngine{unlocked: make(map[string]bool)}
}

// Unlock widens the set of tools visible for the remainder of the session.
func (pe *PolicyEngine) Unlock(names ...string) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	for _, n := range names {
		pe.unlocked[n] = true
	}
}

// FilterTools returns the tool definitions visible for taskType, applying
// the base profile, any unlocked extras, and an explicit deny list (e.g.
// MCP tools the workspace disabled).
func (pe *PolicyEngine) FilterTools(registry *Registry, taskType string, deny []string) []protocol.ToolDefinition {
	allTools := registry.List()
	profile, ok := toolProfiles[taskType]
	if !ok {
		profile = toolProfiles["general"]
	}

	var allowed []string
	if len(profile) == 0 && taskType != "chat" {
		allowed = copySlice(allTools)
	} else {
		allowed = expandSpec(allTools, profile)
	}

	pe.mu.Lock()
	for name := range pe.unlocked {
		if !contains(allowed, name) && contains(allTools, name) {
			allowed = append(allowed, name)
		}
	}
	pe.mu.Unlock()

	if len(deny) > 0 {
		allowed = subtractSet(allowed, deny)
	}

	var defs []protocol.ToolDefinition
	for _, name := range allowed {
		canonical := resolveAlias(name)
		if tool, ok := registry.Get(canonical); ok {
			defs = append(defs, ToProviderDef(tool))
		}
	}

	slog.Debug("tool policy applied", "task_type", taskType, "total_tools", len(allTools), "allowed", len(defs))
	return defs
}

func expandSpec(available []string, spec []string) []string {
	toolGroupsMu.RLock()
	defer toolGroupsMu.RUnlock()
	expanded := make(map[string]bool)
	for _, s := range spec {
		if strings.HasPrefix(s, "group:") {
			groupName := strings.TrimPrefix(s, "group:")
			for _, m := range toolGroups[groupName] {
				expanded[m] = true
			}
		} else {
			expanded[s] = true
		}
	}
	var result []string
	for _, t := range available {
		if expanded[t] {
			result = append(result, t)
		}
	}
	return result
}

func subtractSet(current []string, deny []string) []string {
	denied := make(map[string]bool, len(deny))
	for _, d := range deny {
		denied[d] = true
	}
	var result []string
	for _, t := range current {
		if !denied[t] {
			result = append(result, t)
		}
	}
	return result
}

func resolveAlias(name string) string {
	if canonical, ok := toolAliases[name]; ok {
		return canonical
	}
	return name
}

func copySlice(s []string) []string {
	c := make([]string, len(s))
	copy(c, s)
	return c
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
