package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/agentrt/internal/tools"
	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// promptFileName is the optional per-project system-prompt file injected
// verbatim into the preamble.
const promptFileName = ".prompt.md"

const basePreamble = `You are a coding assistant embedded in an IDE. You work inside the user's project directory using the tools listed below.

Rules:
- Use tools for every factual claim about the workspace: read before you describe, list before you enumerate.
- One step at a time. Gather data first, write files second.
- When a tool fails, adjust the parameters or pick a different tool; don't repeat the identical call.
- Reply in plain prose. Emit tool calls in the function-call format you were given, never as narrative text.`

// buildPreamble renders the static part of the system message: base rules,
// the project root, the optional .prompt.md, few-shot examples sized for
// the model tier, and the current todo list.
func (r *Runtime) buildPreamble(s *Session, task TaskType) string {
	var b strings.Builder
	b.WriteString(basePreamble)

	root := r.cfg.ProjectRoot()
	if root != "" {
		fmt.Fprintf(&b, "\n\nProject root: %s", root)
	}
	fmt.Fprintf(&b, "\nTask type: %s", task)

	if root != "" {
		if data, err := os.ReadFile(filepath.Join(root, promptFileName)); err == nil {
			b.WriteString("\n\n## Project instructions\n")
			b.Write(data)
		}
	}

	if n := r.engine.Profile().FewShotCount; n > 0 {
		b.WriteString("\n\n## Example tool call\n")
		b.WriteString("```json\n{\"tool\": \"read_file\", \"params\": {\"file_path\": \"main.go\"}}\n```")
		if n > 1 {
			b.WriteString("\n```json\n{\"tool\": \"run_command\", \"params\": {\"command\": \"go test ./...\"}}\n```")
		}
	}

	if todos := s.todos.Snapshot(); len(todos) > 0 {
		b.WriteString("\n\n## Current todos\n")
		for _, t := range todos {
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", t.Status, t.Text, t.ID)
		}
	}

	return b.String()
}

// renderMemory folds the persisted memory store into the prompt's memory
// section ("" when empty or the store isn't wired).
func (r *Runtime) renderMemory() string {
	if r.memory == nil {
		return ""
	}
	return r.memory.Render()
}

// ragHits queries the workspace BM25 index for prompt context.
func (r *Runtime) ragHits(query string) []string {
	if r.index == nil {
		return nil
	}
	hits := r.index.Search(query, 3)
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Path+": "+strings.ReplaceAll(h.Snippet, "\n", " "))
	}
	return out
}

// fileContext reads small attachment-referenced files into the prompt.
func fileContext(root string, refs []string) string {
	const maxPerFile = 8 * 1024
	var b strings.Builder
	for _, ref := range refs {
		path := ref
		if !filepath.IsAbs(path) && root != "" {
			path = filepath.Join(root, ref)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if len(data) > maxPerFile {
			data = data[:maxPerFile]
		}
		fmt.Fprintf(&b, "### %s\n%s\n\n", ref, data)
	}
	return b.String()
}

// filteredTools applies the task profile plus per-tier cap to the tool
// definitions exposed this iteration.
func (r *Runtime) filteredTools(s *Session, task TaskType) []protocol.ToolDefinition {
	defs := s.policy.FilterTools(r.registry, string(task), nil)
	if limit := r.engine.Profile().MaxToolsPerIter; limit > 0 && len(defs) > limit {
		defs = defs[:limit]
	}
	return defs
}

// unlockRelated widens the disclosure set after the model demonstrates a
// capability: a successful call unlocks the tools that follow from it
// (any browser tool unlocks the interaction tools, reads unlock edits,
// writes unlock delete/run_command, web_search unlocks fetching, git
// inspection unlocks git_commit). A failed call unlocks nothing.
func unlockRelated(policy *tools.PolicyEngine, executed string, success bool) {
	if !success {
		return
	}
	switch {
	case isBrowserTool(executed):
		policy.Unlock("browser_click", "browser_type", "browser_snapshot", "browser_screenshot")
	case executed == "read_file" || executed == "list_directory" || executed == "glob" || executed == "search_files":
		policy.Unlock("write_file", "edit_file", "undo_edit")
	case executed == "write_file" || executed == "edit_file":
		policy.Unlock("delete_file", "run_command")
	case executed == "web_search":
		policy.Unlock("fetch_webpage", "browser_navigate")
	case executed == "git_status" || executed == "git_diff" || executed == "git_log":
		policy.Unlock("git_commit")
	}
}
