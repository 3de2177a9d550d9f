package agent

import (
	"regexp"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// ExecutionState is the ground-truth record of tool-induced side effects,
// updated only from tool results and consulted by the anti-hallucination
// guards. The model's own claims never feed it.
type ExecutionState struct {
	mu            sync.Mutex
	BrowserVisits []string
	FilesWritten  []string
	CommandsRun   []string
}

// RecordTool folds one successful tool execution into the state.
func (s *ExecutionState) RecordTool(call protocol.ToolCall, success bool) {
	if !success {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch call.Name {
	case "write_file", "edit_file", "delete_file":
		if p, ok := call.Arguments["path"].(string); ok && p != "" {
			s.FilesWritten = append(s.FilesWritten, p)
		} else if p, ok := call.Arguments["file_path"].(string); ok && p != "" {
			s.FilesWritten = append(s.FilesWritten, p)
		}
	case "run_command":
		if c, ok := call.Arguments["command"].(string); ok && c != "" {
			s.CommandsRun = append(s.CommandsRun, c)
		}
	case "browser_navigate", "fetch_webpage":
		if u, ok := call.Arguments["url"].(string); ok && u != "" {
			s.BrowserVisits = append(s.BrowserVisits, u)
		}
	}
}

// HasVisited reports whether any recorded visit contains frag.
func (s *ExecutionState) HasVisited(frag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.BrowserVisits {
		if strings.Contains(u, frag) || strings.Contains(frag, u) {
			return true
		}
	}
	return false
}

// HasWritten reports whether any recorded write matches path (suffix
// match, so relative vs absolute spellings agree).
func (s *ExecutionState) HasWritten(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.FilesWritten {
		if p == path || strings.HasSuffix(p, path) || strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// Reset clears the state (explicit session reset only — the state
// deliberately persists across runs so later claims stay checkable).
func (s *ExecutionState) Reset() {
	s.mu.Lock()
	s.BrowserVisits = nil
	s.FilesWritten = nil
	s.CommandsRun = nil
	s.mu.Unlock()
}

// --- anti-hallucination guards ---

var (
	visitClaimRe = regexp.MustCompile(`(?i)I (?:have )?(?:visited|navigated to|opened|went to|browsed)\s+(\S+)`)
	writeClaimRe = regexp.MustCompile(`(?i)I (?:have )?(?:wrote|created|saved|written)(?: the)?(?: file)?\s+` + "`?" + `([\w./\\-]+\.\w+)` + "`?")

	pathLikeRe = regexp.MustCompile(`(?:^|\s|\x60)(?:/|\./|~/)[\w./-]{3,}|[\w-]+/[\w./-]+\.\w{1,5}`)

	vagueCommentRe = regexp.MustCompile(`(?i)\b(?:people|users|commenters|they)\s+(?:discussed|talked about|mentioned|said)\b`)
	quoteRe        = regexp.MustCompile(`"[^"]{10,}"`)
)

// fabricatedClaimNudge returns a corrective nudge when the response claims
// an action ExecutionState has no record of, or "" when it checks out.
func fabricatedClaimNudge(text string, state *ExecutionState) string {
	if m := visitClaimRe.FindStringSubmatch(text); m != nil {
		frag := strings.Trim(m[1], `.,;:"'`)
		if !state.HasVisited(frag) {
			return "You claimed to have visited " + frag + " but no browser tool ran. Use browser_navigate or fetch_webpage to actually load the page."
		}
	}
	if m := writeClaimRe.FindStringSubmatch(text); m != nil {
		if !state.HasWritten(m[1]) {
			return "You claimed to have written " + m[1] + " but no file tool ran. Use write_file to actually create it."
		}
	}
	return ""
}

// describedNotExecutedNudge fires when a non-chat response enumerates
// path-like strings without having called any tool this iteration.
func describedNotExecutedNudge(text string, task TaskType, hadToolCalls bool) string {
	if task == TaskChat || hadToolCalls {
		return ""
	}
	if len(pathLikeRe.FindAllString(text, 3)) >= 2 {
		return "Use the list_directory tool — don't describe file listings from memory."
	}
	return ""
}

// fabricatedWriteNudge fires on a write_file carrying a large content
// payload with no data-gathering tool earlier in the same iteration: the
// content can only have been invented.
func fabricatedWriteNudge(calls []protocol.ToolCall, gatheredThisIter bool) string {
	const largeContent = 4 * 1024
	for _, c := range calls {
		if c.Name != "write_file" {
			continue
		}
		content, _ := c.Arguments["content"].(string)
		if len(content) > largeContent && !gatheredThisIter {
			return "That write_file content wasn't gathered from any source this turn. Read or fetch the real data first, then write it."
		}
	}
	return ""
}

// vagueCommentNudge fires on summarization-flavored text ("people
// discussed X") that quotes nothing from actually captured page data.
func vagueCommentNudge(text string, state *ExecutionState) string {
	if !vagueCommentRe.MatchString(text) {
		return ""
	}
	state.mu.Lock()
	visited := len(state.BrowserVisits) > 0
	state.mu.Unlock()
	if !visited || !quoteRe.MatchString(text) {
		return "Quote the actual content you captured instead of summarizing vaguely. If you haven't captured the page yet, do that first."
	}
	return ""
}

// isDataGatheringTool reports whether a tool call pulls real data into the
// conversation (used by the fabricated-write and deferred-write checks).
func isDataGatheringTool(name string) bool {
	switch name {
	case "read_file", "list_directory", "search_files", "glob",
		"web_search", "fetch_webpage", "run_command",
		"browser_navigate", "browser_snapshot", "browser_screenshot",
		"git_status", "git_diff", "git_log", "memory_get", "memory_list":
		return true
	}
	return false
}

// isWriteTool reports whether a tool call mutates workspace files.
func isWriteTool(name string) bool {
	switch name {
	case "write_file", "edit_file", "delete_file":
		return true
	}
	return false
}

// isBrowserTool reports whether a call belongs to the browser family (for
// the loop-enforced 2-actions-per-iteration cap).
func isBrowserTool(name string) bool {
	return strings.HasPrefix(name, "browser_")
}
