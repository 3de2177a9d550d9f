package parser

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// nameAliases maps extraction-time spelling variants to canonical tool
// names. Kept separate from tools.toolAliases (which handles dispatch-time
// aliasing) because these are parser-specific artifacts of how models spell
// tool names in free text, not persistent alternate names.
var nameAliases = map[string]string{
	"list_files":  "list_directory",
	"bash":        "run_command",
	"shell":       "run_command",
	"exec":        "run_command",
	"read":        "read_file",
	"write":       "write_file",
}

// shellLikeRe flags a web_search query that is actually a shell command —
// the model reaching for the wrong tool. Remapped to run_command.
var shellLikeRe = regexp.MustCompile(`^\s*(ls|cat|grep|find|cd|pwd|echo|curl|wget|git|npm|go|python)\b`)

// refSelectorRe strips trailing ".ref=<id>" selector suffixes some models
// append to element-reference params copied from a page snapshot.
var refSelectorRe = regexp.MustCompile(`\.ref=[^\s,}]+$`)

// Normalize applies alias remapping, the web_search/run_command remap, the
// file_path→path coercion (some models echo the provider-convention
// "file_path" name instead of the schema's declared "path" parameter),
// selector-suffix stripping, and registry membership filtering.
func Normalize(calls []protocol.ToolCall, isValid ValidName) []protocol.ToolCall {
	out := make([]protocol.ToolCall, 0, len(calls))
	for _, c := range calls {
		c.Name = strings.TrimSpace(c.Name)
		if c.Arguments == nil {
			c.Arguments = map[string]interface{}{}
		}

		if canonical, ok := nameAliases[c.Name]; ok {
			c.Name = canonical
		}

		if c.Name == "web_search" {
			if q, ok := c.Arguments["query"].(string); ok && shellLikeRe.MatchString(q) {
				c.Name = "run_command"
				c.Arguments = map[string]interface{}{"command": q}
			}
		}

		if filePath, ok := c.Arguments["file_path"]; ok {
			if _, hasPath := c.Arguments["path"]; !hasPath {
				c.Arguments["path"] = filePath
			}
			delete(c.Arguments, "file_path")
		}

		for k, v := range c.Arguments {
			if s, ok := v.(string); ok {
				c.Arguments[k] = refSelectorRe.ReplaceAllString(s, "")
			}
		}

		if isValid != nil && !isValid(c.Name) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ChatGate implements the §4.4 chat-type gate: when the task classifier
// labels a turn "chat" and the only thing Parse would have extracted is a
// top-level OpenAI-array call whose name isn't registered, the response is
// fabricated — return true so the loop can treat it as empty output.
// Returns false in every other case.
func ChatGate(isChat bool, raw string, isValid ValidName) bool {
	if !isChat {
		return false
	}
	calls := parseOpenAIArray(strings.TrimSpace(raw))
	if len(calls) == 0 {
		return false
	}
	for _, c := range calls {
		if isValid != nil && isValid(c.Name) {
			return false
		}
	}
	return true
}
