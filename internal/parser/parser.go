// Package parser extracts structured tool calls from free-form model text.
// Local GGUF models rarely emit clean OpenAI-style function-call JSON, so the
// parser runs a battery of progressively looser extraction methods and takes
// the first that yields at least one call.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// maxInputBytes bounds the text the parser will scan, to keep the
// brace-matching and regex passes from going quadratic on pathological
// model output.
const maxInputBytes = 200 * 1024

// ValidName reports whether a tool name is registered, used by the
// chat-type gate and the registry-membership rejection in Normalize.
type ValidName func(name string) bool

// Parse runs all five extraction methods in order against raw assistant
// text and returns the first non-empty result, normalized.
func Parse(raw string, isValid ValidName) []protocol.ToolCall {
	if len(raw) > maxInputBytes {
		raw = raw[:maxInputBytes]
	}

	methods := []func(string) []protocol.ToolCall{
		parseFencedJSON,
		parseRawJSON,
		parseFunctionCallVariants,
		parseInlineBareJSON,
	}
	var calls []protocol.ToolCall
	for _, m := range methods {
		if calls = m(raw); len(calls) > 0 {
			break
		}
	}
	calls = repairEmptyWriteContent(calls, raw)
	return Normalize(calls, isValid)
}

// --- Method 1: fenced ```json blocks ---

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*```")

func parseFencedJSON(text string) []protocol.ToolCall {
	var out []protocol.ToolCall
	for _, m := range fencedJSONRe.FindAllStringSubmatch(text, -1) {
		if call, ok := decodeCanonicalObject(m[1]); ok {
			out = append(out, call)
		}
	}
	if len(out) > 0 {
		return out
	}
	// Fall back to brace-matching in case the regex's lazy match truncated
	// a call with nested braces.
	for _, block := range extractFencedBlocks(text) {
		if call, ok := decodeCanonicalObject(block); ok {
			out = append(out, call)
		}
	}
	return out
}

var fenceOpenRe = regexp.MustCompile("```(?:json)?\\s*\\n?")

func extractFencedBlocks(text string) []string {
	var blocks []string
	idx := 0
	for {
		loc := fenceOpenRe.FindStringIndex(text[idx:])
		if loc == nil {
			break
		}
		start := idx + loc[1]
		obj, ok := braceMatch(text, start)
		if ok {
			blocks = append(blocks, obj)
		}
		idx = start
		if idx >= len(text) {
			break
		}
	}
	return blocks
}

// --- Method 2: raw (unfenced) JSON object with "tool" key ---

var toolKeyRe = regexp.MustCompile(`\{\s*"tool"\s*:`)

func parseRawJSON(text string) []protocol.ToolCall {
	var out []protocol.ToolCall
	for _, loc := range toolKeyRe.FindAllStringIndex(text, -1) {
		obj, ok := braceMatch(text, loc[0])
		if !ok {
			continue
		}
		if call, ok := decodeCanonicalObject(obj); ok {
			out = append(out, call)
		}
	}
	return out
}

// --- Method 3: function-call variants ---

var (
	pythonicRe  = regexp.MustCompile(`(?m)^\s*([a-zA-Z_][a-zA-Z0-9_]*)\((.*)\)\s*$`)
	xmlToolRe   = regexp.MustCompile(`(?s)<tool_call>\s*(.*?)\s*</tool_call>`)
	wrappedKeyRe = regexp.MustCompile(`\{\s*"function"\s*:`)
)

func parseFunctionCallVariants(text string) []protocol.ToolCall {
	if out := parseXMLToolCalls(text); len(out) > 0 {
		return out
	}
	if out := parseOpenAIArray(text); len(out) > 0 {
		return out
	}
	if out := parseWrappedFunction(text); len(out) > 0 {
		return out
	}
	return parsePythonic(text)
}

func parseXMLToolCalls(text string) []protocol.ToolCall {
	var out []protocol.ToolCall
	for _, m := range xmlToolRe.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if call, ok := decodeCanonicalObject(body); ok {
			out = append(out, call)
			continue
		}
		if call, ok := decodeWrappedFunction(body); ok {
			out = append(out, call)
		}
	}
	return out
}

func parseOpenAIArray(text string) []protocol.ToolCall {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return nil
	}
	arr, ok := bracketMatch(text, start)
	if !ok {
		return nil
	}
	var raw []struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(arr), &raw); err != nil || len(raw) == 0 {
		return nil
	}
	out := make([]protocol.ToolCall, 0, len(raw))
	for _, r := range raw {
		if r.Name == "" {
			continue
		}
		out = append(out, protocol.ToolCall{
			ID: uuid.NewString(), Name: r.Name, Arguments: r.Arguments, Origin: protocol.OriginTextParsed,
		})
	}
	return out
}

func parseWrappedFunction(text string) []protocol.ToolCall {
	var out []protocol.ToolCall
	for _, loc := range wrappedKeyRe.FindAllStringIndex(text, -1) {
		obj, ok := braceMatch(text, loc[0])
		if !ok {
			continue
		}
		if call, ok := decodeWrappedFunction(obj); ok {
			out = append(out, call)
		}
	}
	return out
}

func decodeWrappedFunction(obj string) (protocol.ToolCall, bool) {
	var wrapped struct {
		Function struct {
			Name      string                 `json:"name"`
			Arguments map[string]interface{} `json:"arguments"`
		} `json:"function"`
	}
	if err := json.Unmarshal([]byte(obj), &wrapped); err != nil || wrapped.Function.Name == "" {
		return protocol.ToolCall{}, false
	}
	return protocol.ToolCall{
		ID: uuid.NewString(), Name: wrapped.Function.Name, Arguments: wrapped.Function.Arguments,
		Origin: protocol.OriginTextParsed,
	}, true
}

func parsePythonic(text string) []protocol.ToolCall {
	var out []protocol.ToolCall
	for _, m := range pythonicRe.FindAllStringSubmatch(text, -1) {
		name, argStr := m[1], m[2]
		args := parsePythonicArgs(argStr)
		if args == nil {
			continue
		}
		out = append(out, protocol.ToolCall{ID: uuid.NewString(), Name: name, Arguments: args, Origin: protocol.OriginTextParsed})
	}
	return out
}

var kwargRe = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*("(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[^,]+)`)

func parsePythonicArgs(argStr string) map[string]interface{} {
	argStr = strings.TrimSpace(argStr)
	if argStr == "" {
		return map[string]interface{}{}
	}
	matches := kwargRe.FindAllStringSubmatch(argStr, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(matches))
	for _, m := range matches {
		key := m[1]
		val := strings.TrimSpace(m[2])
		val = strings.Trim(val, `"'`)
		out[key] = val
	}
	return out
}

// --- Method 4: inline bare JSON with tool+params at top level ---

func parseInlineBareJSON(text string) []protocol.ToolCall {
	idx := strings.IndexByte(text, '{')
	var out []protocol.ToolCall
	for idx >= 0 && idx < len(text) {
		obj, ok := braceMatch(text, idx)
		if !ok {
			break
		}
		if call, ok := decodeCanonicalObject(obj); ok {
			out = append(out, call)
		}
		next := strings.IndexByte(text[idx+len(obj):], '{')
		if next < 0 {
			break
		}
		idx = idx + len(obj) + next
	}
	return out
}

// --- Method 5: repair pass ---

var fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\n(.*?)```")

// repairEmptyWriteContent splices a trailing code block into a write_file
// call whose content argument came back empty — local models frequently
// emit the tool call followed by the file body as a separate fenced block.
func repairEmptyWriteContent(calls []protocol.ToolCall, raw string) []protocol.ToolCall {
	for i := range calls {
		if calls[i].Name != "write_file" {
			continue
		}
		content, _ := calls[i].Arguments["content"].(string)
		if content != "" {
			continue
		}
		blocks := fencedBlockRe.FindAllStringSubmatch(raw, -1)
		if len(blocks) == 0 {
			continue
		}
		last := blocks[len(blocks)-1][1]
		if strings.TrimSpace(last) == "" {
			continue
		}
		if calls[i].Arguments == nil {
			calls[i].Arguments = map[string]interface{}{}
		}
		calls[i].Arguments["content"] = last
	}
	return calls
}

// --- shared object decoding ---

func decodeCanonicalObject(obj string) (protocol.ToolCall, bool) {
	var canonical struct {
		Tool   string                 `json:"tool"`
		Params map[string]interface{} `json:"params"`
	}
	if err := json.Unmarshal([]byte(obj), &canonical); err == nil && canonical.Tool != "" {
		return protocol.ToolCall{ID: uuid.NewString(), Name: canonical.Tool, Arguments: canonical.Params, Origin: protocol.OriginTextParsed}, true
	}
	// Tolerate {"tool": "...", <other top-level keys as params>} shape.
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(obj), &generic); err != nil {
		return protocol.ToolCall{}, false
	}
	name, _ := generic["tool"].(string)
	if name == "" {
		return protocol.ToolCall{}, false
	}
	delete(generic, "tool")
	if params, ok := generic["params"].(map[string]interface{}); ok {
		return protocol.ToolCall{ID: uuid.NewString(), Name: name, Arguments: params, Origin: protocol.OriginTextParsed}, true
	}
	return protocol.ToolCall{ID: uuid.NewString(), Name: name, Arguments: generic, Origin: protocol.OriginTextParsed}, true
}

// braceMatch returns the substring of text starting at the '{' found at or
// after start through its matching '}', honoring quoted strings so braces
// inside string values don't confuse the scan.
func braceMatch(text string, from int) (string, bool) {
	start := strings.IndexByte(text[from:], '{')
	if start < 0 {
		return "", false
	}
	start += from
	return scanMatched(text, start, '{', '}')
}

func bracketMatch(text string, from int) (string, bool) {
	start := strings.IndexByte(text[from:], '[')
	if start < 0 {
		return "", false
	}
	start += from
	return scanMatched(text, start, '[', ']')
}

// scanMatched is an escape-aware, quote-aware bracket scanner. It does not
// attempt to handle quadruple-backslash edge cases inside strings.
func scanMatched(text string, start int, open, close byte) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
