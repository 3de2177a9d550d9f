package agent

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

func call(name string, args map[string]interface{}) protocol.ToolCall {
	return protocol.ToolCall{ID: "t1", Name: name, Arguments: args}
}

func TestExecutionStateRecords(t *testing.T) {
	var s ExecutionState
	s.RecordTool(call("write_file", map[string]interface{}{"path": "notes/pizza.md"}), true)
	s.RecordTool(call("browser_navigate", map[string]interface{}{"url": "https://example.com/menu"}), true)
	s.RecordTool(call("run_command", map[string]interface{}{"command": "ls -la"}), true)
	s.RecordTool(call("write_file", map[string]interface{}{"path": "never.md"}), false)

	if !s.HasWritten("notes/pizza.md") || !s.HasWritten("pizza.md") {
		t.Fatal("successful write should be recorded (suffix match)")
	}
	if s.HasWritten("never.md") {
		t.Fatal("failed write must not be recorded")
	}
	if !s.HasVisited("example.com") {
		t.Fatal("navigation should be recorded")
	}
	if len(s.CommandsRun) != 1 {
		t.Fatalf("CommandsRun = %v, want one entry", s.CommandsRun)
	}
}

func TestFabricatedClaimNudge(t *testing.T) {
	var s ExecutionState

	if n := fabricatedClaimNudge("I visited https://example.com and found three results.", &s); n == "" {
		t.Fatal("visit claim with no recorded visit must nudge")
	}
	s.RecordTool(call("browser_navigate", map[string]interface{}{"url": "https://example.com"}), true)
	if n := fabricatedClaimNudge("I visited https://example.com and found three results.", &s); n != "" {
		t.Fatalf("verified visit claim must not nudge, got %q", n)
	}

	if n := fabricatedClaimNudge("I wrote results.txt with the summary.", &s); n == "" {
		t.Fatal("write claim with no recorded write must nudge")
	}
	s.RecordTool(call("write_file", map[string]interface{}{"path": "results.txt"}), true)
	if n := fabricatedClaimNudge("I wrote results.txt with the summary.", &s); n != "" {
		t.Fatalf("verified write claim must not nudge, got %q", n)
	}
}

func TestDescribedNotExecutedNudge(t *testing.T) {
	text := "The project contains src/main.go and docs/readme.md plus a Makefile."
	if n := describedNotExecutedNudge(text, TaskCode, false); n == "" {
		t.Fatal("path-dense response with no tool calls must nudge")
	}
	if n := describedNotExecutedNudge(text, TaskCode, true); n != "" {
		t.Fatal("tool-backed response must not nudge")
	}
	if n := describedNotExecutedNudge(text, TaskChat, false); n != "" {
		t.Fatal("chat tasks are exempt")
	}
	if n := describedNotExecutedNudge("Sounds good, happy to help.", TaskCode, false); n != "" {
		t.Fatal("prose without paths must not nudge")
	}
}

func TestFabricatedWriteNudge(t *testing.T) {
	big := strings.Repeat("lorem ipsum ", 500) // > 4 KB
	writes := []protocol.ToolCall{call("write_file", map[string]interface{}{"path": "a.md", "content": big})}

	if n := fabricatedWriteNudge(writes, false); n == "" {
		t.Fatal("large ungathered write must nudge")
	}
	if n := fabricatedWriteNudge(writes, true); n != "" {
		t.Fatal("gathered data legitimizes the write")
	}

	small := []protocol.ToolCall{call("write_file", map[string]interface{}{"path": "a.md", "content": "short"})}
	if n := fabricatedWriteNudge(small, false); n != "" {
		t.Fatal("small writes are always allowed")
	}
}

func TestVagueCommentNudge(t *testing.T) {
	var s ExecutionState
	text := `People discussed the new release at length.`

	if n := vagueCommentNudge(text, &s); n == "" {
		t.Fatal("vague summary with no captured page must nudge")
	}

	s.RecordTool(call("browser_navigate", map[string]interface{}{"url": "https://forum.example.com"}), true)
	if n := vagueCommentNudge(text, &s); n == "" {
		t.Fatal("vague summary without quotes must still nudge")
	}

	quoted := text + ` One wrote: "this release finally fixes the cache invalidation bug".`
	if n := vagueCommentNudge(quoted, &s); n != "" {
		t.Fatalf("quoted summary must not nudge, got %q", n)
	}
}

func TestToolFamilyPredicates(t *testing.T) {
	if !isBrowserTool("browser_click") || isBrowserTool("web_search") {
		t.Fatal("isBrowserTool misclassifies")
	}
	if !isWriteTool("edit_file") || isWriteTool("read_file") {
		t.Fatal("isWriteTool misclassifies")
	}
	if !isDataGatheringTool("fetch_webpage") || isDataGatheringTool("write_file") {
		t.Fatal("isDataGatheringTool misclassifies")
	}
}
