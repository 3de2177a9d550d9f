package summarizer

import (
	"testing"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

func TestBuildCapturesOriginalGoal(t *testing.T) {
	history := []protocol.Message{
		{Role: protocol.RoleUser, Content: "build me a login page"},
		{Role: protocol.RoleAssistant, Content: "ok", ToolCalls: []protocol.ToolCall{
			{Name: "write_file", Arguments: map[string]interface{}{"path": "login.go"}},
		}},
	}
	l := Build(history, nil)
	if l.OriginalGoal != "build me a login page" {
		t.Fatalf("got %q", l.OriginalGoal)
	}
	if len(l.CompletedSteps) != 1 || l.CompletedSteps[0].Tool != "write_file" {
		t.Fatalf("got %+v", l.CompletedSteps)
	}
	if l.CurrentState.File != "login.go" {
		t.Fatalf("got %+v", l.CurrentState)
	}
}

func TestBuildCollapsesRepeatedCalls(t *testing.T) {
	call := protocol.ToolCall{Name: "list_directory", Arguments: map[string]interface{}{"path": "."}}
	history := []protocol.Message{
		{Role: protocol.RoleUser, Content: "explore the repo"},
		{Role: protocol.RoleAssistant, ToolCalls: []protocol.ToolCall{call}},
		{Role: protocol.RoleTool, Content: "a.go\nb.go"},
		{Role: protocol.RoleAssistant, ToolCalls: []protocol.ToolCall{call}},
		{Role: protocol.RoleTool, Content: "a.go\nb.go"},
	}
	l := Build(history, nil)
	if len(l.CompletedSteps) != 1 {
		t.Fatalf("want collapsed to 1 step, got %+v", l.CompletedSteps)
	}
	if l.CompletedSteps[0].Count != 2 {
		t.Fatalf("want count 2, got %d", l.CompletedSteps[0].Count)
	}
}

func TestBuildPreservesCorrectionsVerbatim(t *testing.T) {
	history := []protocol.Message{
		{Role: protocol.RoleUser, Content: "add a button"},
		{Role: protocol.RoleAssistant, Content: "done"},
		{Role: protocol.RoleUser, Content: "actually, make it red"},
	}
	l := Build(history, nil)
	if len(l.UserCorrections) != 1 || l.UserCorrections[0] != "actually, make it red" {
		t.Fatalf("got %+v", l.UserCorrections)
	}
}

func TestRenderIncludesGoalAndFindings(t *testing.T) {
	l := &Ledger{OriginalGoal: "ship the feature", KeyFindings: []string{"uses Postgres"}}
	out := l.Render()
	if out == "" {
		t.Fatal("empty render")
	}
	if !contains(out, "ship the feature") || !contains(out, "uses Postgres") {
		t.Fatalf("missing content: %s", out)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
