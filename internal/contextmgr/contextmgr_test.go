package contextmgr

import (
	"reflect"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

func TestCheckStatusThresholds(t *testing.T) {
	cases := []struct {
		used, ctx int
		want      Status
	}{
		{100, 1000, StatusOK},
		{550, 1000, StatusCompact},
		{800, 1000, StatusRotate},
		{100, 0, StatusOK},
	}
	for _, c := range cases {
		if got := CheckStatus(c.used, c.ctx); got != c.want {
			t.Fatalf("CheckStatus(%d,%d) = %v, want %v", c.used, c.ctx, got, c.want)
		}
	}
}

func TestSystemMessageEqualityGuard(t *testing.T) {
	m := NewManager()
	a := m.Assemble(AssembleInput{SystemPreamble: "you are an agent"})
	b := m.Assemble(AssembleInput{SystemPreamble: "you are an agent"})
	if !reflect.DeepEqual(a[0], b[0]) {
		t.Fatalf("expected identical system message to be reused, got %+v vs %+v", a[0], b[0])
	}
	c := m.Assemble(AssembleInput{SystemPreamble: "you are a different agent"})
	if reflect.DeepEqual(c[0], a[0]) {
		t.Fatal("expected changed preamble to produce a different message")
	}
}

func TestAssemblePriorityOrder(t *testing.T) {
	m := NewManager()
	msgs := m.Assemble(AssembleInput{
		SystemPreamble: "base",
		Tools:          []protocol.ToolDefinition{{Function: protocol.ToolFunctionSchema{Name: "read_file"}}},
		Memory:         "remembers the user likes terse answers",
		RAGHits:        []string{"main.go defines main()"},
		FileContext:    "current file: main.go",
		ErrorContext:   "previous run failed: nil pointer",
		UserMessage:    protocol.Message{Role: protocol.RoleUser, Content: "fix the bug"},
	})
	sys := msgs[0].Content
	order := []string{"base", "read_file", "remembers the user likes terse answers", "main.go defines main()", "current file: main.go", "previous run failed"}
	last := -1
	for _, want := range order {
		idx := strings.Index(sys, want)
		if idx < 0 {
			t.Fatalf("missing %q in system preamble:\n%s", want, sys)
		}
		if idx <= last {
			t.Fatalf("%q out of order in system preamble:\n%s", want, sys)
		}
		last = idx
	}
	if msgs[len(msgs)-1].Content != "fix the bug" {
		t.Fatalf("expected user message last, got %+v", msgs[len(msgs)-1])
	}
}

func TestCompactPreservesSystemAndGoalAndRecentTail(t *testing.T) {
	history := []protocol.Message{
		{Role: protocol.RoleSystem, Content: "sys"},
		{Role: protocol.RoleUser, Content: "original goal: build a login page"},
	}
	for i := 0; i < 10; i++ {
		history = append(history,
			protocol.Message{Role: protocol.RoleAssistant, Content: strings.Repeat("x", 1000)},
			protocol.Message{Role: protocol.RoleTool, Content: strings.Repeat("y", 1000)},
		)
	}
	out := Compact(history)
	if out[0].Content != "sys" {
		t.Fatalf("system message mutated: %+v", out[0])
	}
	if out[1].Content != "original goal: build a login page" {
		t.Fatalf("goal message mutated: %+v", out[1])
	}
	if len(out[2].Content) >= 1000 {
		t.Fatalf("expected oldest assistant message compacted, got len %d", len(out[2].Content))
	}
	tail := out[len(out)-1]
	if len(tail.Content) < 1000 {
		t.Fatalf("expected most recent message left verbatim, got len %d", len(tail.Content))
	}
}

func TestRotateProducesSystemLedgerLatestShape(t *testing.T) {
	m := NewManager()
	history := []protocol.Message{
		{Role: protocol.RoleSystem, Content: "sys"},
		{Role: protocol.RoleUser, Content: "build the feature"},
		{Role: protocol.RoleAssistant, Content: "working on it", ToolCalls: []protocol.ToolCall{
			{Name: "write_file", Arguments: map[string]interface{}{"file_path": "a.go"}},
		}},
		{Role: protocol.RoleTool, Content: "ok"},
		{Role: protocol.RoleAssistant, Content: "done, here is the result"},
	}
	m.MarkEvalValid()
	out := m.Rotate(history, []string{"found existing handler in a.go"})
	if len(out) != 3 {
		t.Fatalf("expected [System, Ledger, Latest], got %d messages: %+v", len(out), out)
	}
	if out[0].Role != protocol.RoleSystem || out[0].Content != "sys" {
		t.Fatalf("expected system preserved, got %+v", out[0])
	}
	if out[1].Role != protocol.RoleUser || !strings.Contains(out[1].Content, "found existing handler") {
		t.Fatalf("expected ledger-as-user with findings, got %+v", out[1])
	}
	if out[2].Content != "done, here is the result" {
		t.Fatalf("expected latest model turn preserved, got %+v", out[2])
	}
	if m.LastEvalValid() {
		t.Fatal("expected last_eval invalidated after rotation")
	}
}
