package parser

import "testing"

func always(string) bool { return true }

func TestParseFencedJSON(t *testing.T) {
	raw := "Let me do that.\n```json\n{\"tool\": \"read_file\", \"params\": {\"file_path\": \"main.go\"}}\n```\n"
	calls := Parse(raw, always)
	if len(calls) != 1 || calls[0].Name != "read_file" {
		t.Fatalf("got %+v", calls)
	}
	if calls[0].Arguments["path"] != "main.go" {
		t.Fatalf("got args %+v", calls[0].Arguments)
	}
}

func TestParseRawJSON(t *testing.T) {
	raw := `Sure, I'll check. {"tool": "list_directory", "params": {"file_path": "."}}`
	calls := Parse(raw, always)
	if len(calls) != 1 || calls[0].Name != "list_directory" {
		t.Fatalf("got %+v", calls)
	}
	if calls[0].Arguments["path"] != "." {
		t.Fatalf("file_path should be coerced to path: %+v", calls[0].Arguments)
	}
}

func TestParseXMLToolCall(t *testing.T) {
	raw := `<tool_call>{"tool": "run_command", "params": {"command": "ls"}}</tool_call>`
	calls := Parse(raw, always)
	if len(calls) != 1 || calls[0].Name != "run_command" {
		t.Fatalf("got %+v", calls)
	}
}

func TestParseOpenAIArray(t *testing.T) {
	raw := `[{"name": "read_file", "arguments": {"file_path": "a.go"}}]`
	calls := Parse(raw, always)
	if len(calls) != 1 || calls[0].Name != "read_file" {
		t.Fatalf("got %+v", calls)
	}
}

func TestParseWrappedFunction(t *testing.T) {
	raw := `{"function": {"name": "write_file", "arguments": {"file_path": "x.go", "content": "package x"}}}`
	calls := Parse(raw, always)
	if len(calls) != 1 || calls[0].Name != "write_file" {
		t.Fatalf("got %+v", calls)
	}
}

func TestParsePythonic(t *testing.T) {
	raw := "read_file(file_path=\"main.go\")"
	calls := Parse(raw, always)
	if len(calls) != 1 || calls[0].Name != "read_file" {
		t.Fatalf("got %+v", calls)
	}
}

func TestAliasRemapping(t *testing.T) {
	raw := `{"tool": "list_files", "params": {}}`
	calls := Parse(raw, always)
	if len(calls) != 1 || calls[0].Name != "list_directory" {
		t.Fatalf("alias not remapped: %+v", calls)
	}
}

func TestUnknownToolFilteredOut(t *testing.T) {
	raw := `{"tool": "nonexistent_tool", "params": {}}`
	calls := Parse(raw, func(name string) bool { return name == "read_file" })
	if len(calls) != 0 {
		t.Fatalf("want unknown tool filtered, got %+v", calls)
	}
}

func TestRepairEmptyWriteContent(t *testing.T) {
	raw := "```json\n{\"tool\": \"write_file\", \"params\": {\"file_path\": \"x.go\", \"content\": \"\"}}\n```\n" +
		"Here's the body:\n```go\npackage main\n```\n"
	calls := Parse(raw, always)
	if len(calls) != 1 {
		t.Fatalf("got %+v", calls)
	}
	if calls[0].Arguments["content"] != "package main\n" {
		t.Fatalf("content not spliced in: %+v", calls[0].Arguments)
	}
}

func TestChatGateRejectsFabricatedArrayCall(t *testing.T) {
	raw := `[{"name": "launch_missiles", "arguments": {}}]`
	gated := ChatGate(true, raw, func(name string) bool { return name == "read_file" })
	if !gated {
		t.Fatal("expected chat-type gate to reject unregistered function-call array")
	}
}

func TestChatGateAllowsKnownTool(t *testing.T) {
	raw := `[{"name": "read_file", "arguments": {}}]`
	gated := ChatGate(true, raw, func(name string) bool { return name == "read_file" })
	if gated {
		t.Fatal("known tool should not be gated")
	}
}
