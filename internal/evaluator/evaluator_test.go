package evaluator

import "testing"

func TestCommitOnOrdinaryResponse(t *testing.T) {
	v := Evaluate(Input{Text: "Here's the summary you asked for.", Iteration: 1})
	if v != Commit {
		t.Fatalf("got %v", v)
	}
}

func TestSkipOnEmptyResponse(t *testing.T) {
	v := Evaluate(Input{Text: "   \n\t  ", Iteration: 1})
	if v != Skip {
		t.Fatalf("got %v", v)
	}
}

func TestSkipOnThinkOnlyResponse(t *testing.T) {
	v := Evaluate(Input{Text: "<think>reasoning about the problem</think>", Iteration: 1})
	if v != Skip {
		t.Fatalf("got %v", v)
	}
}

func TestRollbackOnRefusalEarly(t *testing.T) {
	v := Evaluate(Input{Text: "I'm sorry, but I cannot help with that request.", Iteration: 2})
	if v != Rollback {
		t.Fatalf("got %v", v)
	}
}

func TestCommitOnRefusalPastThreshold(t *testing.T) {
	v := Evaluate(Input{Text: "I'm sorry, but I cannot help with that request.", Iteration: 6})
	if v != Commit {
		t.Fatalf("got %v", v)
	}
}

func TestRollbackOnActionHallucination(t *testing.T) {
	v := Evaluate(Input{Text: "I already visited the page and read the content.", Iteration: 2, HasToolCalls: false})
	if v != Rollback {
		t.Fatalf("got %v", v)
	}
}

func TestNoRollbackWhenActionClaimBackedByToolCall(t *testing.T) {
	v := Evaluate(Input{Text: "I already visited the page; results below.", Iteration: 2, HasToolCalls: true})
	if v != Commit {
		t.Fatalf("got %v", v)
	}
}

func TestRollbackOnRawCodeDump(t *testing.T) {
	code := "```go\n" + repeatLine("fmt.Println(\"x\")\n", 40) + "```"
	v := Evaluate(Input{Text: code, Iteration: 1})
	if v != Rollback {
		t.Fatalf("got %v", v)
	}
}

func TestRollbackOnTruncation(t *testing.T) {
	v := Evaluate(Input{Text: "I was about to explain the next step and then", Iteration: 1, HitTokenCap: true})
	if v != Rollback {
		t.Fatalf("got %v", v)
	}
}

func repeatLine(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func TestFencedToolCallIsNotACodeDump(t *testing.T) {
	text := "```json\n{\"tool\": \"write_file\", \"params\": {\"path\": \"a.txt\", \"content\": \"hi\"}}\n```"
	v := Evaluate(Input{Text: text, Iteration: 1, HasToolCalls: true})
	if v != Commit {
		t.Fatalf("fenced tool call should COMMIT, got %v", v)
	}
}
