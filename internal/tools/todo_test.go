package tools

import (
	"context"
	"strings"
	"testing"
)

func TestUpdateTodoAddAndStatus(t *testing.T) {
	store := NewTodoStore()
	tool := NewUpdateTodoTool(store)

	var lastSnapshot []Todo
	store.OnUpdate(func(todos []Todo) { lastSnapshot = todos })

	res := tool.Execute(context.Background(), map[string]interface{}{
		"action": "add", "text": "write tests",
	})
	if res.IsError {
		t.Fatalf("add failed: %s", res.ForLLM)
	}
	if len(lastSnapshot) != 1 || lastSnapshot[0].Status != TodoPending {
		t.Fatalf("snapshot = %+v, want one pending item", lastSnapshot)
	}

	id := lastSnapshot[0].ID
	res = tool.Execute(context.Background(), map[string]interface{}{
		"action": "set_status", "id": id, "status": TodoDone,
	})
	if res.IsError {
		t.Fatalf("set_status failed: %s", res.ForLLM)
	}
	if lastSnapshot[0].Status != TodoDone {
		t.Fatalf("status = %q, want done", lastSnapshot[0].Status)
	}
}

func TestUpdateTodoRejectsBadInput(t *testing.T) {
	tool := NewUpdateTodoTool(NewTodoStore())

	cases := []map[string]interface{}{
		{"action": "add"},                                              // missing text
		{"action": "set_status", "id": "zzz", "status": "done"},        // unknown id
		{"action": "set_status", "id": "zzz", "status": "unknowable"},  // bad status
		{"action": "replace_all"},                                      // bad action
	}
	for _, args := range cases {
		if res := tool.Execute(context.Background(), args); !res.IsError {
			t.Fatalf("args %v should have errored", args)
		}
	}
}

func TestUpdateTodoMutationCap(t *testing.T) {
	tool := NewUpdateTodoTool(NewTodoStore())

	used := 0
	ctx := WithIterationScope(context.Background(), &IterationScope{TodoMutationsUsed: &used})

	for i := 0; i < maxTodoMutationsPerIter; i++ {
		res := tool.Execute(ctx, map[string]interface{}{"action": "add", "text": "item"})
		if res.IsError {
			t.Fatalf("mutation %d failed early: %s", i, res.ForLLM)
		}
	}
	res := tool.Execute(ctx, map[string]interface{}{"action": "add", "text": "one too many"})
	if !res.IsError || !strings.Contains(res.ForLLM, "limit") {
		t.Fatalf("7th mutation should hit the cap, got %+v", res)
	}
}

func TestBreakerTripsAfterIdenticalFailures(t *testing.T) {
	b := NewBreaker()
	digest := ParamsDigest(map[string]interface{}{"path": "/x"})

	for i := 0; i < breakerThreshold; i++ {
		if !b.Allow("read_file", digest) {
			t.Fatalf("call %d should be allowed before threshold", i)
		}
		b.Record("read_file", digest, true)
	}
	if !b.Tripped("read_file", digest) {
		t.Fatal("breaker should be tripped after threshold identical failures")
	}
	if b.Allow("read_file", digest) {
		t.Fatal("first post-trip call should be skipped (initial probe token spent)")
	}

	// Different params: unaffected.
	other := ParamsDigest(map[string]interface{}{"path": "/y"})
	if !b.Allow("read_file", other) {
		t.Fatal("different params must not share the circuit")
	}
}

func TestBreakerSuccessResets(t *testing.T) {
	b := NewBreaker()
	digest := ParamsDigest(map[string]interface{}{"q": "hello"})

	for i := 0; i < breakerThreshold-1; i++ {
		b.Record("web_search", digest, true)
	}
	b.Record("web_search", digest, false)
	if b.Tripped("web_search", digest) {
		t.Fatal("success must reset the failure count")
	}
}

func TestBreakerResetClearsAll(t *testing.T) {
	b := NewBreaker()
	digest := ParamsDigest(nil)
	for i := 0; i < breakerThreshold; i++ {
		b.Record("run_command", digest, true)
	}
	b.Reset()
	if b.Tripped("run_command", digest) {
		t.Fatal("Reset should clear tripped circuits")
	}
	if !b.Allow("run_command", digest) {
		t.Fatal("calls should be allowed again after Reset")
	}
}
