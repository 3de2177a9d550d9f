package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/agentrt/internal/config"
	"github.com/nextlevelbuilder/agentrt/internal/engine"
	"github.com/nextlevelbuilder/agentrt/internal/security"
	storefile "github.com/nextlevelbuilder/agentrt/internal/store/file"
	"github.com/nextlevelbuilder/agentrt/internal/tools"
	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// scriptedGen replays a fixed sequence of responses, streaming each
// content as one chunk.
type scriptedGen struct {
	responses []*protocol.ChatResponse
	n         int
}

func (g *scriptedGen) next() *protocol.ChatResponse {
	if g.n >= len(g.responses) {
		return &protocol.ChatResponse{Content: "Done.", FinishReason: "stop"}
	}
	r := g.responses[g.n]
	g.n++
	return r
}

func (g *scriptedGen) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	return g.next(), nil
}

func (g *scriptedGen) ChatStream(ctx context.Context, req protocol.ChatRequest, onChunk func(protocol.StreamChunk)) (*protocol.ChatResponse, error) {
	r := g.next()
	if r.Content != "" {
		onChunk(protocol.StreamChunk{Content: r.Content})
	}
	onChunk(protocol.StreamChunk{Done: true})
	return r, nil
}

func (g *scriptedGen) DefaultModel() string { return "test" }
func (g *scriptedGen) Name() string         { return "scripted" }

func newTestRuntime(t *testing.T, gen protocol.Generator, root string) *Runtime {
	t.Helper()

	eng := engine.New(gen)
	if err := eng.Load(context.Background(), "qwen2.5-7b-instruct-q4.gguf", engine.GPUForceCPU, false); err != nil {
		t.Fatal(err)
	}

	guard := security.NewPathGuard(root)
	backups := tools.NewBackupStore(filepath.Join(root, ".scratch", "backups"))
	registry := tools.NewRegistry()
	registry.Register(tools.NewReadFileTool(guard))
	registry.Register(tools.NewWriteFileTool(guard, backups))
	registry.Register(tools.NewListDirectoryTool(guard))

	cfg := config.Default()
	cfg.SetProjectRoot(root)

	stores := storefile.New(filepath.Join(root, ".state"), "")

	return NewRuntime(RuntimeConfig{
		Config:   cfg,
		Engine:   eng,
		Registry: registry,
		Stores:   stores,
	})
}

func collect(t *testing.T, ch <-chan protocol.Event) (finish protocol.FinishPayload, kinds []string) {
	t.Helper()
	for ev := range ch {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == protocol.EventFinish {
			finish = ev.Payload.(protocol.FinishPayload)
		}
		if ev.Kind == protocol.EventError {
			t.Fatalf("unexpected error event: %+v", ev.Payload)
		}
	}
	return finish, kinds
}

func TestGreetingRunsOneIteration(t *testing.T) {
	gen := &scriptedGen{responses: []*protocol.ChatResponse{
		{Content: "Hello! How can I help?", FinishReason: "stop"},
	}}
	rt := newTestRuntime(t, gen, t.TempDir())

	ch, err := rt.SendMessage(context.Background(), "session:test:greet", "Hi", nil, RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	finish, _ := collect(t, ch)

	if finish.Status != protocol.FinishCompleted {
		t.Fatalf("status = %q, want completed", finish.Status)
	}
	if finish.Iterations != 1 {
		t.Fatalf("iterations = %d, want 1", finish.Iterations)
	}
	if finish.FullResponse == "" || len(finish.FullResponse) > 200 {
		t.Fatalf("greeting response out of bounds: %q", finish.FullResponse)
	}
}

func TestWriteFileFlow(t *testing.T) {
	root := t.TempDir()
	gen := &scriptedGen{responses: []*protocol.ChatResponse{
		{Content: "```json\n{\"tool\": \"write_file\", \"params\": {\"path\": \"hello.txt\", \"content\": \"Hello, world!\"}}\n```", FinishReason: "stop"},
		{Content: "Created hello.txt with the requested content.", FinishReason: "stop"},
	}}
	rt := newTestRuntime(t, gen, root)

	key := "session:test:write"
	ch, err := rt.SendMessage(context.Background(), key, "Create a file hello.txt with 'Hello, world!'", nil, RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	finish, kinds := collect(t, ch)

	if finish.Status != protocol.FinishCompleted {
		t.Fatalf("status = %q, want completed", finish.Status)
	}
	data, err := os.ReadFile(filepath.Join(root, "hello.txt"))
	if err != nil {
		t.Fatalf("hello.txt not written: %v", err)
	}
	if string(data) != "Hello, world!" {
		t.Fatalf("content = %q", data)
	}

	sawToolExec := false
	for _, k := range kinds {
		if k == protocol.EventToolExecuting {
			sawToolExec = true
		}
	}
	if !sawToolExec {
		t.Fatal("expected a tool_executing event")
	}

	if !rt.Session(key).execState.HasWritten("hello.txt") {
		t.Fatal("ExecutionState should record the write")
	}
}

func TestNativeToolCallsExecute(t *testing.T) {
	root := t.TempDir()
	gen := &scriptedGen{responses: []*protocol.ChatResponse{
		{
			Content:      "",
			FinishReason: "tool_calls",
			ToolCalls: []protocol.ToolCall{{
				ID: "c1", Name: "write_file", Origin: protocol.OriginNative,
				Arguments: map[string]interface{}{"path": "native.txt", "content": "from native call"},
			}},
		},
		{Content: "All set.", FinishReason: "stop"},
	}}
	rt := newTestRuntime(t, gen, root)

	ch, err := rt.SendMessage(context.Background(), "session:test:native", "write native.txt please", nil, RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	finish, _ := collect(t, ch)
	if finish.Status != protocol.FinishCompleted {
		t.Fatalf("status = %q", finish.Status)
	}
	if _, err := os.Stat(filepath.Join(root, "native.txt")); err != nil {
		t.Fatal("native tool call should have written the file")
	}
}

func TestTraversalRejectedAndRunCompletes(t *testing.T) {
	root := t.TempDir()
	gen := &scriptedGen{responses: []*protocol.ChatResponse{
		{Content: "```json\n{\"tool\": \"read_file\", \"params\": {\"path\": \"../../etc/passwd\"}}\n```", FinishReason: "stop"},
		{Content: "That path is outside the project root, so the read was blocked.", FinishReason: "stop"},
	}}
	rt := newTestRuntime(t, gen, root)

	ch, err := rt.SendMessage(context.Background(), "session:test:traversal", "Read ../../etc/passwd", nil, RunConfig{MaxIterations: 5})
	if err != nil {
		t.Fatal(err)
	}
	finish, _ := collect(t, ch)
	if finish.Status != protocol.FinishCompleted {
		t.Fatalf("status = %q, want completed (tool errors are not fatal)", finish.Status)
	}
	if finish.Iterations > 5 {
		t.Fatal("iteration cap exceeded")
	}
}

func TestConcurrentSendRejected(t *testing.T) {
	blocker := make(chan struct{})
	gen := &blockingGen{release: blocker}
	rt := newTestRuntime(t, gen, t.TempDir())

	key := "session:test:busy"
	ch, err := rt.SendMessage(context.Background(), key, "first", nil, RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.SendMessage(context.Background(), key, "second", nil, RunConfig{}); err == nil {
		t.Fatal("second concurrent send should be rejected")
	}
	close(blocker)
	collect(t, ch)
}

// blockingGen parks until released, for concurrency tests.
type blockingGen struct{ release chan struct{} }

func (g *blockingGen) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	<-g.release
	return &protocol.ChatResponse{Content: "done", FinishReason: "stop"}, nil
}

func (g *blockingGen) ChatStream(ctx context.Context, req protocol.ChatRequest, onChunk func(protocol.StreamChunk)) (*protocol.ChatResponse, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return &protocol.ChatResponse{Content: "", FinishReason: "cancelled"}, ctx.Err()
	}
	resp := &protocol.ChatResponse{Content: "done", FinishReason: "stop"}
	onChunk(protocol.StreamChunk{Content: "done"})
	onChunk(protocol.StreamChunk{Done: true})
	return resp, nil
}

func (g *blockingGen) DefaultModel() string { return "test" }
func (g *blockingGen) Name() string         { return "blocking" }

func TestChatGateSuppressesFabricatedCalls(t *testing.T) {
	gen := &scriptedGen{responses: []*protocol.ChatResponse{
		{Content: `[{"name": "teleport_user", "arguments": {}}]`, FinishReason: "stop"},
	}}
	rt := newTestRuntime(t, gen, t.TempDir())

	ch, err := rt.SendMessage(context.Background(), "session:test:gate", "Hi", nil, RunConfig{})
	if err != nil {
		t.Fatal(err)
	}
	finish, kinds := collect(t, ch)
	if finish.FullResponse != "" {
		t.Fatalf("fabricated chat response must display nothing, got %q", finish.FullResponse)
	}
	for _, k := range kinds {
		if k == protocol.EventToolExecuting {
			t.Fatal("no tool must execute for a fabricated chat call")
		}
	}
	if !strings.Contains(finish.Status, "completed") {
		t.Fatalf("status = %q", finish.Status)
	}
}
