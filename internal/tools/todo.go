package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// maxTodoMutationsPerIter caps update_todo calls within one agentic
// iteration so a confused model can't spend the whole turn churning its
// own list.
const maxTodoMutationsPerIter = 6

// Todo statuses.
const (
	TodoPending    = "pending"
	TodoInProgress = "in_progress"
	TodoDone       = "done"
	TodoCancelled  = "cancelled"
)

var todoStatuses = map[string]bool{
	TodoPending: true, TodoInProgress: true, TodoDone: true, TodoCancelled: true,
}

// Todo is one entry in the model-managed task list.
type Todo struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status"`
}

// TodoStore holds the per-session todo list. Mutations happen only through
// the update_todo tool; the loop subscribes to publish TodoUpdate events.
type TodoStore struct {
	mu       sync.Mutex
	todos    []Todo
	onUpdate func([]Todo)
}

func NewTodoStore() *TodoStore {
	return &TodoStore{}
}

// OnUpdate registers the callback fired (with a snapshot) after every
// successful mutation.
func (s *TodoStore) OnUpdate(fn func([]Todo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// Snapshot returns a copy of the current list.
func (s *TodoStore) Snapshot() []Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *TodoStore) snapshotLocked() []Todo {
	out := make([]Todo, len(s.todos))
	copy(out, s.todos)
	return out
}

// Clear empties the list (explicit user action, e.g. session reset).
func (s *TodoStore) Clear() {
	s.mu.Lock()
	s.todos = nil
	s.mu.Unlock()
}

func (s *TodoStore) add(text string) Todo {
	t := Todo{ID: uuid.NewString()[:8], Text: text, Status: TodoPending}
	s.todos = append(s.todos, t)
	return t
}

func (s *TodoStore) setStatus(id, status string) bool {
	for i := range s.todos {
		if s.todos[i].ID == id {
			s.todos[i].Status = status
			return true
		}
	}
	return false
}

// UpdateTodoTool is the only mutation path for the todo list.
type UpdateTodoTool struct {
	store *TodoStore
}

func NewUpdateTodoTool(store *TodoStore) *UpdateTodoTool {
	return &UpdateTodoTool{store: store}
}

func (t *UpdateTodoTool) Name() string { return "update_todo" }
func (t *UpdateTodoTool) Description() string {
	return "Add a todo item or change an existing item's status (pending, in_progress, done, cancelled)."
}
func (t *UpdateTodoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"add", "set_status"},
				"description": "add: create a new item from 'text'. set_status: change item 'id' to 'status'.",
			},
			"text":   map[string]interface{}{"type": "string"},
			"id":     map[string]interface{}{"type": "string"},
			"status": map[string]interface{}{"type": "string"},
		},
		"required": []string{"action"},
	}
}

func (t *UpdateTodoTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if scope := IterationScopeFromCtx(ctx); scope != nil && scope.TodoMutationsUsed != nil {
		if *scope.TodoMutationsUsed >= maxTodoMutationsPerIter {
			return ErrorResult(fmt.Sprintf("todo mutation limit reached (%d per iteration); continue with the task", maxTodoMutationsPerIter))
		}
		*scope.TodoMutationsUsed++
	}

	action, _ := args["action"].(string)

	t.store.mu.Lock()
	var out string
	switch action {
	case "add":
		text, _ := args["text"].(string)
		text = strings.TrimSpace(text)
		if text == "" {
			t.store.mu.Unlock()
			return ErrorResult("add requires a non-empty 'text'")
		}
		item := t.store.add(text)
		out = fmt.Sprintf("added todo %s: %s", item.ID, item.Text)
	case "set_status":
		id, _ := args["id"].(string)
		status, _ := args["status"].(string)
		if !todoStatuses[status] {
			t.store.mu.Unlock()
			return ErrorResult("status must be one of pending, in_progress, done, cancelled")
		}
		if !t.store.setStatus(id, status) {
			t.store.mu.Unlock()
			return ErrorResult(fmt.Sprintf("no todo with id %q", id))
		}
		out = fmt.Sprintf("todo %s → %s", id, status)
	default:
		t.store.mu.Unlock()
		return ErrorResult("action must be 'add' or 'set_status'")
	}

	snapshot := t.store.snapshotLocked()
	cb := t.store.onUpdate
	t.store.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
	return SilentResult(out)
}
