package tools

import "context"

// Tool execution context keys. These replace mutable setter fields on tool
// instances, making tools safe for concurrent (parallel-iteration) execution.

type toolContextKey string

const (
	ctxWorkspace toolContextKey = "tool_workspace"
	ctxAsyncCB   toolContextKey = "tool_async_cb"
	ctxIterScope toolContextKey = "tool_iter_scope"
	ctxApproval  toolContextKey = "tool_approval"
)

// ApprovalFunc is the destructive-op permission hook: called with the
// action ("delete", "overwrite") and the target path before a destructive
// file op runs. The CLI host wires this to an interactive confirmation;
// a nil hook allows everything.
type ApprovalFunc func(action, target string) bool

func WithApprovalHook(ctx context.Context, fn ApprovalFunc) context.Context {
	return context.WithValue(ctx, ctxApproval, fn)
}

// Approved consults the hook on ctx, defaulting to allow when none is set.
func Approved(ctx context.Context, action, target string) bool {
	fn, _ := ctx.Value(ctxApproval).(ApprovalFunc)
	if fn == nil {
		return true
	}
	return fn(action, target)
}

// WithToolWorkspace scopes file/terminal tools to a per-session workspace root.
func WithToolWorkspace(ctx context.Context, ws string) context.Context {
	return context.WithValue(ctx, ctxWorkspace, ws)
}

func ToolWorkspaceFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxWorkspace).(string)
	return v
}

func WithToolAsyncCB(ctx context.Context, cb AsyncCallback) context.Context {
	return context.WithValue(ctx, ctxAsyncCB, cb)
}

func ToolAsyncCBFromCtx(ctx context.Context) AsyncCallback {
	v, _ := ctx.Value(ctxAsyncCB).(AsyncCallback)
	return v
}

// IterationScope carries per-iteration counters a tool needs to enforce
// its own caps (e.g. the browser family's 2-actions-per-iteration limit,
// the todo tool's 6-mutations-per-iteration limit).
type IterationScope struct {
	Iteration          int
	BrowserActionsUsed *int
	TodoMutationsUsed  *int
}

func WithIterationScope(ctx context.Context, scope *IterationScope) context.Context {
	return context.WithValue(ctx, ctxIterScope, scope)
}

func IterationScopeFromCtx(ctx context.Context) *IterationScope {
	v, _ := ctx.Value(ctxIterScope).(*IterationScope)
	return v
}
