package tools

import "github.com/nextlevelbuilder/agentrt/pkg/protocol"

// Result is the unified return type from tool execution. The
// ForLLM/ForUser split separates what the model sees from what gets
// rendered to the user; Silent results reach the model only.
type Result struct {
	ForLLM    string   `json:"for_llm"`
	ForUser   string   `json:"for_user,omitempty"`
	Silent    bool     `json:"silent"`
	IsError   bool     `json:"is_error"`
	Async     bool     `json:"async"`
	Artifacts []string `json:"artifacts,omitempty"`
	Err       error    `json:"-"`

	// Usage holds token usage from tools that make internal generation
	// calls (e.g. a summarizing tool); the loop records these on the
	// tool's trace span.
	Usage *protocol.Usage `json:"-"`
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func SilentResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM, Silent: true}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func UserResult(content string) *Result {
	return &Result{ForLLM: content, ForUser: content}
}

func AsyncResult(message string) *Result {
	return &Result{ForLLM: message, Async: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}

func (r *Result) WithArtifacts(paths ...string) *Result {
	r.Artifacts = append(r.Artifacts, paths...)
	return r
}

// ToProtocolResult converts to the wire envelope returned to the model.
func (r *Result) ToProtocolResult(id, toolName string) protocol.ToolResult {
	pr := protocol.ToolResult{ID: id, Tool: toolName, Success: !r.IsError, Output: r.ForLLM, Artifacts: r.Artifacts}
	if r.IsError {
		pr.Error = r.ForLLM
	}
	return pr
}
