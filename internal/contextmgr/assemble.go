package contextmgr

import (
	"strings"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// AssembleInput bundles every ingredient the prompt-assembly priority order
// needs: system preamble → tool definitions → memory →
// workspace BM25 hits ("RAG") → file context → error context header →
// user message.
type AssembleInput struct {
	SystemPreamble string
	Tools          []protocol.ToolDefinition
	Memory         string
	RAGHits        []string
	FileContext    string
	ErrorContext   string
	History        []protocol.Message
	UserMessage    protocol.Message
}

// Manager owns the system-message equality guard and the rotation state
// (last_eval validity) across a session's iterations.
type Manager struct {
	lastSystemText string
	lastSystemMsg  protocol.Message
	lastEvalValid  bool
}

// NewManager returns a Manager with no cached system message yet.
func NewManager() *Manager {
	return &Manager{}
}

// LastEvalValid reports whether the engine's incremental KV evaluator can
// reuse its cached prefix, i.e. whether a generation has been marked valid
// (MarkEvalValid) with no Invalidate since.
func (m *Manager) LastEvalValid() bool {
	return m.lastEvalValid
}

// MarkEvalValid records that the engine completed a generation against the
// current history and its cleanHistory/KV state is trustworthy.
func (m *Manager) MarkEvalValid() {
	m.lastEvalValid = true
}

// Invalidate forces the next generation to re-tokenize from scratch —
// called on hard rotation, session reset, model load, and on a rollback
// whose transaction opened with an invalid cache.
func (m *Manager) Invalidate() {
	m.lastEvalValid = false
}

// systemMessage applies the equality guard: the returned Message is only
// rebuilt when text differs from the last call, so an unchanged system
// preamble reuses the same object across iterations and the engine's
// incremental evaluator can reuse the KV prefix for it.
func (m *Manager) systemMessage(text string) protocol.Message {
	if text == m.lastSystemText {
		return m.lastSystemMsg
	}
	m.lastSystemText = text
	m.lastSystemMsg = protocol.Message{Role: protocol.RoleSystem, Content: text}
	return m.lastSystemMsg
}

// Assemble renders the full system preamble (tool defs, memory, RAG hits,
// file context, error header folded in, in priority order) plus the
// conversation history and trailing user message, as the ordered message
// slice the engine sends to the backend.
func (m *Manager) Assemble(in AssembleInput) []protocol.Message {
	var preamble strings.Builder
	preamble.WriteString(in.SystemPreamble)

	if len(in.Tools) > 0 {
		preamble.WriteString("\n\n## Available tools\n")
		for _, t := range in.Tools {
			preamble.WriteString("- ")
			preamble.WriteString(t.Function.Name)
			if t.Function.Description != "" {
				preamble.WriteString(": ")
				preamble.WriteString(t.Function.Description)
			}
			preamble.WriteString("\n")
		}
	}

	if in.Memory != "" {
		preamble.WriteString("\n\n## Memory\n")
		preamble.WriteString(in.Memory)
	}

	if len(in.RAGHits) > 0 {
		preamble.WriteString("\n\n## Relevant workspace context\n")
		for _, hit := range in.RAGHits {
			preamble.WriteString("- ")
			preamble.WriteString(hit)
			preamble.WriteString("\n")
		}
	}

	if in.FileContext != "" {
		preamble.WriteString("\n\n## Open file context\n")
		preamble.WriteString(in.FileContext)
	}

	if in.ErrorContext != "" {
		preamble.WriteString("\n\n## Error context\n")
		preamble.WriteString(in.ErrorContext)
	}

	out := make([]protocol.Message, 0, len(in.History)+2)
	out = append(out, m.systemMessage(preamble.String()))
	out = append(out, in.History...)
	if in.UserMessage.Content != "" || len(in.UserMessage.Images) > 0 {
		out = append(out, in.UserMessage)
	}
	return out
}
