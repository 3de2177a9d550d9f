package contextmgr

import (
	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
	"github.com/nextlevelbuilder/agentrt/internal/summarizer"
)

// Rotate replaces the full history with the hard-rotation shape
// [System, Ledger-as-User, Latest-Model]. The system message (history[0],
// if present) is copied over verbatim; findings are whatever key facts the loop has already
// extracted (e.g. captured page quotes) and are merged into the ledger
// rather than re-derived.
func (m *Manager) Rotate(history []protocol.Message, findings []string) []protocol.Message {
	var systemMsg protocol.Message
	hasSystem := len(history) > 0 && history[0].Role == protocol.RoleSystem
	if hasSystem {
		systemMsg = history[0]
	}

	body := history
	if hasSystem {
		body = history[1:]
	}
	ledger := summarizer.Build(body, findings)

	var latestModel protocol.Message
	for i := len(body) - 1; i >= 0; i-- {
		if body[i].Role == protocol.RoleAssistant {
			latestModel = body[i]
			break
		}
	}

	out := make([]protocol.Message, 0, 3)
	if hasSystem {
		out = append(out, systemMsg)
	}
	out = append(out, protocol.Message{Role: protocol.RoleUser, Content: ledger.Render()})
	if latestModel.Content != "" || len(latestModel.ToolCalls) > 0 {
		out = append(out, latestModel)
	}

	m.Invalidate()
	return out
}
