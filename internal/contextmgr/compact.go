package contextmgr

import (
	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// Progressive-compaction target lengths: oldest tool results shrink to
// 250-400 chars and oldest assistant messages to 300, with the cap
// tightening for messages further from the tail.
const (
	toolResultMaxLong  = 400
	toolResultMaxShort = 250
	assistantMax       = 300
	// keepRecentUncompacted is how many of the newest messages are never
	// touched, regardless of threshold — the model's most recent turns
	// must stay verbatim.
	keepRecentUncompacted = 6
)

// Compact performs progressive compaction: the system turn (index
// 0, if present) and the original goal (the first user message) are never
// touched; the newest keepRecentUncompacted messages are left verbatim;
// everything else has its tool-result and assistant content truncated.
// Returns a new slice; the input is not mutated.
func Compact(history []protocol.Message) []protocol.Message {
	if len(history) <= keepRecentUncompacted+1 {
		return history
	}

	out := make([]protocol.Message, len(history))
	copy(out, history)

	cutoff := len(out) - keepRecentUncompacted
	goalIdx := -1
	for i, msg := range out {
		if msg.Role == protocol.RoleUser {
			goalIdx = i
			break
		}
	}

	for i := 0; i < cutoff; i++ {
		if i == 0 && out[i].Role == protocol.RoleSystem {
			continue
		}
		if i == goalIdx {
			continue
		}
		switch out[i].Role {
		case protocol.RoleTool:
			out[i].Content = truncateWithNote(out[i].Content, toolResultLen(i, cutoff))
		case protocol.RoleAssistant:
			if len(out[i].ToolCalls) == 0 {
				out[i].Content = truncateWithNote(out[i].Content, assistantMax)
			}
		}
	}

	return out
}

// toolResultLen grades the cap by distance from the cutoff: the very
// oldest results get the shorter cap, ones closer to the still-verbatim
// tail keep the longer one.
func toolResultLen(i, cutoff int) int {
	if cutoff <= 0 {
		return toolResultMaxLong
	}
	if i < cutoff/2 {
		return toolResultMaxShort
	}
	return toolResultMaxLong
}

func truncateWithNote(content string, max int) string {
	if len(content) <= max {
		return content
	}
	return content[:max] + "\n[...compacted]"
}
