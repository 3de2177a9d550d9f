// Package summarizer builds the structured ConversationLedger the context
// manager swaps in for full chat history on hard rotation.
package summarizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

const (
	originalGoalCap  = 2000
	detailedStepsCap = 40
)

// CompletedStep is one tool invocation folded into the ledger.
type CompletedStep struct {
	Tool         string `json:"tool"`
	ParamsDigest string `json:"params_digest"`
	Outcome      string `json:"outcome"`
	Count        int    `json:"count,omitempty"` // >1 when collapsed as "tool (×N)"
}

// CurrentState captures the last known workspace/browser context so a
// rotated session doesn't lose "where it was".
type CurrentState struct {
	Page       string `json:"page,omitempty"`
	File       string `json:"file,omitempty"`
	Dir        string `json:"dir,omitempty"`
	LastAction string `json:"last_action,omitempty"`
}

// Ledger is the structured summary that replaces rotated-out history.
type Ledger struct {
	OriginalGoal     string          `json:"original_goal"`
	CompletedSteps   []CompletedStep `json:"completed_steps"`
	CurrentState     CurrentState    `json:"current_state"`
	KeyFindings      []string        `json:"key_findings"`
	UserCorrections  []string        `json:"user_corrections"`
	PendingSteps     []string        `json:"pending_steps"`
}

// correctionMarkers flag a user turn as a correction worth preserving
// verbatim.
var correctionMarkers = []string{"actually", "no,", "no ", "instead", "wait"}

// Build folds a chat history (system message excluded by the caller) into a
// Ledger. findings is an optional list of facts the loop has already
// extracted (e.g. page quotes); it's merged in rather than re-derived.
func Build(history []protocol.Message, findings []string) *Ledger {
	l := &Ledger{
		KeyFindings: append([]string{}, findings...),
	}

	var state CurrentState
	var pendingCandidate string

	var collapsed []CompletedStep
	var lastKey string
	var userMessageIndex int

	for _, msg := range history {
		switch msg.Role {
		case protocol.RoleUser:
			userMessageIndex++
			if userMessageIndex == 1 && l.OriginalGoal == "" {
				l.OriginalGoal = capString(msg.Content, originalGoalCap)
				continue
			}
			if isCorrection(msg.Content) {
				l.UserCorrections = append(l.UserCorrections, msg.Content)
			}
			pendingCandidate = msg.Content

		case protocol.RoleAssistant:
			for _, tc := range msg.ToolCalls {
				digest := digestParams(tc.Arguments)
				key := tc.Name + "|" + digest
				if key == lastKey && len(collapsed) > 0 {
					collapsed[len(collapsed)-1].Count++
					continue
				}
				collapsed = append(collapsed, CompletedStep{Tool: tc.Name, ParamsDigest: digest, Count: 1})
				lastKey = key
				updateStateFromCall(&state, tc)
			}

		case protocol.RoleTool:
			if len(collapsed) > 0 && collapsed[len(collapsed)-1].Outcome == "" {
				collapsed[len(collapsed)-1].Outcome = outcomeDigest(msg.Content)
			}
		}
	}

	l.CompletedSteps = compress(collapsed)
	l.CurrentState = state
	if pendingCandidate != "" {
		l.PendingSteps = append(l.PendingSteps, pendingCandidate)
	}
	return l
}

// compress keeps full detail for only the most recent detailedStepsCap
// entries; older entries keep just the tool name and outcome digest.
func compress(steps []CompletedStep) []CompletedStep {
	if len(steps) <= detailedStepsCap {
		return steps
	}
	cut := len(steps) - detailedStepsCap
	out := make([]CompletedStep, 0, len(steps))
	for i, s := range steps[:cut] {
		out = append(out, CompletedStep{Tool: s.Tool, Outcome: s.Outcome, Count: s.Count})
		_ = i
	}
	out = append(out, steps[cut:]...)
	return out
}

func isCorrection(content string) bool {
	lower := strings.ToLower(content)
	for _, marker := range correctionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func digestParams(params map[string]interface{}) string {
	raw, _ := json.Marshal(params)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:12]
}

func outcomeDigest(content string) string {
	return capString(strings.TrimSpace(content), 120)
}

func updateStateFromCall(state *CurrentState, tc protocol.ToolCall) {
	state.LastAction = tc.Name
	switch tc.Name {
	case "navigate", "browser_navigate":
		if url, ok := tc.Arguments["url"].(string); ok {
			state.Page = url
		}
	case "read_file", "write_file", "edit_file":
		if fp, ok := tc.Arguments["path"].(string); ok {
			state.File = fp
		}
	case "list_directory":
		if dir, ok := tc.Arguments["path"].(string); ok {
			state.Dir = dir
		}
	}
}

func capString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Render produces a bounded text block suitable to stand in for all prior
// turns except the system message (the ledger-as-user turn after a hard
// rotation).
func (l *Ledger) Render() string {
	var b strings.Builder
	b.WriteString("# Conversation summary (rotated from earlier turns)\n\n")
	b.WriteString("## Original goal\n")
	b.WriteString(l.OriginalGoal)
	b.WriteString("\n\n")

	if len(l.CompletedSteps) > 0 {
		b.WriteString("## Completed steps\n")
		for _, s := range l.CompletedSteps {
			if s.Count > 1 {
				fmt.Fprintf(&b, "- %s (×%d)", s.Tool, s.Count)
			} else {
				fmt.Fprintf(&b, "- %s", s.Tool)
			}
			if s.Outcome != "" {
				fmt.Fprintf(&b, ": %s", s.Outcome)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if l.CurrentState != (CurrentState{}) {
		b.WriteString("## Current state\n")
		if l.CurrentState.Page != "" {
			fmt.Fprintf(&b, "- page: %s\n", l.CurrentState.Page)
		}
		if l.CurrentState.File != "" {
			fmt.Fprintf(&b, "- file: %s\n", l.CurrentState.File)
		}
		if l.CurrentState.Dir != "" {
			fmt.Fprintf(&b, "- dir: %s\n", l.CurrentState.Dir)
		}
		if l.CurrentState.LastAction != "" {
			fmt.Fprintf(&b, "- last action: %s\n", l.CurrentState.LastAction)
		}
		b.WriteString("\n")
	}

	if len(l.KeyFindings) > 0 {
		b.WriteString("## Key findings\n")
		for _, f := range l.KeyFindings {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	if len(l.UserCorrections) > 0 {
		b.WriteString("## User corrections (verbatim)\n")
		for _, c := range l.UserCorrections {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	if len(l.PendingSteps) > 0 {
		b.WriteString("## Pending\n")
		for _, p := range l.PendingSteps {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}

	return strings.TrimSpace(b.String())
}
