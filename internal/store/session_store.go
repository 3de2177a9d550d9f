package store

import (
	"time"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// SessionData holds conversation state for one session.
type SessionData struct {
	Key      string             `json:"key"`
	Messages []protocol.Message `json:"messages"`
	Summary  string             `json:"summary,omitempty"`
	Created  time.Time          `json:"created"`
	Updated  time.Time          `json:"updated"`

	Model       string `json:"model,omitempty"`
	Backend     string `json:"backend,omitempty"`     // generator backend name ("local-openai", ...)
	ProjectRoot string `json:"projectRoot,omitempty"` // active project root at last run
	Label       string `json:"label,omitempty"`

	InputTokens   int64 `json:"inputTokens,omitempty"`
	OutputTokens  int64 `json:"outputTokens,omitempty"`
	RotationCount int   `json:"rotationCount,omitempty"`

	// Token-estimation calibration: cached per-session so the context
	// manager's threshold checks can use real prompt-token counts instead
	// of the chars/4 heuristic.
	ContextWindow    int `json:"contextWindow,omitempty"`
	LastPromptTokens int `json:"lastPromptTokens,omitempty"`
	LastMessageCount int `json:"lastMessageCount,omitempty"`
}

// SessionInfo is lightweight session metadata for listing.
type SessionInfo struct {
	Key          string    `json:"key"`
	MessageCount int       `json:"messageCount"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// SessionListOpts holds pagination options for ListPaged.
type SessionListOpts struct {
	Limit  int
	Offset int
}

// SessionListResult is the paginated result of ListPaged.
type SessionListResult struct {
	Sessions []SessionInfo `json:"sessions"`
	Total    int           `json:"total"`
}

// SessionStore manages conversation sessions.
type SessionStore interface {
	GetOrCreate(key string) *SessionData
	AddMessage(key string, msg protocol.Message)
	GetHistory(key string) []protocol.Message
	SetHistory(key string, msgs []protocol.Message)
	GetSummary(key string) string
	SetSummary(key, summary string)
	SetLabel(key, label string)
	UpdateMetadata(key, model, backend, projectRoot string)
	AccumulateTokens(key string, input, output int64)
	IncrementRotation(key string)
	GetRotationCount(key string) int
	SetContextWindow(key string, cw int)
	GetContextWindow(key string) int
	SetLastPromptTokens(key string, tokens, msgCount int)
	GetLastPromptTokens(key string) (tokens, msgCount int)
	TruncateHistory(key string, keepLast int)
	Reset(key string)
	Delete(key string) error
	List() []SessionInfo
	ListPaged(opts SessionListOpts) SessionListResult
	Save(key string) error
}
