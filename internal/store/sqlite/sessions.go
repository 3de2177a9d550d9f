package sqlite

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentrt/internal/store"
	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// SessionStore implements store.SessionStore backed by a sqlite file,
// mirroring pg.PGSessionStore's cache-then-persist shape.
type SessionStore struct {
	db    *sql.DB
	mu    sync.RWMutex
	cache map[string]*store.SessionData
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db, cache: make(map[string]*store.SessionData)}
}

func (s *SessionStore) GetOrCreate(key string) *store.SessionData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrInit(key)
}

func (s *SessionStore) AddMessage(key string, msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.getOrInit(key)
	data.Messages = append(data.Messages, msg)
	data.Updated = time.Now()
}

func (s *SessionStore) GetHistory(key string) []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.getOrInit(key)
	msgs := make([]protocol.Message, len(data.Messages))
	copy(msgs, data.Messages)
	return msgs
}

func (s *SessionStore) SetHistory(key string, msgs []protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.getOrInit(key)
	data.Messages = make([]protocol.Message, len(msgs))
	copy(data.Messages, msgs)
	data.Updated = time.Now()
}

func (s *SessionStore) GetSummary(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, ok := s.cache[key]; ok {
		return data.Summary
	}
	return ""
}

func (s *SessionStore) SetSummary(key, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrInit(key).Summary = summary
}

func (s *SessionStore) SetLabel(key, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrInit(key).Label = label
}

func (s *SessionStore) UpdateMetadata(key, model, backend, projectRoot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.getOrInit(key)
	if model != "" {
		data.Model = model
	}
	if backend != "" {
		data.Backend = backend
	}
	if projectRoot != "" {
		data.ProjectRoot = projectRoot
	}
}

func (s *SessionStore) AccumulateTokens(key string, input, output int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.getOrInit(key)
	data.InputTokens += input
	data.OutputTokens += output
}

func (s *SessionStore) IncrementRotation(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrInit(key).RotationCount++
}

func (s *SessionStore) GetRotationCount(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, ok := s.cache[key]; ok {
		return data.RotationCount
	}
	return 0
}

func (s *SessionStore) SetContextWindow(key string, cw int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrInit(key).ContextWindow = cw
}

func (s *SessionStore) GetContextWindow(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, ok := s.cache[key]; ok {
		return data.ContextWindow
	}
	return 0
}

func (s *SessionStore) SetLastPromptTokens(key string, tokens, msgCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.getOrInit(key)
	data.LastPromptTokens = tokens
	data.LastMessageCount = msgCount
}

func (s *SessionStore) GetLastPromptTokens(key string) (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, ok := s.cache[key]; ok {
		return data.LastPromptTokens, data.LastMessageCount
	}
	return 0, 0
}

func (s *SessionStore) TruncateHistory(key string, keepLast int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.getOrInit(key)
	if keepLast <= 0 {
		data.Messages = []protocol.Message{}
	} else if len(data.Messages) > keepLast {
		data.Messages = data.Messages[len(data.Messages)-keepLast:]
	}
	data.Updated = time.Now()
}

func (s *SessionStore) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.getOrInit(key)
	data.Messages = []protocol.Message{}
	data.Summary = ""
	data.Updated = time.Now()
}

func (s *SessionStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM sessions WHERE session_key = ?", key)
	return err
}

func (s *SessionStore) List() []store.SessionInfo {
	rows, err := s.db.Query(
		"SELECT session_key, messages, created_at, updated_at FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil
	}
	defer rows.Close()

	var result []store.SessionInfo
	for rows.Next() {
		var key, msgsJSON string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&key, &msgsJSON, &createdAt, &updatedAt); err != nil {
			continue
		}
		var msgs []protocol.Message
		json.Unmarshal([]byte(msgsJSON), &msgs)
		result = append(result, store.SessionInfo{
			Key: key, MessageCount: len(msgs), Created: createdAt, Updated: updatedAt,
		})
	}
	return result
}

func (s *SessionStore) ListPaged(opts store.SessionListOpts) store.SessionListResult {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&total); err != nil {
		return store.SessionListResult{Sessions: []store.SessionInfo{}, Total: 0}
	}

	rows, err := s.db.Query(
		"SELECT session_key, messages, created_at, updated_at FROM sessions ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return store.SessionListResult{Sessions: []store.SessionInfo{}, Total: total}
	}
	defer rows.Close()

	result := []store.SessionInfo{}
	for rows.Next() {
		var key, msgsJSON string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&key, &msgsJSON, &createdAt, &updatedAt); err != nil {
			continue
		}
		var msgs []protocol.Message
		json.Unmarshal([]byte(msgsJSON), &msgs)
		result = append(result, store.SessionInfo{
			Key: key, MessageCount: len(msgs), Created: createdAt, Updated: updatedAt,
		})
	}
	return store.SessionListResult{Sessions: result, Total: total}
}

func (s *SessionStore) Save(key string) error {
	s.mu.RLock()
	data, ok := s.cache[key]
	if !ok {
		s.mu.RUnlock()
		return nil
	}
	snapshot := *data
	msgs := make([]protocol.Message, len(data.Messages))
	copy(msgs, data.Messages)
	snapshot.Messages = msgs
	s.mu.RUnlock()

	msgsJSON, _ := json.Marshal(snapshot.Messages)

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, session_key, messages, summary, model, backend, project_root,
			input_tokens, output_tokens, rotation_count, label,
			context_window, last_prompt_tokens, last_message_count, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(session_key) DO UPDATE SET
			messages=excluded.messages, summary=excluded.summary, model=excluded.model,
			backend=excluded.backend, project_root=excluded.project_root,
			input_tokens=excluded.input_tokens, output_tokens=excluded.output_tokens,
			rotation_count=excluded.rotation_count, label=excluded.label,
			context_window=excluded.context_window,
			last_prompt_tokens=excluded.last_prompt_tokens,
			last_message_count=excluded.last_message_count, updated_at=excluded.updated_at`,
		uuid.NewString(), key, string(msgsJSON), nilStr(snapshot.Summary), nilStr(snapshot.Model),
		nilStr(snapshot.Backend), nilStr(snapshot.ProjectRoot), snapshot.InputTokens, snapshot.OutputTokens,
		snapshot.RotationCount, nilStr(snapshot.Label),
		snapshot.ContextWindow, snapshot.LastPromptTokens, snapshot.LastMessageCount,
		snapshot.Created, snapshot.Updated,
	)
	return err
}

// getOrInit returns the cached session, loading from disk or creating a new
// in-memory record on first touch. Caller must hold s.mu.
func (s *SessionStore) getOrInit(key string) *store.SessionData {
	if data, ok := s.cache[key]; ok {
		return data
	}
	if data := s.loadFromDB(key); data != nil {
		s.cache[key] = data
		return data
	}
	now := time.Now()
	data := &store.SessionData{Key: key, Messages: []protocol.Message{}, Created: now, Updated: now}
	s.cache[key] = data
	return data
}

func (s *SessionStore) loadFromDB(key string) *store.SessionData {
	var sessionKey, msgsJSON string
	var summary, model, backend, projectRoot, label *string
	var inputTokens, outputTokens int64
	var rotationCount, contextWindow, lastPromptTokens, lastMessageCount int
	var createdAt, updatedAt time.Time

	err := s.db.QueryRow(
		`SELECT session_key, messages, summary, model, backend, project_root,
		 input_tokens, output_tokens, rotation_count, label,
		 context_window, last_prompt_tokens, last_message_count, created_at, updated_at
		 FROM sessions WHERE session_key = ?`, key,
	).Scan(&sessionKey, &msgsJSON, &summary, &model, &backend, &projectRoot,
		&inputTokens, &outputTokens, &rotationCount, &label,
		&contextWindow, &lastPromptTokens, &lastMessageCount, &createdAt, &updatedAt)
	if err != nil {
		return nil
	}

	var msgs []protocol.Message
	json.Unmarshal([]byte(msgsJSON), &msgs)

	return &store.SessionData{
		Key: sessionKey, Messages: msgs, Summary: derefStr(summary),
		Created: createdAt, Updated: updatedAt,
		Model: derefStr(model), Backend: derefStr(backend), ProjectRoot: derefStr(projectRoot),
		InputTokens: inputTokens, OutputTokens: outputTokens, RotationCount: rotationCount,
		Label:         derefStr(label),
		ContextWindow: contextWindow, LastPromptTokens: lastPromptTokens, LastMessageCount: lastMessageCount,
	}
}
