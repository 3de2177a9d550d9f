package agent

import (
	"context"
	"sync"

	"github.com/nextlevelbuilder/agentrt/internal/contextmgr"
	"github.com/nextlevelbuilder/agentrt/internal/tools"
)

// Session is the per-conversation handle: one chat history (persisted via
// the session store), one context-manager state, one progressive-disclosure
// policy, one todo list, and the sticky per-session flags (grammar
// disable). Runs against the same session are serialized by runMu;
// concurrent SendMessage calls on one session are rejected.
type Session struct {
	Key string

	runMu   sync.Mutex
	running bool

	cancelMu  sync.Mutex
	runCancel context.CancelFunc

	ctxmgr    *contextmgr.Manager
	policy    *tools.PolicyEngine
	breaker   *tools.Breaker
	todos     *tools.TodoStore
	execState *ExecutionState
	stuck     stuckDetector

	// grammarDisabled is sticky for the session lifetime: once grammar-
	// constrained generation has stalled, it stays off;
	// a COMMIT never re-enables it.
	grammarDisabled bool

	// errorContext, when set, is injected as the prompt's error header on
	// the next assembly and cleared after.
	errorContext string

	// findings accumulate tool-derived key facts for the rotation ledger.
	findings []string

	// stuckNudges counts stuck-detector triggers this run; the second
	// forces termination.
	stuckNudges int
}

func newSession(key string) *Session {
	return &Session{
		Key:       key,
		ctxmgr:    contextmgr.NewManager(),
		policy:    tools.NewPolicyEngine(),
		breaker:   tools.NewBreaker(),
		todos:     tools.NewTodoStore(),
		execState: &ExecutionState{},
	}
}

// tryAcquire marks the session as running, failing if a run is active.
func (s *Session) tryAcquire() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Session) release() {
	s.runMu.Lock()
	s.running = false
	s.runMu.Unlock()
}

func (s *Session) setCancel(fn context.CancelFunc) {
	s.cancelMu.Lock()
	s.runCancel = fn
	s.cancelMu.Unlock()
}

// Cancel aborts the in-flight run, if any.
func (s *Session) Cancel() {
	s.cancelMu.Lock()
	fn := s.runCancel
	s.cancelMu.Unlock()
	if fn != nil {
		fn()
	}
}

// addFinding appends a key finding for the next rotation ledger, bounded.
func (s *Session) addFinding(f string) {
	const maxFindings = 30
	if f == "" {
		return
	}
	s.findings = append(s.findings, f)
	if len(s.findings) > maxFindings {
		s.findings = s.findings[len(s.findings)-maxFindings:]
	}
}

// transaction is the single-iteration snapshot: history
// length plus KV validity, restored wholesale on ROLLBACK. At most one is
// open per session; openTransaction resets the per-iteration counters.
type transaction struct {
	historyLen      int
	lastEvalValid   bool
	rollbackRetries uint8

	// consecutiveEmptyGrammarRetries counts SKIP verdicts in this
	// transaction; bounded so empty output can't spin forever.
	consecutiveEmptyGrammarRetries uint8

	grammarDisabled bool
	thinkDisabled   bool
}

const (
	maxRollbackRetries = 3
	maxEmptyRetries    = 3
)

func (s *Session) openTransaction(historyLen int) *transaction {
	return &transaction{
		historyLen:      historyLen,
		lastEvalValid:   s.ctxmgr.LastEvalValid(),
		grammarDisabled: s.grammarDisabled,
	}
}
