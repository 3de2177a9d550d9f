package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentrt/internal/contextmgr"
	"github.com/nextlevelbuilder/agentrt/internal/crashlog"
	"github.com/nextlevelbuilder/agentrt/internal/evaluator"
	"github.com/nextlevelbuilder/agentrt/internal/parser"
	"github.com/nextlevelbuilder/agentrt/internal/sanitize"
	"github.com/nextlevelbuilder/agentrt/internal/summarizer"
	"github.com/nextlevelbuilder/agentrt/internal/tools"
	"github.com/nextlevelbuilder/agentrt/internal/tracing"
	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// RunConfig tunes one SendMessage run. Zero values take the defaults.
type RunConfig struct {
	MaxIterations int           // default 30
	WallClock     time.Duration // default 10m, checked at loop top
	Temperature   float64       // default 0.7; re-applied at each iteration start
	MaxTokens     int           // default 8192
}

const (
	defaultMaxIterations = 30
	defaultWallClock     = 10 * time.Minute
	defaultTemperature   = 0.7
	defaultMaxTokens     = 8192

	// grammarFirstTokenTimeout is short on purpose: grammar-constrained
	// generation has been observed to hang in rejection sampling. On
	// timeout, grammar stays off for the rest of the session.
	grammarFirstTokenTimeout = 5 * time.Second

	maxBrowserActionsPerIter = 2
	rollbackTempStep         = 0.2
	minTemperature           = 0.1

	// toolResultCap: no tool result larger than this reaches history
	// unmodified (the tool server already routes oversized output to the
	// scratchpad; this is the loop-side backstop).
	toolResultCap = 50 * 1024
)

func (c RunConfig) withDefaults() RunConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = defaultMaxIterations
	}
	if c.WallClock <= 0 {
		c.WallClock = defaultWallClock
	}
	if c.Temperature <= 0 {
		c.Temperature = defaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}

// SendMessage runs one user message through the agentic loop, streaming
// events until a Finish or Error event closes the channel. Concurrent
// sends to the same session are rejected.
func (r *Runtime) SendMessage(ctx context.Context, sessionKey, text string, atts []Attachment, cfg RunConfig) (<-chan protocol.Event, error) {
	if !r.engine.Loaded() {
		return nil, fmt.Errorf("no model loaded")
	}
	s := r.Session(sessionKey)
	if !s.tryAcquire() {
		return nil, fmt.Errorf("session %s already has a run in progress", sessionKey)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)

	events := make(chan protocol.Event, 64)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				path := crashlog.Write(p)
				slog.Error("fatal: panic in agent loop", "crash_log", path)
				panic(p)
			}
		}()
		defer close(events)
		defer s.release()
		defer cancel()
		r.run(runCtx, s, text, atts, cfg.withDefaults(), events)
	}()
	return events, nil
}

// emit pushes an event to the run's stream. Token ordering is strict, so
// sends block when the buffer fills — the caller owns draining the
// channel until it closes.
func emit(events chan<- protocol.Event, sessionKey, kind string, payload interface{}) {
	events <- protocol.Event{Kind: kind, SessionID: sessionKey, Payload: payload}
}

// runState carries the per-run mutable state threaded through the
// iteration helpers.
type runState struct {
	history     []protocol.Message
	finalText   string
	status      string
	iterations  int
	noToolIters int // consecutive iterations that produced no tool calls
	totalUsage  protocol.Usage

	// gatheredLastIter feeds the fabricated-write check: a write is
	// trusted when real data arrived this or last iteration.
	gatheredLastIter bool
}

func (r *Runtime) run(ctx context.Context, s *Session, text string, atts []Attachment, cfg RunConfig, events chan<- protocol.Event) {
	runID := uuid.NewString()[:8]
	task := Classify(text)
	deadline := time.Now().Add(cfg.WallClock)

	ctx, span := tracing.StartRun(ctx, s.Key, runID, string(task), len(text))

	s.breaker.Reset()
	s.stuck.reset()
	s.stuckNudges = 0
	s.todos.OnUpdate(func(todos []tools.Todo) {
		emit(events, s.Key, protocol.EventTodoUpdate, todos)
	})

	imagePaths, fileRefs := splitAttachments(atts)

	st := &runState{
		history: r.stores.Sessions.GetHistory(s.Key),
		status:  protocol.FinishCompleted,
	}

	userMsg := protocol.Message{Role: protocol.RoleUser, Content: text}
	if imgs := loadImages(imagePaths); len(imgs) > 0 {
		userMsg.Images = imgs
	}
	st.history = append(st.history, userMsg)

	var runErr error
	for it := 1; it <= cfg.MaxIterations; it++ {
		st.iterations = it
		emit(events, s.Key, protocol.EventIterationProgress, protocol.IterationProgressPayload{N: it, Max: cfg.MaxIterations})

		if ctx.Err() != nil {
			r.finishCancelled(s, st, events)
			tracing.EndSpan(span, nil)
			return
		}
		if time.Now().After(deadline) {
			st.status = protocol.FinishWallClock
			st.finalText = r.stuckSummary(s, st, "the time budget ran out")
			break
		}

		done, err := r.iterate(ctx, s, st, task, it, cfg, fileRefs, events)
		if err != nil {
			runErr = err
			break
		}
		if done {
			break
		}
		if it == cfg.MaxIterations {
			st.status = protocol.FinishIterationCap
			st.finalText = r.stuckSummary(s, st, "the iteration budget ran out")
		}
	}

	if runErr != nil {
		if ctx.Err() != nil {
			r.finishCancelled(s, st, events)
			tracing.EndSpan(span, nil)
			return
		}
		emit(events, s.Key, protocol.EventError, protocol.ErrorPayload{Kind: "model_error", Message: runErr.Error()})
		r.persist(s, st)
		tracing.EndSpan(span, runErr)
		return
	}

	r.persist(s, st)
	emit(events, s.Key, protocol.EventPhaseChange, protocol.PhaseChangePayload{Phase: protocol.PhaseDone, Status: st.status})
	emit(events, s.Key, protocol.EventFinish, protocol.FinishPayload{
		FullResponse: st.finalText,
		Status:       st.status,
		Iterations:   st.iterations,
	})
	tracing.RecordUsage(span, st.totalUsage.PromptTokens, st.totalUsage.CompletionTokens)
	tracing.EndSpan(span, nil)
}

// iterate runs one agentic iteration. Returns done=true when the run
// produced its final response (st.finalText/st.status are set).
func (r *Runtime) iterate(ctx context.Context, s *Session, st *runState, task TaskType, it int, cfg RunConfig, fileRefs []string, events chan<- protocol.Event) (bool, error) {
	tx := s.openTransaction(len(st.history))

	// Invariant: the temperature at iteration start is always the
	// caller's value — a previous iteration's ROLLBACK reduction must
	// not leak forward.
	temperature := cfg.Temperature

	messages := r.assemble(s, st, task, fileRefs)
	messages = r.applyBudget(s, st, task, fileRefs, messages, events)

	var resp *protocol.ChatResponse
	var calls []protocol.ToolCall

	for {
		emit(events, s.Key, protocol.EventPhaseChange, protocol.PhaseChangePayload{Phase: protocol.PhaseGenerating, Status: "running"})

		var err error
		resp, err = r.generate(ctx, s, messages, task, it, temperature, cfg.MaxTokens, events)
		if err != nil {
			if ctx.Err() != nil && resp != nil {
				// Keep the partial so the cancel path can commit it; the
				// user turn is never orphaned.
				partial := sanitize.SanitizeAssistantContent(resp.Content)
				st.history = append(st.history, protocol.Message{Role: protocol.RoleAssistant, Content: partial})
				st.finalText = partial
			}
			return false, err
		}

		emit(events, s.Key, protocol.EventPhaseChange, protocol.PhaseChangePayload{Phase: protocol.PhaseEvaluating, Status: "running"})

		// Chat-type gate: a chat turn whose entire response is a
		// fabricated function-call array produces no output at all — no
		// display, no tools, run over.
		if parser.ChatGate(task == TaskChat, resp.Content, r.isValidTool()) {
			st.finalText = ""
			st.status = protocol.FinishCompleted
			return true, nil
		}

		calls = resp.ToolCalls
		if len(calls) == 0 && task != TaskChat {
			calls = parser.Parse(resp.Content, r.isValidTool())
			for i := range calls {
				calls[i].Origin = protocol.OriginTextParsed
				if calls[i].ID == "" {
					calls[i].ID = uuid.NewString()
				}
			}
		}

		verdict := evaluator.Evaluate(evaluator.Input{
			Text:         resp.Content,
			Iteration:    it,
			HitTokenCap:  resp.FinishReason == "length",
			HasToolCalls: len(calls) > 0,
		})

		switch verdict {
		case evaluator.Skip:
			// Retry silently without appending. Every SKIP counts; at
			// maxEmptyRetries grammar is disabled for the session (if it
			// wasn't already) and one more raw retry runs before the run
			// finalizes empty.
			tx.consecutiveEmptyGrammarRetries++
			if !tx.grammarDisabled && tx.consecutiveEmptyGrammarRetries >= maxEmptyRetries {
				s.grammarDisabled = true
				tx.grammarDisabled = true
				continue
			}
			if tx.consecutiveEmptyGrammarRetries > maxEmptyRetries {
				st.finalText = ""
				st.status = protocol.FinishCompleted
				return true, nil
			}
			continue

		case evaluator.Rollback:
			if tx.rollbackRetries < maxRollbackRetries {
				tx.rollbackRetries++
				st.history = st.history[:tx.historyLen]
				if !tx.lastEvalValid {
					s.ctxmgr.Invalidate()
				}
				temperature -= rollbackTempStep
				if temperature < minTemperature {
					temperature = minTemperature
				}
				slog.Debug("rollback retry", "iteration", it, "retry", tx.rollbackRetries, "temperature", temperature)
				continue
			}
			// Retries exhausted: commit the last response anyway.
		}
		break
	}

	// COMMIT: counters die with the transaction; temperature reverts to
	// cfg.Temperature at the next iteration start.
	assistantMsg := protocol.Message{Role: protocol.RoleAssistant, Content: resp.Content, ToolCalls: calls}
	st.history = append(st.history, assistantMsg)
	s.ctxmgr.MarkEvalValid()

	if resp.Usage != nil {
		st.totalUsage.PromptTokens += resp.Usage.PromptTokens
		st.totalUsage.CompletionTokens += resp.Usage.CompletionTokens
		st.totalUsage.TotalTokens += resp.Usage.TotalTokens
		r.stores.Sessions.SetLastPromptTokens(s.Key, resp.Usage.PromptTokens, len(messages))
	}

	if len(calls) == 0 {
		st.noToolIters++
		if nudge := r.noToolNudge(s, st, task, resp.Content); nudge != "" && st.noToolIters < 2 && it < cfg.MaxIterations {
			st.history = append(st.history, protocol.Message{Role: protocol.RoleUser, Content: nudge})
			return false, nil
		}
		st.finalText = resp.Content
		st.status = protocol.FinishCompleted
		return true, nil
	}
	st.noToolIters = 0

	if nudge := fabricatedWriteNudge(calls, st.gatheredLastIter || batchGathers(calls)); nudge != "" {
		st.history = append(st.history, protocol.Message{Role: protocol.RoleUser, Content: nudge})
		return false, nil
	}

	emit(events, s.Key, protocol.EventPhaseChange, protocol.PhaseChangePayload{Phase: protocol.PhaseToolExec, Status: "running"})
	stop := r.executeBatch(ctx, s, st, it, calls, events)
	if stop {
		st.status = protocol.FinishStuck
		st.finalText = r.stuckSummary(s, st, "the last approaches kept repeating without progress")
		return true, nil
	}
	return false, nil
}

// noToolNudge runs the post-commit anti-hallucination guards for a
// response that performed no tool calls.
func (r *Runtime) noToolNudge(s *Session, st *runState, task TaskType, text string) string {
	if n := fabricatedClaimNudge(text, s.execState); n != "" {
		return n
	}
	if n := describedNotExecutedNudge(text, task, false); n != "" {
		return n
	}
	if n := vagueCommentNudge(text, s.execState); n != "" {
		return n
	}
	return ""
}

// assemble builds the prompt messages for this iteration in the fixed
// priority order: preamble, tool defs, memory, index hits, file context,
// error header, then the conversation.
func (r *Runtime) assemble(s *Session, st *runState, task TaskType, fileRefs []string) []protocol.Message {
	errCtx := s.errorContext
	s.errorContext = ""

	goal := firstUserText(st.history)
	return s.ctxmgr.Assemble(contextmgr.AssembleInput{
		SystemPreamble: r.buildPreamble(s, task),
		Tools:          r.filteredTools(s, task),
		Memory:         r.renderMemory(),
		RAGHits:        r.ragHits(goal),
		FileContext:    fileContext(r.cfg.ProjectRoot(), fileRefs),
		ErrorContext:   errCtx,
		History:        st.history,
	})
}

// applyBudget checks occupancy against the effective context window and
// compacts or rotates before generation.
func (r *Runtime) applyBudget(s *Session, st *runState, task TaskType, fileRefs []string, messages []protocol.Message, events chan<- protocol.Event) []protocol.Message {
	est := r.estimatePromptTokens(s.Key, messages)
	switch contextmgr.CheckStatus(est, r.engine.EffectiveCtx()) {
	case contextmgr.StatusCompact:
		st.history = contextmgr.Compact(st.history)
	case contextmgr.StatusRotate:
		emit(events, s.Key, protocol.EventPhaseChange, protocol.PhaseChangePayload{Phase: protocol.PhaseSummarizing, Status: "running"})
		st.history = s.ctxmgr.Rotate(st.history, s.findings)
		r.stores.Sessions.IncrementRotation(s.Key)
	default:
		return messages
	}
	return r.assemble(s, st, task, fileRefs)
}

// estimatePromptTokens prefers the backend-calibrated figure from the
// last generation, scaled by message-count drift, over the raw char
// heuristic.
func (r *Runtime) estimatePromptTokens(key string, messages []protocol.Message) int {
	lastTokens, lastCount := r.stores.Sessions.GetLastPromptTokens(key)
	if lastTokens > 0 && lastCount > 0 && len(messages) >= lastCount {
		extra := 0
		for _, m := range messages[lastCount:] {
			extra += contextmgr.EstimateTokens(m.Content)
		}
		return lastTokens + extra
	}
	total := 0
	for _, m := range messages {
		total += contextmgr.EstimateTokens(m.Content)
	}
	return total
}

// generate streams one LLM response, relaying tokens as events. The
// grammar watchdog disables grammar for the session when the first token
// doesn't arrive in time.
func (r *Runtime) generate(ctx context.Context, s *Session, messages []protocol.Message, task TaskType, it int, temperature float64, maxTokens int, events chan<- protocol.Event) (*protocol.ChatResponse, error) {
	genCtx, genSpan := tracing.StartGeneration(ctx, it, r.engine.ModelPath(), len(messages))

	params := map[string]interface{}{
		protocol.OptTemperature: temperature,
		protocol.OptMaxTokens:   maxTokens,
	}
	grammarActive := r.engine.Profile().GrammarPreferred && !s.grammarDisabled && task != TaskChat
	if grammarActive {
		params[protocol.OptGrammar] = "tool_call"
	}

	tokCh, err := r.engine.Stream(genCtx, messages, r.filteredTools(s, task), params)
	if err != nil {
		tracing.EndSpan(genSpan, err)
		return nil, err
	}

	var resp *protocol.ChatResponse
	firstToken := false
	var watchdog <-chan time.Time
	if grammarActive {
		watchdog = time.After(grammarFirstTokenTimeout)
	}

consume:
	for {
		select {
		case tok, ok := <-tokCh:
			if !ok {
				break consume
			}
			firstToken = true
			watchdog = nil
			if tok.Thinking != "" {
				emit(events, s.Key, protocol.EventThinkingToken, tok.Thinking)
			}
			if tok.Content != "" {
				emit(events, s.Key, protocol.EventToken, tok.Content)
			}
			if tok.Done {
				resp = tok.Response
			}
		case <-watchdog:
			if !firstToken {
				// Grammar stall: kill this call, disable grammar for the
				// session (sticky — COMMIT never re-enables it), retry raw.
				r.engine.Cancel()
				s.grammarDisabled = true
				for range tokCh {
				}
				tracing.EndSpan(genSpan, fmt.Errorf("grammar first-token timeout"))
				return r.generate(ctx, s, messages, task, it, temperature, maxTokens, events)
			}
			watchdog = nil
		case <-ctx.Done():
			r.engine.Cancel()
			// Drain so the engine goroutine can exit; keep the partial.
			var partial strings.Builder
			if resp != nil {
				partial.WriteString(resp.Content)
			}
			for tok := range tokCh {
				partial.WriteString(tok.Content)
				if tok.Done && tok.Response != nil {
					resp = tok.Response
				}
			}
			if resp == nil {
				resp = &protocol.ChatResponse{Content: partial.String(), FinishReason: "cancelled"}
			}
			tracing.EndSpan(genSpan, ctx.Err())
			return resp, ctx.Err()
		}
	}

	if resp == nil {
		err := fmt.Errorf("generation failed: stream ended without a response")
		tracing.EndSpan(genSpan, err)
		return nil, err
	}
	if resp.FinishReason == "error" {
		err := fmt.Errorf("generation failed: backend error")
		tracing.EndSpan(genSpan, err)
		return nil, err
	}
	if resp.Usage != nil {
		tracing.RecordUsage(genSpan, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	tracing.EndSpan(genSpan, nil)
	return resp, nil
}

// executeBatch runs one iteration's tool calls: browser-capped, breaker-
// guarded, deferred-write aware, in text order (parallel only when the
// batch has no per-iteration-counter tools). Returns stop=true when the
// stuck detector forces termination.
func (r *Runtime) executeBatch(ctx context.Context, s *Session, st *runState, it int, calls []protocol.ToolCall, events chan<- protocol.Event) (stop bool) {
	// Defer writes co-batched with data gathering: the write re-runs next
	// iteration, after the data has actually landed in history.
	var runnable []protocol.ToolCall
	var deferred []protocol.ToolCall
	if batchGathers(calls) {
		for _, c := range calls {
			if isWriteTool(c.Name) {
				deferred = append(deferred, c)
			} else {
				runnable = append(runnable, c)
			}
		}
	} else {
		runnable = calls
	}

	browserUsed := 0
	todoUsed := 0
	scope := &tools.IterationScope{Iteration: it, BrowserActionsUsed: &browserUsed, TodoMutationsUsed: &todoUsed}
	execCtx := tools.WithToolWorkspace(ctx, r.cfg.ProjectRoot())
	execCtx = tools.WithIterationScope(execCtx, scope)
	if r.approval != nil {
		execCtx = tools.WithApprovalHook(execCtx, r.approval)
	}

	results := make([]protocol.ToolResult, len(runnable))

	if len(runnable) > 1 && batchParallelizable(runnable) {
		var wg sync.WaitGroup
		type indexed struct {
			idx int
			res protocol.ToolResult
		}
		ch := make(chan indexed, len(runnable))
		for i, c := range runnable {
			wg.Add(1)
			go func(idx int, call protocol.ToolCall) {
				defer wg.Done()
				ch <- indexed{idx: idx, res: r.executeCall(execCtx, s, call, events)}
			}(i, c)
		}
		wg.Wait()
		close(ch)
		collected := make([]indexed, 0, len(runnable))
		for x := range ch {
			collected = append(collected, x)
		}
		// Re-sort to original text order so history is deterministic.
		sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })
		for i, x := range collected {
			results[i] = x.res
		}
	} else {
		browserBudgetExhausted := false
		for i, c := range runnable {
			if isBrowserTool(c.Name) {
				if browserUsed >= maxBrowserActionsPerIter {
					browserBudgetExhausted = true
				}
				if browserBudgetExhausted {
					results[i] = protocol.ToolResult{
						ID: c.ID, Tool: c.Name, Success: false,
						Error: fmt.Sprintf("browser action limit (%d per turn) reached; continue in the next step", maxBrowserActionsPerIter),
					}
					continue
				}
			}
			results[i] = r.executeCall(execCtx, s, c, events)
		}
	}

	gathered := false
	for i, c := range runnable {
		if results[i].Success {
			s.execState.RecordTool(c, true)
			unlockRelated(s.policy, c.Name, true)
			if isDataGatheringTool(c.Name) {
				gathered = true
				s.addFinding(findingFrom(c, results[i]))
			}
		}
		s.stuck.record(c.Name, tools.ParamsDigest(c.Arguments))
	}
	st.gatheredLastIter = gathered

	for _, c := range deferred {
		results = append(results, protocol.ToolResult{
			ID: c.ID, Tool: c.Name, Success: false,
			Error: "write deferred: gather results arrive first; issue the write again next step",
		})
	}

	st.history = append(st.history, toolResultMessages(results)...)

	if stuck, reason := s.stuck.detect(); stuck {
		s.stuckNudges++
		if s.stuckNudges >= 2 {
			return true
		}
		slog.Warn("stuck detected", "session", s.Key, "reason", reason)
		st.history = append(st.history, protocol.Message{
			Role:    protocol.RoleUser,
			Content: "The last approach isn't working — the same calls keep repeating. Step back, explain what you've learned so far, and try a different tool or different parameters.",
		})
	}
	return false
}

// executeCall dispatches one tool call through the breaker, with a span
// and events around it.
func (r *Runtime) executeCall(ctx context.Context, s *Session, call protocol.ToolCall, events chan<- protocol.Event) protocol.ToolResult {
	emit(events, s.Key, protocol.EventToolExecuting, protocol.ToolExecutingPayload{Name: call.Name, Params: call.Arguments})

	digest := tools.ParamsDigest(call.Arguments)
	if !s.breaker.Allow(call.Name, digest) {
		res := protocol.ToolResult{
			ID: call.ID, Tool: call.Name, Success: false,
			Error: "skipped: this exact call has failed repeatedly; change the parameters or use another tool",
		}
		emit(events, s.Key, protocol.EventToolResult, protocol.ToolResultPayload{Name: call.Name, Success: false, Preview: res.Error})
		return res
	}

	argsJSON, _ := json.Marshal(call.Arguments)
	_, toolSpan := tracing.StartTool(ctx, call.Name, call.ID, len(argsJSON))

	result := r.registry.Dispatch(ctx, call)
	s.breaker.Record(call.Name, digest, result.IsError)

	pr := result.ToProtocolResult(call.ID, call.Name)
	if len(pr.Output) > toolResultCap {
		pr.Output = pr.Output[:toolResultCap] + "\n…[output truncated at 50 KB]"
	}

	var spanErr error
	if result.IsError {
		spanErr = fmt.Errorf("%s", firstLine(result.ForLLM))
	}
	tracing.EndSpan(toolSpan, spanErr)

	emit(events, s.Key, protocol.EventToolResult, protocol.ToolResultPayload{
		Name:    call.Name,
		Success: !result.IsError,
		Preview: truncateStr(pr.Output, 200),
	})
	return pr
}

// toolResultMessages renders the batch's envelopes as the tool turns that
// deliver results back to the model: one RoleTool message per result,
// correlated to its call by ToolCallID. The context manager's compaction
// and the summarizer's outcome digests both key on RoleTool.
func toolResultMessages(results []protocol.ToolResult) []protocol.Message {
	out := make([]protocol.Message, 0, len(results))
	for _, res := range results {
		raw, err := json.Marshal(res)
		if err != nil {
			raw = []byte(`{"tool":"` + res.Tool + `","success":false,"output":"","error":"unencodable result"}`)
		}
		out = append(out, protocol.Message{
			Role:       protocol.RoleTool,
			Content:    string(raw),
			ToolCallID: res.ID,
		})
	}
	return out
}

// stuckSummary produces the forced-termination response: a ledger of
// where things stand instead of a bare apology.
func (r *Runtime) stuckSummary(s *Session, st *runState, why string) string {
	ledger := summarizer.Build(st.history, s.findings)
	return "I couldn't finish — " + why + ". Here's where things stand:\n\n" + ledger.Render()
}

// finishCancelled handles the cancel path: the partial (or placeholder)
// model turn is committed so the user message is never orphaned, and the
// stream ends with Finish{cancelled}.
func (r *Runtime) finishCancelled(s *Session, st *runState, events chan<- protocol.Event) {
	last := len(st.history) - 1
	if last < 0 || st.history[last].Role != protocol.RoleAssistant {
		content := st.finalText
		if content == "" {
			content = "[Generation cancelled]"
		}
		st.history = append(st.history, protocol.Message{Role: protocol.RoleAssistant, Content: content})
	}
	st.status = protocol.FinishCancelled
	r.persist(s, st)
	emit(events, s.Key, protocol.EventFinish, protocol.FinishPayload{
		FullResponse: st.finalText,
		Status:       protocol.FinishCancelled,
		Iterations:   st.iterations,
	})
}

// persist flushes the run's history and bookkeeping to the session store.
func (r *Runtime) persist(s *Session, st *runState) {
	r.stores.Sessions.SetHistory(s.Key, st.history)
	r.stores.Sessions.UpdateMetadata(s.Key, r.engine.ModelPath(), "local", r.cfg.ProjectRoot())
	r.stores.Sessions.AccumulateTokens(s.Key, int64(st.totalUsage.PromptTokens), int64(st.totalUsage.CompletionTokens))
	if cw := r.engine.EffectiveCtx(); cw > 0 {
		r.stores.Sessions.SetContextWindow(s.Key, cw)
	}
	if err := r.stores.Sessions.Save(s.Key); err != nil {
		slog.Warn("failed to persist session", "session", s.Key, "error", err)
	}
}

func (r *Runtime) isValidTool() parser.ValidName {
	return func(name string) bool {
		_, ok := r.registry.Get(name)
		return ok
	}
}

// batchGathers reports whether any call in the batch pulls real data in.
func batchGathers(calls []protocol.ToolCall) bool {
	for _, c := range calls {
		if isDataGatheringTool(c.Name) {
			return true
		}
	}
	return false
}

// batchParallelizable: calls that consume per-iteration budgets (browser,
// todo) share counters and must run sequentially in text order.
func batchParallelizable(calls []protocol.ToolCall) bool {
	for _, c := range calls {
		if isBrowserTool(c.Name) || c.Name == "update_todo" {
			return false
		}
	}
	return true
}

// findingFrom extracts a one-line key finding from a gather result for
// the rotation ledger.
func findingFrom(call protocol.ToolCall, res protocol.ToolResult) string {
	line := firstLine(res.Output)
	if line == "" {
		return ""
	}
	return call.Name + ": " + truncateStr(line, 160)
}

func firstUserText(history []protocol.Message) string {
	for _, m := range history {
		if m.Role == protocol.RoleUser {
			return m.Content
		}
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
