package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// breakerThreshold is how many consecutive identical failures trip the
// circuit for a (tool, params) pair.
const breakerThreshold = 5

// breakerProbeInterval paces the cooldown probes once a circuit is open:
// one retry is allowed through per interval instead of the circuit
// wedging shut until the next user turn resets it.
const breakerProbeInterval = 30 * time.Second

type breakerEntry struct {
	failures int
	limiter  *rate.Limiter // created when the circuit opens
}

// Breaker skips tool calls that keep failing the same way. Keyed by
// (tool name, params digest); a pair's count resets when that same pair
// succeeds. Calls with other params keep counts of their own and leave it
// unchanged. Reset clears everything at the next user turn.
type Breaker struct {
	mu      sync.Mutex
	entries map[string]*breakerEntry
}

func NewBreaker() *Breaker {
	return &Breaker{entries: make(map[string]*breakerEntry)}
}

// ParamsDigest produces the stable digest used to key breaker entries and
// the loop's stuck detector.
func ParamsDigest(args map[string]interface{}) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return "unmarshalable"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}

// Allow reports whether a call may proceed. Once the circuit is open,
// only rate-limited probe calls get through.
func (b *Breaker) Allow(tool, digest string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[tool+":"+digest]
	if !ok || e.failures < breakerThreshold {
		return true
	}
	return e.limiter.Allow()
}

// Record tracks the outcome of an executed call.
func (b *Breaker) Record(tool, digest string, isError bool) {
	key := tool + ":" + digest
	b.mu.Lock()
	defer b.mu.Unlock()

	if !isError {
		delete(b.entries, key)
		return
	}

	e, ok := b.entries[key]
	if !ok {
		e = &breakerEntry{}
		b.entries[key] = e
	}
	e.failures++
	if e.failures >= breakerThreshold && e.limiter == nil {
		e.limiter = rate.NewLimiter(rate.Every(breakerProbeInterval), 1)
		// Spend the initial token so the first post-trip call is skipped.
		e.limiter.Allow()
	}
}

// Tripped reports whether the circuit for this call is currently open.
func (b *Breaker) Tripped(tool, digest string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[tool+":"+digest]
	return ok && e.failures >= breakerThreshold
}

// Reset clears all circuits. Called at the start of each user turn.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.entries = make(map[string]*breakerEntry)
	b.mu.Unlock()
}
