// Package evaluator implements the pre-commit response classifier that runs
// before tool execution on every agentic-loop iteration: COMMIT,
// ROLLBACK, or SKIP a raw model response.
package evaluator

import (
	"regexp"
	"strings"
)

// Verdict is the evaluator's classification of a raw response.
type Verdict int

const (
	Commit Verdict = iota
	Rollback
	Skip
)

func (v Verdict) String() string {
	switch v {
	case Commit:
		return "COMMIT"
	case Rollback:
		return "ROLLBACK"
	case Skip:
		return "SKIP"
	default:
		return "UNKNOWN"
	}
}

// refusalThreshold is the single iteration boundary shared by the refusal
// check below and the loop's nudge logic — the two must agree, or refusals
// get committed in one place and reclassified in the other.
const refusalThreshold = 5

const actionHallucinationThreshold = 3
const rawCodeDumpThreshold = 2

// refusalPatterns covers the common phrasings a local model uses to decline
// a task instead of attempting it.
var refusalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bI cannot\b`),
	regexp.MustCompile(`(?i)\bI can't\b`),
	regexp.MustCompile(`(?i)\bI'm not able to\b`),
	regexp.MustCompile(`(?i)\bI am not able to\b`),
	regexp.MustCompile(`(?i)\bas an AI\b`),
	regexp.MustCompile(`(?i)\bas a language model\b`),
	regexp.MustCompile(`(?i)\bI don't have the ability\b`),
	regexp.MustCompile(`(?i)\bI do not have access\b`),
	regexp.MustCompile(`(?i)\bI don't have access\b`),
	regexp.MustCompile(`(?i)\bI'm unable to\b`),
	regexp.MustCompile(`(?i)\bI am unable to\b`),
	regexp.MustCompile(`(?i)\bI won't be able to\b`),
	regexp.MustCompile(`(?i)\bsorry,? (?:but )?I (?:cannot|can't)\b`),
	regexp.MustCompile(`(?i)\bI apologize,? but I\b`),
	regexp.MustCompile(`(?i)\bI must decline\b`),
	regexp.MustCompile(`(?i)\bI'm just an AI\b`),
	regexp.MustCompile(`(?i)\bI do not have the capability\b`),
	regexp.MustCompile(`(?i)\bnot within my capabilities\b`),
	regexp.MustCompile(`(?i)\bI lack the ability\b`),
	regexp.MustCompile(`(?i)\bI'm an AI (?:assistant|language model)\b`),
	regexp.MustCompile(`(?i)\bI have no way to\b`),
}

// actionClaimPatterns detect the model narrating an action it claims to
// have taken ("I visited X", "I wrote file Y") without a corresponding tool
// call in this iteration — the action-hallucination check needs the caller
// to supply whether any tool calls were actually parsed.
var actionClaimPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bI (?:have )?(?:already )?visited\b`),
	regexp.MustCompile(`(?i)\bI (?:have )?(?:already )?wrote (?:the )?file\b`),
	regexp.MustCompile(`(?i)\bI (?:have )?(?:already )?created (?:the )?file\b`),
	regexp.MustCompile(`(?i)\bI (?:have )?(?:already )?ran the command\b`),
	regexp.MustCompile(`(?i)\bI (?:have )?(?:already )?executed\b`),
	regexp.MustCompile(`(?i)\bI (?:have )?(?:already )?navigated to\b`),
	regexp.MustCompile(`(?i)\bI (?:have )?(?:already )?checked the file\b`),
}

var sentenceTerminatorRe = regexp.MustCompile(`[.!?:"'\x60)\]]\s*$`)

// fencedBlockRe counts the longest fenced code block relative to overall
// response length for the raw-code-dump heuristic.
var fencedBlockRe = regexp.MustCompile("(?s)```.*?```")

// Input bundles what the evaluator needs to classify one response.
type Input struct {
	Text string
	// Iteration is the 1-based iteration number within the current run.
	Iteration int
	// HitTokenCap is true when the backend reports finish_reason == "length".
	HitTokenCap bool
	// HasToolCalls is true when the parser found at least one tool call in
	// this same response (used by the action-hallucination check — a
	// response that both claims and performs the action is not flagged).
	HasToolCalls bool
}

// Evaluate classifies a raw model response.
func Evaluate(in Input) Verdict {
	stripped := stripThinkContent(in.Text)
	trimmed := strings.TrimSpace(stripped)

	if trimmed == "" {
		// Backend-native tool calls often carry no prose at all; that's a
		// valid response, not an empty one.
		if in.HasToolCalls {
			return Commit
		}
		return Skip
	}

	if isRefusal(in.Text) && in.Iteration <= refusalThreshold {
		return Rollback
	}

	if !in.HasToolCalls && in.Iteration <= actionHallucinationThreshold && hasActionClaim(in.Text) {
		return Rollback
	}

	// A response that parsed into tool calls is allowed to be a single
	// fenced block — that's the tool-call syntax, not a code dump.
	if !in.HasToolCalls && in.Iteration <= rawCodeDumpThreshold && isRawCodeDump(trimmed) {
		return Rollback
	}

	if !in.HasToolCalls && isTruncated(trimmed, in.HitTokenCap) {
		return Rollback
	}

	return Commit
}

var thinkTagRe = regexp.MustCompile(`(?is)<think(?:ing)?>.*?</think(?:ing)?>`)

func stripThinkContent(text string) string {
	return thinkTagRe.ReplaceAllString(text, "")
}

func isRefusal(text string) bool {
	for _, re := range refusalPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func hasActionClaim(text string) bool {
	for _, re := range actionClaimPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// isRawCodeDump flags a response that is >80% a single fenced code block
// with no surrounding natural-language framing.
func isRawCodeDump(trimmed string) bool {
	blocks := fencedBlockRe.FindAllString(trimmed, -1)
	if len(blocks) == 0 {
		return false
	}
	longest := 0
	for _, b := range blocks {
		if len(b) > longest {
			longest = len(b)
		}
	}
	return float64(longest)/float64(len(trimmed)) > 0.8
}

// isTruncated flags a response that ends mid-sentence while the model
// reports it hit its token cap.
func isTruncated(trimmed string, hitTokenCap bool) bool {
	if !hitTokenCap {
		return false
	}
	return !sentenceTerminatorRe.MatchString(trimmed)
}
