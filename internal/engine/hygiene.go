package engine

import "strings"

// thinkTagBuffer suppresses partial <think>/<thinking> open tags from
// reaching the caller until the stream resolves whether the content is
// actually inside a thinking block. It holds back only the trailing bytes that could
// still become a recognized tag; everything else is emitted immediately.
type thinkTagBuffer struct {
	pending string
	inThink bool
}

const (
	openThink   = "<think>"
	closeThink  = "</think>"
	openThinkA  = "<thinking>"
	closeThinkA = "</thinking>"
)

// Feed consumes one chunk of raw model output and returns the portion safe
// to show the user (visible) plus any newly-completed thinking content.
func (b *thinkTagBuffer) Feed(chunk string) (visible, thinking string) {
	b.pending += chunk

	for {
		if !b.inThink {
			openIdx, openLen := findEarliestOpen(b.pending)
			if openIdx < 0 {
				// No open tag found yet. Hold back a suffix that could be
				// the start of one so it isn't echoed to the user mid-tag.
				safeLen := len(b.pending) - longestTagPrefixSuffix(b.pending, openThink, openThinkA)
				visible += b.pending[:safeLen]
				b.pending = b.pending[safeLen:]
				return visible, thinking
			}
			visible += b.pending[:openIdx]
			b.pending = b.pending[openIdx+openLen:]
			b.inThink = true
			continue
		}

		closeIdx, closeLen, tag := findEarliestClose(b.pending)
		if closeIdx < 0 {
			thinking += b.pending
			b.pending = ""
			return visible, thinking
		}
		thinking += b.pending[:closeIdx]
		b.pending = b.pending[closeIdx+closeLen:]
		b.inThink = false
		_ = tag
	}
}

// Flush returns any buffered non-thinking content at stream end.
func (b *thinkTagBuffer) Flush() string {
	if b.inThink {
		// Unterminated thinking block: drop it rather than leaking
		// reasoning text into the final user-facing response.
		b.pending = ""
		return ""
	}
	out := b.pending
	b.pending = ""
	return out
}

func findEarliestOpen(s string) (idx, tagLen int) {
	best, bestLen := -1, 0
	for _, tag := range []string{openThink, openThinkA} {
		if i := strings.Index(s, tag); i >= 0 && (best < 0 || i < best) {
			best, bestLen = i, len(tag)
		}
	}
	return best, bestLen
}

func findEarliestClose(s string) (idx, tagLen int, tag string) {
	best, bestLen, bestTag := -1, 0, ""
	for _, t := range []string{closeThink, closeThinkA} {
		if i := strings.Index(s, t); i >= 0 && (best < 0 || i < best) {
			best, bestLen, bestTag = i, len(t), t
		}
	}
	return best, bestLen, bestTag
}

// longestTagPrefixSuffix returns the length of the longest suffix of s
// that is a proper prefix of any candidate tag, so a tag split across two
// stream chunks is never partially emitted.
func longestTagPrefixSuffix(s string, tags ...string) int {
	maxLen := 0
	for _, tag := range tags {
		limit := len(tag) - 1
		if limit > len(s) {
			limit = len(s)
		}
		for n := limit; n > 0; n-- {
			if strings.HasSuffix(s, tag[:n]) {
				if n > maxLen {
					maxLen = n
				}
				break
			}
		}
	}
	return maxLen
}
