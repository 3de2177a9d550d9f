package agent

import (
	"regexp"
	"strings"
)

// TaskType routes a user message to a tool profile and gates the parser's
// chat-mode fabrication check.
type TaskType string

const (
	TaskChat    TaskType = "chat"
	TaskBrowser TaskType = "browser"
	TaskCode    TaskType = "coding"
	TaskGeneral TaskType = "general"
)

// chatShortLen: anything shorter than this with no action content is
// small talk.
const chatShortLen = 15

var socialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(hi|hey|hello|yo|sup|howdy)\b`),
	regexp.MustCompile(`(?i)^good (morning|afternoon|evening|night)\b`),
	regexp.MustCompile(`(?i)^(thanks|thank you|thx|ty)\b`),
	regexp.MustCompile(`(?i)^how are you\b`),
	regexp.MustCompile(`(?i)^(bye|goodbye|see you|later)\b`),
	regexp.MustCompile(`(?i)^(ok|okay|cool|nice|great|lol|haha)\W*$`),
}

var actionWords = []string{
	"create", "write", "read", "open", "edit", "delete", "run", "execute",
	"build", "fix", "search", "find", "list", "show", "make", "install",
	"download", "save", "update", "refactor", "test", "check", "look up",
}

var browserWords = []string{
	"browse", "browser", "website", "webpage", "navigate", "click",
	"url", "http://", "https://", "visit", "screenshot", "google",
	"search the web", "look online",
}

var codeWords = []string{
	"code", "function", "file", "bug", "compile", "class", "variable",
	"script", "program", "repo", "directory", "folder", "terminal",
	"command", "git", "commit", "test", ".go", ".py", ".js", ".ts",
	"refactor", "implement",
}

// Classify labels a user message. A message is Chat only when it is short
// or matches a social pattern, AND contains no action words, AND no
// browser/code keywords — the same single classifier the evaluator's
// thresholds are aligned with.
func Classify(message string) TaskType {
	lower := strings.ToLower(strings.TrimSpace(message))

	hasAction := containsAny(lower, actionWords)
	hasBrowser := containsAny(lower, browserWords)
	hasCode := containsAny(lower, codeWords)

	if !hasAction && !hasBrowser && !hasCode {
		if len(lower) < chatShortLen {
			return TaskChat
		}
		for _, p := range socialPatterns {
			if p.MatchString(lower) {
				return TaskChat
			}
		}
	}

	if hasBrowser {
		return TaskBrowser
	}
	if hasCode {
		return TaskCode
	}
	return TaskGeneral
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
