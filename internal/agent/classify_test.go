package agent

import "testing"

func TestClassifyChat(t *testing.T) {
	for _, msg := range []string{
		"Hi",
		"hey there",
		"thanks!",
		"good morning",
		"how are you doing today",
		"ok",
	} {
		if got := Classify(msg); got != TaskChat {
			t.Errorf("Classify(%q) = %s, want chat", msg, got)
		}
	}
}

func TestClassifyNotChatWithActionWords(t *testing.T) {
	// Short messages with action or domain content are never chat.
	for _, msg := range []string{
		"fix the bug",
		"run tests",
		"open a.go",
	} {
		if got := Classify(msg); got == TaskChat {
			t.Errorf("Classify(%q) = chat, want an action type", msg)
		}
	}
}

func TestClassifyBrowser(t *testing.T) {
	for _, msg := range []string{
		"Navigate to https://example.com and take a screenshot",
		"search the web for the top 3 pizza places in Dallas",
		"visit the project homepage and summarize it",
	} {
		if got := Classify(msg); got != TaskBrowser {
			t.Errorf("Classify(%q) = %s, want browser", msg, got)
		}
	}
}

func TestClassifyCode(t *testing.T) {
	for _, msg := range []string{
		"Refactor the parser function in parser.go",
		"Why does this code not compile?",
		"Run the test suite in the terminal",
	} {
		if got := Classify(msg); got != TaskCode {
			t.Errorf("Classify(%q) = %s, want coding", msg, got)
		}
	}
}

func TestClassifyGeneral(t *testing.T) {
	msg := "What's a good way to structure a weekly meal plan for two people?"
	if got := Classify(msg); got != TaskGeneral {
		t.Errorf("Classify(%q) = %s, want general", msg, got)
	}
}
