package engine

import "testing"

func TestThinkTagBufferHidesCompleteBlock(t *testing.T) {
	var b thinkTagBuffer
	visible, thinking := b.Feed("before <think>secret reasoning</think> after")
	if visible != "before  after" {
		t.Fatalf("got visible %q", visible)
	}
	if thinking != "secret reasoning" {
		t.Fatalf("got thinking %q", thinking)
	}
}

func TestThinkTagBufferHoldsBackSplitOpenTag(t *testing.T) {
	var b thinkTagBuffer
	visible1, _ := b.Feed("hello <thi")
	if visible1 != "hello " {
		t.Fatalf("expected partial tag withheld, got %q", visible1)
	}
	visible2, thinking2 := b.Feed("nk>reasoning</think> world")
	if visible2 != " world" {
		t.Fatalf("got visible2 %q", visible2)
	}
	if thinking2 != "reasoning" {
		t.Fatalf("got thinking2 %q", thinking2)
	}
}

func TestThinkTagBufferFlushReturnsTrailingVisible(t *testing.T) {
	var b thinkTagBuffer
	// Feed emits untagged text at once and holds back only a possible
	// tag start, which Flush then returns.
	b.Feed("partial response ending in <thi")
	if got := b.Flush(); got != "<thi" {
		t.Fatalf("got %q", got)
	}
}

func TestThinkTagBufferFlushDropsUnterminatedThinking(t *testing.T) {
	var b thinkTagBuffer
	b.Feed("visible <think>never closes")
	if got := b.Flush(); got != "" {
		t.Fatalf("expected unterminated thinking dropped, got %q", got)
	}
}

func TestThinkTagBufferPassesPlainTextThrough(t *testing.T) {
	var b thinkTagBuffer
	visible, thinking := b.Feed("just a normal sentence.")
	if visible != "just a normal sentence." || thinking != "" {
		t.Fatalf("got visible=%q thinking=%q", visible, thinking)
	}
}
