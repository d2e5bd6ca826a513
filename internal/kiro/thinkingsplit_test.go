package kiro

import "testing"

func TestThinkingSplitterPlainTextPassesThrough(t *testing.T) {
	s := &ThinkingSplitter{}
	out := s.Feed("hello world")
	if out.Text != "hello world" || out.Thinking != "" {
		t.Fatalf("unexpected split: %+v", out)
	}
}

func TestThinkingSplitterSingleChunkThinkingBlock(t *testing.T) {
	s := &ThinkingSplitter{}
	out := s.Feed("before<thinking>pondering</thinking>after")
	if out.Text != "beforeafter" {
		t.Fatalf("expected surrounding text concatenated, got %q", out.Text)
	}
	if out.Thinking != "pondering" {
		t.Fatalf("expected thinking content isolated, got %q", out.Thinking)
	}
}

func TestThinkingSplitterTagSplitAcrossChunks(t *testing.T) {
	s := &ThinkingSplitter{}
	out1 := s.Feed("before<think")
	if out1.Text != "before" {
		t.Fatalf("expected safe prefix emitted, got %q", out1.Text)
	}
	out2 := s.Feed("ing>pondering</thinking>after")
	if out2.Thinking != "pondering" {
		t.Fatalf("expected thinking content recovered after split tag, got %q", out2.Thinking)
	}
	if out2.Text != "after" {
		t.Fatalf("expected trailing text recovered, got %q", out2.Text)
	}
}

func TestThinkingSplitterWithholdsPartialTagUntilFlush(t *testing.T) {
	s := &ThinkingSplitter{}
	out := s.Feed("hello<think")
	if out.Text != "hello" {
		t.Fatalf("expected only the safe prefix emitted, got %q", out.Text)
	}
	final := s.Flush()
	if final.Text != "<think" {
		t.Fatalf("expected Flush to release the withheld partial tag verbatim, got %q", final.Text)
	}
}

func TestThinkingSplitterMultipleBlocks(t *testing.T) {
	s := &ThinkingSplitter{}
	out := s.Feed("a<thinking>x</thinking>b<thinking>y</thinking>c")
	if out.Text != "abc" {
		t.Fatalf("expected ordinary text across both blocks concatenated, got %q", out.Text)
	}
	if out.Thinking != "xy" {
		t.Fatalf("expected both thinking spans concatenated, got %q", out.Thinking)
	}
}
