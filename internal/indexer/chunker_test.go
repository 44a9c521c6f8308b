package indexer

import (
	"reflect"
	"strings"
	"testing"
)

func TestChunker_EmptyInput(t *testing.T) {
	chunker := NewChunker(400, 50)

	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "whitespace only", content: "   \n\t  \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if chunks := chunker.Split(tt.content); chunks != nil {
				t.Errorf("expected no chunks, got %d", len(chunks))
			}
		})
	}
}

func TestChunker_ShortContentSingleChunk(t *testing.T) {
	chunker := NewChunker(400, 50)

	chunks := chunker.Split("A short note about tea brewing temperatures.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "A short note about tea brewing temperatures." {
		t.Errorf("unexpected chunk content: %q", chunks[0])
	}
}

func TestChunker_Deterministic(t *testing.T) {
	chunker := NewChunker(50, 10)
	content := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)

	first := chunker.Split(content)
	second := chunker.Split(content)
	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical chunks across repeated calls")
	}
	if len(first) < 2 {
		t.Fatalf("expected content to split into multiple chunks, got %d", len(first))
	}
}

func TestChunker_RespectsTokenBudget(t *testing.T) {
	maxTokens := 50
	chunker := NewChunker(maxTokens, 10)
	content := strings.Repeat("Sentence number one goes here. ", 60)

	chunks := chunker.Split(content)
	for i, chunk := range chunks {
		if runes := len([]rune(chunk)); runes > maxTokens*runesPerToken {
			t.Errorf("chunk %d has %d runes, budget is %d", i, runes, maxTokens*runesPerToken)
		}
	}
}

func TestChunker_OverlapSharesContext(t *testing.T) {
	chunker := NewChunker(50, 20)
	content := strings.Repeat("alpha bravo charlie delta echo foxtrot golf hotel. ", 30)

	chunks := chunker.Split(content)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// The tail of each chunk reappears at the head of the next.
	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i][len(chunks[i])-20:]
		if !strings.Contains(chunks[i+1], strings.TrimSpace(tail)) {
			t.Errorf("chunk %d does not carry over context from chunk %d", i+1, i)
		}
	}
}

func TestChunker_StripsMarkdown(t *testing.T) {
	chunker := NewChunker(400, 50)
	content := "# Heading\n\nSome **bold** text with a [link](https://example.com).\n\n- item one\n- item two\n"

	chunks := chunker.Split(content)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	chunk := chunks[0]
	for _, marker := range []string{"**", "](", "# "} {
		if strings.Contains(chunk, marker) {
			t.Errorf("expected markdown marker %q stripped, got %q", marker, chunk)
		}
	}
	for _, want := range []string{"Heading", "bold", "link", "item one", "item two"} {
		if !strings.Contains(chunk, want) {
			t.Errorf("expected text %q preserved, got %q", want, chunk)
		}
	}
}

func TestChunker_KeepsCodeBlockContent(t *testing.T) {
	chunker := NewChunker(400, 50)
	content := "Before code.\n\n```\nSELECT * FROM notes;\n```\n\nAfter code.\n"

	chunks := chunker.Split(content)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0], "SELECT * FROM notes;") {
		t.Errorf("expected code content preserved, got %q", chunks[0])
	}
}
