package chunking

import (
	"strings"
	"testing"
)

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	s := NewSplitter(14, 0)
	chunks := s.Split("첫 번째 문장입니다. 두 번째 문장은 조금 더 깁니다.")
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %v", chunks)
	}
	if !strings.HasSuffix(chunks[0], ".") {
		t.Fatalf("expected first chunk to end at a sentence, got %q", chunks[0])
	}
}

func TestSplitCoversWholeTextWithOverlap(t *testing.T) {
	text := strings.Repeat("가나다라마바사아자차", 10)
	s := NewSplitter(30, 5)
	chunks := s.Split(text)

	if !strings.HasPrefix(text, chunks[0]) {
		t.Fatalf("first chunk should start the text")
	}
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(text, last) {
		t.Fatalf("last chunk should end the text, got %q", last)
	}
	for _, c := range chunks {
		if n := len([]rune(c)); n > 30 {
			t.Fatalf("chunk exceeds size: %d", n)
		}
	}
}

func TestSplitIsDeterministicAndHandlesEmpty(t *testing.T) {
	s := NewSplitter(0, 100)
	if s.ChunkSize != 800 || s.Overlap != 200 {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if s.Split("") != nil {
		t.Fatalf("expected nil for empty text")
	}
	text := strings.Repeat("Invoice due. ", 200)
	a, b := s.Split(text), s.Split(text)
	if len(a) != len(b) || a[0] != b[0] {
		t.Fatalf("expected identical output")
	}
}
