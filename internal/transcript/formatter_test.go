package transcript

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResolver struct {
	names map[string]string
	calls int
}

func (r *fakeResolver) DisplayName(_ context.Context, _, userID string) (string, bool) {
	r.calls++
	name, ok := r.names[userID]
	return name, ok
}

func TestBuildBlockFormatsAndOrders(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolver := &fakeResolver{names: map[string]string{"1": "alice", "2": "bob"}}
	f := NewFormatter("g1", resolver)

	// Deliberately out of order; the block must come back chronological.
	block := f.BuildBlock(context.Background(), []Utterance{
		{SpeakerID: "2", Text: "second", Timestamp: base.Add(time.Second)},
		{SpeakerID: "1", Text: "first", Timestamp: base},
	})

	want := "AUTHOR: alice (id = 1)\nUTTERANCE: first\n---\n" +
		"AUTHOR: bob (id = 2)\nUTTERANCE: second\n---"
	if block != want {
		t.Fatalf("block mismatch:\ngot:\n%s\nwant:\n%s", block, want)
	}
}

func TestFormatterFallbackAndCaching(t *testing.T) {
	resolver := &fakeResolver{names: map[string]string{}}
	f := NewFormatter("g1", resolver)
	ctx := context.Background()

	utts := []Utterance{
		{SpeakerID: "42", Text: "one", Timestamp: time.Now()},
		{SpeakerID: "42", Text: "two", Timestamp: time.Now().Add(time.Second)},
	}
	block := f.BuildBlock(ctx, utts)
	if !strings.Contains(block, "AUTHOR: User 42 (id = 42)") {
		t.Fatalf("missing fallback name in block:\n%s", block)
	}
	if resolver.calls != 1 {
		t.Fatalf("resolver called %d times, want 1 (cached)", resolver.calls)
	}
}

func TestBuildLinesUsesMentionsAndTimestamps(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFormatter("g1", &fakeResolver{names: map[string]string{"7": "carol"}})

	lines := f.BuildLines(context.Background(), []Utterance{
		{SpeakerID: "7", Text: "hello", Timestamp: ts},
	})
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	want := fmt.Sprintf("<t:%d:t> <@7> (carol): hello", ts.Unix())
	if lines[0] != want {
		t.Fatalf("line = %q, want %q", lines[0], want)
	}
}

func TestChunkTextPrefersNewlines(t *testing.T) {
	payload := strings.Repeat("x", 50) + "\n" + strings.Repeat("y", 50)
	parts := ChunkText(payload, 60)
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if !strings.HasSuffix(parts[0], "\n") {
		t.Fatalf("first part should break at the newline, got %q", parts[0])
	}
	if rejoined := strings.Join(parts, ""); rejoined != payload {
		t.Fatal("chunks do not reassemble to the original payload")
	}
}

func TestChunkTextSingleChunk(t *testing.T) {
	parts := ChunkText("short", 100)
	if len(parts) != 1 || parts[0] != "short" {
		t.Fatalf("unexpected parts: %v", parts)
	}
}

func TestChunkTextHardSplitWithoutNewlines(t *testing.T) {
	payload := strings.Repeat("z", 130)
	parts := ChunkText(payload, 60)
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(parts))
	}
	for i, p := range parts {
		if len(p) > 60 {
			t.Fatalf("part %d exceeds limit: %d bytes", i, len(p))
		}
	}
}

// lookupResolver resolves from a fixed map without mutating any state, so
// it is safe under concurrent formatter callers.
type lookupResolver map[string]string

func (r lookupResolver) DisplayName(_ context.Context, _, userID string) (string, bool) {
	name, ok := r[userID]
	return name, ok
}

func TestFormatterConcurrentRendering(t *testing.T) {
	f := NewFormatter("g1", lookupResolver{"1": "alice", "2": "bob"})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				speaker := fmt.Sprintf("%d", (g+i)%3+1)
				utts := []Utterance{{SpeakerID: speaker, Text: "hi", Timestamp: base}}
				if g%2 == 0 {
					f.BuildBlock(context.Background(), utts)
				} else {
					f.BuildLines(context.Background(), utts)
				}
			}
		}(g)
	}
	wg.Wait()

	lines := f.BuildLines(context.Background(), []Utterance{
		{SpeakerID: "1", Text: "done", Timestamp: base},
	})
	if len(lines) != 1 || !strings.Contains(lines[0], "alice") {
		t.Fatalf("unexpected lines after concurrent use: %v", lines)
	}
}
