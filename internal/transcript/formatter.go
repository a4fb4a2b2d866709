package transcript

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Formatter renders utterances into classifier blocks and channel lines. It
// caches participant lookups for one cycle so repeated speakers cost one
// resolver call. Safe for concurrent use: one formatter is shared by the
// transcription workers and the pipeline goroutine.
type Formatter struct {
	guildID  string
	resolver Resolver

	mu    sync.Mutex
	cache map[string]participant
}

type participant struct {
	display string
	mention string
}

func NewFormatter(guildID string, resolver Resolver) *Formatter {
	return &Formatter{
		guildID:  guildID,
		resolver: resolver,
		cache:    make(map[string]participant),
	}
}

func (f *Formatter) participant(ctx context.Context, userID string) participant {
	f.mu.Lock()
	if p, ok := f.cache[userID]; ok {
		f.mu.Unlock()
		return p
	}
	f.mu.Unlock()

	// Resolve outside the lock; lookups may hit the network. A racing
	// duplicate lookup just overwrites with the same result.
	p := participant{
		display: fmt.Sprintf("User %s", userID),
		mention: fmt.Sprintf("<@%s>", userID),
	}
	if f.resolver != nil {
		if name, ok := f.resolver.DisplayName(ctx, f.guildID, userID); ok && name != "" {
			p.display = name
		}
	}

	f.mu.Lock()
	f.cache[userID] = p
	f.mu.Unlock()
	return p
}

// BuildBlock renders utterances in chronological order as the labeled block
// the classifier consumes.
func (f *Formatter) BuildBlock(ctx context.Context, utterances []Utterance) string {
	if len(utterances) == 0 {
		return ""
	}
	parts := make([]string, 0, len(utterances))
	for _, u := range sortByTime(utterances) {
		p := f.participant(ctx, u.SpeakerID)
		parts = append(parts,
			fmt.Sprintf("AUTHOR: %s (id = %s)\nUTTERANCE: %s\n---", p.display, u.SpeakerID, u.Text))
	}
	return strings.Join(parts, "\n")
}

// BuildLines renders utterances as channel-facing lines with Discord
// relative timestamps and mentions.
func (f *Formatter) BuildLines(ctx context.Context, utterances []Utterance) []string {
	lines := make([]string, 0, len(utterances))
	for _, u := range sortByTime(utterances) {
		p := f.participant(ctx, u.SpeakerID)
		lines = append(lines,
			fmt.Sprintf("<t:%d:t> %s (%s): %s", u.Timestamp.Unix(), p.mention, p.display, u.Text))
	}
	return lines
}

// ChunkText splits payload into pieces of at most limit bytes, preferring to
// break on a newline so no line is split mid-utterance.
func ChunkText(payload string, limit int) []string {
	if limit <= 0 || len(payload) <= limit {
		return []string{payload}
	}
	var parts []string
	idx := 0
	for idx < len(payload) {
		end := idx + limit
		if end >= len(payload) {
			end = len(payload)
		} else if nl := strings.LastIndex(payload[idx:end], "\n"); nl > 0 {
			end = idx + nl + 1
		}
		parts = append(parts, payload[idx:end])
		idx = end
	}
	return parts
}
