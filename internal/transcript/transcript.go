// Package transcript formats transcribed utterances for the classifier and
// streams them to the guild's transcript channel in near real time.
package transcript

import (
	"context"
	"sort"
	"time"
)

// Utterance is one speaker's transcribed text from a single harvest window.
type Utterance struct {
	SpeakerID string
	Text      string
	Timestamp time.Time
}

// Resolver maps a user ID to a display name. Lookups may hit the network, so
// the formatter caches results for the lifetime of a cycle.
type Resolver interface {
	DisplayName(ctx context.Context, guildID, userID string) (string, bool)
}

// sortByTime orders utterances chronologically without mutating the input.
func sortByTime(utterances []Utterance) []Utterance {
	out := make([]Utterance, len(utterances))
	copy(out, utterances)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
