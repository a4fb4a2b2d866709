package moderation

import (
	"context"
	"strings"
)

// ActionExecutor applies one disciplinary action to a guild member and
// returns a short outcome description for the log embed. Anything beyond
// the dispatch itself (strike bookkeeping, escalation) lives outside this
// package.
type ActionExecutor interface {
	Apply(ctx context.Context, guildID, userID, action, reason string) (string, error)
}

// ResolveConfiguredActions maps the guild's configured action setting onto
// the classifier's suggestions: "auto" defers to the AI, anything else
// overrides it.
func ResolveConfiguredActions(configured, aiActions []string) []string {
	if len(configured) == 0 {
		return aiActions
	}
	for _, a := range configured {
		if strings.EqualFold(strings.TrimSpace(a), "auto") {
			return aiActions
		}
	}
	return configured
}

// SummarizeReasonRule collapses a user's aggregated reasons and rules into
// single strings for the action log.
func SummarizeReasonRule(reasons, rules []string) (string, string) {
	reason := strings.Join(dedupeStrings(reasons), "; ")
	rule := strings.Join(dedupeStrings(rules), ", ")
	if reason == "" {
		reason = "Voice chat rule violation"
	}
	if rule == "" {
		rule = "unspecified"
	}
	return reason, rule
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
