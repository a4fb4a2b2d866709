package moderation

import (
	"math"
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tc.text), got, tc.want)
		}
	}
}

func TestPricePerMTok(t *testing.T) {
	if got := PricePerMTok("gpt-5-nano"); got != 0.45 {
		t.Fatalf("nano price = %v", got)
	}
	if got := PricePerMTok("gpt-5-mini-2026-01-01"); got != 2.25 {
		t.Fatalf("dated mini price = %v", got)
	}
	if got := PricePerMTok("some-unknown-model"); got != 0.45 {
		t.Fatalf("unknown model price = %v, want cheapest tier", got)
	}
}

func TestModelLimit(t *testing.T) {
	if got := ModelLimit("gpt-5-nano"); got != 128000 {
		t.Fatalf("nano limit = %d", got)
	}
	if got := ModelLimit("mystery-model"); got != 16000 {
		t.Fatalf("unknown limit = %d, want conservative default", got)
	}
}

func TestPickModel(t *testing.T) {
	if got := PickModel(false, "gpt-5-nano", "gpt-5-mini"); got != "gpt-5-nano" {
		t.Fatalf("default pick = %q", got)
	}
	if got := PickModel(true, "gpt-5-nano", "gpt-5-mini"); got != "gpt-5-mini" {
		t.Fatalf("high accuracy pick = %q", got)
	}
	if got := PickModel(true, "gpt-5-nano", ""); got != "gpt-5-nano" {
		t.Fatalf("missing high accuracy model pick = %q", got)
	}
}

func TestRequestCost(t *testing.T) {
	if got := RequestCost("gpt-5-nano", 1_000_000); math.Abs(got-0.45) > 1e-9 {
		t.Fatalf("cost = %v, want 0.45", got)
	}
	if got := RequestCost("gpt-5-mini", 2_000_000); math.Abs(got-4.5) > 1e-9 {
		t.Fatalf("cost = %v, want 4.5", got)
	}
}

func TestResolveConfiguredActions(t *testing.T) {
	ai := []string{"timeout:1h"}
	if got := ResolveConfiguredActions([]string{"auto"}, ai); len(got) != 1 || got[0] != "timeout:1h" {
		t.Fatalf("auto = %v", got)
	}
	if got := ResolveConfiguredActions([]string{"warn:language", "AUTO"}, ai); len(got) != 1 || got[0] != "timeout:1h" {
		t.Fatalf("mixed auto = %v", got)
	}
	if got := ResolveConfiguredActions([]string{"kick"}, ai); len(got) != 1 || got[0] != "kick" {
		t.Fatalf("override = %v", got)
	}
	if got := ResolveConfiguredActions(nil, ai); len(got) != 1 || got[0] != "timeout:1h" {
		t.Fatalf("empty configured = %v", got)
	}
}

func TestSummarizeReasonRule(t *testing.T) {
	reason, rule := SummarizeReasonRule(
		[]string{"spamming", "spamming", "slur"},
		[]string{"No spam.", "No slurs.", "No spam."},
	)
	if reason != "spamming; slur" {
		t.Fatalf("reason = %q", reason)
	}
	if rule != "No spam., No slurs." {
		t.Fatalf("rule = %q", rule)
	}

	reason, rule = SummarizeReasonRule(nil, nil)
	if reason != "Voice chat rule violation" {
		t.Fatalf("default reason = %q", reason)
	}
	if rule != "unspecified" {
		t.Fatalf("default rule = %q", rule)
	}
}
