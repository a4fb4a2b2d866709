package moderation

import "strings"

// MaxContextUsageFraction is how much of a model's context window a request
// may consume before the batch is skipped as too large.
const MaxContextUsageFraction = 0.9

// pricesPerMTok is USD per million tokens, matched by substring so dated
// model suffixes still resolve.
var pricesPerMTok = map[string]float64{
	"gpt-5-nano": 0.45,
	"gpt-5-mini": 2.25,
}

var modelContextWindows = map[string]int{
	"gpt-5-nano":   128000,
	"gpt-5-mini":   128000,
	"gpt-5":        128000,
	"gpt-4.1":      1000000,
	"gpt-4.1-nano": 1000000,
	"gpt-4.1-mini": 1000000,
	"gpt-4o":       128000,
	"gpt-4o-mini":  128000,
}

// EstimateTokens is the rough one-token-per-four-chars heuristic used for
// budget gating. Real usage differs; the budget ledger absorbs the error.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// PricePerMTok returns the USD price per million tokens for model, falling
// back to the cheapest tier for unknown names.
func PricePerMTok(model string) float64 {
	for key, price := range pricesPerMTok {
		if strings.Contains(model, key) {
			return price
		}
	}
	return 0.45
}

// ModelLimit returns the context window for model, with a conservative
// default for unknown names.
func ModelLimit(model string) int {
	for key, limit := range modelContextWindows {
		if strings.Contains(model, key) {
			return limit
		}
	}
	return 16000
}

// PickModel selects the classifier model for this scan.
func PickModel(highAccuracy bool, defaultModel, highAccuracyModel string) string {
	if highAccuracy && highAccuracyModel != "" {
		return highAccuracyModel
	}
	return defaultModel
}

// RequestCost prices an estimated token count for model.
func RequestCost(model string, tokens int) float64 {
	return float64(tokens) * PricePerMTok(model) / 1_000_000
}
