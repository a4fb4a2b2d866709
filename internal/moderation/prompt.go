package moderation

import "fmt"

// SystemPrompt instructs the classifier. The user prompt carries the rules,
// violation history and transcript; the system prompt stays constant so its
// token cost can be precomputed.
const SystemPrompt = "You are an AI moderator for live voice chats.\n" +
	"The next user message will begin with 'Rules:' — enforce ONLY those rules.\n\n" +
	"Output policy:\n" +
	"- Return a JSON object matching the VoiceModerationReport schema.\n" +
	"- If no rules are clearly broken, return violations as an empty array.\n" +
	"- Include a VoiceViolationEvent ONLY when spoken content explicitly breaks a listed rule.\n" +
	"- Do not infer intent; ignore sarcasm, edgy jokes, or second-hand claims unless explicit.\n" +
	"- Do not flag users quoting others to report a violation.\n\n" +
	"Actions:\n" +
	"- Valid actions: strike, kick, ban, timeout:<duration>, warn:<text>.\n" +
	"- Use timeout:<duration> with a unit (s, m, h, d, w, mo).\n\n" +
	"Strict requirements:\n" +
	"- Each VoiceViolationEvent must include: user_id (Discord user ID), rule (quoted/matched), reason, actions.\n" +
	"- Combine multiple rule breaks by the same user into a single event (merge actions).\n" +
	"- When uncertain, return no violations."

// BaseSystemTokens is the token cost of SystemPrompt, counted once per
// request.
var BaseSystemTokens = EstimateTokens(SystemPrompt)

// BuildUserPrompt assembles the classifier's user message.
func BuildUserPrompt(rules, historyBlob, transcript string) string {
	return fmt.Sprintf("Rules:\n%s\n\n%sTranscript:\n%s", rules, historyBlob, transcript)
}
