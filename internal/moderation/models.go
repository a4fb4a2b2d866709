// Package moderation classifies transcript batches against guild rules and
// applies the resulting disciplinary actions.
package moderation

// ViolationEvent is one rule break attributed to one speaker, as returned by
// the classifier.
type ViolationEvent struct {
	UserID  string   `json:"user_id"`
	Rule    string   `json:"rule"`
	Reason  string   `json:"reason"`
	Actions []string `json:"actions"`
}

// Report is the classifier's structured verdict for one transcript batch.
type Report struct {
	Violations []ViolationEvent `json:"violations"`
}

// Status describes how a scan ended. Every batch that reaches the pipeline
// gets exactly one status.
type Status string

const (
	StatusOK             Status = "ok"
	StatusTooLarge       Status = "too_large"
	StatusBudget         Status = "budget"
	StatusNoRules        Status = "no_rules"
	StatusTranscriptOnly Status = "transcript_only"
	StatusException      Status = "exception"
)
