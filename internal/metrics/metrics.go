// Package metrics records per-cycle scan outcomes.
package metrics

import "context"

// Scan is one recorded moderation scan outcome. Every cycle that reaches the
// pipeline produces exactly one Scan regardless of how it ended.
type Scan struct {
	GuildID     string
	ChannelID   string
	Status      string
	Utterances  int
	Tokens      int64
	CostUSD     float64
	DurationMS  int64
	Violations  int
	ErrorDetail string
}

// Recorder persists scan outcomes. Implementations must treat recording as
// best-effort; callers never fail a cycle on a recording error.
type Recorder interface {
	RecordScan(ctx context.Context, scan Scan) error
}

// Discard is a Recorder that drops everything. Used when metrics storage is
// not configured.
type Discard struct{}

func (Discard) RecordScan(context.Context, Scan) error { return nil }
