// Package budget defines the per-guild, per-billing-cycle spend ledger
// consulted before every paid AI call.
package budget

import (
	"context"
	"math"
	"time"
)

// DefaultLimitUSD is the budget ceiling applied to guilds without an
// explicit limit row.
const DefaultLimitUSD = 2.00

// Usage is a snapshot of one guild's current billing cycle.
type Usage struct {
	TokensUsed int64
	CostUSD    float64
	LimitUSD   float64
	CycleEnd   time.Time
}

// Allows reports whether a request of the given cost fits the remaining
// budget for this cycle.
func (u Usage) Allows(requestCost float64) bool {
	return u.CostUSD+requestCost <= u.LimitUSD
}

// Ledger is the read/increment contract of the budget store. Both methods
// must be safe under concurrent callers: cycles of different guilds, and
// other moderation subsystems, share one ledger.
type Ledger interface {
	// Get returns the current cycle snapshot, lazily rolling the cycle
	// over (counters reset, cycle end advanced) when the stored cycle
	// has ended.
	Get(ctx context.Context, guildID string) (Usage, error)
	// Increment atomically adds token and cost spend to the current
	// cycle and returns the updated snapshot. It must never be called
	// for a request the caller did not gate through Get first.
	Increment(ctx context.Context, guildID string, tokens int64, cost float64) (Usage, error)
}

// NextCycleEnd returns the end of the billing cycle containing now: the
// first instant of the next calendar month, UTC.
func NextCycleEnd(now time.Time) time.Time {
	now = now.UTC()
	year, month := now.Year(), now.Month()
	if month == time.December {
		year, month = year+1, time.January
	} else {
		month++
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// RoundCost normalizes a cost figure the way the ledger stores it:
// six decimal places, never negative, never NaN/Inf.
func RoundCost(cost float64) float64 {
	if math.IsNaN(cost) || math.IsInf(cost, 0) || cost < 0 {
		return 0
	}
	return math.Round(cost*1e6) / 1e6
}
