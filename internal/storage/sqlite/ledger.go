package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/discord-voice-mod/internal/budget"
)

// LedgerStore is the sqlite budget.Ledger: one row per guild, counters
// reset lazily on first read of a new billing cycle.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) (*LedgerStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vcmod_usage (
			guild_id    TEXT PRIMARY KEY,
			cycle_end   TIMESTAMP NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			cost_usd    REAL NOT NULL DEFAULT 0,
			limit_usd   REAL NOT NULL DEFAULT 2.0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create vcmod_usage table: %w", err)
	}
	return &LedgerStore{db: db}, nil
}

func (s *LedgerStore) Get(ctx context.Context, guildID string) (budget.Usage, error) {
	return s.get(ctx, guildID, time.Now())
}

func (s *LedgerStore) get(ctx context.Context, guildID string, now time.Time) (budget.Usage, error) {
	targetEnd := budget.NextCycleEnd(now)

	var u budget.Usage
	var storedEnd time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT tokens_used, cost_usd, limit_usd, cycle_end
		FROM vcmod_usage WHERE guild_id = ?
	`, guildID).Scan(&u.TokensUsed, &u.CostUSD, &u.LimitUSD, &storedEnd)

	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO vcmod_usage (guild_id, cycle_end, tokens_used, cost_usd, limit_usd)
			VALUES (?, ?, 0, 0, ?)
			ON CONFLICT(guild_id) DO NOTHING
		`, guildID, targetEnd, budget.DefaultLimitUSD)
		if err != nil {
			return budget.Usage{}, fmt.Errorf("failed to initialize usage row for guild %s: %w", guildID, err)
		}
		return budget.Usage{LimitUSD: budget.DefaultLimitUSD, CycleEnd: targetEnd}, nil
	}
	if err != nil {
		return budget.Usage{}, fmt.Errorf("failed to read usage for guild %s: %w", guildID, err)
	}

	// Rolled into a new billing cycle: reset counters, advance the end.
	if targetEnd.After(storedEnd) {
		_, err = s.db.ExecContext(ctx, `
			UPDATE vcmod_usage
			SET tokens_used = 0, cost_usd = 0, cycle_end = ?
			WHERE guild_id = ? AND cycle_end = ?
		`, targetEnd, guildID, storedEnd)
		if err != nil {
			return budget.Usage{}, fmt.Errorf("failed to roll over usage for guild %s: %w", guildID, err)
		}
		return budget.Usage{LimitUSD: u.LimitUSD, CycleEnd: targetEnd}, nil
	}

	u.CycleEnd = storedEnd
	return u, nil
}

func (s *LedgerStore) Increment(ctx context.Context, guildID string, tokens int64, cost float64) (budget.Usage, error) {
	cost = budget.RoundCost(cost)
	if tokens < 0 {
		tokens = 0
	}
	// Ensure the row exists and the cycle is current before adding to it.
	if _, err := s.Get(ctx, guildID); err != nil {
		return budget.Usage{}, err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE vcmod_usage
		SET tokens_used = tokens_used + ?, cost_usd = cost_usd + ?
		WHERE guild_id = ?
	`, tokens, cost, guildID)
	if err != nil {
		return budget.Usage{}, fmt.Errorf("failed to increment usage for guild %s: %w", guildID, err)
	}
	return s.Get(ctx, guildID)
}
