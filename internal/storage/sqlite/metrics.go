package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/discord-voice-mod/internal/metrics"
)

// MetricsStore appends scan outcomes to the vcmod_scans table.
type MetricsStore struct {
	db *sql.DB
}

func NewMetricsStore(db *sql.DB) (*MetricsStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vcmod_scans (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at TIMESTAMP NOT NULL,
			guild_id    TEXT NOT NULL,
			channel_id  TEXT NOT NULL,
			status      TEXT NOT NULL,
			utterances  INTEGER NOT NULL,
			tokens      INTEGER NOT NULL,
			cost_usd    REAL NOT NULL,
			duration_ms INTEGER NOT NULL,
			violations  INTEGER NOT NULL,
			error       TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create vcmod_scans table: %w", err)
	}
	return &MetricsStore{db: db}, nil
}

func (s *MetricsStore) RecordScan(ctx context.Context, scan metrics.Scan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcmod_scans
			(recorded_at, guild_id, channel_id, status, utterances, tokens,
			 cost_usd, duration_ms, violations, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, time.Now().UTC(), scan.GuildID, scan.ChannelID, scan.Status,
		scan.Utterances, scan.Tokens, scan.CostUSD, scan.DurationMS,
		scan.Violations, scan.ErrorDetail)
	if err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}
	return nil
}

var _ metrics.Recorder = (*MetricsStore)(nil)
