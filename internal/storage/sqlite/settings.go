package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/discord-voice-mod/internal/settings"
)

// SettingsStore reads per-guild moderation settings from key/value rows.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) (*SettingsStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id TEXT NOT NULL,
			key      TEXT NOT NULL,
			value    TEXT NOT NULL,
			PRIMARY KEY (guild_id, key)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create guild_settings table: %w", err)
	}
	return &SettingsStore{db: db}, nil
}

func (s *SettingsStore) Guild(ctx context.Context, guildID string) (settings.Settings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM guild_settings WHERE guild_id = ?`, guildID)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("failed to read settings for guild %s: %w", guildID, err)
	}
	defer rows.Close()

	raw := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return settings.Settings{}, fmt.Errorf("failed to scan settings row: %w", err)
		}
		raw[k] = v
	}
	if err := rows.Err(); err != nil {
		return settings.Settings{}, fmt.Errorf("failed to iterate settings rows: %w", err)
	}
	return settings.FromRaw(raw), nil
}

// Set upserts one setting value. Used by tests and management tooling.
func (s *SettingsStore) Set(ctx context.Context, guildID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(guild_id, key) DO UPDATE SET value = excluded.value
	`, guildID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s for guild %s: %w", key, guildID, err)
	}
	return err
}

// Guilds lists every guild that has at least one setting row. The scheduler
// uses this as its working set.
func (s *SettingsStore) Guilds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT guild_id FROM guild_settings ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan guild id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
