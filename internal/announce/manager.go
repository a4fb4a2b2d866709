package announce

import (
	"context"
	"sync"
	"time"

	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/voice"
)

const playbackTimeout = 15 * time.Second

const (
	textActive         = "Moderator Bot checking in. Live AI voice moderation is active in this channel."
	textTranscriptOnly = "Moderator Bot checking in. I'm only transcribing this channel; " +
		"AI moderation actions are disabled."
)

// Manager plays the join announcement once per (channel, connection). A
// reconnect produces a new connection key, so rejoining the same channel
// announces again.
type Manager struct {
	cache *Cache

	mu       sync.Mutex
	lastKeys map[string]string
}

func NewManager(cache *Cache) *Manager {
	return &Manager{
		cache:    cache,
		lastKeys: make(map[string]string),
	}
}

// MaybeAnnounce plays the announcement on conn if it has not been played for
// this connection yet. All failures are logged and absorbed; an announcement
// never fails a cycle.
func (m *Manager) MaybeAnnounce(ctx context.Context, guildID string, conn voice.Conn, transcriptOnly, enabled bool) {
	if !enabled || m.cache == nil || conn == nil {
		return
	}
	if !conn.Connected() {
		m.mu.Lock()
		delete(m.lastKeys, guildID)
		m.mu.Unlock()
		return
	}

	key := conn.ChannelID() + ":" + conn.Key()
	m.mu.Lock()
	if m.lastKeys[guildID] == key {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	text := textActive
	if transcriptOnly {
		text = textTranscriptOnly
	}
	audio, err := m.cache.Get(ctx, text)
	if err != nil {
		logging.Warnw("failed to prepare join announcement",
			"guild_id", guildID, "channel_id", conn.ChannelID(), "err", err)
		return
	}

	// Mark before playing so a failed playback is not retried every window.
	m.mu.Lock()
	m.lastKeys[guildID] = key
	m.mu.Unlock()

	playCtx, cancel := context.WithTimeout(ctx, playbackTimeout)
	defer cancel()
	if err := conn.Play(playCtx, audio, SniffFormat(audio)); err != nil {
		logging.Warnw("failed to play join announcement",
			"guild_id", guildID, "channel_id", conn.ChannelID(), "err", err)
	}
}
