// Package discord implements the bot's edges against the Discord API: the
// voice transport, name resolution, embed posting, and disciplinary action
// dispatch.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/voice"
)

// Transport joins voice channels through a shared discordgo session. Connect
// is idempotent per guild: joining a different channel moves the existing
// connection, and a broken connection is torn down and redialed.
type Transport struct {
	session *discordgo.Session

	mu    sync.Mutex
	conns map[string]*Conn
}

func NewTransport(session *discordgo.Session) *Transport {
	return &Transport{
		session: session,
		conns:   make(map[string]*Conn),
	}
}

func (t *Transport) Connect(ctx context.Context, guildID, channelID string) (voice.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	existing := t.conns[guildID]
	t.mu.Unlock()

	if existing != nil && existing.Connected() && existing.ChannelID() == channelID {
		return existing, nil
	}
	if existing != nil {
		// Moving channels reuses the gateway connection; a dead one is
		// closed before redialing.
		if err := existing.Close(); err != nil {
			logging.Debugw("error closing stale voice connection",
				"guild_id", guildID, "err", err)
		}
		t.mu.Lock()
		delete(t.conns, guildID)
		t.mu.Unlock()
	}

	// mute=false so the join announcement can play; deaf=false so OpusRecv
	// receives audio.
	vc, err := t.session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel %s: %w", channelID, err)
	}

	conn := newConn(t.session, vc, guildID, channelID)
	t.mu.Lock()
	t.conns[guildID] = conn
	t.mu.Unlock()
	logging.Infow("joined voice channel", "guild_id", guildID, "channel_id", channelID)
	return conn, nil
}

// Conn is one live voice connection. The key is regenerated per join so
// callers can tell a reconnect from the connection it replaced.
type Conn struct {
	session   *discordgo.Session
	vc        *discordgo.VoiceConnection
	guildID   string
	channelID string
	key       string

	mu       sync.Mutex
	closed   bool
	receiver *receiver
	playMu   sync.Mutex
}

func newConn(session *discordgo.Session, vc *discordgo.VoiceConnection, guildID, channelID string) *Conn {
	return &Conn{
		session:   session,
		vc:        vc,
		guildID:   guildID,
		channelID: channelID,
		key:       uuid.NewString(),
	}
}

func (c *Conn) GuildID() string   { return c.guildID }
func (c *Conn) ChannelID() string { return c.channelID }
func (c *Conn) Key() string       { return c.key }

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.vc == nil {
		return false
	}
	c.vc.RLock()
	ready := c.vc.Ready
	c.vc.RUnlock()
	return ready
}

// Attach starts draining received audio into pool. Calling Attach again
// replaces the previous pool.
func (c *Conn) Attach(pool *voice.BufferPool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.receiver != nil {
		if c.receiver.pool == pool {
			return
		}
		c.receiver.stop()
	}
	c.receiver = newReceiver(c.vc, pool)
	c.receiver.start()
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	recv := c.receiver
	c.receiver = nil
	c.mu.Unlock()

	if recv != nil {
		recv.stop()
	}
	if err := c.vc.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect voice: %w", err)
	}
	return nil
}
