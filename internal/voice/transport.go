package voice

import "context"

// Transport joins voice channels. Implemented by the discord transport;
// faked in tests.
type Transport interface {
	// Connect ensures a live connection to the channel. It is idempotent:
	// an existing healthy connection to the same channel is reused, a
	// connection to another channel is moved, and a broken one is torn
	// down and recreated.
	Connect(ctx context.Context, guildID, channelID string) (Conn, error)
}

// Conn is one live voice-channel connection. A Conn instance is owned by
// exactly one cycle at a time.
type Conn interface {
	GuildID() string
	ChannelID() string
	// Key identifies this connection instance; it changes on reconnect and
	// is used to de-duplicate join announcements.
	Key() string
	// Attach starts feeding decoded per-speaker PCM into the pool.
	// Attaching the same pool twice is a no-op.
	Attach(pool *BufferPool)
	// Play plays audio on the connection, waiting for completion bounded
	// by the context deadline.
	Play(ctx context.Context, audio []byte, format string) error
	Connected() bool
	Close() error
}
