package sched

import (
	"sync"
	"time"
)

type backoffEntry struct {
	until    time.Time
	attempts int
}

// ConnectBackoff tracks exponential backoff per guild/channel combo so a
// broken voice channel does not get hammered every tick.
type ConnectBackoff struct {
	base time.Duration
	max  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[[2]string]backoffEntry
}

func NewConnectBackoff(base, max time.Duration) *ConnectBackoff {
	if base < 5*time.Second {
		base = 5 * time.Second
	}
	if max < base {
		max = base
	}
	return &ConnectBackoff{
		base:    base,
		max:     max,
		now:     time.Now,
		entries: make(map[[2]string]backoffEntry),
	}
}

// RecordFailure bumps the attempt count and returns the resulting delay.
func (b *ConnectBackoff) RecordFailure(guildID, channelID string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := [2]string{guildID, channelID}
	attempts := b.entries[key].attempts + 1
	delay := b.base << (attempts - 1)
	if delay > b.max || delay <= 0 {
		delay = b.max
	}
	b.entries[key] = backoffEntry{until: b.now().Add(delay), attempts: attempts}
	return delay
}

// Clear forgets the combo after a successful connect.
func (b *ConnectBackoff) Clear(guildID, channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, [2]string{guildID, channelID})
}

// Remaining returns how long the combo is still embargoed, expiring the
// entry once the delay has passed.
func (b *ConnectBackoff) Remaining(guildID, channelID string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := [2]string{guildID, channelID}
	entry, ok := b.entries[key]
	if !ok {
		return 0
	}
	remaining := entry.until.Sub(b.now())
	if remaining <= 0 {
		delete(b.entries, key)
		return 0
	}
	return remaining
}
