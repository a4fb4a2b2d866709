package discord

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// cacheTTL controls how long a resolved name stays valid.
var cacheTTL = 5 * time.Minute

type cacheEntry struct {
	val    string
	ok     bool
	expiry time.Time
}

// Resolver maps user IDs to display names with a small TTL cache so
// transcript formatting does not hit the REST API per utterance.
type Resolver struct {
	session *discordgo.Session

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewResolver(session *discordgo.Session) *Resolver {
	return &Resolver{
		session: session,
		cache:   make(map[string]cacheEntry),
	}
}

// DisplayName resolves the member's guild nickname, falling back to global
// and account names. Negative results are cached too, so a departed member
// costs one lookup per TTL.
func (r *Resolver) DisplayName(ctx context.Context, guildID, userID string) (string, bool) {
	if r.session == nil || userID == "" {
		return "", false
	}
	key := guildID + ":" + userID

	r.mu.Lock()
	if e, ok := r.cache[key]; ok && time.Now().Before(e.expiry) {
		r.mu.Unlock()
		return e.val, e.ok
	}
	r.mu.Unlock()

	name, found := r.lookup(guildID, userID)
	r.mu.Lock()
	r.cache[key] = cacheEntry{val: name, ok: found, expiry: time.Now().Add(cacheTTL)}
	r.mu.Unlock()
	return name, found
}

func (r *Resolver) lookup(guildID, userID string) (string, bool) {
	if member, err := r.session.State.Member(guildID, userID); err == nil && member != nil {
		return memberName(member), true
	}
	member, err := r.session.GuildMember(guildID, userID)
	if err != nil || member == nil {
		return "", false
	}
	return memberName(member), true
}

func memberName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User != nil {
		if m.User.GlobalName != "" {
			return m.User.GlobalName
		}
		return m.User.Username
	}
	return ""
}
