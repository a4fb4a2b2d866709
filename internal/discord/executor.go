package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// maxTimeout is Discord's communication-disabled ceiling (28 days).
const maxTimeout = 28 * 24 * time.Hour

// Executor applies disciplinary actions through the Discord API. Strike
// bookkeeping and escalation live outside the bot; "strike" is recorded as
// an outcome only.
type Executor struct {
	session *discordgo.Session
}

func NewExecutor(session *discordgo.Session) *Executor {
	return &Executor{session: session}
}

func (e *Executor) Apply(ctx context.Context, guildID, userID, action, reason string) (string, error) {
	action = strings.TrimSpace(action)
	verb, arg, _ := strings.Cut(action, ":")

	switch strings.ToLower(verb) {
	case "timeout":
		dur, err := parseActionDuration(arg)
		if err != nil {
			return "", fmt.Errorf("bad timeout duration %q: %w", arg, err)
		}
		if dur > maxTimeout {
			dur = maxTimeout
		}
		until := time.Now().UTC().Add(dur)
		if err := e.session.GuildMemberTimeout(guildID, userID, &until, discordgo.WithContext(ctx)); err != nil {
			return "", fmt.Errorf("timeout failed: %w", err)
		}
		return fmt.Sprintf("timed out for %s", dur), nil

	case "kick":
		if err := e.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)); err != nil {
			return "", fmt.Errorf("kick failed: %w", err)
		}
		return "kicked", nil

	case "ban":
		if err := e.session.GuildBanCreateWithReason(guildID, userID, reason, 0, discordgo.WithContext(ctx)); err != nil {
			return "", fmt.Errorf("ban failed: %w", err)
		}
		return "banned", nil

	case "warn":
		text := strings.TrimSpace(arg)
		if text == "" {
			text = reason
		}
		if err := e.directMessage(ctx, userID, fmt.Sprintf("You have received a warning: %s", text)); err != nil {
			return "", fmt.Errorf("warn failed: %w", err)
		}
		return "warned via DM", nil

	case "strike":
		return "strike recorded", nil

	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

func (e *Executor) directMessage(ctx context.Context, userID, content string) error {
	ch, err := e.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	_, err = e.session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx))
	return err
}

// parseActionDuration understands the units the classifier is told to use:
// s, m, h, d, w, mo.
func parseActionDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return 0, fmt.Errorf("empty duration")
	}
	unit := time.Minute
	num := raw
	switch {
	case strings.HasSuffix(raw, "mo"):
		unit = 30 * 24 * time.Hour
		num = raw[:len(raw)-2]
	case strings.HasSuffix(raw, "w"):
		unit = 7 * 24 * time.Hour
		num = raw[:len(raw)-1]
	case strings.HasSuffix(raw, "d"):
		unit = 24 * time.Hour
		num = raw[:len(raw)-1]
	case strings.HasSuffix(raw, "h"):
		unit = time.Hour
		num = raw[:len(raw)-1]
	case strings.HasSuffix(raw, "m"):
		unit = time.Minute
		num = raw[:len(raw)-1]
	case strings.HasSuffix(raw, "s"):
		unit = time.Second
		num = raw[:len(raw)-1]
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid value %q", raw)
	}
	return time.Duration(n * float64(unit)), nil
}
