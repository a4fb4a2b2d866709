// Package settings holds the per-guild moderation configuration. Values are
// stored as loose key/value text per guild; parsing is lenient and every
// unknown or malformed value falls back to its default.
package settings

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Raw setting keys as stored per guild.
const (
	KeyEnabled           = "vcmod-enabled"
	KeyChannels          = "vcmod-channels"
	KeyCategories        = "vcmod-categories"
	KeySaverMode         = "vcmod-saver-mode"
	KeyListenDuration    = "vcmod-listen-duration"
	KeyIdleDuration      = "vcmod-idle-duration"
	KeyHighAccuracy      = "vcmod-high-accuracy"
	KeyHighQualitySTT    = "vcmod-high-quality-transcription"
	KeyTranscriptOnly    = "vcmod-transcript-only"
	KeyJoinAnnouncement  = "vcmod-join-announcement"
	KeyRules             = "vcmod-rules"
	KeyDetectionAction   = "vcmod-detection-action"
	KeyDebug             = "aimod-debug"
	KeyLogChannel        = "aimod-channel"
	KeyMonitorChannel    = "monitor-channel"
	KeyTranscriptChannel = "vcmod-transcript-channel"
)

const (
	DefaultListen = 2 * time.Minute
	DefaultIdle   = 30 * time.Second
)

// Settings is the decoded moderation configuration for one guild.
type Settings struct {
	Enabled          bool
	ChannelIDs       []string
	CategoryIDs      []string
	SaverMode        bool
	Listen           time.Duration
	Idle             time.Duration
	HighAccuracy     bool
	HighQualitySTT   bool
	TranscriptOnly   bool
	JoinAnnouncement bool
	Rules            string
	Actions          []string
	Debug            bool
	LogChannelID     string
	TranscriptChanID string
}

// Store reads guild settings. Implementations are read-only from the
// pipeline's point of view; writes happen through whatever management
// surface owns the table.
type Store interface {
	Guild(ctx context.Context, guildID string) (Settings, error)
}

// FromRaw decodes a guild's raw key/value map into Settings. Missing keys
// take defaults; a value that fails to parse is treated as missing.
func FromRaw(raw map[string]string) Settings {
	s := Settings{
		Enabled:          parseBool(raw[KeyEnabled]),
		SaverMode:        parseBool(raw[KeySaverMode]),
		HighAccuracy:     parseBool(raw[KeyHighAccuracy]),
		HighQualitySTT:   parseBool(raw[KeyHighQualitySTT]),
		TranscriptOnly:   parseBool(raw[KeyTranscriptOnly]),
		JoinAnnouncement: parseBool(raw[KeyJoinAnnouncement]),
		Debug:            parseBool(raw[KeyDebug]),
		Listen:           parseDuration(raw[KeyListenDuration], DefaultListen),
		Idle:             parseDuration(raw[KeyIdleDuration], DefaultIdle),
		ChannelIDs:       parseIDList(raw[KeyChannels]),
		CategoryIDs:      parseIDList(raw[KeyCategories]),
		Rules:            raw[KeyRules],
		Actions:          parseList(raw[KeyDetectionAction]),
		TranscriptChanID: strings.TrimSpace(raw[KeyTranscriptChannel]),
	}
	if len(s.Actions) == 0 {
		s.Actions = []string{"auto"}
	}
	s.LogChannelID = strings.TrimSpace(raw[KeyLogChannel])
	if s.LogChannelID == "" {
		s.LogChannelID = strings.TrimSpace(raw[KeyMonitorChannel])
	}
	return s
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// parseDuration accepts the short forms used in guild settings ("2m",
// "30s", "1h30m") and plain second counts ("90").
func parseDuration(v string, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

// parseList accepts a JSON array of strings or a comma-separated list.
func parseList(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if strings.HasPrefix(v, "[") {
		var items []string
		if err := json.Unmarshal([]byte(v), &items); err == nil {
			out := items[:0]
			for _, it := range items {
				if it = strings.TrimSpace(it); it != "" {
					out = append(out, it)
				}
			}
			return out
		}
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseIDList is parseList restricted to numeric snowflakes; anything that
// is not all digits is dropped.
func parseIDList(v string) []string {
	var out []string
	for _, item := range parseList(v) {
		if _, err := strconv.ParseUint(item, 10, 64); err == nil {
			out = append(out, item)
		}
	}
	return out
}
