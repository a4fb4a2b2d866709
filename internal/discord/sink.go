package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-mod/internal/moderation"
)

// Embed colors matching the classic moderation palette.
const (
	colorBlurple = 0x5865F2
	colorRed     = 0xED4245
	colorGrey    = 0x99AAB5
)

// Sink posts moderation and transcript embeds through the shared session.
type Sink struct {
	session *discordgo.Session
}

func NewSink(session *discordgo.Session) *Sink {
	return &Sink{session: session}
}

// PostTranscript posts one transcript part as a blurple embed.
func (s *Sink) PostTranscript(ctx context.Context, channelID, title, body string) error {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: body,
		Color:       colorBlurple,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	return s.send(ctx, channelID, embed)
}

// PostViolation posts the flagged-violation embed to the mod log channel.
func (s *Sink) PostViolation(ctx context.Context, channelID string, v moderation.ViolationLog) error {
	embed := &discordgo.MessageEmbed{
		Title: "AI-Flagged Violation",
		Description: fmt.Sprintf("User: <@%s>\nRule Broken: %s\nReason: %s\nActions: %s",
			v.UserID, v.Rule, v.Reason, strings.Join(v.Applied, ", ")),
		Color:     colorRed,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if v.Debug {
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{
				Name:  "AI Decision",
				Value: orNone(strings.Join(v.AIDecision, ", ")),
			},
			&discordgo.MessageEmbedField{
				Name:  "Applied Actions",
				Value: orNone(strings.Join(v.Applied, ", ")),
			},
		)
		if len(v.Outcomes) > 0 {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  "Outcomes",
				Value: strings.Join(v.Outcomes, "\n"),
			})
		}
		if v.History != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  "Recent Record",
				Value: v.History,
			})
		}
	}
	return s.send(ctx, channelID, embed)
}

// PostNotice posts a plain informational embed, used for debug notices.
func (s *Sink) PostNotice(ctx context.Context, channelID, title, description string) error {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       colorGrey,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	return s.send(ctx, channelID, embed)
}

func (s *Sink) send(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	if channelID == "" {
		return fmt.Errorf("no channel configured")
	}
	_, err := s.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to post embed to channel %s: %w", channelID, err)
	}
	return nil
}

func orNone(v string) string {
	if v == "" {
		return "None"
	}
	return v
}
