package delivery

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

// discordMessageLimit is Discord's hard cap on message content length.
const discordMessageLimit = 2000

// ChannelMessenger is the subset of *discordgo.Session used by DiscordSender.
type ChannelMessenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSender posts the rendered reminder to a compliance channel.
type DiscordSender struct {
	session   ChannelMessenger
	channelID string
}

// NewDiscordSession opens a bot session for token.  The caller owns Close.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return s, nil
}

func NewDiscordSender(session ChannelMessenger, channelID string) *DiscordSender {
	return &DiscordSender{session: session, channelID: channelID}
}

func (s *DiscordSender) Name() string { return "discord" }

func (s *DiscordSender) Send(ctx context.Context, n types.Notification) error {
	content := fmt.Sprintf("**%s**\n%s", n.Subject, n.Body)
	if r := []rune(content); len(r) > discordMessageLimit {
		content = string(r[:discordMessageLimit-1]) + "…"
	}
	if _, err := s.session.ChannelMessageSend(s.channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}
