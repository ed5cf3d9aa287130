package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"payday/internal/jobs"
)

// DirectMessenger is the part of *discordgo.Session used for DMs.
type DirectMessenger interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Discord struct {
	session DirectMessenger
}

func NewDiscord(session DirectMessenger) *Discord {
	return &Discord{session: session}
}

func (d *Discord) Notify(ctx context.Context, ev jobs.Event) error {
	userID, ok := cutPrefix(ev.Recipient, DiscordPrefix)
	if !ok || !Direct(ev) {
		return nil
	}
	ch, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", userID, err)
	}
	if _, err := d.session.ChannelMessageSend(ch.ID, Message(ev, Mention), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm to %s: %w", userID, err)
	}
	return nil
}

// Mention renders Discord participants as user mentions.
func Mention(id string) string {
	if userID, ok := cutPrefix(id, DiscordPrefix); ok {
		return "<@" + userID + ">"
	}
	return id
}
