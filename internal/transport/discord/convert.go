package discord

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"bumpbot/internal/transport"

	"github.com/bwmarrin/discordgo"
)

func fromMessageCreate(m *discordgo.MessageCreate) *transport.Message {
	if m == nil || m.Message == nil || m.Author == nil {
		return nil
	}
	msg := &transport.Message{
		ID:         m.ID,
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		AuthorBot:  m.Author.Bot,
	}
	if m.Interaction != nil {
		msg.CommandName = m.Interaction.Name
	}
	return msg
}

func fromInteraction(i *discordgo.InteractionCreate) *transport.Interaction {
	if i == nil || i.Interaction == nil {
		return nil
	}
	in := &transport.Interaction{
		ID:        i.ID,
		Token:     i.Token,
		AppID:     i.AppID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Locale:    string(i.Locale),
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		in.UserID = i.Member.User.ID
	case i.User != nil:
		in.UserID = i.User.ID
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		in.Kind = transport.InteractionCommand
		in.Command = data.Name
		in.Options = make(map[string]string, len(data.Options))
		for _, o := range data.Options {
			if o.Type == discordgo.ApplicationCommandOptionString {
				in.Options[o.Name] = o.StringValue()
			} else {
				in.Options[o.Name] = fmt.Sprint(o.Value)
			}
		}
	case discordgo.InteractionMessageComponent:
		in.Kind = transport.InteractionComponent
		in.CustomID = i.MessageComponentData().CustomID
	default:
		return nil
	}
	return in
}

func toMessageSend(msg transport.OutgoingMessage) *discordgo.MessageSend {
	out := &discordgo.MessageSend{
		Content: msg.Content,
		// Only the listed roles may be pinged; never @everyone or users.
		AllowedMentions: &discordgo.MessageAllowedMentions{Roles: msg.MentionRoleIDs},
	}
	if e := msg.Embed; e != nil {
		emb := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
		}
		if !e.Timestamp.IsZero() {
			emb.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
		}
		out.Embeds = []*discordgo.MessageEmbed{emb}
	}
	if b := msg.Button; b != nil {
		out.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: b.Label, Style: discordgo.PrimaryButton, CustomID: b.CustomID},
			}},
		}
	}
	return out
}

func toApplicationCommands(cmds []transport.Command) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for _, c := range cmds {
		ac := &discordgo.ApplicationCommand{Name: c.Name, Description: c.Description}
		for _, o := range c.Options {
			opt := &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        o.Name,
				Description: o.Description,
				Required:    o.Required,
			}
			for _, ch := range o.Choices {
				opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: ch.Name, Value: ch.Value})
			}
			ac.Options = append(ac.Options, opt)
		}
		out = append(out, ac)
	}
	return out
}

// mapErr turns Discord 404s (and unknown-entity API codes) into transport.ErrNotFound.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
		}
		if rest.Message != nil && isUnknownEntity(rest.Message.Code) {
			return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
		}
	}
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
	}
	return err
}

func isUnknownEntity(code int) bool {
	switch code {
	case discordgo.ErrCodeUnknownChannel,
		discordgo.ErrCodeUnknownGuild,
		discordgo.ErrCodeUnknownMember,
		discordgo.ErrCodeUnknownRole:
		return true
	}
	return false
}
