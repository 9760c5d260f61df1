package discord

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"bumpbot/internal/transport"
	logx "bumpbot/pkg/logx"

	"github.com/bwmarrin/discordgo"
)

func TestFromMessageCreate(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:          "m1",
		GuildID:     "g",
		ChannelID:   "c",
		Author:      &discordgo.User{ID: "302050872383242240", Username: "DISBOARD", Bot: true},
		Interaction: &discordgo.MessageInteraction{Name: "bump"},
	}}
	got := fromMessageCreate(m)
	if got == nil || !got.AuthorBot || got.CommandName != "bump" || got.AuthorID != "302050872383242240" || got.ChannelID != "c" {
		t.Fatalf("got %+v", got)
	}

	if fromMessageCreate(&discordgo.MessageCreate{Message: &discordgo.Message{}}) != nil {
		t.Fatalf("message without author should be dropped")
	}
}

func TestFromInteractionComponent(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:      "i1",
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "g",
		Locale:  discordgo.German,
		Member:  &discordgo.Member{User: &discordgo.User{ID: "u1"}},
		Data:    discordgo.MessageComponentInteractionData{CustomID: "toggleReminderRole"},
	}}
	got := fromInteraction(i)
	if got == nil || got.Kind != transport.InteractionComponent || got.CustomID != "toggleReminderRole" || got.UserID != "u1" || got.Locale != "de" {
		t.Fatalf("got %+v", got)
	}
}

func TestFromInteractionCommand(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:   "i2",
		Type: discordgo.InteractionApplicationCommand,
		User: &discordgo.User{ID: "u2"},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "task",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "action", Type: discordgo.ApplicationCommandOptionString, Value: "status"},
			},
		},
	}}
	got := fromInteraction(i)
	if got == nil || got.Kind != transport.InteractionCommand || got.Command != "task" || got.Options["action"] != "status" || got.UserID != "u2" {
		t.Fatalf("got %+v", got)
	}
}

func TestToMessageSend(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ms := toMessageSend(transport.OutgoingMessage{
		Content:        "<@&r>",
		Embed:          &transport.Embed{Title: "t", Description: "d", Color: 0x00AEFF, Timestamp: ts},
		Button:         &transport.Button{CustomID: "toggleReminderRole", Label: "L"},
		MentionRoleIDs: []string{"r"},
	})
	if ms.Content != "<@&r>" || len(ms.Embeds) != 1 || ms.Embeds[0].Color != 0x00AEFF || ms.Embeds[0].Timestamp != "2024-01-01T00:00:00Z" {
		t.Fatalf("ms=%+v", ms)
	}
	if ms.AllowedMentions == nil || len(ms.AllowedMentions.Roles) != 1 || len(ms.AllowedMentions.Parse) != 0 {
		t.Fatalf("allowed mentions=%+v", ms.AllowedMentions)
	}
	row, ok := ms.Components[0].(discordgo.ActionsRow)
	if !ok {
		t.Fatalf("component=%T", ms.Components[0])
	}
	btn, ok := row.Components[0].(discordgo.Button)
	if !ok || btn.CustomID != "toggleReminderRole" || btn.Style != discordgo.PrimaryButton {
		t.Fatalf("button=%+v", row.Components[0])
	}

	plain := toMessageSend(transport.OutgoingMessage{})
	if len(plain.Components) != 0 || len(plain.Embeds) != 0 {
		t.Fatalf("plain=%+v", plain)
	}
}

func TestToApplicationCommands(t *testing.T) {
	cmds := toApplicationCommands([]transport.Command{{
		Name: "task", Description: "d",
		Options: []transport.CommandOption{{Name: "action", Description: "a", Required: true, Choices: []transport.CommandChoice{{Name: "test (1 min)", Value: "test"}}}},
	}})
	if len(cmds) != 1 || len(cmds[0].Options) != 1 {
		t.Fatalf("cmds=%+v", cmds)
	}
	o := cmds[0].Options[0]
	if o.Type != discordgo.ApplicationCommandOptionString || !o.Required || o.Choices[0].Value != "test" {
		t.Fatalf("option=%+v", o)
	}
}

func TestMapErr(t *testing.T) {
	notFound := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
	if !errors.Is(mapErr(notFound), transport.ErrNotFound) {
		t.Fatalf("404 should map to ErrNotFound")
	}
	unknownRole := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusBadRequest},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownRole},
	}
	if !errors.Is(mapErr(unknownRole), transport.ErrNotFound) {
		t.Fatalf("unknown role should map to ErrNotFound")
	}
	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	if errors.Is(mapErr(forbidden), transport.ErrNotFound) {
		t.Fatalf("403 must not map to ErrNotFound")
	}
	if mapErr(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty token")
	}
}
