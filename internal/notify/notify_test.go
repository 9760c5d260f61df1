package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"bumpbot/internal/config"
	"bumpbot/internal/reminder"
	"bumpbot/internal/transport/transporttest"
	logx "bumpbot/pkg/logx"
)

func TestBuild(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cat := config.NewCatalog(map[string]map[string]string{
		"de": {config.TextEmbedTitle: "Bump!", config.TextButtonLabel: "Rolle"},
	})

	tests := []struct {
		name        string
		st          Settings
		wantContent string
		wantButton  bool
	}{
		{name: "plain", st: Settings{}, wantContent: ""},
		{name: "mention", st: Settings{MentionRole: true, RoleID: "99"}, wantContent: "<@&99>"},
		{name: "button", st: Settings{ShowButton: true}, wantButton: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Build(tt.st, cat.For("de"), now)
			if msg.Content != tt.wantContent {
				t.Fatalf("content=%q", msg.Content)
			}
			if msg.Embed == nil || msg.Embed.Title != "Bump!" || msg.Embed.Color != EmbedColor || !msg.Embed.Timestamp.Equal(now) {
				t.Fatalf("embed=%+v", msg.Embed)
			}
			if (msg.Button != nil) != tt.wantButton {
				t.Fatalf("button=%+v", msg.Button)
			}
			if tt.wantButton && (msg.Button.CustomID != ToggleRoleButtonID || msg.Button.Label != "Rolle") {
				t.Fatalf("button=%+v", msg.Button)
			}
			if tt.wantContent != "" && (len(msg.MentionRoleIDs) != 1 || msg.MentionRoleIDs[0] != "99") {
				t.Fatalf("mentions=%v", msg.MentionRoleIDs)
			}
		})
	}
}

func TestNotifySends(t *testing.T) {
	fake := transporttest.New()
	fake.Channels["c1"] = true
	svc := New(fake, Settings{ChannelID: "c1", ShowButton: true}, logx.Nop())

	if err := svc.Notify(context.Background(), reminder.Payload{Lang: "en"}); err != nil {
		t.Fatal(err)
	}
	sent := fake.SentMessages()
	if len(sent) != 1 || sent[0].ChannelID != "c1" || sent[0].Msg.Button == nil {
		t.Fatalf("sent=%+v", sent)
	}
}

func TestNotifyMissingChannel(t *testing.T) {
	fake := transporttest.New()
	svc := New(fake, Settings{ChannelID: "gone"}, logx.Nop())
	if err := svc.Notify(context.Background(), reminder.Payload{}); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("err=%v", err)
	}

	svc.Apply(Settings{})
	if err := svc.Notify(context.Background(), reminder.Payload{}); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("unset channel err=%v", err)
	}
}

func TestNotifySendError(t *testing.T) {
	fake := transporttest.New()
	fake.Channels["c1"] = true
	fake.SendErr = errors.New("503")
	svc := New(fake, Settings{ChannelID: "c1"}, logx.Nop())
	err := svc.Notify(context.Background(), reminder.Payload{})
	if err == nil || errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("err=%v", err)
	}
}
