// Package notify renders and posts the bump reminder message.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"bumpbot/internal/config"
	"bumpbot/internal/reminder"
	"bumpbot/internal/transport"
	logx "bumpbot/pkg/logx"
)

// ToggleRoleButtonID is the custom ID of the role toggle button.
const ToggleRoleButtonID = "toggleReminderRole"

const EmbedColor = 0x00AEFF

var ErrChannelNotFound = errors.New("reminder channel not found")

type Settings struct {
	ChannelID   string
	MentionRole bool
	RoleID      string
	ShowButton  bool
	Texts       *config.Catalog
}

// SettingsFrom extracts the notify settings from cfg.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		ChannelID:   strings.TrimSpace(cfg.ChannelID),
		MentionRole: cfg.MentionRole,
		RoleID:      strings.TrimSpace(cfg.RoleID),
		ShowButton:  cfg.ShowButton,
		Texts:       config.NewCatalog(cfg.Texts),
	}
}

// Service implements reminder.Notifier.
type Service struct {
	sender   transport.MessageSender
	settings atomic.Pointer[Settings]
	log      logx.Logger
	now      func() time.Time
}

func New(sender transport.MessageSender, s Settings, log logx.Logger) *Service {
	svc := &Service{sender: sender, log: log, now: time.Now}
	svc.Apply(s)
	return svc
}

func (s *Service) Apply(st Settings) {
	if st.Texts == nil {
		st.Texts = config.NewCatalog(nil)
	}
	s.settings.Store(&st)
}

func (s *Service) Notify(ctx context.Context, p reminder.Payload) error {
	st := *s.settings.Load()
	if st.ChannelID == "" {
		s.log.Error("reminder channel not configured")
		return ErrChannelNotFound
	}

	msg := Build(st, st.Texts.For(p.Lang), s.now())
	ref, err := s.sender.SendMessage(ctx, st.ChannelID, msg)
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			s.log.Error("reminder channel not found", logx.String("channel_id", st.ChannelID), logx.Err(err))
			return fmt.Errorf("%w: %s", ErrChannelNotFound, st.ChannelID)
		}
		return fmt.Errorf("send reminder: %w", err)
	}
	s.log.Debug("reminder posted",
		logx.String("channel_id", ref.ChannelID),
		logx.String("message_id", ref.MessageID),
		logx.String("lang", p.Lang),
	)
	return nil
}

// Build renders the reminder message.
func Build(st Settings, t config.Texts, now time.Time) transport.OutgoingMessage {
	msg := transport.OutgoingMessage{
		Embed: &transport.Embed{
			Title:       t.Get(config.TextEmbedTitle),
			Description: t.Get(config.TextEmbedDescription),
			Color:       EmbedColor,
			Timestamp:   now,
		},
	}
	if st.MentionRole && st.RoleID != "" {
		msg.Content = "<@&" + st.RoleID + ">"
		msg.MentionRoleIDs = []string{st.RoleID}
	}
	if st.ShowButton {
		msg.Button = &transport.Button{CustomID: ToggleRoleButtonID, Label: t.Get(config.TextButtonLabel)}
	}
	return msg
}
