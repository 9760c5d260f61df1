// Package trigger turns a bump bot's command response into a scheduled reminder.
package trigger

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"bumpbot/internal/config"
	"bumpbot/internal/reminder"
	"bumpbot/internal/transport"
	logx "bumpbot/pkg/logx"
)

type Scheduler interface {
	Schedule(ctx context.Context, delay time.Duration, p reminder.Payload) (reminder.Result, error)
}

type Settings struct {
	// AllowedBotIDs nil admits any bot; an empty non-nil slice admits none.
	AllowedBotIDs    []string
	Command          string
	AllowedChannelID string
	Delay            time.Duration
	Language         string
}

func SettingsFrom(cfg *config.Config, delay time.Duration) Settings {
	var ids []string
	if cfg.AllowedBotIDs != nil {
		ids = make([]string, 0, len(cfg.AllowedBotIDs))
		for _, id := range cfg.AllowedBotIDs {
			ids = append(ids, strings.TrimSpace(id))
		}
	}
	return Settings{
		AllowedBotIDs:    ids,
		Command:          cfg.TriggerCommand(),
		AllowedChannelID: strings.TrimSpace(cfg.AllowedChannelID),
		Delay:            delay,
		Language:         cfg.Language,
	}
}

type Adapter struct {
	sched    Scheduler
	settings atomic.Pointer[Settings]
	log      logx.Logger
}

func New(sched Scheduler, st Settings, log logx.Logger) *Adapter {
	a := &Adapter{sched: sched, log: log}
	a.Apply(st)
	return a
}

func (a *Adapter) Apply(st Settings) {
	if st.Delay <= 0 {
		st.Delay = config.DefaultDelay
	}
	if st.Command == "" {
		st.Command = config.DefaultTrigger
	}
	a.settings.Store(&st)
}

// Match reports whether m is a bump. The returned reason names the first
// filter that rejected it.
func (a *Adapter) Match(m transport.Message) (string, bool) {
	st := a.settings.Load()
	switch {
	case !m.AuthorBot:
		return "author_not_bot", false
	case st.AllowedBotIDs != nil && !slices.Contains(st.AllowedBotIDs, m.AuthorID):
		return "bot_not_allowed", false
	case m.CommandName != st.Command:
		return "command_mismatch", false
	case st.AllowedChannelID != "" && m.ChannelID != st.AllowedChannelID:
		return "channel_mismatch", false
	}
	return "", true
}

// OnMessage schedules a reminder when m is a bump. Filtered messages are
// dropped silently. It reports whether m passed the filters.
func (a *Adapter) OnMessage(ctx context.Context, m transport.Message) bool {
	if reason, ok := a.Match(m); !ok {
		if m.AuthorBot {
			a.log.Trace("bot message ignored", logx.String("reason", reason), logx.String("author_id", m.AuthorID))
		}
		return false
	}

	st := a.settings.Load()
	lang := config.ResolveLang(st.Language, m.Locale)
	log := a.log.With(logx.String("author_id", m.AuthorID), logx.String("channel_id", m.ChannelID))
	log.Info("bump detected", logx.String("lang", lang))

	res, err := a.sched.Schedule(ctx, st.Delay, reminder.Payload{Lang: lang, Reason: "bump"})
	if err != nil {
		log.Error("schedule reminder failed", logx.Err(err))
		return true
	}
	if res == reminder.ResultAlreadyScheduled {
		log.Info("reminder already pending, bump ignored")
	}
	return true
}
