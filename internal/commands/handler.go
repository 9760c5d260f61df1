package commands

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"bumpbot/internal/config"
	"bumpbot/internal/notify"
	"bumpbot/internal/reminder"
	"bumpbot/internal/transport"
	logx "bumpbot/pkg/logx"

	"github.com/rs/xid"
)

const (
	TaskCommand  = "task"
	ActionOption = "action"

	ActionStatus = "status"
	ActionCancel = "cancel"
	ActionTest   = "test"
)

// Definitions returns the slash commands to register.
func Definitions() []transport.Command {
	return []transport.Command{{
		Name:        TaskCommand,
		Description: "Manage the bump reminder",
		Options: []transport.CommandOption{{
			Name:        ActionOption,
			Description: "What to do",
			Required:    true,
			Choices: []transport.CommandChoice{
				{Name: "status", Value: ActionStatus},
				{Name: "cancel", Value: ActionCancel},
				{Name: "test (1 min)", Value: ActionTest},
			},
		}},
	}}
}

type Scheduler interface {
	Schedule(ctx context.Context, delay time.Duration, p reminder.Payload) (reminder.Result, error)
	Cancel(ctx context.Context) bool
	Status() (time.Duration, bool)
}

// Transport is what the handler needs from the chat adapter.
type Transport interface {
	transport.Replier
	transport.RoleManager
}

type Settings struct {
	OwnerID     string
	Language    string
	TestDelay   time.Duration
	MentionRole bool
	RoleID      string
	Texts       *config.Catalog
}

func SettingsFrom(cfg *config.Config, testDelay time.Duration) Settings {
	return Settings{
		OwnerID:     strings.TrimSpace(cfg.OwnerID),
		Language:    cfg.Language,
		TestDelay:   testDelay,
		MentionRole: cfg.MentionRole,
		RoleID:      strings.TrimSpace(cfg.RoleID),
		Texts:       config.NewCatalog(cfg.Texts),
	}
}

type Handler struct {
	sched    Scheduler
	tr       Transport
	settings atomic.Pointer[Settings]
	limiter  *userLimiter
	log      logx.Logger
}

func New(sched Scheduler, tr Transport, st Settings, log logx.Logger) *Handler {
	h := &Handler{
		sched:   sched,
		tr:      tr,
		limiter: newUserLimiter(toggleEvery, toggleBurst),
		log:     log,
	}
	h.Apply(st)
	return h
}

func (h *Handler) Apply(st Settings) {
	if st.TestDelay <= 0 {
		st.TestDelay = config.DefaultTestDelay
	}
	if st.Texts == nil {
		st.Texts = config.NewCatalog(nil)
	}
	h.settings.Store(&st)
}

// HandleInteraction dispatches a slash command or button press.
func (h *Handler) HandleInteraction(ctx context.Context, in *transport.Interaction) {
	if in == nil {
		return
	}
	switch {
	case in.Kind == transport.InteractionCommand && in.Command == TaskCommand:
		h.handleTask(ctx, in)
	case in.Kind == transport.InteractionComponent && in.CustomID == notify.ToggleRoleButtonID:
		h.toggleRole(ctx, in)
	default:
		h.log.Debug("interaction ignored",
			logx.String("kind", string(in.Kind)),
			logx.String("command", in.Command),
			logx.String("custom_id", in.CustomID),
		)
	}
}

func (h *Handler) texts(st *Settings, in *transport.Interaction) config.Texts {
	return st.Texts.For(config.ResolveLang(st.Language, in.Locale))
}

func (h *Handler) handleTask(ctx context.Context, in *transport.Interaction) {
	st := h.settings.Load()
	t := h.texts(st, in)
	log := h.log.With(logx.String("user_id", in.UserID))

	if st.OwnerID == "" || in.UserID != st.OwnerID {
		log.Info("task command denied")
		h.reply(ctx, in, t.Get(config.TextTaskNoPermission))
		return
	}

	action := in.Options[ActionOption]
	log.Debug("task command", logx.String("action", action))

	switch action {
	case ActionStatus:
		rem, ok := h.sched.Status()
		if !ok {
			h.reply(ctx, in, t.Get(config.TextTaskStatusNone))
			return
		}
		h.reply(ctx, in, FormatStatus(t, rem))

	case ActionCancel:
		if h.sched.Cancel(ctx) {
			h.reply(ctx, in, t.Get(config.TextTaskCanceled))
			return
		}
		h.reply(ctx, in, t.Get(config.TextTaskAlreadyCanceled))

	case ActionTest:
		res, err := h.sched.Schedule(ctx, st.TestDelay, reminder.Payload{Lang: t.Lang(), Reason: "test"})
		switch {
		case err != nil:
			h.replyError(ctx, in, t, "schedule test reminder", err)
		case res == reminder.ResultAlreadyScheduled:
			h.reply(ctx, in, formatDuration(t, config.TextTaskAlreadyScheduled, st.TestDelay))
		default:
			h.reply(ctx, in, formatDuration(t, config.TextTaskTestStart, st.TestDelay))
		}

	default:
		log.Warn("unknown task action", logx.String("action", action))
		h.reply(ctx, in, t.Get(config.TextGenericError))
	}
}

// FormatStatus renders the remaining time with whole minutes and the leftover seconds.
func FormatStatus(t config.Texts, rem time.Duration) string {
	return formatDuration(t, config.TextTaskStatusText, rem)
}

// formatDuration fills the {minutes} and {seconds} placeholders of key from d.
func formatDuration(t config.Texts, key string, d time.Duration) string {
	d = max(d, 0)
	minutes := int(d / time.Minute)
	seconds := int(d % time.Minute / time.Second)
	return t.Format(key,
		"minutes", strconv.Itoa(minutes),
		"seconds", strconv.Itoa(seconds),
	)
}

func (h *Handler) reply(ctx context.Context, in *transport.Interaction, text string) {
	if err := h.tr.Reply(ctx, in, text, true); err != nil {
		h.log.Warn("interaction reply failed", logx.String("interaction_id", in.ID), logx.Err(err))
	}
}

// replyError logs err under a fresh reference and shows the same reference to the user.
func (h *Handler) replyError(ctx context.Context, in *transport.Interaction, t config.Texts, what string, err error) {
	ref := xid.New().String()
	h.log.Error(what+" failed", logx.String("ref", ref), logx.String("user_id", in.UserID), logx.Err(err))
	h.reply(ctx, in, t.Get(config.TextGenericError)+"\n(`"+ref+"`)")
}
