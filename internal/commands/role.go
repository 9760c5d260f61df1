package commands

import (
	"context"
	"sync"
	"time"

	"bumpbot/internal/config"
	"bumpbot/internal/transport"
	logx "bumpbot/pkg/logx"

	"golang.org/x/time/rate"
)

const (
	toggleEvery = 3 * time.Second
	toggleBurst = 2

	limiterIdle = 10 * time.Minute
	limiterMax  = 1024
)

func (h *Handler) toggleRole(ctx context.Context, in *transport.Interaction) {
	st := h.settings.Load()
	t := h.texts(st, in)
	log := h.log.With(logx.String("user_id", in.UserID), logx.String("role_id", st.RoleID))

	if !st.MentionRole {
		h.reply(ctx, in, t.Get(config.TextRoleDisabled))
		return
	}
	if !h.limiter.Allow(in.UserID, time.Now()) {
		log.Debug("role toggle rate limited")
		h.reply(ctx, in, t.Get(config.TextRoleSlowDown))
		return
	}

	exists, err := h.tr.RoleExists(ctx, in.GuildID, st.RoleID)
	if err != nil {
		log.Error("role lookup failed", logx.Err(err))
		h.reply(ctx, in, t.Get(config.TextRoleChangeError))
		return
	}
	if !exists {
		log.Warn("reminder role not found")
		h.reply(ctx, in, t.Get(config.TextRoleNotFound))
		return
	}

	has, err := h.tr.MemberHasRole(ctx, in.GuildID, in.UserID, st.RoleID)
	if err != nil {
		log.Error("member lookup failed", logx.Err(err))
		h.reply(ctx, in, t.Get(config.TextRoleChangeError))
		return
	}

	if has {
		if err := h.tr.RemoveRole(ctx, in.GuildID, in.UserID, st.RoleID); err != nil {
			log.Error("remove role failed", logx.Err(err))
			h.reply(ctx, in, t.Get(config.TextRoleChangeError))
			return
		}
		log.Info("reminder role removed")
		h.reply(ctx, in, t.Get(config.TextRoleRemoved))
		return
	}
	if err := h.tr.AddRole(ctx, in.GuildID, in.UserID, st.RoleID); err != nil {
		log.Error("add role failed", logx.Err(err))
		h.reply(ctx, in, t.Get(config.TextRoleChangeError))
		return
	}
	log.Info("reminder role added")
	h.reply(ctx, in, t.Get(config.TextRoleAdded))
}

// userLimiter keeps one token bucket per user and forgets idle users.
type userLimiter struct {
	mu    sync.Mutex
	every rate.Limit
	burst int
	users map[string]*userBucket
}

type userBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newUserLimiter(every time.Duration, burst int) *userLimiter {
	return &userLimiter{every: rate.Every(every), burst: burst, users: map[string]*userBucket{}}
}

func (l *userLimiter) Allow(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.users[userID]
	if b == nil {
		if len(l.users) >= limiterMax {
			l.pruneLocked(now)
		}
		b = &userBucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.users[userID] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (l *userLimiter) pruneLocked(now time.Time) {
	for id, b := range l.users {
		if now.Sub(b.seen) > limiterIdle {
			delete(l.users, id)
		}
	}
}
