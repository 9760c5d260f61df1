package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"bumpbot/internal/config"
	"bumpbot/internal/notify"
	"bumpbot/internal/transport"
)

func press(user string) *transport.Interaction {
	return &transport.Interaction{
		Kind:     transport.InteractionComponent,
		ID:       "btn",
		GuildID:  "g",
		UserID:   user,
		CustomID: notify.ToggleRoleButtonID,
	}
}

func en(key string) string { return config.NewCatalog(nil).For("en").Get(key) }

func TestRoleToggle(t *testing.T) {
	f := newFixture(t, Settings{MentionRole: true, RoleID: "r"})
	f.fake.Roles["r"] = true
	ctx := context.Background()

	f.h.HandleInteraction(ctx, press("u1"))
	if got := f.lastReply(t).Text; got != en(config.TextRoleAdded) {
		t.Fatalf("first press=%q", got)
	}
	if !f.fake.Members["u1"]["r"] {
		t.Fatalf("role not added")
	}

	f.h.HandleInteraction(ctx, press("u1"))
	if got := f.lastReply(t).Text; got != en(config.TextRoleRemoved) {
		t.Fatalf("second press=%q", got)
	}
	if f.fake.Members["u1"]["r"] {
		t.Fatalf("role not removed")
	}
}

func TestRoleToggleDisabledAndMissing(t *testing.T) {
	f := newFixture(t, Settings{MentionRole: false, RoleID: "r"})
	f.h.HandleInteraction(context.Background(), press("u1"))
	if got := f.lastReply(t).Text; got != en(config.TextRoleDisabled) {
		t.Fatalf("disabled=%q", got)
	}

	f = newFixture(t, Settings{MentionRole: true, RoleID: "gone"})
	f.h.HandleInteraction(context.Background(), press("u1"))
	if got := f.lastReply(t).Text; got != en(config.TextRoleNotFound) {
		t.Fatalf("missing=%q", got)
	}
}

func TestRoleToggleAPIError(t *testing.T) {
	f := newFixture(t, Settings{MentionRole: true, RoleID: "r"})
	f.fake.Roles["r"] = true
	f.fake.RoleErr = errors.New("missing permissions")

	f.h.HandleInteraction(context.Background(), press("u1"))
	if got := f.lastReply(t).Text; got != en(config.TextRoleChangeError) {
		t.Fatalf("reply=%q", got)
	}
}

func TestRoleToggleRateLimited(t *testing.T) {
	f := newFixture(t, Settings{MentionRole: true, RoleID: "r"})
	f.fake.Roles["r"] = true
	ctx := context.Background()

	for i := 0; i < toggleBurst; i++ {
		f.h.HandleInteraction(ctx, press("u1"))
	}
	f.h.HandleInteraction(ctx, press("u1"))
	if got := f.lastReply(t).Text; got != en(config.TextRoleChangeError) {
		t.Fatalf("over limit should fall back to role_change_error, got %q", got)
	}

	// Other users have their own bucket.
	f.h.HandleInteraction(ctx, press("u2"))
	if got := f.lastReply(t).Text; got != en(config.TextRoleAdded) {
		t.Fatalf("u2=%q", got)
	}
}

func TestUserLimiterRefills(t *testing.T) {
	l := newUserLimiter(time.Second, 1)
	now := time.Now()
	if !l.Allow("a", now) {
		t.Fatalf("first call should pass")
	}
	if l.Allow("a", now) {
		t.Fatalf("second call should be limited")
	}
	if !l.Allow("a", now.Add(time.Second)) {
		t.Fatalf("bucket should refill")
	}
}
