package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Payload is passed explicitly to the notify effect when a task fires.
type Payload struct {
	// Lang selects the text set used to render the reminder.
	Lang string
	// Reason records what armed the reminder ("bump", "test", "recovered").
	Reason string
}

// Notifier performs the terminal side-effect of a reminder.
type Notifier interface {
	Notify(ctx context.Context, p Payload) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, p Payload) error

func (f NotifierFunc) Notify(ctx context.Context, p Payload) error { return f(ctx, p) }

type Result int

const (
	ResultArmed Result = iota + 1
	ResultAlreadyScheduled
)

func (r Result) String() string {
	switch r {
	case ResultArmed:
		return "armed"
	case ResultAlreadyScheduled:
		return "already_scheduled"
	default:
		return "unknown"
	}
}

// RecoverPolicy decides what happens to a persisted fire time that already
// passed while the process was down.
type RecoverPolicy string

const (
	RecoverFire    RecoverPolicy = "fire"
	RecoverDiscard RecoverPolicy = "discard"
)

func ParseRecoverPolicy(s string) (RecoverPolicy, error) {
	switch RecoverPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RecoverFire:
		return RecoverFire, nil
	case RecoverDiscard:
		return RecoverDiscard, nil
	default:
		return "", fmt.Errorf("unknown recover policy %q (want fire|discard)", s)
	}
}

// Config controls the scheduler.
type Config struct {
	RecoverPolicy RecoverPolicy
	// DefaultLang is used for reminders re-armed from storage (the language is not persisted).
	DefaultLang string
	// ReconcileSpec is a cron spec for the drift check; empty disables it.
	ReconcileSpec string
	// NotifyTimeout bounds a single notify attempt. 0 means 30s.
	NotifyTimeout time.Duration
}

// Event types published on the bus.
const (
	EventArmed     = "reminder.armed"
	EventRecovered = "reminder.recovered"
	EventFired     = "reminder.fired"
	EventFailed    = "reminder.failed"
	EventCanceled  = "reminder.canceled"
	EventDiscarded = "reminder.discarded"
)
