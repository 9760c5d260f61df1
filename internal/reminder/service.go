package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bumpbot/internal/eventbus"
	"bumpbot/internal/storage"
	logx "bumpbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

const defaultNotifyTimeout = 30 * time.Second

// ErrShutdown is returned by Schedule after Shutdown.
var ErrShutdown = errors.New("reminder scheduler shut down")

// Service is the single-slot reminder scheduler.
//
// All check-and-set of the current task happens under mu. The notify effect
// runs outside mu so Status and Cancel stay responsive while a send is slow.
type Service struct {
	mu  sync.Mutex
	cur *Task
	cfg Config
	// consumed is the fire time of the last task that fired or was canceled.
	// A stale row carrying it is cleared rather than re-armed.
	consumed time.Time
	closed   bool
	// started is set between Start and Stop.
	started  bool

	store    storage.Store
	notifier Notifier
	clock    Clock
	log      logx.Logger
	bus      eventbus.Bus

	baseCtx context.Context
	cron    *cron.Cron
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func New(cfg Config, store storage.Store, notifier Notifier, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{
		cfg:      normalize(cfg),
		store:    store,
		notifier: notifier,
		clock:    RealClock(),
		log:      log,
		bus:      bus,
		baseCtx:  context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func normalize(cfg Config) Config {
	if cfg.RecoverPolicy == "" {
		cfg.RecoverPolicy = RecoverFire
	}
	if cfg.DefaultLang == "" {
		cfg.DefaultLang = "en"
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	return cfg
}

// Schedule arms a reminder delay from now unless one is already pending.
// The fire time is persisted first; if that fails nothing is armed.
func (s *Service) Schedule(ctx context.Context, delay time.Duration, p Payload) (Result, error) {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrShutdown
	}
	if s.cur != nil {
		s.log.Info("reminder already running, ignored",
			logx.Time("next_fire_at", s.cur.at),
			logx.String("reason", p.Reason),
		)
		return ResultAlreadyScheduled, nil
	}

	// Persisted layout is unix ms; keep memory in the same resolution so the
	// reconciler can compare exactly.
	at := s.clock.Now().Add(delay).Truncate(time.Millisecond)
	if err := s.store.PutNextFire(ctx, at); err != nil {
		return 0, fmt.Errorf("persist next fire: %w", err)
	}
	s.armLocked(newTask(at, p), delay)

	s.log.Info("reminder scheduled",
		logx.Duration("delay", delay),
		logx.Time("next_fire_at", at),
		logx.String("reason", p.Reason),
	)
	s.publish(EventArmed, map[string]any{"at": at, "reason": p.Reason})
	return ResultArmed, nil
}

// ScheduleMinutes is Schedule with a whole-minute delay.
func (s *Service) ScheduleMinutes(ctx context.Context, minutes int, p Payload) (Result, error) {
	return s.Schedule(ctx, time.Duration(minutes)*time.Minute, p)
}

// Cancel stops the pending reminder without notifying.
// It returns false if nothing is pending or the reminder already started firing.
func (s *Service) Cancel(ctx context.Context) bool {
	s.mu.Lock()
	t := s.cur
	if t == nil || !t.Cancel() {
		s.mu.Unlock()
		return false
	}
	s.cur = nil
	s.consumed = t.at
	s.clearLocked(ctx, "cancel")
	s.mu.Unlock()

	s.log.Info("reminder canceled", logx.Time("next_fire_at", t.at))
	s.publish(EventCanceled, map[string]any{"at": t.at, "reason": "command"})
	return true
}

// Status reports the remaining time of the pending reminder.
func (s *Service) Status() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return 0, false
	}
	return max(s.cur.at.Sub(s.clock.Now()), 0), true
}

// NextFire returns the absolute fire time of the pending reminder.
func (s *Service) NextFire() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return time.Time{}, false
	}
	return s.cur.at, true
}

func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Current returns the pending task handle, or nil.
func (s *Service) Current() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Recover re-arms a reminder persisted by a previous run.
func (s *Service) Recover(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recoverLocked(ctx)
}

func (s *Service) recoverLocked(ctx context.Context) error {
	if s.cur != nil || s.closed {
		return nil
	}
	at, ok, err := s.store.NextFire(ctx)
	if err != nil {
		return fmt.Errorf("read next fire: %w", err)
	}
	if !ok {
		return nil
	}
	if !s.consumed.IsZero() && at.Equal(s.consumed) {
		s.log.Warn("stale reminder row, clearing", logx.Time("next_fire_at", at))
		if err := s.store.ClearNextFire(ctx); err != nil {
			return fmt.Errorf("clear stale reminder: %w", err)
		}
		return nil
	}

	p := Payload{Lang: s.cfg.DefaultLang, Reason: "recovered"}
	now := s.clock.Now()
	if at.After(now) {
		remaining := at.Sub(now)
		s.armLocked(newTask(at, p), remaining)
		s.log.Info("reminder recovered", logx.Time("next_fire_at", at), logx.Duration("remaining", remaining))
		s.publish(EventRecovered, map[string]any{"at": at, "overdue": false})
		return nil
	}

	switch s.cfg.RecoverPolicy {
	case RecoverDiscard:
		if err := s.store.ClearNextFire(ctx); err != nil {
			return fmt.Errorf("discard overdue reminder: %w", err)
		}
		s.log.Warn("overdue reminder discarded", logx.Time("next_fire_at", at), logx.Duration("late", now.Sub(at)))
		s.publish(EventDiscarded, map[string]any{"at": at})
	default:
		s.armLocked(newTask(at, p), 0)
		s.log.Warn("overdue reminder, firing now", logx.Time("next_fire_at", at), logx.Duration("late", now.Sub(at)))
		s.publish(EventRecovered, map[string]any{"at": at, "overdue": true})
	}
	return nil
}

// Shutdown cancels the pending reminder and clears the persisted row.
// If the reminder is already firing it waits for the send to finish or ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.close(ctx, true)
}

// Release stops the pending timer but keeps the persisted row, so the next
// start recovers the reminder. Used when the process exits on an error.
func (s *Service) Release(ctx context.Context) error {
	return s.close(ctx, false)
}

func (s *Service) close(ctx context.Context, clearRow bool) error {
	s.mu.Lock()
	s.closed = true
	t := s.cur
	if t != nil && t.Cancel() {
		s.cur = nil
		if !clearRow {
			s.mu.Unlock()
			s.log.Info("pending reminder released, kept for next start", logx.Time("next_fire_at", t.at))
			return nil
		}
		s.consumed = t.at
		s.clearLocked(ctx, "shutdown")
		s.mu.Unlock()
		s.log.Info("pending reminder canceled on shutdown", logx.Time("next_fire_at", t.at))
		s.publish(EventCanceled, map[string]any{"at": t.at, "reason": "shutdown"})
		return nil
	}
	s.mu.Unlock()

	if t == nil {
		return nil
	}
	select {
	case <-t.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply swaps runtime settings. A changed reconcile schedule restarts the
// job when the service is running; "" stops it.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	prev := s.cfg.ReconcileSpec
	s.cfg = normalize(cfg)
	var old *cron.Cron
	var err error
	if s.started && prev != s.cfg.ReconcileSpec {
		old, err = s.restartCronLocked()
	}
	spec := s.cfg.ReconcileSpec
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	if err != nil {
		s.log.Warn("reconcile job not restarted", logx.Err(err))
		return
	}
	if prev != spec {
		s.log.Info("reconcile schedule changed", logx.String("spec", spec))
	}
}

func (s *Service) armLocked(t *Task, delay time.Duration) {
	t.setTimer(s.clock.AfterFunc(delay, func() { s.fire(t) }))
	s.cur = t
}

func (s *Service) fire(t *Task) {
	if !t.begin() {
		return
	}

	s.mu.Lock()
	base, timeout := s.baseCtx, s.cfg.NotifyTimeout
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(base), timeout)
	err := s.notify(ctx, t.payload)
	cancel()

	if err != nil {
		s.log.Error("reminder notify failed", logx.Err(err), logx.Time("next_fire_at", t.at))
	} else {
		s.log.Info("reminder sent", logx.Time("next_fire_at", t.at), logx.String("lang", t.payload.Lang))
	}

	s.mu.Lock()
	if s.cur == t {
		s.cur = nil
		s.consumed = t.at
		s.clearLocked(context.WithoutCancel(base), "fire")
	}
	s.mu.Unlock()
	t.complete()

	if err != nil {
		s.publish(EventFailed, map[string]any{"at": t.at, "error": err.Error()})
		return
	}
	s.publish(EventFired, map[string]any{"at": t.at})
}

func (s *Service) notify(ctx context.Context, p Payload) (err error) {
	if s.notifier == nil {
		return fmt.Errorf("no notifier configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify panic: %v", r)
		}
	}()
	return s.notifier.Notify(ctx, p)
}

// clearLocked deletes the persisted row. A failure is logged only: the
// in-memory slot is already free and the reconciler or next start will
// sort out a stale row.
func (s *Service) clearLocked(ctx context.Context, why string) {
	if err := s.store.ClearNextFire(ctx); err != nil {
		s.log.Error("clear persisted reminder failed", logx.String("on", why), logx.Err(err))
	}
}

func (s *Service) publish(typ string, data map[string]any) {
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clock.Now(), Data: data})
}
