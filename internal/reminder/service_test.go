package reminder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bumpbot/internal/eventbus"
	"bumpbot/internal/reminder/remindertest"
	"bumpbot/internal/storage"
	logx "bumpbot/pkg/logx"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []Payload
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, p Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, p)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, cfg Config) (*Service, *remindertest.Clock, *storage.Memory, *recordingNotifier) {
	t.Helper()
	clk := remindertest.NewClock(t0)
	st := storage.NewMemory()
	n := &recordingNotifier{}
	return New(cfg, st, n, logx.Nop(), nil, WithClock(clk)), clk, st, n
}

func storedAt(t *testing.T, st storage.Store) (time.Time, bool) {
	t.Helper()
	at, ok, err := st.NextFire(context.Background())
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	return at, ok
}

func TestScheduleKeepsSingleReminder(t *testing.T) {
	s, clk, st, _ := newTestService(t, Config{})
	ctx := context.Background()

	res, err := s.Schedule(ctx, 120*time.Minute, Payload{Lang: "en"})
	if err != nil || res != ResultArmed {
		t.Fatalf("first schedule: res=%v err=%v", res, err)
	}
	first, ok := storedAt(t, st)
	if !ok || !first.Equal(t0.Add(120*time.Minute)) {
		t.Fatalf("stored=%v ok=%v", first, ok)
	}

	clk.Advance(5 * time.Minute)
	res, err = s.Schedule(ctx, 120*time.Minute, Payload{Lang: "de"})
	if err != nil || res != ResultAlreadyScheduled {
		t.Fatalf("second schedule: res=%v err=%v", res, err)
	}
	if again, _ := storedAt(t, st); !again.Equal(first) {
		t.Fatalf("next fire moved: %v -> %v", first, again)
	}
	if got := clk.Pending(); got != 1 {
		t.Fatalf("armed timers=%d, want 1", got)
	}
}

func TestCancelTwice(t *testing.T) {
	s, clk, st, n := newTestService(t, Config{})
	ctx := context.Background()

	if _, err := s.Schedule(ctx, time.Hour, Payload{}); err != nil {
		t.Fatal(err)
	}
	if !s.Cancel(ctx) {
		t.Fatalf("first cancel should succeed")
	}
	if s.Cancel(ctx) {
		t.Fatalf("second cancel should report nothing to cancel")
	}
	if _, ok := s.Status(); ok {
		t.Fatalf("status after cancel should be empty")
	}
	if _, ok := storedAt(t, st); ok {
		t.Fatalf("row should be deleted after cancel")
	}
	clk.Advance(2 * time.Hour)
	if n.count() != 0 {
		t.Fatalf("canceled reminder notified")
	}
}

func TestStatusIsSideEffectFree(t *testing.T) {
	s, clk, _, _ := newTestService(t, Config{})
	if _, err := s.Schedule(context.Background(), 10*time.Minute, Payload{}); err != nil {
		t.Fatal(err)
	}
	clk.Advance(90 * time.Second)

	a, okA := s.Status()
	b, okB := s.Status()
	if !okA || !okB || a != b {
		t.Fatalf("status not stable: %v/%v %v/%v", a, okA, b, okB)
	}
	if a != 8*time.Minute+30*time.Second {
		t.Fatalf("remaining=%v", a)
	}
}

func TestExpiryNotifiesAndClears(t *testing.T) {
	clk := remindertest.NewClock(t0)
	st := storage.NewMemory()
	n := &recordingNotifier{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	s := New(Config{}, st, n, logx.Nop(), bus, WithClock(clk))

	if _, err := s.Schedule(context.Background(), time.Minute, Payload{Lang: "fr", Reason: "test"}); err != nil {
		t.Fatal(err)
	}
	clk.Advance(59 * time.Second)
	if n.count() != 0 {
		t.Fatalf("fired early")
	}
	clk.Advance(time.Second)

	if n.count() != 1 || n.calls[0].Lang != "fr" {
		t.Fatalf("notify calls=%v", n.calls)
	}
	if s.Active() {
		t.Fatalf("still active after fire")
	}
	if _, ok := storedAt(t, st); ok {
		t.Fatalf("row left after fire")
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	if len(types) != 2 || types[0] != EventArmed || types[1] != EventFired {
		t.Fatalf("events=%v", types)
	}
}

func TestNotifyFailureConsumesState(t *testing.T) {
	s, clk, st, n := newTestService(t, Config{})
	n.err = errors.New("discord down")

	if _, err := s.Schedule(context.Background(), time.Minute, Payload{}); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Minute)
	clk.Advance(time.Hour)

	if n.count() != 1 {
		t.Fatalf("notify should run once without retry, got %d", n.count())
	}
	if s.Active() {
		t.Fatalf("failed reminder should still be consumed")
	}
	if _, ok := storedAt(t, st); ok {
		t.Fatalf("row left after failed fire")
	}
}

func TestSchedulePersistFailureArmsNothing(t *testing.T) {
	s, clk, st, _ := newTestService(t, Config{})
	st.SetErr(errors.New("disk full"))

	if _, err := s.Schedule(context.Background(), time.Minute, Payload{}); err == nil {
		t.Fatalf("expected error")
	}
	if s.Active() || clk.Pending() != 0 {
		t.Fatalf("nothing should be armed")
	}
}

func TestRecoverFutureRearmsRemaining(t *testing.T) {
	s, clk, st, n := newTestService(t, Config{})
	ctx := context.Background()
	_ = st.PutNextFire(ctx, t0.Add(10*time.Minute))

	if err := s.Recover(ctx); err != nil {
		t.Fatal(err)
	}
	rem, ok := s.Status()
	if !ok {
		t.Fatalf("recovered reminder not active")
	}
	if d := 10*time.Minute - rem; d < 0 || d > time.Second {
		t.Fatalf("remaining=%v, want about 10m", rem)
	}

	clk.Advance(10*time.Minute - time.Second)
	if n.count() != 0 {
		t.Fatalf("fired early")
	}
	clk.Advance(time.Second)
	if n.count() != 1 || n.calls[0].Lang != "en" {
		t.Fatalf("calls=%v", n.calls)
	}
}

func TestRecoverOverdue(t *testing.T) {
	tests := []struct {
		name      string
		policy    RecoverPolicy
		wantFired int
	}{
		{name: "fire", policy: RecoverFire, wantFired: 1},
		{name: "discard", policy: RecoverDiscard, wantFired: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clk, st, n := newTestService(t, Config{RecoverPolicy: tt.policy, DefaultLang: "de"})
			ctx := context.Background()
			_ = st.PutNextFire(ctx, t0.Add(-5*time.Minute))

			if err := s.Recover(ctx); err != nil {
				t.Fatal(err)
			}
			clk.Advance(0)

			if n.count() != tt.wantFired {
				t.Fatalf("fired=%d want %d", n.count(), tt.wantFired)
			}
			if tt.wantFired == 1 && n.calls[0].Lang != "de" {
				t.Fatalf("lang=%q", n.calls[0].Lang)
			}
			if _, ok := storedAt(t, st); ok {
				t.Fatalf("row should be gone")
			}
			if s.Active() {
				t.Fatalf("nothing should be pending")
			}
		})
	}
}

func TestRecoverWithEmptyStore(t *testing.T) {
	s, clk, _, _ := newTestService(t, Config{})
	if err := s.Recover(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Active() || clk.Pending() != 0 {
		t.Fatalf("empty store should arm nothing")
	}
}

func TestShutdownCancelsPending(t *testing.T) {
	s, clk, st, n := newTestService(t, Config{})
	ctx := context.Background()
	if _, err := s.Schedule(ctx, time.Hour, Payload{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := storedAt(t, st); ok {
		t.Fatalf("row should be deleted on shutdown")
	}
	clk.Advance(2 * time.Hour)
	if n.count() != 0 {
		t.Fatalf("fired after shutdown")
	}
}

func TestExpiryCancelRace(t *testing.T) {
	for i := 0; i < 200; i++ {
		st := storage.NewMemory()
		var notified atomic.Int32
		n := NotifierFunc(func(context.Context, Payload) error {
			notified.Add(1)
			return nil
		})
		s := New(Config{}, st, n, logx.Nop(), nil)
		ctx := context.Background()

		if _, err := s.Schedule(ctx, time.Duration(i%4)*100*time.Microsecond, Payload{}); err != nil {
			t.Fatal(err)
		}
		task := s.Current()
		canceled := s.Cancel(ctx)

		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if !canceled && task != nil {
			select {
			case <-task.Done():
			case <-waitCtx.Done():
				t.Fatalf("iteration %d: fire never completed", i)
			}
		}
		cancel()

		got := int(notified.Load())
		if canceled && got != 0 {
			t.Fatalf("iteration %d: canceled but notified %d times", i, got)
		}
		if !canceled && got != 1 {
			t.Fatalf("iteration %d: cancel lost but notified %d times", i, got)
		}
		if s.Active() {
			t.Fatalf("iteration %d: still active", i)
		}
	}
}

func TestTaskCancelAfterBegin(t *testing.T) {
	task := newTask(t0, Payload{})
	if !task.begin() {
		t.Fatalf("begin should claim a pending task")
	}
	if task.Cancel() {
		t.Fatalf("cancel must lose once firing began")
	}
	task.complete()
	select {
	case <-task.Done():
	default:
		t.Fatalf("done not closed")
	}
}

func TestScheduleAfterShutdown(t *testing.T) {
	s, clk, st, _ := newTestService(t, Config{})
	ctx := context.Background()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Schedule(ctx, time.Minute, Payload{}); !errors.Is(err, ErrShutdown) {
		t.Fatalf("err=%v", err)
	}
	if _, ok := storedAt(t, st); ok || clk.Pending() != 0 {
		t.Fatalf("nothing should be persisted or armed after shutdown")
	}
}

func TestReleaseKeepsPersistedRow(t *testing.T) {
	s, clk, st, n := newTestService(t, Config{})
	ctx := context.Background()
	if _, err := s.Schedule(ctx, 90*time.Minute, Payload{}); err != nil {
		t.Fatal(err)
	}
	want, _ := storedAt(t, st)

	if err := s.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Active() || clk.Pending() != 0 {
		t.Fatalf("timer should be stopped")
	}
	got, ok := storedAt(t, st)
	if !ok || !got.Equal(want) {
		t.Fatalf("row=%v,%v want %v", got, ok, want)
	}
	clk.Advance(2 * time.Hour)
	if n.count() != 0 {
		t.Fatalf("released reminder must not fire")
	}
	if _, err := s.Schedule(ctx, time.Minute, Payload{}); !errors.Is(err, ErrShutdown) {
		t.Fatalf("err=%v", err)
	}
}
